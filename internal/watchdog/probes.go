package watchdog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ErrNoDevice is returned when no camera is visible by any method
var ErrNoDevice = errors.New("no camera device found")

// RealSense vendor ids
var cameraVendorIDs = []string{"8086", "2aad"}

// DeviceProbe looks for the camera: a /dev/video* node, then the vendor id in
// the USB device tables, then lsusb output.
type DeviceProbe struct {
	VideoGlob  string // Default /dev/video*
	USBDevices string // Default /proc/bus/usb/devices
	SysUSB     string // Default /sys/bus/usb/devices
	Lsusb      func(ctx context.Context) (string, error)
}

// NewDeviceProbe returns a probe using the standard Linux locations
func NewDeviceProbe() *DeviceProbe {
	return &DeviceProbe{
		VideoGlob:  "/dev/video*",
		USBDevices: "/proc/bus/usb/devices",
		SysUSB:     "/sys/bus/usb/devices",
		Lsusb:      runLsusb,
	}
}

func (p *DeviceProbe) Check(ctx context.Context) error {
	if p.VideoGlob != "" {
		if matches, _ := filepath.Glob(p.VideoGlob); len(matches) > 0 {
			return nil
		}
	}

	if p.USBDevices != "" {
		if data, err := os.ReadFile(p.USBDevices); err == nil {
			lower := strings.ToLower(string(data))
			for _, vid := range cameraVendorIDs {
				if strings.Contains(lower, vid) {
					return nil
				}
			}
		}
	}

	if p.SysUSB != "" {
		if entries, err := os.ReadDir(p.SysUSB); err == nil {
			for _, e := range entries {
				data, err := os.ReadFile(filepath.Join(p.SysUSB, e.Name(), "idVendor"))
				if err != nil {
					continue
				}
				vid := strings.ToLower(strings.TrimSpace(string(data)))
				for _, want := range cameraVendorIDs {
					if vid == want {
						return nil
					}
				}
			}
		}
	}

	if p.Lsusb != nil {
		out, err := p.Lsusb(ctx)
		if err == nil && strings.Contains(out, "Intel") && strings.Contains(out, "RealSense") {
			return nil
		}
	}
	return ErrNoDevice
}

func runLsusb(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, "lsusb").Output()
	return string(out), err
}

// HTTPProbe expects a 200 response whose body contains one of Markers
type HTTPProbe struct {
	URL     string
	Markers []string
	Client  *http.Client
}

// NewHTTPProbe returns a probe for the ETC terminal page
func NewHTTPProbe(url string) *HTTPProbe {
	return &HTTPProbe{
		URL:     url,
		Markers: []string{"ETC", "Employee ID"},
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *HTTPProbe) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("could not reach %s: %w", p.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", p.URL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("could not read response body: %w", err)
	}
	if len(p.Markers) == 0 {
		return nil
	}
	for _, m := range p.Markers {
		if bytes.Contains(body, []byte(m)) {
			return nil
		}
	}
	return fmt.Errorf("%s: unexpected page content", p.URL)
}

// TCPProbe succeeds when Addr accepts a connection
type TCPProbe struct {
	Addr    string
	Timeout time.Duration
}

func (p *TCPProbe) Check(ctx context.Context) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", p.Addr)
	if err != nil {
		return fmt.Errorf("could not connect to %s: %w", p.Addr, err)
	}
	return conn.Close()
}

// All succeeds only when every probe succeeds, checked in order
func All(probes ...Probe) Probe {
	return ProbeFunc(func(ctx context.Context) error {
		for _, p := range probes {
			if err := p.Check(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}
