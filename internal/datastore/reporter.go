package datastore

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/m3-muru/facial-rpi/internal/logger"
)

// ReporterConfig configures the monitoring endpoints. Empty URLs disable that part.
type ReporterConfig struct {
	AppStatusURL       string
	ETCMonURL          string // Base URL; /update and /event are appended
	StationID          string
	AppVersion         string
	APIKey             string
	InsecureSkipVerify bool
	Interval           time.Duration
}

// Reporter sends app status pings, ETCMon heartbeats and authentication events
type Reporter struct {
	cfg      ReporterConfig
	http     *http.Client
	hostname string
	ip       string
	now      func() time.Time
}

// NewReporter creates a reporter
func NewReporter(cfg ReporterConfig) *Reporter {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.StationID == "" {
		cfg.StationID = "default_station"
	}
	if cfg.AppVersion == "" {
		cfg.AppVersion = "1.0.0"
	}
	cfg.ETCMonURL = strings.TrimRight(cfg.ETCMonURL, "/")

	hostname, _ := os.Hostname()
	return &Reporter{
		cfg:      cfg,
		http:     newHTTPClient(10*time.Second, cfg.InsecureSkipVerify),
		hostname: hostname,
		ip:       localIP(hostname),
		now:      time.Now,
	}
}

type appStatus struct {
	StationID  string `json:"station_id"`
	Hostname   string `json:"hostname"`
	IPAddress  string `json:"ip_address"`
	Timestamp  string `json:"timestamp"`
	Status     string `json:"status"`
	AppVersion string `json:"app_version"`
	LastPing   string `json:"last_ping"`
}

type heartbeat struct {
	StationID     string `json:"station_id"`
	Hostname      string `json:"hostname"`
	IPAddress     string `json:"ip_address"`
	Timestamp     string `json:"timestamp"`
	Status        string `json:"status"`
	ServiceType   string `json:"service_type"`
	LastHeartbeat string `json:"last_heartbeat"`
}

// AuthEvent is reported to ETCMon after each authentication decision
type AuthEvent struct {
	StationID  string `json:"station_id"`
	EmployeeID string `json:"employee_id"`
	EventType  string `json:"event_type"`
	Status     string `json:"status"`
	Timestamp  string `json:"timestamp"`
	Hostname   string `json:"hostname"`
	IPAddress  string `json:"ip_address"`
}

const stampLayout = "2006-01-02 15:04:05"

// SendAppStatus posts the "alive" ping
func (r *Reporter) SendAppStatus(ctx context.Context) error {
	if r.cfg.AppStatusURL == "" {
		return nil
	}
	now := r.now()
	body := appStatus{
		StationID:  r.cfg.StationID,
		Hostname:   r.hostname,
		IPAddress:  r.ip,
		Timestamp:  now.Format(time.RFC3339),
		Status:     "alive",
		AppVersion: r.cfg.AppVersion,
		LastPing:   now.Format(stampLayout),
	}
	var headers map[string]string
	if r.cfg.APIKey != "" {
		headers = map[string]string{"x-api-key": r.cfg.APIKey}
	}
	if err := doRaw(ctx, r.http, http.MethodPost, r.cfg.AppStatusURL, headers, body); err != nil {
		return fmt.Errorf("could not send app status: %w", err)
	}
	return nil
}

// SendHeartbeat posts the ETCMon heartbeat
func (r *Reporter) SendHeartbeat(ctx context.Context) error {
	if r.cfg.ETCMonURL == "" {
		return nil
	}
	now := r.now()
	body := heartbeat{
		StationID:     r.cfg.StationID,
		Hostname:      r.hostname,
		IPAddress:     r.ip,
		Timestamp:     now.Format(time.RFC3339),
		Status:        "online",
		ServiceType:   "etc_face_recognition",
		LastHeartbeat: now.Format(stampLayout),
	}
	if err := doRaw(ctx, r.http, http.MethodPost, r.cfg.ETCMonURL+"/update", etcmonHeaders(), body); err != nil {
		return fmt.Errorf("could not send ETCMon heartbeat: %w", err)
	}
	return nil
}

// ReportAuthEvent posts an authentication event. status is "success" or "failure".
func (r *Reporter) ReportAuthEvent(ctx context.Context, employeeID, status string) error {
	if r.cfg.ETCMonURL == "" {
		return nil
	}
	body := AuthEvent{
		StationID:  r.cfg.StationID,
		EmployeeID: employeeID,
		EventType:  "authentication",
		Status:     status,
		Timestamp:  r.now().Format(time.RFC3339),
		Hostname:   r.hostname,
		IPAddress:  r.ip,
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := doRaw(ctx, r.http, http.MethodPost, r.cfg.ETCMonURL+"/event", etcmonHeaders(), body); err != nil {
		return fmt.Errorf("could not report authentication event: %w", err)
	}
	return nil
}

// Run sends both heartbeats immediately and then every interval until ctx is done.
// Failures are logged and retried on the next tick.
func (r *Reporter) Run(ctx context.Context) {
	if r.cfg.AppStatusURL == "" && r.cfg.ETCMonURL == "" {
		logger.Debug("Reporter", "No monitoring endpoints configured, heartbeat disabled")
		return
	}
	logger.Info("Reporter", "Heartbeat started (interval: %s, station: %s)", r.cfg.Interval, r.cfg.StationID)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		r.beat(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Reporter) beat(ctx context.Context) {
	if err := r.SendAppStatus(ctx); err != nil {
		logger.Error("Reporter", "%v", err)
	}
	if err := r.SendHeartbeat(ctx); err != nil {
		logger.Error("Reporter", "%v", err)
	}
}

func etcmonHeaders() map[string]string {
	return map[string]string{"User-Agent": "ETC-FaceRecognition/1.0"}
}

func localIP(hostname string) string {
	if addrs, err := net.LookupHost(hostname); err == nil {
		for _, a := range addrs {
			if ip := net.ParseIP(a); ip != nil && ip.To4() != nil && !ip.IsLoopback() {
				return a
			}
		}
	}
	return "127.0.0.1"
}
