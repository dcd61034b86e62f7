// Package config loads kiosk settings from defaults, an optional YAML file,
// .env files and KIOSK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/m3-muru/facial-rpi/internal/faceproc"
	"github.com/m3-muru/facial-rpi/internal/logger"
)

type Config struct {
	Log               LogConfig       `yaml:"log"`
	Datastore         DatastoreConfig `yaml:"datastore"`
	Reporter          ReporterConfig  `yaml:"reporter"`
	Broadcast         BroadcastConfig `yaml:"broadcast"`
	Web               WebConfig       `yaml:"web"`
	Pipeline          PipelineConfig  `yaml:"pipeline"`
	Face              FaceConfig      `yaml:"face"`
	Device            DeviceConfig    `yaml:"device"`
	CameraWatchdog    WatchdogConfig  `yaml:"camera_watchdog"`
	UpstreamWatchdog  WatchdogConfig  `yaml:"upstream_watchdog"`
	DatastoreWatchdog WatchdogConfig  `yaml:"datastore_watchdog"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Color      bool   `yaml:"color"`
	File       string `yaml:"file"` // Rotating log file, empty for console only
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type DatastoreConfig struct {
	FaceprintsURL      string        `yaml:"faceprints_url"`
	AddFaceprintURL    string        `yaml:"add_faceprint_url"`
	PingURL            string        `yaml:"ping_url"`
	APIKey             string        `yaml:"api_key"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	Timeout            time.Duration `yaml:"timeout"`
}

type ReporterConfig struct {
	AppStatusURL       string        `yaml:"app_status_url"`
	ETCMonURL          string        `yaml:"etcmon_url"`
	StationID          string        `yaml:"station_id"`
	AppVersion         string        `yaml:"app_version"`
	APIKey             string        `yaml:"api_key"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
}

type BroadcastConfig struct {
	Addr         string        `yaml:"addr"`
	PingInterval time.Duration `yaml:"ping_interval"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	QueueSize    int           `yaml:"queue_size"`
	Pin          string        `yaml:"pin"`
}

type WebConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Addr        string `yaml:"addr"`
	JPEGQuality int    `yaml:"jpeg_quality"`
}

type PipelineConfig struct {
	SensorWidth          int           `yaml:"sensor_width"`
	SensorHeight         int           `yaml:"sensor_height"`
	DisplayWidth         int           `yaml:"display_width"`
	DisplayHeight        int           `yaml:"display_height"`
	FrameTimeout         time.Duration `yaml:"frame_timeout"`
	MaxConsecutiveErrors int           `yaml:"max_consecutive_errors"`
	SimulatedFPS         int           `yaml:"simulated_fps"`
}

type FaceConfig struct {
	Mode          string        `yaml:"mode"` // auth or enroll
	QueueSize     int           `yaml:"queue_size"`
	ReadyDelay    time.Duration `yaml:"ready_delay"`
	Greeting      bool          `yaml:"greeting"`
	StartDelay    time.Duration `yaml:"start_delay"`
	CountdownStep time.Duration `yaml:"countdown_step"`
	QuitDelay     time.Duration `yaml:"quit_delay"`
	Threshold     int           `yaml:"threshold"`
	Attendance    string        `yaml:"attendance"` // in or out
	PresencePoll  time.Duration `yaml:"presence_poll"`
	DailyResync   string        `yaml:"daily_resync"` // HH:MM, empty disables
}

type DeviceConfig struct {
	Simulate bool          `yaml:"simulate"`
	Step     time.Duration `yaml:"step"` // Simulated extraction step
}

type WatchdogConfig struct {
	Enabled          bool          `yaml:"enabled"`
	URL              string        `yaml:"url"`          // Upstream page, unused by the camera watchdog
	DeviceProbe      bool          `yaml:"device_probe"` // Camera: look for the USB device instead of watching frames
	Interval         time.Duration `yaml:"interval"`
	FailureThreshold int           `yaml:"failure_threshold"`
	ShutdownDelay    time.Duration `yaml:"shutdown_delay"` // 0 disables shutdown
	StartDelay       time.Duration `yaml:"start_delay"`
}

// Default returns the settings of a stock kiosk.
func Default() *Config {
	face := faceproc.DefaultConfig()
	return &Config{
		Log: LogConfig{
			Level:      "info",
			Color:      true,
			MaxSizeMB:  10,
			MaxBackups: 5,
		},
		Datastore: DatastoreConfig{
			InsecureSkipVerify: true,
			Timeout:            10 * time.Second,
		},
		Reporter: ReporterConfig{
			StationID:          "default_station",
			AppVersion:         "1.0.0",
			InsecureSkipVerify: true,
			HeartbeatInterval:  60 * time.Second,
		},
		Broadcast: BroadcastConfig{
			Addr:         ":9998",
			PingInterval: 60 * time.Second,
			WriteTimeout: 5 * time.Second,
			QueueSize:    64,
			Pin:          "04AB1A2A313180",
		},
		Web: WebConfig{
			Enabled:     true,
			Addr:        ":8080",
			JPEGQuality: 80,
		},
		Pipeline: PipelineConfig{
			SensorWidth:          1080,
			SensorHeight:         1920,
			DisplayWidth:         300,
			DisplayHeight:        450,
			FrameTimeout:         10 * time.Second,
			MaxConsecutiveErrors: 5,
			SimulatedFPS:         15,
		},
		Face: FaceConfig{
			Mode:          "auth",
			QueueSize:     face.QueueSize,
			ReadyDelay:    face.ReadyDelay,
			Greeting:      face.Greeting,
			StartDelay:    face.StartDelay,
			CountdownStep: face.CountdownStep,
			QuitDelay:     face.QuitDelay,
			Threshold:     face.Threshold,
			Attendance:    "out",
			PresencePoll:  face.PresencePoll,
			DailyResync:   face.DailyResync,
		},
		Device: DeviceConfig{
			Simulate: true,
			Step:     300 * time.Millisecond,
		},
		CameraWatchdog: WatchdogConfig{
			Enabled:          true,
			Interval:         2 * time.Second,
			FailureThreshold: 3,
			ShutdownDelay:    15 * time.Second,
			StartDelay:       3 * time.Second,
		},
		UpstreamWatchdog: WatchdogConfig{
			Interval:         30 * time.Second,
			FailureThreshold: 3,
		},
		DatastoreWatchdog: WatchdogConfig{
			Interval:         3 * time.Second,
			FailureThreshold: 3,
		},
	}
}

// Load builds the configuration. path may be empty. Values from the
// environment (including .env files) override the YAML file.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("could not read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("could not parse config file %s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// godotenv never overrides variables already set in the process
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("could not load %s: %w", f, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envBinding maps one KIOSK_* variable onto a field
type envBinding struct {
	key string
	set func(string) error
}

func str(dst *string) func(string) error {
	return func(v string) error { *dst = v; return nil }
}

func integer(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func boolean(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func duration(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}

func (c *Config) bindings() []envBinding {
	return []envBinding{
		{"KIOSK_LOG_LEVEL", str(&c.Log.Level)},
		{"KIOSK_LOG_COLOR", boolean(&c.Log.Color)},
		{"KIOSK_LOG_FILE", str(&c.Log.File)},

		{"KIOSK_DATASTORE_FACEPRINTS_URL", str(&c.Datastore.FaceprintsURL)},
		{"KIOSK_DATASTORE_ADD_FACEPRINT_URL", str(&c.Datastore.AddFaceprintURL)},
		{"KIOSK_DATASTORE_PING_URL", str(&c.Datastore.PingURL)},
		{"KIOSK_DATASTORE_API_KEY", str(&c.Datastore.APIKey)},
		{"KIOSK_DATASTORE_INSECURE_SKIP_VERIFY", boolean(&c.Datastore.InsecureSkipVerify)},
		{"KIOSK_DATASTORE_TIMEOUT", duration(&c.Datastore.Timeout)},

		{"KIOSK_REPORTER_APP_STATUS_URL", str(&c.Reporter.AppStatusURL)},
		{"KIOSK_REPORTER_ETCMON_URL", str(&c.Reporter.ETCMonURL)},
		{"KIOSK_REPORTER_STATION_ID", str(&c.Reporter.StationID)},
		{"KIOSK_REPORTER_API_KEY", str(&c.Reporter.APIKey)},
		{"KIOSK_REPORTER_HEARTBEAT_INTERVAL", duration(&c.Reporter.HeartbeatInterval)},

		{"KIOSK_BROADCAST_ADDR", str(&c.Broadcast.Addr)},
		{"KIOSK_BROADCAST_PING_INTERVAL", duration(&c.Broadcast.PingInterval)},
		{"KIOSK_BROADCAST_PIN", str(&c.Broadcast.Pin)},

		{"KIOSK_WEB_ENABLED", boolean(&c.Web.Enabled)},
		{"KIOSK_WEB_ADDR", str(&c.Web.Addr)},

		{"KIOSK_FACE_MODE", str(&c.Face.Mode)},
		{"KIOSK_FACE_THRESHOLD", integer(&c.Face.Threshold)},
		{"KIOSK_FACE_ATTENDANCE", str(&c.Face.Attendance)},
		{"KIOSK_FACE_GREETING", boolean(&c.Face.Greeting)},
		{"KIOSK_FACE_DAILY_RESYNC", str(&c.Face.DailyResync)},

		{"KIOSK_DEVICE_SIMULATE", boolean(&c.Device.Simulate)},

		{"KIOSK_CAMERA_WATCHDOG_ENABLED", boolean(&c.CameraWatchdog.Enabled)},
		{"KIOSK_CAMERA_WATCHDOG_SHUTDOWN_DELAY", duration(&c.CameraWatchdog.ShutdownDelay)},
		{"KIOSK_CAMERA_WATCHDOG_DEVICE_PROBE", boolean(&c.CameraWatchdog.DeviceProbe)},
		{"KIOSK_UPSTREAM_WATCHDOG_ENABLED", boolean(&c.UpstreamWatchdog.Enabled)},
		{"KIOSK_UPSTREAM_WATCHDOG_URL", str(&c.UpstreamWatchdog.URL)},
		{"KIOSK_UPSTREAM_WATCHDOG_SHUTDOWN_DELAY", duration(&c.UpstreamWatchdog.ShutdownDelay)},
		{"KIOSK_DATASTORE_WATCHDOG_ENABLED", boolean(&c.DatastoreWatchdog.Enabled)},
	}
}

func (c *Config) applyEnv() error {
	for _, b := range c.bindings() {
		v, ok := os.LookupEnv(b.key)
		if !ok || v == "" {
			continue
		}
		if err := b.set(strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("invalid %s=%q: %w", b.key, v, err)
		}
	}
	return nil
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	var errs []error
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if _, err := faceproc.ParseMode(c.Face.Mode); err != nil {
		errs = append(errs, err)
	}
	if c.Face.DailyResync != "" {
		if _, err := faceproc.ParseDailyTime(c.Face.DailyResync); err != nil {
			errs = append(errs, fmt.Errorf("face.daily_resync: %w", err))
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Face.Attendance)) {
	case "in", "out", "":
	default:
		errs = append(errs, fmt.Errorf("face.attendance must be in or out, got %q", c.Face.Attendance))
	}
	if c.Face.QueueSize <= 0 {
		errs = append(errs, errors.New("face.queue_size must be positive"))
	}
	if c.Face.ReadyDelay < 0 || c.Face.QuitDelay < 0 {
		errs = append(errs, errors.New("face delays must not be negative"))
	}
	if c.Broadcast.Addr == "" {
		errs = append(errs, errors.New("broadcast.addr is required"))
	}
	if c.Broadcast.PingInterval <= 0 {
		errs = append(errs, errors.New("broadcast.ping_interval must be positive"))
	}
	if c.Web.Enabled && c.Web.Addr == "" {
		errs = append(errs, errors.New("web.addr is required when the web monitor is enabled"))
	}
	if c.Web.JPEGQuality < 1 || c.Web.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("web.jpeg_quality must be 1-100, got %d", c.Web.JPEGQuality))
	}
	if c.Pipeline.DisplayWidth <= 0 || c.Pipeline.DisplayHeight <= 0 ||
		c.Pipeline.SensorWidth <= 0 || c.Pipeline.SensorHeight <= 0 {
		errs = append(errs, errors.New("pipeline sizes must be positive"))
	}
	if c.Pipeline.SimulatedFPS <= 0 {
		errs = append(errs, errors.New("pipeline.simulated_fps must be positive"))
	}
	if !c.Device.Simulate {
		errs = append(errs, errors.New("device.simulate=false requires a hardware driver, none is built in"))
	}
	if c.UpstreamWatchdog.Enabled && c.UpstreamWatchdog.URL == "" {
		errs = append(errs, errors.New("upstream_watchdog.url is required when enabled"))
	}
	if c.DatastoreWatchdog.Enabled && c.Datastore.PingURL == "" {
		errs = append(errs, errors.New("datastore_watchdog needs datastore.ping_url"))
	}
	for name, w := range map[string]WatchdogConfig{
		"camera_watchdog":    c.CameraWatchdog,
		"upstream_watchdog":  c.UpstreamWatchdog,
		"datastore_watchdog": c.DatastoreWatchdog,
	} {
		if !w.Enabled {
			continue
		}
		if w.Interval <= 0 || w.FailureThreshold <= 0 || w.ShutdownDelay < 0 {
			errs = append(errs, fmt.Errorf("%s: interval and failure_threshold must be positive", name))
		}
	}
	return errors.Join(errs...)
}

// FaceMode returns the parsed face processor mode. Call after Validate.
func (c *Config) FaceMode() faceproc.Mode {
	mode, _ := faceproc.ParseMode(c.Face.Mode)
	return mode
}
