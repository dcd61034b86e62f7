package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3-muru/facial-rpi/internal/faceproc"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":9998", cfg.Broadcast.Addr)
	assert.Equal(t, 60*time.Second, cfg.Broadcast.PingInterval)
	assert.Equal(t, 2500*time.Millisecond, cfg.Face.ReadyDelay)
	assert.Equal(t, 1000, cfg.Face.Threshold)
	assert.Equal(t, "16:10", cfg.Face.DailyResync)
	assert.Equal(t, 15*time.Second, cfg.CameraWatchdog.ShutdownDelay)
	assert.Zero(t, cfg.UpstreamWatchdog.ShutdownDelay)
	assert.Equal(t, faceproc.ModeAuthenticate, cfg.FaceMode())
}

func TestLoadPrecedence(t *testing.T) {
	yamlPath := writeFile(t, "kiosk.yaml", `
log:
  level: debug
face:
  mode: enroll
  threshold: 1500
  ready_delay: 1s
broadcast:
  pin: "FROMYAML"
camera_watchdog:
  shutdown_delay: 20s
`)
	envPath := writeFile(t, ".env", "KIOSK_BROADCAST_PIN=FROMDOTENV\nKIOSK_FACE_THRESHOLD=1200\n")
	t.Setenv("KIOSK_FACE_THRESHOLD", "1800")
	t.Cleanup(func() { _ = os.Unsetenv("KIOSK_BROADCAST_PIN") })

	cfg, err := Load(yamlPath, envPath)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, faceproc.ModeEnroll, cfg.FaceMode())
	assert.Equal(t, time.Second, cfg.Face.ReadyDelay)
	assert.Equal(t, 20*time.Second, cfg.CameraWatchdog.ShutdownDelay)
	assert.Equal(t, "FROMDOTENV", cfg.Broadcast.Pin, ".env overrides the file")
	assert.Equal(t, 1800, cfg.Face.Threshold, "process env wins over .env")
	assert.Equal(t, 3*time.Second, cfg.CameraWatchdog.StartDelay, "unset keys keep defaults")
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Web.Addr)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	bad := writeFile(t, "bad.yaml", "face: [unterminated")
	_, err = Load(bad)
	assert.Error(t, err)

	t.Setenv("KIOSK_FACE_THRESHOLD", "high")
	_, err = Load("", filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorContains(t, err, "KIOSK_FACE_THRESHOLD")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad mode", func(c *Config) { c.Face.Mode = "verify" }, "verify"},
		{"bad resync time", func(c *Config) { c.Face.DailyResync = "25:00" }, "daily_resync"},
		{"bad attendance", func(c *Config) { c.Face.Attendance = "sideways" }, "attendance"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log level"},
		{"no hardware driver", func(c *Config) { c.Device.Simulate = false }, "hardware driver"},
		{"upstream without url", func(c *Config) { c.UpstreamWatchdog.Enabled = true }, "upstream_watchdog.url"},
		{"datastore watchdog without ping", func(c *Config) { c.DatastoreWatchdog.Enabled = true }, "ping_url"},
		{"zero watchdog interval", func(c *Config) { c.CameraWatchdog.Interval = 0 }, "camera_watchdog"},
		{"jpeg quality", func(c *Config) { c.Web.JPEGQuality = 0 }, "jpeg_quality"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	cfg := Default()
	cfg.Face.DailyResync = ""
	assert.NoError(t, cfg.Validate(), "empty daily resync disables the scheduler")
}
