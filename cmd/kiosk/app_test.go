package main

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3-muru/facial-rpi/internal/config"
	"github.com/m3-muru/facial-rpi/internal/faceproc"
	"github.com/m3-muru/facial-rpi/internal/watchdog"
	"github.com/m3-muru/facial-rpi/pkg/types"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Face.Mode = "enroll"
	cfg.Face.Greeting = false
	cfg.Face.ReadyDelay = 0
	cfg.Face.QuitDelay = 10 * time.Millisecond
	cfg.Web.Enabled = false
	cfg.Broadcast.Addr = ""
	cfg.CameraWatchdog.Enabled = false
	cfg.Device.Step = time.Millisecond
	return cfg
}

func lastFeedback(t *testing.T, a *App) types.FeedbackMessage {
	t.Helper()
	activity := a.web.Feedback().Activity()
	require.NotEmpty(t, activity)
	return activity[len(activity)-1]
}

func TestAppQuitCommandExitsCleanly(t *testing.T) {
	a, err := NewApp(testConfig())
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))

	require.NoError(t, commander{a}.Submit(types.Command{Name: types.CommandQuit, Raw: "quit"}))

	select {
	case code := <-a.ExitRequested():
		assert.Equal(t, exitOK, code)
	case <-time.After(3 * time.Second):
		t.Fatal("quit did not request exit")
	}
	a.Shutdown()
	assert.Equal(t, "enroll", a.status().Face.Mode)
}

func TestAppStartupFailsWhenDatastoreUnreachable(t *testing.T) {
	cfg := testConfig()
	cfg.Datastore.PingURL = "http://127.0.0.1:1/ping"
	cfg.Datastore.Timeout = time.Second

	a, err := NewApp(cfg)
	require.NoError(t, err)

	err = a.Start(context.Background())
	var startup *faceproc.StartupError
	require.ErrorAs(t, err, &startup)
	assert.Equal(t, faceproc.ModeEnroll, startup.Mode)
}

func TestCameraObserverFeedback(t *testing.T) {
	a, err := NewApp(testConfig())
	require.NoError(t, err)

	obs := a.cameraObserver(15 * time.Second)
	obs(watchdog.Event{Name: "Camera", Kind: watchdog.EventDisconnected})
	fb := lastFeedback(t, a)
	assert.Equal(t, "⚠️ Camera Disconnected! App will close in 15s", fb.Text)
	assert.Equal(t, types.StatusRejected, fb.Status)

	obs(watchdog.Event{Name: "Camera", Kind: watchdog.EventReconnected})
	assert.Equal(t, "✅ Camera Reconnected", lastFeedback(t, a).Text)

	obs(watchdog.Event{Name: "Camera", Kind: watchdog.EventShutdown})
	select {
	case code := <-a.ExitRequested():
		assert.Equal(t, exitFailure, code)
	case <-time.After(3 * time.Second):
		t.Fatal("watchdog shutdown did not request exit")
	}
	assert.Equal(t, "🔌 Camera disconnected - Shutting down...", lastFeedback(t, a).Text)
}

func TestRequestExitKeepsFirstCode(t *testing.T) {
	a, err := NewApp(testConfig())
	require.NoError(t, err)
	a.requestExit(1)
	a.requestExit(0)
	assert.Equal(t, 1, <-a.ExitRequested())
}

func TestHostPort(t *testing.T) {
	for raw, want := range map[string]string{
		"http://etc.local/health":       "etc.local:80",
		"https://etc.local/health":      "etc.local:443",
		"http://10.0.0.5:8443/health":   "10.0.0.5:8443",
		"https://[fe80::1]:9000/health": "[fe80::1]:9000",
	} {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, want, hostPort(u), raw)
	}
}

func TestLoadConfigFlagsOverride(t *testing.T) {
	opts := &options{}
	root := newRootCmd(opts)
	cmd, _, err := root.Find([]string{"auth"})
	require.NoError(t, err)

	missing := t.TempDir() + "/missing.env"
	require.NoError(t, cmd.ParseFlags([]string{
		"--env-file", missing,
		"--threshold", "2500",
		"--attendance", "in",
		"--no-greeting",
		"--broadcast", ":7000",
	}))

	cfg, err := loadConfig(cmd, opts, faceproc.ModeAuthenticate)
	require.NoError(t, err)
	assert.Equal(t, 2500, cfg.Face.Threshold)
	assert.Equal(t, "in", cfg.Face.Attendance)
	assert.False(t, cfg.Face.Greeting)
	assert.Equal(t, ":7000", cfg.Broadcast.Addr)
	assert.Equal(t, ":8080", cfg.Web.Addr, "unchanged flags keep configured values")
	assert.Equal(t, "auth", cfg.Face.Mode)
}

func TestLoadConfigRejectsInvalidFlags(t *testing.T) {
	opts := &options{}
	root := newRootCmd(opts)
	cmd, _, err := root.Find([]string{"enroll"})
	require.NoError(t, err)

	require.NoError(t, cmd.ParseFlags([]string{
		"--env-file", t.TempDir() + "/missing.env",
		"--attendance", "sideways",
	}))
	_, err = loadConfig(cmd, opts, faceproc.ModeEnroll)
	assert.ErrorContains(t, err, "attendance")
}
