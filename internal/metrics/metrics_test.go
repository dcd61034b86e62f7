package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3-muru/facial-rpi/internal/broadcast"
	"github.com/m3-muru/facial-rpi/internal/faceproc"
	"github.com/m3-muru/facial-rpi/internal/frames"
	"github.com/m3-muru/facial-rpi/internal/mailbox"
	"github.com/m3-muru/facial-rpi/internal/overlay"
	"github.com/m3-muru/facial-rpi/pkg/types"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMetricsExportComponentState(t *testing.T) {
	m := New()
	slot := mailbox.New[types.DisplayFrame]()
	slot.Publish(types.DisplayFrame{})
	slot.Publish(types.DisplayFrame{})

	m.WatchPipeline(func() frames.Stats { return frames.Stats{Received: 12, Processed: 10, Errors: 2, Connected: true} })
	m.WatchDisplay(slot)
	m.WatchBroadcast(func() broadcast.Stats { return broadcast.Stats{Clients: 2, Sent: 7, Pruned: 1} })
	m.WatchFace(func() faceproc.Status { return faceproc.Status{Ready: true, Queued: 3, Employees: 4, Templates: 9} })
	m.WatchMJPEG(func() int { return 1 })
	ov := overlay.New()
	ov.SetPending([]types.Rect{{X: 1}, {X: 2}})
	m.WatchOverlay(ov)

	m.RecordCommand("authenticate", "ok")
	m.RecordCommand("authenticate", "ok")
	m.RecordCommand("enroll", "error")
	m.SetWatchdog("camera", false)
	m.SetWatchdog("upstream", true)

	body := scrape(t, m)
	for _, want := range []string{
		"kiosk_frames_received_total 12",
		"kiosk_frame_errors_total 2",
		"kiosk_camera_connected 1",
		"kiosk_display_frames_published_total 2",
		"kiosk_display_frames_dropped_total 1",
		"kiosk_display_frames_pending 1",
		"kiosk_overlay_updates_total 1",
		"kiosk_overlay_detections 2",
		"kiosk_display_clients 2",
		"kiosk_broadcast_pruned_total 1",
		"kiosk_face_ready 1",
		"kiosk_command_queue_depth 3",
		"kiosk_enrolled_templates 9",
		"kiosk_mjpeg_clients 1",
		`kiosk_commands_total{name="authenticate",outcome="ok"} 2`,
		`kiosk_commands_total{name="enroll",outcome="error"} 1`,
		`kiosk_watchdog_connected{name="camera"} 0`,
		`kiosk_watchdog_connected{name="upstream"} 1`,
	} {
		assert.Contains(t, body, want)
	}
}

func TestMetricsRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.RecordCommand("quit", "ok")
	assert.NotContains(t, scrape(t, b), `name="quit"`)
}
