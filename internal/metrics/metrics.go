package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/m3-muru/facial-rpi/internal/broadcast"
	"github.com/m3-muru/facial-rpi/internal/faceproc"
	"github.com/m3-muru/facial-rpi/internal/frames"
	"github.com/m3-muru/facial-rpi/internal/mailbox"
	"github.com/m3-muru/facial-rpi/internal/overlay"
	"github.com/m3-muru/facial-rpi/pkg/types"
)

// Metrics holds all application metrics on a private registry
type Metrics struct {
	commands  *prometheus.CounterVec
	watchdogs *prometheus.GaugeVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with the event collectors registered.
// Component gauges are added with the Watch methods.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kiosk_commands_total",
				Help: "Face processor commands by name and outcome",
			},
			[]string{"name", "outcome"},
		),
		watchdogs: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kiosk_watchdog_connected",
				Help: "Watchdog connectivity (0=disconnected, 1=connected)",
			},
			[]string{"name"},
		),
	}
	m.registry.MustRegister(m.commands, m.watchdogs)
	return m
}

// RecordCommand counts one executed command.
func (m *Metrics) RecordCommand(name, outcome string) {
	m.commands.WithLabelValues(name, outcome).Inc()
}

// SetWatchdog records the connectivity of the named watchdog.
func (m *Metrics) SetWatchdog(name string, connected bool) {
	v := 0.0
	if connected {
		v = 1
	}
	m.watchdogs.WithLabelValues(name).Set(v)
}

func (m *Metrics) gauge(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: name, Help: help},
		fn,
	))
}

// WatchPipeline exports frame pipeline counters.
func (m *Metrics) WatchPipeline(stats func() frames.Stats) {
	m.gauge("kiosk_frames_received_total", "Total frames received from the camera",
		func() float64 { return float64(stats().Received) })
	m.gauge("kiosk_frames_processed_total", "Total frames processed for display",
		func() float64 { return float64(stats().Processed) })
	m.gauge("kiosk_frame_errors_total", "Total frame processing errors",
		func() float64 { return float64(stats().Errors) })
	m.gauge("kiosk_error_frames_total", "Total synthetic error frames displayed",
		func() float64 { return float64(stats().ErrorFrames) })
	m.gauge("kiosk_camera_connected", "Camera stream state (0=disconnected, 1=connected)",
		func() float64 {
			if stats().Connected {
				return 1
			}
			return 0
		})
}

// WatchDisplay exports the display slot counters.
func (m *Metrics) WatchDisplay(slot *mailbox.Slot[types.DisplayFrame]) {
	m.gauge("kiosk_display_frames_published_total", "Total frames handed to the display",
		func() float64 { return float64(slot.Stats().Published) })
	m.gauge("kiosk_display_frames_dropped_total", "Display frames replaced before being consumed",
		func() float64 { return float64(slot.Stats().Dropped) })
	m.gauge("kiosk_display_frames_pending", "Display frames waiting for the consumer (0 or 1)",
		func() float64 { return float64(slot.Pending()) })
}

// WatchOverlay exports the detection overlay state.
func (m *Metrics) WatchOverlay(ov *overlay.Overlay) {
	m.gauge("kiosk_overlay_updates_total", "Total detection overlay writes",
		func() float64 { return float64(ov.Version()) })
	m.gauge("kiosk_overlay_detections", "Detection boxes currently drawn",
		func() float64 { return float64(len(ov.View())) })
}

// WatchBroadcast exports broadcast server counters.
func (m *Metrics) WatchBroadcast(stats func() broadcast.Stats) {
	m.gauge("kiosk_display_clients", "Connected display terminals",
		func() float64 { return float64(stats().Clients) })
	m.gauge("kiosk_broadcast_sent_total", "Total messages written to display terminals",
		func() float64 { return float64(stats().Sent) })
	m.gauge("kiosk_broadcast_pruned_total", "Total display terminals dropped after a failed write",
		func() float64 { return float64(stats().Pruned) })
	m.gauge("kiosk_broadcast_dropped_total", "Total messages dropped because the broadcast queue was full",
		func() float64 { return float64(stats().Dropped) })
}

// WatchFace exports face processor state.
func (m *Metrics) WatchFace(status func() faceproc.Status) {
	m.gauge("kiosk_face_ready", "Face processor readiness (0=busy, 1=ready)",
		func() float64 {
			if status().Ready {
				return 1
			}
			return 0
		})
	m.gauge("kiosk_command_queue_depth", "Commands waiting in the queue",
		func() float64 { return float64(status().Queued) })
	m.gauge("kiosk_enrolled_employees", "Employees in the faceprint index",
		func() float64 { return float64(status().Employees) })
	m.gauge("kiosk_enrolled_templates", "Templates in the faceprint index",
		func() float64 { return float64(status().Templates) })
}

// WatchMJPEG exports the number of preview clients.
func (m *Metrics) WatchMJPEG(clients func() int) {
	m.gauge("kiosk_mjpeg_clients", "Connected MJPEG preview clients",
		func() float64 { return float64(clients()) })
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
