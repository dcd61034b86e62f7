package webmonitor

import (
	"time"

	"github.com/m3-muru/facial-rpi/internal/broadcast"
	"github.com/m3-muru/facial-rpi/internal/faceproc"
	"github.com/m3-muru/facial-rpi/internal/frames"
	"github.com/m3-muru/facial-rpi/internal/watchdog"
	"github.com/m3-muru/facial-rpi/pkg/types"
)

// CameraStatus is the JSON shape of frame pipeline counters.
type CameraStatus struct {
	Connected       bool   `json:"connected"`
	FramesReceived  uint64 `json:"frames_received"`
	FramesProcessed uint64 `json:"frames_processed"`
	Errors          uint64 `json:"errors"`
	ErrorFrames     uint64 `json:"error_frames"`
}

// NewCameraStatus converts pipeline stats.
func NewCameraStatus(s frames.Stats) CameraStatus {
	return CameraStatus{
		Connected:       s.Connected,
		FramesReceived:  s.Received,
		FramesProcessed: s.Processed,
		Errors:          s.Errors,
		ErrorFrames:     s.ErrorFrames,
	}
}

// BroadcastStatus is the JSON shape of broadcast server counters.
type BroadcastStatus struct {
	Clients int64  `json:"clients"`
	Sent    uint64 `json:"sent"`
	Pruned  uint64 `json:"pruned"`
	Dropped uint64 `json:"dropped"`
}

// NewBroadcastStatus converts broadcast stats.
func NewBroadcastStatus(s broadcast.Stats) BroadcastStatus {
	return BroadcastStatus{Clients: s.Clients, Sent: s.Sent, Pruned: s.Pruned, Dropped: s.Dropped}
}

// WatchdogStatus is the JSON shape of one watchdog.
type WatchdogStatus struct {
	Name                string     `json:"name"`
	Connected           bool       `json:"connected"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	DisconnectedSince   *time.Time `json:"disconnected_since"`
	LastError           string     `json:"last_error,omitempty"`
}

// NewWatchdogStatus converts a watchdog state copy.
func NewWatchdogStatus(name string, s watchdog.State) WatchdogStatus {
	ws := WatchdogStatus{
		Name:                name,
		Connected:           s.Connected,
		ConsecutiveFailures: s.ConsecutiveFailures,
		LastError:           s.LastError,
	}
	if !s.DisconnectedSince.IsZero() {
		since := s.DisconnectedSince
		ws.DisconnectedSince = &since
	}
	return ws
}

// Status is the payload of /api/status.
type Status struct {
	Face      faceproc.Status         `json:"face"`
	Camera    CameraStatus            `json:"camera"`
	Broadcast BroadcastStatus         `json:"broadcast"`
	Watchdogs []WatchdogStatus        `json:"watchdogs"`
	Activity  []types.FeedbackMessage `json:"activity"`
	Timestamp float64                 `json:"timestamp"`
}

// StatusFunc assembles the live part of Status. Activity and Timestamp are
// filled in by the server.
type StatusFunc func() Status

// Commander accepts commands for the face processor.
type Commander interface {
	Submit(cmd types.Command) error
}
