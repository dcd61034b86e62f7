// Package frames turns raw camera frames into display frames with the
// detection overlay drawn on, and watches the stream for starvation.
package frames

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/m3-muru/facial-rpi/pkg/types"
)

// ErrAlreadySubscribed is returned by a second Subscribe call
var ErrAlreadySubscribed = errors.New("frames: source already subscribed")

// Source delivers camera frames. It supports a single subscription; a closed
// channel means the stream ended and will not restart.
type Source interface {
	Subscribe(ctx context.Context) (<-chan types.Frame, error)
}

// PresenceDetector reports whether a face is visible in a frame
type PresenceDetector interface {
	FacePresent(f types.Frame) bool
}

// PresenceFunc adapts a function to PresenceDetector
type PresenceFunc func(f types.Frame) bool

func (fn PresenceFunc) FacePresent(f types.Frame) bool { return fn(f) }

// PatternSource is a synthetic camera producing a moving test pattern.
// It also acts as a PresenceDetector: a face is "present" for PresentFor out
// of every PresentEvery.
type PatternSource struct {
	Width        int
	Height       int
	FPS          int
	PresentEvery time.Duration
	PresentFor   time.Duration

	subscribed atomic.Bool
	dropped    atomic.Uint64
}

// NewPatternSource returns a pattern source at the sensor resolution
func NewPatternSource(width, height, fps int) *PatternSource {
	if fps <= 0 {
		fps = 15
	}
	return &PatternSource{
		Width:        width,
		Height:       height,
		FPS:          fps,
		PresentEvery: 20 * time.Second,
		PresentFor:   3 * time.Second,
	}
}

// Subscribe starts the generator goroutine. Frames are dropped when the
// consumer is behind, as a camera would.
func (s *PatternSource) Subscribe(ctx context.Context) (<-chan types.Frame, error) {
	if !s.subscribed.CompareAndSwap(false, true) {
		return nil, ErrAlreadySubscribed
	}

	ch := make(chan types.Frame, 1)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(time.Second / time.Duration(s.FPS))
		defer ticker.Stop()

		var number uint64
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				number++
				f := types.Frame{
					Data:      s.render(number),
					Width:     s.Width,
					Height:    s.Height,
					Number:    number,
					Timestamp: now,
				}
				select {
				case ch <- f:
				default:
					s.dropped.Add(1)
				}
			}
		}
	}()
	return ch, nil
}

// Dropped returns frames discarded because the consumer was busy
func (s *PatternSource) Dropped() uint64 { return s.dropped.Load() }

// FacePresent implements PresenceDetector from the frame number
func (s *PatternSource) FacePresent(f types.Frame) bool {
	if s.PresentEvery <= 0 || s.PresentFor <= 0 {
		return false
	}
	every := uint64(s.PresentEvery.Seconds() * float64(s.FPS))
	window := uint64(s.PresentFor.Seconds() * float64(s.FPS))
	if every == 0 {
		return false
	}
	return f.Number%every < window
}

func (s *PatternSource) render(number uint64) []byte {
	buf := make([]byte, s.Width*s.Height*3)
	barY := int(number*8) % s.Height
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			i := (y*s.Width + x) * 3
			if y >= barY && y < barY+24 {
				buf[i], buf[i+1], buf[i+2] = 230, 230, 230
				continue
			}
			buf[i] = byte(x * 255 / s.Width)
			buf[i+1] = byte(y * 255 / s.Height)
			buf[i+2] = 96
		}
	}
	return buf
}
