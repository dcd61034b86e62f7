package frames

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3-muru/facial-rpi/internal/logger"
	"github.com/m3-muru/facial-rpi/internal/mailbox"
	"github.com/m3-muru/facial-rpi/internal/overlay"
	"github.com/m3-muru/facial-rpi/pkg/types"
)

// Config for the frame pipeline
type Config struct {
	SensorWidth          int           // Coordinate space of detection rects
	SensorHeight         int
	DisplayWidth         int           // Output size
	DisplayHeight        int
	FrameTimeout         time.Duration // No frame for this long means disconnected
	MaxConsecutiveErrors int           // More errors than this in a row means disconnected
}

// DefaultConfig returns the kiosk display settings
func DefaultConfig() Config {
	return Config{
		SensorWidth:          1080,
		SensorHeight:         1920,
		DisplayWidth:         300,
		DisplayHeight:        450,
		FrameTimeout:         10 * time.Second,
		MaxConsecutiveErrors: 5,
	}
}

// Stats is a snapshot of pipeline counters
type Stats struct {
	Received    uint64
	Processed   uint64
	Errors      uint64
	ErrorFrames uint64
	Connected   bool
}

// StateFunc is called when the pipeline connects or disconnects
type StateFunc func(connected bool, reason string)

// Pipeline consumes a Source and publishes DisplayFrames into a single slot.
type Pipeline struct {
	cfg      Config
	source   Source
	overlay  *overlay.Overlay
	display  *mailbox.Slot[types.DisplayFrame]
	detector PresenceDetector
	presence *mailbox.Slot[bool]
	onState  StateFunc
	now      func() time.Time

	received    atomic.Uint64
	processed   atomic.Uint64
	errors      atomic.Uint64
	errorFrames atomic.Uint64
	connected   atomic.Bool

	// owned by the loop goroutine
	consecutiveErrors int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a pipeline. Zero config fields take DefaultConfig values.
func New(cfg Config, source Source, ov *overlay.Overlay, display *mailbox.Slot[types.DisplayFrame]) *Pipeline {
	def := DefaultConfig()
	if cfg.SensorWidth <= 0 || cfg.SensorHeight <= 0 {
		cfg.SensorWidth, cfg.SensorHeight = def.SensorWidth, def.SensorHeight
	}
	if cfg.DisplayWidth <= 0 || cfg.DisplayHeight <= 0 {
		cfg.DisplayWidth, cfg.DisplayHeight = def.DisplayWidth, def.DisplayHeight
	}
	if cfg.FrameTimeout <= 0 {
		cfg.FrameTimeout = def.FrameTimeout
	}
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = def.MaxConsecutiveErrors
	}
	p := &Pipeline{
		cfg:     cfg,
		source:  source,
		overlay: ov,
		display: display,
		now:     time.Now,
	}
	p.connected.Store(true)
	return p
}

// WithPresence publishes face presence for every frame into slot
func (p *Pipeline) WithPresence(det PresenceDetector, slot *mailbox.Slot[bool]) *Pipeline {
	p.detector = det
	p.presence = slot
	return p
}

// OnStateChange registers the connect/disconnect callback. Call before Start.
func (p *Pipeline) OnStateChange(fn StateFunc) {
	p.onState = fn
}

// Start subscribes to the source and runs the loop until ctx is done
func (p *Pipeline) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)
	frames, err := p.source.Subscribe(p.ctx)
	if err != nil {
		p.cancel()
		return fmt.Errorf("subscribe to camera: %w", err)
	}
	p.wg.Add(1)
	go p.run(frames)
	logger.Info("Pipeline", "Started (sensor %dx%d -> display %dx%d, timeout %s)",
		p.cfg.SensorWidth, p.cfg.SensorHeight, p.cfg.DisplayWidth, p.cfg.DisplayHeight, p.cfg.FrameTimeout)
	return nil
}

// Stop halts the loop
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// Stats returns current counters
func (p *Pipeline) Stats() Stats {
	return Stats{
		Received:    p.received.Load(),
		Processed:   p.processed.Load(),
		Errors:      p.errors.Load(),
		ErrorFrames: p.errorFrames.Load(),
		Connected:   p.connected.Load(),
	}
}

func (p *Pipeline) run(frames <-chan types.Frame) {
	defer p.wg.Done()

	timer := time.NewTimer(p.cfg.FrameTimeout)
	defer timer.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return

		case f, ok := <-frames:
			if !ok {
				// Stream ended for good; the timer keeps the error frame fresh
				frames = nil
				p.disconnect("Camera stream ended")
				timer.Reset(p.cfg.FrameTimeout)
				continue
			}
			timer.Reset(p.cfg.FrameTimeout)
			p.handle(f)

		case <-timer.C:
			p.disconnect(fmt.Sprintf("No camera frame for %s", p.cfg.FrameTimeout))
			timer.Reset(p.cfg.FrameTimeout)
		}
	}
}

func (p *Pipeline) handle(f types.Frame) {
	p.received.Add(1)

	out, err := p.process(f)
	if err != nil {
		p.errors.Add(1)
		p.consecutiveErrors++
		logger.Warn("Pipeline", "Frame %d failed (%d in a row): %v", f.Number, p.consecutiveErrors, err)
		if p.consecutiveErrors > p.cfg.MaxConsecutiveErrors {
			p.disconnect(fmt.Sprintf("Frame processing failed: %v", err))
		}
		return
	}

	p.consecutiveErrors = 0
	p.processed.Add(1)
	p.display.Publish(out)
	if p.connected.CompareAndSwap(false, true) {
		logger.Info("Pipeline", "Camera stream recovered at frame %d", f.Number)
		if p.onState != nil {
			p.onState(true, "")
		}
	}

	if p.detector != nil && p.presence != nil {
		p.presence.Publish(p.detector.FacePresent(f))
	}
}

// process draws the overlay, mirrors and resizes one frame. Panics from
// drawing are returned as errors.
func (p *Pipeline) process(f types.Frame) (out types.DisplayFrame, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	img, err := toRGBA(f)
	if err != nil {
		return types.DisplayFrame{}, err
	}

	if records := p.overlay.View(); len(records) > 0 {
		scaleX := float64(f.Width) / float64(p.cfg.SensorWidth)
		scaleY := float64(f.Height) / float64(p.cfg.SensorHeight)
		for _, rec := range records {
			drawDetection(img, rec, scaleX, scaleY)
		}
	}

	mirror(img)
	return types.DisplayFrame{
		Image:     resize(img, p.cfg.DisplayWidth, p.cfg.DisplayHeight),
		Number:    f.Number,
		CreatedAt: p.now(),
	}, nil
}

func (p *Pipeline) disconnect(reason string) {
	if p.connected.CompareAndSwap(true, false) {
		logger.Error("Pipeline", "Camera stream disconnected: %s", reason)
		if p.onState != nil {
			p.onState(false, reason)
		}
	}
	p.errorFrames.Add(1)
	p.display.Publish(types.DisplayFrame{
		Image:     ErrorImage(p.cfg.DisplayWidth, p.cfg.DisplayHeight, reason),
		Synthetic: true,
		Reason:    reason,
		CreatedAt: p.now(),
	})
}
