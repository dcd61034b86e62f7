// Package watchdog polls a probe and tracks connectivity with debounced
// disconnects, immediate reconnects and an optional delayed shutdown.
package watchdog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/m3-muru/facial-rpi/internal/logger"
)

// Probe checks a dependency. A nil error means available.
type Probe interface {
	Check(ctx context.Context) error
}

// ProbeFunc adapts a function to Probe
type ProbeFunc func(ctx context.Context) error

func (f ProbeFunc) Check(ctx context.Context) error { return f(ctx) }

// Config for one watchdog instance
type Config struct {
	Name             string
	Interval         time.Duration // Poll period
	FailureThreshold int           // Consecutive failures before Disconnected
	ShutdownDelay    time.Duration // Time Disconnected before shutdown, 0 disables
	StartDelay       time.Duration // Wait before the first poll
	ProbeTimeout     time.Duration // Per-check timeout, defaults to Interval
}

// State is a snapshot of the watchdog
type State struct {
	Connected           bool
	ConsecutiveFailures int
	DisconnectedSince   time.Time // Zero while connected
	LastError           string
}

// EventKind identifies a state transition
type EventKind int

const (
	EventDisconnected EventKind = iota
	EventReconnected
	EventCountdown // Still disconnected, shutdown pending
	EventShutdown
)

func (k EventKind) String() string {
	switch k {
	case EventDisconnected:
		return "disconnected"
	case EventReconnected:
		return "reconnected"
	case EventCountdown:
		return "countdown"
	case EventShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Event is delivered to observers from the watchdog goroutine
type Event struct {
	Name      string
	Kind      EventKind
	State     State
	Remaining time.Duration // Until shutdown, for EventDisconnected and EventCountdown
}

// Observer receives events. It must not block.
type Observer func(Event)

// Watchdog owns its state; all mutation happens in the polling goroutine.
type Watchdog struct {
	cfg   Config
	probe Probe
	now   func() time.Time

	observers []Observer

	mu            sync.RWMutex
	state         State
	shutdownFired bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a watchdog. Zero config fields get the camera defaults.
func New(cfg Config, probe Probe) *Watchdog {
	if cfg.Name == "" {
		cfg.Name = "watchdog"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = cfg.Interval
	}
	return &Watchdog{
		cfg:   cfg,
		probe: probe,
		now:   time.Now,
		state: State{Connected: true},
	}
}

// Observe registers an observer. Call before Start.
func (w *Watchdog) Observe(fn Observer) {
	w.observers = append(w.observers, fn)
}

// Name returns the configured name
func (w *Watchdog) Name() string { return w.cfg.Name }

// State returns a copy of the current state
func (w *Watchdog) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Start begins polling until ctx is done or Stop is called
func (w *Watchdog) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.run()
	logger.Info("Watchdog", "[%s] Monitoring started (interval=%s threshold=%d shutdown_delay=%s)",
		w.cfg.Name, w.cfg.Interval, w.cfg.FailureThreshold, w.cfg.ShutdownDelay)
}

// Stop halts polling and waits for the goroutine to exit
func (w *Watchdog) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Watchdog) run() {
	defer w.wg.Done()

	if w.cfg.StartDelay > 0 {
		select {
		case <-w.ctx.Done():
			return
		case <-time.After(w.cfg.StartDelay):
		}
	}

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		w.Poll(w.ctx)
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll runs one probe check and applies the result
func (w *Watchdog) Poll(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, w.cfg.ProbeTimeout)
	defer cancel()
	w.step(w.check(checkCtx))
}

func (w *Watchdog) check(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panic: %v", r)
		}
	}()
	return w.probe.Check(ctx)
}

func (w *Watchdog) step(checkErr error) {
	now := w.now()
	var events []Event

	w.mu.Lock()
	if checkErr == nil {
		w.state.ConsecutiveFailures = 0
		w.state.LastError = ""
		if !w.state.Connected {
			w.state.Connected = true
			w.state.DisconnectedSince = time.Time{}
			w.shutdownFired = false
			events = append(events, Event{Kind: EventReconnected})
		}
	} else {
		w.state.ConsecutiveFailures++
		w.state.LastError = checkErr.Error()
		switch {
		case w.state.Connected && w.state.ConsecutiveFailures >= w.cfg.FailureThreshold:
			w.state.Connected = false
			w.state.DisconnectedSince = now
			events = append(events, Event{Kind: EventDisconnected, Remaining: w.cfg.ShutdownDelay})
		case !w.state.Connected && w.cfg.ShutdownDelay > 0 && !w.shutdownFired:
			elapsed := now.Sub(w.state.DisconnectedSince)
			if elapsed >= w.cfg.ShutdownDelay {
				w.shutdownFired = true
				events = append(events, Event{Kind: EventShutdown})
			} else {
				events = append(events, Event{Kind: EventCountdown, Remaining: w.cfg.ShutdownDelay - elapsed})
			}
		}
	}
	snapshot := w.state
	w.mu.Unlock()

	for _, ev := range events {
		ev.Name = w.cfg.Name
		ev.State = snapshot
		w.log(ev)
		for _, fn := range w.observers {
			fn(ev)
		}
	}
}

func (w *Watchdog) log(ev Event) {
	switch ev.Kind {
	case EventDisconnected:
		if w.cfg.ShutdownDelay > 0 {
			logger.Warn("Watchdog", "[%s] Disconnected after %d failures (%s); shutdown in %s",
				w.cfg.Name, ev.State.ConsecutiveFailures, ev.State.LastError, w.cfg.ShutdownDelay)
		} else {
			logger.Warn("Watchdog", "[%s] Disconnected after %d failures (%s)",
				w.cfg.Name, ev.State.ConsecutiveFailures, ev.State.LastError)
		}
	case EventReconnected:
		logger.Info("Watchdog", "[%s] Reconnected", w.cfg.Name)
	case EventCountdown:
		logger.Debug("Watchdog", "[%s] Still disconnected, shutdown in %s", w.cfg.Name, ev.Remaining.Round(time.Second))
	case EventShutdown:
		logger.Error("Watchdog", "[%s] Disconnect timeout reached, initiating shutdown", w.cfg.Name)
	}
}
