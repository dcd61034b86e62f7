// Package faceproc implements the face processor: a single worker that
// executes kiosk commands one at a time against the biometric device and the
// faceprint datastore, and reports progress as feedback messages.
package faceproc

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3-muru/facial-rpi/internal/biometric"
	"github.com/m3-muru/facial-rpi/internal/datastore"
	"github.com/m3-muru/facial-rpi/internal/logger"
	"github.com/m3-muru/facial-rpi/internal/mailbox"
	"github.com/m3-muru/facial-rpi/internal/overlay"
	"github.com/m3-muru/facial-rpi/pkg/types"
)

// ErrQueueFull is returned by Submit when the command queue is at capacity
var ErrQueueFull = errors.New("faceproc: command queue full")

// Mode selects what the processor does at startup
type Mode int

const (
	ModeAuthenticate Mode = iota
	ModeEnroll
)

func (m Mode) String() string {
	if m == ModeEnroll {
		return "enroll"
	}
	return "auth"
}

// ParseMode accepts "auth"/"authentication" and "enroll"/"enrolment"
func ParseMode(s string) (Mode, error) {
	switch s {
	case "auth", "authenticate", "authentication":
		return ModeAuthenticate, nil
	case "enroll", "enrol", "enrollment", "enrolment":
		return ModeEnroll, nil
	default:
		return 0, fmt.Errorf("unknown face processor mode %q", s)
	}
}

// StartupError means the processor could not reach its datastore at startup
type StartupError struct {
	Mode Mode
	Err  error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("face processor startup (%s mode): %v", e.Mode, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// feedbackError carries the text shown to the user for a failed command
type feedbackError struct {
	text string
	err  error
}

func (e *feedbackError) Error() string { return fmt.Sprintf("%s: %v", e.text, e.err) }
func (e *feedbackError) Unwrap() error { return e.err }

// FeedbackSink receives every feedback message
type FeedbackSink interface {
	Send(msg types.FeedbackMessage)
}

// FeedbackFunc adapts a function to FeedbackSink
type FeedbackFunc func(msg types.FeedbackMessage)

func (fn FeedbackFunc) Send(msg types.FeedbackMessage) { fn(msg) }

// Publisher announces successful authentications to display terminals
type Publisher interface {
	PublishResult(employeeID string, attendance types.Attendance) bool
}

// Datastore is the remote faceprint store
type Datastore interface {
	Faceprints(ctx context.Context) ([]datastore.FaceprintRecord, error)
	AddFaceprint(ctx context.Context, rec datastore.FaceprintRecord) error
	Ping(ctx context.Context) error
}

// Reporter records authentication events with the monitoring service
type Reporter interface {
	ReportAuthEvent(ctx context.Context, employeeID, status string) error
}

// Config for the face processor
type Config struct {
	Mode          Mode
	QueueSize     int
	ReadyDelay    time.Duration // Pause after each command before "Ready"
	Greeting      bool          // Show the startup countdown in auth mode
	StartDelay    time.Duration
	CountdownStep time.Duration
	QuitDelay     time.Duration
	Threshold     int // Minimum accepted match score
	Attendance    types.Attendance
	PresencePoll  time.Duration
	DailyResync   string // "HH:MM", empty disables
	ResyncCheck   time.Duration
}

// DefaultConfig returns the kiosk defaults
func DefaultConfig() Config {
	return Config{
		Mode:          ModeAuthenticate,
		QueueSize:     16,
		ReadyDelay:    2500 * time.Millisecond,
		Greeting:      true,
		StartDelay:    5 * time.Second,
		CountdownStep: time.Second,
		QuitDelay:     400 * time.Millisecond,
		Threshold:     1000,
		Attendance:    types.AttendanceOut,
		PresencePoll:  500 * time.Millisecond,
		DailyResync:   "16:10",
		ResyncCheck:   30 * time.Second,
	}
}

// Deps are the collaborators of the processor. Publisher, Reporter,
// Readiness, Presence and OnCommand are optional.
type Deps struct {
	Device    biometric.Device
	Store     Datastore
	Overlay   *overlay.Overlay
	Feedback  FeedbackSink
	Publisher Publisher
	Reporter  Reporter
	Readiness *mailbox.Slot[bool]
	Presence  *mailbox.Slot[bool]
	Exit      func(code int)
	OnCommand func(name, outcome string)
}

// Status is a snapshot for the status API
type Status struct {
	Mode      string `json:"mode"`
	Ready     bool   `json:"ready"`
	Queued    int    `json:"queued"`
	Employees int    `json:"employees"`
	Templates int    `json:"templates"`
}

// Machine is the face processor. Commands are executed strictly one at a
// time in submission order by the loop goroutine.
type Machine struct {
	cfg       Config
	device    biometric.Device
	store     Datastore
	overlay   *overlay.Overlay
	feedback  FeedbackSink
	publisher Publisher
	reporter  Reporter
	readiness *mailbox.Slot[bool]
	presence  *mailbox.Slot[bool]
	exit      func(code int)
	onCommand func(name, outcome string)
	now       func() time.Time

	queue chan types.Command
	index atomic.Pointer[FaceprintIndex]
	ready atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a processor. Zero config fields take DefaultConfig values.
func New(cfg Config, deps Deps) *Machine {
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.PresencePoll <= 0 {
		cfg.PresencePoll = def.PresencePoll
	}
	if cfg.ResyncCheck <= 0 {
		cfg.ResyncCheck = def.ResyncCheck
	}
	if cfg.Attendance == 0 {
		cfg.Attendance = def.Attendance
	}
	if deps.Overlay == nil {
		deps.Overlay = overlay.New()
	}
	if deps.Feedback == nil {
		deps.Feedback = FeedbackFunc(func(types.FeedbackMessage) {})
	}
	if deps.Exit == nil {
		deps.Exit = func(int) {}
	}
	m := &Machine{
		cfg:       cfg,
		device:    deps.Device,
		store:     deps.Store,
		overlay:   deps.Overlay,
		feedback:  deps.Feedback,
		publisher: deps.Publisher,
		reporter:  deps.Reporter,
		readiness: deps.Readiness,
		presence:  deps.Presence,
		exit:      deps.Exit,
		onCommand: deps.OnCommand,
		now:       time.Now,
		queue:     make(chan types.Command, cfg.QueueSize),
	}
	m.index.Store(&FaceprintIndex{})
	return m
}

// Start checks the datastore for the configured mode, then runs the command
// loop and, in auth mode, the presence poller and the daily resync.
func (m *Machine) Start(ctx context.Context) error {
	switch m.cfg.Mode {
	case ModeAuthenticate:
		idx, err := m.loadIndex(ctx)
		if err != nil {
			return &StartupError{Mode: m.cfg.Mode, Err: err}
		}
		m.index.Store(idx)
	case ModeEnroll:
		if err := m.store.Ping(ctx); err != nil {
			return &StartupError{Mode: m.cfg.Mode, Err: fmt.Errorf("datastore unreachable: %w", err)}
		}
	}

	var at DailyTime
	scheduled := m.cfg.Mode == ModeAuthenticate && m.cfg.DailyResync != ""
	if scheduled {
		var err error
		if at, err = ParseDailyTime(m.cfg.DailyResync); err != nil {
			return &StartupError{Mode: m.cfg.Mode, Err: err}
		}
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go m.run(ctx)

	if m.cfg.Mode == ModeAuthenticate {
		if m.presence != nil {
			m.wg.Add(1)
			go m.runPresence(ctx)
		}
		if scheduled {
			m.wg.Add(1)
			go m.runScheduler(ctx, at)
		}
	}
	logger.Info("FaceSM", "Started in %s mode (%d employee(s) indexed)", m.cfg.Mode, m.index.Load().Len())
	return nil
}

// Stop cancels the loops and waits for them. An in-flight command sees a
// cancelled context.
func (m *Machine) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// Submit queues cmd without blocking
func (m *Machine) Submit(cmd types.Command) error {
	select {
	case m.queue <- cmd:
		logger.Debug("FaceSM", "Queued %s (%d waiting)", cmd.Name, len(m.queue))
		return nil
	default:
		return ErrQueueFull
	}
}

// Ready reports whether the processor is idle and accepting input
func (m *Machine) Ready() bool { return m.ready.Load() }

// Status returns a snapshot for the status API
func (m *Machine) Status() Status {
	idx := m.index.Load()
	return Status{
		Mode:      m.cfg.Mode.String(),
		Ready:     m.ready.Load(),
		Queued:    len(m.queue),
		Employees: idx.Len(),
		Templates: idx.Templates(),
	}
}

func (m *Machine) run(ctx context.Context) {
	defer m.wg.Done()

	if m.cfg.Mode == ModeAuthenticate && m.cfg.Greeting {
		if err := m.greet(ctx); err != nil {
			return
		}
		logger.Info("FaceSM", "Face processor started")
	}
	m.readyCycle(ctx, 0)

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-m.queue:
			m.setReady(false)
			m.dispatch(ctx, cmd)
			if ctx.Err() != nil {
				return
			}
			m.readyCycle(ctx, m.cfg.ReadyDelay)
		}
	}
}

// readyCycle shows the last result for delay, then clears the overlay and
// re-enables input.
func (m *Machine) readyCycle(ctx context.Context, delay time.Duration) {
	if err := sleep(ctx, delay); err != nil {
		return
	}
	m.overlay.Clear()
	m.send("Ready", types.StatusNone)
	m.setReady(true)
	logger.Info("FaceSM", "Face processor ready")
}

// dispatch runs one command. Handler errors and panics end here as a
// Rejected feedback message.
func (m *Machine) dispatch(ctx context.Context, cmd types.Command) {
	if cmd.Name == types.CommandUnknown {
		logger.Error("FaceSM", "Invoking command failed, no such command %q", cmd.Raw)
		m.recordCommand(cmd, "unknown")
		return
	}

	logger.Info("FaceSM", "Executing %s", cmd.Name)
	start := time.Now()
	err := m.execute(ctx, cmd)
	if err == nil {
		logger.Debug("FaceSM", "%s done in %s", cmd.Name, time.Since(start))
		m.recordCommand(cmd, "ok")
		return
	}

	logger.Error("FaceSM", "%s failed: %v", cmd.Name, err)
	m.recordCommand(cmd, "error")
	text := fmt.Sprintf("%s failed, please try again", cmd.Name)
	var fe *feedbackError
	if errors.As(err, &fe) {
		text = fe.text
	}
	m.send(text, types.StatusRejected)
}

func (m *Machine) execute(ctx context.Context, cmd types.Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	switch cmd.Name {
	case types.CommandAuthenticate:
		return m.authenticate(ctx)
	case types.CommandEnroll:
		return m.enroll(ctx, cmd.EmployeeID)
	case types.CommandResync:
		return m.resync(ctx)
	case types.CommandRemoveAll:
		return m.removeAll(ctx)
	case types.CommandQuit:
		return m.quit(ctx)
	default:
		return fmt.Errorf("unhandled command %s", cmd.Name)
	}
}

func (m *Machine) recordCommand(cmd types.Command, outcome string) {
	if m.onCommand != nil {
		m.onCommand(cmd.Name.String(), outcome)
	}
}

func (m *Machine) setReady(v bool) {
	m.ready.Store(v)
	m.publishReadiness(v)
}

func (m *Machine) publishReadiness(v bool) {
	if m.readiness != nil {
		m.readiness.Publish(v)
	}
}

func (m *Machine) send(text string, status types.Status) {
	m.feedback.Send(types.FeedbackMessage{Text: text, Status: status, Time: m.now()})
}

func (m *Machine) loadIndex(ctx context.Context) (*FaceprintIndex, error) {
	records, err := m.store.Faceprints(ctx)
	if err != nil {
		return nil, fmt.Errorf("load faceprints: %w", err)
	}
	idx := BuildIndex(records)
	logger.Info("FaceSM", "Loaded %d faceprint(s) for %d employee(s)", idx.Templates(), idx.Len())
	return idx, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
