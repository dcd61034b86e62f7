package biometric

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/m3-muru/facial-rpi/internal/logger"
	"github.com/m3-muru/facial-rpi/pkg/types"
)

// AuthScript is one scripted authentication attempt
type AuthScript struct {
	Faces  []types.Rect
	Hints  []AuthStatus
	Status AuthStatus
	Probe  Extracted
	Err    error // returned by ExtractForAuth instead of calling OnResult
}

// EnrollScript is one scripted enrollment attempt
type EnrollScript struct {
	Faces    []types.Rect
	Hints    []EnrollStatus
	Progress []int
	Status   EnrollStatus
	Err      error
}

// MatchFunc scores a probe against a stored template
type MatchFunc func(probe, stored Faceprint) (MatchOutcome, error)

// Simulator is an in-process Device driven by scripts. When no auth script is
// queued it presents the most recently enrolled face, so enroll followed by
// resync and authenticate succeeds end to end.
type Simulator struct {
	sem chan struct{}

	mu          sync.Mutex
	authQueue   []AuthScript
	enrollQueue []EnrollScript
	match       MatchFunc
	removeErr   error
	acquireErr  error
	step        time.Duration
	lastEnroll  *Extracted
	users       int
	configs     []DeviceConfig
	acquired    int
	released    int
	removeCalls int
}

// NewSimulator returns an idle simulator using DescriptorMatch.
// step is the pause between scripted callbacks.
func NewSimulator(step time.Duration) *Simulator {
	return &Simulator{
		sem:   make(chan struct{}, 1),
		match: DescriptorMatch,
		step:  step,
	}
}

// QueueAuth appends scripted authentication attempts
func (s *Simulator) QueueAuth(scripts ...AuthScript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authQueue = append(s.authQueue, scripts...)
}

// QueueEnroll appends scripted enrollment attempts
func (s *Simulator) QueueEnroll(scripts ...EnrollScript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollQueue = append(s.enrollQueue, scripts...)
}

// SetMatcher replaces the scoring function
func (s *Simulator) SetMatcher(fn MatchFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.match = fn
}

// SetRemoveError makes RemoveAllUsers fail with err (nil restores success)
func (s *Simulator) SetRemoveError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeErr = err
}

// SetAcquireError makes Acquire fail with err (nil restores success)
func (s *Simulator) SetAcquireError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquireErr = err
}

// SimulatorStats is a snapshot of simulator counters
type SimulatorStats struct {
	Acquired    int
	Released    int
	RemoveCalls int
	Users       int
	Configs     []DeviceConfig
}

// Stats returns counters for assertions
func (s *Simulator) Stats() SimulatorStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	configs := make([]DeviceConfig, len(s.configs))
	copy(configs, s.configs)
	return SimulatorStats{
		Acquired:    s.acquired,
		Released:    s.released,
		RemoveCalls: s.removeCalls,
		Users:       s.users,
		Configs:     configs,
	}
}

// Acquire blocks until the device is free or ctx is done
func (s *Simulator) Acquire(ctx context.Context) (Session, error) {
	s.mu.Lock()
	err := s.acquireErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.Lock()
	s.acquired++
	s.mu.Unlock()
	return &simSession{sim: s}, nil
}

// FeaturesFor derives a stable descriptor for an employee id
func FeaturesFor(employeeID string) []int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(employeeID))
	seed := h.Sum64()

	features := make([]int, DescriptorSize)
	for i := range features {
		// xorshift
		seed ^= seed << 13
		seed ^= seed >> 7
		seed ^= seed << 17
		features[i] = int(seed%255) - 127
	}
	return features
}

// DescriptorMatch scores the share of equal enroll descriptor positions (0-10000)
func DescriptorMatch(probe, stored Faceprint) (MatchOutcome, error) {
	a, b := probe.EnrollDescriptor, stored.EnrollDescriptor
	if len(a) == 0 || len(a) != len(b) {
		return MatchOutcome{}, nil
	}
	equal := 0
	for i := range a {
		if a[i] == b[i] {
			equal++
		}
	}
	return MatchOutcome{Success: true, Score: equal * 10000 / len(a)}, nil
}

type simSession struct {
	sim    *Simulator
	once   sync.Once
	closed bool
	mu     sync.Mutex
}

func (ss *simSession) active() error {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.closed {
		return ErrSessionClosed
	}
	return nil
}

func (ss *simSession) pause(ctx context.Context) error {
	if ss.sim.step <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(ss.sim.step)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (ss *simSession) Configure(cfg DeviceConfig) error {
	if err := ss.active(); err != nil {
		return err
	}
	ss.sim.mu.Lock()
	ss.sim.configs = append(ss.sim.configs, cfg)
	ss.sim.mu.Unlock()
	logger.Debug("Simulator", "Device config applied: %s", cfg)
	return nil
}

func (ss *simSession) nextAuth() AuthScript {
	s := ss.sim
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.authQueue) > 0 {
		script := s.authQueue[0]
		s.authQueue = s.authQueue[1:]
		return script
	}
	if s.lastEnroll == nil {
		return AuthScript{
			Faces:  []types.Rect{{X: 390, Y: 700, W: 300, H: 400}},
			Status: AuthForbidden,
		}
	}
	return AuthScript{
		Faces:  []types.Rect{{X: 390, Y: 700, W: 300, H: 400}},
		Hints:  []AuthStatus{AuthFaceDetected},
		Status: AuthSuccess,
		Probe:  *s.lastEnroll,
	}
}

func (ss *simSession) ExtractForAuth(ctx context.Context, cb AuthCallbacks) error {
	if err := ss.active(); err != nil {
		return err
	}
	script := ss.nextAuth()

	if cb.OnFaces != nil && len(script.Faces) > 0 {
		cb.OnFaces(script.Faces)
	}
	for _, hint := range script.Hints {
		if err := ss.pause(ctx); err != nil {
			return err
		}
		if cb.OnHint != nil {
			cb.OnHint(hint)
		}
	}
	if err := ss.pause(ctx); err != nil {
		return err
	}
	if script.Err != nil {
		return script.Err
	}
	if cb.OnResult != nil {
		cb.OnResult(script.Status, script.Probe)
	}
	return nil
}

func (ss *simSession) ExtractForEnroll(ctx context.Context, employeeID string, cb EnrollCallbacks) error {
	if err := ss.active(); err != nil {
		return err
	}

	s := ss.sim
	s.mu.Lock()
	script := EnrollScript{
		Faces:    []types.Rect{{X: 390, Y: 700, W: 300, H: 400}},
		Progress: []int{0},
		Status:   EnrollSuccess,
	}
	if len(s.enrollQueue) > 0 {
		script = s.enrollQueue[0]
		s.enrollQueue = s.enrollQueue[1:]
	}
	s.mu.Unlock()

	if cb.OnFaces != nil && len(script.Faces) > 0 {
		cb.OnFaces(script.Faces)
	}
	for _, hint := range script.Hints {
		if err := ss.pause(ctx); err != nil {
			return err
		}
		if cb.OnHint != nil {
			cb.OnHint(hint)
		}
	}
	for _, p := range script.Progress {
		if err := ss.pause(ctx); err != nil {
			return err
		}
		if cb.OnProgress != nil {
			cb.OnProgress(p)
		}
	}
	if script.Err != nil {
		return script.Err
	}

	var extracted Extracted
	if script.Status.OK() {
		extracted = Extracted{Version: 7, FeaturesType: 0, Flags: 0, Features: FeaturesFor(employeeID)}
		s.mu.Lock()
		s.lastEnroll = &extracted
		s.users++
		s.mu.Unlock()
	}
	if cb.OnResult != nil {
		cb.OnResult(script.Status, extracted)
	}
	return nil
}

func (ss *simSession) Match(probe, stored Faceprint) (MatchOutcome, error) {
	if err := ss.active(); err != nil {
		return MatchOutcome{}, err
	}
	ss.sim.mu.Lock()
	fn := ss.sim.match
	ss.sim.mu.Unlock()
	return fn(probe, stored)
}

func (ss *simSession) RemoveAllUsers(ctx context.Context) error {
	if err := ss.active(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s := ss.sim
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeCalls++
	if s.removeErr != nil {
		return s.removeErr
	}
	s.users = 0
	s.lastEnroll = nil
	return nil
}

func (ss *simSession) Close() error {
	closed := false
	ss.once.Do(func() {
		ss.mu.Lock()
		ss.closed = true
		ss.mu.Unlock()

		ss.sim.mu.Lock()
		ss.sim.released++
		ss.sim.mu.Unlock()
		<-ss.sim.sem
		closed = true
	})
	if !closed {
		return ErrSessionClosed
	}
	return nil
}
