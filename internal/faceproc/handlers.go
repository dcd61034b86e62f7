package faceproc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/m3-muru/facial-rpi/internal/biometric"
	"github.com/m3-muru/facial-rpi/internal/datastore"
	"github.com/m3-muru/facial-rpi/internal/logger"
	"github.com/m3-muru/facial-rpi/pkg/types"
)

const (
	msgNoFaceprints = "No faceprints in sys. Pls Enroll an employee or Resync"
	msgNoMatch      = "#8: Forbidden: No matching user found"
	msgSpoofCheck   = "Checking detected Face for spoof attacks..."
)

var errNoResult = errors.New("device returned no result")

// greet shows the startup warning and countdown
func (m *Machine) greet(ctx context.Context) error {
	m.send("Warning: Please step back ⏳", types.StatusRejected)
	if err := sleep(ctx, m.cfg.StartDelay); err != nil {
		return err
	}
	m.send("Face Authentication Begins in 5 Seconds", types.StatusRejected)
	if err := sleep(ctx, 2*time.Second); err != nil {
		return err
	}
	for left := 5; left > 0; left-- {
		m.send(fmt.Sprintf("%d", left), types.StatusAccepted)
		if err := sleep(ctx, m.cfg.CountdownStep); err != nil {
			return err
		}
	}
	m.send("Authentication Begins", types.StatusAccepted)
	return nil
}

// openSession acquires the device and applies the kiosk configuration.
// The caller must Close the session.
func (m *Machine) openSession(ctx context.Context) (biometric.Session, error) {
	sess, err := m.device.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire device: %w", err)
	}
	cfg := biometric.DefaultDeviceConfig()
	if err := sess.Configure(cfg); err != nil {
		closeSession(sess)
		return nil, fmt.Errorf("configure device: %w", err)
	}
	logger.Debug("FaceSM", "Device configured: %s", cfg)
	return sess, nil
}

func closeSession(sess biometric.Session) {
	if err := sess.Close(); err != nil {
		logger.Warn("FaceSM", "Closing device session: %v", err)
	}
}

func (m *Machine) onFaces(faces []types.Rect) {
	m.overlay.SetPending(faces)
	logger.Debug("FaceSM", "Detections queued: %d pending", len(faces))
}

func (m *Machine) onHint(hint biometric.Status) {
	m.send(msgSpoofCheck, types.StatusNone)
	if !hint.OK() {
		m.send(hint.Describe(), types.StatusNone)
	}
	logger.Debug("FaceSM", "Detected face status: %s", hint)
}

// resolve sets the outcome on the overlay and shows text with the same status
func (m *Machine) resolve(status types.Status, text string) {
	m.overlay.Resolve(status)
	m.send(text, status)
}

func (m *Machine) authenticate(ctx context.Context) error {
	idx := m.index.Load()
	if idx.Len() == 0 {
		logger.Info("FaceSM", "No faceprints in index, enroll an employee or resync")
		m.send(msgNoFaceprints, types.StatusRejected)
		return nil
	}

	sess, err := m.openSession(ctx)
	if err != nil {
		return err
	}
	defer closeSession(sess)

	var (
		status biometric.AuthStatus
		probe  biometric.Extracted
		got    bool
	)
	err = sess.ExtractForAuth(ctx, biometric.AuthCallbacks{
		OnFaces: m.onFaces,
		OnHint:  func(h biometric.AuthStatus) { m.onHint(h) },
		OnResult: func(s biometric.AuthStatus, p biometric.Extracted) {
			status, probe, got = s, p, true
		},
	})
	if err != nil {
		return fmt.Errorf("extract faceprints for auth: %w", err)
	}
	if !got {
		return errNoResult
	}

	logger.Info("FaceSM", "Final result for detected face: %s", status)
	if !status.OK() {
		m.resolve(types.StatusRejected, status.Describe())
		return nil
	}

	m.send("Authenticating..", types.StatusNone)
	candidate, ok := SelectCandidate(sess, idx, probe.AsFaceprint(), m.cfg.Threshold)
	if !ok {
		logger.Info("FaceSM", "No matching user found")
		m.resolve(types.StatusRejected, msgNoMatch)
		return nil
	}

	logger.Info("FaceSM", "Success, matched user %q, score %d", candidate.EmployeeID, candidate.Score)
	m.resolve(types.StatusAccepted, candidate.EmployeeID)
	if m.publisher != nil {
		m.publisher.PublishResult(candidate.EmployeeID, m.cfg.Attendance)
	}
	m.reportAuth(ctx, candidate.EmployeeID)
	return nil
}

// reportAuth sends the event in the background so a slow monitoring
// service does not hold up the kiosk.
func (m *Machine) reportAuth(ctx context.Context, employeeID string) {
	if m.reporter == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.reporter.ReportAuthEvent(ctx, employeeID, "success"); err != nil {
			logger.Warn("FaceSM", "Auth event for %s not reported: %v", employeeID, err)
		}
	}()
}

func (m *Machine) enroll(ctx context.Context, employeeID string) error {
	if employeeID == "" {
		employeeID = fmt.Sprintf("user_%d", m.now().Unix()/1000)
	}
	logger.Info("FaceSM", "Face enrolment triggered for %s", employeeID)

	sess, err := m.openSession(ctx)
	if err != nil {
		return err
	}
	defer closeSession(sess)

	m.send("Enrolling...", types.StatusNone)

	var (
		status    biometric.EnrollStatus
		extracted biometric.Extracted
		got       bool
	)
	err = sess.ExtractForEnroll(ctx, employeeID, biometric.EnrollCallbacks{
		OnFaces: m.onFaces,
		OnHint:  func(h biometric.EnrollStatus) { m.onHint(h) },
		OnProgress: func(p int) {
			m.send(fmt.Sprintf("On progress %d", p), types.StatusNone)
		},
		OnResult: func(s biometric.EnrollStatus, e biometric.Extracted) {
			status, extracted, got = s, e, true
		},
	})
	if err != nil {
		return fmt.Errorf("extract faceprints for enroll: %w", err)
	}
	if !got {
		return errNoResult
	}

	logger.Info("FaceSM", "Final result for enrolment of %s: %s", employeeID, status)
	if !status.OK() {
		m.resolve(types.StatusRejected, status.Describe())
		return nil
	}

	m.resolve(types.StatusAccepted, fmt.Sprintf("%s, Employee ID: %s", status.Describe(), employeeID))

	rec := datastore.FaceprintRecord{
		EmployeeID: employeeID,
		Faceprint: biometric.Faceprint{
			Version:                    extracted.Version,
			FeaturesType:               extracted.FeaturesType,
			Flags:                      extracted.Flags,
			AdaptiveDescriptorNoMask:   extracted.Features,
			AdaptiveDescriptorWithMask: make([]int, biometric.DescriptorSize),
			EnrollDescriptor:           extracted.Features,
		},
	}
	if err := m.store.AddFaceprint(ctx, rec); err != nil {
		m.overlay.Restatus(types.StatusAccepted, types.StatusRejected)
		return &feedbackError{
			text: fmt.Sprintf("Saving faceprint failed, Employee ID: %s", employeeID),
			err:  fmt.Errorf("add faceprint: %w", err),
		}
	}
	return nil
}

func (m *Machine) resync(ctx context.Context) error {
	m.send("Resyncing..", types.StatusNone)
	idx, err := m.loadIndex(ctx)
	if err != nil {
		return &feedbackError{text: "Resync Failed", err: err}
	}
	m.index.Store(idx)
	m.send(fmt.Sprintf("Resync Success: %d employee(s)", idx.Len()), types.StatusNone)
	return nil
}

func (m *Machine) removeAll(ctx context.Context) error {
	sess, err := m.openSession(ctx)
	if err != nil {
		return &feedbackError{text: "Remove Failed", err: err}
	}
	defer closeSession(sess)

	m.send("Remove..", types.StatusNone)
	if err := sess.RemoveAllUsers(ctx); err != nil {
		return &feedbackError{text: "Remove Failed", err: fmt.Errorf("remove all users: %w", err)}
	}
	m.send("Remove Success", types.StatusNone)
	return nil
}

func (m *Machine) quit(ctx context.Context) error {
	logger.Info("FaceSM", "Application exiting")
	m.send("Bye.. :)", types.StatusNone)
	_ = sleep(ctx, m.cfg.QuitDelay)
	m.exit(0)
	return nil
}
