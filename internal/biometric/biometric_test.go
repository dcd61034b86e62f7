package biometric

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusText(t *testing.T) {
	assert.Equal(t, "AuthenticateStatus.Spoof", AuthSpoof.String())
	assert.Equal(t, "Spoof Detected", AuthSpoof.Describe())
	assert.Equal(t, "Forbidden", AuthForbidden.Describe())
	assert.Equal(t, "No Face Detected", AuthNoFaceDetected.Describe())
	assert.Equal(t, "Authentication successful", AuthSuccess.Describe())
	assert.True(t, AuthSuccess.OK())
	assert.False(t, AuthFaceDetected.OK())

	assert.Equal(t, "EnrollStatus.Success", EnrollSuccess.String())
	assert.Equal(t, "Enrollment successful", EnrollSuccess.Describe())
	assert.Equal(t, "Enrollment Failure", EnrollFailure.Describe())
	assert.Equal(t, "Enroll With Mask Is Forbidden", EnrollWithMaskIsForbidden.Describe())

	unknown := AuthStatus(999)
	assert.Equal(t, unknown.String(), unknown.Describe())
}

func TestDefaultDeviceConfig(t *testing.T) {
	cfg := DefaultDeviceConfig()
	assert.Equal(t, Rotation0, cfg.Rotation)
	assert.Equal(t, SecurityMedium, cfg.Security)
	assert.Equal(t, AlgoFlowAll, cfg.AlgoFlow)
	assert.Equal(t, FaceSelectionSingle, cfg.FaceSelection)
}

func TestSimulatorExclusiveSessions(t *testing.T) {
	sim := NewSimulator(0)
	first, err := sim.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = sim.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, first.Close())
	assert.ErrorIs(t, first.Close(), ErrSessionClosed)
	assert.ErrorIs(t, first.Configure(DefaultDeviceConfig()), ErrSessionClosed)

	second, err := sim.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, second.Close())

	stats := sim.Stats()
	assert.Equal(t, 2, stats.Acquired)
	assert.Equal(t, 2, stats.Released)
}

func TestSimulatorEnrollThenAuthenticate(t *testing.T) {
	sim := NewSimulator(0)
	ctx := context.Background()

	sess, err := sim.Acquire(ctx)
	require.NoError(t, err)
	var enrolled Extracted
	var progress []int
	require.NoError(t, sess.ExtractForEnroll(ctx, "E123", EnrollCallbacks{
		OnProgress: func(p int) { progress = append(progress, p) },
		OnResult: func(status EnrollStatus, ex Extracted) {
			assert.Equal(t, EnrollSuccess, status)
			enrolled = ex
		},
	}))
	assert.Equal(t, []int{0}, progress)
	assert.Equal(t, FeaturesFor("E123"), enrolled.Features)
	assert.Len(t, enrolled.Features, DescriptorSize)

	var gotStatus AuthStatus = -1
	var probe Extracted
	require.NoError(t, sess.ExtractForAuth(ctx, AuthCallbacks{
		OnResult: func(status AuthStatus, p Extracted) {
			gotStatus = status
			probe = p
		},
	}))
	assert.Equal(t, AuthSuccess, gotStatus)

	stored := Faceprint{EnrollDescriptor: enrolled.Features}
	outcome, err := sess.Match(probe.AsFaceprint(), stored)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, 10000, outcome.Score)

	other := Faceprint{EnrollDescriptor: FeaturesFor("E999")}
	outcome, err = sess.Match(probe.AsFaceprint(), other)
	require.NoError(t, err)
	assert.Less(t, outcome.Score, 5000)
	require.NoError(t, sess.Close())
}

func TestSimulatorScriptedAuth(t *testing.T) {
	sim := NewSimulator(0)
	sim.QueueAuth(AuthScript{Hints: []AuthStatus{AuthFaceTiltIsTooUp}, Status: AuthSpoof})

	sess, err := sim.Acquire(context.Background())
	require.NoError(t, err)
	defer sess.Close()

	var hints []AuthStatus
	var status AuthStatus
	require.NoError(t, sess.ExtractForAuth(context.Background(), AuthCallbacks{
		OnHint:   func(h AuthStatus) { hints = append(hints, h) },
		OnResult: func(s AuthStatus, _ Extracted) { status = s },
	}))
	assert.Equal(t, []AuthStatus{AuthFaceTiltIsTooUp}, hints)
	assert.Equal(t, AuthSpoof, status)
}

func TestSimulatorRemoveAllUsers(t *testing.T) {
	sim := NewSimulator(0)
	sess, err := sim.Acquire(context.Background())
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.RemoveAllUsers(context.Background()))
	require.NoError(t, sess.RemoveAllUsers(context.Background()))

	sim.SetRemoveError(errors.New("usb reset"))
	assert.Error(t, sess.RemoveAllUsers(context.Background()))
	assert.Equal(t, 3, sim.Stats().RemoveCalls)
}
