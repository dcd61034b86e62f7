// Package biometric defines the boundary to the face authentication device.
//
// The device SDK performs feature extraction, liveness checks and template
// scoring; this package only describes the calls the kiosk makes and carries
// an in-process Simulator for tests and development runs.
package biometric

import (
	"context"
	"errors"
	"fmt"

	"github.com/m3-muru/facial-rpi/pkg/types"
)

// DescriptorSize is the length of a feature descriptor
const DescriptorSize = 259

// ErrSessionClosed is returned by calls on a released session
var ErrSessionClosed = errors.New("biometric: session closed")

// Faceprint is a stored biometric template. The contents are opaque to the kiosk.
type Faceprint struct {
	Version                    int   `json:"version"`
	FeaturesType               int   `json:"features_type"`
	Flags                      int   `json:"flags"`
	AdaptiveDescriptorNoMask   []int `json:"adaptive_descriptor_nomask"`
	AdaptiveDescriptorWithMask []int `json:"adaptive_descriptor_withmask"`
	EnrollDescriptor           []int `json:"enroll_descriptor"`
}

// Extracted is the template produced by an extraction
type Extracted struct {
	Version      int
	FeaturesType int
	Flags        int
	Features     []int
}

// AsFaceprint converts an auth probe into the stored template shape used for matching
func (e Extracted) AsFaceprint() Faceprint {
	return Faceprint{
		Version:                  e.Version,
		FeaturesType:             e.FeaturesType,
		Flags:                    e.Flags,
		AdaptiveDescriptorNoMask: e.Features,
		EnrollDescriptor:         e.Features,
	}
}

// MatchOutcome is the device's verdict on one probe/template pair
type MatchOutcome struct {
	Success bool
	Score   int
}

// CameraRotation of the sensor
type CameraRotation int

const (
	Rotation0 CameraRotation = iota
	Rotation180
)

// SecurityLevel of the liveness check
type SecurityLevel int

const (
	SecurityHigh SecurityLevel = iota
	SecurityMedium
	SecurityLow
)

// AlgoFlow selects which algorithms run during extraction
type AlgoFlow int

const (
	AlgoFlowAll AlgoFlow = iota
	AlgoFlowFaceDetectionOnly
	AlgoFlowSpoofOnly
	AlgoFlowRecognitionOnly
)

// FaceSelectionPolicy selects how many faces are processed per frame
type FaceSelectionPolicy int

const (
	FaceSelectionSingle FaceSelectionPolicy = iota
	FaceSelectionAll
)

// DeviceConfig is applied before each extraction
type DeviceConfig struct {
	Rotation      CameraRotation
	Security      SecurityLevel
	AlgoFlow      AlgoFlow
	FaceSelection FaceSelectionPolicy
}

// DefaultDeviceConfig returns the configuration used for every operation
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		Rotation:      Rotation0,
		Security:      SecurityMedium,
		AlgoFlow:      AlgoFlowAll,
		FaceSelection: FaceSelectionSingle,
	}
}

func (c DeviceConfig) String() string {
	return fmt.Sprintf("rotation=%d security=%d algo_flow=%d face_selection=%d",
		c.Rotation, c.Security, c.AlgoFlow, c.FaceSelection)
}

// AuthCallbacks receive events during ExtractForAuth. Any may be nil.
type AuthCallbacks struct {
	OnFaces  func(faces []types.Rect)
	OnHint   func(hint AuthStatus)
	OnResult func(status AuthStatus, probe Extracted)
}

// EnrollCallbacks receive events during ExtractForEnroll. Any may be nil.
type EnrollCallbacks struct {
	OnFaces    func(faces []types.Rect)
	OnHint     func(hint EnrollStatus)
	OnProgress func(pose int)
	OnResult   func(status EnrollStatus, extracted Extracted)
}

// Device hands out exclusive sessions
type Device interface {
	Acquire(ctx context.Context) (Session, error)
}

// Session is an exclusive handle on the device. Close releases it.
type Session interface {
	Configure(cfg DeviceConfig) error
	ExtractForAuth(ctx context.Context, cb AuthCallbacks) error
	ExtractForEnroll(ctx context.Context, employeeID string, cb EnrollCallbacks) error
	Match(probe, stored Faceprint) (MatchOutcome, error)
	RemoveAllUsers(ctx context.Context) error
	Close() error
}
