package biometric

import "fmt"

// Status is implemented by AuthStatus and EnrollStatus.
type Status interface {
	fmt.Stringer
	// Describe returns the operator-facing text for the status
	Describe() string
	// OK reports whether the status is the success value
	OK() bool
}

// AuthStatus is the outcome (or hint) of an authentication extraction
type AuthStatus int

const (
	AuthSuccess AuthStatus = iota
	AuthNoFaceDetected
	AuthFaceDetected
	AuthLedFlowSuccess
	AuthFaceIsTooFarToTheTop
	AuthFaceIsTooFarToTheBottom
	AuthFaceIsTooFarToTheRight
	AuthFaceIsTooFarToTheLeft
	AuthFaceTiltIsTooUp
	AuthFaceTiltIsTooDown
	AuthFaceTiltIsTooRight
	AuthFaceTiltIsTooLeft
	AuthCameraStarted
	AuthCameraStopped
	AuthMaskDetectedInHighSecurity
	AuthSpoof
	AuthForbidden
	AuthDeviceError
	AuthFailure
	AuthSerialOk
	AuthSerialError
	AuthSerialSecurityError
	AuthVersionMismatch
	AuthCrcError
)

type statusText struct {
	name string
	text string
}

var authStatusText = map[AuthStatus]statusText{
	AuthSuccess:                    {"Success", "Authentication successful"},
	AuthNoFaceDetected:             {"NoFaceDetected", "No Face Detected"},
	AuthFaceDetected:               {"FaceDetected", "Face Detected"},
	AuthLedFlowSuccess:             {"LedFlowSuccess", "Led Flow Success"},
	AuthFaceIsTooFarToTheTop:       {"FaceIsTooFarToTheTop", "Face Is Too Far To The Top"},
	AuthFaceIsTooFarToTheBottom:    {"FaceIsTooFarToTheBottom", "Face Is Too Far To The Bottom"},
	AuthFaceIsTooFarToTheRight:     {"FaceIsTooFarToTheRight", "Face Is Too Far To The Right"},
	AuthFaceIsTooFarToTheLeft:      {"FaceIsTooFarToTheLeft", "Face Is Too Far To The Left"},
	AuthFaceTiltIsTooUp:            {"FaceTiltIsTooUp", "Face Tilt Is Too Up"},
	AuthFaceTiltIsTooDown:          {"FaceTiltIsTooDown", "Face Tilt Is Too Down"},
	AuthFaceTiltIsTooRight:         {"FaceTiltIsTooRight", "Face Tilt Is Too Right"},
	AuthFaceTiltIsTooLeft:          {"FaceTiltIsTooLeft", "Face Tilt Is Too Left"},
	AuthCameraStarted:              {"CameraStarted", "Camera Started"},
	AuthCameraStopped:              {"CameraStopped", "Camera Stopped"},
	AuthMaskDetectedInHighSecurity: {"MaskDetectedInHighSecurity", "Mask Detected In High Security"},
	AuthSpoof:                      {"Spoof", "Spoof Detected"},
	AuthForbidden:                  {"Forbidden", "Forbidden"},
	AuthDeviceError:                {"DeviceError", "Device Error"},
	AuthFailure:                    {"Failure", "Failure"},
	AuthSerialOk:                   {"SerialOk", "Serial Ok"},
	AuthSerialError:                {"SerialError", "Serial Error"},
	AuthSerialSecurityError:        {"SerialSecurityError", "Serial Security Error"},
	AuthVersionMismatch:            {"VersionMismatch", "Version Mismatch"},
	AuthCrcError:                   {"CrcError", "Crc Error"},
}

func (s AuthStatus) String() string {
	if t, ok := authStatusText[s]; ok {
		return "AuthenticateStatus." + t.name
	}
	return fmt.Sprintf("AuthenticateStatus(%d)", int(s))
}

func (s AuthStatus) Describe() string {
	if t, ok := authStatusText[s]; ok {
		return t.text
	}
	return s.String()
}

func (s AuthStatus) OK() bool { return s == AuthSuccess }

// EnrollStatus is the outcome (or hint) of an enrollment extraction
type EnrollStatus int

const (
	EnrollSuccess EnrollStatus = iota
	EnrollNoFaceDetected
	EnrollFaceDetected
	EnrollLedFlowSuccess
	EnrollFaceIsTooFarToTheTop
	EnrollFaceIsTooFarToTheBottom
	EnrollFaceIsTooFarToTheRight
	EnrollFaceIsTooFarToTheLeft
	EnrollFaceTiltIsTooUp
	EnrollFaceTiltIsTooDown
	EnrollFaceTiltIsTooRight
	EnrollFaceTiltIsTooLeft
	EnrollFaceIsNotFrontal
	EnrollCameraStarted
	EnrollCameraStopped
	EnrollMultipleFacesDetected
	EnrollFailure
	EnrollDeviceError
	EnrollWithMaskIsForbidden
	EnrollSpoof
	EnrollSerialOk
	EnrollSerialError
	EnrollSerialSecurityError
	EnrollVersionMismatch
	EnrollCrcError
)

var enrollStatusText = map[EnrollStatus]statusText{
	EnrollSuccess:                 {"Success", "Enrollment successful"},
	EnrollNoFaceDetected:          {"NoFaceDetected", "No Face Detected"},
	EnrollFaceDetected:            {"FaceDetected", "Face Detected"},
	EnrollLedFlowSuccess:          {"LedFlowSuccess", "Led Flow Success"},
	EnrollFaceIsTooFarToTheTop:    {"FaceIsTooFarToTheTop", "Face Is Too Far To The Top"},
	EnrollFaceIsTooFarToTheBottom: {"FaceIsTooFarToTheBottom", "Face Is Too Far To The Bottom"},
	EnrollFaceIsTooFarToTheRight:  {"FaceIsTooFarToTheRight", "Face Is Too Far To The Right"},
	EnrollFaceIsTooFarToTheLeft:   {"FaceIsTooFarToTheLeft", "Face Is Too Far To The Left"},
	EnrollFaceTiltIsTooUp:         {"FaceTiltIsTooUp", "Face Tilt Is Too Up"},
	EnrollFaceTiltIsTooDown:       {"FaceTiltIsTooDown", "Face Tilt Is Too Down"},
	EnrollFaceTiltIsTooRight:      {"FaceTiltIsTooRight", "Face Tilt Is Too Right"},
	EnrollFaceTiltIsTooLeft:       {"FaceTiltIsTooLeft", "Face Tilt Is Too Left"},
	EnrollFaceIsNotFrontal:        {"FaceIsNotFrontal", "Face Is Not Frontal"},
	EnrollCameraStarted:           {"CameraStarted", "Camera Started"},
	EnrollCameraStopped:           {"CameraStopped", "Camera Stopped"},
	EnrollMultipleFacesDetected:   {"MultipleFacesDetected", "Multiple Faces Detected"},
	EnrollFailure:                 {"Failure", "Enrollment Failure"},
	EnrollDeviceError:             {"DeviceError", "Device Error"},
	EnrollWithMaskIsForbidden:     {"EnrollWithMaskIsForbidden", "Enroll With Mask Is Forbidden"},
	EnrollSpoof:                   {"Spoof", "Spoof Detected"},
	EnrollSerialOk:                {"SerialOk", "Serial Ok"},
	EnrollSerialError:             {"SerialError", "Serial Error"},
	EnrollSerialSecurityError:     {"SerialSecurityError", "Serial Security Error"},
	EnrollVersionMismatch:         {"VersionMismatch", "Version Mismatch"},
	EnrollCrcError:                {"CrcError", "Crc Error"},
}

func (s EnrollStatus) String() string {
	if t, ok := enrollStatusText[s]; ok {
		return "EnrollStatus." + t.name
	}
	return fmt.Sprintf("EnrollStatus(%d)", int(s))
}

func (s EnrollStatus) Describe() string {
	if t, ok := enrollStatusText[s]; ok {
		return t.text
	}
	return s.String()
}

func (s EnrollStatus) OK() bool { return s == EnrollSuccess }
