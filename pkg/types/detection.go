package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the processing state of a detected face
type Status int

const (
	StatusNone Status = iota
	StatusPending
	StatusAccepted
	StatusRejected
)

// String returns the lower-case status name ("" for StatusNone)
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAccepted:
		return "accepted"
	case StatusRejected:
		return "rejected"
	default:
		return ""
	}
}

// MarshalJSON encodes StatusNone as null
func (s Status) MarshalJSON() ([]byte, error) {
	if s == StatusNone {
		return []byte("null"), nil
	}
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts the names produced by MarshalJSON
func (s *Status) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = StatusNone
		return nil
	}
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch strings.ToLower(name) {
	case "pending":
		*s = StatusPending
	case "accepted":
		*s = StatusAccepted
	case "rejected":
		*s = StatusRejected
	case "":
		*s = StatusNone
	default:
		return fmt.Errorf("unknown status %q", name)
	}
	return nil
}

// Rect is a face region in sensor coordinates
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// DetectionRecord pairs a detected face with its processing status
type DetectionRecord struct {
	Face   Rect   `json:"face"`
	Status Status `json:"status"`
}

// FeedbackMessage is a human-facing status line
type FeedbackMessage struct {
	Text   string    `json:"msg"`
	Status Status    `json:"status"`
	Time   time.Time `json:"time"`
}

// Attendance is the check-in direction reported to display terminals
type Attendance int

const (
	AttendanceIn  Attendance = 1
	AttendanceOut Attendance = 2
)

// ParseAttendance accepts "in"/"out" (case-insensitive); anything else is OUT
func ParseAttendance(s string) Attendance {
	if strings.EqualFold(strings.TrimSpace(s), "in") {
		return AttendanceIn
	}
	return AttendanceOut
}

func (a Attendance) String() string {
	if a == AttendanceIn {
		return "IN"
	}
	return "OUT"
}
