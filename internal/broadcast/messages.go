package broadcast

import "github.com/m3-muru/facial-rpi/pkg/types"

// Message types understood by display terminals
const (
	TypeResult = "result"
	TypePing   = "ping"
)

// DefaultPin is the terminal pin sent with every result
const DefaultPin = "04AB1A2A313180"

// Result announces a successful authentication to display terminals
type Result struct {
	Type       string `json:"type"`
	User       string `json:"user"`
	Pin        string `json:"pin"`
	Attendance int    `json:"attendance"`
}

// NewResult builds a result message
func NewResult(user, pin string, attendance types.Attendance) Result {
	return Result{
		Type:       TypeResult,
		User:       user,
		Pin:        pin,
		Attendance: int(attendance),
	}
}

// Ping is the heartbeat message
type Ping struct {
	Type string `json:"type"`
}

var pingMessage = Ping{Type: TypePing}
