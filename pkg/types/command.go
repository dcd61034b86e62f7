package types

import "strings"

// CommandName identifies an operation of the face processor
type CommandName int

const (
	CommandUnknown CommandName = iota
	CommandAuthenticate
	CommandEnroll
	CommandResync
	CommandRemoveAll
	CommandQuit
)

var commandNames = map[CommandName]string{
	CommandUnknown:      "unknown",
	CommandAuthenticate: "authenticate",
	CommandEnroll:       "enroll",
	CommandResync:       "resync",
	CommandRemoveAll:    "remove_all",
	CommandQuit:         "quit",
}

// String returns the canonical command name
func (c CommandName) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "unknown"
}

// ParseCommandName maps a wire command to a CommandName.
// Single-key keypad aliases are accepted.
func ParseCommandName(s string) CommandName {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "authenticate", "auth":
		return CommandAuthenticate
	case "enroll", "enrol":
		return CommandEnroll
	case "resync":
		return CommandResync
	case "remove_all", "d":
		return CommandRemoveAll
	case "quit", "q", "exit":
		return CommandQuit
	default:
		return CommandUnknown
	}
}

// Command is a single request to the face processor. It is consumed exactly once.
type Command struct {
	Name       CommandName
	Raw        string // Name as received, kept for logging unknown commands
	EmployeeID string
}

// CommandRequest mirrors the JSON shape of a command queue item.
type CommandRequest struct {
	Command    string `json:"command"`
	EmployeeID string `json:"employee_id,omitempty"`
}

// ToCommand converts the wire request into a Command.
func (r CommandRequest) ToCommand() Command {
	return Command{
		Name:       ParseCommandName(r.Command),
		Raw:        r.Command,
		EmployeeID: strings.TrimSpace(r.EmployeeID),
	}
}
