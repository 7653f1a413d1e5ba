package sim

import "time"

// Command sources recorded on staged commands.
const (
	SourceConsole   = "console"
	SourceWebsocket = "websocket"
	SourceScript    = "script"
)

// Command is a text command captured for execution between physics steps.
type Command struct {
	Source   string    `json:"source"`
	Line     string    `json:"line"`
	IssuedAt time.Time `json:"issuedAt"`

	reply chan Result
}

// Result is the outcome of an executed command.
type Result struct {
	Output string
	Err    error
}
