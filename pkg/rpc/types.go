package rpc

import "encoding/json"

// Command represents a command received on stdin.
type Command struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Message string          `json:"message,omitempty"` // direct message field for convenience
	Data    json.RawMessage `json:"data,omitempty"`
}

// Response represents a response sent to stdout.
type Response struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Command string `json:"command"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Command type constants
const (
	CommandRun        = "run"
	CommandApprove    = "approve"
	CommandReject     = "reject"
	CommandAbort      = "abort"
	CommandGetState   = "get_state"
	CommandGetPlan    = "get_plan"
	CommandGetHistory = "get_history"
)

// StateInfo is the payload for get_state.
type StateInfo struct {
	State   string `json:"state"`
	Running bool   `json:"running"`
}
