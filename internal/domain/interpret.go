package domain

import "time"

// State is a step of a single interpret call.
type State string

const (
	StateIdle            State = "idle"
	StateSanitizing      State = "sanitizing"
	StateAwaitingBackend State = "awaiting-backend"
	StateRestoring       State = "restoring"
	StateClassifying     State = "classifying"
	StateDone            State = "done"
	StateAborted         State = "aborted"
	StateFailed          State = "failed"
)

// Terminal reports whether no further transition can follow.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted || s == StateFailed
}

// InterpretRequest is one natural-language request.
type InterpretRequest struct {
	Input   string         `json:"input"`
	Context CommandContext `json:"context"`
	// Model overrides the configured default model.
	Model string `json:"model,omitempty"`
	// Timeout overrides the controller default when positive.
	Timeout time.Duration `json:"-"`
}

// InterpretResult is either a vetted command or a failure, never both.
type InterpretResult struct {
	RequestID            string           `json:"request_id"`
	State                State            `json:"state"`
	Input                string           `json:"input"`
	Command              string           `json:"command,omitempty"`
	Explanation          string           `json:"explanation,omitempty"`
	Confidence           float64          `json:"confidence,omitempty"`
	Backend              string           `json:"backend,omitempty"`
	Dangerous            bool             `json:"dangerous"`
	Severity             Severity         `json:"severity"`
	RequiresConfirmation bool             `json:"requires_confirmation"`
	Verdict              *SecurityVerdict `json:"verdict,omitempty"`
	Failure              *Failure         `json:"failure,omitempty"`
	Elapsed              time.Duration    `json:"elapsed_ns"`
}

// OK reports whether the result carries a command.
func (r InterpretResult) OK() bool {
	return r.Failure == nil && r.State == StateDone
}

// Err returns the failure as an error, or nil on success.
func (r InterpretResult) Err() error {
	return r.Failure.Err()
}

// Approval is the caller's decision about running a result.
type Approval struct {
	Confirmed bool   `json:"confirmed"`
	Target    string `json:"target,omitempty"`
}

// ExecutionResult captures the outcome of running a vetted command.
type ExecutionResult struct {
	Target   string        `json:"target"`
	Command  string        `json:"command"`
	Ran      bool          `json:"ran"`
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}
