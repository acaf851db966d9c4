package domain

import "time"

// BackendRequest is what the controller hands to a reasoning backend. Input and
// Context have already been sanitized.
type BackendRequest struct {
	Input   string
	Context CommandContext
	Options BackendOptions
}

// BackendOptions carries per-call generation parameters.
type BackendOptions struct {
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

// BackendResponse is the backend's proposal, still containing placeholders.
type BackendResponse struct {
	Command     string  `json:"command"`
	Explanation string  `json:"explanation"`
	Confidence  float64 `json:"confidence"`
}
