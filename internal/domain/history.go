package domain

import "time"

// HistoryRecord captures one interpreted (and possibly executed) command.
type HistoryRecord struct {
	Timestamp       time.Time `json:"timestamp"`
	UserInput       string    `json:"user_input"`
	Command         string    `json:"command"`
	Directory       string    `json:"directory,omitempty"`
	Target          string    `json:"target,omitempty"`
	Model           string    `json:"model,omitempty"`
	Executed        bool      `json:"executed"`
	Success         bool      `json:"success"`
	ExitCode        int       `json:"exit_code"`
	Severity        Severity  `json:"severity"`
	ExecutionTimeMS int64     `json:"execution_time_ms"`
}

// Favorite is a user-pinned command.
type Favorite struct {
	Name        string    `json:"name" yaml:"name"`
	Command     string    `json:"command" yaml:"command"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	UsageCount  int       `json:"usage_count" yaml:"usage_count"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

// Provenance names the source a suggestion came from.
type Provenance string

const (
	ProvenanceFavorite  Provenance = "favorite"
	ProvenanceHistory   Provenance = "history"
	ProvenanceDirectory Provenance = "directory"
)

// Suggestion is a ranked completion candidate.
type Suggestion struct {
	Command     string     `json:"command"`
	Description string     `json:"description,omitempty"`
	Score       float64    `json:"score"`
	Provenance  Provenance `json:"provenance"`
	UsageCount  int        `json:"usage_count"`
	LastUsed    *time.Time `json:"last_used,omitempty"`
}

// UsageRecord aggregates how often and where a command has been used.
type UsageRecord struct {
	Command     string
	Count       int
	LastUsed    time.Time
	Directories map[string]struct{}
}
