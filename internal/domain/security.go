package domain

import (
	"fmt"
	"strings"
)

// Severity orders how harmful a matched command pattern is.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = [...]string{"none", "low", "medium", "high", "critical"}

func (s Severity) String() string {
	if s < SeverityNone || s > SeverityCritical {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

// ParseSeverity accepts the lower-case names produced by String.
func ParseSeverity(raw string) (Severity, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	for i, candidate := range severityNames {
		if candidate == name {
			return Severity(i), nil
		}
	}
	return SeverityNone, fmt.Errorf("unknown severity %q", raw)
}

// MarshalText renders the severity name for JSON and YAML.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a severity name.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// DangerousPattern is one classifier rule. Match is evaluated against the full
// command text; it is not serialized.
type DangerousPattern struct {
	ID          string            `json:"id" yaml:"id"`
	Description string            `json:"description" yaml:"description"`
	Severity    Severity          `json:"severity" yaml:"severity"`
	Examples    []string          `json:"examples,omitempty" yaml:"examples,omitempty"`
	Match       func(string) bool `json:"-" yaml:"-"`
}

// SecurityVerdict is the classifier output for a single command.
type SecurityVerdict struct {
	Dangerous            bool               `json:"dangerous"`
	Severity             Severity           `json:"severity"`
	MatchedPatterns      []DangerousPattern `json:"matched_patterns,omitempty"`
	Warnings             []string           `json:"warnings,omitempty"`
	RequiresConfirmation bool               `json:"requires_confirmation"`
}

// MatchedIDs lists the IDs of matched patterns in match order.
func (v SecurityVerdict) MatchedIDs() []string {
	ids := make([]string, 0, len(v.MatchedPatterns))
	for _, p := range v.MatchedPatterns {
		ids = append(ids, p.ID)
	}
	return ids
}
