// Package audit appends interpret verdicts to a JSONL trail.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/doeshing/shai-bridge/internal/domain"
	"github.com/doeshing/shai-bridge/internal/infrastructure/redact"
	"github.com/doeshing/shai-bridge/internal/ports"
)

// Event is one line of the audit trail. Input and Command are stored masked.
type Event struct {
	Timestamp            string   `json:"timestamp"`
	RequestID            string   `json:"request_id"`
	State                string   `json:"state"`
	Backend              string   `json:"backend,omitempty"`
	Input                string   `json:"input"`
	Command              string   `json:"command,omitempty"`
	Severity             string   `json:"severity"`
	RequiresConfirmation bool     `json:"requires_confirmation"`
	TriggeredRules       []string `json:"triggered_rules,omitempty"`
	Failure              string   `json:"failure,omitempty"`
	ElapsedMS            int64    `json:"elapsed_ms"`
}

// Logger writes Events to an append-only file.
type Logger struct {
	file      *os.File
	sanitizer *redact.Sanitizer
	now       func() time.Time
	mu        sync.Mutex
}

// New opens (creating if needed) the audit file at path.
func New(path string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &Logger{file: file, sanitizer: redact.New(), now: time.Now}, nil
}

// Record implements ports.AuditSink.
func (l *Logger) Record(result domain.InterpretResult) error {
	masked, _ := l.sanitizer.SanitizeBatch([]string{result.Input, result.Command})
	event := Event{
		Timestamp:            l.now().UTC().Format(time.RFC3339),
		RequestID:            result.RequestID,
		State:                string(result.State),
		Backend:              result.Backend,
		Input:                masked[0],
		Command:              masked[1],
		Severity:             result.Severity.String(),
		RequiresConfirmation: result.RequiresConfirmation,
		ElapsedMS:            result.Elapsed.Milliseconds(),
	}
	if result.Verdict != nil {
		event.TriggeredRules = result.Verdict.MatchedIDs()
	}
	if result.Failure != nil {
		event.Failure = string(result.Failure.Kind)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.file.Write(data)
	return err
}

// Close releases the file handle.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

var _ ports.AuditSink = (*Logger)(nil)
