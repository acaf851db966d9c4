// Package history persists interpreted commands in SQLite, with a JSONL file fallback.
package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/doeshing/shai-bridge/internal/domain"
	"github.com/doeshing/shai-bridge/internal/pkg/filesystem"
	"github.com/doeshing/shai-bridge/internal/ports"
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

// timestampLayout is fixed-width UTC so lexical order matches time order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// DefaultPath returns the default store location for a backend.
func DefaultPath(backend string) string {
	if backend == BackendFile {
		return filesystem.AppPath("history", "history.jsonl")
	}
	return filesystem.AppPath("history", "history.db")
}

// Open builds the configured repository. When SQLite cannot be opened the
// JSONL store next to it is used instead and the failure is logged.
func Open(backend, path string, log ports.Logger) (ports.HistoryRepository, error) {
	backend = strings.ToLower(strings.TrimSpace(backend))
	if backend == "" {
		backend = BackendSQLite
	}
	path = filesystem.ExpandPath(path, DefaultPath(backend))

	switch backend {
	case BackendFile:
		return NewFileStore(path), nil
	case BackendSQLite:
		store, err := NewSQLiteStore(path)
		if err == nil {
			return store, nil
		}
		fallback := strings.TrimSuffix(path, ".db") + ".jsonl"
		if log != nil {
			log.Warn("sqlite history unavailable, using file store", map[string]interface{}{
				"path":     path,
				"fallback": fallback,
				"error":    err.Error(),
			})
		}
		return NewFileStore(fallback), nil
	default:
		return nil, fmt.Errorf("unknown history backend %q", backend)
	}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timestampLayout)
}

func matches(rec domain.HistoryRecord, search string) bool {
	if search == "" {
		return true
	}
	needle := strings.ToLower(search)
	return strings.Contains(strings.ToLower(rec.UserInput), needle) ||
		strings.Contains(strings.ToLower(rec.Command), needle)
}
