// Package contextcollector describes the local shell environment for CLI use.
package contextcollector

import (
	"context"
	"os"
	"path/filepath"
	"runtime"

	"github.com/doeshing/shai-bridge/internal/domain"
	"github.com/doeshing/shai-bridge/internal/ports"
)

// DefaultRecentCommands is how many history entries are offered as context.
const DefaultRecentCommands = 5

// BasicCollector builds a CommandContext from the process environment and history.
type BasicCollector struct {
	history ports.HistoryRepository
	recent  int
	getwd   func() (string, error)
	getenv  func(string) string
}

// NewBasicCollector creates a collector. history may be nil.
func NewBasicCollector(history ports.HistoryRepository, recent int) *BasicCollector {
	if recent <= 0 {
		recent = DefaultRecentCommands
	}
	return &BasicCollector{
		history: history,
		recent:  recent,
		getwd:   os.Getwd,
		getenv:  os.Getenv,
	}
}

// Collect gathers context data. History failures leave RecentCommands empty.
func (c *BasicCollector) Collect(ctx context.Context) (domain.CommandContext, error) {
	wd, err := c.getwd()
	if err != nil {
		wd = ""
	}
	return domain.CommandContext{
		WorkingDir:     wd,
		Shell:          c.detectShell(),
		OS:             runtime.GOOS,
		Target:         domain.LocalTargetName,
		RecentCommands: c.recentCommands(ctx),
	}, nil
}

func (c *BasicCollector) detectShell() string {
	if shell := c.getenv("SHELL"); shell != "" {
		return filepath.Base(shell)
	}
	return "unknown"
}

// recentCommands returns distinct commands, oldest first, so they read like a shell session.
func (c *BasicCollector) recentCommands(ctx context.Context) []string {
	if c.history == nil {
		return nil
	}
	records, err := c.history.Records(ctx, c.recent*4, "")
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{}, c.recent)
	var newestFirst []string
	for _, rec := range records {
		if rec.Command == "" {
			continue
		}
		if _, dup := seen[rec.Command]; dup {
			continue
		}
		seen[rec.Command] = struct{}{}
		newestFirst = append(newestFirst, rec.Command)
		if len(newestFirst) == c.recent {
			break
		}
	}
	out := make([]string, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		out = append(out, newestFirst[i])
	}
	return out
}

var _ ports.ContextCollector = (*BasicCollector)(nil)
