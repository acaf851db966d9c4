package logger

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestStdLoggerQuietUnlessVerbose(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, false)

	log.Debug("hidden", nil)
	log.Info("hidden", map[string]interface{}{"k": 1})
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}

	log.Warn("budget exceeded", map[string]interface{}{"elapsed_ms": 700, "input": "ls"})
	out := buf.String()
	if !strings.Contains(out, "budget exceeded") || !strings.Contains(out, "elapsed_ms=700") {
		t.Fatalf("unexpected warn output: %q", out)
	}
	if strings.Index(out, "elapsed_ms") > strings.Index(out, "input=") {
		t.Fatalf("fields should be sorted: %q", out)
	}
}

func TestStdLoggerVerboseIncludesError(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, true)

	log.Debug("transition", map[string]interface{}{"state": "sanitizing"})
	log.Error("send failed", errors.New("boom"), nil)

	out := buf.String()
	if !strings.Contains(out, "state=sanitizing") {
		t.Fatalf("missing debug record: %q", out)
	}
	if !strings.Contains(out, "error=boom") {
		t.Fatalf("missing error attr: %q", out)
	}
}
