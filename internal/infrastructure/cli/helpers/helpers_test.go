package helpers

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/doeshing/shai-bridge/internal/domain"
)

func TestAnalyzeHistory(t *testing.T) {
	records := []domain.HistoryRecord{
		{Command: "ls", Executed: true, Success: true},
		{Command: "ls", Executed: true, Success: false, Severity: domain.SeverityLow},
		{Command: "rm -rf build", Executed: true, Success: true, Severity: domain.SeverityCritical},
		{Command: "df -h"},
	}

	stats := AnalyzeHistory(records, 2)

	if stats.Total != 4 || stats.Executed != 3 || stats.Successful != 2 {
		t.Fatalf("counts = %+v", stats)
	}
	want := []CommandStatistic{{Command: "ls", Count: 2}, {Command: "df -h", Count: 1}}
	if diff := cmp.Diff(want, stats.TopCommands); diff != "" {
		t.Errorf("top commands (-want +got):\n%s", diff)
	}
	if stats.SeverityCounts[domain.SeverityCritical] != 1 || stats.SeverityCounts[domain.SeverityNone] != 2 {
		t.Errorf("severity counts = %v", stats.SeverityCounts)
	}
}

func TestCalculateSuccessRate(t *testing.T) {
	if got := CalculateSuccessRate(0, 0); got != 0 {
		t.Errorf("empty rate = %v", got)
	}
	if got := CalculateSuccessRate(3, 4); got != 75 {
		t.Errorf("rate = %v", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly-10", 10, "exactly-10"},
		{"much longer than that", 10, "much lo..."},
		{"héllo wörld", 8, "héllo..."},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestPromptForConfirmation(t *testing.T) {
	for input, want := range map[string]bool{"y\n": true, "Yes\n": true, "n\n": false, "": false, "yes": true} {
		var out bytes.Buffer
		got := PromptForConfirmation(&out, bufio.NewReader(strings.NewReader(input)), "Proceed?")
		if got != want {
			t.Errorf("input %q: got %v, want %v", input, got, want)
		}
		if !strings.Contains(out.String(), "Proceed? [y/N]") {
			t.Errorf("prompt missing: %q", out.String())
		}
	}
}
