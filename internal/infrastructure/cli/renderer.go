package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/doeshing/shai-bridge/internal/domain"
)

var (
	dimStyle     = lipgloss.NewStyle().Faint(true)
	labelStyle   = lipgloss.NewStyle().Bold(true)
	commandStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))

	severityStyles = map[domain.Severity]lipgloss.Style{
		domain.SeverityNone:     lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		domain.SeverityLow:      lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		domain.SeverityMedium:   lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		domain.SeverityHigh:     lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true),
		domain.SeverityCritical: lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
	}
)

// RenderResult prints an interpret outcome: the command, its explanation and
// the classifier verdict, or the failure.
func RenderResult(w io.Writer, result domain.InterpretResult) {
	if !result.OK() {
		kind := domain.FailureBackend
		msg := "request did not complete"
		if result.Failure != nil {
			kind = result.Failure.Kind
			msg = result.Failure.Message
		}
		fmt.Fprintf(w, "%s %s %s\n", errorStyle.Render("✗"), labelStyle.Render(string(kind)), msg)
		return
	}

	fmt.Fprintf(w, "%s\n  %s\n", labelStyle.Render("Command:"), commandStyle.Render(result.Command))
	if result.Explanation != "" {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Why:"), result.Explanation)
	}
	fmt.Fprintf(w, "%s %s  %s\n",
		labelStyle.Render("Risk:"),
		severityStyle(result.Severity).Render(strings.ToUpper(result.Severity.String())),
		dimStyle.Render(fmt.Sprintf("confidence %.0f%% via %s (%s)", result.Confidence*100, result.Backend, result.Elapsed.Round(time.Millisecond))),
	)
	if result.Verdict != nil {
		for _, rule := range result.Verdict.MatchedPatterns {
			fmt.Fprintf(w, "  - %s %s\n", severityStyle(rule.Severity).Render(rule.ID), rule.Description)
		}
	}
}

// RenderVerdict prints a standalone classification.
func RenderVerdict(w io.Writer, command string, verdict domain.SecurityVerdict) {
	mark := successStyle.Render("✓")
	if verdict.Dangerous {
		mark = severityStyle(verdict.Severity).Render("!")
	}
	fmt.Fprintf(w, "%s %s  %s\n", mark, commandStyle.Render(command), severityStyle(verdict.Severity).Render(verdict.Severity.String()))
	for _, rule := range verdict.MatchedPatterns {
		fmt.Fprintf(w, "  - %s [%s] %s\n", rule.ID, rule.Severity, rule.Description)
	}
	for _, warning := range verdict.Warnings {
		fmt.Fprintf(w, "  %s\n", dimStyle.Render(warning))
	}
	if verdict.RequiresConfirmation {
		fmt.Fprintln(w, dimStyle.Render("  confirmation required before execution"))
	}
}

// RenderExecution prints the captured output of a command run.
func RenderExecution(w io.Writer, exec domain.ExecutionResult) {
	if exec.Stdout != "" {
		fmt.Fprint(w, ensureNewline(exec.Stdout))
	}
	if exec.Stderr != "" {
		fmt.Fprint(w, ensureNewline(exec.Stderr))
	}
	status := successStyle.Render("✓ exit 0")
	if exec.ExitCode != 0 {
		status = errorStyle.Render(fmt.Sprintf("✗ exit %d", exec.ExitCode))
	}
	fmt.Fprintf(w, "%s %s\n", status, dimStyle.Render(fmt.Sprintf("on %s in %s", exec.Target, exec.Duration.Round(time.Millisecond))))
}

// RenderSuggestions prints ranked suggestions, newest usage shown relative to now.
func RenderSuggestions(w io.Writer, suggestions []domain.Suggestion, now time.Time) {
	if len(suggestions) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No suggestions."))
		return
	}
	for i, s := range suggestions {
		meta := []string{string(s.Provenance)}
		if s.UsageCount > 0 {
			meta = append(meta, fmt.Sprintf("used %s", pluralize(s.UsageCount, "time")))
		}
		if s.LastUsed != nil && !s.LastUsed.IsZero() {
			meta = append(meta, "last "+humanize.RelTime(*s.LastUsed, now, "ago", "from now"))
		}
		fmt.Fprintf(w, "%d. %s  %s\n", i+1, commandStyle.Render(s.Command), dimStyle.Render(strings.Join(meta, ", ")))
		if s.Description != "" {
			fmt.Fprintf(w, "   %s\n", s.Description)
		}
	}
}

func severityStyle(s domain.Severity) lipgloss.Style {
	if style, ok := severityStyles[s]; ok {
		return style
	}
	return dimStyle
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return humanize.Comma(int64(n)) + " " + noun + "s"
}

func ensureNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
