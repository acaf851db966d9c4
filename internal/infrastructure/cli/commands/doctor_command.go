package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/doeshing/shai-bridge/internal/app"
	"github.com/doeshing/shai-bridge/internal/application/suggest"
	"github.com/doeshing/shai-bridge/internal/domain"
)

var healthStyles = map[domain.HealthStatus]lipgloss.Style{
	domain.HealthOK:    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
	domain.HealthWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
	domain.HealthError: lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
}

// NewDoctorCommand checks that config, rules, backend, history and targets are usable.
func NewDoctorCommand(container *app.Container) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose configuration, backend and targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			if container.DoctorService == nil {
				return fmt.Errorf(ErrDoctorServiceUnavailable)
			}
			out := cmd.OutOrStdout()

			report, err := container.DoctorService.Run(cmd.Context())
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(report.Checks); encErr != nil {
					return encErr
				}
			} else {
				printHealthReport(out, report)
				if container.Ranker != nil {
					printRankerStats(out, container.Ranker.Stats())
				}
			}

			if err != nil {
				return fmt.Errorf("diagnostics stopped early: %w", err)
			}
			if report.HasErrors() {
				return fmt.Errorf("diagnostics found problems")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print checks as JSON")
	return cmd
}

func printHealthReport(out io.Writer, report domain.HealthReport) {
	counts := make(map[domain.HealthStatus]int)
	for _, check := range report.Checks {
		counts[check.Status]++
		tag := healthStyles[check.Status].Render(fmt.Sprintf("%-7s", "["+strings.ToUpper(string(check.Status))+"]"))
		fmt.Fprintf(out, "%s %-18s %s\n", tag, check.Name, check.Details)
	}
	fmt.Fprintf(out, "\n%d ok, %d warnings, %d errors\n",
		counts[domain.HealthOK], counts[domain.HealthWarn], counts[domain.HealthError])
}

func printRankerStats(out io.Writer, stats suggest.Stats) {
	lookups := stats.CacheHits + stats.CacheMisses
	if lookups == 0 {
		fmt.Fprintf(out, "Suggestion cache: no lookups yet, %d commands tracked\n", stats.TrackedUsage)
		return
	}
	rate := float64(stats.CacheHits) / float64(lookups) * 100
	fmt.Fprintf(out, "Suggestion cache: %.0f%% hit rate (%d/%d), %d over budget\n",
		rate, stats.CacheHits, lookups, stats.Overruns)
}
