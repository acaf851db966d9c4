package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/doeshing/shai-bridge/internal/app"
	"github.com/doeshing/shai-bridge/internal/domain"
	"github.com/doeshing/shai-bridge/internal/infrastructure/cli/helpers"
)

// NewHistoryCommand creates the history command with all subcommands
func NewHistoryCommand(container *app.Container) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect executed commands",
	}

	historyCmd.AddCommand(
		newHistoryListCommand(container),
		newHistorySearchCommand(container),
		newHistoryClearCommand(container),
		newHistoryStatsCommand(container),
	)

	return historyCmd
}

// newHistoryListCommand creates the 'history list' subcommand
func newHistoryListCommand(container *app.Container) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent history entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listHistoryEntries(cmd.Context(), cmd.OutOrStdout(), container, limit, "")
		},
	}

	cmd.Flags().IntVar(&limit, "limit", DefaultHistoryLimit, "Max entries to show")
	return cmd
}

// newHistorySearchCommand creates the 'history search' subcommand
func newHistorySearchCommand(container *app.Container) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <keyword>",
		Short: "Search requests and commands for a keyword",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return listHistoryEntries(cmd.Context(), cmd.OutOrStdout(), container, limit, strings.Join(args, " "))
		},
	}

	cmd.Flags().IntVar(&limit, "limit", DefaultHistorySearchLimit, "Limit search results")
	return cmd
}

// newHistoryClearCommand creates the 'history clear' subcommand
func newHistoryClearCommand(container *app.Container) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all history entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if !yes && !helpers.PromptForConfirmation(out, bufio.NewReader(cmd.InOrStdin()), "Delete all history?") {
				fmt.Fprintln(out, MsgCancelled)
				return nil
			}
			return clearHistory(cmd.Context(), out, container)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

// newHistoryStatsCommand creates the 'history stats' subcommand
func newHistoryStatsCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show success rate and top commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showHistoryStats(cmd.Context(), cmd.OutOrStdout(), container)
		},
	}
}

// listHistoryEntries prints newest-first entries, optionally filtered
func listHistoryEntries(ctx context.Context, out io.Writer, container *app.Container, limit int, search string) error {
	store := container.HistoryStore
	if store == nil {
		return fmt.Errorf(ErrHistoryStoreUnavailable)
	}

	records, err := store.Records(ctx, limit, search)
	if err != nil {
		return fmt.Errorf("failed to retrieve history records: %w", err)
	}
	if len(records) == 0 {
		fmt.Fprintln(out, MsgNoHistoryRecorded)
		return nil
	}

	for _, rec := range records {
		fmt.Fprintf(out, "%s | %-6s | %-8s | %-4s | %s\n",
			rec.Timestamp.Local().Format(TimestampFormat),
			rec.Target,
			rec.Severity,
			exitLabel(rec),
			helpers.Truncate(rec.Command, CommandColumnWidth))
	}

	return nil
}

// clearHistory removes every entry from the store
func clearHistory(ctx context.Context, out io.Writer, container *app.Container) error {
	if container.HistoryStore == nil {
		return fmt.Errorf(ErrHistoryStoreUnavailable)
	}

	if err := container.HistoryStore.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}

	fmt.Fprintf(out, "Cleared %s\n", container.HistoryStore.Path())
	return nil
}

// showHistoryStats displays success rate and top commands
func showHistoryStats(ctx context.Context, out io.Writer, container *app.Container) error {
	store := container.HistoryStore
	if store == nil {
		return fmt.Errorf(ErrHistoryStoreUnavailable)
	}

	records, err := store.Records(ctx, MaxHistoryAnalysisRecords, "")
	if err != nil {
		return fmt.Errorf("failed to retrieve history for analysis: %w", err)
	}

	if len(records) == 0 {
		fmt.Fprintln(out, MsgNoHistoryRecorded)
		return nil
	}

	displayHistoryStatistics(out, helpers.AnalyzeHistory(records, DefaultTopCommands))
	return nil
}

// displayHistoryStatistics renders aggregated history statistics
func displayHistoryStatistics(out io.Writer, stats helpers.HistoryStatistics) {
	fmt.Fprintf(out, "Entries: %d (executed %d)\n", stats.Total, stats.Executed)
	fmt.Fprintf(out, "Success rate: %.1f%%\n", helpers.CalculateSuccessRate(stats.Successful, stats.Executed))

	fmt.Fprintln(out, "By severity:")
	for sev := domain.SeverityNone; sev <= domain.SeverityCritical; sev++ {
		if n := stats.SeverityCounts[sev]; n > 0 {
			fmt.Fprintf(out, "  %-8s %d\n", sev, n)
		}
	}

	fmt.Fprintln(out, "Top commands:")
	for _, stat := range stats.TopCommands {
		fmt.Fprintf(out, "  %3d  %s\n", stat.Count, helpers.Truncate(stat.Command, CommandColumnWidth))
	}
}

func exitLabel(rec domain.HistoryRecord) string {
	if !rec.Executed {
		return "-"
	}
	return fmt.Sprintf("%d", rec.ExitCode)
}
