package helpers

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/doeshing/shai-bridge/internal/domain"
)

// ====================================================================================
// Prompt Helpers
// ====================================================================================

// PromptForConfirmation asks a y/N question. Anything but y/yes is a no.
func PromptForConfirmation(out io.Writer, reader *bufio.Reader, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	response := strings.ToLower(strings.TrimSpace(line))
	return response == "y" || response == "yes"
}

// ====================================================================================
// History Statistics
// ====================================================================================

// CommandStatistic represents usage statistics for a command
type CommandStatistic struct {
	Command string
	Count   int
}

// HistoryStatistics summarizes a slice of history records.
type HistoryStatistics struct {
	Total          int
	Executed       int
	Successful     int
	SeverityCounts map[domain.Severity]int
	TopCommands    []CommandStatistic
}

// AnalyzeHistory aggregates records, keeping the top N commands by frequency.
func AnalyzeHistory(records []domain.HistoryRecord, top int) HistoryStatistics {
	stats := HistoryStatistics{
		Total:          len(records),
		SeverityCounts: make(map[domain.Severity]int),
	}
	frequency := make(map[string]int)
	for _, rec := range records {
		frequency[rec.Command]++
		stats.SeverityCounts[rec.Severity]++
		if rec.Executed {
			stats.Executed++
			if rec.Success {
				stats.Successful++
			}
		}
	}
	stats.TopCommands = CalculateTopCommands(frequency, top)
	return stats
}

// CalculateTopCommands returns the top N most frequently used commands.
// If limit is 0 or negative, returns all commands.
func CalculateTopCommands(commandFrequency map[string]int, limit int) []CommandStatistic {
	stats := make([]CommandStatistic, 0, len(commandFrequency))
	for cmd, count := range commandFrequency {
		stats = append(stats, CommandStatistic{Command: cmd, Count: count})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count == stats[j].Count {
			return stats[i].Command < stats[j].Command
		}
		return stats[i].Count > stats[j].Count
	})
	if limit > 0 && len(stats) > limit {
		return stats[:limit]
	}
	return stats
}

// CalculateSuccessRate calculates the success rate as a percentage
func CalculateSuccessRate(successfulCount int, executedCount int) float64 {
	if executedCount == 0 {
		return 0.0
	}
	return float64(successfulCount) / float64(executedCount) * 100.0
}

// Truncate shortens s to max runes, marking the cut with "...".
func Truncate(s string, max int) string {
	runes := []rune(s)
	if max <= 3 || len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
