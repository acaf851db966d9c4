package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/doeshing/shai-bridge/internal/app"
)

func newSuggestCommand(container *app.Container) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "suggest [partial input]",
		Short: "Rank completions from favorites, history and this directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cmdCtx, err := container.Collector.Collect(ctx)
			if err != nil {
				return err
			}
			suggestions := container.Controller.Suggest(ctx, strings.Join(args, " "), cmdCtx)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), suggestions)
			}
			RenderSuggestions(cmd.OutOrStdout(), suggestions, time.Now())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print suggestions as JSON")
	return cmd
}

func newSanitizeCommand(container *app.Container) *cobra.Command {
	var showMapping bool
	cmd := &cobra.Command{
		Use:   "sanitize [text]",
		Short: "Show what would be masked before text leaves this machine",
		Long:  "Prints the text with sensitive values replaced by placeholders. Reads stdin when no text is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				text = strings.TrimRight(string(data), "\n")
			}
			masked, mapping := container.Sanitizer.Sanitize(text)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, masked)
			if showMapping && len(mapping) > 0 {
				placeholders := make([]string, 0, len(mapping))
				for ph := range mapping {
					placeholders = append(placeholders, ph)
				}
				sort.Strings(placeholders)
				fmt.Fprintln(out)
				for _, ph := range placeholders {
					fmt.Fprintf(out, "%s %s\n", labelStyle.Render(ph), mapping[ph])
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showMapping, "show-mapping", false, "Also print each placeholder with its original value")
	return cmd
}
