package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/doeshing/shai-bridge/assets"
	"github.com/doeshing/shai-bridge/internal/app"
	"github.com/doeshing/shai-bridge/internal/infrastructure/security"
	"github.com/doeshing/shai-bridge/internal/pkg/filesystem"
)

func newRulesCommand(container *app.Container) *cobra.Command {
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect the risk classifier",
	}
	rulesCmd.AddCommand(
		newRulesListCommand(container),
		newRulesCheckCommand(container),
		newRulesInitCommand(container),
	)
	return rulesCmd
}

func newRulesListCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, rule := range container.Classifier.Rules() {
				fmt.Fprintf(out, "%-28s %s  %s\n",
					rule.ID,
					severityStyle(rule.Severity).Render(fmt.Sprintf("%-8s", rule.Severity)),
					rule.Description)
			}
			return nil
		},
	}
}

func newRulesCheckCommand(container *app.Container) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "check <command>",
		Short: "Classify a command without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := strings.Join(args, " ")
			verdict := container.Classifier.Classify(command)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), verdict)
			}
			RenderVerdict(cmd.OutOrStdout(), command, verdict)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the verdict as JSON")
	return cmd
}

func newRulesInitCommand(container *app.Container) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a rules file template",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filesystem.ExpandPath(container.Config.Security.RulesFile, security.DefaultRulesPath())
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, assets.DefaultRulesYAML, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rules template written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing rules file")
	return cmd
}
