package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/doeshing/shai-bridge/internal/app"
	configapp "github.com/doeshing/shai-bridge/internal/application/config"
	"github.com/doeshing/shai-bridge/internal/infrastructure/cli/helpers"
	configinfra "github.com/doeshing/shai-bridge/internal/infrastructure/config"
)

const msgNoDifferencesFromDefault = "No differences from default configuration."

// NewConfigCommand creates the config command with all subcommands
func NewConfigCommand(container *app.Container) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfiguration(cmd.Context(), cmd.OutOrStdout(), container)
		},
	}

	configCmd.AddCommand(
		newConfigShowCommand(container),
		newConfigPathCommand(container),
		newConfigValidateCommand(container),
		newConfigResetCommand(container),
		newConfigDiffCommand(container),
	)

	return configCmd
}

// newConfigShowCommand creates the 'config show' subcommand
func newConfigShowCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show full configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfiguration(cmd.Context(), cmd.OutOrStdout(), container)
		},
	}
}

// newConfigPathCommand creates the 'config path' subcommand
func newConfigPathCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file location",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := configLoader(container)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), loader.Path())
			return nil
		},
	}
}

// newConfigValidateCommand creates the 'config validate' subcommand
func newConfigValidateCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfiguration(cmd.Context(), cmd.OutOrStdout(), container)
		},
	}
}

// newConfigResetCommand creates the 'config reset' subcommand
func newConfigResetCommand(container *app.Container) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset configuration to defaults (the old file is backed up)",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if !yes && !helpers.PromptForConfirmation(out, bufio.NewReader(cmd.InOrStdin()), "Overwrite the configuration with defaults?") {
				fmt.Fprintln(out, MsgCancelled)
				return nil
			}
			return resetConfigurationToDefaults(out, container)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

// newConfigDiffCommand creates the 'config diff' subcommand
func newConfigDiffCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "diff",
		Short: "Show differences from the default configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfigurationDiff(cmd.Context(), cmd.OutOrStdout(), container)
		},
	}
}

func configLoader(container *app.Container) (*configinfra.FileLoader, error) {
	if container.ConfigLoader == nil {
		return nil, fmt.Errorf(ErrConfigLoaderUnavailable)
	}
	return container.ConfigLoader, nil
}

// showConfiguration prints the loaded configuration as YAML
func showConfiguration(ctx context.Context, out io.Writer, container *app.Container) error {
	loader, err := configLoader(container)
	if err != nil {
		return err
	}
	cfg, err := loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	fmt.Fprint(out, string(data))
	return nil
}

// validateConfiguration loads and validates the configuration file
func validateConfiguration(ctx context.Context, out io.Writer, container *app.Container) error {
	loader, err := configLoader(container)
	if err != nil {
		return err
	}
	cfg, err := loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := configapp.Validate(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	fmt.Fprintln(out, MsgConfigurationValid)
	return nil
}

// resetConfigurationToDefaults overwrites the file with the embedded defaults
func resetConfigurationToDefaults(out io.Writer, container *app.Container) error {
	loader, err := configLoader(container)
	if err != nil {
		return err
	}

	defaultConfig, backup, err := loader.Reset()
	if err != nil {
		return fmt.Errorf("failed to reset configuration: %w", err)
	}

	if backup != "" {
		fmt.Fprintf(out, "Previous configuration saved to %s\n", backup)
	}
	fmt.Fprintf(out, "Configuration reset at %s (%d models)\n", loader.Path(), len(defaultConfig.Models))
	return nil
}

// showConfigurationDiff prints a go-cmp diff of defaults against the current file
func showConfigurationDiff(ctx context.Context, out io.Writer, container *app.Container) error {
	loader, err := configLoader(container)
	if err != nil {
		return err
	}
	currentConfig, err := loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load current configuration: %w", err)
	}

	diff := cmp.Diff(configinfra.EffectiveDefaults(), currentConfig, cmpopts.EquateEmpty())
	if diff == "" {
		fmt.Fprintln(out, msgNoDifferencesFromDefault)
		return nil
	}

	fmt.Fprintln(out, diff)
	return nil
}
