package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/doeshing/shai-bridge/internal/app"
	"github.com/doeshing/shai-bridge/internal/application/mediation"
	"github.com/doeshing/shai-bridge/internal/domain"
	"github.com/doeshing/shai-bridge/internal/infrastructure/cli/commands"
)

// Options holds CLI-level configuration.
type Options struct {
	Verbose    bool
	ConfigPath string
}

// NewRootCmd wires the cobra root command. The returned cleanup closes the
// stores opened by the container.
func NewRootCmd(ctx context.Context, opts Options) (*cobra.Command, func() error, error) {
	spinner := NewSpinner(os.Stderr)
	container, err := app.BuildContainer(ctx, app.Options{
		Verbose:    opts.Verbose,
		ConfigPath: opts.ConfigPath,
		OnTransition: func(_ string, _, to domain.State) {
			spinner.SetLabel(string(to))
		},
	})
	if err != nil {
		return nil, nil, err
	}

	useSpinner := !opts.Verbose && term.IsTerminal(int(os.Stderr.Fd()))
	ic := &interpretCommand{
		container: container,
		prompter:  NewPrompter(nil, nil),
	}
	if useSpinner {
		ic.spinner = spinner
	}

	root := &cobra.Command{
		Use:   "shai-bridge [request]",
		Short: "Turn natural language into vetted shell commands",
		Long: "shai-bridge masks sensitive values, asks a reasoning backend for a command,\n" +
			"restores the values and classifies the result before anything runs.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return ic.run(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	ic.flags.register(root)

	root.AddCommand(
		ic.command(),
		newSuggestCommand(container),
		newSanitizeCommand(container),
		newRulesCommand(container),
		commands.NewHistoryCommand(container),
		commands.NewFavoritesCommand(container),
		commands.NewKeysCommand(container),
		commands.NewTargetsCommand(container),
		commands.NewServeCommand(container),
		commands.NewConfigCommand(container),
		commands.NewDoctorCommand(container),
		commands.NewVersionCommand(),
	)
	return root, container.Close, nil
}

type interpretFlags struct {
	model   string
	target  string
	timeout time.Duration
	preview bool
	yes     bool
	asJSON  bool
}

func (f *interpretFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.model, "model", "m", "", "Override model name (default from config)")
	cmd.Flags().StringVarP(&f.target, "target", "t", "", "Execution target (default from config)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Override backend timeout")
	cmd.Flags().BoolVarP(&f.preview, "preview", "p", false, "Only show the command, never run it")
	cmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "Run without asking unless the command is flagged dangerous")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "Print the interpret result as JSON and exit")
}

type interpretCommand struct {
	container *app.Container
	prompter  *Prompter
	spinner   *Spinner
	flags     interpretFlags
}

func (ic *interpretCommand) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interpret [natural language]",
		Short: "Generate a command from natural language",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ic.run(cmd, args)
		},
	}
	ic.flags.register(cmd)
	return cmd
}

func (ic *interpretCommand) run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	c := ic.container

	cmdCtx, err := c.Collector.Collect(ctx)
	if err != nil {
		c.Logger.Warn("context collection failed", map[string]interface{}{"error": err.Error()})
	}
	if ic.flags.target != "" {
		cmdCtx.Target = ic.flags.target
	}

	req := domain.InterpretRequest{
		Input:   strings.Join(args, " "),
		Context: cmdCtx,
		Model:   ic.flags.model,
		Timeout: ic.flags.timeout,
	}
	if ic.spinner != nil && !ic.flags.asJSON {
		ic.spinner.Start()
	}
	result := c.Controller.Interpret(ctx, req)
	if ic.spinner != nil {
		ic.spinner.Stop()
	}

	if ic.flags.asJSON {
		if err := writeJSON(out, result); err != nil {
			return err
		}
		return result.Err()
	}
	RenderResult(out, result)
	if !result.OK() {
		return result.Err()
	}
	if ic.flags.preview {
		return nil
	}

	approval := domain.Approval{Target: ic.flags.target}
	switch {
	case result.RequiresConfirmation:
		ok, err := ic.prompter.Confirm(result)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrConfirmationRequired, err)
		}
		if !ok {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
		approval.Confirmed = true
	case ic.flags.yes:
	case ic.prompter.Interactive():
		ok, err := ic.prompter.Confirm(result)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	default:
		// Non-interactive without --yes: show only.
		return nil
	}

	exec, execErr := c.Controller.Execute(ctx, result, approval)
	if exec.Ran {
		RenderExecution(out, exec)
		rec := mediation.HistoryRecordFor(result, exec, execErr)
		if err := c.Controller.RecordExecution(ctx, rec, cmdCtx); err != nil {
			c.Logger.Warn("history not recorded", map[string]interface{}{"error": err.Error()})
		}
	}
	if execErr != nil {
		return execErr
	}
	if exec.ExitCode != 0 {
		return fmt.Errorf("command exited with status %d", exec.ExitCode)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
