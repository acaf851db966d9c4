package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/doeshing/shai-bridge/internal/app"
)

// NewKeysCommand manages the encrypted API key file.
func NewKeysCommand(container *app.Container) *cobra.Command {
	keysCmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys in the encrypted key file",
		Long: "API keys are looked up by the model's auth_env_var name, first in the\n" +
			"environment and then in the age-encrypted key file.",
	}

	keysCmd.AddCommand(
		newKeysSetCommand(container),
		newKeysListCommand(container),
	)

	return keysCmd
}

func newKeysSetCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "set <NAME>",
		Short: "Store a key (read from stdin; an empty value deletes it)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if container.KeyStore == nil {
				return fmt.Errorf(ErrKeyStoreUnavailable)
			}
			value, err := readSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), args[0])
			if err != nil {
				return err
			}
			if err := container.KeyStore.Set(args[0], value); err != nil {
				return err
			}
			if value == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Stored %s in %s\n", args[0], container.KeyStore.Path())
			}
			return nil
		},
	}
}

func newKeysListCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored key names",
		RunE: func(cmd *cobra.Command, args []string) error {
			if container.KeyStore == nil {
				return fmt.Errorf(ErrKeyStoreUnavailable)
			}
			names, err := container.KeyStore.Names()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintln(out, MsgNoKeys)
				return nil
			}
			for _, name := range names {
				source := "file"
				if os.Getenv(name) != "" {
					source = "file (shadowed by environment)"
				}
				fmt.Fprintf(out, "%-24s %s\n", name, source)
			}
			return nil
		},
	}
}

// readSecret reads one line without echo when in is a terminal.
func readSecret(in io.Reader, prompt io.Writer, name string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(prompt, "%s: ", name)
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
