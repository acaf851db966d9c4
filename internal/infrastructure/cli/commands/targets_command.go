package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/doeshing/shai-bridge/internal/app"
	"github.com/doeshing/shai-bridge/internal/domain"
)

// NewTargetsCommand lists execution targets.
func NewTargetsCommand(container *app.Container) *cobra.Command {
	targetsCmd := &cobra.Command{
		Use:   "targets",
		Short: "Inspect execution targets",
	}
	targetsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured targets and whether they are usable",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			active := make(map[string]bool)
			for _, name := range container.Executor.Targets() {
				active[name] = true
			}
			def := container.Config.GetDefaultTarget()

			fmt.Fprintf(out, "%s %-16s %s\n", marker(def == domain.LocalTargetName), domain.LocalTargetName, "this machine")
			if len(container.Config.Targets) == 0 {
				fmt.Fprintln(out, MsgNoTargets)
				return nil
			}
			for _, target := range container.Config.Targets {
				status := "ready"
				if !active[target.Name] {
					status = "disabled (see shai-bridge doctor)"
				}
				addr := target.User + "@" + target.Address()
				if target.Proxy != "" {
					addr += " via socks5://" + target.Proxy
				}
				fmt.Fprintf(out, "%s %-16s %s [%s]\n", marker(def == target.Name), target.Name, addr, status)
			}
			return nil
		},
	})
	return targetsCmd
}

func marker(isDefault bool) string {
	if isDefault {
		return "*"
	}
	return " "
}
