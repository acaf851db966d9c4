package commands

import (
	"github.com/spf13/cobra"

	"github.com/doeshing/shai-bridge/internal/app"
	"github.com/doeshing/shai-bridge/internal/infrastructure/httpapi"
)

// NewServeCommand starts the HTTP API.
func NewServeCommand(container *app.Container) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the mediation API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = container.Config.GetServerAddr()
			}
			handler := httpapi.NewRouter(container.Controller, container.Classifier, container.Logger)
			return httpapi.Serve(cmd.Context(), addr, handler, container.Logger)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}
