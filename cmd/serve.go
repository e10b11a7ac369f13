package cmd

import (
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the ops server; POST /v1/runs triggers a pass",
		Long: `Starts the HTTP server on server.metrics_addr exposing /healthz, /metrics
and the recent run reports. Passes are triggered by an external scheduler
through POST /v1/runs, one at a time.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return appInstance.Serve(cmd.Context(), true)
		},
	}
}
