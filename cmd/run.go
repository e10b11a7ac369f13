package cmd

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/delta-harvester/internal/harvest"
)

func newRunCmd() *cobra.Command {
	var serveOps bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Performs one harvesting pass",
		Long: `Lists every configured source concurrently, fetches the new candidates,
writes the dataset when output is configured and prints the run summary.
Source failures are reported, not returned: the command fails only when
the services cannot be built.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return runOnce(cmd.Context(), appInstance, serveOps, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&serveOps, "serve-ops", false, "serve /metrics and /healthz while the pass runs")
	return cmd
}

func runOnce(ctx context.Context, app App, serveOps bool, out io.Writer) error {
	if serveOps {
		opsCtx, cancel := context.WithCancel(ctx)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := app.Serve(opsCtx, false); err != nil {
				zap.L().Warn("ops server stopped", zap.Error(err))
			}
		}()
		defer func() {
			cancel()
			wg.Wait()
		}()
	}

	report, err := app.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("run harvest: %w", err)
	}
	printReport(out, report)
	return nil
}

func printReport(out io.Writer, report harvest.RunReport) {
	fmt.Fprintf(out, "run %s finished in %s\n", report.RunID, report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	for _, s := range report.Sources {
		line := fmt.Sprintf("  %-14s %s: %d candidates, %d documents, %d skipped, %d errors",
			s.State, s.Name, s.Candidates, s.Documents, s.Skipped, s.Errors)
		if s.Reason != "" {
			line += " (" + s.Reason + ")"
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "documents: %d, skipped: %d, errors: %d\n",
		len(report.Result.Documents), report.Result.Skipped, len(report.Result.Errors))
	if report.DatasetURI != "" {
		fmt.Fprintf(out, "dataset: %s\n", report.DatasetURI)
	}
}
