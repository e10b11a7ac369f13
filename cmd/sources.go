package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "Lists configured sources with their checkpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tNAME\tCHECKPOINT")
			for _, src := range appInstance.Sources() {
				at, ok, err := appInstance.Checkpoints().Get(cmd.Context(), src.ID)
				if err != nil {
					return fmt.Errorf("read checkpoint for %s: %w", src.ID, err)
				}
				checkpoint := "never"
				if ok {
					checkpoint = at.UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", src.ID, src.Kind, src.Label(), checkpoint)
			}
			return w.Flush()
		},
	}
}
