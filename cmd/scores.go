package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/provider-reconcile/internal/quality"
)

var scoresProviderID int64

var scoresCmd = &cobra.Command{
	Use:     "scores",
	GroupID: groupReport,
	Short:   "Recompute quality and drift scores",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "batch")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		scores := quality.NewComputer(st)

		if scoresProviderID > 0 {
			score, drift, err := scores.Compute(ctx, scoresProviderID)
			if err != nil {
				return eris.Wrapf(err, "scores: provider %d", scoresProviderID)
			}
			return writeIndented(os.Stdout, map[string]any{"score": score, "drift": drift})
		}

		n, err := scores.ComputeAll(ctx)
		if err != nil {
			return eris.Wrap(err, "scores")
		}
		fmt.Fprintf(os.Stdout, "updated %d providers\n", n)
		return nil
	},
}

func init() {
	scoresCmd.Flags().Int64Var(&scoresProviderID, "provider", 0, "recompute a single provider")
	rootCmd.AddCommand(scoresCmd)
}
