package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/provider-reconcile/internal/model"
)

var reconcileCmd = &cobra.Command{
	Use:     "reconcile <provider-id>",
	GroupID: groupReconcile,
	Short:   "Reconcile a single provider against every source",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Errorf("invalid provider id %q", args[0])
		}

		env, err := initApp(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := env.Engine.Reconcile(ctx, id)
		if err != nil {
			return eris.Wrap(err, "reconcile")
		}
		formatReconciliation(os.Stdout, rec)
		return nil
	},
}

func formatReconciliation(w io.Writer, rec *model.Reconciliation) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tDECISION\tCONFIDENCE\tFROM\tTO\tREASON")
	for _, f := range rec.Fields {
		d := f.Decision
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\t%s\t%s\n",
			d.Field, d.Kind, d.Confidence, dash(d.From), dash(d.To), dash(d.Reason))
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\nauto_updates=%d manual_reviews=%d documents=%d\n",
		rec.Count(model.DecisionAutoUpdate), rec.Count(model.DecisionManualReview), len(rec.Documents))
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}
