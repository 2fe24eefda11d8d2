package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/provider-reconcile/internal/report"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: groupReport,
	Short:   "Export provider scores and the pending review queue to XLSX",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "export")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sum, err := report.Export(ctx, st, exportOut)
		if err != nil {
			return eris.Wrap(err, "export")
		}
		fmt.Fprintf(os.Stdout, "wrote %s: %d providers, %d pending reviews\n", exportOut, sum.Providers, sum.Reviews)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "scores.xlsx", "output workbook path")
	rootCmd.AddCommand(exportCmd)
}
