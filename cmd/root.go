// Command provider-reconcile keeps a medical provider directory in step with
// the outside world. It cross-checks each provider against the NPI registry,
// the state medical board, hospital directories and maps listings, applies
// corrections the sources agree on, and queues the rest for human review.
//
// The commands fall into four groups:
//
//	reconcile  batch, reconcile, review
//	report     runs, scores, export
//	data       import, migrate
//	serve      serve
package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/provider-reconcile/internal/config"
)

const (
	groupReconcile = "reconcile"
	groupReport    = "report"
	groupData      = "data"
	groupServe     = "serve"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "provider-reconcile",
	Short:         "Medical provider directory reconciliation",
	Long:          "Cross-checks provider records against external directories, applies confident corrections, queues the rest for review, and scores data quality.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: groupReconcile, Title: "Reconciliation:"},
		&cobra.Group{ID: groupReport, Title: "Reporting:"},
		&cobra.Group{ID: groupData, Title: "Data management:"},
		&cobra.Group{ID: groupServe, Title: "API:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		rootCmd.PrintErrln("Error:", err)
		os.Exit(1)
	}
}
