package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/provider-reconcile/internal/model"
	"github.com/sells-group/provider-reconcile/internal/reconcile"
)

var (
	batchType  string
	batchLimit int
)

var batchCmd = &cobra.Command{
	Use:     "batch",
	GroupID: groupReconcile,
	Short:   "Run a validation batch over the least recently verified providers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		runType, err := model.ParseRunType(batchType)
		if err != nil {
			return err
		}

		env, err := initApp(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Engine.RunBatch(ctx, runType, batchLimit)
		if run != nil {
			fmt.Fprintln(os.Stdout, reconcile.Summary(run))
		}
		if err != nil {
			return eris.Wrap(err, "batch")
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchType, "type", "daily", "run type: daily, weekly or onboarding")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max providers to process (default from config)")
	rootCmd.AddCommand(batchCmd)
}
