package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/provider-reconcile/internal/seed"
)

var (
	importFile    string
	importDocsDir string
)

var importCmd = &cobra.Command{
	Use:     "import",
	GroupID: groupData,
	Short:   "Import providers from a CSV or XLSX file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		rows, err := seed.ReadFile(importFile)
		if err != nil {
			return eris.Wrap(err, "import")
		}

		st, err := openStore(ctx, "import")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		docs := importDocsDir
		if docs == "" {
			docs = cfg.Seed.DocumentsDir
		}
		im := seed.NewImporter(st,
			seed.WithDocumentsDir(docs),
			seed.WithStrictNPI(cfg.Registry.Live),
		)
		res, err := im.Import(ctx, rows)
		if err != nil {
			return eris.Wrap(err, "import")
		}

		zap.L().Info("import complete",
			zap.Int("created", res.Created),
			zap.Int("skipped", res.Skipped),
			zap.Int("documents", res.Documents),
			zap.String("file", importFile),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to CSV or XLSX file (required)")
	importCmd.Flags().StringVar(&importDocsDir, "documents", "", "license document directory (default from config)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
