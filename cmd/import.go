package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sitecheck/internal/ingest"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import businesses from a CSV or XLSX file",
	Long:  "Loads business records into the store in the pending state. Existing records with the same id are updated in place.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		businesses, err := ingest.ReadFile(args[0])
		if err != nil {
			return err
		}
		if len(businesses) == 0 {
			return eris.New("no importable rows found")
		}

		for _, b := range businesses {
			if err := st.UpsertBusiness(ctx, b); err != nil {
				return eris.Wrapf(err, "import business %q", b.Name)
			}
		}

		zap.L().Info("import complete",
			zap.String("file", args[0]),
			zap.Int("businesses", len(businesses)),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
