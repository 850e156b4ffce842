package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"studyhelper/internal/bootstrap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Long: `Connect to the configured store and run its migrations. Postgres tables
are auto-migrated and Mongo indexes are created. The memory store is a no-op.`,
	Example: `  studyhelperctl migrate --config services/api/config.yaml`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		st, err := bootstrap.OpenStore(cfg.StoreConfig)
		if err != nil {
			return err
		}
		defer st.Close()
		slog.Info("store migrated", "driver", cfg.StoreConfig.Driver())
		fmt.Fprintf(cmd.OutOrStdout(), "%s store is up to date\n", cfg.StoreConfig.Driver())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
