package main

import (
	"github.com/spf13/cobra"

	"github.com/flexcoop/archivist/internal/config"
	"github.com/flexcoop/archivist/internal/linkstore"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply link store schema migrations",
	Long:  "Opens (creating if necessary) the link store database and runs its schema migration, then exits. linkstore.NewStore runs migrations as part of opening the database, so this command's job is mostly to surface a clean exit code for deploy scripts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		bootstrapLogger(cfg)

		store, err := linkstore.NewStore(cfg.LinkStore.DBPath)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		return emitReport(map[string]interface{}{
			"db_path": cfg.LinkStore.DBPath,
			"status":  "migrated",
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
