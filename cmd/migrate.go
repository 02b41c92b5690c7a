package main

import (
	"github.com/spf13/cobra"

	"github.com/yungbote/craftflow-backend/internal/data/db"
)

var migrateCommand = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		defer log.Sync()

		svc, err := db.Open(log, cfg.DB)
		if err != nil {
			return err
		}
		defer svc.Close()
		if err := db.AutoMigrateAll(svc.DB()); err != nil {
			return err
		}
		log.Info("Migration complete", "driver", cfg.DB.Driver)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCommand)
}
