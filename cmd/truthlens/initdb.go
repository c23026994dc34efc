package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/bdougie/truthlens/internal/storage"
)

var initdbCmd = &cobra.Command{
	Use:   "initdb",
	Short: "Create the Postgres report archive schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Archive.DatabaseURL == "" {
			return eris.New("archive.database_url is not set")
		}

		pool, err := storage.Connect(cmd.Context(), storage.PostgresConfig{URL: cfg.Archive.DatabaseURL})
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := storage.InitSchema(cmd.Context(), pool); err != nil {
			return err
		}
		logger.Info("schema ready")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initdbCmd)
}
