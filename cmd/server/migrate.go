package main

import (
	"errors"

	"github.com/spf13/cobra"

	"mppchs/internal/platform/config"
	"mppchs/internal/platform/logger"
	"mppchs/internal/platform/postgres"
)

func newMigrateCmd() *cobra.Command {
	var envFiles []string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(envFiles...)
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("DATABASE_URL is required to migrate")
			}
			log := logger.New(cfg.Log)

			applied, err := postgres.Migrate(cmd.Context(), cfg.Database.URL)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				log.InfoContext(cmd.Context(), "database schema is up to date")
				return nil
			}
			for _, m := range applied {
				log.InfoContext(cmd.Context(), "migration applied", "name", m.Name, "checksum", m.Checksum)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&envFiles, "env-file", config.DefaultEnvFiles, "env files to load before reading the environment")
	return cmd
}
