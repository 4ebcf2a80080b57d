package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var purgeOlderThan time.Duration

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete old cached identifications from Postgres",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !cfg.CacheEnabled() {
			return errors.New("cache is disabled: set DATABASE_URL")
		}
		age := purgeOlderThan
		if age <= 0 {
			age = cfg.CacheMaxAge
		}
		repo, db, err := openRepo(cmd.Context(), cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := repo.PurgeOlderThan(cmd.Context(), age)
		if err != nil {
			return err
		}
		logger.Info("purged", zap.Int64("rows", n), zap.Duration("older_than", age))
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d rows\n", n)
		return nil
	},
}
