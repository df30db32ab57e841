package main

import (
	idb "partner_tracker/internal/infra/database"
	"partner_tracker/internal/infra/logger"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt, err := loadBase(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.close()
		return idb.Migrate(cmd.Context(), rt.db, logger.For("migrate"))
	},
}
