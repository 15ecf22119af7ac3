package main

import (
	"fmt"

	"github.com/sakashimaa/vani-inventory/migrations"
	"github.com/sakashimaa/vani-inventory/pkg/db"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if err := db.Migrate(cfg.Postgres.URL, migrations.FS); err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return err
		},
	}
}
