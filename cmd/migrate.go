package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/victornm/adaptivequiz/internal/postgres"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if !c.Postgres.Enabled() {
				return fmt.Errorf("postgres.addr not configured")
			}

			return postgres.Migrate(cmd.Context(), c.Postgres.DSN())
		},
	}
}
