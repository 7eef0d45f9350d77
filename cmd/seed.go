package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/victornm/adaptivequiz/internal/postgres"
	"github.com/victornm/adaptivequiz/internal/question"
)

func newSeedCmd(configPath *string) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert questions into Postgres, the built-in set unless --file is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if !c.Postgres.Enabled() {
				return fmt.Errorf("postgres.addr not configured")
			}

			qs := question.Default()
			if file != "" {
				if qs, err = question.LoadFile(file); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			if err := postgres.Migrate(ctx, c.Postgres.DSN()); err != nil {
				return err
			}

			db, err := postgres.Connect(ctx, c.Postgres.DSN())
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer db.Close()

			if err := question.NewPostgresBank(db).Import(ctx, qs); err != nil {
				return err
			}

			slog.InfoContext(ctx, "seed: imported questions", "count", len(qs))
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "YAML question file")
	return cmd
}
