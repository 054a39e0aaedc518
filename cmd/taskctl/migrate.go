package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema.",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.withDB(cmd, func(ctx context.Context, db *sql.DB) error {
					return a.migrator(db).Up(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.withDB(cmd, func(ctx context.Context, db *sql.DB) error {
					return a.migrator(db).Down(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Load demo data that has not been loaded yet.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.withDB(cmd, func(ctx context.Context, db *sql.DB) error {
					return a.migrator(db).Seed(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List applied migrations in order.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.withDB(cmd, func(ctx context.Context, db *sql.DB) error {
					history, err := a.migrator(db).Status(ctx)
					if err != nil {
						return err
					}
					for _, name := range history {
						fmt.Fprintln(cmd.OutOrStdout(), name)
					}
					return nil
				})
			},
		},
	)
	return cmd
}
