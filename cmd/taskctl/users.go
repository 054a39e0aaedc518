package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tasktrack.dev/internal/auth"
	"tasktrack.dev/internal/store/pg"
)

func newUsersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage accounts outside the HTTP API.",
	}

	var email, name, password string
	createAdmin := &cobra.Command{
		Use:     "create-admin",
		Short:   "Create an ADMIN account.",
		Long:    "Public registration only creates USER accounts. Use this to bootstrap the first administrator.",
		Example: "TASKTRACK_ADMIN_PASSWORD=... taskctl users create-admin --email root@example.com --name Root",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("TASKTRACK_ADMIN_PASSWORD")
			}
			if password == "" {
				return errors.New("password required: pass --password or set TASKTRACK_ADMIN_PASSWORD")
			}
			return a.withDB(cmd, func(ctx context.Context, db *sql.DB) error {
				acc, err := provisionAdmin(ctx, pg.New(db), auth.RegisterInput{
					Email:    email,
					Password: password,
					Name:     name,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", acc.Email, acc.ID)
				return nil
			})
		},
	}
	createAdmin.Flags().StringVar(&email, "email", "", "admin email")
	createAdmin.Flags().StringVar(&name, "name", "Administrator", "display name")
	createAdmin.Flags().StringVar(&password, "password", "", "initial password (default $TASKTRACK_ADMIN_PASSWORD)")
	_ = createAdmin.MarkFlagRequired("email")

	cmd.AddCommand(createAdmin)
	return cmd
}

func provisionAdmin(ctx context.Context, store auth.Store, in auth.RegisterInput) (*auth.Account, error) {
	// Provisioning never signs tokens, so a throwaway key is enough.
	key, err := auth.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	tokens, err := auth.NewTokens(key)
	if err != nil {
		return nil, err
	}
	svc, err := auth.NewService(store, tokens)
	if err != nil {
		return nil, err
	}
	return svc.Provision(ctx, in, auth.RoleAdmin)
}
