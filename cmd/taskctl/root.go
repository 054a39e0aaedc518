package main

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"io/fs"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tasktrack.dev/internal/migrate"
	"tasktrack.dev/internal/obs"
	"tasktrack.dev/ops/migrations"
)

// app holds the process dependencies the commands share.
type app struct {
	openDB func(dsn string) (*sql.DB, error)
	out    io.Writer
	log    logrus.FieldLogger

	dsn            string
	migrationsPath string
	seedsPath      string
	timeout        time.Duration
}

func defaultApp() *app {
	return &app{
		openDB: func(dsn string) (*sql.DB, error) { return sql.Open("pgx", dsn) },
		out:    os.Stdout,
		log:    obs.Logger(),
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "taskctl",
		Short:         "Operate the tasktrack database.",
		Long:          "taskctl applies schema migrations, loads demo data and bootstraps administrator accounts.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(a.out)
	root.SetErr(a.out)

	flags := root.PersistentFlags()
	flags.StringVar(&a.dsn, "dsn", os.Getenv("TASKTRACK_PG_DSN"), "PostgreSQL DSN (default $TASKTRACK_PG_DSN)")
	flags.StringVar(&a.migrationsPath, "migrations", "", "directory of SQL migrations (default: embedded)")
	flags.StringVar(&a.seedsPath, "seeds", "", "directory of SQL seeds (default: embedded)")
	flags.DurationVar(&a.timeout, "timeout", 30*time.Second, "overall command timeout")

	root.AddCommand(newMigrateCmd(a), newUsersCmd(a))
	return root
}

// withDB opens the database for the duration of fn.
func (a *app) withDB(cmd *cobra.Command, fn func(ctx context.Context, db *sql.DB) error) error {
	if a.dsn == "" {
		return errors.New("missing DSN: provide --dsn or TASKTRACK_PG_DSN")
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
	defer cancel()

	db, err := a.openDB(a.dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(ctx, db)
}

func (a *app) migrator(db *sql.DB) *migrate.Manager {
	var sqlFS, seedFS fs.FS = migrations.SQL(), migrations.Seeds()
	if a.migrationsPath != "" {
		sqlFS = os.DirFS(a.migrationsPath)
	}
	if a.seedsPath != "" {
		seedFS = os.DirFS(a.seedsPath)
	}
	return migrate.NewManagerFS(db, sqlFS, seedFS, migrate.WithLogger(a.log))
}
