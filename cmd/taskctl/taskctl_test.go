package main

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasktrack.dev/internal/auth"
	"tasktrack.dev/internal/store/memory"
)

func testApp(t *testing.T, db *sql.DB) (*app, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &app{
		openDB: func(string) (*sql.DB, error) { return db, nil },
		out:    &out,
		log:    logger,
	}, &out
}

func run(a *app, args ...string) error {
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

func TestMigrateRequiresDSN(t *testing.T) {
	t.Setenv("TASKTRACK_PG_DSN", "")
	a, _ := testApp(t, nil)
	err := run(a, "migrate", "up")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing DSN")
}

func TestMigrateStatusPrintsHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations order by applied_at asc").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_init.up.sql"))
	mock.ExpectClose()

	a, out := testApp(t, db)
	require.NoError(t, run(a, "--dsn", "postgres://test", "migrate", "status"))
	assert.Equal(t, "0001_init.up.sql\n", out.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateSeedFromDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001_demo.sql"), []byte("insert into t values (1);"), 0o600))

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_seeds").WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("insert into t values (1);")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectExec(regexp.QuoteMeta("insert into schema_seeds(name, applied_at)")).
		WithArgs("0001_demo.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectClose()

	a, _ := testApp(t, db)
	require.NoError(t, run(a, "--dsn", "postgres://test", "--seeds", dir, "migrate", "seed"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAdminNeedsPassword(t *testing.T) {
	t.Setenv("TASKTRACK_ADMIN_PASSWORD", "")
	a, _ := testApp(t, nil)
	err := run(a, "--dsn", "postgres://test", "users", "create-admin", "--email", "root@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password required")
}

func TestCreateAdminRequiresEmailFlag(t *testing.T) {
	a, _ := testApp(t, nil)
	require.Error(t, run(a, "--dsn", "postgres://test", "users", "create-admin", "--password", "secret1"))
}

func TestProvisionAdmin(t *testing.T) {
	store := memory.New()
	acc, err := provisionAdmin(context.Background(), store, auth.RegisterInput{
		Email: "Root@Example.com", Password: "secret1", Name: "Root",
	})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, acc.Role)
	assert.Equal(t, "root@example.com", acc.Email)

	_, err = provisionAdmin(context.Background(), store, auth.RegisterInput{
		Email: "root@example.com", Password: "secret1", Name: "Root",
	})
	assert.ErrorIs(t, err, auth.ErrConflict)
}
