package migrate

import (
	"context"
	"io"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	sql := `-- header; with a semicolon
create table a (v text default 'x;y');
insert into a values ('it''s'); -- trailing
select 1`
	stmts := splitStatements(sql)
	require.Len(t, stmts, 3)
	assert.Contains(t, stmts[0], "'x;y'")
	assert.NotContains(t, stmts[0], "header")
	assert.Contains(t, stmts[1], "'it''s'")
	assert.Equal(t, "select 1", strings.TrimSpace(stmts[2]))
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestUpAppliesPendingInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	files := fstest.MapFS{
		"0002_more.up.sql":   {Data: []byte("create table b (id int);")},
		"0001_init.up.sql":   {Data: []byte("create table a (id int);")},
		"0001_init.down.sql": {Data: []byte("drop table a;")},
	}
	mgr := NewManagerFS(db, files, nil, WithLogger(quietLogger()))

	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_init.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("create table b").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec("insert into schema_migrations").
		WithArgs("0002_more.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, mgr.Up(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDownRequiresDownFile(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	files := fstest.MapFS{"0001_init.up.sql": {Data: []byte("create table a (id int);")}}
	mgr := NewManagerFS(db, files, nil, WithLogger(quietLogger()))

	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations order by applied_at").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_init.up.sql"))

	err = mgr.Down(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing down migration")
}
