//go:build integration

package pg

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"tasktrack.dev/internal/auth"
	"tasktrack.dev/internal/migrate"
	"tasktrack.dev/internal/tasks"
)

func setupPostgres(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("tasktrack_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	store, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.DB().PingContext(ctx))

	mgr := migrate.NewManager(store.DB(), filepath.Join("..", "..", "..", "ops", "migrations", "sql"), "")
	require.NoError(t, mgr.Up(ctx))
	return store
}

func TestPostgresTaskLifecycle(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	acc := &auth.Account{Email: "a@example.com", PasswordHash: "h", Name: "A", Role: auth.RoleUser, Status: auth.StatusActive}
	require.NoError(t, store.CreateAccount(ctx, acc))
	require.ErrorIs(t, store.CreateAccount(ctx, &auth.Account{Email: "a@example.com", PasswordHash: "h", Name: "B", Role: auth.RoleUser, Status: auth.StatusActive}), auth.ErrConflict)
	require.NoError(t, store.CreateTokenRecord(ctx, acc.ID))

	require.NoError(t, store.SetRefreshToken(ctx, acc.ID, "r1"))
	require.NoError(t, store.RotateRefreshToken(ctx, acc.ID, "r1", "r2"))
	assert.ErrorIs(t, store.RotateRefreshToken(ctx, acc.ID, "r1", "r3"), auth.ErrNotFound)

	task := &tasks.Task{Title: "t", Description: "d", Status: tasks.StatusOpen, CreatedBy: acc.ID, AssignedTo: acc.ID}
	require.NoError(t, store.CreateTask(ctx, task))
	require.NoError(t, store.CreateComment(ctx, &tasks.Comment{TaskID: task.ID, UserID: acc.ID, Comment: "hello"}))

	done := tasks.StatusCompleted
	now := time.Now().UTC()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  int
		terminal int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.UpdateTask(ctx, task.ID, tasks.Changes{Status: &done, CompletedAt: &now})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners++
			} else if assert.ErrorIs(t, err, tasks.ErrTerminalState) {
				terminal++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
	assert.Equal(t, 4, terminal)

	items, err := store.ListTasksWithRelations(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Len(t, items[0].Comments, 1)
	assert.NotNil(t, items[0].CompletedAt)

	require.NoError(t, store.DeleteTaskCascade(ctx, task.ID))
	comments, err := store.ListComments(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, comments)
}
