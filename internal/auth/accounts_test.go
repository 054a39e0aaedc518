package auth_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasktrack.dev/internal/auth"
	"tasktrack.dev/internal/store/memory"
)

func seedAccounts(t *testing.T, store *memory.Store, n int) []*auth.Account {
	t.Helper()
	out := make([]*auth.Account, 0, n)
	for i := 0; i < n; i++ {
		acc := &auth.Account{
			Email:        fmt.Sprintf("user%02d@example.com", i),
			PasswordHash: "x",
			Name:         "User",
			Role:         auth.RoleUser,
			Status:       auth.StatusActive,
		}
		require.NoError(t, store.CreateAccount(context.Background(), acc))
		out = append(out, acc)
	}
	return out
}

func TestAccountListRequiresAdmin(t *testing.T) {
	store := memory.New()
	svc, err := auth.NewAccountService(store)
	require.NoError(t, err)

	_, err = svc.List(context.Background(), auth.Principal{ID: "u", Role: auth.RoleUser}, auth.ListQuery{})
	assert.ErrorIs(t, err, auth.ErrForbidden)
	_, err = svc.SetStatus(context.Background(), auth.Principal{ID: "u", Role: auth.RoleUser}, "x", "inactive")
	assert.ErrorIs(t, err, auth.ErrForbidden)
}

func TestAccountListPaging(t *testing.T) {
	store := memory.New()
	seedAccounts(t, store, 12)
	svc, err := auth.NewAccountService(store)
	require.NoError(t, err)
	admin := auth.Principal{ID: "admin", Role: auth.RoleAdmin}
	ctx := context.Background()

	page, err := svc.List(ctx, admin, auth.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 10, page.Limit)
	assert.Equal(t, 12, page.Total)
	assert.Len(t, page.Accounts, 10)

	page, err = svc.List(ctx, admin, auth.ListQuery{Page: 2, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page.Accounts, 2)

	page, err = svc.List(ctx, admin, auth.ListQuery{Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, 100, page.Limit)

	_, err = svc.List(ctx, admin, auth.ListQuery{Status: "banned"})
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
}

func TestAccountSoftDelete(t *testing.T) {
	store := memory.New()
	accounts := seedAccounts(t, store, 2)
	svc, err := auth.NewAccountService(store)
	require.NoError(t, err)
	admin := auth.Principal{ID: "admin", Role: auth.RoleAdmin}
	ctx := context.Background()

	acc, err := svc.SoftDelete(ctx, admin, accounts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, auth.StatusInactive, acc.Status)

	// The row survives and shows up under the inactive filter.
	page, err := svc.List(ctx, admin, auth.ListQuery{Status: "inactive"})
	require.NoError(t, err)
	require.Len(t, page.Accounts, 1)
	assert.Equal(t, accounts[0].ID, page.Accounts[0].ID)

	_, err = svc.SetStatus(ctx, admin, accounts[1].ID, "deleted")
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
	_, err = svc.SoftDelete(ctx, admin, "missing")
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestProfileReturnsOwnAccount(t *testing.T) {
	store := memory.New()
	accounts := seedAccounts(t, store, 1)
	svc, err := auth.NewAccountService(store)
	require.NoError(t, err)

	acc, err := svc.Profile(context.Background(), auth.Principal{ID: accounts[0].ID})
	require.NoError(t, err)
	assert.Equal(t, accounts[0].Email, acc.Email)

	_, err = svc.Profile(context.Background(), auth.Principal{})
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}
