package auth

import "context"

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	AccountStore
	TokenStore
}

// AccountStore manages accounts.
type AccountStore interface {
	// CreateAccount inserts acc, filling ID and timestamps. Returns ErrConflict
	// when the email is already registered.
	CreateAccount(ctx context.Context, acc *Account) error
	FindAccountByID(ctx context.Context, id string) (*Account, error)
	FindAccountByEmail(ctx context.Context, email string) (*Account, error)
	ListAccounts(ctx context.Context, filter AccountFilter) ([]*Account, int, error)
	UpdateAccountStatus(ctx context.Context, id string, status Status) (*Account, error)
}

// TokenStore manages the per-account refresh token slot.
type TokenStore interface {
	CreateTokenRecord(ctx context.Context, accountID string) error
	FindTokenRecord(ctx context.Context, accountID string) (*TokenRecord, error)
	FindTokenByRefresh(ctx context.Context, refreshToken string) (*TokenRecord, error)
	// SetRefreshToken replaces the slot unconditionally. Last writer wins.
	SetRefreshToken(ctx context.Context, accountID, refreshToken string) error
	// RotateRefreshToken replaces the slot only while it still holds current.
	// Returns ErrNotFound if another rotation got there first.
	RotateRefreshToken(ctx context.Context, accountID, current, next string) error
}
