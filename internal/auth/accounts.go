package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// ListQuery is the admin listing request. Status is all, active or inactive.
type ListQuery struct {
	Page   int
	Limit  int
	Status string
}

// AccountPage is one page of an account listing.
type AccountPage struct {
	Page     int        `json:"page"`
	Limit    int        `json:"limit"`
	Total    int        `json:"total"`
	Accounts []*Account `json:"users"`
}

// AccountService implements self-service profile reads and admin user management.
type AccountService struct {
	store AccountStore
}

func NewAccountService(store AccountStore) (*AccountService, error) {
	if store == nil {
		return nil, errors.New("account store is required")
	}
	return &AccountService{store: store}, nil
}

// Profile returns the caller's own account.
func (s *AccountService) Profile(ctx context.Context, p Principal) (*Account, error) {
	if p.ID == "" {
		return nil, ErrUnauthorized
	}
	return s.store.FindAccountByID(ctx, p.ID)
}

func (s *AccountService) List(ctx context.Context, p Principal, q ListQuery) (AccountPage, error) {
	if !CanManageUsers(p) {
		return AccountPage{}, fmt.Errorf("%w: admin only", ErrForbidden)
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	switch {
	case limit == 0:
		limit = defaultPageLimit
	case limit < 1:
		limit = 1
	case limit > maxPageLimit:
		limit = maxPageLimit
	}

	filter := AccountFilter{Offset: (page - 1) * limit, Limit: limit}
	raw := strings.ToLower(strings.TrimSpace(q.Status))
	if raw != "" && raw != "all" {
		status, ok := ParseStatus(raw)
		if !ok {
			return AccountPage{}, fmt.Errorf("%w: invalid status filter", ErrInvalidInput)
		}
		filter.Status = status
	}

	accounts, total, err := s.store.ListAccounts(ctx, filter)
	if err != nil {
		return AccountPage{}, err
	}
	if accounts == nil {
		accounts = []*Account{}
	}
	return AccountPage{Page: page, Limit: limit, Total: total, Accounts: accounts}, nil
}

// SetStatus activates or deactivates an account.
func (s *AccountService) SetStatus(ctx context.Context, p Principal, id, status string) (*Account, error) {
	if !CanManageUsers(p) {
		return nil, fmt.Errorf("%w: admin only", ErrForbidden)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	parsed, ok := ParseStatus(strings.TrimSpace(status))
	if !ok {
		return nil, fmt.Errorf("%w: invalid or missing status, allowed: active, inactive", ErrInvalidInput)
	}
	return s.store.UpdateAccountStatus(ctx, id, parsed)
}

// SoftDelete marks the account inactive. Rows are never removed.
func (s *AccountService) SoftDelete(ctx context.Context, p Principal, id string) (*Account, error) {
	return s.SetStatus(ctx, p, id, string(StatusInactive))
}
