package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"tasktrack.dev/internal/obs"
)

const minPasswordLength = 6

// Service implements registration, login, refresh rotation and request
// authentication on top of a Store.
type Service struct {
	store         Store
	tokens        *Tokens
	log           logrus.FieldLogger
	blockInactive bool
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithLogger overrides the logger used for rejected credentials.
func WithLogger(l logrus.FieldLogger) ServiceOption {
	return func(s *Service) error {
		if l != nil {
			s.log = l
		}
		return nil
	}
}

// WithBlockInactive makes login, refresh and authentication reject inactive accounts.
func WithBlockInactive(block bool) ServiceOption {
	return func(s *Service) error {
		s.blockInactive = block
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(store Store, tokens *Tokens, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token issuer is required")
	}
	svc := &Service{
		store:  store,
		tokens: tokens,
		log:    obs.Logger(),
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// RegisterInput carries the fields accepted at registration.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// TokenPair is what login and refresh hand back to the client.
type TokenPair struct {
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
}

// LoginResult bundles the tokens with the account they were issued for.
type LoginResult struct {
	Account    *Account
	IsVerified bool
	Tokens     TokenPair
}

// Register creates a USER account and its empty token record.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Account, error) {
	return s.Provision(ctx, in, RoleUser)
}

// Provision creates an account with an explicit role. Public registration
// always goes through Register; operators use this to bootstrap admins.
func (s *Service) Provision(ctx context.Context, in RegisterInput, role Role) (*Account, error) {
	email := normalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	if email == "" || in.Password == "" || name == "" {
		return nil, fmt.Errorf("%w: email, password and name are required", ErrInvalidInput)
	}
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: email is invalid", ErrInvalidInput)
	}
	if utf8.RuneCountInString(in.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if role != RoleUser && role != RoleAdmin {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	if _, err := s.store.FindAccountByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: email already in use", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: password must be at most 72 bytes", ErrInvalidInput)
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}

	acc := &Account{
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         role,
		Status:       StatusActive,
	}
	if err := s.store.CreateAccount(ctx, acc); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, fmt.Errorf("%w: email already in use", ErrConflict)
		}
		return nil, err
	}
	if err := s.store.CreateTokenRecord(ctx, acc.ID); err != nil {
		return nil, fmt.Errorf("create token record: %w", err)
	}
	obs.RecordAuthEvent("register", "ok")
	return acc, nil
}

// Login verifies credentials and replaces the account's refresh token slot.
// A failed attempt leaves the slot untouched.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return LoginResult{}, fmt.Errorf("%w: email and password required", ErrInvalidInput)
	}

	acc, err := s.store.FindAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			burnPasswordCheck(password)
			obs.RecordAuthEvent("login", "rejected")
			return LoginResult{}, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
		}
		return LoginResult{}, err
	}
	if !VerifyPassword(password, acc.PasswordHash) {
		obs.RecordAuthEvent("login", "rejected")
		return LoginResult{}, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}
	if s.blockInactive && acc.Status != StatusActive {
		obs.RecordAuthEvent("login", "inactive")
		return LoginResult{}, fmt.Errorf("%w: account is inactive", ErrUnauthorized)
	}

	access, exp, err := s.tokens.IssueAccessToken(acc.ID, acc.Email, acc.Role)
	if err != nil {
		return LoginResult{}, err
	}
	refresh, err := NewRefreshToken()
	if err != nil {
		return LoginResult{}, err
	}
	if err := s.store.SetRefreshToken(ctx, acc.ID, refresh); err != nil {
		return LoginResult{}, fmt.Errorf("store refresh token: %w", err)
	}

	verified := false
	rec, err := s.store.FindTokenRecord(ctx, acc.ID)
	switch {
	case err == nil:
		verified = rec.IsVerified
	case !errors.Is(err, ErrNotFound):
		return LoginResult{}, err
	}

	obs.RecordAuthEvent("login", "ok")
	return LoginResult{
		Account:    acc,
		IsVerified: verified,
		Tokens: TokenPair{
			AccessToken:     access,
			RefreshToken:    refresh,
			AccessExpiresAt: exp,
		},
	}, nil
}

// Refresh exchanges a live refresh token for a new access token and rotates
// the slot. The presented token stops resolving once this returns.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return TokenPair{}, fmt.Errorf("%w: refreshToken is required", ErrInvalidInput)
	}

	rec, err := s.store.FindTokenByRefresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.RecordAuthEvent("refresh", "rejected")
			return TokenPair{}, fmt.Errorf("%w: invalid refresh token", ErrUnauthorized)
		}
		return TokenPair{}, err
	}
	acc, err := s.store.FindAccountByID(ctx, rec.AccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.RecordAuthEvent("refresh", "rejected")
			return TokenPair{}, fmt.Errorf("%w: invalid refresh token", ErrUnauthorized)
		}
		return TokenPair{}, err
	}
	if s.blockInactive && acc.Status != StatusActive {
		obs.RecordAuthEvent("refresh", "inactive")
		return TokenPair{}, fmt.Errorf("%w: account is inactive", ErrUnauthorized)
	}

	// The refresh path does not re-read the email; the claim stays empty.
	access, exp, err := s.tokens.IssueAccessToken(acc.ID, "", acc.Role)
	if err != nil {
		return TokenPair{}, err
	}
	next, err := NewRefreshToken()
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.RotateRefreshToken(ctx, acc.ID, refreshToken, next); err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.RecordAuthEvent("refresh", "raced")
			return TokenPair{}, fmt.Errorf("%w: invalid refresh token", ErrUnauthorized)
		}
		return TokenPair{}, fmt.Errorf("rotate refresh token: %w", err)
	}

	obs.RecordAuthEvent("refresh", "ok")
	return TokenPair{
		AccessToken:     access,
		RefreshToken:    next,
		AccessExpiresAt: exp,
	}, nil
}

// Authenticate turns a raw Authorization header value into a Principal.
// Errors wrap ErrMissingCredential or ErrInvalidCredential unless the store
// itself failed. It never writes to the store.
func (s *Service) Authenticate(ctx context.Context, header string) (Principal, error) {
	token := bearerToken(header)
	if token == "" {
		obs.RecordAuthEvent("authenticate", "missing")
		return Principal{}, ErrMissingCredential
	}

	claims, err := s.tokens.VerifyAccessToken(token)
	if err != nil {
		s.log.WithError(err).Warn("access token rejected")
		obs.RecordAuthEvent("authenticate", "invalid")
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	ref, byEmail, ok := claims.Identity()
	if !ok {
		s.log.Warn("access token carries no account reference")
		obs.RecordAuthEvent("authenticate", "invalid")
		return Principal{}, fmt.Errorf("%w: token payload carries no account reference", ErrInvalidCredential)
	}

	var acc *Account
	if byEmail {
		acc, err = s.store.FindAccountByEmail(ctx, normalizeEmail(ref))
	} else {
		acc, err = s.store.FindAccountByID(ctx, ref)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.RecordAuthEvent("authenticate", "unknown_account")
			return Principal{}, fmt.Errorf("%w: account not found", ErrInvalidCredential)
		}
		return Principal{}, err
	}
	if s.blockInactive && acc.Status != StatusActive {
		obs.RecordAuthEvent("authenticate", "inactive")
		return Principal{}, fmt.Errorf("%w: account is inactive", ErrInvalidCredential)
	}

	obs.RecordAuthEvent("authenticate", "ok")
	return Principal{ID: acc.ID, Email: acc.Email, Role: acc.Role}, nil
}

// bearerToken strips a case-insensitive "Bearer" scheme. A header without a
// scheme is taken as the raw token.
func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	const scheme = "bearer"
	if len(header) >= len(scheme) && strings.EqualFold(header[:len(scheme)], scheme) {
		rest := header[len(scheme):]
		if rest == "" {
			return ""
		}
		if rest[0] == ' ' || rest[0] == '\t' {
			return strings.TrimSpace(rest)
		}
	}
	return header
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
