package auth_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasktrack.dev/internal/auth"
	"tasktrack.dev/internal/store/memory"
)

const testSecret = "test-secret"

func newService(t *testing.T, opts ...auth.ServiceOption) (*auth.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	tokens, err := auth.NewTokens(testSecret)
	require.NoError(t, err)
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	opts = append([]auth.ServiceOption{auth.WithLogger(logger)}, opts...)
	svc, err := auth.NewService(store, tokens, opts...)
	require.NoError(t, err)
	return svc, store
}

func register(t *testing.T, svc *auth.Service, email string) *auth.Account {
	t.Helper()
	acc, err := svc.Register(context.Background(), auth.RegisterInput{Email: email, Password: "secret1", Name: "Test"})
	require.NoError(t, err)
	return acc
}

func TestRegisterCreatesUserWithTokenRecord(t *testing.T) {
	svc, store := newService(t)
	acc := register(t, svc, " Alice@Example.com ")

	assert.Equal(t, "alice@example.com", acc.Email)
	assert.Equal(t, auth.RoleUser, acc.Role)
	assert.Equal(t, auth.StatusActive, acc.Status)
	assert.NotEqual(t, "secret1", acc.PasswordHash)

	rec, err := store.FindTokenRecord(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Nil(t, rec.RefreshToken)
	assert.False(t, rec.IsVerified)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	cases := []auth.RegisterInput{
		{Email: "", Password: "secret1", Name: "n"},
		{Email: "a@x.io", Password: "", Name: "n"},
		{Email: "a@x.io", Password: "secret1", Name: " "},
		{Email: "no-at-sign", Password: "secret1", Name: "n"},
		{Email: "a@x.io", Password: "short", Name: "n"},
	}
	for _, in := range cases {
		_, err := svc.Register(ctx, in)
		assert.ErrorIs(t, err, auth.ErrInvalidInput, "%+v", in)
	}
}

func TestRegisterDuplicateEmailCaseInsensitive(t *testing.T) {
	svc, _ := newService(t)
	register(t, svc, "bob@example.com")
	_, err := svc.Register(context.Background(), auth.RegisterInput{Email: "BOB@example.com", Password: "secret1", Name: "Bob"})
	assert.ErrorIs(t, err, auth.ErrConflict)
}

func TestLoginRejectsBadCredentialsWithoutTouchingSlot(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	acc := register(t, svc, "carol@example.com")

	first, err := svc.Login(ctx, "carol@example.com", "secret1")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "carol@example.com", "wrong-pass")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
	_, err = svc.Login(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	rec, err := store.FindTokenRecord(ctx, acc.ID)
	require.NoError(t, err)
	require.NotNil(t, rec.RefreshToken)
	assert.Equal(t, first.Tokens.RefreshToken, *rec.RefreshToken)
}

func TestLoginIssuesTokens(t *testing.T) {
	svc, _ := newService(t)
	acc := register(t, svc, "dave@example.com")

	res, err := svc.Login(context.Background(), "DAVE@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, res.Account.ID)
	assert.False(t, res.IsVerified)
	assert.Len(t, res.Tokens.RefreshToken, 80)
	assert.WithinDuration(t, time.Now().Add(auth.AccessTokenTTL), res.Tokens.AccessExpiresAt, 5*time.Second)

	p, err := svc.Authenticate(context.Background(), "Bearer "+res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, auth.Principal{ID: acc.ID, Email: acc.Email, Role: auth.RoleUser}, p)
}

func TestSecondLoginDisplacesRefreshToken(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	register(t, svc, "erin@example.com")

	first, err := svc.Login(ctx, "erin@example.com", "secret1")
	require.NoError(t, err)
	second, err := svc.Login(ctx, "erin@example.com", "secret1")
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, first.Tokens.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
	_, err = svc.Refresh(ctx, second.Tokens.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshRotatesSlot(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	acc := register(t, svc, "frank@example.com")
	login, err := svc.Login(ctx, "frank@example.com", "secret1")
	require.NoError(t, err)

	pair, err := svc.Refresh(ctx, login.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, login.Tokens.RefreshToken, pair.RefreshToken)

	_, err = svc.Refresh(ctx, login.Tokens.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrUnauthorized, "spent refresh token must not resolve")

	// The refreshed access token carries no email but still authenticates.
	claims, err := mustTokens(t).VerifyAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Empty(t, claims.Email)
	p, err := svc.Authenticate(ctx, "Bearer "+pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, p.ID)

	_, err = svc.Refresh(ctx, "")
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
}

func TestAuthenticateHeaderForms(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	register(t, svc, "gina@example.com")
	res, err := svc.Login(ctx, "gina@example.com", "secret1")
	require.NoError(t, err)
	token := res.Tokens.AccessToken

	for _, header := range []string{"Bearer " + token, "bearer " + token, "BEARER  " + token, token} {
		_, err := svc.Authenticate(ctx, header)
		assert.NoError(t, err, header)
	}
	for _, header := range []string{"", "   ", "Bearer", "Bearer   "} {
		_, err := svc.Authenticate(ctx, header)
		assert.ErrorIs(t, err, auth.ErrMissingCredential, "%q", header)
	}
	_, err = svc.Authenticate(ctx, "Bearer not-a-jwt")
	assert.ErrorIs(t, err, auth.ErrInvalidCredential)
}

func TestAuthenticateLegacyClaims(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	acc := register(t, svc, "hank@example.com")

	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))
	cases := map[string]auth.AccessClaims{
		"userId": {UserID: acc.ID, RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp}},
		"sub":    {RegisteredClaims: jwt.RegisteredClaims{Subject: acc.ID, ExpiresAt: exp}},
		"email":  {Email: "Hank@Example.com", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp}},
	}
	for name, claims := range cases {
		raw := sign(t, claims)
		p, err := svc.Authenticate(ctx, "Bearer "+raw)
		require.NoError(t, err, name)
		assert.Equal(t, acc.ID, p.ID, name)
	}

	raw := sign(t, auth.AccessClaims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp}})
	_, err := svc.Authenticate(ctx, "Bearer "+raw)
	assert.ErrorIs(t, err, auth.ErrInvalidCredential)

	raw = sign(t, auth.AccessClaims{ID: "01HZZZZZZZZZZZZZZZZZZZZZZZ", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp}})
	_, err = svc.Authenticate(ctx, "Bearer "+raw)
	assert.ErrorIs(t, err, auth.ErrInvalidCredential)
}

func TestBlockInactive(t *testing.T) {
	ctx := context.Background()

	lenient, store := newService(t)
	acc := register(t, lenient, "ivy@example.com")
	res, err := lenient.Login(ctx, "ivy@example.com", "secret1")
	require.NoError(t, err)
	_, err = store.UpdateAccountStatus(ctx, acc.ID, auth.StatusInactive)
	require.NoError(t, err)
	_, err = lenient.Authenticate(ctx, "Bearer "+res.Tokens.AccessToken)
	assert.NoError(t, err, "inactive accounts authenticate unless blocked")

	strict, store := newService(t, auth.WithBlockInactive(true))
	acc = register(t, strict, "jack@example.com")
	res, err = strict.Login(ctx, "jack@example.com", "secret1")
	require.NoError(t, err)
	_, err = store.UpdateAccountStatus(ctx, acc.ID, auth.StatusInactive)
	require.NoError(t, err)

	_, err = strict.Authenticate(ctx, "Bearer "+res.Tokens.AccessToken)
	assert.ErrorIs(t, err, auth.ErrInvalidCredential)
	_, err = strict.Login(ctx, "jack@example.com", "secret1")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
	_, err = strict.Refresh(ctx, res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestProvisionAdmin(t *testing.T) {
	svc, _ := newService(t)
	acc, err := svc.Provision(context.Background(), auth.RegisterInput{Email: "root@example.com", Password: "secret1", Name: "Root"}, auth.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, acc.Role)

	_, err = svc.Provision(context.Background(), auth.RegisterInput{Email: "x@example.com", Password: "secret1", Name: "X"}, auth.Role("OWNER"))
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
}

func mustTokens(t *testing.T) *auth.Tokens {
	t.Helper()
	tokens, err := auth.NewTokens(testSecret)
	require.NoError(t, err)
	return tokens
}

func sign(t *testing.T, claims auth.AccessClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return raw
}
