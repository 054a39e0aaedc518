package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer = "tasktrack"

	// AccessTokenTTL is fixed; clients refresh instead of asking for longer tokens.
	AccessTokenTTL = time.Hour

	refreshTokenBytes = 40
)

var errMissingSecret = errors.New("auth secret is not configured")

// AccessClaims is the claim set carried by access tokens. Older tokens used
// userId or sub for the account id, so all three are accepted on the way in.
type AccessClaims struct {
	ID     string `json:"id,omitempty"`
	UserID string `json:"userId,omitempty"`
	Email  string `json:"email"`
	Role   Role   `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity resolves the account reference in priority order id, userId, sub.
// When none is present the email claim is returned with byEmail set.
func (c *AccessClaims) Identity() (ref string, byEmail bool, ok bool) {
	for _, candidate := range []string{c.ID, c.UserID, c.Subject} {
		if v := strings.TrimSpace(candidate); v != "" {
			return v, false, true
		}
	}
	if v := strings.TrimSpace(c.Email); v != "" {
		return v, true, true
	}
	return "", false, false
}

// Tokens signs and verifies access tokens with a process-wide HS256 secret.
type Tokens struct {
	secret []byte
	now    func() time.Time
}

// TokensOption configures Tokens.
type TokensOption func(*Tokens)

// WithTokenClock overrides the time source used for issuance and expiry checks.
func WithTokenClock(fn func() time.Time) TokensOption {
	return func(t *Tokens) {
		if fn != nil {
			t.now = fn
		}
	}
}

// NewTokens builds a Tokens bound to secret. The secret is copied and never
// changes for the lifetime of the value.
func NewTokens(secret string, opts ...TokensOption) (*Tokens, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errMissingSecret
	}
	t := &Tokens{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// IssueAccessToken signs a token for the account valid for AccessTokenTTL.
// email may be empty when it is not known at issuance time.
func (t *Tokens) IssueAccessToken(accountID, email string, role Role) (string, time.Time, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return "", time.Time{}, errors.New("account id is required")
	}

	// Whole seconds so that exp is exactly iat + AccessTokenTTL on the wire.
	now := t.now().UTC().Truncate(time.Second)
	exp := now.Add(AccessTokenTTL)
	claims := AccessClaims{
		ID:    accountID,
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// VerifyAccessToken checks signature and expiry. Errors wrap ErrInvalidToken
// and one of ErrTokenMalformed, ErrTokenSignature or ErrTokenExpired.
func (t *Tokens) VerifyAccessToken(token string) (*AccessClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenMalformed
	}

	parsed, err := jwt.ParseWithClaims(token, &AccessClaims{}, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, classifyJWTError(err)
	}
	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w (%v)", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w (%v)", ErrTokenSignature, err)
	default:
		return fmt.Errorf("%w (%v)", ErrTokenMalformed, err)
	}
}

// NewRefreshToken returns an opaque capability token: 40 random bytes, hex encoded.
func NewRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
