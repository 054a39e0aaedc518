package auth

import "time"

// Role is the system-wide role of an account. Assigned at creation.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Status is the lifecycle state of an account.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// ParseStatus validates a client supplied status value.
func ParseStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusActive, StatusInactive:
		return Status(raw), true
	default:
		return "", false
	}
}

// Account is an identity record. PasswordHash is never serialized.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         Role      `json:"systemRole"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TokenRecord holds the single refresh token slot of an account.
type TokenRecord struct {
	AccountID    string
	RefreshToken *string
	IsVerified   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AccountFilter narrows account listings. Empty Status means all.
type AccountFilter struct {
	Status Status
	Offset int
	Limit  int
}

// Principal is the authenticated caller of a request.
type Principal struct {
	ID    string
	Email string
	Role  Role
}

// IsAdmin reports whether the principal holds the ADMIN role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
