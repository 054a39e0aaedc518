package auth

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt work factor used for every stored hash.
const PasswordCost = 10

// HashPassword hashes plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches the stored hash.
// Malformed hashes never match.
func VerifyPassword(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

var (
	decoyOnce sync.Once
	decoyHash string
)

// burnPasswordCheck runs a bcrypt comparison against a fixed hash so that a
// login for an unknown email costs the same as a wrong password.
func burnPasswordCheck(password string) {
	decoyOnce.Do(func() {
		decoyHash, _ = HashPassword("tasktrack-decoy-password")
	})
	_ = VerifyPassword(password, decoyHash)
}
