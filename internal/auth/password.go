// Package auth holds password hashing for the user service.
package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"go.pilab.hu/webstarter/services"
)

// BcryptPasswordHasher hashes passwords with bcrypt at a fixed cost.
type BcryptPasswordHasher struct {
	Cost int
}

var _ services.PasswordHasher = (*BcryptPasswordHasher)(nil)

// NewBcryptPasswordHasher returns a hasher at the given cost; a cost of
// zero or less falls back to bcrypt.DefaultCost.
func NewBcryptPasswordHasher(cost int) *BcryptPasswordHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}

	return &BcryptPasswordHasher{Cost: cost}
}

// Hash derives the storable hash for a plaintext password.
func (h *BcryptPasswordHasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash generation failed: %w", err)
	}

	return string(hashed), nil
}

// Verify reports whether password matches hashedPassword, returning nil on
// a match and bcrypt's mismatch error otherwise.
func (h *BcryptPasswordHasher) Verify(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}
