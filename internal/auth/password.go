package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/joao-fontenele/marketplace/internal/domain"
)

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword returns ErrUnauthorized when password does not match hash.
// A malformed hash is treated the same as a mismatch.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return fmt.Errorf("%w: invalid credentials", domain.ErrUnauthorized)
	}
	return nil
}
