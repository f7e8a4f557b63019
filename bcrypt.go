package auth

import (
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// HashPassword will generate a password hash
func HashPassword(password string) (string, error) {
	return HashPasswordCost(password, passwordHashCost())
}

// HashPasswordCost generates a password hash with an explicit work factor
func HashPasswordCost(password string, cost int) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(h), err
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

// RandomPasswordHash is a throwaway hash for equalizing compares when no
// account matched. The cost must match the cost real hashes are stored at.
func RandomPasswordHash(cost int) string {
	pwd := uuid.New()

	h, err := HashPasswordCost(pwd.String(), cost)
	if err != nil {
		return RandomPasswordHash(cost)
	}

	return h
}

// BcryptHasher adapts the package functions to PasswordAuthenticator with a
// configured cost.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher builds a hasher using the configured work factor.
func NewBcryptHasher(cfg *Config) BcryptHasher {
	cost := DefaultBcryptCost
	if cfg != nil {
		cost = cfg.bcryptCost()
	}
	return BcryptHasher{cost: cost}
}

func (b BcryptHasher) HashPassword(password string) (string, error) {
	return HashPasswordCost(password, b.cost)
}

func (b BcryptHasher) ComparePasswordAndHash(password, hash string) error {
	return ComparePasswordAndHash(password, hash)
}

var _ PasswordAuthenticator = BcryptHasher{}
