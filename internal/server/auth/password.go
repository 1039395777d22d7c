package auth

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/videotube/internal/common"
	"golang.org/x/crypto/bcrypt"
)

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

type BcryptHasher struct {
	Cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{Cost: cost}
}

// Hash returns the bcrypt hash of plain. Empty passwords and passwords longer
// than 72 bytes are rejected with ErrorValidation.
func (h *BcryptHasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", common.ErrorValidation
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.Cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: password is too long", common.ErrorValidation)
		}
		return "", err
	}
	return string(b), nil
}

// Verify reports whether plain matches hash. A malformed hash never matches.
func (h *BcryptHasher) Verify(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
