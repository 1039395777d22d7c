// Package users is the credential store: account records and the refresh
// token digest mirrored on each of them.
package users

import (
	"context"

	"github.com/dmitrijs2005/videotube/internal/server/models"
)

// Repository is implemented by the PostgreSQL and in-memory stores.
//
// Lookups return common.ErrorNotFound when no row matches. Create returns
// common.ErrorConflict when the username or email is taken.
type Repository interface {
	// FindByUsernameOrEmail matches on the normalized username or email,
	// either of which may be empty. A username match wins over an email match.
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	// SetRefreshToken overwrites the stored digest; nil clears it.
	SetRefreshToken(ctx context.Context, id string, hash *string) error
	// CompareAndSwapRefreshToken replaces the stored digest only if it still
	// equals expected, and reports whether the swap happened.
	CompareAndSwapRefreshToken(ctx context.Context, id, expected, next string) (bool, error)
}
