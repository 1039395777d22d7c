package users

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/videotube/internal/common"
	"github.com/dmitrijs2005/videotube/internal/server/models"
	"github.com/google/uuid"
)

// MemoryRepository keeps users in process memory. All methods are safe for
// concurrent use and hand out copies, never the stored records.
type MemoryRepository struct {
	mu    sync.Mutex
	users map[string]*models.User
	now   func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users: make(map[string]*models.User),
		now:   time.Now,
	}
}

func (r *MemoryRepository) FindByUsernameOrEmail(_ context.Context, username, email string) (*models.User, error) {
	username, email = Normalize(username), Normalize(email)

	r.mu.Lock()
	defer r.mu.Unlock()

	var byEmail *models.User
	for _, u := range r.users {
		if username != "" && Normalize(u.Username) == username {
			return u.Clone(), nil
		}
		if email != "" && byEmail == nil && Normalize(u.Email) == email {
			byEmail = u
		}
	}
	if byEmail != nil {
		return byEmail.Clone(), nil
	}
	return nil, common.ErrorNotFound
}

func (r *MemoryRepository) FindByID(_ context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u.Clone(), nil
}

func (r *MemoryRepository) Create(_ context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if Normalize(u.Username) == Normalize(user.Username) || Normalize(u.Email) == Normalize(user.Email) {
			return nil, common.ErrorConflict
		}
	}

	stored := user.Clone()
	stored.ID = uuid.NewString()
	stored.CreatedAt = r.now().UTC()
	stored.UpdatedAt = stored.CreatedAt
	r.users[stored.ID] = stored

	user.ID, user.CreatedAt, user.UpdatedAt = stored.ID, stored.CreatedAt, stored.UpdatedAt
	return user, nil
}

func (r *MemoryRepository) SetRefreshToken(_ context.Context, id string, hash *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	if hash == nil {
		u.RefreshTokenHash = nil
	} else {
		h := *hash
		u.RefreshTokenHash = &h
	}
	u.UpdatedAt = r.now().UTC()
	return nil
}

func (r *MemoryRepository) CompareAndSwapRefreshToken(_ context.Context, id, expected, next string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok || u.RefreshTokenHash == nil || *u.RefreshTokenHash != expected {
		return false, nil
	}
	u.RefreshTokenHash = &next
	u.UpdatedAt = r.now().UTC()
	return true, nil
}
