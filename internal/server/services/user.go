// Package services contains the server-side business logic: account
// registration and the session lifecycle.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/videotube/internal/common"
	"github.com/dmitrijs2005/videotube/internal/dbx"
	"github.com/dmitrijs2005/videotube/internal/logging"
	"github.com/dmitrijs2005/videotube/internal/server/auth"
	"github.com/dmitrijs2005/videotube/internal/server/media"
	"github.com/dmitrijs2005/videotube/internal/server/models"
	"github.com/dmitrijs2005/videotube/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/videotube/internal/server/repositories/users"
)

// RegisterInput carries the registration form. Avatar and cover image are
// local file paths of already received uploads.
type RegisterInput struct {
	FullName       string
	Email          string
	Username       string
	Password       string
	AvatarPath     string
	CoverImagePath string
}

type UserService struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	hasher       auth.PasswordHasher
	uploader     media.Uploader
	log          logging.Logger
	storeTimeout time.Duration
}

// NewUserService builds the registration service. storeTimeout bounds each
// lookup and the insert transaction; zero means no bound.
func NewUserService(
	db *sql.DB,
	m repomanager.RepositoryManager,
	hasher auth.PasswordHasher,
	uploader media.Uploader,
	log logging.Logger,
	storeTimeout time.Duration,
) *UserService {
	if log == nil {
		log = logging.Nop{}
	}
	return &UserService{
		db:           db,
		repomanager:  m,
		hasher:       hasher,
		uploader:     uploader,
		log:          log.With("component", "users"),
		storeTimeout: storeTimeout,
	}
}

// Register creates an account. Username and email must be unused; the avatar
// is required and the cover image optional.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.PublicUser, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.TrimSpace(in.Email)
	in.Username = users.Normalize(in.Username)

	if in.FullName == "" || in.Email == "" || in.Username == "" || strings.TrimSpace(in.Password) == "" {
		return nil, fmt.Errorf("%w: all fields are required", common.ErrorValidation)
	}

	if err := s.ensureAvailable(ctx, s.repomanager.Users(s.db), in.Username, in.Email, s.storeTimeout); err != nil {
		return nil, err
	}

	if in.AvatarPath == "" {
		return nil, fmt.Errorf("%w: avatar file is required", common.ErrorValidation)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, common.ErrorValidation) {
			return nil, err
		}
		s.log.Error(ctx, "hash password", "error", err)
		return nil, common.ErrorInternal
	}

	avatar, err := s.upload(ctx, in.AvatarPath)
	if err != nil {
		return nil, err
	}
	var cover string
	if in.CoverImagePath != "" {
		if cover, err = s.upload(ctx, in.CoverImagePath); err != nil {
			return nil, err
		}
	}

	user := &models.User{
		Username:     in.Username,
		Email:        in.Email,
		FullName:     in.FullName,
		Avatar:       avatar,
		CoverImage:   cover,
		PasswordHash: hash,
	}

	_, err = callStore(ctx, s.storeTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			repo := s.repomanager.Users(tx)
			if err := s.ensureAvailable(ctx, repo, in.Username, in.Email, 0); err != nil {
				return err
			}
			created, err := repo.Create(ctx, user)
			if err != nil {
				if errors.Is(err, common.ErrorConflict) {
					return fmt.Errorf("%w: user with email or username already exists", common.ErrorConflict)
				}
				return err
			}
			user = created
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, common.ErrorConflict) || errors.Is(err, common.ErrorInternal) || errors.Is(err, common.ErrorTransient) {
			return nil, err
		}
		return nil, classifyStoreError(ctx, s.log, "create user", err)
	}

	s.log.Info(ctx, "user registered", "user_id", user.ID)
	return user.Public(), nil
}

func (s *UserService) ensureAvailable(ctx context.Context, repo users.Repository, username, email string, timeout time.Duration) error {
	_, err := callStore(ctx, timeout, func(ctx context.Context) (*models.User, error) {
		return repo.FindByUsernameOrEmail(ctx, username, email)
	})
	switch {
	case err == nil:
		return fmt.Errorf("%w: user with email or username already exists", common.ErrorConflict)
	case errors.Is(err, common.ErrorNotFound):
		return nil
	default:
		return classifyStoreError(ctx, s.log, "find user", err)
	}
}

func (s *UserService) upload(ctx context.Context, path string) (string, error) {
	url, err := s.uploader.Upload(ctx, path)
	if err != nil {
		if errors.Is(err, common.ErrorValidation) {
			return "", err
		}
		s.log.Error(ctx, "upload media", "error", err)
		return "", common.ErrorInternal
	}
	return url, nil
}
