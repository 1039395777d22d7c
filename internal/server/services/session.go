package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/videotube/internal/common"
	"github.com/dmitrijs2005/videotube/internal/logging"
	"github.com/dmitrijs2005/videotube/internal/server/auth"
	"github.com/dmitrijs2005/videotube/internal/server/metrics"
	"github.com/dmitrijs2005/videotube/internal/server/models"
	"github.com/dmitrijs2005/videotube/internal/server/repositories/users"
)

// TokenIssuer is satisfied by *auth.Issuer.
type TokenIssuer interface {
	IssueAccess(userID, username string) (string, time.Time, error)
	IssueRefresh(userID string) (string, time.Time, error)
	Verify(token string, kind auth.TokenKind) (*auth.Claims, error)
}

// Session is the credential pair handed to a client after login or refresh.
type Session struct {
	User             *models.PublicUser
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type LoginInput struct {
	Username string
	Email    string
	Password string
}

// SessionService drives login, refresh rotation, logout and access token
// checks. The user record holds the digest of the only refresh token that may
// be rotated; every rotation replaces it with a compare-and-set.
type SessionService struct {
	users        users.Repository
	issuer       TokenIssuer
	hasher       auth.PasswordHasher
	metrics      *metrics.Metrics
	log          logging.Logger
	storeTimeout time.Duration

	dummyOnce sync.Once
	dummyHash string
}

func NewSessionService(
	repo users.Repository,
	issuer TokenIssuer,
	hasher auth.PasswordHasher,
	m *metrics.Metrics,
	log logging.Logger,
	storeTimeout time.Duration,
) *SessionService {
	if log == nil {
		log = logging.Nop{}
	}
	return &SessionService{
		users:        repo,
		issuer:       issuer,
		hasher:       hasher,
		metrics:      m,
		log:          log.With("component", "session"),
		storeTimeout: storeTimeout,
	}
}

// Login checks the password of the account matching username or email and
// starts a new session, replacing any refresh token issued before.
func (s *SessionService) Login(ctx context.Context, in LoginInput) (*Session, error) {
	username, email := users.Normalize(in.Username), users.Normalize(in.Email)
	if username == "" && email == "" {
		s.metrics.Login(metrics.OutcomeInvalid)
		return nil, fmt.Errorf("%w: username or email is required", common.ErrorValidation)
	}
	if in.Password == "" {
		s.metrics.Login(metrics.OutcomeInvalid)
		return nil, fmt.Errorf("%w: password is required", common.ErrorValidation)
	}

	user, err := callStore(ctx, s.storeTimeout, func(ctx context.Context) (*models.User, error) {
		return s.users.FindByUsernameOrEmail(ctx, username, email)
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// Same bcrypt cost as a real mismatch.
			s.hasher.Verify(in.Password, s.dummy())
			s.metrics.Login(metrics.OutcomeNotFound)
			return nil, common.ErrorNotFound
		}
		s.metrics.Login(metrics.OutcomeError)
		return nil, s.storeError(ctx, "find user", err)
	}

	if !s.hasher.Verify(in.Password, user.PasswordHash) {
		s.metrics.Login(metrics.OutcomeBadCredential)
		s.log.Info(ctx, "login rejected", "user_id", user.ID)
		return nil, common.ErrorBadCredential
	}

	sess, digest, err := s.mint(ctx, user)
	if err != nil {
		s.metrics.Login(metrics.OutcomeError)
		return nil, err
	}

	_, err = callStore(ctx, s.storeTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.users.SetRefreshToken(ctx, user.ID, &digest)
	})
	if err != nil {
		s.metrics.Login(metrics.OutcomeError)
		return nil, s.storeError(ctx, "store refresh token", err)
	}

	s.metrics.Login(metrics.OutcomeSuccess)
	s.log.Info(ctx, "login succeeded", "user_id", user.ID)
	return sess, nil
}

// Refresh rotates a refresh token. The presented token must verify and must
// be the one currently stored for its owner; anything else fails without
// minting new credentials.
func (s *SessionService) Refresh(ctx context.Context, presented string) (*Session, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		s.metrics.Refresh(metrics.OutcomeUnauthorized)
		return nil, fmt.Errorf("%w: refresh token is required", common.ErrorUnauthorized)
	}

	claims, err := s.issuer.Verify(presented, auth.KindRefresh)
	if err != nil {
		s.metrics.Refresh(metrics.OutcomeUnauthorized)
		return nil, fmt.Errorf("%w: %w", common.ErrorUnauthorized, err)
	}

	user, err := callStore(ctx, s.storeTimeout, func(ctx context.Context) (*models.User, error) {
		return s.users.FindByID(ctx, claims.Subject)
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.metrics.Refresh(metrics.OutcomeUnauthorized)
			return nil, common.ErrorUnauthorized
		}
		s.metrics.Refresh(metrics.OutcomeError)
		return nil, s.storeError(ctx, "find user", err)
	}

	if user.RefreshTokenHash == nil {
		s.metrics.Refresh(metrics.OutcomeUnauthorized)
		return nil, fmt.Errorf("%w: session ended", common.ErrorUnauthorized)
	}

	current := auth.HashRefreshToken(presented)
	if subtle.ConstantTimeCompare([]byte(current), []byte(*user.RefreshTokenHash)) != 1 {
		s.metrics.Refresh(metrics.OutcomeReuse)
		s.log.Warn(ctx, "stale refresh token presented", "user_id", user.ID, "jti", claims.ID)
		return nil, common.ErrTokenReuseDetected
	}

	sess, next, err := s.mint(ctx, user)
	if err != nil {
		s.metrics.Refresh(metrics.OutcomeError)
		return nil, err
	}

	swapped, err := callStore(ctx, s.storeTimeout, func(ctx context.Context) (bool, error) {
		return s.users.CompareAndSwapRefreshToken(ctx, user.ID, current, next)
	})
	if err != nil {
		s.metrics.Refresh(metrics.OutcomeError)
		return nil, s.storeError(ctx, "rotate refresh token", err)
	}
	if !swapped {
		s.metrics.Refresh(metrics.OutcomeReuse)
		s.log.Warn(ctx, "refresh token rotated concurrently", "user_id", user.ID, "jti", claims.ID)
		return nil, common.ErrTokenReuseDetected
	}

	s.metrics.Refresh(metrics.OutcomeSuccess)
	return sess, nil
}

// Logout clears the stored refresh token. Access tokens already issued stay
// valid until they expire. Logging out an unknown user is not an error.
func (s *SessionService) Logout(ctx context.Context, userID string) error {
	_, err := callStore(ctx, s.storeTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.users.SetRefreshToken(ctx, userID, nil)
	})
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		s.metrics.Logout(metrics.OutcomeError)
		return s.storeError(ctx, "clear refresh token", err)
	}

	s.metrics.Logout(metrics.OutcomeSuccess)
	s.log.Info(ctx, "logout", "user_id", userID)
	return nil
}

// Authenticate resolves an access token to the sanitized user it belongs to.
func (s *SessionService) Authenticate(ctx context.Context, accessToken string) (*models.PublicUser, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, fmt.Errorf("%w: access token is required", common.ErrorUnauthorized)
	}

	claims, err := s.issuer.Verify(accessToken, auth.KindAccess)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorUnauthorized, err)
	}

	user, err := callStore(ctx, s.storeTimeout, func(ctx context.Context) (*models.User, error) {
		return s.users.FindByID(ctx, claims.Subject)
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, s.storeError(ctx, "find user", err)
	}
	return user.Public(), nil
}

func (s *SessionService) mint(ctx context.Context, user *models.User) (*Session, string, error) {
	access, accessExp, err := s.issuer.IssueAccess(user.ID, user.Username)
	if err != nil {
		s.log.Error(ctx, "issue access token", "user_id", user.ID, "error", err)
		return nil, "", common.ErrorInternal
	}
	refresh, refreshExp, err := s.issuer.IssueRefresh(user.ID)
	if err != nil {
		s.log.Error(ctx, "issue refresh token", "user_id", user.ID, "error", err)
		return nil, "", common.ErrorInternal
	}

	return &Session{
		User:             user.Public(),
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, auth.HashRefreshToken(refresh), nil
}

func (s *SessionService) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("dummy-password-for-timing")
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

// storeError collapses a store failure to ErrorTransient or ErrorInternal.
func (s *SessionService) storeError(ctx context.Context, op string, err error) error {
	return classifyStoreError(ctx, s.log, op, err)
}

func classifyStoreError(ctx context.Context, log logging.Logger, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn(ctx, "store timeout", "op", op, "error", err)
		return common.ErrorTransient
	}
	log.Error(ctx, "store failure", "op", op, "error", err)
	return common.ErrorInternal
}

func callStore[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}
