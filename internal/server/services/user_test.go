package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/videotube/internal/common"
	"github.com/dmitrijs2005/videotube/internal/dbx"
	"github.com/dmitrijs2005/videotube/internal/server/auth"
	"github.com/dmitrijs2005/videotube/internal/server/models"
	usersrepo "github.com/dmitrijs2005/videotube/internal/server/repositories/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeUsersRepo struct {
	usersrepo.Repository

	findCalls int
	findErrs  []error // per call; NotFound once exhausted
	created   *models.User
	createErr error
	block     bool // lookups wait for ctx to end
}

func (f *fakeUsersRepo) FindByUsernameOrEmail(ctx context.Context, username, email string) (*models.User, error) {
	i := f.findCalls
	f.findCalls++
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if i < len(f.findErrs) {
		if f.findErrs[i] == nil {
			return &models.User{ID: "existing"}, nil
		}
		return nil, f.findErrs[i]
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	u.ID = "u1"
	f.created = u
	return u, nil
}

type fakeRepoManager struct {
	u *fakeUsersRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) usersrepo.Repository       { return m.u }

type fakeUploader struct {
	paths []string
	err   error
}

func (f *fakeUploader) Upload(ctx context.Context, localPath string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.paths = append(f.paths, localPath)
	return "http://cdn/" + localPath, nil
}

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func validInput() RegisterInput {
	return RegisterInput{
		FullName:   " Alice Liddell ",
		Email:      "alice@example.com",
		Username:   "Alice",
		Password:   "secret",
		AvatarPath: "avatar.png",
	}
}

func newUserSvc(t *testing.T, repo *fakeUsersRepo, up *fakeUploader) (*UserService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newSQLMockDB(t)
	return NewUserService(db, &fakeRepoManager{u: repo}, auth.NewBcryptHasher(bcrypt.MinCost), up, nil, time.Second), mock
}

func TestRegister_Success(t *testing.T) {
	repo := &fakeUsersRepo{}
	up := &fakeUploader{}
	svc, mock := newUserSvc(t, repo, up)
	mock.ExpectBegin()
	mock.ExpectCommit()

	in := validInput()
	in.CoverImagePath = "cover.jpg"
	u, err := svc.Register(context.Background(), in)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "Alice Liddell", u.FullName)
	assert.Equal(t, "http://cdn/avatar.png", u.Avatar)
	assert.Equal(t, "http://cdn/cover.jpg", u.CoverImage)
	assert.Equal(t, []string{"avatar.png", "cover.jpg"}, up.paths)

	require.NotNil(t, repo.created)
	assert.NotEqual(t, "secret", repo.created.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.created.PasswordHash), []byte("secret")))
	assert.Equal(t, 2, repo.findCalls)
}

func TestRegister_CoverImageOptional(t *testing.T) {
	up := &fakeUploader{}
	svc, mock := newUserSvc(t, &fakeUsersRepo{}, up)
	mock.ExpectBegin()
	mock.ExpectCommit()

	u, err := svc.Register(context.Background(), validInput())
	require.NoError(t, err)
	assert.Empty(t, u.CoverImage)
	assert.Len(t, up.paths, 1)
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RegisterInput)
	}{
		{"no fullname", func(in *RegisterInput) { in.FullName = "  " }},
		{"no email", func(in *RegisterInput) { in.Email = "" }},
		{"no username", func(in *RegisterInput) { in.Username = "" }},
		{"no password", func(in *RegisterInput) { in.Password = " " }},
		{"no avatar", func(in *RegisterInput) { in.AvatarPath = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &fakeUploader{}
			svc, mock := newUserSvc(t, &fakeUsersRepo{}, up)

			in := validInput()
			tt.mutate(&in)
			_, err := svc.Register(context.Background(), in)
			assert.ErrorIs(t, err, common.ErrorValidation)
			assert.Empty(t, up.paths, "nothing uploaded on invalid input")
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRegister_ConflictBeforeUpload(t *testing.T) {
	up := &fakeUploader{}
	svc, _ := newUserSvc(t, &fakeUsersRepo{findErrs: []error{nil}}, up)

	_, err := svc.Register(context.Background(), validInput())
	assert.ErrorIs(t, err, common.ErrorConflict)
	assert.Empty(t, up.paths)
}

func TestRegister_ConflictOnInsertRollsBack(t *testing.T) {
	repo := &fakeUsersRepo{createErr: common.ErrorConflict}
	svc, mock := newUserSvc(t, repo, &fakeUploader{})
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Register(context.Background(), validInput())
	assert.ErrorIs(t, err, common.ErrorConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegister_StoreFailures(t *testing.T) {
	t.Run("lookup", func(t *testing.T) {
		svc, _ := newUserSvc(t, &fakeUsersRepo{findErrs: []error{errors.New("db error: down")}}, &fakeUploader{})

		_, err := svc.Register(context.Background(), validInput())
		assert.ErrorIs(t, err, common.ErrorInternal)
	})

	t.Run("insert", func(t *testing.T) {
		svc, mock := newUserSvc(t, &fakeUsersRepo{createErr: errors.New("db error: down")}, &fakeUploader{})
		mock.ExpectBegin()
		mock.ExpectRollback()

		_, err := svc.Register(context.Background(), validInput())
		assert.ErrorIs(t, err, common.ErrorInternal)
		assert.NotContains(t, err.Error(), "down")
	})

	t.Run("begin", func(t *testing.T) {
		svc, mock := newUserSvc(t, &fakeUsersRepo{}, &fakeUploader{})
		mock.ExpectBegin().WillReturnError(errors.New("no conn"))

		_, err := svc.Register(context.Background(), validInput())
		assert.ErrorIs(t, err, common.ErrorInternal)
	})
}

func TestRegister_UploadFailure(t *testing.T) {
	svc, _ := newUserSvc(t, &fakeUsersRepo{}, &fakeUploader{err: errors.New("s3 down")})

	_, err := svc.Register(context.Background(), validInput())
	assert.ErrorIs(t, err, common.ErrorInternal)
}

func TestRegister_PasswordTooLong(t *testing.T) {
	up := &fakeUploader{}
	svc, mock := newUserSvc(t, &fakeUsersRepo{}, up)

	in := validInput()
	in.Password = strings.Repeat("p", 80)
	_, err := svc.Register(context.Background(), in)
	assert.ErrorIs(t, err, common.ErrorValidation)
	assert.NotErrorIs(t, err, common.ErrorInternal)
	assert.Empty(t, up.paths)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegister_StoreTimeoutIsTransient(t *testing.T) {
	db, mock := newSQLMockDB(t)
	up := &fakeUploader{}
	repo := &fakeUsersRepo{block: true}
	svc := NewUserService(db, &fakeRepoManager{u: repo}, auth.NewBcryptHasher(bcrypt.MinCost), up, nil, 20*time.Millisecond)

	_, err := svc.Register(context.Background(), validInput())
	assert.ErrorIs(t, err, common.ErrorTransient)
	assert.Equal(t, 1, repo.findCalls)
	assert.Empty(t, up.paths)
	assert.NoError(t, mock.ExpectationsWereMet())
}
