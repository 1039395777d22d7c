// Package httpapi is the HTTP binding of the user and session services:
// routes, cookies, the response envelope and the auth guard.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/videotube/internal/common"
	"github.com/dmitrijs2005/videotube/internal/logging"
	"github.com/dmitrijs2005/videotube/internal/server/models"
	"github.com/dmitrijs2005/videotube/internal/server/services"
)

const (
	maxMultipartBody   = 32 << 20
	maxMultipartMemory = 8 << 20
)

type SessionManager interface {
	Authenticator
	Login(ctx context.Context, in services.LoginInput) (*services.Session, error)
	Refresh(ctx context.Context, presented string) (*services.Session, error)
	Logout(ctx context.Context, userID string) error
}

type Registrar interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.PublicUser, error)
}

type Handler struct {
	sessions  SessionManager
	users     Registrar
	cookies   CookieConfig
	log       logging.Logger
	uploadDir string
}

// NewHandler builds the handler. Uploaded files are staged in uploadDir
// (os.TempDir when empty) and removed once the request finishes.
func NewHandler(sessions SessionManager, users Registrar, cookies CookieConfig, l logging.Logger, uploadDir string) *Handler {
	if l == nil {
		l = logging.Nop{}
	}
	return &Handler{
		sessions:  sessions,
		users:     users,
		cookies:   cookies,
		log:       l.With("module", "http"),
		uploadDir: uploadDir,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type loginResponse struct {
	User         *models.PublicUser `json:"user"`
	AccessToken  string             `json:"accessToken"`
	RefreshToken string             `json:"refreshToken"`
}

type tokensResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, fmt.Errorf("%w: malformed request body", common.ErrorValidation))
		return
	}

	s, err := h.sessions.Login(r.Context(), services.LoginInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.cookies.setSession(w, s)
	writeJSON(w, http.StatusOK, loginResponse{
		User:         s.User,
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
	}, "User logged in successfully")
}

// RefreshToken rotates the refresh token presented in the cookie, or in the
// body when no cookie is sent.
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	presented := cookieValue(r, common.RefreshTokenCookieName)
	if presented == "" {
		var req refreshRequest
		if err := decodeJSON(w, r, &req, true); err != nil {
			writeError(w, fmt.Errorf("%w: malformed request body", common.ErrorValidation))
			return
		}
		presented = req.RefreshToken
	}

	s, err := h.sessions.Refresh(r.Context(), presented)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) || errors.Is(err, common.ErrTokenReuseDetected) {
			h.cookies.clearSession(w)
		}
		writeError(w, err)
		return
	}

	h.cookies.setSession(w, s)
	writeJSON(w, http.StatusOK, tokensResponse{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
	}, "Access token refreshed")
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, common.ErrorUnauthorized)
		return
	}

	if err := h.sessions.Logout(r.Context(), user.ID); err != nil {
		writeError(w, err)
		return
	}

	h.cookies.clearSession(w)
	writeJSON(w, http.StatusOK, nil, "User logged out")
}

func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, common.ErrorUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, user, "Current user fetched successfully")
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBody)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, fmt.Errorf("%w: malformed multipart form", common.ErrorValidation))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	avatar, err := h.stageFile(r, "avatar")
	if err != nil {
		h.log.Error(r.Context(), "stage avatar", "error", err)
		writeError(w, common.ErrorInternal)
		return
	}
	defer removeStaged(avatar)

	cover, err := h.stageFile(r, "coverImage")
	if err != nil {
		h.log.Error(r.Context(), "stage cover image", "error", err)
		writeError(w, common.ErrorInternal)
		return
	}
	defer removeStaged(cover)

	user, err := h.users.Register(r.Context(), services.RegisterInput{
		FullName:       r.FormValue("fullname"),
		Email:          r.FormValue("email"),
		Username:       r.FormValue("username"),
		Password:       r.FormValue("password"),
		AvatarPath:     avatar,
		CoverImagePath: cover,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, user, "User registered successfully")
}

// stageFile copies the named multipart file to a temp file and returns its
// path, or "" when the field is absent.
func (h *Handler) stageFile(r *http.Request, field string) (string, error) {
	f, hdr, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil
		}
		return "", err
	}
	defer f.Close()

	return h.copyToTemp(f, hdr)
}

func (h *Handler) copyToTemp(src multipart.File, hdr *multipart.FileHeader) (string, error) {
	ext := strings.ToLower(filepath.Ext(hdr.Filename))
	dst, err := os.CreateTemp(h.uploadDir, "upload-*"+ext)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

func removeStaged(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}
