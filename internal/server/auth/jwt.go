// Package auth mints and verifies session tokens and checks passwords.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/videotube/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Claims are carried by both token kinds. Username is only set on access tokens.
type Claims struct {
	jwt.RegisteredClaims
	Kind     TokenKind `json:"kind"`
	Username string    `json:"username,omitempty"`
}

type IssuerConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Now           func() time.Time
}

// Issuer signs tokens with HS256. It never touches the credential store.
type Issuer struct {
	cfg IssuerConfig
}

func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("token secrets must not be empty")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token validity must be positive")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Issuer{cfg: cfg}, nil
}

// IssueAccess returns a signed access token for the user and its expiry.
func (i *Issuer) IssueAccess(userID, username string) (string, time.Time, error) {
	return i.issue(KindAccess, userID, username)
}

// IssueRefresh returns a signed refresh token for the user and its expiry.
// Persisting it is up to the caller.
func (i *Issuer) IssueRefresh(userID string) (string, time.Time, error) {
	return i.issue(KindRefresh, userID, "")
}

func (i *Issuer) issue(kind TokenKind, userID, username string) (string, time.Time, error) {
	secret, ttl := i.params(kind)
	now := i.cfg.Now()
	exp := now.Add(ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
		Kind:     kind,
		Username: username,
	})

	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	// NumericDate truncates to seconds; report what the token actually says.
	return signed, time.Unix(exp.Unix(), 0), nil
}

func (i *Issuer) params(kind TokenKind) ([]byte, time.Duration) {
	if kind == KindRefresh {
		return i.cfg.RefreshSecret, i.cfg.RefreshTTL
	}
	return i.cfg.AccessSecret, i.cfg.AccessTTL
}

// Verify checks signature, expiry and kind. The error is always one of
// common.ErrTokenExpired, common.ErrTokenBadSignature or common.ErrTokenMalformed.
func (i *Issuer) Verify(tokenString string, kind TokenKind) (*Claims, error) {
	secret, _ := i.params(kind)
	claims := &Claims{}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.cfg.Now),
	)

	_, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, common.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, common.ErrTokenBadSignature
	default:
		return nil, common.ErrTokenMalformed
	}

	if claims.Kind != kind || claims.Subject == "" {
		return nil, common.ErrTokenMalformed
	}
	return claims, nil
}

// HashRefreshToken returns the hex SHA-256 digest stored in place of a raw
// refresh token.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
