// Package models contains the records persisted by the server.
package models

import "time"

// User is an account record. RefreshTokenHash mirrors the single valid
// refresh token (as a digest); nil means no active session.
type User struct {
	ID               string
	Username         string
	Email            string
	FullName         string
	Avatar           string
	CoverImage       string
	PasswordHash     string
	RefreshTokenHash *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PublicUser is the sanitized view returned to clients. It never carries the
// password hash or refresh token.
type PublicUser struct {
	ID         string    `json:"_id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	FullName   string    `json:"fullname"`
	Avatar     string    `json:"avatar"`
	CoverImage string    `json:"coverImage"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Public returns the sanitized view of u.
func (u *User) Public() *PublicUser {
	if u == nil {
		return nil
	}
	return &PublicUser{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		FullName:   u.FullName,
		Avatar:     u.Avatar,
		CoverImage: u.CoverImage,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.RefreshTokenHash != nil {
		h := *u.RefreshTokenHash
		c.RefreshTokenHash = &h
	}
	return &c
}
