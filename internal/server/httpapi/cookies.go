package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/videotube/internal/common"
	"github.com/dmitrijs2005/videotube/internal/server/config"
	"github.com/dmitrijs2005/videotube/internal/server/services"
)

// CookieConfig holds the attributes of session cookies. It is a value type
// and is copied into the handler once at construction.
type CookieConfig struct {
	Secure   bool
	Domain   string
	Path     string
	SameSite http.SameSite
}

func NewCookieConfig(c *config.Config) CookieConfig {
	return CookieConfig{
		Secure:   c.CookieSecure,
		Domain:   c.CookieDomain,
		Path:     "/",
		SameSite: ParseSameSite(c.CookieSameSite),
	}
}

func ParseSameSite(s string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func (c CookieConfig) cookie(name, value string, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     c.Path,
		Domain:   c.Domain,
		Expires:  exp,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	}
}

func (c CookieConfig) setSession(w http.ResponseWriter, s *services.Session) {
	http.SetCookie(w, c.cookie(common.AccessTokenCookieName, s.AccessToken, s.AccessExpiresAt))
	http.SetCookie(w, c.cookie(common.RefreshTokenCookieName, s.RefreshToken, s.RefreshExpiresAt))
}

func (c CookieConfig) clearSession(w http.ResponseWriter) {
	for _, name := range []string{common.AccessTokenCookieName, common.RefreshTokenCookieName} {
		ck := c.cookie(name, "", time.Unix(0, 0).UTC())
		ck.MaxAge = -1
		http.SetCookie(w, ck)
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}
