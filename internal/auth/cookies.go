package auth

import (
	"net/http"
	"strings"
	"time"
)

const SessionCookieName = "otpgate_session"

// CookieConfig controls the attributes of the session cookie. An empty
// Domain scopes the cookie to the current host.
type CookieConfig struct {
	Domain   string
	Secure   bool
	SameSite string // strict, lax or none
	MaxAge   time.Duration
}

func (c CookieConfig) cookie(value string, maxAge int) *http.Cookie {
	sameSite := parseSameSite(c.SameSite)
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		// Browsers drop SameSite=None cookies that are not Secure.
		Secure:   c.Secure || sameSite == http.SameSiteNoneMode,
		SameSite: sameSite,
	}
}

// SetSessionCookie stores the signed session token.
func SetSessionCookie(w http.ResponseWriter, token string, config CookieConfig) {
	c := config.cookie(token, int(config.MaxAge/time.Second))
	c.Expires = time.Now().Add(config.MaxAge)
	http.SetCookie(w, c)
}

func ClearSessionCookie(w http.ResponseWriter, config CookieConfig) {
	http.SetCookie(w, config.cookie("", -1))
}

func GetSessionCookie(r *http.Request) (string, error) {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return "", err
	}
	return c.Value, nil
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}
