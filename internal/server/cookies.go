package server

import (
	"net/http"
	"strings"
	"time"
)

// sessionCookie is the single cookie the server issues. The remaining
// names were set by earlier frontend builds; they are still read for
// compatibility and actively cleared on every login and logout so stale
// copies cannot shadow a fresh session.
const sessionCookie = "token"

var legacyCookies = []string{"token", "admin-token", "user-token", "auth-token", "authToken"}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	s.clearSessionCookies(w)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range legacyCookies {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   s.secureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// tokenFromRequest prefers the Authorization header, then falls back to
// the session cookie and finally the legacy cookie names in order.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok && tok != "" {
			return tok
		}
	}
	for _, name := range legacyCookies {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			return c.Value
		}
	}
	return ""
}
