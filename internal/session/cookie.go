package session

import (
	"net/http"
	"time"
)

// sessionIDCookie references the server-side session record.
const sessionIDCookie = "cl-session-id"

// Cookies writes and reads the session cookie pair: an opaque session id
// referencing the redis record, plus the access-token cookie whose presence
// is the minimal "authenticated" signal for coarse redirects.
type Cookies struct {
	AccessTokenName string
	Secure          bool
	TTL             time.Duration
}

// Set writes both cookies for an established session.
func (c Cookies) Set(w http.ResponseWriter, sid string, sess *Session) {
	maxAge := int(c.TTL.Seconds())
	http.SetCookie(w, &http.Cookie{
		Name:     sessionIDCookie,
		Value:    sid,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     c.AccessTokenName,
		Value:    sess.AccessToken,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires both cookies.
func (c Cookies) Clear(w http.ResponseWriter) {
	for _, name := range []string{sessionIDCookie, c.AccessTokenName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   c.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// SessionID extracts the session id from the request, if present.
func (c Cookies) SessionID(r *http.Request) (string, bool) {
	ck, err := r.Cookie(sessionIDCookie)
	if err != nil || ck.Value == "" {
		return "", false
	}
	return ck.Value, true
}

// HasAccessToken reports whether the coarse authenticated signal is present.
func (c Cookies) HasAccessToken(r *http.Request) bool {
	ck, err := r.Cookie(c.AccessTokenName)
	return err == nil && ck.Value != ""
}
