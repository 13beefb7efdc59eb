package middleware

import (
	"net/http"
	"strings"

	"github.com/carelink/telehealth-gateway/internal/routes"
)

// FragmentTokenDetector catches OAuth implicit-grant returns that land on an
// arbitrary page with tokens in the URL instead of on the callback route.
// Browsers never send URL fragments, so the edge rewrites #access_token=...
// into the query string before the request reaches us; this middleware spots
// that marker and bounces the browser to the callback handler exactly once.
//
// The common case is a request with no token material at all, so the check
// is a cheap substring probe before any parsing happens.
func FragmentTokenDetector(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.RawQuery
		if raw == "" || !strings.Contains(raw, "access_token") {
			next.ServeHTTP(w, r)
			return
		}
		// Already on the callback route; it owns token handling from here.
		if r.URL.Path == routes.OAuthCallbackPath {
			next.ServeHTTP(w, r)
			return
		}
		if r.URL.Query().Get("access_token") == "" {
			// Substring matched inside some unrelated parameter value.
			next.ServeHTTP(w, r)
			return
		}
		http.Redirect(w, r, routes.OAuthCallbackPath+"?"+raw, http.StatusSeeOther)
	})
}
