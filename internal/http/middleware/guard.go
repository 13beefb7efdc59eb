// Package middleware holds the gateway's HTTP middleware: the session guard
// that fences role-scoped areas, the URL-fragment token detector, bearer-token
// auth for the JSON API, and the usual request plumbing (CORS, rate limiting,
// logging, panic recovery).
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/carelink/telehealth-gateway/internal/observability/metrics"
	"github.com/carelink/telehealth-gateway/internal/routes"
	"github.com/carelink/telehealth-gateway/internal/session"
	"github.com/carelink/telehealth-gateway/internal/tenancy"
	"github.com/carelink/telehealth-gateway/pkg/logging"
)

var timeNow = time.Now

type contextKey string

const sessionUserKey contextKey = "sessionUser"

// DenialRecorder receives guard denials for the audit trail.
type DenialRecorder interface {
	LogAccessDenied(ctx context.Context, userID, role, path, requiredRole string) error
}

// Guard fences role-scoped areas. Every request first waits for the browser
// session's one-time initialization, so a protected page is never served
// while the session state is still unknown.
type Guard struct {
	manager *session.Manager
	cookies *session.Cookies
	metrics *metrics.AuthMetrics
	audit   DenialRecorder
	logger  *logging.Logger
}

// NewGuard wires a guard. metrics may be nil.
func NewGuard(manager *session.Manager, cookies *session.Cookies, m *metrics.AuthMetrics, logger *logging.Logger) *Guard {
	if logger == nil {
		logger = logging.Default()
	}
	return &Guard{manager: manager, cookies: cookies, metrics: m, logger: logger}
}

// WithAudit attaches an audit recorder for wrong-role denials.
func (g *Guard) WithAudit(audit DenialRecorder) *Guard {
	g.audit = audit
	return g
}

// Protect guards an area that demands the given role. Unauthenticated
// browsers get a 303 to the login page; API clients get 401/403 JSON. An
// authenticated user with the wrong role is sent to their own dashboard
// root, never to login.
func (g *Guard) Protect(required session.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap, ok := g.resolve(w, r)
			if !ok {
				return
			}

			if !snap.Authenticated(timeNow()) {
				g.metrics.ObserveGuard("unauthenticated")
				g.deny(w, r, http.StatusUnauthorized, "authentication required", loginRedirect(r))
				return
			}

			user := snap.Session.User
			if user.Role != required {
				g.metrics.ObserveGuard("wrong_role")
				g.logger.Info("role mismatch on guarded area",
					"path", r.URL.Path, "have", string(user.Role), "need", string(required))
				if g.audit != nil {
					if err := g.audit.LogAccessDenied(r.Context(), user.ID, string(user.Role), r.URL.Path, string(required)); err != nil {
						g.logger.Warn("audit write failed", "error", err)
					}
				}
				g.deny(w, r, http.StatusForbidden, "insufficient role", routes.RoleDashboard(user.Role))
				return
			}

			g.metrics.ObserveGuard("allowed")
			ctx := WithUser(r.Context(), user)
			if user.HospitalID != "" {
				ctx = tenancy.WithHospitalID(ctx, user.HospitalID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Attach resolves the session without enforcing anything, for public pages
// that render differently when a user is signed in.
func (g *Guard) Attach(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap, ok := g.resolve(w, r)
		if !ok {
			return
		}
		if snap.Authenticated(timeNow()) {
			r = r.WithContext(WithUser(r.Context(), snap.Session.User))
		}
		next.ServeHTTP(w, r)
	})
}

// resolve starts the session initializer (a no-op after the first call for a
// given browser session) and returns the settled snapshot. It reports false
// when the request context died while waiting.
func (g *Guard) resolve(w http.ResponseWriter, r *http.Request) (session.Snapshot, bool) {
	sid, _ := g.cookies.SessionID(r)
	sessCtx, init := g.manager.ContextFor(sid)

	init.Run(r.Context())

	snap := sessCtx.Snapshot()
	if snap.Initialized {
		return snap, true
	}

	// The restore is still in flight. Wait for the settled state rather
	// than guessing; abandoning the request ends the wait, never the
	// shared restore.
	updates, cancel := sessCtx.Subscribe()
	defer cancel()
	for {
		select {
		case snap = <-updates:
			if snap.Initialized {
				return snap, true
			}
		case <-r.Context().Done():
			g.metrics.ObserveGuard("abandoned")
			w.WriteHeader(http.StatusServiceUnavailable)
			return session.Snapshot{}, false
		}
	}
}

func (g *Guard) deny(w http.ResponseWriter, r *http.Request, status int, message, location string) {
	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
		return
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func loginRedirect(r *http.Request) string {
	path := r.URL.Path
	if path == "" || path == routes.LoginPath {
		return routes.LoginPath
	}
	return routes.LoginPath + "?redirect=" + strings.ReplaceAll(path, "?", "%3F")
}

func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}

// WithUser stashes the authenticated user on the request context.
func WithUser(ctx context.Context, user *session.User) context.Context {
	return context.WithValue(ctx, sessionUserKey, user)
}

// UserFromContext returns the authenticated user, if the guard attached one.
func UserFromContext(ctx context.Context) (*session.User, bool) {
	user, ok := ctx.Value(sessionUserKey).(*session.User)
	return user, ok
}
