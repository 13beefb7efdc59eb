package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/telehealth-gateway/internal/compliance"
	"github.com/carelink/telehealth-gateway/internal/identity"
	"github.com/carelink/telehealth-gateway/internal/observability/metrics"
	"github.com/carelink/telehealth-gateway/internal/routes"
	"github.com/carelink/telehealth-gateway/internal/session"
	"github.com/carelink/telehealth-gateway/pkg/logging"
)

// CallbackHandler serves the OAuth return leg: it redeems the authorization
// code, establishes the browser session, and dispatches the user to their
// role's dashboard. Every failure ends at the login page with a visible
// error, never on a blank page.
type CallbackHandler struct {
	source  *identity.SessionSource
	store   *session.Store
	manager *session.Manager
	cookies *session.Cookies
	audit   *compliance.AuditService
	metrics *metrics.AuthMetrics
	logger  *logging.Logger
}

// NewCallbackHandler creates the OAuth callback handler. audit and metrics
// are optional.
func NewCallbackHandler(source *identity.SessionSource, store *session.Store, manager *session.Manager, cookies *session.Cookies, audit *compliance.AuditService, m *metrics.AuthMetrics, logger *logging.Logger) *CallbackHandler {
	if source == nil || store == nil || manager == nil || cookies == nil {
		panic("handlers: callback handler missing required dependencies")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CallbackHandler{
		source:  source,
		store:   store,
		manager: manager,
		cookies: cookies,
		audit:   audit,
		metrics: m,
		logger:  logger,
	}
}

// Handle processes GET /auth/callback.
func (h *CallbackHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()

	if provErr := q.Get("error"); provErr != "" {
		reason := q.Get("error_description")
		if reason == "" {
			reason = provErr
		}
		h.fail(w, r, start, reason, "sign-in was cancelled or rejected")
		return
	}

	code := q.Get("code")
	if code == "" {
		h.fail(w, r, start, "missing authorization code", "sign-in failed, please try again")
		return
	}

	sess, err := h.source.FromCode(r.Context(), code)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidCode), errors.Is(err, identity.ErrInvalidCredentials):
			h.fail(w, r, start, "authorization code rejected", "sign-in link expired, please try again")
		case errors.Is(err, identity.ErrNoUser):
			h.fail(w, r, start, "no user for authorization code", "no account found for this sign-in")
		default:
			h.logger.Error("code exchange failed", "error", err)
			h.fail(w, r, start, "code exchange error", "sign-in temporarily unavailable")
		}
		return
	}

	sid := uuid.NewString()
	if err := h.store.Save(r.Context(), sid, sess); err != nil {
		h.logger.Error("session save failed", "error", err)
		h.fail(w, r, start, "session persistence error", "sign-in temporarily unavailable")
		return
	}

	sessCtx, _ := h.manager.ContextFor(sid)
	sessCtx.SetSession(sess)
	h.cookies.Set(w, sid, sess)

	h.metrics.ObserveSignIn("oauth", "success")
	h.metrics.ObserveCallbackLatency("success", time.Since(start).Seconds())
	if h.audit != nil {
		if err := h.audit.LogLoginSucceeded(r.Context(), sess.User.ID, string(sess.User.Role), sess.User.HospitalID, remoteIP(r), "oauth"); err != nil {
			h.logger.Warn("audit write failed", "event", compliance.EventLoginSucceeded, "error", err)
		}
	}

	http.Redirect(w, r, routes.ResolveRedirect(sess.User.Role, q.Get("redirect")), http.StatusSeeOther)
}

// fail records the failure and sends the browser back to the login page with
// a human-readable error message in the query string.
func (h *CallbackHandler) fail(w http.ResponseWriter, r *http.Request, start time.Time, reason, message string) {
	h.logger.Warn("oauth callback failed", "reason", reason)
	h.metrics.ObserveSignIn("oauth", "failure")
	h.metrics.ObserveCallbackLatency("failure", time.Since(start).Seconds())
	if h.audit != nil {
		if err := h.audit.LogCallbackFailed(r.Context(), remoteIP(r), reason); err != nil {
			h.logger.Warn("audit write failed", "event", compliance.EventCallbackFailed, "error", err)
		}
	}
	http.Redirect(w, r, routes.LoginErrorPath(message), http.StatusSeeOther)
}
