package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/telehealth-gateway/internal/compliance"
	"github.com/carelink/telehealth-gateway/internal/http/middleware"
	"github.com/carelink/telehealth-gateway/internal/identity"
	"github.com/carelink/telehealth-gateway/internal/notify"
	"github.com/carelink/telehealth-gateway/internal/observability/metrics"
	"github.com/carelink/telehealth-gateway/internal/routes"
	"github.com/carelink/telehealth-gateway/internal/session"
	"github.com/carelink/telehealth-gateway/pkg/logging"
)

// AuthHandler serves the first-party sign-in flows: password, OTP request
// and verify, logout, and the current-user endpoint.
type AuthHandler struct {
	source  *identity.SessionSource
	client  *identity.Client
	store   *session.Store
	manager *session.Manager
	cookies *session.Cookies
	audit   *compliance.AuditService
	metrics *metrics.AuthMetrics
	alerts  *notify.Publisher
	logger  *logging.Logger
}

// AuthHandlerConfig wires the auth handler's collaborators. Audit, Metrics,
// and Alerts are optional; the rest are required.
type AuthHandlerConfig struct {
	Source  *identity.SessionSource
	Client  *identity.Client
	Store   *session.Store
	Manager *session.Manager
	Cookies *session.Cookies
	Audit   *compliance.AuditService
	Metrics *metrics.AuthMetrics
	Alerts  *notify.Publisher
	Logger  *logging.Logger
}

// NewAuthHandler creates the auth handler.
func NewAuthHandler(cfg AuthHandlerConfig) *AuthHandler {
	if cfg.Source == nil || cfg.Client == nil || cfg.Store == nil || cfg.Manager == nil || cfg.Cookies == nil {
		panic("handlers: auth handler missing required dependencies")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &AuthHandler{
		source:  cfg.Source,
		client:  cfg.Client,
		store:   cfg.Store,
		manager: cfg.Manager,
		cookies: cfg.Cookies,
		audit:   cfg.Audit,
		metrics: cfg.Metrics,
		alerts:  cfg.Alerts,
		logger:  cfg.Logger,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Redirect string `json:"redirect,omitempty"`
}

type otpRequest struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type otpVerifyRequest struct {
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Code     string `json:"code"`
	Redirect string `json:"redirect,omitempty"`
}

type sessionResponse struct {
	User       *session.User `json:"user"`
	RedirectTo string        `json:"redirect_to"`
	ExpiresAt  time.Time     `json:"expires_at"`
}

// Login handles POST /auth/login with email/password credentials.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" {
		jsonError(w, "email and password are required", http.StatusBadRequest)
		return
	}

	sess, err := h.source.FromPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			h.metrics.ObserveSignIn("password", "failure")
			h.auditLoginFailed(r, req.Email, "password", "invalid credentials")
			jsonError(w, "invalid email or password", http.StatusUnauthorized)
			return
		}
		h.logger.Error("password sign-in failed", "error", err)
		h.metrics.ObserveSignIn("password", "error")
		jsonError(w, "sign-in temporarily unavailable", http.StatusBadGateway)
		return
	}

	h.establish(w, r, sess, "password", req.Redirect)
}

// RequestOTP handles POST /auth/otp. The response does not reveal whether
// the identifier belongs to an account.
func (h *AuthHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Email == "" && req.Phone == "" {
		jsonError(w, "email or phone is required", http.StatusBadRequest)
		return
	}

	if err := h.client.RequestOTP(r.Context(), req.Email, req.Phone); err != nil {
		if !errors.Is(err, identity.ErrInvalidCredentials) {
			h.logger.Error("otp request failed", "error", err)
			jsonError(w, "could not send a code", http.StatusBadGateway)
			return
		}
		// Unknown identifier. Fall through to the generic response.
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// VerifyOTP handles POST /auth/otp/verify, redeeming a one-time passcode
// into a session.
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req otpVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Code == "" || (req.Email == "" && req.Phone == "") {
		jsonError(w, "code and email or phone are required", http.StatusBadRequest)
		return
	}

	sess, err := h.source.FromOTP(r.Context(), req.Email, req.Phone, req.Code)
	if err != nil {
		identifier := req.Email
		if identifier == "" {
			identifier = req.Phone
		}
		if errors.Is(err, identity.ErrInvalidCredentials) || errors.Is(err, identity.ErrInvalidCode) {
			h.metrics.ObserveSignIn("otp", "failure")
			h.auditLoginFailed(r, identifier, "otp", "invalid code")
			jsonError(w, "invalid or expired code", http.StatusUnauthorized)
			return
		}
		h.logger.Error("otp verify failed", "error", err)
		h.metrics.ObserveSignIn("otp", "error")
		jsonError(w, "sign-in temporarily unavailable", http.StatusBadGateway)
		return
	}

	if h.audit != nil {
		if err := h.audit.LogEvent(r.Context(), compliance.AuditEvent{
			EventType: compliance.EventOTPVerified,
			UserID:    sess.User.ID,
			Role:      string(sess.User.Role),
			RemoteIP:  remoteIP(r),
		}); err != nil {
			h.logger.Warn("audit write failed", "event", compliance.EventOTPVerified, "error", err)
		}
	}

	h.establish(w, r, sess, "otp", req.Redirect)
}

// Logout handles POST /auth/logout: revoke tokens, drop the persisted
// session, and expire the cookies.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if sid, ok := h.cookies.SessionID(r); ok {
		sess, err := h.store.Load(ctx, sid)
		if err == nil {
			if err := h.source.SignOut(ctx, sess); err != nil {
				h.logger.Warn("identity sign-out failed", "error", err)
			}
			if h.audit != nil && sess.User != nil {
				if err := h.audit.LogSessionRevoked(ctx, sess.User.ID, string(sess.User.Role), "logout"); err != nil {
					h.logger.Warn("audit write failed", "event", compliance.EventSessionRevoked, "error", err)
				}
			}
		} else if !errors.Is(err, session.ErrNotFound) {
			h.logger.Warn("session load failed during logout", "error", err)
		}
		if err := h.store.Delete(ctx, sid); err != nil {
			h.logger.Warn("session delete failed during logout", "error", err)
		}
		h.manager.Drop(sid)
	}

	h.cookies.Clear(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}

// Me handles GET /api/v1/me for the guarded areas' session probe.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":      user,
		"dashboard": routes.RoleDashboard(user.Role),
	})
}

// establish persists a freshly authenticated session, warms the in-process
// context, and sets the cookie pair.
func (h *AuthHandler) establish(w http.ResponseWriter, r *http.Request, sess *session.Session, flow, redirect string) {
	ctx := r.Context()
	sid := uuid.NewString()

	if err := h.store.Save(ctx, sid, sess); err != nil {
		h.logger.Error("session save failed", "error", err)
		h.metrics.ObserveSignIn(flow, "error")
		jsonError(w, "could not establish session", http.StatusInternalServerError)
		return
	}

	sessCtx, _ := h.manager.ContextFor(sid)
	sessCtx.SetSession(sess)
	h.cookies.Set(w, sid, sess)

	h.metrics.ObserveSignIn(flow, "success")
	if h.audit != nil {
		if err := h.audit.LogLoginSucceeded(ctx, sess.User.ID, string(sess.User.Role), sess.User.HospitalID, remoteIP(r), flow); err != nil {
			h.logger.Warn("audit write failed", "event", compliance.EventLoginSucceeded, "error", err)
		}
	}
	if h.alerts != nil && sess.User.Email != "" {
		if err := h.alerts.EnqueueSecurityAlert(ctx, sess.User.ID, sess.User.Email, sess.User.FullName, remoteIP(r)); err != nil {
			h.logger.Warn("security alert enqueue failed", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		User:       sess.User,
		RedirectTo: routes.ResolveRedirect(sess.User.Role, redirect),
		ExpiresAt:  sess.ExpiresAt,
	})
}

func (h *AuthHandler) auditLoginFailed(r *http.Request, identifier, flow, reason string) {
	if h.audit == nil {
		return
	}
	if err := h.audit.LogLoginFailed(r.Context(), identifier, remoteIP(r), flow, reason); err != nil {
		h.logger.Warn("audit write failed", "event", compliance.EventLoginFailed, "error", err)
	}
}
