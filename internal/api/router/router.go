// Package router assembles the gateway's HTTP surface: public auth routes,
// the four guarded role areas, the consultation area, the realtime session
// socket, and the bearer-token JSON API.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/carelink/telehealth-gateway/internal/compliance"
	"github.com/carelink/telehealth-gateway/internal/http/handlers"
	httpmiddleware "github.com/carelink/telehealth-gateway/internal/http/middleware"
	"github.com/carelink/telehealth-gateway/internal/identity"
	"github.com/carelink/telehealth-gateway/internal/realtime"
	"github.com/carelink/telehealth-gateway/internal/routes"
	"github.com/carelink/telehealth-gateway/internal/session"
	"github.com/carelink/telehealth-gateway/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger *logging.Logger
	Env    string

	Guard    *httpmiddleware.Guard
	Cookies  *session.Cookies
	Verifier *identity.Verifier

	Auth         *handlers.AuthHandler
	Callback     *handlers.CallbackHandler
	Dashboards   *handlers.DashboardHandler
	Consultation *handlers.ConsultationHandler
	Health       *handlers.HealthHandler
	AuditAdmin   *handlers.AuditAdminHandler
	Hub          *realtime.Hub

	AuditService       *compliance.AuditService
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Requests per minute allowed on the credential endpoints, per client IP.
	LoginRatePerMinute float64
	// Burst capacity for the credential rate limiter.
	LoginBurst int
}

// New creates the chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	r.Use(httpmiddleware.Recoverer(cfg.Logger, cfg.Env))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	// Catch implicit-flow tokens that land in the query string before any
	// route logs or serves them.
	r.Use(httpmiddleware.FragmentTokenDetector)

	if cfg.Guard != nil && cfg.AuditService != nil {
		cfg.Guard.WithAudit(cfg.AuditService)
	}

	loginRate := cfg.LoginRatePerMinute
	if loginRate <= 0 {
		loginRate = 10
	}
	burst := cfg.LoginBurst
	if burst <= 0 {
		burst = int(loginRate)
	}
	throttle := httpmiddleware.RateLimit(loginRate/60.0, burst)

	// Public endpoints.
	r.Group(func(public chi.Router) {
		if cfg.Health != nil {
			public.Get("/health", cfg.Health.Live)
			public.Get("/health/ready", cfg.Health.Ready)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		public.Get("/robots.txt", routes.RobotsHandler())
		public.Get("/", rootRedirect(cfg.Cookies))

		public.Get(routes.OAuthCallbackPath, cfg.Callback.Handle)

		public.Route("/auth", func(auth chi.Router) {
			auth.With(throttle).Post("/login", cfg.Auth.Login)
			auth.With(throttle).Post("/otp", cfg.Auth.RequestOTP)
			auth.With(throttle).Post("/otp/verify", cfg.Auth.VerifyOTP)
			auth.Post("/logout", cfg.Auth.Logout)
		})
	})

	// Role areas. Each guard waits for the session initializer, so none of
	// these handlers ever runs against unknown session state.
	if cfg.Guard != nil && cfg.Dashboards != nil {
		r.Route(routes.DashboardRoot, func(area chi.Router) {
			area.Use(cfg.Guard.Protect(session.RolePatient))
			area.Get("/api/overview", cfg.Dashboards.Patient)
			area.Get("/api/me", cfg.Auth.Me)
		})
		r.Route("/doctor", func(area chi.Router) {
			area.Use(cfg.Guard.Protect(session.RoleDoctor))
			area.Get("/api/overview", cfg.Dashboards.Doctor)
			area.Get("/api/me", cfg.Auth.Me)
		})
		r.Route("/hospital", func(area chi.Router) {
			area.Use(cfg.Guard.Protect(session.RoleHospitalAdmin))
			area.Get("/api/overview", cfg.Dashboards.Hospital)
			area.Get("/api/me", cfg.Auth.Me)
		})
		r.Route("/admin", func(area chi.Router) {
			area.Use(cfg.Guard.Protect(session.RoleAdmin))
			area.Get("/api/overview", cfg.Dashboards.Admin)
			area.Get("/api/me", cfg.Auth.Me)
			if cfg.AuditAdmin != nil {
				area.Get("/api/audit-events", cfg.AuditAdmin.List)
				area.Post("/api/audit-reports", cfg.AuditAdmin.Export)
			}
		})
	}

	// Consultation rooms admit any authenticated participant; the handler
	// checks appointment membership itself.
	if cfg.Guard != nil && cfg.Consultation != nil {
		r.Route("/consultation", func(area chi.Router) {
			area.Use(cfg.Guard.Attach)
			area.Get("/{appointmentID}/join", cfg.Consultation.Join)
		})
	}

	if cfg.Hub != nil {
		r.Get("/realtime/session", cfg.Hub.HandleWebSocket)
	}

	// Bearer-token JSON API for non-browser clients.
	if cfg.Verifier != nil {
		r.Route("/api/v1", func(api chi.Router) {
			api.Use(httpmiddleware.BearerAuth(cfg.Verifier))
			api.Get("/me", meFromClaims)
		})
	}

	return r
}

// rootRedirect sends browsers landing on / toward the dashboard dispatcher
// when the access-token cookie is present, otherwise to login. Cookie
// presence is only the coarse signal; the dashboard guard still validates
// the session properly.
func rootRedirect(cookies *session.Cookies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := routes.LoginPath
		if cookies != nil && cookies.HasAccessToken(r) {
			target = routes.DashboardRoot
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
	}
}

// meFromClaims serves the bearer-token identity probe from verified claims.
func meFromClaims(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpmiddleware.AccessClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
		return
	}
	role := routes.ResolveRole("", claims.MetadataRole())
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"user_id":"` + claims.Subject + `","role":"` + string(role) + `","dashboard":"` + routes.RoleDashboard(role) + `"}`))
}
