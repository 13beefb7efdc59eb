package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carelink/telehealth-gateway/cmd/mainconfig"
	"github.com/carelink/telehealth-gateway/internal/api/router"
	"github.com/carelink/telehealth-gateway/internal/app/bootstrap"
	"github.com/carelink/telehealth-gateway/internal/compliance"
	appconfig "github.com/carelink/telehealth-gateway/internal/config"
	"github.com/carelink/telehealth-gateway/internal/http/handlers"
	httpmiddleware "github.com/carelink/telehealth-gateway/internal/http/middleware"
	"github.com/carelink/telehealth-gateway/internal/identity"
	"github.com/carelink/telehealth-gateway/internal/notify"
	"github.com/carelink/telehealth-gateway/internal/observability/metrics"
	"github.com/carelink/telehealth-gateway/internal/platform"
	"github.com/carelink/telehealth-gateway/internal/profiles"
	"github.com/carelink/telehealth-gateway/internal/realtime"
	"github.com/carelink/telehealth-gateway/internal/session"
	"github.com/carelink/telehealth-gateway/internal/video"
	"github.com/carelink/telehealth-gateway/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	if cfg.Env == "development" {
		logger = logging.NewText(cfg.LogLevel)
	}
	logger.Info("starting telehealth gateway",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient == nil {
		logger.Error("redis is required for session persistence")
		os.Exit(1)
	}

	pool, sqlDB, err := bootstrap.BuildDatabase(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	// Identity provider plumbing.
	idClient := identity.NewClient(cfg.IdentityBaseURL, cfg.IdentityAnonKey, logger)
	verifier := identity.NewVerifier(cfg.IdentityJWTSecret, cfg.IdentityJWKSURL)
	var profileRepo identity.ProfileLookup
	if pool != nil {
		profileRepo = profiles.NewRepository(pool)
	}
	source := identity.NewSessionSource(idClient, profileRepo, logger)

	// Session lifecycle.
	store := session.NewStore(redisClient, cfg.SessionTTL)
	manager := session.NewManager(store, source, cfg.InitTimeout, logger)
	cookies := &session.Cookies{
		AccessTokenName: cfg.SessionCookieName,
		Secure:          cfg.SessionCookieSecure,
		TTL:             cfg.SessionTTL,
	}

	authMetrics := metrics.NewAuthMetrics(nil)
	manager.WithInitObserver(authMetrics.ObserveSessionInit)
	guard := httpmiddleware.NewGuard(manager, cookies, authMetrics, logger)

	// Compliance (requires the database).
	var auditService *compliance.AuditService
	var reporter *compliance.Reporter
	if sqlDB != nil {
		auditService = compliance.NewAuditService(sqlDB)
		if cfg.ComplianceBucket != "" {
			s3Client := s3.NewFromConfig(awsCfg)
			reporter = compliance.NewReporter(compliance.ReporterConfig{
				Audit:     auditService,
				S3:        s3Client,
				Presigner: s3.NewPresignClient(s3Client),
				Bucket:    cfg.ComplianceBucket,
				Logger:    logger,
			})
		}
	}

	// Async notifications.
	queue := bootstrap.BuildNotifyQueue(cfg, awsCfg, logger)
	var jobs notify.JobRecorder
	if cfg.NotifyJobsTable != "" && !cfg.UseMemoryQueue {
		jobs = notify.NewJobStore(dynamodb.NewFromConfig(awsCfg), cfg.NotifyJobsTable, logger)
	}
	publisher := notify.NewPublisher(queue, jobs, logger,
		notify.WithBodyDecorator(compliance.NewDisclaimer(compliance.DefaultDisclaimerConfig())))

	// Backend collaborators.
	platformClient := platform.NewClient(cfg.PlatformAPIBaseURL, cfg.PaymentPublicKey, logger)
	videoService := video.NewService(cfg.VideoBaseURL, cfg.VideoAPIKey, logger)

	authHandler := handlers.NewAuthHandler(handlers.AuthHandlerConfig{
		Source:  source,
		Client:  idClient,
		Store:   store,
		Manager: manager,
		Cookies: cookies,
		Audit:   auditService,
		Metrics: authMetrics,
		Alerts:  publisher,
		Logger:  logger,
	})

	var auditAdmin *handlers.AuditAdminHandler
	if auditService != nil {
		auditAdmin = handlers.NewAuditAdminHandler(auditService, reporter, logger)
	}

	r := router.New(&router.Config{
		Logger:             logger,
		Env:                cfg.Env,
		Guard:              guard,
		Cookies:            cookies,
		Verifier:           verifier,
		Auth:               authHandler,
		Callback:           handlers.NewCallbackHandler(source, store, manager, cookies, auditService, authMetrics, logger),
		Dashboards:         handlers.NewDashboardHandler(platformClient, logger),
		Consultation:       handlers.NewConsultationHandler(platformClient, videoService, logger),
		Health:             handlers.NewHealthHandler(redisClient, sqlDB),
		AuditAdmin:         auditAdmin,
		Hub:                realtime.NewHub(manager, cookies, logger),
		AuditService:       auditService,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		LoginRatePerMinute: float64(cfg.LoginRatePerMinute),
		LoginBurst:         cfg.LoginBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
