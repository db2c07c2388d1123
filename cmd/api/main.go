package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/otpgate/internal/auth"
	"github.com/BradenHooton/otpgate/internal/background"
	"github.com/BradenHooton/otpgate/internal/captcha"
	"github.com/BradenHooton/otpgate/internal/config"
	"github.com/BradenHooton/otpgate/internal/database"
	"github.com/BradenHooton/otpgate/internal/handlers"
	middlewareCustom "github.com/BradenHooton/otpgate/internal/middleware"
	"github.com/BradenHooton/otpgate/internal/notify"
	"github.com/BradenHooton/otpgate/internal/repositories"
	"github.com/BradenHooton/otpgate/internal/routes"
	"github.com/BradenHooton/otpgate/internal/services"
	pkgauth "github.com/BradenHooton/otpgate/pkg/auth"
	pkghttp "github.com/BradenHooton/otpgate/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Server.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	ctx := context.Background()

	// Postgres
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.RunMigrations {
		if err := db.Migrate(ctx); err != nil {
			logger.Error("failed to apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Redis sessions
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	err = rdb.Ping(pingCtx).Err()
	pingCancel()
	if err != nil {
		logger.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}

	// Repositories
	userRepo := repositories.NewUserRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db)
	activityRepo := repositories.NewActivityLogRepository(db)
	alertRepo := repositories.NewSecurityAlertRepository(db)
	notificationRepo := repositories.NewNotificationRepository(db)
	retentionRepo := repositories.NewRetentionRepository(db)
	sessionRepo := repositories.NewSessionRepository(rdb, "otpgate:session", cfg.Redis.SessionTTL)

	// Delivery
	var emailSender notify.EmailSender
	var smsSender notify.SMSSender
	if cfg.Notify.EmailEnabled || cfg.Notify.EmailAlertsEnabled || cfg.Notify.SMSEnabled {
		awsCfg, err := notify.LoadAWSConfig(ctx, cfg.Notify.AWSRegion)
		if err != nil {
			logger.Error("failed to load AWS configuration", slog.Any("error", err))
			os.Exit(1)
		}
		if cfg.Notify.EmailEnabled || cfg.Notify.EmailAlertsEnabled {
			emailSender = notify.NewSESMailer(awsCfg, cfg.Notify.FromAddress, logger)
		}
		if cfg.Notify.SMSEnabled {
			smsSender = notify.NewSNSTexter(awsCfg, cfg.Notify.SMSSenderID, logger)
		}
	}
	dispatcher := notify.NewDispatcher(emailSender, smsSender, notificationRepo, notify.Options{
		EmailAlerts: cfg.Notify.EmailAlertsEnabled,
		OTPValidity: cfg.Auth.OTPValidity,
		Env:         cfg.Server.Env,
	}, logger)

	// Challenges
	var recaptchaV2 services.RecaptchaV2Verifier
	var recaptchaV3 services.RecaptchaV3Verifier
	if cfg.Captcha.RecaptchaV2Enabled {
		recaptchaV2 = captcha.NewRecaptchaClient(cfg.Captcha.RecaptchaV2SiteKey, cfg.Captcha.RecaptchaV2SecretKey, cfg.Captcha.RecaptchaVerifyURL, cfg.Captcha.RecaptchaTimeout)
	}
	if cfg.Captcha.RecaptchaV3Enabled {
		recaptchaV3 = captcha.NewRecaptchaClient(cfg.Captcha.RecaptchaV3SiteKey, cfg.Captcha.RecaptchaV3SecretKey, cfg.Captcha.RecaptchaVerifyURL, cfg.Captcha.RecaptchaTimeout)
	}

	hasher, err := pkgauth.NewHasher(cfg.Auth.BcryptCost)
	if err != nil {
		logger.Error("invalid password hashing configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// Services
	riskService := services.NewRiskService(cfg.Risk, auditRepo, alertRepo, userRepo, dispatcher, logger)
	auditService := services.NewAuditService(auditRepo, riskService, logger)
	activityService := services.NewActivityService(activityRepo, userRepo, dispatcher, logger)
	captchaService := services.NewCaptchaService(cfg.Captcha, captcha.NewGenerator(nil), recaptchaV2, recaptchaV3, sessionRepo, auditService, logger)
	authService := services.NewAuthService(services.AuthDependencies{
		Users:    userRepo,
		Sessions: sessionRepo,
		Audit:    auditService,
		Activity: activityService,
		Captcha:  captchaService,
		Notifier: dispatcher,
		Codes:    auth.NewOTPGenerator(cfg.Auth.OTPLength),
		Hasher:   hasher,
		Timing: auth.NewTimingDelay(auth.TimingConfig{
			BaseDelayMs:   cfg.Auth.TimingDelayBaseMs,
			RandomDelayMs: cfg.Auth.TimingDelayRandomMs,
		}),
	}, cfg.Auth, logger)
	adminService := services.NewAdminService(userRepo, auditRepo, alertRepo, activityRepo, notificationRepo, activityService, dispatcher, logger)

	bootCtx, bootCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := services.NewBootstrapper(userRepo, hasher, activityService, logger).Run(bootCtx, cfg.Bootstrap); err != nil {
		logger.Error("failed to bootstrap accounts", slog.Any("error", err))
	}
	bootCancel()

	// HTTP
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	tokenManager := auth.NewTokenManager(cfg.Auth.SessionSecret, cfg.Redis.SessionTTL)
	cookies := handlers.NewSessionCookies(tokenManager, auth.CookieConfig{
		Domain:   cfg.Auth.CookieDomain,
		Secure:   cfg.Auth.CookieSecure,
		SameSite: cfg.Auth.CookieSameSite,
		MaxAge:   cfg.Redis.SessionTTL,
	})

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.NewCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, routes.Dependencies{
		AuthHandler:    handlers.NewAuthHandler(authService, cookies, ipConfig, logger),
		CaptchaHandler: handlers.NewCaptchaHandler(captchaService, cookies, ipConfig, logger),
		AdminHandler:   handlers.NewAdminHandler(adminService, ipConfig),
		HealthHandler: handlers.NewHealthHandler(map[string]handlers.Pinger{
			"database": handlers.PingFunc(db.HealthCheck),
			"redis": handlers.PingFunc(func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			}),
		}, logger),
		Tokens:           tokenManager,
		Sessions:         sessionRepo,
		Users:            userRepo,
		AuthRateLimit:    cfg.Server.AuthRateLimit,
		CaptchaRateLimit: cfg.Server.CaptchaRateLimit,
		IPConfig:         ipConfig,
		Logger:           logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	cleanupManager := background.NewCleanupManager(auditRepo, retentionRepo, cfg.Retention, logger)
	cleanupCtx, cleanupCancel := context.WithCancel(ctx)
	defer cleanupCancel()
	go cleanupManager.Start(cleanupCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
