package routes

import (
	"log/slog"

	"github.com/BradenHooton/otpgate/internal/auth"
	"github.com/BradenHooton/otpgate/internal/handlers"
	"github.com/BradenHooton/otpgate/internal/middleware"
	"github.com/BradenHooton/otpgate/internal/models"
	pkghttp "github.com/BradenHooton/otpgate/pkg/http"
	"github.com/go-chi/chi/v5"
)

// Dependencies groups what the route table needs.
type Dependencies struct {
	AuthHandler    *handlers.AuthHandler
	CaptchaHandler *handlers.CaptchaHandler
	AdminHandler   *handlers.AdminHandler
	HealthHandler  *handlers.HealthHandler

	Tokens   *auth.TokenManager
	Sessions auth.SessionReader
	Users    auth.UserRepository

	AuthRateLimit    int
	CaptchaRateLimit int
	IPConfig         *pkghttp.IPConfig
	Logger           *slog.Logger
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, deps Dependencies) {
	router.Get("/health", deps.HealthHandler.Health)

	router.Group(func(r chi.Router) {
		r.Use(auth.SessionMiddleware(deps.Tokens))

		r.Route("/auth", func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(middleware.RateLimitConfig{
				RequestsPerMinute: deps.AuthRateLimit,
				IPConfig:          deps.IPConfig,
			}))
			r.Post("/login", deps.AuthHandler.Login)
			r.Post("/verify", deps.AuthHandler.Verify)
			r.Post("/resend-otp", deps.AuthHandler.ResendOTP)
			r.Post("/logout", deps.AuthHandler.Logout)
			r.Get("/status", deps.AuthHandler.Status)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(middleware.RateLimitConfig{
				RequestsPerMinute: deps.CaptchaRateLimit,
				IPConfig:          deps.IPConfig,
			}))
			r.Get("/captcha/generate", deps.CaptchaHandler.Generate)
			r.Post("/captcha/verify", deps.CaptchaHandler.Verify)
			r.Post("/recaptcha/verify", deps.CaptchaHandler.VerifyRecaptcha)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireRoleMiddleware(deps.Sessions, deps.Users, models.RoleAdmin, deps.Logger))
			r.Get("/dashboard", deps.AdminHandler.Dashboard)
			r.Get("/audit-logs", deps.AdminHandler.AuditLogs)
			r.Get("/alerts", deps.AdminHandler.Alerts)
			r.Post("/alerts/{id}/resolve", deps.AdminHandler.ResolveAlert)
			r.Post("/alerts/{id}/ignore", deps.AdminHandler.IgnoreAlert)
			r.Post("/users/{id}/status", deps.AdminHandler.SetUserStatus)
		})
	})
}
