package middleware

import (
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/otpgate/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig is a per-client request budget over a one minute window.
type RateLimitConfig struct {
	RequestsPerMinute int
	// IPConfig decides which forwarded headers are trusted when keying by
	// client address. Nil means RemoteAddr only.
	IPConfig *pkghttp.IPConfig
}

// RateLimitByIP rejects requests over budget with 429. Each call builds an
// independent limiter, so route groups do not share counters.
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return pkghttp.ExtractClientIP(r, config.IPConfig), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "Too many requests, slow down")
		}),
	)
}
