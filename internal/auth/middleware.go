package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/otpgate/internal/models"
	pkghttp "github.com/BradenHooton/otpgate/pkg/http"
)

type contextKey string

const (
	sessionIDContextKey contextKey = "session_id"
	userContextKey      contextKey = "user"
)

// SessionReader loads server-side session state.
type SessionReader interface {
	Get(ctx context.Context, id string) (*models.SessionState, error)
}

// UserRepository fetches the current user record.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// SessionMiddleware resolves the session cookie, if any, and stores the
// session id in the request context. Requests without a valid cookie pass
// through anonymously.
func SessionMiddleware(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := GetSessionCookie(r)
			if err != nil || raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			sid, err := tm.Parse(raw)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), sessionIDContextKey, sid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionIDFromContext returns the session id set by SessionMiddleware.
func SessionIDFromContext(ctx context.Context) string {
	sid, _ := ctx.Value(sessionIDContextKey).(string)
	return sid
}

// WithSessionID returns a copy of ctx carrying sid.
func WithSessionID(ctx context.Context, sid string) context.Context {
	return context.WithValue(ctx, sessionIDContextKey, sid)
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the user placed in context by RequireRoleMiddleware.
func UserFromContext(ctx context.Context) *models.User {
	u, _ := ctx.Value(userContextKey).(*models.User)
	return u
}

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

const (
	ReasonNotAuthenticated = "not authenticated"
	ReasonAccountDisabled  = "account disabled"
	ReasonInsufficientRole = "insufficient permissions"
)

// RequireRole decides whether session and user may act with role.
func RequireRole(session *models.SessionState, user *models.User, role string) Decision {
	if session == nil || session.State() != models.StateAuthenticated || user == nil {
		return Decision{Reason: ReasonNotAuthenticated}
	}
	if session.UserID != user.ID {
		return Decision{Reason: ReasonNotAuthenticated}
	}
	if !user.IsActive() {
		return Decision{Reason: ReasonAccountDisabled}
	}
	if user.Role != role {
		return Decision{Reason: ReasonInsufficientRole}
	}
	return Decision{Allowed: true}
}

// RequireRoleMiddleware enforces RequireRole for the request's session and
// stores the resolved user in the context. Must run after SessionMiddleware.
func RequireRoleMiddleware(sessions SessionReader, users UserRepository, role string, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid := SessionIDFromContext(r.Context())
			if sid == "" {
				pkghttp.WriteUnauthorized(w, ReasonNotAuthenticated)
				return
			}

			session, err := sessions.Get(r.Context(), sid)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					pkghttp.WriteUnauthorized(w, ReasonNotAuthenticated)
					return
				}
				logger.Error("failed to load session", slog.Any("error", err))
				pkghttp.WriteInternalError(w, "internal server error")
				return
			}

			var user *models.User
			if session.UserID != "" {
				user, err = users.GetByID(r.Context(), session.UserID)
				if err != nil && !errors.Is(err, models.ErrNotFound) {
					logger.Error("failed to load user", slog.Any("error", err))
					pkghttp.WriteInternalError(w, "internal server error")
					return
				}
			}

			decision := RequireRole(session, user, role)
			if !decision.Allowed {
				if decision.Reason == ReasonNotAuthenticated {
					pkghttp.WriteUnauthorized(w, decision.Reason)
				} else {
					pkghttp.WriteForbidden(w, decision.Reason)
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}
