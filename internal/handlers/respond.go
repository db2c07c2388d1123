package handlers

import (
	"errors"
	"net/http"

	"github.com/BradenHooton/otpgate/internal/auth"
	"github.com/BradenHooton/otpgate/internal/models"
	"github.com/BradenHooton/otpgate/internal/services"
	pkghttp "github.com/BradenHooton/otpgate/pkg/http"
)

const maxBodyBytes = 1 << 16

// MessageResponse is a plain acknowledgement body.
type MessageResponse struct {
	Message string `json:"message"`
}

// SessionCookies issues and clears the signed session cookie.
type SessionCookies struct {
	tokens *auth.TokenManager
	config auth.CookieConfig
}

func NewSessionCookies(tokens *auth.TokenManager, config auth.CookieConfig) *SessionCookies {
	return &SessionCookies{tokens: tokens, config: config}
}

// Set binds sessionID to the response. It is a no-op for an empty id.
func (c *SessionCookies) Set(w http.ResponseWriter, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	token, err := c.tokens.Issue(sessionID)
	if err != nil {
		return err
	}
	auth.SetSessionCookie(w, token, c.config)
	return nil
}

func (c *SessionCookies) Clear(w http.ResponseWriter) {
	auth.ClearSessionCookie(w, c.config)
}

func requestMeta(r *http.Request, ipConfig *pkghttp.IPConfig) services.RequestMeta {
	return services.RequestMeta{
		IPAddress: pkghttp.ExtractClientIP(r, ipConfig),
		UserAgent: r.Header.Get("User-Agent"),
	}
}

// errorFor maps a service sentinel error onto a status code and body.
func errorFor(err error) (int, pkghttp.ErrorResponse) {
	switch {
	case errors.Is(err, models.ErrBadRequest):
		return http.StatusBadRequest, pkghttp.ErrorResponse{Error: "bad_request", Message: "Invalid request"}
	case errors.Is(err, models.ErrInvalidCredentials):
		return http.StatusUnauthorized, pkghttp.ErrorResponse{Error: "invalid_credentials", Message: models.ErrInvalidCredentials.Error()}
	case errors.Is(err, models.ErrSessionExpired):
		return http.StatusUnauthorized, pkghttp.ErrorResponse{Error: "session_expired", Message: models.ErrSessionExpired.Error()}
	case errors.Is(err, models.ErrOTPExpired):
		return http.StatusUnauthorized, pkghttp.ErrorResponse{Error: "otp_expired", Message: models.ErrOTPExpired.Error()}
	case errors.Is(err, models.ErrOTPMismatch):
		return http.StatusUnauthorized, pkghttp.ErrorResponse{Error: "invalid_otp", Message: models.ErrOTPMismatch.Error()}
	case errors.Is(err, models.ErrOTPAttemptsExceeded):
		return http.StatusUnauthorized, pkghttp.ErrorResponse{Error: "otp_attempts_exceeded", Message: models.ErrOTPAttemptsExceeded.Error()}
	case errors.Is(err, models.ErrCaptchaRequired):
		return http.StatusForbidden, pkghttp.ErrorResponse{Error: "captcha_required", Message: models.ErrCaptchaRequired.Error()}
	case errors.Is(err, models.ErrCaptchaFailed):
		return http.StatusForbidden, pkghttp.ErrorResponse{Error: "captcha_failed", Message: models.ErrCaptchaFailed.Error()}
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized, pkghttp.ErrorResponse{Error: "unauthorized", Message: "Authentication required"}
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden, pkghttp.ErrorResponse{Error: "forbidden", Message: "Operation not permitted"}
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, pkghttp.ErrorResponse{Error: "not_found", Message: "Resource not found"}
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict, pkghttp.ErrorResponse{Error: "conflict", Message: "Resource already exists"}
	default:
		return http.StatusInternalServerError, pkghttp.ErrorResponse{Error: "internal_error", Message: "Internal server error"}
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status, body := errorFor(err)
	pkghttp.WriteErrorResponse(w, status, body)
}
