package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/otpgate/internal/auth"
	"github.com/BradenHooton/otpgate/internal/models"
	"github.com/BradenHooton/otpgate/internal/services"
	pkghttp "github.com/BradenHooton/otpgate/pkg/http"
)

// AuthServiceInterface defines the interface for the login flow
type AuthServiceInterface interface {
	SubmitCredentials(ctx context.Context, sessionID string, in services.LoginInput) (*services.LoginResult, error)
	SubmitOTP(ctx context.Context, sessionID, code string, meta services.RequestMeta) (*services.StatusResult, error)
	ResendOTP(ctx context.Context, sessionID string, meta services.RequestMeta) (*services.LoginResult, error)
	Logout(ctx context.Context, sessionID string, meta services.RequestMeta) error
	Status(ctx context.Context, sessionID string) (*services.StatusResult, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	cookies  *SessionCookies
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, cookies *SessionCookies, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:  service,
		cookies:  cookies,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email           string `json:"email" validate:"required,email,max=254"`
	Password        string `json:"password" validate:"required,max=256"`
	DeliveryMethod  string `json:"delivery_method" validate:"omitempty,oneof=email sms"`
	CaptchaType     string `json:"captcha_type" validate:"omitempty,oneof=custom text math recaptcha_v2 recaptcha_v3"`
	CaptchaResponse string `json:"captcha_response" validate:"max=64"`
	RecaptchaToken  string `json:"recaptcha_token" validate:"max=4096"`
}

// VerifyOTPRequest represents the request body for OTP verification
type VerifyOTPRequest struct {
	OTP string `json:"otp" validate:"required,numeric,min=4,max=8"`
}

// LoginResponse is returned after a successful credential check.
type LoginResponse struct {
	Message string `json:"message"`
	*services.LoginResult
}

// LoginErrorResponse carries the gate flag next to the error so clients
// know to fetch a challenge.
type LoginErrorResponse struct {
	pkghttp.ErrorResponse
	CaptchaRequired bool `json:"captcha_required"`
}

// VerifyOTPResponse is returned after a successful OTP check.
type VerifyOTPResponse struct {
	Message string `json:"message"`
	*services.StatusResult
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := pkghttp.DecodeJSON(w, r, &req, maxBodyBytes); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	method := models.DeliveryMethod(req.DeliveryMethod)
	if method == "" {
		method = models.DeliveryEmail
	}

	sid := auth.SessionIDFromContext(r.Context())
	res, err := h.service.SubmitCredentials(r.Context(), sid, services.LoginInput{
		Email:          req.Email,
		Password:       req.Password,
		DeliveryMethod: method,
		Captcha: services.CaptchaInput{
			Kind:     req.CaptchaType,
			Response: req.CaptchaResponse,
			Token:    req.RecaptchaToken,
		},
		Meta: requestMeta(r, h.ipConfig),
	})

	// the session carries the gate counter, so keep it even on failure
	if res != nil {
		if cerr := h.cookies.Set(w, res.SessionID); cerr != nil {
			h.logger.Error("failed to issue session cookie", slog.Any("error", cerr))
			pkghttp.WriteInternalError(w, "Internal server error")
			return
		}
	}

	if err != nil {
		h.writeLoginError(w, err, res)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		Message:     "Password verified. Enter the one-time code we sent you.",
		LoginResult: res,
	})
}

func (h *AuthHandler) writeLoginError(w http.ResponseWriter, err error, res *services.LoginResult) {
	if res == nil {
		writeServiceError(w, err)
		return
	}

	status, body := errorFor(err)
	pkghttp.WriteJSON(w, status, LoginErrorResponse{
		ErrorResponse:   body,
		CaptchaRequired: res.CaptchaRequired,
	})
}

// Verify handles POST /auth/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if err := pkghttp.DecodeJSON(w, r, &req, maxBodyBytes); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	sid := auth.SessionIDFromContext(r.Context())
	status, err := h.service.SubmitOTP(r.Context(), sid, req.OTP, requestMeta(r, h.ipConfig))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if status.SessionID != sid {
		if cerr := h.cookies.Set(w, status.SessionID); cerr != nil {
			h.logger.Error("failed to issue session cookie", slog.Any("error", cerr))
			pkghttp.WriteInternalError(w, "Internal server error")
			return
		}
	}

	pkghttp.WriteJSON(w, http.StatusOK, VerifyOTPResponse{
		Message:      "Authentication complete",
		StatusResult: status,
	})
}

// ResendOTP handles POST /auth/resend-otp
func (h *AuthHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	sid := auth.SessionIDFromContext(r.Context())
	res, err := h.service.ResendOTP(r.Context(), sid, requestMeta(r, h.ipConfig))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		Message:     "A new one-time code has been sent.",
		LoginResult: res,
	})
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sid := auth.SessionIDFromContext(r.Context())
	if err := h.service.Logout(r.Context(), sid, requestMeta(r, h.ipConfig)); err != nil {
		writeServiceError(w, err)
		return
	}

	h.cookies.Clear(w)
	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Logged out"})
}

// Status handles GET /auth/status
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(r.Context(), auth.SessionIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, status)
}
