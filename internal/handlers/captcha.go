package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/otpgate/internal/auth"
	"github.com/BradenHooton/otpgate/internal/captcha"
	"github.com/BradenHooton/otpgate/internal/services"
	pkghttp "github.com/BradenHooton/otpgate/pkg/http"
)

// CaptchaServiceInterface defines the challenge operations exposed over HTTP
type CaptchaServiceInterface interface {
	Issue(ctx context.Context, sessionID, kind string) (string, *captcha.Challenge, error)
	VerifyStandalone(ctx context.Context, sessionID, response string, meta services.RequestMeta) (bool, error)
	VerifyRecaptcha(ctx context.Context, version, token, action, remoteIP string) (captcha.RecaptchaResult, error)
}

// CaptchaHandler serves CAPTCHA challenges and standalone verification.
type CaptchaHandler struct {
	service  CaptchaServiceInterface
	cookies  *SessionCookies
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

func NewCaptchaHandler(service CaptchaServiceInterface, cookies *SessionCookies, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *CaptchaHandler {
	return &CaptchaHandler{service: service, cookies: cookies, ipConfig: ipConfig, logger: logger}
}

// CaptchaVerifyRequest represents the request body for POST /captcha/verify
type CaptchaVerifyRequest struct {
	Response string `json:"response" validate:"required,max=64"`
}

// RecaptchaVerifyRequest represents the request body for POST /recaptcha/verify
type RecaptchaVerifyRequest struct {
	Token   string `json:"token" validate:"required,max=4096"`
	Version string `json:"version" validate:"omitempty,oneof=v2 v3"`
	Action  string `json:"action" validate:"max=64"`
}

type CaptchaVerifyResponse struct {
	Valid bool `json:"valid"`
}

// Generate handles GET /captcha/generate?type=text|math
func (h *CaptchaHandler) Generate(w http.ResponseWriter, r *http.Request) {
	sid, challenge, err := h.service.Issue(r.Context(), auth.SessionIDFromContext(r.Context()), r.URL.Query().Get("type"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if err := h.cookies.Set(w, sid); err != nil {
		h.logger.Error("failed to issue session cookie", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	pkghttp.WriteJSON(w, http.StatusOK, challenge)
}

// Verify handles POST /captcha/verify
func (h *CaptchaHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req CaptchaVerifyRequest
	if err := pkghttp.DecodeJSON(w, r, &req, maxBodyBytes); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	valid, err := h.service.VerifyStandalone(r.Context(), auth.SessionIDFromContext(r.Context()), req.Response, requestMeta(r, h.ipConfig))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, CaptchaVerifyResponse{Valid: valid})
}

// VerifyRecaptcha handles POST /recaptcha/verify
func (h *CaptchaHandler) VerifyRecaptcha(w http.ResponseWriter, r *http.Request) {
	var req RecaptchaVerifyRequest
	if err := pkghttp.DecodeJSON(w, r, &req, maxBodyBytes); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	res, err := h.service.VerifyRecaptcha(r.Context(), req.Version, req.Token, req.Action, pkghttp.ExtractClientIP(r, h.ipConfig))
	if err != nil {
		pkghttp.WriteBadRequest(w, "reCAPTCHA version not enabled")
		return
	}
	if res.Err != nil {
		h.logger.Warn("recaptcha verification unavailable", slog.Any("error", res.Err))
	}
	pkghttp.WriteJSON(w, http.StatusOK, res)
}
