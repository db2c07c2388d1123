package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/otpgate/internal/auth"
	"github.com/BradenHooton/otpgate/internal/captcha"
	"github.com/BradenHooton/otpgate/internal/models"
	"github.com/BradenHooton/otpgate/internal/services"
	pkghttp "github.com/BradenHooton/otpgate/pkg/http"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "handler-test-secret-0123456789abcdef"

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.5:41000"
	return req
}

// WithSession binds a session id to the request context, as SessionMiddleware would.
func WithSession(req *http.Request, sid string) *http.Request {
	return req.WithContext(auth.WithSessionID(req.Context(), sid))
}

// WithAdmin places an admin user in the request context, as RequireRoleMiddleware would.
func WithAdmin(req *http.Request, user *models.User) *http.Request {
	return req.WithContext(auth.WithUser(req.Context(), user))
}

func testCookies() (*SessionCookies, *auth.TokenManager) {
	tm := auth.NewTokenManager(testSecret, time.Hour)
	return NewSessionCookies(tm, auth.CookieConfig{SameSite: "lax", MaxAge: time.Hour}), tm
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	if target != nil {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), target), "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// sessionCookie returns the session cookie set on the response, if any.
func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			return c
		}
	}
	return nil
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	SubmitCredentialsFunc func(ctx context.Context, sessionID string, in services.LoginInput) (*services.LoginResult, error)
	SubmitOTPFunc         func(ctx context.Context, sessionID, code string, meta services.RequestMeta) (*services.StatusResult, error)
	ResendOTPFunc         func(ctx context.Context, sessionID string, meta services.RequestMeta) (*services.LoginResult, error)
	LogoutFunc            func(ctx context.Context, sessionID string, meta services.RequestMeta) error
	StatusFunc            func(ctx context.Context, sessionID string) (*services.StatusResult, error)
}

func (m *MockAuthService) SubmitCredentials(ctx context.Context, sessionID string, in services.LoginInput) (*services.LoginResult, error) {
	if m.SubmitCredentialsFunc != nil {
		return m.SubmitCredentialsFunc(ctx, sessionID, in)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAuthService) SubmitOTP(ctx context.Context, sessionID, code string, meta services.RequestMeta) (*services.StatusResult, error) {
	if m.SubmitOTPFunc != nil {
		return m.SubmitOTPFunc(ctx, sessionID, code, meta)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAuthService) ResendOTP(ctx context.Context, sessionID string, meta services.RequestMeta) (*services.LoginResult, error) {
	if m.ResendOTPFunc != nil {
		return m.ResendOTPFunc(ctx, sessionID, meta)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAuthService) Logout(ctx context.Context, sessionID string, meta services.RequestMeta) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, sessionID, meta)
	}
	return nil
}

func (m *MockAuthService) Status(ctx context.Context, sessionID string) (*services.StatusResult, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, sessionID)
	}
	return &services.StatusResult{State: models.StateAnonymous}, nil
}

// MockCaptchaService implements CaptchaServiceInterface for testing
type MockCaptchaService struct {
	IssueFunc            func(ctx context.Context, sessionID, kind string) (string, *captcha.Challenge, error)
	VerifyStandaloneFunc func(ctx context.Context, sessionID, response string, meta services.RequestMeta) (bool, error)
	VerifyRecaptchaFunc  func(ctx context.Context, version, token, action, remoteIP string) (captcha.RecaptchaResult, error)
}

func (m *MockCaptchaService) Issue(ctx context.Context, sessionID, kind string) (string, *captcha.Challenge, error) {
	if m.IssueFunc != nil {
		return m.IssueFunc(ctx, sessionID, kind)
	}
	return "", nil, models.ErrInternalServer
}

func (m *MockCaptchaService) VerifyStandalone(ctx context.Context, sessionID, response string, meta services.RequestMeta) (bool, error) {
	if m.VerifyStandaloneFunc != nil {
		return m.VerifyStandaloneFunc(ctx, sessionID, response, meta)
	}
	return false, nil
}

func (m *MockCaptchaService) VerifyRecaptcha(ctx context.Context, version, token, action, remoteIP string) (captcha.RecaptchaResult, error) {
	if m.VerifyRecaptchaFunc != nil {
		return m.VerifyRecaptchaFunc(ctx, version, token, action, remoteIP)
	}
	return captcha.RecaptchaResult{}, nil
}

// MockAdminService implements AdminServiceInterface for testing
type MockAdminService struct {
	DashboardFunc         func(ctx context.Context, actor *models.User, meta services.RequestMeta) (*services.DashboardStats, error)
	AuditLogsFunc         func(ctx context.Context, actor *models.User, f models.AuditFilter, meta services.RequestMeta) ([]*models.AuditEvent, error)
	AlertsFunc            func(ctx context.Context, actor *models.User, status string, limit int, meta services.RequestMeta) ([]*models.SecurityAlert, error)
	UpdateAlertStatusFunc func(ctx context.Context, actor *models.User, id uuid.UUID, status string, meta services.RequestMeta) (*models.SecurityAlert, error)
	SetUserStatusFunc     func(ctx context.Context, actor *models.User, userID, status string, meta services.RequestMeta) (*models.User, error)
}

func (m *MockAdminService) Dashboard(ctx context.Context, actor *models.User, meta services.RequestMeta) (*services.DashboardStats, error) {
	if m.DashboardFunc != nil {
		return m.DashboardFunc(ctx, actor, meta)
	}
	return &services.DashboardStats{}, nil
}

func (m *MockAdminService) AuditLogs(ctx context.Context, actor *models.User, f models.AuditFilter, meta services.RequestMeta) ([]*models.AuditEvent, error) {
	if m.AuditLogsFunc != nil {
		return m.AuditLogsFunc(ctx, actor, f, meta)
	}
	return nil, nil
}

func (m *MockAdminService) Alerts(ctx context.Context, actor *models.User, status string, limit int, meta services.RequestMeta) ([]*models.SecurityAlert, error) {
	if m.AlertsFunc != nil {
		return m.AlertsFunc(ctx, actor, status, limit, meta)
	}
	return nil, nil
}

func (m *MockAdminService) UpdateAlertStatus(ctx context.Context, actor *models.User, id uuid.UUID, status string, meta services.RequestMeta) (*models.SecurityAlert, error) {
	if m.UpdateAlertStatusFunc != nil {
		return m.UpdateAlertStatusFunc(ctx, actor, id, status, meta)
	}
	return nil, models.ErrNotFound
}

func (m *MockAdminService) SetUserStatus(ctx context.Context, actor *models.User, userID, status string, meta services.RequestMeta) (*models.User, error) {
	if m.SetUserStatusFunc != nil {
		return m.SetUserStatusFunc(ctx, actor, userID, status, meta)
	}
	return nil, models.ErrNotFound
}
