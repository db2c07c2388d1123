package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BradenHooton/otpgate/internal/models"
	"github.com/BradenHooton/otpgate/internal/notify"
	"github.com/BradenHooton/otpgate/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthHandler(svc *MockAuthService) (*AuthHandler, func(string) (string, error)) {
	cookies, tm := testCookies()
	return NewAuthHandler(svc, cookies, nil, discardLogger()), tm.Parse
}

// ============================================================================
// Login
// ============================================================================

func TestAuthHandler_Login_Success(t *testing.T) {
	var got services.LoginInput
	var gotSID string
	svc := &MockAuthService{
		SubmitCredentialsFunc: func(ctx context.Context, sessionID string, in services.LoginInput) (*services.LoginResult, error) {
			got, gotSID = in, sessionID
			delivered := notify.Delivered()
			return &services.LoginResult{
				SessionID:      "sid-1",
				State:          models.StatePasswordVerified,
				DeliveryMethod: models.DeliveryEmail,
				Destination:    "d***@example.com",
				Delivery:       &delivered,
			}, nil
		},
	}
	h, parse := newTestAuthHandler(svc)

	req := NewTestRequest(t, "POST", "/auth/login", map[string]string{
		"email":            "demo@example.com",
		"password":         "Demo123!pass",
		"captcha_type":     "custom",
		"captcha_response": "K7M2Q",
	})
	req.Header.Set("User-Agent", "test-agent")
	w := httptest.NewRecorder()
	h.Login(w, req)

	var resp map[string]interface{}
	AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, string(models.StatePasswordVerified), resp["state"])
	assert.Equal(t, "d***@example.com", resp["destination"])
	assert.NotContains(t, resp, "session_id")

	assert.Empty(t, gotSID)
	assert.Equal(t, "demo@example.com", got.Email)
	assert.Equal(t, models.DeliveryEmail, got.DeliveryMethod)
	assert.Equal(t, "custom", got.Captcha.Kind)
	assert.Equal(t, "K7M2Q", got.Captcha.Response)
	assert.Equal(t, "203.0.113.5", got.Meta.IPAddress)
	assert.Equal(t, "test-agent", got.Meta.UserAgent)

	c := sessionCookie(w)
	require.NotNil(t, c)
	assert.True(t, c.HttpOnly)
	sid, err := parse(c.Value)
	require.NoError(t, err)
	assert.Equal(t, "sid-1", sid)
}

func TestAuthHandler_Login_ForwardsExistingSession(t *testing.T) {
	var gotSID string
	var gotMethod models.DeliveryMethod
	svc := &MockAuthService{
		SubmitCredentialsFunc: func(ctx context.Context, sessionID string, in services.LoginInput) (*services.LoginResult, error) {
			gotSID, gotMethod = sessionID, in.DeliveryMethod
			return &services.LoginResult{SessionID: sessionID, State: models.StatePasswordVerified}, nil
		},
	}
	h, _ := newTestAuthHandler(svc)

	req := NewTestRequest(t, "POST", "/auth/login", map[string]string{
		"email": "demo@example.com", "password": "x", "delivery_method": "sms",
	})
	w := httptest.NewRecorder()
	h.Login(w, WithSession(req, "existing"))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "existing", gotSID)
	assert.Equal(t, models.DeliverySMS, gotMethod)
}

func TestAuthHandler_Login_FailureKeepsCookieAndFlag(t *testing.T) {
	svc := &MockAuthService{
		SubmitCredentialsFunc: func(ctx context.Context, sessionID string, in services.LoginInput) (*services.LoginResult, error) {
			return &services.LoginResult{SessionID: "sid-2", State: models.StateAnonymous, CaptchaRequired: true}, models.ErrInvalidCredentials
		},
	}
	h, _ := newTestAuthHandler(svc)

	w := httptest.NewRecorder()
	h.Login(w, NewTestRequest(t, "POST", "/auth/login", map[string]string{"email": "demo@example.com", "password": "bad"}))

	var resp LoginErrorResponse
	AssertJSONResponse(t, w, http.StatusUnauthorized, &resp)
	assert.Equal(t, "invalid_credentials", resp.Error)
	assert.Equal(t, models.ErrInvalidCredentials.Error(), resp.Message)
	assert.True(t, resp.CaptchaRequired)
	assert.NotNil(t, sessionCookie(w))
}

func TestAuthHandler_Login_CaptchaErrors(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{models.ErrCaptchaRequired, "captcha_required"},
		{models.ErrCaptchaFailed, "captcha_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			svc := &MockAuthService{
				SubmitCredentialsFunc: func(ctx context.Context, sessionID string, in services.LoginInput) (*services.LoginResult, error) {
					return &services.LoginResult{SessionID: "sid", CaptchaRequired: true}, tt.err
				},
			}
			h, _ := newTestAuthHandler(svc)

			w := httptest.NewRecorder()
			h.Login(w, NewTestRequest(t, "POST", "/auth/login", map[string]string{"email": "demo@example.com", "password": "x"}))

			var resp LoginErrorResponse
			AssertJSONResponse(t, w, http.StatusForbidden, &resp)
			assert.Equal(t, tt.code, resp.Error)
			assert.True(t, resp.CaptchaRequired)
		})
	}
}

func TestAuthHandler_Login_InvalidRequest(t *testing.T) {
	called := false
	svc := &MockAuthService{
		SubmitCredentialsFunc: func(ctx context.Context, sessionID string, in services.LoginInput) (*services.LoginResult, error) {
			called = true
			return nil, nil
		},
	}
	h, _ := newTestAuthHandler(svc)

	bodies := map[string]string{
		"malformed":     `{"email":`,
		"unknown field": `{"email":"demo@example.com","password":"x","admin":true}`,
		"bad email":     `{"email":"not-an-email","password":"x"}`,
		"no password":   `{"email":"demo@example.com"}`,
		"bad channel":   `{"email":"demo@example.com","password":"x","delivery_method":"fax"}`,
		"bad captcha":   `{"email":"demo@example.com","password":"x","captcha_type":"hcaptcha"}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/auth/login", strings.NewReader(body))
			w := httptest.NewRecorder()
			h.Login(w, req)
			AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
			assert.Nil(t, sessionCookie(w))
		})
	}
	assert.False(t, called)
}

// ============================================================================
// Verify, resend, logout, status
// ============================================================================

func TestAuthHandler_Verify(t *testing.T) {
	var gotCode, gotSID string
	svc := &MockAuthService{
		SubmitOTPFunc: func(ctx context.Context, sessionID, code string, meta services.RequestMeta) (*services.StatusResult, error) {
			gotSID, gotCode = sessionID, code
			return &services.StatusResult{SessionID: "sid-10", State: models.StateAuthenticated, Email: "demo@example.com"}, nil
		},
	}
	h, parse := newTestAuthHandler(svc)

	w := httptest.NewRecorder()
	h.Verify(w, WithSession(NewTestRequest(t, "POST", "/auth/verify", map[string]string{"otp": "123456"}), "sid-9"))

	var resp map[string]interface{}
	AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, string(models.StateAuthenticated), resp["state"])
	assert.NotContains(t, resp, "session_id")
	assert.Equal(t, "sid-9", gotSID)
	assert.Equal(t, "123456", gotCode)

	// the elevated session is bound to a new cookie
	c := sessionCookie(w)
	require.NotNil(t, c)
	sid, err := parse(c.Value)
	require.NoError(t, err)
	assert.Equal(t, "sid-10", sid)
}

func TestAuthHandler_Verify_SameSessionKeepsCookie(t *testing.T) {
	svc := &MockAuthService{
		SubmitOTPFunc: func(ctx context.Context, sessionID, code string, meta services.RequestMeta) (*services.StatusResult, error) {
			return &services.StatusResult{SessionID: sessionID, State: models.StateAuthenticated}, nil
		},
	}
	h, _ := newTestAuthHandler(svc)

	w := httptest.NewRecorder()
	h.Verify(w, WithSession(NewTestRequest(t, "POST", "/auth/verify", map[string]string{"otp": "123456"}), "sid-9"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, sessionCookie(w))
}

func TestAuthHandler_Verify_RejectsMalformedCode(t *testing.T) {
	called := false
	svc := &MockAuthService{
		SubmitOTPFunc: func(ctx context.Context, sessionID, code string, meta services.RequestMeta) (*services.StatusResult, error) {
			called = true
			return nil, nil
		},
	}
	h, _ := newTestAuthHandler(svc)

	for _, code := range []string{"", "12ab56", "123", "123456789"} {
		w := httptest.NewRecorder()
		h.Verify(w, NewTestRequest(t, "POST", "/auth/verify", map[string]string{"otp": code}))
		AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
	}
	assert.False(t, called)
}

func TestAuthHandler_Verify_Errors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{models.ErrOTPMismatch, http.StatusUnauthorized, "invalid_otp"},
		{models.ErrOTPExpired, http.StatusUnauthorized, "otp_expired"},
		{models.ErrSessionExpired, http.StatusUnauthorized, "session_expired"},
		{models.ErrOTPAttemptsExceeded, http.StatusUnauthorized, "otp_attempts_exceeded"},
		{errors.New("redis down"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			svc := &MockAuthService{
				SubmitOTPFunc: func(ctx context.Context, sessionID, code string, meta services.RequestMeta) (*services.StatusResult, error) {
					return &services.StatusResult{State: models.StateAnonymous}, tt.err
				},
			}
			h, _ := newTestAuthHandler(svc)

			w := httptest.NewRecorder()
			h.Verify(w, NewTestRequest(t, "POST", "/auth/verify", map[string]string{"otp": "000000"}))
			AssertErrorResponse(t, w, tt.status, tt.code)
		})
	}
}

func TestAuthHandler_ResendOTP(t *testing.T) {
	svc := &MockAuthService{
		ResendOTPFunc: func(ctx context.Context, sessionID string, meta services.RequestMeta) (*services.LoginResult, error) {
			if sessionID == "" {
				return nil, models.ErrSessionExpired
			}
			return &services.LoginResult{SessionID: sessionID, State: models.StatePasswordVerified}, nil
		},
	}
	h, _ := newTestAuthHandler(svc)

	w := httptest.NewRecorder()
	h.ResendOTP(w, NewTestRequest(t, "POST", "/auth/resend-otp", nil))
	AssertErrorResponse(t, w, http.StatusUnauthorized, "session_expired")

	w = httptest.NewRecorder()
	h.ResendOTP(w, WithSession(NewTestRequest(t, "POST", "/auth/resend-otp", nil), "sid"))
	var resp map[string]interface{}
	AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, string(models.StatePasswordVerified), resp["state"])
}

func TestAuthHandler_Logout(t *testing.T) {
	var gotSID string
	svc := &MockAuthService{
		LogoutFunc: func(ctx context.Context, sessionID string, meta services.RequestMeta) error {
			gotSID = sessionID
			return nil
		},
	}
	h, _ := newTestAuthHandler(svc)

	w := httptest.NewRecorder()
	h.Logout(w, WithSession(NewTestRequest(t, "POST", "/auth/logout", nil), "sid-3"))

	AssertJSONResponse(t, w, http.StatusOK, nil)
	assert.Equal(t, "sid-3", gotSID)
	c := sessionCookie(w)
	require.NotNil(t, c)
	assert.Less(t, c.MaxAge, 0)
}

func TestAuthHandler_Status(t *testing.T) {
	h, _ := newTestAuthHandler(&MockAuthService{})

	w := httptest.NewRecorder()
	h.Status(w, NewTestRequest(t, "GET", "/auth/status", nil))

	var resp services.StatusResult
	AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, models.StateAnonymous, resp.State)
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{models.ErrBadRequest, http.StatusBadRequest, "bad_request"},
		{models.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{models.ErrForbidden, http.StatusForbidden, "forbidden"},
		{models.ErrNotFound, http.StatusNotFound, "not_found"},
		{models.ErrConflict, http.StatusConflict, "conflict"},
		{models.ErrInternalServer, http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		writeServiceError(w, tt.err)
		AssertErrorResponse(t, w, tt.status, tt.code)
	}
}
