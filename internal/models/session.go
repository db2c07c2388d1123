package models

import (
	"time"
)

// AuthState is the position of a session in the login flow.
type AuthState string

const (
	StateAnonymous        AuthState = "anonymous"
	StatePasswordVerified AuthState = "password_verified"
	StateAuthenticated    AuthState = "authenticated"
)

// DeliveryMethod is the channel an OTP is sent over.
type DeliveryMethod string

const (
	DeliveryEmail DeliveryMethod = "email"
	DeliverySMS   DeliveryMethod = "sms"
)

// Valid reports whether m is a supported channel.
func (m DeliveryMethod) Valid() bool {
	return m == DeliveryEmail || m == DeliverySMS
}

// SessionState is the server-side state bound to one client session.
// It is only mutated through the transition methods below so that the
// pending OTP never outlives verification or expiry.
type SessionState struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id,omitempty"`
	Email          string         `json:"email,omitempty"`
	Phone          string         `json:"phone,omitempty"`
	DeliveryMethod DeliveryMethod `json:"delivery_method,omitempty"`
	PendingOTP     string         `json:"pending_otp,omitempty"`
	OTPIssuedAt    *time.Time     `json:"otp_issued_at,omitempty"`
	OTPVerified    bool           `json:"otp_verified"`
	OTPAttempts    int            `json:"otp_attempts"`
	GatedFailures  int            `json:"gated_failures"`
	CaptchaKind    string         `json:"captcha_kind,omitempty"`
	CaptchaAnswer  string         `json:"captcha_answer,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// NewSessionState returns an anonymous session.
func NewSessionState(id string, now time.Time) *SessionState {
	return &SessionState{ID: id, CreatedAt: now}
}

// State derives the current AuthState from the stored fields.
func (s *SessionState) State() AuthState {
	switch {
	case s.Email != "" && s.OTPVerified:
		return StateAuthenticated
	case s.Email != "" && s.PendingOTP != "" && s.OTPIssuedAt != nil:
		return StatePasswordVerified
	default:
		return StateAnonymous
	}
}

// CaptchaRequired reports whether the next credential submission must pass a challenge.
func (s *SessionState) CaptchaRequired(threshold int) bool {
	return s.GatedFailures >= threshold
}

// BeginOTPChallenge moves the session to StatePasswordVerified after a
// successful credential check. The gated failure counter and any pending
// challenge answer are cleared.
func (s *SessionState) BeginOTPChallenge(user *User, method DeliveryMethod, code string, now time.Time) {
	issued := now
	s.UserID = user.ID
	s.Email = user.Email
	s.Phone = user.Phone
	s.DeliveryMethod = method
	s.PendingOTP = code
	s.OTPIssuedAt = &issued
	s.OTPVerified = false
	s.OTPAttempts = 0
	s.GatedFailures = 0
	s.CaptchaKind = ""
	s.CaptchaAnswer = ""
}

// ReissueOTP replaces the pending code and restarts its validity window.
func (s *SessionState) ReissueOTP(code string, now time.Time) error {
	if s.State() != StatePasswordVerified {
		return ErrSessionExpired
	}
	issued := now
	s.PendingOTP = code
	s.OTPIssuedAt = &issued
	s.OTPAttempts = 0
	return nil
}

// OTPExpired reports whether the pending code is older than validity.
func (s *SessionState) OTPExpired(now time.Time, validity time.Duration) bool {
	if s.OTPIssuedAt == nil {
		return true
	}
	return now.Sub(*s.OTPIssuedAt) > validity
}

// RecordOTPAttempt counts a mismatched code and returns the running total.
func (s *SessionState) RecordOTPAttempt() int {
	s.OTPAttempts++
	return s.OTPAttempts
}

// CompleteAuthentication elevates the session and discards the pending code.
func (s *SessionState) CompleteAuthentication() {
	s.OTPVerified = true
	s.PendingOTP = ""
	s.OTPIssuedAt = nil
	s.OTPAttempts = 0
}

// ExpireOTP discards the pending code and returns the session to anonymous.
func (s *SessionState) ExpireOTP() {
	s.Reset()
}

// Reset clears everything except the session identity.
func (s *SessionState) Reset() {
	*s = SessionState{ID: s.ID, CreatedAt: s.CreatedAt}
}

// RecordGatedFailure counts a credential submission toward the challenge gate.
// Submissions are counted when admitted; BeginOTPChallenge clears the count.
func (s *SessionState) RecordGatedFailure() int {
	s.GatedFailures++
	return s.GatedFailures
}

// SetCaptcha binds a freshly issued challenge answer to the session,
// replacing any earlier one.
func (s *SessionState) SetCaptcha(kind, answer string) {
	s.CaptchaKind = kind
	s.CaptchaAnswer = answer
}

// ClearCaptcha drops the pending challenge answer so it cannot be replayed.
func (s *SessionState) ClearCaptcha() {
	s.CaptchaKind = ""
	s.CaptchaAnswer = ""
}
