package models

import (
	"time"

	"github.com/google/uuid"
)

// Authentication event types
const (
	EventLoginAttempt   = "login_attempt"
	EventLoginSuccess   = "login_success"
	EventLoginFailed    = "login_failed"
	EventOTPSent        = "otp_sent"
	EventOTPFailed      = "otp_failed"
	EventOTPVerified    = "otp_verified"
	EventOTPExpired     = "otp_expired"
	EventOTPResend      = "otp_resend"
	EventCaptchaFailed  = "captcha_failed"
	EventCaptchaSuccess = "captcha_success"
	EventLogout         = "logout"
	EventSessionExpired = "session_expired"
)

// Risk levels
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// AuditEvent is a single append-only authentication log entry.
type AuditEvent struct {
	ID             uuid.UUID `json:"id"`
	UserID         *string   `json:"user_id,omitempty"`
	Email          string    `json:"email"`
	EventType      string    `json:"event_type"`
	Details        string    `json:"details"`
	IPAddress      string    `json:"ip_address"`
	UserAgent      string    `json:"user_agent"`
	DeliveryMethod string    `json:"delivery_method,omitempty"`
	RiskLevel      string    `json:"risk_level"`
	CreatedAt      time.Time `json:"created_at"`
}

// AuditFilter narrows admin listings of the audit log.
type AuditFilter struct {
	Email      string
	EventTypes []string
	Limit      int
	Offset     int
}

// EventDistribution tallies recent events for the admin dashboard.
type EventDistribution struct {
	EventTypes      map[string]int `json:"event_counts"`
	DeliveryMethods map[string]int `json:"delivery_counts"`
}
