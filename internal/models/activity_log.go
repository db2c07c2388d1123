package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Activity severities
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Admin activity types
const (
	ActivityAdminDashboard   = "admin_dashboard_access"
	ActivityAdminAuditLogs   = "admin_audit_logs_access"
	ActivityAdminAlerts      = "admin_alerts_access"
	ActivityAdminAlertUpdate = "admin_alert_update"
	ActivityAdminUserStatus  = "admin_user_status_change"
	ActivitySystemInit       = "system_init"
)

// User security activity types
const (
	ActivityCaptchaFailed = "security_captcha_failed"
	ActivityOTPLockout    = "security_otp_lockout"
	ActivityUserLogin     = "user_login"
	ActivityUserLogout    = "user_logout"
)

// ActivityLog records user and administrator actions alongside the audit log.
type ActivityLog struct {
	ID           uuid.UUID `json:"id"`
	UserID       *string   `json:"user_id,omitempty"`
	Email        string    `json:"email"`
	ActivityType string    `json:"activity_type"`
	Description  string    `json:"description"`
	TargetUser   *string   `json:"target_user,omitempty"`
	IPAddress    string    `json:"ip_address"`
	UserAgent    string    `json:"user_agent"`
	Severity     string    `json:"severity"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsAdminActivity reports whether the entry was produced by an admin endpoint.
func (a *ActivityLog) IsAdminActivity() bool {
	return strings.HasPrefix(a.ActivityType, "admin_")
}

// IsCritical reports whether the entry warrants an in-app notification.
func (a *ActivityLog) IsCritical() bool {
	return a.Severity == SeverityError || a.Severity == SeverityCritical
}
