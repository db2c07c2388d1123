package models

import (
	"time"

	"github.com/google/uuid"
)

// Alert types raised by the risk engine
const (
	AlertMultipleFailedLogins = "multiple_failed_logins"
	AlertNewIPLogin           = "new_ip_login"
	AlertRapidLoginAttempts   = "rapid_login_attempts"
)

// Alert statuses
const (
	AlertStatusActive   = "active"
	AlertStatusResolved = "resolved"
	AlertStatusIgnored  = "ignored"
)

type SecurityAlert struct {
	ID           uuid.UUID  `json:"id"`
	AlertType    string     `json:"alert_type"`
	Description  string     `json:"description"`
	AffectedUser string     `json:"affected_user"`
	IPAddress    string     `json:"ip_address"`
	Severity     string     `json:"severity"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy   *string    `json:"resolved_by,omitempty"`
}
