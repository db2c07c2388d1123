package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification types
const (
	NotificationSecurity = "security"
	NotificationAdmin    = "admin"
	NotificationSystem   = "system"
	NotificationInfo     = "info"
)

// Notification is an in-app message shown to a single user.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"notification_type"`
	Severity  string    `json:"severity"`
	IsRead    bool      `json:"is_read"`
	EmailSent bool      `json:"email_sent"`
	CreatedAt time.Time `json:"created_at"`
}
