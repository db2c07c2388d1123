package services

import (
	"context"
	"time"

	"github.com/BradenHooton/otpgate/internal/captcha"
	"github.com/BradenHooton/otpgate/internal/models"
	"github.com/BradenHooton/otpgate/internal/notify"
	"github.com/google/uuid"
)

// UserRepository is the credential store used by the services.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	RecordLoginSuccess(ctx context.Context, id string, at time.Time) error
	IncrementFailedLogins(ctx context.Context, id string, at time.Time) (int, error)
	ListByRole(ctx context.Context, role string) ([]*models.User, error)
	SetStatus(ctx context.Context, id, status string) (*models.User, error)
	CountStats(ctx context.Context) (models.UserStats, error)
}

// AuditLogRepository is the append-only authentication log.
type AuditLogRepository interface {
	Append(ctx context.Context, e *models.AuditEvent) (*models.AuditEvent, error)
	CountSince(ctx context.Context, email string, kinds []string, since time.Time) (int, error)
	DistinctSuccessIPs(ctx context.Context, email, excludingIP string) ([]string, error)
	ListRecent(ctx context.Context, f models.AuditFilter) ([]*models.AuditEvent, error)
	CountByTypeSince(ctx context.Context, kind string, since time.Time) (int, error)
	CountAllSince(ctx context.Context, since time.Time) (int, error)
	Distribution(ctx context.Context, window int) (models.EventDistribution, error)
}

// SessionStore holds per-client session state. Update applies fn under an
// optimistic lock and persists the result even when fn returns an error.
type SessionStore interface {
	Create(ctx context.Context) (*models.SessionState, error)
	Get(ctx context.Context, id string) (*models.SessionState, error)
	Update(ctx context.Context, id string, fn func(*models.SessionState) error) (*models.SessionState, error)
	Rotate(ctx context.Context, id string, fn func(*models.SessionState) error) (*models.SessionState, error)
	Delete(ctx context.Context, id string) error
}

type SecurityAlertRepository interface {
	Create(ctx context.Context, a *models.SecurityAlert) (*models.SecurityAlert, error)
	ListByStatus(ctx context.Context, status string, limit int) ([]*models.SecurityAlert, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status, resolvedBy string, at time.Time) (*models.SecurityAlert, error)
	CountActive(ctx context.Context) (active int, critical int, err error)
}

type ActivityLogRepository interface {
	Create(ctx context.Context, a *models.ActivityLog) (*models.ActivityLog, error)
	ListRecent(ctx context.Context, limit int) ([]*models.ActivityLog, error)
}

type NotificationCounter interface {
	CountUnread(ctx context.Context) (int, error)
}

// Notifier is the outbound side of the notification dispatcher.
type Notifier interface {
	SendOTP(ctx context.Context, destination string, channel models.DeliveryMethod, code string) notify.DeliveryResult
	SendAlert(ctx context.Context, recipients []string, subject, body string) notify.DeliveryResult
	Notify(ctx context.Context, userID, email, title, message, kind, severity string) (*models.Notification, error)
}

// CodeGenerator produces one-time passcodes.
type CodeGenerator interface {
	Generate() (string, error)
}

// PasswordMatcher checks a password against a stored hash.
type PasswordMatcher interface {
	Matches(hash, password string) bool
}

// ChallengeIssuer creates local CAPTCHA challenges.
type ChallengeIssuer interface {
	Issue(kind captcha.Kind) (*captcha.Challenge, error)
}

type RecaptchaV2Verifier interface {
	VerifyV2(ctx context.Context, token, remoteIP string) captcha.RecaptchaResult
}

type RecaptchaV3Verifier interface {
	VerifyV3(ctx context.Context, token, expectedAction string, minScore float64, remoteIP string) captcha.RecaptchaResult
}

// RequestMeta identifies the client behind a call.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}
