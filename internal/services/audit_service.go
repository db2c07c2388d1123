package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/otpgate/internal/models"
	pkglogger "github.com/BradenHooton/otpgate/pkg/logger"
)

// RiskObserver is told about every recorded authentication event.
type RiskObserver interface {
	Evaluate(ctx context.Context, e *models.AuditEvent) []*models.SecurityAlert
}

// AuditService handles audit logging with dual-write pattern (slog + database)
// and hands each event to the risk engine afterwards.
type AuditService struct {
	repo        AuditLogRepository
	observer    RiskObserver
	auditLogger *pkglogger.AuditLogger
	logger      *slog.Logger
	now         func() time.Time
}

// NewAuditService creates a new AuditService. observer may be nil.
func NewAuditService(repo AuditLogRepository, observer RiskObserver, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:        repo,
		observer:    observer,
		auditLogger: pkglogger.NewAuditLogger(logger),
		logger:      logger,
		now:         time.Now,
	}
}

// Record writes e to the log stream and the database, then runs the risk
// rules. Persistence failures are logged and never returned.
func (s *AuditService) Record(ctx context.Context, e *models.AuditEvent) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	if e.RiskLevel == "" {
		e.RiskLevel = models.RiskLow
	}

	userID := ""
	if e.UserID != nil {
		userID = *e.UserID
	}

	// Dual-write: immediate slog output
	s.auditLogger.LogAuthEvent(ctx, pkglogger.AuthEvent{
		EventType:      e.EventType,
		Email:          e.Email,
		UserID:         userID,
		IPAddress:      e.IPAddress,
		UserAgent:      e.UserAgent,
		DeliveryMethod: e.DeliveryMethod,
		RiskLevel:      e.RiskLevel,
		Detail:         e.Details,
	})

	if _, err := s.repo.Append(ctx, e); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist audit event",
			slog.String("event_type", e.EventType),
			slog.Any("error", err),
		)
	}

	if s.observer != nil {
		s.observer.Evaluate(ctx, e)
	}
}

// authEvent builds an audit entry for a request.
func authEvent(kind, email string, userID string, meta RequestMeta, risk, details string) *models.AuditEvent {
	e := &models.AuditEvent{
		Email:     email,
		EventType: kind,
		Details:   details,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		RiskLevel: risk,
	}
	if userID != "" {
		e.UserID = &userID
	}
	return e
}
