package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/otpgate/internal/config"
	"github.com/BradenHooton/otpgate/internal/models"
	pkglogger "github.com/BradenHooton/otpgate/pkg/logger"
)

// RiskAuditReader is the part of the audit log the risk rules query.
type RiskAuditReader interface {
	CountSince(ctx context.Context, email string, kinds []string, since time.Time) (int, error)
	DistinctSuccessIPs(ctx context.Context, email, excludingIP string) ([]string, error)
}

// AdminDirectory lists alert recipients.
type AdminDirectory interface {
	ListByRole(ctx context.Context, role string) ([]*models.User, error)
}

// RiskService derives security alerts from the audit log. It keeps no
// state between calls; every rule re-reads the log.
type RiskService struct {
	cfg      config.RiskConfig
	audit    RiskAuditReader
	alerts   SecurityAlertRepository
	admins   AdminDirectory
	notifier Notifier
	logger   *slog.Logger
}

func NewRiskService(cfg config.RiskConfig, audit RiskAuditReader, alerts SecurityAlertRepository, admins AdminDirectory, notifier Notifier, logger *slog.Logger) *RiskService {
	return &RiskService{
		cfg:      cfg,
		audit:    audit,
		alerts:   alerts,
		admins:   admins,
		notifier: notifier,
		logger:   logger,
	}
}

// Evaluate runs the rules that apply to e's kind and returns the alerts
// raised. Lookups are relative to e.CreatedAt.
func (s *RiskService) Evaluate(ctx context.Context, e *models.AuditEvent) []*models.SecurityAlert {
	if e == nil || e.Email == "" {
		return nil
	}

	var candidate *models.SecurityAlert
	var err error

	switch e.EventType {
	case models.EventLoginFailed:
		candidate, err = s.checkBruteForce(ctx, e)
	case models.EventLoginSuccess:
		candidate, err = s.checkNewIP(ctx, e)
	case models.EventLoginAttempt:
		candidate, err = s.checkRapidAttempts(ctx, e)
	default:
		return nil
	}

	if err != nil {
		s.logger.ErrorContext(ctx, "risk rule evaluation failed",
			slog.String("event_type", e.EventType),
			slog.Any("error", err))
		return nil
	}
	if candidate == nil {
		return nil
	}

	alert, ok := s.raise(ctx, candidate)
	if !ok {
		return nil
	}
	return []*models.SecurityAlert{alert}
}

func (s *RiskService) checkBruteForce(ctx context.Context, e *models.AuditEvent) (*models.SecurityAlert, error) {
	since := e.CreatedAt.Add(-s.cfg.FailedLoginWindow)
	count, err := s.audit.CountSince(ctx, e.Email, []string{models.EventLoginFailed}, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count failed logins: %w", err)
	}
	if count < s.cfg.FailedLoginThreshold {
		return nil, nil
	}

	return &models.SecurityAlert{
		AlertType: models.AlertMultipleFailedLogins,
		Description: fmt.Sprintf("%d failed login attempts for %s in the last %s",
			count, e.Email, s.cfg.FailedLoginWindow),
		AffectedUser: e.Email,
		IPAddress:    e.IPAddress,
		Severity:     models.RiskHigh,
	}, nil
}

func (s *RiskService) checkNewIP(ctx context.Context, e *models.AuditEvent) (*models.SecurityAlert, error) {
	if e.IPAddress == "" {
		return nil, nil
	}

	ips, err := s.audit.DistinctSuccessIPs(ctx, e.Email, e.IPAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to list prior login ips: %w", err)
	}
	if len(ips) == 0 {
		return nil, nil
	}

	return &models.SecurityAlert{
		AlertType: models.AlertNewIPLogin,
		Description: fmt.Sprintf("login for %s from new IP %s (previously seen: %s)",
			e.Email, e.IPAddress, strings.Join(ips, ", ")),
		AffectedUser: e.Email,
		IPAddress:    e.IPAddress,
		Severity:     models.RiskMedium,
	}, nil
}

func (s *RiskService) checkRapidAttempts(ctx context.Context, e *models.AuditEvent) (*models.SecurityAlert, error) {
	since := e.CreatedAt.Add(-s.cfg.RapidAttemptWindow)
	kinds := []string{models.EventLoginAttempt, models.EventLoginFailed}
	count, err := s.audit.CountSince(ctx, e.Email, kinds, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count login attempts: %w", err)
	}
	if count < s.cfg.RapidAttemptThreshold {
		return nil, nil
	}

	return &models.SecurityAlert{
		AlertType: models.AlertRapidLoginAttempts,
		Description: fmt.Sprintf("%d login events for %s in the last %s",
			count, e.Email, s.cfg.RapidAttemptWindow),
		AffectedUser: e.Email,
		IPAddress:    e.IPAddress,
		Severity:     models.RiskHigh,
	}, nil
}

// raise persists the alert and fans it out to administrators. Fan-out
// failures are logged only.
func (s *RiskService) raise(ctx context.Context, a *models.SecurityAlert) (*models.SecurityAlert, bool) {
	created, err := s.alerts.Create(ctx, a)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to persist security alert",
			slog.String("alert_type", a.AlertType),
			slog.Any("error", err))
		return nil, false
	}

	s.logger.WarnContext(ctx, "security alert raised",
		slog.String("alert_type", created.AlertType),
		slog.String("severity", created.Severity),
		slog.String("affected_user", pkglogger.SanitizedEmail(created.AffectedUser)),
		slog.String("ip_address", created.IPAddress))

	if s.notifier == nil || s.admins == nil {
		return created, true
	}

	admins, err := s.admins.ListByRole(ctx, models.RoleAdmin)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to list admins for alert fan-out", slog.Any("error", err))
		return created, true
	}

	subject := alertTitle(created.AlertType)
	if res := s.notifier.SendAlert(ctx, activeEmails(admins), subject, created.Description); !res.Delivered {
		s.logger.DebugContext(ctx, "security alert not emailed", slog.String("reason", res.Reason))
	}

	for _, admin := range admins {
		if !admin.IsActive() {
			continue
		}
		// email already went out above
		if _, err := s.notifier.Notify(ctx, admin.ID, "", subject, created.Description,
			models.NotificationSecurity, notificationSeverity(created.Severity)); err != nil {
			s.logger.WarnContext(ctx, "failed to notify admin of alert",
				slog.String("admin_id", admin.ID),
				slog.Any("error", err))
		}
	}

	return created, true
}

func alertTitle(kind string) string {
	switch kind {
	case models.AlertMultipleFailedLogins:
		return "Multiple failed login attempts"
	case models.AlertNewIPLogin:
		return "Login from new IP address"
	case models.AlertRapidLoginAttempts:
		return "Rapid login attempts"
	default:
		return "Security alert"
	}
}

// notificationSeverity maps an alert severity onto the notification scale.
func notificationSeverity(risk string) string {
	switch risk {
	case models.RiskCritical:
		return models.SeverityCritical
	case models.RiskHigh:
		return models.SeverityError
	case models.RiskMedium:
		return models.SeverityWarning
	default:
		return models.SeverityInfo
	}
}
