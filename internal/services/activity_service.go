package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/otpgate/internal/models"
	pkglogger "github.com/BradenHooton/otpgate/pkg/logger"
)

// ActivityService records user and administrator actions. Admin actions
// above info severity are also emailed to the administrators.
type ActivityService struct {
	repo        ActivityLogRepository
	users       UserRepository
	notifier    Notifier
	auditLogger *pkglogger.AuditLogger
	logger      *slog.Logger
}

func NewActivityService(repo ActivityLogRepository, users UserRepository, notifier Notifier, logger *slog.Logger) *ActivityService {
	return &ActivityService{
		repo:        repo,
		users:       users,
		notifier:    notifier,
		auditLogger: pkglogger.NewAuditLogger(logger),
		logger:      logger,
	}
}

// Record stores a; failures are logged and swallowed.
func (s *ActivityService) Record(ctx context.Context, a *models.ActivityLog) {
	if a.Severity == "" {
		a.Severity = models.SeverityInfo
	}

	target := ""
	if a.TargetUser != nil {
		target = *a.TargetUser
	}
	s.auditLogger.LogActivity(ctx, a.ActivityType, a.Email, target, a.Severity, map[string]string{
		"description": a.Description,
		"ip_address":  a.IPAddress,
	})

	if _, err := s.repo.Create(ctx, a); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist activity log",
			slog.String("activity_type", a.ActivityType),
			slog.Any("error", err))
	}

	if a.IsAdminActivity() && a.Severity != models.SeverityInfo {
		s.alertAdmins(ctx, a)
	}
}

func (s *ActivityService) alertAdmins(ctx context.Context, a *models.ActivityLog) {
	if s.notifier == nil || s.users == nil {
		return
	}

	admins, err := s.users.ListByRole(ctx, models.RoleAdmin)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to list admins for activity alert", slog.Any("error", err))
		return
	}

	subject := fmt.Sprintf("Admin activity: %s", a.ActivityType)
	body := fmt.Sprintf("%s (by %s from %s)", a.Description, a.Email, a.IPAddress)
	if res := s.notifier.SendAlert(ctx, activeEmails(admins), subject, body); !res.Delivered {
		s.logger.DebugContext(ctx, "admin activity alert not emailed", slog.String("reason", res.Reason))
	}
}

// activity builds an activity entry for actor.
func activity(kind string, actor *models.User, description string, target string, severity string, meta RequestMeta) *models.ActivityLog {
	a := &models.ActivityLog{
		ActivityType: kind,
		Description:  description,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		Severity:     severity,
	}
	if actor != nil {
		id := actor.ID
		a.UserID = &id
		a.Email = actor.Email
	}
	if target != "" {
		a.TargetUser = &target
	}
	return a
}

func activeEmails(users []*models.User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		if u.IsActive() && u.Email != "" {
			out = append(out, u.Email)
		}
	}
	return out
}
