package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/otpgate/internal/models"
	"github.com/google/uuid"
)

const (
	defaultAdminListLimit = 100
	maxAdminListLimit     = 500
	distributionWindow    = 1000
)

// DashboardStats contains aggregate admin metrics.
type DashboardStats struct {
	Users               models.UserStats         `json:"users"`
	LoginsToday         int                      `json:"logins_today"`
	FailedLoginsToday   int                      `json:"failed_logins_today"`
	OTPVerifiedToday    int                      `json:"otp_verified_today"`
	EventsToday         int                      `json:"events_today"`
	ActiveAlerts        int                      `json:"active_alerts"`
	CriticalAlerts      int                      `json:"critical_alerts"`
	UnreadNotifications int                      `json:"unread_notifications"`
	Distribution        models.EventDistribution `json:"distribution"`
	RecentAlerts        []*models.SecurityAlert  `json:"recent_alerts"`
	RecentActivity      []*models.ActivityLog    `json:"recent_activity"`
}

// AdminService backs the admin endpoints. Every call is recorded as admin
// activity.
type AdminService struct {
	users         UserRepository
	audit         AuditLogRepository
	alerts        SecurityAlertRepository
	activityRepo  ActivityLogRepository
	notifications NotificationCounter
	activity      *ActivityService
	notifier      Notifier
	logger        *slog.Logger
	now           func() time.Time
}

func NewAdminService(
	users UserRepository,
	audit AuditLogRepository,
	alerts SecurityAlertRepository,
	activityRepo ActivityLogRepository,
	notifications NotificationCounter,
	activity *ActivityService,
	notifier Notifier,
	logger *slog.Logger,
) *AdminService {
	return &AdminService{
		users:         users,
		audit:         audit,
		alerts:        alerts,
		activityRepo:  activityRepo,
		notifications: notifications,
		activity:      activity,
		notifier:      notifier,
		logger:        logger,
		now:           time.Now,
	}
}

// Dashboard returns aggregate user, event and alert counts.
func (s *AdminService) Dashboard(ctx context.Context, actor *models.User, meta RequestMeta) (*DashboardStats, error) {
	s.activity.Record(ctx, activity(models.ActivityAdminDashboard, actor, "viewed admin dashboard", "", models.SeverityInfo, meta))

	since := s.now().Add(-24 * time.Hour)
	stats := &DashboardStats{}
	var err error

	if stats.Users, err = s.users.CountStats(ctx); err != nil {
		return nil, s.internal(ctx, "dashboard: failed to count users", err)
	}
	if stats.LoginsToday, err = s.audit.CountByTypeSince(ctx, models.EventLoginSuccess, since); err != nil {
		return nil, s.internal(ctx, "dashboard: failed to count logins", err)
	}
	if stats.FailedLoginsToday, err = s.audit.CountByTypeSince(ctx, models.EventLoginFailed, since); err != nil {
		return nil, s.internal(ctx, "dashboard: failed to count failed logins", err)
	}
	if stats.OTPVerifiedToday, err = s.audit.CountByTypeSince(ctx, models.EventOTPVerified, since); err != nil {
		return nil, s.internal(ctx, "dashboard: failed to count otp verifications", err)
	}
	if stats.EventsToday, err = s.audit.CountAllSince(ctx, since); err != nil {
		return nil, s.internal(ctx, "dashboard: failed to count events", err)
	}
	if stats.ActiveAlerts, stats.CriticalAlerts, err = s.alerts.CountActive(ctx); err != nil {
		return nil, s.internal(ctx, "dashboard: failed to count alerts", err)
	}
	if stats.Distribution, err = s.audit.Distribution(ctx, distributionWindow); err != nil {
		return nil, s.internal(ctx, "dashboard: failed to load event distribution", err)
	}
	if stats.RecentAlerts, err = s.alerts.ListByStatus(ctx, models.AlertStatusActive, 5); err != nil {
		return nil, s.internal(ctx, "dashboard: failed to list alerts", err)
	}
	if stats.RecentActivity, err = s.activityRepo.ListRecent(ctx, 10); err != nil {
		return nil, s.internal(ctx, "dashboard: failed to list activity", err)
	}
	if s.notifications != nil {
		if stats.UnreadNotifications, err = s.notifications.CountUnread(ctx); err != nil {
			return nil, s.internal(ctx, "dashboard: failed to count notifications", err)
		}
	}

	return stats, nil
}

// AuditLogs lists recent authentication events.
func (s *AdminService) AuditLogs(ctx context.Context, actor *models.User, f models.AuditFilter, meta RequestMeta) ([]*models.AuditEvent, error) {
	s.activity.Record(ctx, activity(models.ActivityAdminAuditLogs, actor, "viewed audit logs", "", models.SeverityInfo, meta))

	f.Limit = clampLimit(f.Limit)
	if f.Offset < 0 {
		f.Offset = 0
	}

	events, err := s.audit.ListRecent(ctx, f)
	if err != nil {
		return nil, s.internal(ctx, "failed to list audit events", err)
	}
	return events, nil
}

// Alerts lists security alerts with status (all when empty).
func (s *AdminService) Alerts(ctx context.Context, actor *models.User, status string, limit int, meta RequestMeta) ([]*models.SecurityAlert, error) {
	switch status {
	case "", models.AlertStatusActive, models.AlertStatusResolved, models.AlertStatusIgnored:
	default:
		return nil, models.ErrBadRequest
	}

	s.activity.Record(ctx, activity(models.ActivityAdminAlerts, actor, "viewed security alerts", "", models.SeverityInfo, meta))

	alerts, err := s.alerts.ListByStatus(ctx, status, clampLimit(limit))
	if err != nil {
		return nil, s.internal(ctx, "failed to list alerts", err)
	}
	return alerts, nil
}

// UpdateAlertStatus resolves or ignores an active alert.
func (s *AdminService) UpdateAlertStatus(ctx context.Context, actor *models.User, id uuid.UUID, status string, meta RequestMeta) (*models.SecurityAlert, error) {
	if status != models.AlertStatusResolved && status != models.AlertStatusIgnored {
		return nil, models.ErrBadRequest
	}

	alert, err := s.alerts.UpdateStatus(ctx, id, status, actor.Email, s.now())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, s.internal(ctx, "failed to update alert status", err)
	}

	s.activity.Record(ctx, activity(models.ActivityAdminAlertUpdate, actor,
		fmt.Sprintf("marked alert %s as %s", id, status), alert.AffectedUser, models.SeverityInfo, meta))
	return alert, nil
}

// SetUserStatus activates or disables an account. Admins cannot disable
// themselves.
func (s *AdminService) SetUserStatus(ctx context.Context, actor *models.User, userID, status string, meta RequestMeta) (*models.User, error) {
	if !models.ValidUserStatus(status) {
		return nil, models.ErrBadRequest
	}
	if actor.ID == userID && status != models.UserStatusActive {
		return nil, models.ErrForbidden
	}

	user, err := s.users.SetStatus(ctx, userID, status)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, s.internal(ctx, "failed to set user status", err)
	}

	s.activity.Record(ctx, activity(models.ActivityAdminUserStatus, actor,
		fmt.Sprintf("set status of %s to %s", user.Email, status), user.ID, models.SeverityWarning, meta))

	if s.notifier != nil {
		if _, err := s.notifier.Notify(ctx, user.ID, "", "Account status changed",
			fmt.Sprintf("An administrator set your account to %s.", status),
			models.NotificationAdmin, models.SeverityWarning); err != nil {
			s.logger.WarnContext(ctx, "failed to notify user of status change", slog.Any("error", err))
		}
	}

	return user, nil
}

func (s *AdminService) internal(ctx context.Context, msg string, err error) error {
	s.logger.ErrorContext(ctx, msg, slog.Any("error", err))
	return models.ErrInternalServer
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultAdminListLimit
	}
	if limit > maxAdminListLimit {
		return maxAdminListLimit
	}
	return limit
}
