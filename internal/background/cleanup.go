package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/otpgate/internal/config"
	"github.com/BradenHooton/otpgate/internal/repositories"
)

// AuditTrimmer caps the audit log at its newest entries.
type AuditTrimmer interface {
	TrimToCap(ctx context.Context, limit int) (int64, error)
}

// Purger removes aged notifications, activity and resolved alerts.
type Purger interface {
	Purge(ctx context.Context, c repositories.RetentionCutoffs) (repositories.PurgeResult, error)
}

// CleanupManager periodically enforces data retention.
type CleanupManager struct {
	audit    AuditTrimmer
	purger   Purger
	policy   config.RetentionConfig
	logger   *slog.Logger
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(audit AuditTrimmer, purger Purger, policy config.RetentionConfig, logger *slog.Logger) *CleanupManager {
	return &CleanupManager{
		audit:  audit,
		purger: purger,
		policy: policy,
		logger: logger,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
}

// Start runs a pass immediately and then every CleanupInterval until ctx is
// cancelled or Stop is called.
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.policy.CleanupInterval)
	defer ticker.Stop()

	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce performs one retention pass. Failures are logged; the two steps
// are independent.
func (cm *CleanupManager) RunOnce(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if cm.policy.AuditLogCap > 0 {
		trimmed, err := cm.audit.TrimToCap(cleanupCtx, cm.policy.AuditLogCap)
		if err != nil {
			cm.logger.Error("failed to trim audit log", slog.Any("error", err))
		} else if trimmed > 0 {
			cm.logger.Info("audit log trimmed", slog.Int64("rows_deleted", trimmed), slog.Int("cap", cm.policy.AuditLogCap))
		}
	}

	now := cm.now()
	res, err := cm.purger.Purge(cleanupCtx, repositories.RetentionCutoffs{
		Notifications:  now.Add(-cm.policy.NotificationRetention),
		Activity:       now.Add(-cm.policy.ActivityRetention),
		ResolvedAlerts: now.Add(-cm.policy.ResolvedAlertRetention),
	})
	if err != nil {
		cm.logger.Error("failed to purge expired records", slog.Any("error", err))
		return
	}

	if res.Notifications+res.Activity+res.ResolvedAlerts > 0 {
		cm.logger.Info("retention cleanup completed",
			slog.Int64("notifications", res.Notifications),
			slog.Int64("activity", res.Activity),
			slog.Int64("resolved_alerts", res.ResolvedAlerts),
		)
	}
}

// Stop signals the cleanup manager to stop. Safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
