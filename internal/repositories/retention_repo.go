package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/otpgate/internal/database"
	"github.com/jackc/pgx/v5"
)

// RetentionCutoffs are the absolute timestamps before which rows are purged.
type RetentionCutoffs struct {
	Notifications  time.Time
	Activity       time.Time
	ResolvedAlerts time.Time
}

// PurgeResult counts rows removed by one retention pass.
type PurgeResult struct {
	Notifications  int64
	Activity       int64
	ResolvedAlerts int64
}

// RetentionRepository removes aged rows across tables in one transaction.
type RetentionRepository struct {
	db *database.DB
}

func NewRetentionRepository(db *database.DB) *RetentionRepository {
	return &RetentionRepository{db: db}
}

func (r *RetentionRepository) Purge(ctx context.Context, c RetentionCutoffs) (PurgeResult, error) {
	var res PurgeResult

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM notifications WHERE created_at < $1`, c.Notifications)
		if err != nil {
			return fmt.Errorf("failed to purge notifications: %w", err)
		}
		res.Notifications = tag.RowsAffected()

		tag, err = tx.Exec(ctx, `DELETE FROM activity_logs WHERE created_at < $1`, c.Activity)
		if err != nil {
			return fmt.Errorf("failed to purge activity logs: %w", err)
		}
		res.Activity = tag.RowsAffected()

		tag, err = tx.Exec(ctx, `
			DELETE FROM security_alerts
			WHERE status = 'resolved' AND resolved_at < $1
		`, c.ResolvedAlerts)
		if err != nil {
			return fmt.Errorf("failed to purge resolved alerts: %w", err)
		}
		res.ResolvedAlerts = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return PurgeResult{}, err
	}

	return res, nil
}
