package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/otpgate/internal/database"
	"github.com/BradenHooton/otpgate/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ActivityLogRepository struct {
	pool *pgxpool.Pool
}

func NewActivityLogRepository(db *database.DB) *ActivityLogRepository {
	return &ActivityLogRepository{pool: db.Pool}
}

const activityColumns = `id, user_id, email, activity_type, description, target_user,
	ip_address, user_agent, severity, created_at`

func scanActivityRow(row rowScanner) (*models.ActivityLog, error) {
	var a models.ActivityLog

	err := row.Scan(
		&a.ID, &a.UserID, &a.Email, &a.ActivityType, &a.Description, &a.TargetUser,
		&a.IPAddress, &a.UserAgent, &a.Severity, &a.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &a, nil
}

func (r *ActivityLogRepository) Create(ctx context.Context, a *models.ActivityLog) (*models.ActivityLog, error) {
	query := `
		INSERT INTO activity_logs (user_id, email, activity_type, description, target_user,
		                           ip_address, user_agent, severity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + activityColumns

	created, err := scanActivityRow(r.pool.QueryRow(ctx, query,
		a.UserID, a.Email, a.ActivityType, a.Description, a.TargetUser,
		a.IPAddress, a.UserAgent, a.Severity, a.CreatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create activity log: %w", err)
	}
	return created, nil
}

func (r *ActivityLogRepository) ListRecent(ctx context.Context, limit int) ([]*models.ActivityLog, error) {
	query := `SELECT ` + activityColumns + ` FROM activity_logs ORDER BY created_at DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity logs: %w", err)
	}
	defer rows.Close()

	out := make([]*models.ActivityLog, 0)
	for rows.Next() {
		a, err := scanActivityRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity log: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

