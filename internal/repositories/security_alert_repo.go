package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/otpgate/internal/database"
	"github.com/BradenHooton/otpgate/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SecurityAlertRepository struct {
	pool *pgxpool.Pool
}

func NewSecurityAlertRepository(db *database.DB) *SecurityAlertRepository {
	return &SecurityAlertRepository{pool: db.Pool}
}

const alertColumns = `id, alert_type, description, affected_user, ip_address, severity,
	status, created_at, resolved_at, resolved_by`

func scanAlertRow(row rowScanner) (*models.SecurityAlert, error) {
	var a models.SecurityAlert

	err := row.Scan(
		&a.ID, &a.AlertType, &a.Description, &a.AffectedUser, &a.IPAddress, &a.Severity,
		&a.Status, &a.CreatedAt, &a.ResolvedAt, &a.ResolvedBy,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &a, nil
}

func scanAlertRows(rows pgx.Rows) ([]*models.SecurityAlert, error) {
	defer rows.Close()

	alerts := make([]*models.SecurityAlert, 0)
	for rows.Next() {
		a, err := scanAlertRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security alert: %w", err)
		}
		alerts = append(alerts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert rows: %w", err)
	}
	return alerts, nil
}

func (r *SecurityAlertRepository) Create(ctx context.Context, a *models.SecurityAlert) (*models.SecurityAlert, error) {
	if a.Status == "" {
		a.Status = models.AlertStatusActive
	}

	query := `
		INSERT INTO security_alerts (alert_type, description, affected_user, ip_address, severity, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + alertColumns

	created, err := scanAlertRow(r.pool.QueryRow(ctx, query,
		a.AlertType, a.Description, a.AffectedUser, a.IPAddress, a.Severity, a.Status, a.CreatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create security alert: %w", err)
	}
	return created, nil
}

// ListByStatus returns newest-first alerts; an empty status lists all.
func (r *SecurityAlertRepository) ListByStatus(ctx context.Context, status string, limit int) ([]*models.SecurityAlert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM security_alerts
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query security alerts: %w", err)
	}
	return scanAlertRows(rows)
}

// UpdateStatus moves an active alert to resolved or ignored.
func (r *SecurityAlertRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status, resolvedBy string, at time.Time) (*models.SecurityAlert, error) {
	query := `
		UPDATE security_alerts
		SET status = $2, resolved_by = $3, resolved_at = $4
		WHERE id = $1 AND status = 'active'
		RETURNING ` + alertColumns

	return scanAlertRow(r.pool.QueryRow(ctx, query, id, status, resolvedBy, at))
}

// CountActive returns the number of active alerts and how many of them are critical.
func (r *SecurityAlertRepository) CountActive(ctx context.Context) (active int, critical int, err error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE severity = 'critical')
		FROM security_alerts
		WHERE status = 'active'
	`

	if err = r.pool.QueryRow(ctx, query).Scan(&active, &critical); err != nil {
		return 0, 0, fmt.Errorf("failed to count active alerts: %w", err)
	}
	return active, critical, nil
}
