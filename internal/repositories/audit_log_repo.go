package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/otpgate/internal/database"
	"github.com/BradenHooton/otpgate/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

// AuditLogRepository persists the append-only authentication log
type AuditLogRepository struct {
	pool *pgxpool.Pool
}

func NewAuditLogRepository(db *database.DB) *AuditLogRepository {
	return &AuditLogRepository{pool: db.Pool}
}

const auditColumns = `id, user_id, email, event_type, details, ip_address, user_agent,
	delivery_method, risk_level, created_at`

func scanAuditEventRow(row rowScanner) (*models.AuditEvent, error) {
	var e models.AuditEvent

	err := row.Scan(
		&e.ID, &e.UserID, &e.Email, &e.EventType, &e.Details,
		&e.IPAddress, &e.UserAgent, &e.DeliveryMethod, &e.RiskLevel, &e.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &e, nil
}

func scanAuditEventRows(rows pgx.Rows) ([]*models.AuditEvent, error) {
	defer rows.Close()

	events := make([]*models.AuditEvent, 0)

	for rows.Next() {
		e, err := scanAuditEventRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit rows: %w", err)
	}

	return events, nil
}

// Append stores an event. CreatedAt is taken from the event so that callers
// control the clock.
func (r *AuditLogRepository) Append(ctx context.Context, e *models.AuditEvent) (*models.AuditEvent, error) {
	query := `
		INSERT INTO auth_logs (user_id, email, event_type, details, ip_address, user_agent,
		                       delivery_method, risk_level, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + auditColumns

	created, err := scanAuditEventRow(r.pool.QueryRow(ctx, query,
		e.UserID, e.Email, e.EventType, e.Details, e.IPAddress, e.UserAgent,
		e.DeliveryMethod, e.RiskLevel, e.CreatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to append audit event: %w", err)
	}

	return created, nil
}

// CountSince counts events for email of any of kinds at or after since.
func (r *AuditLogRepository) CountSince(ctx context.Context, email string, kinds []string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM auth_logs
		WHERE email = $1 AND event_type = ANY($2) AND created_at >= $3
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, email, pq.Array(kinds), since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	return count, nil
}

// DistinctSuccessIPs lists the IPs of earlier successful logins other than excludingIP.
func (r *AuditLogRepository) DistinctSuccessIPs(ctx context.Context, email, excludingIP string) ([]string, error) {
	query := `
		SELECT DISTINCT ip_address
		FROM auth_logs
		WHERE email = $1 AND event_type = $2 AND ip_address <> $3
	`

	rows, err := r.pool.Query(ctx, query, email, models.EventLoginSuccess, excludingIP)
	if err != nil {
		return nil, fmt.Errorf("failed to query success ips: %w", err)
	}

	ips, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to collect success ips: %w", err)
	}
	return ips, nil
}

// ListRecent returns newest-first events matching the filter.
func (r *AuditLogRepository) ListRecent(ctx context.Context, f models.AuditFilter) ([]*models.AuditEvent, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM auth_logs
		WHERE ($1 = '' OR email = $1)
		  AND (cardinality($2::text[]) = 0 OR event_type = ANY($2))
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	kinds := f.EventTypes
	if kinds == nil {
		kinds = []string{}
	}

	rows, err := r.pool.Query(ctx, query, f.Email, pq.Array(kinds), f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}

	return scanAuditEventRows(rows)
}

// CountByTypeSince counts all events of one kind since a cutoff.
func (r *AuditLogRepository) CountByTypeSince(ctx context.Context, kind string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM auth_logs WHERE event_type = $1 AND created_at >= $2`

	var count int
	if err := r.pool.QueryRow(ctx, query, kind, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	return count, nil
}

// CountAllSince counts every event since a cutoff.
func (r *AuditLogRepository) CountAllSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM auth_logs WHERE created_at >= $1`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	return count, nil
}

// Distribution tallies event types and delivery methods over the newest window events.
func (r *AuditLogRepository) Distribution(ctx context.Context, window int) (models.EventDistribution, error) {
	query := `
		SELECT event_type, delivery_method
		FROM auth_logs
		ORDER BY created_at DESC
		LIMIT $1
	`

	dist := models.EventDistribution{
		EventTypes:      map[string]int{},
		DeliveryMethods: map[string]int{},
	}

	rows, err := r.pool.Query(ctx, query, window)
	if err != nil {
		return dist, fmt.Errorf("failed to query event distribution: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, method string
		if err := rows.Scan(&kind, &method); err != nil {
			return dist, fmt.Errorf("failed to scan event distribution: %w", err)
		}
		dist.EventTypes[kind]++
		if method != "" {
			dist.DeliveryMethods[method]++
		}
	}

	return dist, rows.Err()
}

// TrimToCap deletes the oldest events beyond the newest limit entries.
func (r *AuditLogRepository) TrimToCap(ctx context.Context, limit int) (int64, error) {
	query := `
		DELETE FROM auth_logs
		WHERE id IN (
			SELECT id FROM auth_logs
			ORDER BY created_at DESC
			OFFSET $1
		)
	`

	result, err := r.pool.Exec(ctx, query, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to trim audit log: %w", err)
	}

	return result.RowsAffected(), nil
}
