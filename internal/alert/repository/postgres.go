package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"authcore/backend/internal/alert/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an alert repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const alertColumns = `id, tenant_id, user_id, kind, severity, message, metadata,
	acknowledged_at, acknowledged_by, created_at`

// Create persists the alert. The alert must have ID and TenantID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.Alert) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO security_alerts (`+alertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.TenantID, a.UserID, string(a.Kind), string(a.Severity), a.Message,
		a.Metadata, a.AcknowledgedAt, nullString(a.AcknowledgedBy), a.CreatedAt,
	)
	return err
}

// GetByID returns the alert for id within the tenant, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Alert, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+alertColumns+`
		FROM security_alerts
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	)
	a, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

// ListByTenant returns alerts for the tenant, newest first, paginated by limit and offset.
func (r *PostgresRepository) ListByTenant(ctx context.Context, tenantID string, limit, offset int32) ([]*domain.Alert, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+alertColumns+`
		FROM security_alerts
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		tenantID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Acknowledge records a human acknowledgement on the alert.
func (r *PostgresRepository) Acknowledge(ctx context.Context, tenantID, id, by string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE security_alerts
		SET acknowledged_at = $1, acknowledged_by = $2
		WHERE tenant_id = $3 AND id = $4 AND acknowledged_at IS NULL`,
		at, by, tenantID, id,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*domain.Alert, error) {
	var a domain.Alert
	var kind, severity string
	var ackAt sql.NullTime
	var ackBy sql.NullString
	err := row.Scan(
		&a.ID, &a.TenantID, &a.UserID, &kind, &severity, &a.Message, &a.Metadata,
		&ackAt, &ackBy, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Kind = domain.Kind(kind)
	a.Severity = domain.Severity(severity)
	if ackAt.Valid {
		at := ackAt.Time
		a.AcknowledgedAt = &at
	}
	if ackBy.Valid {
		a.AcknowledgedBy = ackBy.String
	}
	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
