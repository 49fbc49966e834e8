package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"authcore/backend/internal/session/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `id, tenant_id, user_id, staff_id, session_version, device_fingerprint,
	ip_address, country, city, last_seen_at, is_current, revoked_at, revoked_by,
	revoke_reason, created_at, expires_at`

// Create persists the session. The session must have ID and TenantID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		s.ID, s.TenantID, s.UserID, nullString(s.StaffID), s.SessionVersion,
		s.DeviceFingerprint, s.IPAddress, s.Country, s.City, s.LastSeenAt, s.IsCurrent,
		s.RevokedAt, nullString(s.RevokedBy), nullString(string(s.RevokeReason)),
		s.CreatedAt, s.ExpiresAt,
	)
	return err
}

// GetByID returns the session for id within the tenant, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM user_sessions
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// UpdateLastSeen sets the session's last-seen timestamp. Last-write-wins; only a
// liveness timestamp rides on it.
func (r *PostgresRepository) UpdateLastSeen(ctx context.Context, tenantID, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE user_sessions SET last_seen_at = $1
		WHERE tenant_id = $2 AND id = $3`,
		at, tenantID, id,
	)
	return err
}

// Revoke marks the session revoked if still active.
func (r *PostgresRepository) Revoke(ctx context.Context, tenantID, id, by string, reason domain.RevokeReason, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE user_sessions
		SET revoked_at = $1, revoked_by = $2, revoke_reason = $3, is_current = FALSE
		WHERE tenant_id = $4 AND id = $5 AND revoked_at IS NULL`,
		at, by, string(reason), tenantID, id,
	)
	return err
}

// RevokeAllByUser revokes every active session of the user except exceptID (when non-empty).
func (r *PostgresRepository) RevokeAllByUser(ctx context.Context, tenantID, userID, by string, reason domain.RevokeReason, at time.Time, exceptID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE user_sessions
		SET revoked_at = $1, revoked_by = $2, revoke_reason = $3, is_current = FALSE
		WHERE tenant_id = $4 AND user_id = $5 AND revoked_at IS NULL AND ($6 = '' OR id <> $6)`,
		at, by, string(reason), tenantID, userID, exceptID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LookbackByUser returns the indexed active-session count and the most recent
// limit sessions (any revocation state) for the anomaly scorer.
func (r *PostgresRepository) LookbackByUser(ctx context.Context, tenantID, userID string, limit int) (*Lookback, error) {
	var lb Lookback
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM user_sessions
		WHERE tenant_id = $1 AND user_id = $2 AND revoked_at IS NULL`,
		tenantID, userID,
	).Scan(&lb.ActiveCount)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM user_sessions
		WHERE tenant_id = $1 AND user_id = $2
		ORDER BY created_at DESC
		LIMIT $3`,
		tenantID, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		lb.Recent = append(lb.Recent, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &lb, nil
}

// GetVersion returns the principal's live session version; 1 when no row exists yet.
func (r *PostgresRepository) GetVersion(ctx context.Context, tenantID, userID string) (int64, error) {
	var v int64
	err := r.db.QueryRowContext(ctx, `
		SELECT version FROM principal_versions
		WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return v, nil
}

// BumpVersion atomically increments the principal's version. The first bump
// inserts the row at 2 so sessions minted at the implicit version 1 go stale.
func (r *PostgresRepository) BumpVersion(ctx context.Context, tenantID, userID string, at time.Time) (int64, error) {
	var v int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO principal_versions (tenant_id, user_id, version, updated_at)
		VALUES ($1, $2, 2, $3)
		ON CONFLICT (tenant_id, user_id)
		DO UPDATE SET version = principal_versions.version + 1, updated_at = $3
		RETURNING version`,
		tenantID, userID, at,
	).Scan(&v)
	if err != nil {
		return 0, err
	}
	return v, nil
}

// UpsertKnownDevice records first sight of a (user, deviceHash) pair, or updates
// last_ip/last_seen_at on later sights.
func (r *PostgresRepository) UpsertKnownDevice(ctx context.Context, tenantID, userID, deviceHash, ip string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO known_devices (id, tenant_id, user_id, device_hash, first_seen_at, last_seen_at, last_ip)
		VALUES ($1, $2, $3, $4, $5, $5, $6)
		ON CONFLICT (tenant_id, user_id, device_hash)
		DO UPDATE SET last_seen_at = $5, last_ip = $6`,
		uuid.New().String(), tenantID, userID, deviceHash, at, ip,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var s domain.Session
	var staffID, revokedBy, reason sql.NullString
	var lastSeen, revokedAt sql.NullTime
	err := row.Scan(
		&s.ID, &s.TenantID, &s.UserID, &staffID, &s.SessionVersion, &s.DeviceFingerprint,
		&s.IPAddress, &s.Country, &s.City, &lastSeen, &s.IsCurrent, &revokedAt,
		&revokedBy, &reason, &s.CreatedAt, &s.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	if staffID.Valid {
		s.StaffID = staffID.String
	}
	if lastSeen.Valid {
		at := lastSeen.Time
		s.LastSeenAt = &at
	}
	if revokedAt.Valid {
		at := revokedAt.Time
		s.RevokedAt = &at
	}
	if revokedBy.Valid {
		s.RevokedBy = revokedBy.String
	}
	if reason.Valid {
		s.RevokeReason = domain.RevokeReason(reason.String)
	}
	return &s, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
