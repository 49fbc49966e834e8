package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"authcore/backend/internal/tokenchain/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a refresh-token repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const tokenColumns = `id, tenant_id, user_id, staff_id, family_id, parent_id, secret_hash,
	device_fingerprint, issued_at, expires_at, is_revoked, revoked_at, revoke_reason,
	suspicious_reuse_at, created_at`

// Create persists the token. The token must have ID, TenantID, and FamilyID set.
func (r *PostgresRepository) Create(ctx context.Context, t *domain.RefreshToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (`+tokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		t.ID, t.TenantID, t.UserID, nullString(t.StaffID), t.FamilyID, t.ParentID,
		t.SecretHash, t.DeviceFingerprint, t.IssuedAt, t.ExpiresAt, t.IsRevoked,
		t.RevokedAt, nullString(string(t.RevokeReason)), t.SuspiciousReuseAt, t.CreatedAt,
	)
	return err
}

// GetByID returns the token for id within the tenant, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.RefreshToken, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+tokenColumns+`
		FROM refresh_tokens
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	)
	t, err := scanToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// Rotate revokes the parent and inserts the child in a single transaction.
// The conditional update on is_revoked is the guard against two children being
// minted from one parent: exactly one concurrent caller sees 1 row affected.
func (r *PostgresRepository) Rotate(ctx context.Context, tenantID, parentID string, child *domain.RefreshToken, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET is_revoked = TRUE, revoked_at = $1, revoke_reason = $2
		WHERE tenant_id = $3 AND id = $4 AND is_revoked = FALSE`,
		at, string(domain.RevokeReasonRotated), tenantID, parentID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRotationConflict
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO refresh_tokens (`+tokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		child.ID, child.TenantID, child.UserID, nullString(child.StaffID), child.FamilyID,
		child.ParentID, child.SecretHash, child.DeviceFingerprint, child.IssuedAt,
		child.ExpiresAt, child.IsRevoked, child.RevokedAt, nullString(string(child.RevokeReason)),
		child.SuspiciousReuseAt, child.CreatedAt,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Revoke marks a single token revoked with the given reason if still active.
func (r *PostgresRepository) Revoke(ctx context.Context, tenantID, id string, reason domain.RevokeReason, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET is_revoked = TRUE, revoked_at = $1, revoke_reason = $2
		WHERE tenant_id = $3 AND id = $4 AND is_revoked = FALSE`,
		at, string(reason), tenantID, id,
	)
	return err
}

// MarkSuspiciousReuse stamps suspicious_reuse_at once; later calls leave the
// original timestamp in place.
func (r *PostgresRepository) MarkSuspiciousReuse(ctx context.Context, tenantID, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET suspicious_reuse_at = COALESCE(suspicious_reuse_at, $1)
		WHERE tenant_id = $2 AND id = $3`,
		at, tenantID, id,
	)
	return err
}

// RevokeFamily revokes every non-revoked token in the family with the given reason.
func (r *PostgresRepository) RevokeFamily(ctx context.Context, tenantID, familyID string, reason domain.RevokeReason, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET is_revoked = TRUE, revoked_at = $1, revoke_reason = $2
		WHERE tenant_id = $3 AND family_id = $4 AND is_revoked = FALSE`,
		at, string(reason), tenantID, familyID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListExpiredActive returns still-active tokens whose expiry has passed, oldest first.
func (r *PostgresRepository) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]*domain.RefreshToken, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+tokenColumns+`
		FROM refresh_tokens
		WHERE is_revoked = FALSE AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.RefreshToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteRevokedBefore hard-deletes tokens revoked before cutoff, keeping
// reuse-detected evidence for the longer compliance window.
func (r *PostgresRepository) DeleteRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM refresh_tokens
		WHERE is_revoked = TRUE AND revoked_at < $1 AND revoke_reason <> $2`,
		cutoff, string(domain.RevokeReasonReuseDetected),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteReuseEvidenceBefore hard-deletes reuse-detected tokens revoked before cutoff.
func (r *PostgresRepository) DeleteReuseEvidenceBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM refresh_tokens
		WHERE is_revoked = TRUE AND revoked_at < $1 AND revoke_reason = $2`,
		cutoff, string(domain.RevokeReasonReuseDetected),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*domain.RefreshToken, error) {
	var t domain.RefreshToken
	var staffID, reason sql.NullString
	var parentID sql.NullString
	var revokedAt, suspiciousAt sql.NullTime
	err := row.Scan(
		&t.ID, &t.TenantID, &t.UserID, &staffID, &t.FamilyID, &parentID, &t.SecretHash,
		&t.DeviceFingerprint, &t.IssuedAt, &t.ExpiresAt, &t.IsRevoked, &revokedAt,
		&reason, &suspiciousAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if staffID.Valid {
		t.StaffID = staffID.String
	}
	if parentID.Valid {
		p := parentID.String
		t.ParentID = &p
	}
	if revokedAt.Valid {
		at := revokedAt.Time
		t.RevokedAt = &at
	}
	if reason.Valid {
		t.RevokeReason = domain.RevokeReason(reason.String)
	}
	if suspiciousAt.Valid {
		at := suspiciousAt.Time
		t.SuspiciousReuseAt = &at
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
