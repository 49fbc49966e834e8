package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"authcore/backend/internal/stepup/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a step-up repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const challengeColumns = `id, tenant_id, user_id, purpose, request_ip, verified_at, expires_at, created_at`

// CreateChallenge persists the challenge. The challenge must have ID and TenantID set.
func (r *PostgresRepository) CreateChallenge(ctx context.Context, c *domain.Challenge) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO step_up_challenges (`+challengeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.TenantID, c.UserID, string(c.Purpose), c.RequestIP,
		c.VerifiedAt, c.ExpiresAt, c.CreatedAt,
	)
	return err
}

// LatestPending returns the newest unverified challenge for the purpose, or nil.
func (r *PostgresRepository) LatestPending(ctx context.Context, tenantID, userID string, purpose domain.Purpose) (*domain.Challenge, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+challengeColumns+`
		FROM step_up_challenges
		WHERE tenant_id = $1 AND user_id = $2 AND purpose = $3 AND verified_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1`,
		tenantID, userID, string(purpose),
	)
	return scanChallenge(row)
}

// LatestVerified returns the newest verified challenge for the purpose, or nil.
func (r *PostgresRepository) LatestVerified(ctx context.Context, tenantID, userID string, purpose domain.Purpose) (*domain.Challenge, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+challengeColumns+`
		FROM step_up_challenges
		WHERE tenant_id = $1 AND user_id = $2 AND purpose = $3 AND verified_at IS NOT NULL
		ORDER BY verified_at DESC
		LIMIT 1`,
		tenantID, userID, string(purpose),
	)
	return scanChallenge(row)
}

// MarkVerified stamps the challenge verified if it is not already.
func (r *PostgresRepository) MarkVerified(ctx context.Context, tenantID, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE step_up_challenges SET verified_at = $1
		WHERE tenant_id = $2 AND id = $3 AND verified_at IS NULL`,
		at, tenantID, id,
	)
	return err
}

// DeleteExpiredChallenges removes unverified challenges expired before cutoff.
func (r *PostgresRepository) DeleteExpiredChallenges(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM step_up_challenges
		WHERE verified_at IS NULL AND expires_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpsertSecret stores a fresh unconfirmed enrollment. It overwrites an existing
// unconfirmed row but leaves a confirmed enrollment untouched.
func (r *PostgresRepository) UpsertSecret(ctx context.Context, s *domain.Secret) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO step_up_secrets (tenant_id, user_id, secret, confirmed_at, created_at)
		VALUES ($1, $2, $3, NULL, $4)
		ON CONFLICT (tenant_id, user_id)
		DO UPDATE SET secret = $3, confirmed_at = NULL, created_at = $4
		WHERE step_up_secrets.confirmed_at IS NULL`,
		s.TenantID, s.UserID, s.Secret, s.CreatedAt,
	)
	return err
}

// GetSecret returns the principal's enrollment, or nil when not enrolled.
func (r *PostgresRepository) GetSecret(ctx context.Context, tenantID, userID string) (*domain.Secret, error) {
	var s domain.Secret
	var confirmed sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT tenant_id, user_id, secret, confirmed_at, created_at
		FROM step_up_secrets
		WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID,
	).Scan(&s.TenantID, &s.UserID, &s.Secret, &confirmed, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if confirmed.Valid {
		at := confirmed.Time
		s.ConfirmedAt = &at
	}
	return &s, nil
}

// ConfirmSecret marks the enrollment confirmed.
func (r *PostgresRepository) ConfirmSecret(ctx context.Context, tenantID, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE step_up_secrets SET confirmed_at = $1
		WHERE tenant_id = $2 AND user_id = $3`,
		at, tenantID, userID,
	)
	return err
}

// DeleteSecret removes the enrollment.
func (r *PostgresRepository) DeleteSecret(ctx context.Context, tenantID, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM step_up_secrets
		WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID,
	)
	return err
}

func scanChallenge(row *sql.Row) (*domain.Challenge, error) {
	var c domain.Challenge
	var purpose string
	var verified sql.NullTime
	err := row.Scan(&c.ID, &c.TenantID, &c.UserID, &purpose, &c.RequestIP,
		&verified, &c.ExpiresAt, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Purpose = domain.Purpose(purpose)
	if verified.Valid {
		at := verified.Time
		c.VerifiedAt = &at
	}
	return &c, nil
}
