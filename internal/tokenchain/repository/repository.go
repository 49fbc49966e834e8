// Package repository defines persistence for refresh-token chains.
package repository

import (
	"context"
	"errors"
	"time"

	"authcore/backend/internal/tokenchain/domain"
)

// ErrRotationConflict is returned by Rotate when the parent token was already
// revoked by a concurrent caller. The store treats the losing racer as a reuse
// event rather than silently ignoring it.
var ErrRotationConflict = errors.New("refresh token already rotated")

// Repository defines persistence for refresh tokens.
type Repository interface {
	Create(ctx context.Context, t *domain.RefreshToken) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.RefreshToken, error)
	// Rotate revokes the parent (reason rotated) and inserts child in one
	// transaction. Returns ErrRotationConflict if the parent is no longer active.
	Rotate(ctx context.Context, tenantID, parentID string, child *domain.RefreshToken, at time.Time) error
	Revoke(ctx context.Context, tenantID, id string, reason domain.RevokeReason, at time.Time) error
	// MarkSuspiciousReuse stamps suspicious_reuse_at if not already set.
	MarkSuspiciousReuse(ctx context.Context, tenantID, id string, at time.Time) error
	// RevokeFamily revokes every non-revoked token in the family. Returns the
	// number of tokens revoked.
	RevokeFamily(ctx context.Context, tenantID, familyID string, reason domain.RevokeReason, at time.Time) (int64, error)

	// Retention sweep queries; these run across tenants on the job cadence.
	ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]*domain.RefreshToken, error)
	// DeleteRevokedBefore hard-deletes tokens revoked before cutoff, excluding
	// reuse-detected evidence. Returns the number of rows deleted.
	DeleteRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// DeleteReuseEvidenceBefore hard-deletes reuse-detected tokens revoked before
	// cutoff (the longer compliance window). Returns the number of rows deleted.
	DeleteReuseEvidenceBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
