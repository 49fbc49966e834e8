// Package repository defines persistence for step-up challenges and TOTP secrets.
package repository

import (
	"context"
	"time"

	"authcore/backend/internal/stepup/domain"
)

// Repository defines persistence for step-up verification.
type Repository interface {
	CreateChallenge(ctx context.Context, c *domain.Challenge) error
	// LatestPending returns the newest unverified challenge for the purpose, or
	// nil when none exists. Expiry is the caller's check.
	LatestPending(ctx context.Context, tenantID, userID string, purpose domain.Purpose) (*domain.Challenge, error)
	// LatestVerified returns the newest verified challenge for the purpose, or nil.
	LatestVerified(ctx context.Context, tenantID, userID string, purpose domain.Purpose) (*domain.Challenge, error)
	MarkVerified(ctx context.Context, tenantID, id string, at time.Time) error
	// DeleteExpiredChallenges removes unverified challenges whose expiry is before
	// cutoff and returns how many rows went.
	DeleteExpiredChallenges(ctx context.Context, cutoff time.Time) (int64, error)

	// UpsertSecret stores a fresh, unconfirmed enrollment, replacing any
	// unconfirmed one. A confirmed enrollment is never silently replaced.
	UpsertSecret(ctx context.Context, s *domain.Secret) error
	// GetSecret returns the principal's enrollment, or nil when not enrolled.
	GetSecret(ctx context.Context, tenantID, userID string) (*domain.Secret, error)
	ConfirmSecret(ctx context.Context, tenantID, userID string, at time.Time) error
	DeleteSecret(ctx context.Context, tenantID, userID string) error
}
