// Package repository defines persistence for sessions, principal versions, and
// known devices.
package repository

import (
	"context"
	"time"

	"authcore/backend/internal/session/domain"
)

// Lookback is the batched history read that feeds the anomaly scorer: the count
// of currently-active sessions plus the most recent sessions regardless of
// revocation state.
type Lookback struct {
	ActiveCount int
	Recent      []*domain.Session
}

// Repository defines persistence for sessions.
type Repository interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Session, error)
	UpdateLastSeen(ctx context.Context, tenantID, id string, at time.Time) error
	Revoke(ctx context.Context, tenantID, id, by string, reason domain.RevokeReason, at time.Time) error
	// RevokeAllByUser revokes every active session of the user; exceptID may name
	// one session to spare (e.g. the one driving the revocation). Returns the
	// number of sessions revoked.
	RevokeAllByUser(ctx context.Context, tenantID, userID, by string, reason domain.RevokeReason, at time.Time, exceptID string) (int64, error)
	// LookbackByUser returns the active-session count (indexed) and the most
	// recent limit sessions in one call.
	LookbackByUser(ctx context.Context, tenantID, userID string, limit int) (*Lookback, error)

	// GetVersion returns the principal's live session version, 1 when no row exists.
	GetVersion(ctx context.Context, tenantID, userID string) (int64, error)
	// BumpVersion atomically increments the principal's version and returns the
	// new value, inserting the row at 2 on first bump.
	BumpVersion(ctx context.Context, tenantID, userID string, at time.Time) (int64, error)

	// UpsertKnownDevice records first sight of a (user, deviceHash) pair, or
	// refreshes last_ip/last_seen_at on later sights.
	UpsertKnownDevice(ctx context.Context, tenantID, userID, deviceHash, ip string, at time.Time) error
}
