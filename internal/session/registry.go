// Package session tracks one row per active login and the per-principal version
// counter that invalidates all of a principal's sessions in one write. Validation
// is the security boundary's canonical check and fails closed; touch writes are
// best-effort liveness.
package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"authcore/backend/internal/audit"
	"authcore/backend/internal/authctx"
	"authcore/backend/internal/cache"
	"authcore/backend/internal/session/domain"
)

// validateTimeout bounds the boundary validation round trip. A slow check fails
// the request; it is not retried.
const validateTimeout = 3 * time.Second

// Origin is the network origin of a login or request.
type Origin struct {
	IP      string
	Country string
	City    string
}

// Repo is the persistence the registry needs; repository.PostgresRepository implements it.
type Repo interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Session, error)
	UpdateLastSeen(ctx context.Context, tenantID, id string, at time.Time) error
	Revoke(ctx context.Context, tenantID, id, by string, reason domain.RevokeReason, at time.Time) error
	RevokeAllByUser(ctx context.Context, tenantID, userID, by string, reason domain.RevokeReason, at time.Time, exceptID string) (int64, error)
	GetVersion(ctx context.Context, tenantID, userID string) (int64, error)
	BumpVersion(ctx context.Context, tenantID, userID string, at time.Time) (int64, error)
	UpsertKnownDevice(ctx context.Context, tenantID, userID, deviceHash, ip string, at time.Time) error
}

// BumpCounter counts version bumps; telemetry.Metrics implements it.
type BumpCounter interface {
	VersionBump(ctx context.Context)
}

// Registry manages user sessions.
type Registry struct {
	repo       Repo
	throttle   *cache.TTLCache[struct{}]
	touchEvery time.Duration
	sessionTTL time.Duration
	auditLog   audit.Logger
	metrics    BumpCounter
	nowF       func() time.Time
}

// NewRegistry returns a Registry. throttle holds the per-session touch marker;
// touchEvery is the minimum gap between last-seen writes per session. auditLog
// and metrics may be nil.
func NewRegistry(repo Repo, throttle *cache.TTLCache[struct{}], touchEvery, sessionTTL time.Duration, auditLog audit.Logger, metrics BumpCounter) *Registry {
	return &Registry{
		repo:       repo,
		throttle:   throttle,
		touchEvery: touchEvery,
		sessionTTL: sessionTTL,
		auditLog:   auditLog,
		metrics:    metrics,
		nowF:       func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock; for tests.
func (r *Registry) SetNowFunc(f func() time.Time) { r.nowF = f }

// Create registers a new login. versionSnapshot is the principal's version at
// login; pass 0 to have it read. First sight of the device is recorded for the
// anomaly scorer (best-effort).
func (r *Registry) Create(ctx context.Context, sc authctx.Scope, versionSnapshot int64, deviceFingerprint string, origin Origin) (*domain.Session, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	now := r.nowF()
	if versionSnapshot == 0 {
		v, err := r.repo.GetVersion(ctx, sc.TenantID, sc.UserID)
		if err != nil {
			return nil, fmt.Errorf("read session version: %w", err)
		}
		versionSnapshot = v
	}
	s := &domain.Session{
		ID:                uuid.New().String(),
		TenantID:          sc.TenantID,
		UserID:            sc.UserID,
		StaffID:           sc.ActorID,
		SessionVersion:    versionSnapshot,
		DeviceFingerprint: deviceFingerprint,
		IPAddress:         origin.IP,
		Country:           origin.Country,
		City:              origin.City,
		IsCurrent:         true,
		CreatedAt:         now,
		ExpiresAt:         now.Add(r.sessionTTL),
	}
	if err := r.repo.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if deviceFingerprint != "" {
		if err := r.repo.UpsertKnownDevice(ctx, sc.TenantID, sc.UserID, deviceFingerprint, origin.IP, now); err != nil {
			log.Printf("session: record known device: %v", err)
		}
	}
	return s, nil
}

// Touch refreshes the session's last-seen timestamp, skipping the write when one
// landed within the throttle window. Best-effort: failures are logged, and a race
// on the same key only costs a redundant write.
func (r *Registry) Touch(ctx context.Context, sc authctx.Scope, sessionID string) {
	key := sc.TenantID + "|" + sessionID
	if _, ok := r.throttle.Get(key); ok {
		return
	}
	r.throttle.Set(key, struct{}{}, r.touchEvery)
	if err := r.repo.UpdateLastSeen(ctx, sc.TenantID, sessionID, r.nowF()); err != nil {
		log.Printf("session: touch %s: %v", sessionID, err)
	}
}

// Validate is the canonical boundary check. It fails closed: infrastructure
// errors propagate so the caller fails the request rather than letting a
// possibly-revoked session through. expectedVersion is the snapshot carried by
// the caller's access token.
func (r *Registry) Validate(ctx context.Context, sc authctx.Scope, sessionID string, expectedVersion int64) (domain.ValidationStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	s, err := r.repo.GetByID(ctx, sc.TenantID, sessionID)
	if err != nil {
		return domain.StatusUnknown, fmt.Errorf("validate session: %w", err)
	}
	if s == nil {
		return domain.StatusNotFound, nil
	}
	now := r.nowF()
	if s.RevokedAt != nil || !s.ExpiresAt.After(now) {
		return domain.StatusRevoked, nil
	}
	live, err := r.repo.GetVersion(ctx, sc.TenantID, sc.UserID)
	if err != nil {
		return domain.StatusUnknown, fmt.Errorf("validate session version: %w", err)
	}
	if s.SessionVersion != live || expectedVersion != live {
		return domain.StatusVersionMismatch, nil
	}
	return domain.StatusValid, nil
}

// Revoke ends a single session.
func (r *Registry) Revoke(ctx context.Context, sc authctx.Scope, sessionID string, reason domain.RevokeReason) error {
	if !reason.IsValid() {
		return fmt.Errorf("invalid revoke reason %q", reason)
	}
	if err := r.repo.Revoke(ctx, sc.TenantID, sessionID, sc.Actor(), reason, r.nowF()); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	r.logEvent(ctx, sc, "revoked:"+string(reason), sessionID)
	return nil
}

// RevokeAll ends every active session of the principal, optionally sparing one
// (e.g. the session driving the revocation).
func (r *Registry) RevokeAll(ctx context.Context, sc authctx.Scope, reason domain.RevokeReason, exceptSessionID string) (int64, error) {
	if !reason.IsValid() {
		return 0, fmt.Errorf("invalid revoke reason %q", reason)
	}
	n, err := r.repo.RevokeAllByUser(ctx, sc.TenantID, sc.UserID, sc.Actor(), reason, r.nowF(), exceptSessionID)
	if err != nil {
		return 0, fmt.Errorf("revoke all sessions: %w", err)
	}
	r.logEvent(ctx, sc, "revoked_all:"+string(reason), fmt.Sprintf("count=%d", n))
	return n, nil
}

// BumpVersion increments the principal's version counter, silently invalidating
// every outstanding session and token on its next use. No per-session writes.
func (r *Registry) BumpVersion(ctx context.Context, sc authctx.Scope) (int64, error) {
	if err := sc.Validate(); err != nil {
		return 0, err
	}
	v, err := r.repo.BumpVersion(ctx, sc.TenantID, sc.UserID, r.nowF())
	if err != nil {
		return 0, fmt.Errorf("bump session version: %w", err)
	}
	if r.metrics != nil {
		r.metrics.VersionBump(ctx)
	}
	r.logEvent(ctx, sc, "version_bumped", fmt.Sprintf("version=%d", v))
	return v, nil
}

// CurrentVersion returns the principal's live session version.
func (r *Registry) CurrentVersion(ctx context.Context, sc authctx.Scope) (int64, error) {
	return r.repo.GetVersion(ctx, sc.TenantID, sc.UserID)
}

func (r *Registry) logEvent(ctx context.Context, sc authctx.Scope, action, metadata string) {
	if r.auditLog == nil {
		return
	}
	r.auditLog.LogEvent(ctx, sc.TenantID, sc.UserID, action, "session", metadata)
}
