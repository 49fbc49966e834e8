// Package tokenchain issues, rotates, and revokes refresh-token chains, and
// detects reuse of already-rotated tokens. Infrastructure failures on this path
// propagate: a stolen-token check that cannot run must fail the request, never
// pass it.
package tokenchain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	alertdomain "authcore/backend/internal/alert/domain"
	"authcore/backend/internal/audit"
	"authcore/backend/internal/authctx"
	"authcore/backend/internal/security"
	"authcore/backend/internal/tokenchain/domain"
	"authcore/backend/internal/tokenchain/repository"
)

// Sentinel outcomes of Rotate. These are expected auth results, not failures;
// callers branch on them explicitly.
var (
	ErrTokenNotFound = errors.New("refresh token not found")
	ErrTokenExpired  = errors.New("refresh token expired")
	// ErrReuseDetected means an already-rotated token was presented again. The
	// family is revoked before this is returned; the caller must force-logout
	// every session of the principal.
	ErrReuseDetected = errors.New("refresh token reuse detected")
)

// Repo is the persistence the store needs; repository.PostgresRepository implements it.
type Repo interface {
	Create(ctx context.Context, t *domain.RefreshToken) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.RefreshToken, error)
	Rotate(ctx context.Context, tenantID, parentID string, child *domain.RefreshToken, at time.Time) error
	Revoke(ctx context.Context, tenantID, id string, reason domain.RevokeReason, at time.Time) error
	MarkSuspiciousReuse(ctx context.Context, tenantID, id string, at time.Time) error
	RevokeFamily(ctx context.Context, tenantID, familyID string, reason domain.RevokeReason, at time.Time) (int64, error)
}

// AlertRaiser raises a security alert; alert.Sink implements it.
type AlertRaiser interface {
	Raise(ctx context.Context, tenantID, userID string, kind alertdomain.Kind, severity alertdomain.Severity, message, metadata string)
}

// ReuseCounter counts detected reuse events; telemetry.Metrics implements it.
type ReuseCounter interface {
	ReuseDetected(ctx context.Context)
}

// IssuedToken pairs the persisted chain link with the raw credential.
// Raw is handed to the client exactly once and never stored.
type IssuedToken struct {
	Token *domain.RefreshToken
	Raw   string
}

// Store manages refresh-token chains.
type Store struct {
	repo       Repo
	alerts     AlertRaiser
	auditLog   audit.Logger
	metrics    ReuseCounter
	refreshTTL time.Duration
	nowF       func() time.Time
}

// NewStore returns a Store with the given dependencies. alerts, auditLog, and
// metrics may be nil for callers that do not wire them (tests).
func NewStore(repo Repo, alerts AlertRaiser, auditLog audit.Logger, metrics ReuseCounter, refreshTTL time.Duration) *Store {
	return &Store{
		repo:       repo,
		alerts:     alerts,
		auditLog:   auditLog,
		metrics:    metrics,
		refreshTTL: refreshTTL,
		nowF:       func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock; for tests.
func (s *Store) SetNowFunc(f func() time.Time) { s.nowF = f }

// IssueRoot creates a new chain for a fresh login and returns the raw secret once.
func (s *Store) IssueRoot(ctx context.Context, sc authctx.Scope, deviceFingerprint string) (*IssuedToken, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	now := s.nowF()
	secret, err := security.GenerateSecret()
	if err != nil {
		return nil, err
	}
	t := &domain.RefreshToken{
		ID:                uuid.New().String(),
		TenantID:          sc.TenantID,
		UserID:            sc.UserID,
		StaffID:           sc.ActorID,
		FamilyID:          uuid.New().String(),
		SecretHash:        security.HashSecret(secret),
		DeviceFingerprint: deviceFingerprint,
		IssuedAt:          now,
		ExpiresAt:         now.Add(s.refreshTTL),
		CreatedAt:         now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("issue root token: %w", err)
	}
	s.logEvent(ctx, sc, "issue_root", t.FamilyID)
	return &IssuedToken{Token: t, Raw: security.FormatRefreshToken(t.ID, secret)}, nil
}

// Rotate exchanges an active token for its child. An already-revoked token whose
// reason is anything but expired is a reuse event: the whole family is revoked,
// the reused token is stamped, an alert is raised, and ErrReuseDetected tells the
// caller to force-logout the principal.
func (s *Store) Rotate(ctx context.Context, sc authctx.Scope, rawToken string) (*IssuedToken, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	id, secret, err := security.SplitRefreshToken(rawToken)
	if err != nil {
		return nil, ErrTokenNotFound
	}
	parent, err := s.repo.GetByID(ctx, sc.TenantID, id)
	if err != nil {
		return nil, fmt.Errorf("look up refresh token: %w", err)
	}
	if parent == nil || !security.SecretEqual(secret, parent.SecretHash) {
		return nil, ErrTokenNotFound
	}
	now := s.nowF()

	if parent.IsRevoked {
		if parent.RevokeReason == domain.RevokeReasonExpired {
			return nil, ErrTokenExpired
		}
		return nil, s.handleReuse(ctx, sc, parent, now)
	}
	if parent.Expired(now) {
		if err := s.repo.Revoke(ctx, sc.TenantID, parent.ID, domain.RevokeReasonExpired, now); err != nil {
			return nil, fmt.Errorf("expire refresh token: %w", err)
		}
		s.logEvent(ctx, sc, "expired", parent.FamilyID)
		return nil, ErrTokenExpired
	}

	parentID := parent.ID
	child := &domain.RefreshToken{
		ID:                uuid.New().String(),
		TenantID:          parent.TenantID,
		UserID:            parent.UserID,
		StaffID:           parent.StaffID,
		FamilyID:          parent.FamilyID,
		ParentID:          &parentID,
		DeviceFingerprint: parent.DeviceFingerprint,
		IssuedAt:          now,
		ExpiresAt:         now.Add(s.refreshTTL),
		CreatedAt:         now,
	}
	childSecret, err := security.GenerateSecret()
	if err != nil {
		return nil, err
	}
	child.SecretHash = security.HashSecret(childSecret)

	err = s.repo.Rotate(ctx, sc.TenantID, parent.ID, child, now)
	if errors.Is(err, repository.ErrRotationConflict) {
		// Lost the rotation race: a concurrent caller already rotated this token.
		// That is indistinguishable from replay, so it gets the full reuse treatment.
		return nil, s.handleReuse(ctx, sc, parent, now)
	}
	if err != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}
	s.logEvent(ctx, sc, "rotated", parent.FamilyID)
	return &IssuedToken{Token: child, Raw: security.FormatRefreshToken(child.ID, childSecret)}, nil
}

// RevokeFamily revokes every non-revoked token in the family; used on logout and
// by admin tooling.
func (s *Store) RevokeFamily(ctx context.Context, sc authctx.Scope, familyID string, reason domain.RevokeReason) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	if !reason.IsValid() {
		return fmt.Errorf("invalid revoke reason %q", reason)
	}
	if _, err := s.repo.RevokeFamily(ctx, sc.TenantID, familyID, reason, s.nowF()); err != nil {
		return fmt.Errorf("revoke token family: %w", err)
	}
	s.logEvent(ctx, sc, "family_revoked:"+string(reason), familyID)
	return nil
}

// handleReuse runs the loud path: stamp the reused token, revoke the family,
// alert, audit, count, and return ErrReuseDetected. The family revocation must
// land; if that write fails the whole request fails rather than letting the
// live child keep working after a detected theft.
func (s *Store) handleReuse(ctx context.Context, sc authctx.Scope, reused *domain.RefreshToken, now time.Time) error {
	if err := s.repo.MarkSuspiciousReuse(ctx, sc.TenantID, reused.ID, now); err != nil {
		// Forensic stamp only; the revocation below is what stops the bleeding.
		s.logEvent(ctx, sc, "reuse_stamp_failed", reused.FamilyID)
	}
	if _, err := s.repo.RevokeFamily(ctx, sc.TenantID, reused.FamilyID, domain.RevokeReasonReuseDetected, now); err != nil {
		return fmt.Errorf("revoke family on reuse: %w", err)
	}
	if s.alerts != nil {
		s.alerts.Raise(ctx, sc.TenantID, reused.UserID, alertdomain.KindTokenReuse,
			alertdomain.SeverityCritical, "rotated refresh token presented again",
			fmt.Sprintf(`{"family_id":%q}`, reused.FamilyID))
	}
	if s.metrics != nil {
		s.metrics.ReuseDetected(ctx)
	}
	s.logEvent(ctx, sc, "reuse_detected", reused.FamilyID)
	return ErrReuseDetected
}

func (s *Store) logEvent(ctx context.Context, sc authctx.Scope, action, familyID string) {
	if s.auditLog == nil {
		return
	}
	s.auditLog.LogEvent(ctx, sc.TenantID, sc.UserID, action, "refresh_token",
		fmt.Sprintf(`{"family_id":%q,"actor":%q}`, familyID, sc.Actor()))
}
