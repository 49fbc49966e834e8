// Package stepup re-verifies a principal before sensitive operations. Each
// verification is scoped to one purpose: a code accepted for force_logout says
// nothing about billing_change. Enrollment is TOTP with codes accepted one
// period either side of the clock.
package stepup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"authcore/backend/internal/audit"
	"authcore/backend/internal/authctx"
	"authcore/backend/internal/stepup/domain"
)

var (
	// ErrNotEnrolled means the principal has no confirmed TOTP enrollment.
	ErrNotEnrolled = errors.New("step-up not enrolled")
	// ErrAlreadyEnrolled means a confirmed enrollment exists; it must be
	// disabled before re-enrolling.
	ErrAlreadyEnrolled = errors.New("step-up already enrolled")
	// ErrNoChallenge means no live challenge exists for the purpose.
	ErrNoChallenge = errors.New("no pending step-up challenge")
	// ErrInvalidPurpose means the purpose is outside the closed set.
	ErrInvalidPurpose = errors.New("invalid step-up purpose")
)

const defaultIssuer = "authcore"

// Repo is the persistence the verifier needs; repository.PostgresRepository implements it.
type Repo interface {
	CreateChallenge(ctx context.Context, c *domain.Challenge) error
	LatestPending(ctx context.Context, tenantID, userID string, purpose domain.Purpose) (*domain.Challenge, error)
	LatestVerified(ctx context.Context, tenantID, userID string, purpose domain.Purpose) (*domain.Challenge, error)
	MarkVerified(ctx context.Context, tenantID, id string, at time.Time) error
	UpsertSecret(ctx context.Context, s *domain.Secret) error
	GetSecret(ctx context.Context, tenantID, userID string) (*domain.Secret, error)
	ConfirmSecret(ctx context.Context, tenantID, userID string, at time.Time) error
	DeleteSecret(ctx context.Context, tenantID, userID string) error
}

// Verifier manages TOTP enrollment and purpose-scoped challenges.
type Verifier struct {
	repo         Repo
	auditLog     audit.Logger
	issuer       string
	challengeTTL time.Duration
	nowF         func() time.Time
}

// NewVerifier returns a Verifier. issuer is shown in authenticator apps (empty
// picks the default); challengeTTL bounds how long an open challenge accepts
// codes. auditLog may be nil.
func NewVerifier(repo Repo, issuer string, challengeTTL time.Duration, auditLog audit.Logger) *Verifier {
	if issuer == "" {
		issuer = defaultIssuer
	}
	return &Verifier{
		repo:         repo,
		auditLog:     auditLog,
		issuer:       issuer,
		challengeTTL: challengeTTL,
		nowF:         func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock; for tests.
func (v *Verifier) SetNowFunc(f func() time.Time) { v.nowF = f }

// Enroll provisions a new TOTP secret, pending until confirmed with a first
// valid code. The secret and otpauth URI are returned exactly once. An
// unconfirmed prior enrollment is replaced; a confirmed one must be disabled first.
func (v *Verifier) Enroll(ctx context.Context, sc authctx.Scope) (secret, otpauthURI string, err error) {
	if err := sc.Validate(); err != nil {
		return "", "", err
	}
	existing, err := v.repo.GetSecret(ctx, sc.TenantID, sc.UserID)
	if err != nil {
		return "", "", fmt.Errorf("load step-up enrollment: %w", err)
	}
	if existing != nil && existing.ConfirmedAt != nil {
		return "", "", ErrAlreadyEnrolled
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      v.issuer,
		AccountName: sc.UserID,
	})
	if err != nil {
		return "", "", fmt.Errorf("generate totp secret: %w", err)
	}
	s := &domain.Secret{
		TenantID:  sc.TenantID,
		UserID:    sc.UserID,
		Secret:    key.Secret(),
		CreatedAt: v.nowF(),
	}
	if err := v.repo.UpsertSecret(ctx, s); err != nil {
		return "", "", fmt.Errorf("store step-up enrollment: %w", err)
	}
	v.logEvent(ctx, sc, "stepup_enroll_started", "")
	return key.Secret(), key.URL(), nil
}

// ConfirmEnrollment activates a pending enrollment when code is valid. Returns
// false, nil for a wrong code.
func (v *Verifier) ConfirmEnrollment(ctx context.Context, sc authctx.Scope, code string) (bool, error) {
	s, err := v.repo.GetSecret(ctx, sc.TenantID, sc.UserID)
	if err != nil {
		return false, fmt.Errorf("load step-up enrollment: %w", err)
	}
	if s == nil {
		return false, ErrNotEnrolled
	}
	if s.ConfirmedAt != nil {
		return false, ErrAlreadyEnrolled
	}
	ok, err := v.validCode(code, s.Secret)
	if err != nil || !ok {
		return false, err
	}
	if err := v.repo.ConfirmSecret(ctx, sc.TenantID, sc.UserID, v.nowF()); err != nil {
		return false, fmt.Errorf("confirm step-up enrollment: %w", err)
	}
	v.logEvent(ctx, sc, "stepup_enrolled", "")
	return true, nil
}

// Disable removes a confirmed enrollment. The current code is required so a
// hijacked session cannot silently strip the second factor.
func (v *Verifier) Disable(ctx context.Context, sc authctx.Scope, code string) (bool, error) {
	s, err := v.repo.GetSecret(ctx, sc.TenantID, sc.UserID)
	if err != nil {
		return false, fmt.Errorf("load step-up enrollment: %w", err)
	}
	if s == nil || s.ConfirmedAt == nil {
		return false, ErrNotEnrolled
	}
	ok, err := v.validCode(code, s.Secret)
	if err != nil || !ok {
		return false, err
	}
	if err := v.repo.DeleteSecret(ctx, sc.TenantID, sc.UserID); err != nil {
		return false, fmt.Errorf("delete step-up enrollment: %w", err)
	}
	v.logEvent(ctx, sc, "stepup_disabled", "")
	return true, nil
}

// BeginChallenge opens a challenge for one purpose. The returned ID identifies
// the challenge to operator tooling; Verify finds it by purpose.
func (v *Verifier) BeginChallenge(ctx context.Context, sc authctx.Scope, purpose domain.Purpose, requestIP string) (string, error) {
	if err := sc.Validate(); err != nil {
		return "", err
	}
	if !purpose.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPurpose, purpose)
	}
	if err := v.requireEnrolled(ctx, sc); err != nil {
		return "", err
	}
	now := v.nowF()
	c := &domain.Challenge{
		ID:        uuid.New().String(),
		TenantID:  sc.TenantID,
		UserID:    sc.UserID,
		Purpose:   purpose,
		RequestIP: requestIP,
		ExpiresAt: now.Add(v.challengeTTL),
		CreatedAt: now,
	}
	if err := v.repo.CreateChallenge(ctx, c); err != nil {
		return "", fmt.Errorf("create step-up challenge: %w", err)
	}
	v.logEvent(ctx, sc, "stepup_challenge:"+string(purpose), c.ID)
	return c.ID, nil
}

// Verify checks code against the newest open challenge for the purpose and
// stamps it verified on success. Returns false, nil for a wrong code and
// ErrNoChallenge when no open, unexpired challenge exists.
func (v *Verifier) Verify(ctx context.Context, sc authctx.Scope, purpose domain.Purpose, code string) (bool, error) {
	if !purpose.IsValid() {
		return false, fmt.Errorf("%w: %q", ErrInvalidPurpose, purpose)
	}
	s, err := v.repo.GetSecret(ctx, sc.TenantID, sc.UserID)
	if err != nil {
		return false, fmt.Errorf("load step-up enrollment: %w", err)
	}
	if s == nil || s.ConfirmedAt == nil {
		return false, ErrNotEnrolled
	}
	ch, err := v.repo.LatestPending(ctx, sc.TenantID, sc.UserID, purpose)
	if err != nil {
		return false, fmt.Errorf("load step-up challenge: %w", err)
	}
	now := v.nowF()
	if ch == nil || !ch.ExpiresAt.After(now) {
		return false, ErrNoChallenge
	}
	ok, err := v.validCode(code, s.Secret)
	if err != nil || !ok {
		return false, err
	}
	if err := v.repo.MarkVerified(ctx, sc.TenantID, ch.ID, now); err != nil {
		return false, fmt.Errorf("mark step-up verified: %w", err)
	}
	v.logEvent(ctx, sc, "stepup_verified:"+string(purpose), ch.ID)
	return true, nil
}

// HasRecentVerification reports whether the principal completed a verification
// for this exact purpose within the caller's window. The window is the caller's
// freshness requirement; the challenge TTL plays no part here.
func (v *Verifier) HasRecentVerification(ctx context.Context, sc authctx.Scope, purpose domain.Purpose, window time.Duration) (bool, error) {
	if !purpose.IsValid() {
		return false, fmt.Errorf("%w: %q", ErrInvalidPurpose, purpose)
	}
	ch, err := v.repo.LatestVerified(ctx, sc.TenantID, sc.UserID, purpose)
	if err != nil {
		return false, fmt.Errorf("load step-up verification: %w", err)
	}
	if ch == nil || ch.VerifiedAt == nil {
		return false, nil
	}
	return ch.VerifiedAt.After(v.nowF().Add(-window)), nil
}

func (v *Verifier) requireEnrolled(ctx context.Context, sc authctx.Scope) error {
	s, err := v.repo.GetSecret(ctx, sc.TenantID, sc.UserID)
	if err != nil {
		return fmt.Errorf("load step-up enrollment: %w", err)
	}
	if s == nil || s.ConfirmedAt == nil {
		return ErrNotEnrolled
	}
	return nil
}

func (v *Verifier) validCode(code, secret string) (bool, error) {
	ok, err := totp.ValidateCustom(code, secret, v.nowF(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false, fmt.Errorf("validate totp code: %w", err)
	}
	return ok, nil
}

func (v *Verifier) logEvent(ctx context.Context, sc authctx.Scope, action, metadata string) {
	if v.auditLog == nil {
		return
	}
	v.auditLog.LogEvent(ctx, sc.TenantID, sc.UserID, action, "stepup", metadata)
}
