// Package cleanup enforces the retention policy: expired tokens are revoked with
// an audit trail, revoked tokens are hard-deleted after their retention window,
// and reuse evidence is held for a longer compliance window before deletion.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"authcore/backend/internal/audit"
	tokendomain "authcore/backend/internal/tokenchain/domain"
)

// expiredBatchSize bounds one expiry pass so a large backlog cannot hold a
// transactionless scan open indefinitely.
const expiredBatchSize = 500

// TokenRepo is the token persistence the sweeper needs;
// the tokenchain repository implements it.
type TokenRepo interface {
	ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]*tokendomain.RefreshToken, error)
	Revoke(ctx context.Context, tenantID, id string, reason tokendomain.RevokeReason, at time.Time) error
	DeleteRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteReuseEvidenceBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ChallengeRepo purges expired step-up challenges; the stepup repository implements it.
type ChallengeRepo interface {
	DeleteExpiredChallenges(ctx context.Context, cutoff time.Time) (int64, error)
}

// Report summarizes one sweep.
type Report struct {
	ExpiredTokens    int
	DeletedRevoked   int64
	DeletedReuse     int64
	PurgedChallenges int64
}

// Sweeper runs the retention passes. Each pass is independent: a failure in one
// is logged and folded into the returned error while the others still run, so a
// second run after any failure converges to the same end state.
type Sweeper struct {
	tokens           TokenRepo
	challenges       ChallengeRepo
	auditLog         audit.Logger
	retentionRevoked time.Duration
	retentionReuse   time.Duration
	nowF             func() time.Time
}

// NewSweeper returns a Sweeper. retentionRevoked is how long revoked tokens are
// kept; retentionReuse is the longer window for reuse evidence. auditLog may be nil.
func NewSweeper(tokens TokenRepo, challenges ChallengeRepo, retentionRevoked, retentionReuse time.Duration, auditLog audit.Logger) *Sweeper {
	return &Sweeper{
		tokens:           tokens,
		challenges:       challenges,
		auditLog:         auditLog,
		retentionRevoked: retentionRevoked,
		retentionReuse:   retentionReuse,
		nowF:             func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock; for tests.
func (s *Sweeper) SetNowFunc(f func() time.Time) { s.nowF = f }

// Run executes one sweep. Idempotent: a second run with no new expirations
// changes nothing.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	now := s.nowF()
	var rep Report
	var errs []error

	n, err := s.expireStale(ctx, now)
	rep.ExpiredTokens = n
	if err != nil {
		errs = append(errs, fmt.Errorf("expire stale tokens: %w", err))
	}

	if rep.DeletedRevoked, err = s.tokens.DeleteRevokedBefore(ctx, now.Add(-s.retentionRevoked)); err != nil {
		errs = append(errs, fmt.Errorf("delete revoked tokens: %w", err))
	}
	if rep.DeletedReuse, err = s.tokens.DeleteReuseEvidenceBefore(ctx, now.Add(-s.retentionReuse)); err != nil {
		errs = append(errs, fmt.Errorf("delete reuse evidence: %w", err))
	}
	if rep.PurgedChallenges, err = s.challenges.DeleteExpiredChallenges(ctx, now); err != nil {
		errs = append(errs, fmt.Errorf("purge step-up challenges: %w", err))
	}

	if s.auditLog != nil {
		s.auditLog.LogEvent(ctx, audit.SentinelTenantID, "", "retention_sweep", "cleanup",
			fmt.Sprintf("expired=%d deleted_revoked=%d deleted_reuse=%d purged_challenges=%d",
				rep.ExpiredTokens, rep.DeletedRevoked, rep.DeletedReuse, rep.PurgedChallenges))
	}
	return rep, errors.Join(errs...)
}

// expireStale revokes tokens past their expiry that were never presented again,
// each with an individual audit entry. Batched; runs until the backlog drains.
func (s *Sweeper) expireStale(ctx context.Context, now time.Time) (int, error) {
	total := 0
	for {
		batch, err := s.tokens.ListExpiredActive(ctx, now, expiredBatchSize)
		if err != nil {
			return total, err
		}
		revoked := 0
		for _, t := range batch {
			if err := s.tokens.Revoke(ctx, t.TenantID, t.ID, tokendomain.RevokeReasonExpired, now); err != nil {
				log.Printf("cleanup: expire token %s: %v", t.ID, err)
				continue
			}
			revoked++
			if s.auditLog != nil {
				s.auditLog.LogEvent(ctx, t.TenantID, t.UserID, "token_expired", "refresh_token", t.ID)
			}
		}
		total += revoked
		if len(batch) < expiredBatchSize {
			return total, nil
		}
		// A full batch with zero successful revokes would re-read the same rows.
		if revoked == 0 {
			return total, fmt.Errorf("expiry pass stalled with %d undrainable tokens", len(batch))
		}
	}
}
