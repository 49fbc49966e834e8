package cleanup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tokendomain "authcore/backend/internal/tokenchain/domain"
)

type memRetentionRepo struct {
	mu sync.Mutex
	m  map[string]*tokendomain.RefreshToken

	failDeletes bool
}

func newMemRetentionRepo() *memRetentionRepo {
	return &memRetentionRepo{m: make(map[string]*tokendomain.RefreshToken)}
}

func (r *memRetentionRepo) add(t *tokendomain.RefreshToken) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t2 := *t
	r.m[t.ID] = &t2
}

func (r *memRetentionRepo) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]*tokendomain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*tokendomain.RefreshToken
	for _, t := range r.m {
		if !t.IsRevoked && !t.ExpiresAt.After(now) {
			t2 := *t
			out = append(out, &t2)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *memRetentionRepo) Revoke(ctx context.Context, tenantID, id string, reason tokendomain.RevokeReason, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.m[id]; ok && t.TenantID == tenantID && !t.IsRevoked {
		t.IsRevoked = true
		revokedAt := at
		t.RevokedAt = &revokedAt
		t.RevokeReason = reason
	}
	return nil
}

func (r *memRetentionRepo) DeleteRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failDeletes {
		return 0, errors.New("db down")
	}
	var n int64
	for id, t := range r.m {
		if t.IsRevoked && t.RevokeReason != tokendomain.RevokeReasonReuseDetected &&
			t.RevokedAt != nil && t.RevokedAt.Before(cutoff) {
			delete(r.m, id)
			n++
		}
	}
	return n, nil
}

func (r *memRetentionRepo) DeleteReuseEvidenceBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failDeletes {
		return 0, errors.New("db down")
	}
	var n int64
	for id, t := range r.m {
		if t.IsRevoked && t.RevokeReason == tokendomain.RevokeReasonReuseDetected &&
			t.RevokedAt != nil && t.RevokedAt.Before(cutoff) {
			delete(r.m, id)
			n++
		}
	}
	return n, nil
}

func (r *memRetentionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}

type memChallengePurger struct {
	mu     sync.Mutex
	purged int64
}

func (r *memChallengePurger) DeleteExpiredChallenges(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purged++
	return 3, nil
}

func token(id string, revoked bool, reason tokendomain.RevokeReason, revokedAt, expiresAt time.Time) *tokendomain.RefreshToken {
	t := &tokendomain.RefreshToken{
		ID:        id,
		TenantID:  "t1",
		UserID:    "u1",
		FamilyID:  "f-" + id,
		ExpiresAt: expiresAt,
	}
	if revoked {
		t.IsRevoked = true
		at := revokedAt
		t.RevokedAt = &at
		t.RevokeReason = reason
	}
	return t
}

func newTestSweeper(t *testing.T, repo *memRetentionRepo, now time.Time) *Sweeper {
	t.Helper()
	s := NewSweeper(repo, &memChallengePurger{}, 30*24*time.Hour, 90*24*time.Hour, nil)
	s.SetNowFunc(func() time.Time { return now })
	return s
}

func TestSweeper_ExpiresStaleTokens(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newMemRetentionRepo()
	repo.add(token("stale", false, "", time.Time{}, now.Add(-time.Hour)))
	repo.add(token("live", false, "", time.Time{}, now.Add(time.Hour)))

	s := newTestSweeper(t, repo, now)
	rep, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.ExpiredTokens != 1 {
		t.Errorf("expired: got %d, want 1", rep.ExpiredTokens)
	}

	repo.mu.Lock()
	stale := repo.m["stale"]
	live := repo.m["live"]
	repo.mu.Unlock()
	if !stale.IsRevoked || stale.RevokeReason != tokendomain.RevokeReasonExpired {
		t.Errorf("stale token: revoked=%v reason=%q", stale.IsRevoked, stale.RevokeReason)
	}
	if live.IsRevoked {
		t.Error("live token must be untouched")
	}
}

func TestSweeper_RetentionWindows(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newMemRetentionRepo()
	// Revoked 31 days ago: past the 30d window, goes.
	repo.add(token("old-revoked", true, tokendomain.RevokeReasonRotated, now.Add(-31*24*time.Hour), now))
	// Revoked 29 days ago: kept.
	repo.add(token("young-revoked", true, tokendomain.RevokeReasonRotated, now.Add(-29*24*time.Hour), now))
	// Reuse evidence revoked 31 days ago: inside the 90d window, kept.
	repo.add(token("young-reuse", true, tokendomain.RevokeReasonReuseDetected, now.Add(-31*24*time.Hour), now))
	// Reuse evidence revoked 91 days ago: goes.
	repo.add(token("old-reuse", true, tokendomain.RevokeReasonReuseDetected, now.Add(-91*24*time.Hour), now))

	s := newTestSweeper(t, repo, now)
	rep, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.DeletedRevoked != 1 || rep.DeletedReuse != 1 {
		t.Errorf("deleted: revoked=%d reuse=%d, want 1 and 1", rep.DeletedRevoked, rep.DeletedReuse)
	}

	repo.mu.Lock()
	_, youngRevoked := repo.m["young-revoked"]
	_, youngReuse := repo.m["young-reuse"]
	_, oldRevoked := repo.m["old-revoked"]
	_, oldReuse := repo.m["old-reuse"]
	repo.mu.Unlock()
	if !youngRevoked || !youngReuse {
		t.Error("tokens inside their windows must survive")
	}
	if oldRevoked || oldReuse {
		t.Error("tokens past their windows must be gone")
	}
}

func TestSweeper_Idempotent(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newMemRetentionRepo()
	repo.add(token("stale", false, "", time.Time{}, now.Add(-time.Hour)))
	repo.add(token("old-revoked", true, tokendomain.RevokeReasonRotated, now.Add(-31*24*time.Hour), now))

	s := newTestSweeper(t, repo, now)
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	before := repo.count()

	rep, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if rep.ExpiredTokens != 0 || rep.DeletedRevoked != 0 || rep.DeletedReuse != 0 {
		t.Errorf("second run changed state: %+v", rep)
	}
	if repo.count() != before {
		t.Errorf("second run deleted rows: %d -> %d", before, repo.count())
	}
}

func TestSweeper_PartialFailureStillSweepsRest(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newMemRetentionRepo()
	repo.failDeletes = true
	repo.add(token("stale", false, "", time.Time{}, now.Add(-time.Hour)))

	challenges := &memChallengePurger{}
	s := NewSweeper(repo, challenges, 30*24*time.Hour, 90*24*time.Hour, nil)
	s.SetNowFunc(func() time.Time { return now })

	rep, err := s.Run(context.Background())
	if err == nil {
		t.Fatal("failed deletes should surface in the error")
	}
	if rep.ExpiredTokens != 1 {
		t.Errorf("expiry pass should still run: got %d", rep.ExpiredTokens)
	}
	challenges.mu.Lock()
	purged := challenges.purged
	challenges.mu.Unlock()
	if purged != 1 {
		t.Error("challenge purge should still run after delete failures")
	}
}

type stubRunner struct {
	mu   sync.Mutex
	runs int
	err  error
}

func (r *stubRunner) Run(ctx context.Context) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs++
	return Report{}, r.err
}

func TestJob_NextBoundary(t *testing.T) {
	j := NewJob(&stubRunner{}, 6*time.Hour, nil)
	now := time.Date(2026, 3, 1, 7, 13, 42, 0, time.UTC)
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if got := j.NextBoundary(now); !got.Equal(want) {
		t.Errorf("NextBoundary: got %v, want %v", got, want)
	}

	// Exactly on a boundary schedules the next one, not an immediate run.
	onBoundary := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	want = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	if got := j.NextBoundary(onBoundary); !got.Equal(want) {
		t.Errorf("NextBoundary on boundary: got %v, want %v", got, want)
	}
}

func TestJob_FailureCounter(t *testing.T) {
	runner := &stubRunner{err: errors.New("db down")}
	j := NewJob(runner, time.Hour, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := j.TriggerNow(ctx); err == nil {
			t.Fatal("TriggerNow should propagate the sweep error")
		}
	}
	if got := j.Status().ConsecutiveFailures; got != 3 {
		t.Errorf("consecutive failures: got %d, want 3", got)
	}

	runner.mu.Lock()
	runner.err = nil
	runner.mu.Unlock()
	if _, err := j.TriggerNow(ctx); err != nil {
		t.Fatalf("TriggerNow: %v", err)
	}
	st := j.Status()
	if st.ConsecutiveFailures != 0 {
		t.Errorf("counter after success: got %d, want 0", st.ConsecutiveFailures)
	}
	if st.LastRun.IsZero() {
		t.Error("LastRun should be recorded")
	}
}

func TestJob_SweepPanicIsContained(t *testing.T) {
	j := NewJob(panicRunner{}, time.Hour, nil)
	if _, err := j.TriggerNow(context.Background()); err == nil {
		t.Fatal("panicking sweep should report an error")
	}
	if got := j.Status().ConsecutiveFailures; got != 1 {
		t.Errorf("consecutive failures: got %d, want 1", got)
	}
}

type panicRunner struct{}

func (panicRunner) Run(ctx context.Context) (Report, error) { panic("boom") }
