package anomaly

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"authcore/backend/internal/authctx"
	"authcore/backend/internal/cache"
	sessiondomain "authcore/backend/internal/session/domain"
	sessionrepo "authcore/backend/internal/session/repository"
)

type memHistoryRepo struct {
	mu    sync.Mutex
	lb    sessionrepo.Lookback
	calls int
	fail  bool
}

func (r *memHistoryRepo) LookbackByUser(ctx context.Context, tenantID, userID string, limit int) (*sessionrepo.Lookback, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.fail {
		return nil, errors.New("db down")
	}
	lb := r.lb
	return &lb, nil
}

func priorSession(device, country, city string) *sessiondomain.Session {
	return &sessiondomain.Session{
		ID:                device + country + city,
		TenantID:          "t1",
		UserID:            "u1",
		DeviceFingerprint: device,
		Country:           country,
		City:              city,
	}
}

func testScope() authctx.Scope {
	return authctx.Scope{TenantID: "t1", UserID: "u1"}
}

func newTestScorer(t *testing.T, repo *memHistoryRepo) *Scorer {
	t.Helper()
	return NewScorer(repo, cache.New[Result](64), time.Minute, 12, 5, nil)
}

func TestScorer_AllFamiliarScoresZero(t *testing.T) {
	repo := &memHistoryRepo{lb: sessionrepo.Lookback{
		ActiveCount: 2,
		Recent:      []*sessiondomain.Session{priorSession("dev-1", "US", "Portland")},
	}}
	s := newTestScorer(t, repo)

	res := s.Score(context.Background(), testScope(), "dev-1", "US", "Portland")
	if res.Score != 0 || len(res.Reasons) != 0 {
		t.Errorf("familiar attempt: got score=%d reasons=%v", res.Score, res.Reasons)
	}
	if res.RequiresStepUp || res.RequiresForceLogout {
		t.Error("familiar attempt should gate nothing")
	}
}

func TestScorer_Weights(t *testing.T) {
	repo := &memHistoryRepo{lb: sessionrepo.Lookback{
		ActiveCount: 1,
		Recent:      []*sessiondomain.Session{priorSession("dev-1", "US", "Portland")},
	}}
	s := newTestScorer(t, repo)

	// New device + new country + new city = 65: step-up, no force logout.
	res := s.Score(context.Background(), testScope(), "dev-2", "DE", "Berlin")
	if res.Score != 65 {
		t.Errorf("score: got %d, want 65", res.Score)
	}
	if !res.RequiresStepUp || res.RequiresForceLogout {
		t.Errorf("at 65: stepup=%v forcelogout=%v", res.RequiresStepUp, res.RequiresForceLogout)
	}
	wantReasons := map[ReasonCode]bool{ReasonNewDevice: true, ReasonNewCountry: true, ReasonNewCity: true}
	for _, reason := range res.Reasons {
		if !wantReasons[reason] {
			t.Errorf("unexpected reason %s", reason)
		}
		delete(wantReasons, reason)
	}
	if len(wantReasons) != 0 {
		t.Errorf("missing reasons: %v", wantReasons)
	}
}

func TestScorer_FanoutCrossesForceLogout(t *testing.T) {
	repo := &memHistoryRepo{lb: sessionrepo.Lookback{
		ActiveCount: 5,
		Recent:      []*sessiondomain.Session{priorSession("dev-1", "US", "Portland")},
	}}
	s := newTestScorer(t, repo)

	// 30 + 25 + 10 + 20 = 85: still below 90.
	res := s.Score(context.Background(), testScope(), "dev-2", "DE", "Berlin")
	if res.Score != 85 || res.RequiresForceLogout {
		t.Errorf("at 85: score=%d forcelogout=%v", res.Score, res.RequiresForceLogout)
	}
	if res.ActiveSessionCount != 5 {
		t.Errorf("active count: got %d, want 5", res.ActiveSessionCount)
	}
}

func TestScorer_FirstLoginExemption(t *testing.T) {
	repo := &memHistoryRepo{lb: sessionrepo.Lookback{}}
	s := newTestScorer(t, repo)

	res := s.Score(context.Background(), testScope(), "dev-1", "US", "Portland")
	if res.Score != 0 || len(res.Reasons) != 0 {
		t.Errorf("first login: got score=%d reasons=%v", res.Score, res.Reasons)
	}
}

func TestScorer_EmptyAttributeNeverPenalized(t *testing.T) {
	// History has geo data but the current attempt resolved none.
	repo := &memHistoryRepo{lb: sessionrepo.Lookback{
		Recent: []*sessiondomain.Session{priorSession("dev-1", "US", "Portland")},
	}}
	s := newTestScorer(t, repo)

	res := s.Score(context.Background(), testScope(), "dev-1", "", "")
	if res.Score != 0 {
		t.Errorf("unresolved geo: got score=%d, want 0", res.Score)
	}
}

func TestScorer_FailOpen(t *testing.T) {
	repo := &memHistoryRepo{fail: true}
	s := newTestScorer(t, repo)

	res := s.Score(context.Background(), testScope(), "dev-1", "US", "Portland")
	if res.Score != 0 || res.RequiresStepUp || res.RequiresForceLogout {
		t.Errorf("datastore outage must not block: %+v", res)
	}
	if len(res.Reasons) != 1 || res.Reasons[0] != ReasonCheckSkipped {
		t.Errorf("skip reason: got %v", res.Reasons)
	}
}

func TestScorer_CacheHit(t *testing.T) {
	repo := &memHistoryRepo{lb: sessionrepo.Lookback{
		Recent: []*sessiondomain.Session{priorSession("dev-1", "US", "Portland")},
	}}
	s := newTestScorer(t, repo)
	ctx := context.Background()
	sc := testScope()

	first := s.Score(ctx, sc, "dev-2", "US", "Portland")
	if first.FromCache {
		t.Error("first score should not come from cache")
	}
	second := s.Score(ctx, sc, "dev-2", "US", "Portland")
	if !second.FromCache {
		t.Error("second identical score should come from cache")
	}
	if second.Score != first.Score {
		t.Errorf("cached score drifted: %d != %d", second.Score, first.Score)
	}
	repo.mu.Lock()
	calls := repo.calls
	repo.mu.Unlock()
	if calls != 1 {
		t.Errorf("history reads: got %d, want 1", calls)
	}

	// A different tuple misses the cache.
	third := s.Score(ctx, sc, "dev-3", "US", "Portland")
	if third.FromCache {
		t.Error("different device must not hit the cache")
	}
}

func TestScorer_SkippedResultNotCached(t *testing.T) {
	repo := &memHistoryRepo{fail: true}
	s := newTestScorer(t, repo)
	ctx := context.Background()
	sc := testScope()

	s.Score(ctx, sc, "dev-1", "US", "Portland")
	repo.mu.Lock()
	repo.fail = false
	repo.lb = sessionrepo.Lookback{Recent: []*sessiondomain.Session{priorSession("dev-9", "US", "Portland")}}
	repo.mu.Unlock()

	res := s.Score(ctx, sc, "dev-1", "US", "Portland")
	if res.FromCache {
		t.Error("a skipped result must not be served from cache")
	}
	if res.Score == 0 {
		t.Error("recovered scorer should score the new device")
	}
}

func TestAddReuseDetectionScore(t *testing.T) {
	base := Result{Score: 10, Reasons: []ReasonCode{ReasonNewCity}}
	got := AddReuseDetectionScore(base)
	if got.Score != 110 {
		t.Errorf("score: got %d, want 110", got.Score)
	}
	if !got.RequiresStepUp || !got.RequiresForceLogout {
		t.Error("reuse must force both gates")
	}
	if got.Reasons[len(got.Reasons)-1] != ReasonTokenReuse {
		t.Errorf("reasons: got %v", got.Reasons)
	}
	// Pure transform: the input is untouched.
	if base.Score != 10 || base.RequiresForceLogout {
		t.Errorf("input mutated: %+v", base)
	}
}
