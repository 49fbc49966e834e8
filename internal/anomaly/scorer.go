// Package anomaly scores login and refresh attempts from recent session history.
// Scoring is an enhancement, never a login-blocking dependency: any datastore
// error yields a safe, non-blocking default instead of failing the request.
package anomaly

import (
	"context"
	"log"
	"time"

	"authcore/backend/internal/authctx"
	"authcore/backend/internal/cache"
	sessiondomain "authcore/backend/internal/session/domain"
	sessionrepo "authcore/backend/internal/session/repository"
)

// ReasonCode names one contribution to a score.
type ReasonCode string

const (
	ReasonNewDevice    ReasonCode = "NEW_DEVICE"
	ReasonNewCountry   ReasonCode = "NEW_COUNTRY"
	ReasonNewCity      ReasonCode = "NEW_CITY"
	ReasonHighFanout   ReasonCode = "HIGH_SESSION_FANOUT"
	ReasonTokenReuse   ReasonCode = "TOKEN_REUSE_DETECTED"
	ReasonCheckSkipped ReasonCode = "ANOMALY_CHECK_SKIPPED"
)

// Score weights and thresholds. Two fixed thresholds gate behavior: 60 requires
// a step-up, 90 requires a forced logout.
const (
	scoreNewDevice  = 30
	scoreNewCountry = 25
	scoreNewCity    = 10
	scoreFanout     = 20
	scoreReuse      = 100

	stepUpThreshold      = 60
	forceLogoutThreshold = 90

	// scoreTimeout bounds the history read; on expiry the check is skipped.
	scoreTimeout = 2 * time.Second
)

// Result is the outcome of one scoring pass. It is transient and never persisted.
type Result struct {
	Score               int
	Reasons             []ReasonCode
	RequiresStepUp      bool
	RequiresForceLogout bool
	ActiveSessionCount  int
	LookbackDepth       int
	FromCache           bool
}

// HistoryRepo is the single batched read the scorer needs;
// the session repository implements it.
type HistoryRepo interface {
	LookbackByUser(ctx context.Context, tenantID, userID string, limit int) (*sessionrepo.Lookback, error)
}

// Observer counts cache hits and skipped checks; telemetry.Metrics implements it.
type Observer interface {
	AnomalyCacheHit(ctx context.Context)
	AnomalySkipped(ctx context.Context)
}

// Scorer computes risk scores with a short-TTL cache in front of the history read.
type Scorer struct {
	repo            HistoryRepo
	cache           *cache.TTLCache[Result]
	cacheTTL        time.Duration
	lookback        int
	fanoutThreshold int
	metrics         Observer
}

// NewScorer returns a Scorer. lookback is how many recent sessions feed the known
// sets; fanoutThreshold is the active-session count at which fan-out scores.
// metrics may be nil.
func NewScorer(repo HistoryRepo, c *cache.TTLCache[Result], cacheTTL time.Duration, lookback, fanoutThreshold int, metrics Observer) *Scorer {
	return &Scorer{
		repo:            repo,
		cache:           c,
		cacheTTL:        cacheTTL,
		lookback:        lookback,
		fanoutThreshold: fanoutThreshold,
		metrics:         metrics,
	}
}

// Score rates a login/refresh attempt. Results are cached per
// (principal, device, country, city) tuple to absorb bursty refresh traffic.
// Any datastore failure is swallowed: the default result blocks nothing.
func (s *Scorer) Score(ctx context.Context, sc authctx.Scope, deviceFingerprint, country, city string) Result {
	key := sc.TenantID + "|" + sc.UserID + "|" + deviceFingerprint + "|" + country + "|" + city
	if cached, ok := s.cache.Get(key); ok {
		cached.FromCache = true
		if s.metrics != nil {
			s.metrics.AnomalyCacheHit(ctx)
		}
		return cached
	}

	lookCtx, cancel := context.WithTimeout(ctx, scoreTimeout)
	defer cancel()
	lb, err := s.repo.LookbackByUser(lookCtx, sc.TenantID, sc.UserID, s.lookback)
	if err != nil {
		log.Printf("anomaly: lookback for user %s skipped: %v", sc.UserID, err)
		if s.metrics != nil {
			s.metrics.AnomalySkipped(ctx)
		}
		return Result{Reasons: []ReasonCode{ReasonCheckSkipped}}
	}

	knownDevices := knownSet(lb.Recent, func(s *sessiondomain.Session) string { return s.DeviceFingerprint })
	knownCountries := knownSet(lb.Recent, func(s *sessiondomain.Session) string { return s.Country })
	knownCities := knownSet(lb.Recent, func(s *sessiondomain.Session) string { return s.City })

	res := Result{
		ActiveSessionCount: lb.ActiveCount,
		LookbackDepth:      len(lb.Recent),
	}
	// An empty known set means no history at all; a first-ever login is not an
	// anomaly. Only a non-matching value against at least one prior member scores.
	if isNew(knownDevices, deviceFingerprint) {
		res.Score += scoreNewDevice
		res.Reasons = append(res.Reasons, ReasonNewDevice)
	}
	if isNew(knownCountries, country) {
		res.Score += scoreNewCountry
		res.Reasons = append(res.Reasons, ReasonNewCountry)
	}
	if isNew(knownCities, city) {
		res.Score += scoreNewCity
		res.Reasons = append(res.Reasons, ReasonNewCity)
	}
	if lb.ActiveCount >= s.fanoutThreshold {
		res.Score += scoreFanout
		res.Reasons = append(res.Reasons, ReasonHighFanout)
	}
	res.RequiresStepUp = res.Score >= stepUpThreshold
	res.RequiresForceLogout = res.Score >= forceLogoutThreshold

	s.cache.Set(key, res, s.cacheTTL)
	return res
}

// AddReuseDetectionScore folds a reuse event from the token chain store into a
// result. Pure transform: reuse always forces both the step-up and force-logout
// signals regardless of the base score.
func AddReuseDetectionScore(r Result) Result {
	r.Score += scoreReuse
	r.Reasons = append(r.Reasons, ReasonTokenReuse)
	r.RequiresStepUp = true
	r.RequiresForceLogout = true
	return r
}

func knownSet(sessions []*sessiondomain.Session, field func(*sessiondomain.Session) string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, s := range sessions {
		if v := field(s); v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

func isNew(known map[string]struct{}, value string) bool {
	if len(known) == 0 || value == "" {
		return false
	}
	_, ok := known[value]
	return !ok
}
