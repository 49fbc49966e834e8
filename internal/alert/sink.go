// Package alert raises security alerts: one persisted row per event, optionally
// mirrored to Kafka for operator tooling. Raising is best-effort and never fails
// the security-critical caller; the triggering action (family revocation, forced
// logout) has already been taken by the time an alert is raised.
package alert

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"authcore/backend/internal/alert/domain"
	alertrepo "authcore/backend/internal/alert/repository"
)

// Publisher mirrors alerts to an external sink (e.g. Kafka). May be nil.
type Publisher interface {
	Publish(ctx context.Context, a *domain.Alert) error
}

// Raiser writes a security alert. The engine's token and session paths hold this
// narrow interface rather than the concrete sink.
type Raiser interface {
	Raise(ctx context.Context, tenantID, userID string, kind domain.Kind, severity domain.Severity, message, metadata string)
}

// Sink implements Raiser over the alert repository and an optional publisher.
type Sink struct {
	repo      alertrepo.Repository
	publisher Publisher
	nowF      func() time.Time
}

// NewSink returns a Sink that persists to repo and mirrors to publisher.
// publisher may be nil; then alerts are only persisted.
func NewSink(repo alertrepo.Repository, publisher Publisher) *Sink {
	return &Sink{
		repo:      repo,
		publisher: publisher,
		nowF:      func() time.Time { return time.Now().UTC() },
	}
}

// Raise writes one alert. Best-effort: errors are logged and not returned.
func (s *Sink) Raise(ctx context.Context, tenantID, userID string, kind domain.Kind, severity domain.Severity, message, metadata string) {
	if s == nil || s.repo == nil {
		return
	}
	a := &domain.Alert{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		UserID:    userID,
		Kind:      kind,
		Severity:  severity,
		Message:   message,
		Metadata:  metadata,
		CreatedAt: s.nowF(),
	}
	if err := s.repo.Create(ctx, a); err != nil {
		log.Printf("alert: failed to persist %s alert: %v", kind, err)
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, a); err != nil {
			log.Printf("alert: failed to publish %s alert: %v", kind, err)
		}
	}
}
