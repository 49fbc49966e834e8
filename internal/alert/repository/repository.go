// Package repository defines persistence for security alerts.
package repository

import (
	"context"
	"time"

	"authcore/backend/internal/alert/domain"
)

// Repository defines persistence for security alerts.
type Repository interface {
	Create(ctx context.Context, a *domain.Alert) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Alert, error)
	ListByTenant(ctx context.Context, tenantID string, limit, offset int32) ([]*domain.Alert, error)
	Acknowledge(ctx context.Context, tenantID, id, by string, at time.Time) error
}
