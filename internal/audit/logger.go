// Package audit writes the attributable trail for the security engine. Writes are
// best-effort: a failed audit insert is logged and never fails the caller, but the
// engine always attempts one for every revocation, expiration, and deletion.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"authcore/backend/internal/audit/domain"
	auditrepo "authcore/backend/internal/audit/repository"
)

// SentinelTenantID is the tenant_id used for audit events with no tenant scope
// (e.g. cross-tenant retention sweeps).
const SentinelTenantID = "_system"

// IPExtractor returns the client IP from the request context. The surrounding
// process installs one matched to its transport; nil records "unknown".
type IPExtractor func(context.Context) string

// Logger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type Logger interface {
	LogEvent(ctx context.Context, tenantID, userID, action, resource, metadata string)
}

// RepoLogger implements Logger using the audit repository and an optional IP extractor.
type RepoLogger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
}

// NewLogger returns a Logger that persists to repo and uses ipExtractor for client IP.
// ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor) *RepoLogger {
	return &RepoLogger{repo: repo, ipExtractor: ipExtractor}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *RepoLogger) LogEvent(ctx context.Context, tenantID, userID, action, resource, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	if tenantID == "" {
		tenantID = SentinelTenantID
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to log event %s/%s: %v", action, resource, err)
	}
}
