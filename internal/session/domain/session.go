// Package domain holds the session registry model.
package domain

import "time"

// RevokeReason is the closed set of ways a session is ended. It mirrors the
// refresh-token taxonomy and adds the two session-only causes.
type RevokeReason string

const (
	RevokeReasonExpired       RevokeReason = "expired"
	RevokeReasonRotated       RevokeReason = "rotated"
	RevokeReasonUserRequested RevokeReason = "user_requested"
	RevokeReasonAdminForced   RevokeReason = "admin_forced"
	RevokeReasonReuseDetected RevokeReason = "reuse_detected"
	RevokeReasonVersionBump   RevokeReason = "session_version_bump"
	RevokeReasonSecurityAlert RevokeReason = "security_alert"
)

// IsValid reports whether r is one of the known revoke reasons.
func (r RevokeReason) IsValid() bool {
	switch r {
	case RevokeReasonExpired, RevokeReasonRotated, RevokeReasonUserRequested,
		RevokeReasonAdminForced, RevokeReasonReuseDetected,
		RevokeReasonVersionBump, RevokeReasonSecurityAlert:
		return true
	}
	return false
}

// ValidationStatus is the outcome of a session validity check. VersionMismatch
// means the principal's credentials were globally invalidated since the session
// was minted; boundary middleware must treat it exactly like Revoked.
type ValidationStatus int

const (
	// StatusUnknown is the zero value, returned alongside an infrastructure
	// error. Callers must treat it as unauthenticated.
	StatusUnknown ValidationStatus = iota
	StatusValid
	StatusNotFound
	StatusRevoked
	StatusVersionMismatch
)

func (s ValidationStatus) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusNotFound:
		return "not_found"
	case StatusRevoked:
		return "revoked"
	case StatusVersionMismatch:
		return "version_mismatch"
	default:
		return "unknown"
	}
}

// Session is one row per logical device/login. SessionVersion is a snapshot of
// the principal's counter at creation; a session is valid only while unrevoked
// and while that snapshot still matches the live counter.
type Session struct {
	ID                string
	TenantID          string
	UserID            string
	StaffID           string // impersonating staff actor, empty otherwise
	SessionVersion    int64
	DeviceFingerprint string
	IPAddress         string
	Country           string
	City              string
	LastSeenAt        *time.Time
	IsCurrent         bool
	RevokedAt         *time.Time
	RevokedBy         string
	RevokeReason      RevokeReason // empty while active
	CreatedAt         time.Time
	ExpiresAt         time.Time
}

// Active reports whether the session is unrevoked and unexpired at now.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && s.ExpiresAt.After(now)
}
