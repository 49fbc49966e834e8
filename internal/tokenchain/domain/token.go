// Package domain holds the refresh-token chain model.
package domain

import "time"

// RevokeReason is the closed set of ways a chain link leaves the active state.
// A token transitions out of active exactly once.
type RevokeReason string

const (
	RevokeReasonExpired       RevokeReason = "expired"
	RevokeReasonRotated       RevokeReason = "rotated"
	RevokeReasonUserRequested RevokeReason = "user_requested"
	RevokeReasonAdminForced   RevokeReason = "admin_forced"
	RevokeReasonReuseDetected RevokeReason = "reuse_detected"
)

// IsValid reports whether r is one of the known revoke reasons.
func (r RevokeReason) IsValid() bool {
	switch r {
	case RevokeReasonExpired, RevokeReasonRotated, RevokeReasonUserRequested,
		RevokeReasonAdminForced, RevokeReasonReuseDetected:
		return true
	}
	return false
}

// RefreshToken is one link of a rotation chain. FamilyID is shared by every token
// descended from one login; ParentID is the link this one replaced (nil for the root).
// Only the SHA-256 hash of the secret is stored.
type RefreshToken struct {
	ID                string
	TenantID          string
	UserID            string
	StaffID           string // impersonating staff actor, empty otherwise
	FamilyID          string
	ParentID          *string
	SecretHash        string
	DeviceFingerprint string
	IssuedAt          time.Time
	ExpiresAt         time.Time
	IsRevoked         bool
	RevokedAt         *time.Time
	RevokeReason      RevokeReason // empty while active
	SuspiciousReuseAt *time.Time   // set exactly once, never cleared
	CreatedAt         time.Time
}

// Expired reports whether the token's own lifetime has passed at now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}
