// Package domain holds the step-up verification model.
package domain

import "time"

// Purpose scopes a step-up verification to one sensitive operation. Verifying
// one purpose never satisfies another.
type Purpose string

const (
	PurposeForceLogout       Purpose = "force_logout"
	PurposeRevokeSession     Purpose = "revoke_session"
	PurposeChangeRole        Purpose = "change_role"
	PurposeChangePermissions Purpose = "change_permissions"
	PurposeImpersonate       Purpose = "impersonate"
	PurposeIPRuleChange      Purpose = "ip_rule_change"
	PurposeSSOConfig         Purpose = "sso_config"
	PurposeBillingChange     Purpose = "billing_change"
	PurposeDataExport        Purpose = "data_export"
	PurposeSecuritySettings  Purpose = "security_settings"
)

// IsValid reports whether p is one of the known purposes.
func (p Purpose) IsValid() bool {
	switch p {
	case PurposeForceLogout, PurposeRevokeSession, PurposeChangeRole,
		PurposeChangePermissions, PurposeImpersonate, PurposeIPRuleChange,
		PurposeSSOConfig, PurposeBillingChange, PurposeDataExport,
		PurposeSecuritySettings:
		return true
	}
	return false
}

// Challenge is one pending or completed step-up verification. ExpiresAt bounds
// how long the challenge accepts a code; how long a completed verification
// stays fresh is the caller's window, not a property of the row.
type Challenge struct {
	ID         string
	TenantID   string
	UserID     string
	Purpose    Purpose
	RequestIP  string
	VerifiedAt *time.Time
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// Secret is a principal's TOTP enrollment. Pending until ConfirmedAt is set.
type Secret struct {
	TenantID    string
	UserID      string
	Secret      string
	ConfirmedAt *time.Time
	CreatedAt   time.Time
}
