package identity

import (
	"strings"

	"dealerdesk_backend/internal/dealerships"
	"dealerdesk_backend/platform/validator"
)

const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleSalesRep = "sales_rep"

	unnamedDealership = "Unnamed Dealership"
	unknownEmail      = "unknown@" + dealerships.PlaceholderDomain
)

// tenantEmail returns email when valid, otherwise a placeholder derived
// from the organization ID.
func tenantEmail(email, orgID string) string {
	if validator.IsEmail(email) {
		return email
	}
	if orgID == "" {
		return unknownEmail
	}
	slug := strings.ToLower(strings.ReplaceAll(orgID, "org_", ""))
	return "org-" + truncate(slug, 20) + "@" + dealerships.PlaceholderDomain
}

// principalEmail returns email when valid, otherwise a placeholder derived
// from the external user ID.
func principalEmail(email, userID string) string {
	if validator.IsEmail(email) {
		return email
	}
	if userID == "" {
		return unknownEmail
	}
	return "user-" + truncate(userID, 20) + "@" + dealerships.PlaceholderDomain
}

// memberEmail picks identifier, then the first verified address, then the first address.
func memberEmail(u PublicUser) string {
	if validator.IsEmail(u.Identifier) {
		return u.Identifier
	}
	for _, addr := range u.EmailAddresses {
		if addr.Verification.Status == "verified" && addr.EmailAddress != "" {
			return addr.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 && u.EmailAddresses[0].EmailAddress != "" {
		return u.EmailAddresses[0].EmailAddress
	}
	return u.Identifier
}

// determineRole maps the provider's role claim. A new dealership's first
// member and the first member of an empty dealership are always admin.
func determineRole(claim string, createdTenant bool, otherPrincipals int) string {
	if createdTenant {
		return RoleAdmin
	}
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(claim)), "org:") {
	case "admin", "owner":
		return RoleAdmin
	case "manager":
		return RoleManager
	}
	if otherPrincipals == 0 {
		return RoleAdmin
	}
	return RoleSalesRep
}

func displayName(u PublicUser, email string) *string {
	if name := u.FullName(); name != "" {
		return &name
	}
	if validator.IsEmail(email) && !dealerships.IsPlaceholderEmail(email) {
		local := email[:strings.Index(email, "@")]
		return &local
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
