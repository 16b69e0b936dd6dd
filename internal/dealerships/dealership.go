// Package dealerships is the read side of the tenant table shared by the
// intake channels and the response pipeline. Provisioning writes live in
// internal/identity.
package dealerships

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PlaceholderDomain is the domain of generated contact addresses.
const PlaceholderDomain = "placeholder.norvalt.no"

// Dealership is a tenant.
type Dealership struct {
	ID                         uuid.UUID
	ClerkOrgID                 *string
	Name                       string
	Email                      string
	Phone                      *string
	Address                    *string
	EmailIntegrationEnabled    bool
	EmailForwardingAddress     *string
	FacebookIntegrationEnabled bool
	FacebookPageTokens         map[string]string
	CreatedAt                  time.Time
	UpdatedAt                  time.Time
}

// HasPlaceholderEmail reports whether the contact email was generated.
func (d Dealership) HasPlaceholderEmail() bool {
	return IsPlaceholderEmail(d.Email)
}

// PageToken returns the stored access token for a lead-ads page.
func (d Dealership) PageToken(pageID string) (string, bool) {
	token, ok := d.FacebookPageTokens[pageID]
	return token, ok && token != ""
}

// IsPlaceholderEmail reports whether email is a generated placeholder.
func IsPlaceholderEmail(email string) bool {
	return strings.HasSuffix(strings.ToLower(email), "@"+PlaceholderDomain)
}
