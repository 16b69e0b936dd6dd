package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"dealerdesk_backend/platform/apperr"
)

// Event types recognized from the identity provider.
const (
	TypeOrganizationCreated = "organization.created"
	TypeMembershipCreated   = "organizationMembership.created"
	TypeUserDeleted         = "user.deleted"
	TypeMembershipDeleted   = "organizationMembership.deleted"
)

// ErrUnhandledEvent marks an event type the resolver ignores.
var ErrUnhandledEvent = errors.New("unhandled identity event")

// Envelope is the signed webhook body.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Event is one of the provisioning variants below.
type Event interface {
	EventType() string
}

// OrganizationCreated ensures a dealership exists.
type OrganizationCreated struct {
	OrgID        string
	Name         string
	ContactEmail string
}

// MembershipCreated ensures a dealership and its member exist.
type MembershipCreated struct {
	OrgID   string
	OrgName string
	Role    string
	User    PublicUser
}

// UserDeleted removes a principal everywhere.
type UserDeleted struct {
	UserID string
}

// MembershipDeleted removes a principal from one dealership.
type MembershipDeleted struct {
	OrgID  string
	UserID string
}

func (OrganizationCreated) EventType() string { return TypeOrganizationCreated }
func (MembershipCreated) EventType() string   { return TypeMembershipCreated }
func (UserDeleted) EventType() string         { return TypeUserDeleted }
func (MembershipDeleted) EventType() string   { return TypeMembershipDeleted }

// PublicUser is the member snapshot carried by membership events.
type PublicUser struct {
	UserID         string         `json:"user_id"`
	Identifier     string         `json:"identifier"`
	FirstName      string         `json:"first_name"`
	LastName       string         `json:"last_name"`
	EmailAddresses []EmailAddress `json:"email_addresses"`
}

// EmailAddress is one address on a provider user.
type EmailAddress struct {
	EmailAddress string `json:"email_address"`
	Verification struct {
		Status string `json:"status"`
	} `json:"verification"`
}

// FullName joins first and last name.
func (u PublicUser) FullName() string {
	return strings.TrimSpace(strings.Join([]string{strings.TrimSpace(u.FirstName), strings.TrimSpace(u.LastName)}, " "))
}

type orgRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type organizationData struct {
	ID                         string `json:"id"`
	Name                       string `json:"name"`
	Slug                       string `json:"slug"`
	PrimaryContactEmailAddress string `json:"primary_contact_email_address"`
}

type membershipData struct {
	Organization   orgRef     `json:"organization"`
	PublicUserData PublicUser `json:"public_user_data"`
	Role           string     `json:"role"`
}

type userData struct {
	ID string `json:"id"`
}

// ParseEvent decodes the envelope into its variant. Unknown types return
// ErrUnhandledEvent; missing identifiers return a validation error.
func ParseEvent(env Envelope) (Event, error) {
	switch env.Type {
	case TypeOrganizationCreated:
		var d organizationData
		if err := decodeData(env.Data, &d); err != nil {
			return nil, err
		}
		if d.ID == "" {
			return nil, apperr.Validation("missing organization ID")
		}
		contact := d.PrimaryContactEmailAddress
		if contact == "" {
			contact = d.Slug
		}
		return OrganizationCreated{OrgID: d.ID, Name: d.Name, ContactEmail: contact}, nil

	case TypeMembershipCreated, TypeMembershipDeleted:
		var d membershipData
		if err := decodeData(env.Data, &d); err != nil {
			return nil, err
		}
		if d.Organization.ID == "" {
			return nil, apperr.Validation("missing organization ID")
		}
		if d.PublicUserData.UserID == "" {
			return nil, apperr.Validation("missing user ID")
		}
		if env.Type == TypeMembershipDeleted {
			return MembershipDeleted{OrgID: d.Organization.ID, UserID: d.PublicUserData.UserID}, nil
		}
		return MembershipCreated{
			OrgID:   d.Organization.ID,
			OrgName: d.Organization.Name,
			Role:    d.Role,
			User:    d.PublicUserData,
		}, nil

	case TypeUserDeleted:
		var d userData
		if err := decodeData(env.Data, &d); err != nil {
			return nil, err
		}
		if d.ID == "" {
			return nil, apperr.Validation("missing user ID")
		}
		return UserDeleted{UserID: d.ID}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnhandledEvent, env.Type)
}

func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return apperr.Validation("missing event data")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperr.Wrap(apperr.KindValidation, "malformed event data", err)
	}
	return nil
}
