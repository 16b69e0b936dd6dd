// Package leads holds the inquiry model shared by every intake channel, its
// store, and the website-form channel with its deduplication gate.
package leads

import (
	"strings"
	"time"

	"dealerdesk_backend/platform/validator"

	"github.com/google/uuid"
)

// Channels an inquiry can originate from.
const (
	SourceWebsite  = "website"
	SourceEmail    = "email"
	SourceFacebook = "facebook"
	SourceManual   = "manual"
)

// Lifecycle statuses.
const (
	StatusNew       = "new"
	StatusContacted = "contacted"
	StatusQualified = "qualified"
	StatusWon       = "won"
	StatusLost      = "lost"
)

// Lead is a customer inquiry owned by one dealership.
type Lead struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	AssignedTo      *uuid.UUID
	Source          string
	SourceURL       *string
	SourceMetadata  map[string]any
	Status          string
	CustomerName    *string
	CustomerEmail   *string
	CustomerPhone   *string
	VehicleInterest *string
	InitialMessage  *string
	Score           int
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastContactAt   *time.Time
	ConvertedAt     *time.Time
}

// IsTest reports whether the channel flagged this inquiry as a platform test lead.
func (l Lead) IsTest() bool {
	v, _ := l.SourceMetadata["is_test"].(bool)
	return v
}

// CreateParams describes a new inquiry.
type CreateParams struct {
	TenantID        uuid.UUID
	Source          string
	SourceURL       *string
	SourceMetadata  map[string]any
	CustomerName    *string
	CustomerEmail   *string
	CustomerPhone   *string
	VehicleInterest *string
	InitialMessage  *string
	Score           int
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// OptionalString returns nil for blank strings.
func OptionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Column sizes of the leads table.
const (
	MaxNameLength    = 255
	MaxEmailLength   = 255
	MaxPhoneLength   = 50
	MaxVehicleLength = 255
)

// Clip cuts s to at most limit characters.
func Clip(s *string, limit int) *string {
	if s == nil {
		return nil
	}
	runes := []rune(*s)
	if len(runes) <= limit {
		return s
	}
	clipped := strings.TrimSpace(string(runes[:limit]))
	return &clipped
}

// ValidEmail returns s when the store would accept it as a customer email.
func ValidEmail(s *string) *string {
	if s == nil || len(*s) > MaxEmailLength || !validator.IsEmail(*s) {
		return nil
	}
	return s
}

// fitColumns clips free text to the column sizes so channel data never
// fails the insert.
func (p CreateParams) fitColumns() CreateParams {
	p.CustomerName = Clip(p.CustomerName, MaxNameLength)
	p.CustomerPhone = Clip(p.CustomerPhone, MaxPhoneLength)
	p.VehicleInterest = Clip(p.VehicleInterest, MaxVehicleLength)
	return p
}
