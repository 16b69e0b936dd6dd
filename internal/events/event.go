// Package events names what the intake channels announce: accepted leads,
// stored emails and lead-ads notifications. The scheduler bridge turns each
// into a queued task.
package events

import (
	"dealerdesk_backend/platform/events"

	"github.com/google/uuid"
)

// Aliases so domain code imports a single events package.
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Intake Domain Events
// =============================================================================

// LeadAccepted is published after an inquiry is durably created by any channel.
// SkipResponse marks inquiries that must not receive an automated reply.
type LeadAccepted struct {
	BaseEvent
	LeadID       uuid.UUID `json:"leadId"`
	TenantID     uuid.UUID `json:"tenantId"`
	Source       string    `json:"source"`
	SkipResponse bool      `json:"skipResponse"`
}

func (e LeadAccepted) EventName() string { return "leads.lead.accepted" }

// EmailReceived is published when the relay webhook persisted a new inbound email.
type EmailReceived struct {
	BaseEvent
	EmailID  uuid.UUID `json:"emailId"`
	TenantID uuid.UUID `json:"tenantId"`
}

func (e EmailReceived) EventName() string { return "inbound.email.received" }

// LeadAdReceived is published per verified `leadgen` change from the lead-ads platform.
type LeadAdReceived struct {
	BaseEvent
	LeadgenID string `json:"leadgenId"`
	PageID    string `json:"pageId"`
	FormID    string `json:"formId"`
}

func (e LeadAdReceived) EventName() string { return "leadads.lead.received" }
