// Package inbound is the email intake channel: the relay webhook that stores
// forwarded emails, and the background pipeline that filters, classifies and
// turns sales inquiries into leads.
package inbound

import (
	"time"

	"github.com/google/uuid"
)

// Processing statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Classification labels.
const (
	LabelSalesInquiry = "sales_inquiry"
	LabelSpam         = "spam"
	LabelOther        = "other"
	LabelUncertain    = "uncertain"
)

// Urgency levels reported by extraction.
const (
	UrgencyHigh   = "high"
	UrgencyMedium = "medium"
	UrgencyLow    = "low"
)

// Email is a stored inbound email.
type Email struct {
	ID                       uuid.UUID
	TenantID                 uuid.UUID
	MessageID                string
	FromEmail                string
	FromName                 *string
	ToEmail                  string
	Subject                  *string
	BodyText                 *string
	BodyHTML                 *string
	RawHeaders               map[string]any
	Attachments              []Attachment
	ProcessingStatus         string
	Classification           *string
	ClassificationConfidence *float32
	ClassificationReasoning  *string
	ExtractedData            map[string]any
	ErrorMessage             *string
	RetryCount               int
	ReceivedAt               time.Time
	ProcessedAt              *time.Time
	LeadID                   *uuid.UUID
}

// Attachment describes an archived relay attachment. Key is empty when the
// file could not be archived.
type Attachment struct {
	FileName    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Key         string `json:"key,omitempty"`
}

// Message is the content the spam policy and the model look at.
type Message struct {
	FromEmail string
	FromName  string
	ToEmail   string
	Subject   string
	BodyText  string
	BodyHTML  string
}

// Message returns the filterable view of e.
func (e Email) Message() Message {
	return Message{
		FromEmail: e.FromEmail,
		FromName:  deref(e.FromName),
		ToEmail:   e.ToEmail,
		Subject:   deref(e.Subject),
		BodyText:  deref(e.BodyText),
		BodyHTML:  deref(e.BodyHTML),
	}
}

// Body returns the text body, falling back to the HTML body.
func (m Message) Body() string {
	if m.BodyText != "" {
		return m.BodyText
	}
	return m.BodyHTML
}

// Classification is the outcome of the spam policy or the model.
type Classification struct {
	Label      string  `json:"classification"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Extraction is the lead data pulled from a sales inquiry.
type Extraction struct {
	CustomerName   *string `json:"customer_name"`
	Email          *string `json:"email"`
	Phone          *string `json:"phone"`
	CarInterest    *string `json:"car_interest"`
	InquirySummary *string `json:"inquiry_summary"`
	Urgency        string  `json:"urgency"`
	Source         *string `json:"source"`
}

// Score maps urgency to the initial lead score.
func (x Extraction) Score() int {
	switch x.Urgency {
	case UrgencyHigh:
		return 70
	case UrgencyMedium:
		return 60
	default:
		return 50
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Map returns the extraction as stored in extracted_data.
func (x Extraction) Map() map[string]any {
	return map[string]any{
		"customer_name":   x.CustomerName,
		"email":           x.Email,
		"phone":           x.Phone,
		"car_interest":    x.CarInterest,
		"inquiry_summary": x.InquirySummary,
		"urgency":         x.Urgency,
		"source":          x.Source,
	}
}
