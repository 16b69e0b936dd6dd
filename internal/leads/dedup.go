package leads

import (
	"fmt"
	"time"
)

// Policy names accepted by NewDedupPolicy.
const (
	PolicyResubmit = "resubmit"
	PolicyAppend   = "append"
)

// AppendSeparator precedes each follow-up message appended by AppendPolicy.
const AppendSeparator = "\n\n---\nNy henvendelse:\n"

// Submission is a normalized website-form inquiry.
type Submission struct {
	Name            string
	Email           string
	Phone           *string
	VehicleInterest *string
	Message         string
	SourceURL       *string
}

// DedupPolicy decides how a repeated submission for the same customer email
// is folded into an existing lead. A deployment runs exactly one policy.
type DedupPolicy interface {
	Name() string
	// Window is how far back an existing lead counts as a duplicate.
	Window() time.Duration
	// Score is the priority given to newly created leads.
	Score() int
	// Merge returns existing updated with sub.
	Merge(existing Lead, sub Submission) Lead
}

// ResubmitPolicy treats a submission within five minutes as a resubmission of
// the same form and overwrites the stored fields.
type ResubmitPolicy struct{}

func (ResubmitPolicy) Name() string          { return PolicyResubmit }
func (ResubmitPolicy) Window() time.Duration { return 5 * time.Minute }
func (ResubmitPolicy) Score() int            { return 50 }

func (ResubmitPolicy) Merge(existing Lead, sub Submission) Lead {
	name, message := sub.Name, sub.Message
	existing.CustomerName = &name
	existing.CustomerPhone = sub.Phone
	existing.VehicleInterest = sub.VehicleInterest
	existing.InitialMessage = &message
	existing.SourceURL = sub.SourceURL
	return existing
}

// AppendPolicy treats a submission within 24 hours as a follow-up and appends
// its message to the existing lead.
type AppendPolicy struct{}

func (AppendPolicy) Name() string          { return PolicyAppend }
func (AppendPolicy) Window() time.Duration { return 24 * time.Hour }
func (AppendPolicy) Score() int            { return 60 }

func (AppendPolicy) Merge(existing Lead, sub Submission) Lead {
	message := sub.Message
	if prev := Deref(existing.InitialMessage); prev != "" {
		message = prev + AppendSeparator + sub.Message
	}
	existing.InitialMessage = &message
	if sub.SourceURL != nil {
		existing.SourceURL = sub.SourceURL
	}
	return existing
}

// NewDedupPolicy returns the policy registered under name. An empty name
// selects the resubmit policy.
func NewDedupPolicy(name string) (DedupPolicy, error) {
	switch name {
	case "", PolicyResubmit:
		return ResubmitPolicy{}, nil
	case PolicyAppend:
		return AppendPolicy{}, nil
	}
	return nil, fmt.Errorf("unknown dedup policy %q", name)
}
