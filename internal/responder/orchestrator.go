// Package responder turns an accepted inquiry into a delivered first reply
// and a recorded conversation.
package responder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dealerdesk_backend/internal/dealerships"
	"dealerdesk_backend/internal/email"
	"dealerdesk_backend/internal/leads"
	"dealerdesk_backend/platform/db"
	"dealerdesk_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Run statuses.
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Skip reasons.
const (
	ReasonManualLead      = "manual_lead"
	ReasonResponseOff     = "response_disabled"
	ReasonTestLead        = "test_lead"
	ReasonAlreadyRunning  = "already_running"
	ReasonNoEmail         = "no_email"
	DefaultResponseBudget = 90 * time.Second
)

// Step names, in execution order.
const (
	StepLoad     = "load"
	StepSkip     = "skip_check"
	StepGenerate = "generate"
	StepDeliver  = "deliver"
	StepRecord   = "record_conversation"
	StepUpdate   = "update_lead"
)

// Options tune one run.
type Options struct {
	SkipResponse bool
}

// StepTiming is the wall-clock cost of one step.
type StepTiming struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Result describes a run. Status is success whenever a reply was produced,
// regardless of delivery or bookkeeping failures.
type Result struct {
	Status         string        `json:"status"`
	Reason         string        `json:"reason,omitempty"`
	LeadID         uuid.UUID     `json:"lead_id"`
	ConversationID *uuid.UUID    `json:"conversation_id,omitempty"`
	EmailSent      bool          `json:"email_sent"`
	EmailID        string        `json:"email_id,omitempty"`
	EmailError     string        `json:"email_error,omitempty"`
	TokensUsed     int           `json:"tokens_used"`
	Model          string        `json:"model,omitempty"`
	Steps          []StepTiming  `json:"steps"`
	Duration       time.Duration `json:"duration"`
	Error          string        `json:"error,omitempty"`
}

// TenantReader resolves dealerships.
type TenantReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (dealerships.Dealership, error)
}

// Orchestrator runs the reply pipeline for one lead at a time.
type Orchestrator struct {
	pool          db.TxBeginner
	tenants       TenantReader
	leads         *leads.Repository
	conversations *ConversationRepository
	replies       *ReplyGenerator
	sender        email.Sender
	budget        time.Duration
	now           func() time.Time
	log           *logger.Logger

	activeRuns map[uuid.UUID]bool
	runsMu     sync.Mutex
}

func NewOrchestrator(pool db.TxBeginner, tenants TenantReader, leadRepo *leads.Repository, conversations *ConversationRepository, replies *ReplyGenerator, sender email.Sender, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		pool:          pool,
		tenants:       tenants,
		leads:         leadRepo,
		conversations: conversations,
		replies:       replies,
		sender:        sender,
		budget:        DefaultResponseBudget,
		now:           time.Now,
		log:           log,
		activeRuns:    make(map[uuid.UUID]bool),
	}
}

func (o *Orchestrator) markRunning(leadID uuid.UUID) bool {
	o.runsMu.Lock()
	defer o.runsMu.Unlock()
	if o.activeRuns[leadID] {
		return false
	}
	o.activeRuns[leadID] = true
	return true
}

func (o *Orchestrator) markComplete(leadID uuid.UUID) {
	o.runsMu.Lock()
	defer o.runsMu.Unlock()
	delete(o.activeRuns, leadID)
}

type run struct {
	result *Result
	log    *logger.Logger
}

func (r *run) step(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	timing := StepTiming{Name: name, Duration: elapsed}
	if err != nil {
		timing.Error = err.Error()
	}
	r.result.Steps = append(r.result.Steps, timing)
	r.log.PipelineStep(name, elapsed, err)
	return err
}

// Process runs skip check, generation, delivery, conversation recording and
// the lead update strictly in that order. Only a missing lead, a missing
// dealership or an empty reply make the run fail.
func (o *Orchestrator) Process(ctx context.Context, tenantID, leadID uuid.UUID, opts Options) (result Result) {
	started := time.Now()
	result = Result{LeadID: leadID}
	log := o.log.WithContext(ctx).WithTenant(tenantID.String()).WithLead(leadID.String())
	r := &run{result: &result, log: log}

	defer func() {
		result.Duration = time.Since(started)
		if result.Duration > o.budget {
			log.Warn("response exceeded time budget", "duration_ms", result.Duration.Milliseconds(), "budget_ms", o.budget.Milliseconds())
		}
		log.Info("lead response finished",
			"status", result.Status,
			"reason", result.Reason,
			"email_sent", result.EmailSent,
			"tokens_used", result.TokensUsed,
			"duration_ms", result.Duration.Milliseconds())
	}()

	if !o.markRunning(leadID) {
		result.Status = StatusSkipped
		result.Reason = ReasonAlreadyRunning
		return result
	}
	defer o.markComplete(leadID)

	var lead leads.Lead
	var tenant dealerships.Dealership
	err := r.step(StepLoad, func() error {
		var loadErr error
		tenant, loadErr = o.tenants.GetByID(ctx, tenantID)
		if loadErr != nil {
			return fmt.Errorf("load dealership: %w", loadErr)
		}
		return db.WithTenantScope(ctx, o.pool, tenantID, func(tx pgx.Tx) error {
			var getErr error
			lead, getErr = o.leads.GetByID(ctx, tx, leadID)
			if getErr != nil {
				return fmt.Errorf("load lead: %w", getErr)
			}
			return nil
		})
	})
	if err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
		return result
	}

	_ = r.step(StepSkip, func() error {
		result.Reason = skipReason(lead, opts)
		return nil
	})
	if result.Reason != "" {
		result.Status = StatusSkipped
		return result
	}

	var reply GeneratedReply
	err = r.step(StepGenerate, func() error {
		reply = o.replies.Generate(ctx, replyInput(lead, tenant))
		if reply.Err != nil {
			log.Warn("reply generation failed, using fallback template", "error", reply.Err)
		}
		if reply.Text == "" {
			return errors.New("no reply text produced")
		}
		return nil
	})
	result.Model = reply.Model
	result.TokensUsed = reply.TokensUsed
	if err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
		return result
	}

	_ = r.step(StepDeliver, func() error {
		if lead.CustomerEmail == nil || *lead.CustomerEmail == "" {
			result.EmailError = ReasonNoEmail
			return nil
		}
		id, sendErr := o.sender.SendReply(ctx, deliveryFor(lead, tenant, reply.Text))
		if sendErr != nil {
			result.EmailError = sendErr.Error()
			return sendErr
		}
		result.EmailSent = true
		result.EmailID = id
		return nil
	})

	_ = r.step(StepRecord, func() error {
		id, recErr := o.recordConversation(ctx, lead, reply)
		if recErr == nil {
			result.ConversationID = &id
		}
		return recErr
	})

	_ = r.step(StepUpdate, func() error {
		at := o.now().UTC()
		return db.WithTenantScope(ctx, o.pool, tenantID, func(tx pgx.Tx) error {
			return o.leads.MarkContacted(ctx, tx, lead.ID, at)
		})
	})

	result.Status = StatusSuccess
	return result
}

func skipReason(lead leads.Lead, opts Options) string {
	switch {
	case lead.Source == leads.SourceManual:
		return ReasonManualLead
	case opts.SkipResponse:
		return ReasonResponseOff
	case lead.IsTest():
		return ReasonTestLead
	default:
		return ""
	}
}

// recordConversation writes the customer's inquiry and the reply together and
// returns the reply's entry id.
func (o *Orchestrator) recordConversation(ctx context.Context, lead leads.Lead, reply GeneratedReply) (uuid.UUID, error) {
	sender := leads.Deref(lead.CustomerName)
	if sender == "" {
		sender = "Customer"
	}
	message := leads.Deref(lead.InitialMessage)
	if message == "" {
		message = "Initial inquiry"
	}

	inbound := &Entry{
		LeadID:     lead.ID,
		TenantID:   lead.TenantID,
		Channel:    lead.Source,
		Direction:  DirectionInbound,
		Sender:     sender,
		SenderType: SenderCustomer,
		Content:    message,
		Metadata:   map[string]any{"source": lead.Source},
	}
	outbound := &Entry{
		LeadID:     lead.ID,
		TenantID:   lead.TenantID,
		Channel:    leads.SourceEmail,
		Direction:  DirectionOutbound,
		Sender:     AssistantSender,
		SenderType: SenderAI,
		Content:    reply.Text,
		Metadata:   map[string]any{"automated": true, "ai_model": reply.Model},
	}

	err := db.WithTenantScope(ctx, o.pool, lead.TenantID, func(tx pgx.Tx) error {
		if err := o.conversations.Append(ctx, tx, inbound); err != nil {
			return fmt.Errorf("append inbound entry: %w", err)
		}
		if err := o.conversations.Append(ctx, tx, outbound); err != nil {
			return fmt.Errorf("append outbound entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return outbound.ID, nil
}

func replyInput(lead leads.Lead, tenant dealerships.Dealership) ReplyInput {
	return ReplyInput{
		CustomerName:    leads.Deref(lead.CustomerName),
		VehicleInterest: leads.Deref(lead.VehicleInterest),
		Message:         leads.Deref(lead.InitialMessage),
		DealershipName:  tenant.Name,
		DealershipPhone: leads.Deref(tenant.Phone),
		DealershipEmail: contactEmail(tenant),
	}
}

func deliveryFor(lead leads.Lead, tenant dealerships.Dealership, text string) email.Reply {
	return email.Reply{
		ToEmail:           leads.Deref(lead.CustomerEmail),
		CustomerName:      leads.Deref(lead.CustomerName),
		Subject:           email.ReplySubject(leads.Deref(lead.VehicleInterest)),
		ResponseText:      text,
		ReplyTo:           contactEmail(tenant),
		DealershipName:    tenant.Name,
		DealershipEmail:   contactEmail(tenant),
		DealershipPhone:   leads.Deref(tenant.Phone),
		DealershipAddress: leads.Deref(tenant.Address),
	}
}

func contactEmail(tenant dealerships.Dealership) string {
	if tenant.HasPlaceholderEmail() {
		return ""
	}
	return tenant.Email
}
