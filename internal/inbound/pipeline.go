package inbound

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dealerdesk_backend/internal/events"
	"dealerdesk_backend/internal/leads"
	"dealerdesk_backend/platform/db"
	"dealerdesk_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Result statuses of one pipeline run.
const (
	ResultSkipped   = "skipped"
	ResultCompleted = "completed"
	ResultFailed    = "failed"
)

// ProcessResult summarizes one pipeline run.
type ProcessResult struct {
	EmailID        uuid.UUID
	Status         string
	Classification string
	LeadID         *uuid.UUID
}

// Pipeline takes a pending email through spam filtering, classification
// and, for sales inquiries, extraction into a lead.
type Pipeline struct {
	pool       db.TxBeginner
	repo       *Repository
	leads      *leads.Repository
	spam       SpamPolicy
	classifier *Classifier
	extractor  *Extractor
	bus        events.Bus
	now        func() time.Time
	log        *logger.Logger
}

func NewPipeline(pool db.TxBeginner, repo *Repository, leadRepo *leads.Repository, spam SpamPolicy, classifier *Classifier, extractor *Extractor, bus events.Bus, log *logger.Logger) *Pipeline {
	return &Pipeline{
		pool:       pool,
		repo:       repo,
		leads:      leadRepo,
		spam:       spam,
		classifier: classifier,
		extractor:  extractor,
		bus:        bus,
		now:        time.Now,
		log:        log,
	}
}

// Process runs the pipeline for one email. Emails that are not pending are
// skipped, so duplicate deliveries of the same task are harmless. A failure
// to create the lead is recorded on the email and is not returned as an error.
func (p *Pipeline) Process(ctx context.Context, tenantID, emailID uuid.UUID) (ProcessResult, error) {
	log := p.log.WithTenant(tenantID.String()).WithFields("email_id", emailID.String())
	result := ProcessResult{EmailID: emailID}

	var email Email
	start := time.Now()
	err := db.WithTenantScope(ctx, p.pool, tenantID, func(tx pgx.Tx) error {
		var err error
		email, err = p.repo.Claim(ctx, tx, emailID)
		return err
	})
	log.PipelineStep("claim", time.Since(start), err)
	if errors.Is(err, ErrNotClaimable) {
		result.Status = ResultSkipped
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("claim email: %w", err)
	}

	msg := email.Message()
	if spam, reason := p.spam.Check(msg); spam {
		verdict := Classification{Label: LabelSpam, Confidence: 1.0, Reasoning: reason}
		return p.complete(ctx, log, tenantID, result, verdict)
	}

	start = time.Now()
	verdict := p.classifier.Classify(ctx, msg)
	log.PipelineStep("classify", time.Since(start), nil)
	if verdict.Label != LabelSalesInquiry {
		return p.complete(ctx, log, tenantID, result, verdict)
	}

	start = time.Now()
	extraction := p.extractor.Extract(ctx, msg)
	log.PipelineStep("extract", time.Since(start), nil)

	start = time.Now()
	var lead leads.Lead
	err = db.WithTenantScope(ctx, p.pool, tenantID, func(tx pgx.Tx) error {
		var err error
		lead, err = p.leads.Create(ctx, tx, leads.CreateParams{
			TenantID: tenantID,
			Source:   leads.SourceEmail,
			SourceMetadata: map[string]any{
				"email_id":   email.ID.String(),
				"from_email": email.FromEmail,
				"subject":    email.Subject,
			},
			CustomerName:    extraction.CustomerName,
			CustomerEmail:   extraction.Email,
			CustomerPhone:   extraction.Phone,
			VehicleInterest: extraction.CarInterest,
			InitialMessage:  extraction.InquirySummary,
			Score:           extraction.Score(),
		})
		if err != nil {
			return err
		}
		return p.repo.Complete(ctx, tx, email.ID, verdict, extraction.Map(), &lead.ID, p.now())
	})
	log.PipelineStep("materialize", time.Since(start), err)
	if err != nil {
		return p.fail(ctx, log, tenantID, result, verdict, fmt.Sprintf("Failed to create lead: %v", err))
	}

	result.Status = ResultCompleted
	result.Classification = verdict.Label
	result.LeadID = &lead.ID
	log.WithLead(lead.ID.String()).Info("lead created from email")

	p.bus.Publish(ctx, events.LeadAccepted{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		TenantID:  tenantID,
		Source:    leads.SourceEmail,
	})
	return result, nil
}

func (p *Pipeline) complete(ctx context.Context, log *logger.Logger, tenantID uuid.UUID, result ProcessResult, verdict Classification) (ProcessResult, error) {
	err := db.WithTenantScope(ctx, p.pool, tenantID, func(tx pgx.Tx) error {
		return p.repo.Complete(ctx, tx, result.EmailID, verdict, nil, nil, p.now())
	})
	if err != nil {
		return p.fail(ctx, log, tenantID, result, verdict, fmt.Sprintf("Failed to record classification: %v", err))
	}

	log.Info("email classified", "classification", verdict.Label, "confidence", verdict.Confidence)
	result.Status = ResultCompleted
	result.Classification = verdict.Label
	return result, nil
}

func (p *Pipeline) fail(ctx context.Context, log *logger.Logger, tenantID uuid.UUID, result ProcessResult, verdict Classification, reason string) (ProcessResult, error) {
	log.Error("email processing failed", "reason", reason)
	err := db.WithTenantScope(ctx, p.pool, tenantID, func(tx pgx.Tx) error {
		return p.repo.MarkFailed(ctx, tx, result.EmailID, &verdict, reason, p.now())
	})
	if err != nil {
		return result, fmt.Errorf("mark email failed: %w", err)
	}
	result.Status = ResultFailed
	result.Classification = verdict.Label
	return result, nil
}
