package leads

import (
	"context"
	"errors"
	"strings"
	"time"

	"dealerdesk_backend/internal/dealerships"
	"dealerdesk_backend/internal/events"
	"dealerdesk_backend/platform/apperr"
	"dealerdesk_backend/platform/db"
	"dealerdesk_backend/platform/logger"
	"dealerdesk_backend/platform/phone"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Outcome statuses of a form submission.
const (
	OutcomeCreated = "created"
	OutcomeUpdated = "updated"
)

// TenantReader resolves dealerships.
type TenantReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (dealerships.Dealership, error)
}

// Outcome is returned to the form caller.
type Outcome struct {
	LeadID uuid.UUID `json:"lead_id"`
	Status string    `json:"status"`
}

// FormService runs the website-form channel: tenant check, dedup gate, persist.
type FormService struct {
	pool    db.TxBeginner
	tenants TenantReader
	repo    *Repository
	policy  DedupPolicy
	lock    *DedupLock
	bus     events.Bus
	region  string
	now     func() time.Time
	log     *logger.Logger
}

// NewFormService wires the form channel. lock may be nil.
func NewFormService(pool db.TxBeginner, tenants TenantReader, repo *Repository, policy DedupPolicy, lock *DedupLock, bus events.Bus, phoneRegion string, log *logger.Logger) *FormService {
	return &FormService{
		pool:    pool,
		tenants: tenants,
		repo:    repo,
		policy:  policy,
		lock:    lock,
		bus:     bus,
		region:  phoneRegion,
		now:     time.Now,
		log:     log,
	}
}

// Submit stores a form inquiry. A lead for the same email inside the policy
// window is merged instead of duplicated. New leads are announced with
// LeadAccepted once committed.
func (s *FormService) Submit(ctx context.Context, tenantID uuid.UUID, sub Submission) (Outcome, error) {
	if _, err := s.tenants.GetByID(ctx, tenantID); err != nil {
		if errors.Is(err, dealerships.ErrNotFound) {
			return Outcome{}, apperr.NotFound("dealership not found")
		}
		return Outcome{}, apperr.FromStore("leads.form.tenant", err)
	}

	sub = s.normalize(sub)

	release := s.lock.Acquire(ctx, tenantID, sub.Email)
	defer release()

	var outcome Outcome
	err := db.WithTenantScope(ctx, s.pool, tenantID, func(tx pgx.Tx) error {
		existing, err := s.repo.FindRecentByEmail(ctx, tx, tenantID, sub.Email, s.now().Add(-s.policy.Window()))
		switch {
		case err == nil:
			merged := s.policy.Merge(existing, sub)
			if err := s.repo.UpdateIntake(ctx, tx, merged); err != nil {
				return err
			}
			outcome = Outcome{LeadID: existing.ID, Status: OutcomeUpdated}
			return nil
		case !errors.Is(err, ErrNotFound):
			return err
		}

		name, email, message := sub.Name, sub.Email, sub.Message
		lead, err := s.repo.Create(ctx, tx, CreateParams{
			TenantID:        tenantID,
			Source:          SourceWebsite,
			SourceURL:       sub.SourceURL,
			SourceMetadata:  map[string]any{"form_version": "1.0", "dedup_policy": s.policy.Name()},
			CustomerName:    &name,
			CustomerEmail:   &email,
			CustomerPhone:   sub.Phone,
			VehicleInterest: sub.VehicleInterest,
			InitialMessage:  &message,
			Score:           s.policy.Score(),
		})
		if err != nil {
			return err
		}
		outcome = Outcome{LeadID: lead.ID, Status: OutcomeCreated}
		return nil
	})
	if err != nil {
		s.log.WithTenant(tenantID.String()).Error("form submission failed", "error", err)
		return Outcome{}, apperr.Wrap(apperr.KindInternal, "failed to process form submission", err)
	}

	log := s.log.WithTenant(tenantID.String()).WithLead(outcome.LeadID.String())
	if outcome.Status == OutcomeUpdated {
		log.Info("form resubmission merged", "policy", s.policy.Name())
		return outcome, nil
	}

	log.Info("lead created from website form")
	s.bus.Publish(ctx, events.LeadAccepted{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    outcome.LeadID,
		TenantID:  tenantID,
		Source:    SourceWebsite,
	})
	return outcome, nil
}

func (s *FormService) normalize(sub Submission) Submission {
	sub.Name = strings.TrimSpace(sub.Name)
	sub.Email = strings.TrimSpace(sub.Email)
	sub.Message = strings.TrimSpace(sub.Message)
	if sub.Phone != nil {
		sub.Phone = OptionalString(phone.NormalizeE164(*sub.Phone, s.region))
	}
	return sub
}
