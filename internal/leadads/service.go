package leadads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dealerdesk_backend/internal/dealerships"
	"dealerdesk_backend/internal/events"
	"dealerdesk_backend/internal/leads"
	"dealerdesk_backend/platform/db"
	"dealerdesk_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Score given to every lead-ads inquiry.
const LeadScore = 60

// Fetch outcomes.
const (
	FetchCreated     = "created"
	FetchDuplicate   = "duplicate"
	FetchUnknownPage = "unknown_page"
)

// Notification identifies one `leadgen` change.
type Notification struct {
	LeadgenID string `json:"leadgen_id"`
	PageID    string `json:"page_id"`
	FormID    string `json:"form_id"`
}

// FetchResult reports what a fetch did.
type FetchResult struct {
	Status   string
	LeadID   uuid.UUID
	TenantID uuid.UUID
	IsTest   bool
}

// PageResolver finds the dealership that connected a page.
type PageResolver interface {
	GetByFacebookPage(ctx context.Context, pageID string) (dealerships.Dealership, error)
}

// FetchService turns a notification into a stored lead.
type FetchService struct {
	pool    db.TxBeginner
	tenants PageResolver
	repo    *leads.Repository
	graph   LeadFetcher
	bus     events.Bus
	region  string
	now     func() time.Time
	log     *logger.Logger
}

func NewFetchService(pool db.TxBeginner, tenants PageResolver, repo *leads.Repository, graph LeadFetcher, bus events.Bus, phoneRegion string, log *logger.Logger) *FetchService {
	return &FetchService{
		pool:    pool,
		tenants: tenants,
		repo:    repo,
		graph:   graph,
		bus:     bus,
		region:  phoneRegion,
		now:     time.Now,
		log:     log,
	}
}

// Fetch resolves the tenant by page, skips known lead ids, pulls the form
// from the Graph API and creates the lead. Pages nobody connected are
// dropped without error. Graph errors are returned as-is so the caller can
// decide on retries with Retryable.
func (s *FetchService) Fetch(ctx context.Context, n Notification) (FetchResult, error) {
	log := s.log.WithContext(ctx).WithFields("leadgen_id", n.LeadgenID, "page_id", n.PageID)
	if n.LeadgenID == "" {
		return FetchResult{}, errors.New("leadgen id is required")
	}

	tenant, err := s.tenants.GetByFacebookPage(ctx, n.PageID)
	if errors.Is(err, dealerships.ErrNotFound) {
		log.Warn("lead-ads page is not connected to any dealership")
		return FetchResult{Status: FetchUnknownPage}, nil
	}
	if err != nil {
		return FetchResult{}, fmt.Errorf("resolve page: %w", err)
	}
	result := FetchResult{TenantID: tenant.ID}
	log = log.WithTenant(tenant.ID.String())

	token, ok := tenant.PageToken(n.PageID)
	if !ok {
		return result, fmt.Errorf("%w: no access token stored for page %s", ErrAuth, n.PageID)
	}

	var known bool
	err = db.WithTenantScope(ctx, s.pool, tenant.ID, func(tx pgx.Tx) error {
		var existsErr error
		known, existsErr = s.repo.ExistsByFacebookLeadID(ctx, tx, n.LeadgenID)
		return existsErr
	})
	if err != nil {
		return result, fmt.Errorf("check duplicate: %w", err)
	}
	if known {
		log.Info("lead-ads lead already imported")
		result.Status = FetchDuplicate
		return result, nil
	}

	start := time.Now()
	data, err := s.graph.GetLead(ctx, n.LeadgenID, token)
	log.PipelineStep("graph_fetch", time.Since(start), err)
	if err != nil {
		return result, err
	}

	mapped := MapFields(data.FieldData, s.region)
	params := leads.CreateParams{
		TenantID: tenant.ID,
		Source:   leads.SourceFacebook,
		SourceMetadata: map[string]any{
			"facebook_lead_id": n.LeadgenID,
			"page_id":          n.PageID,
			"form_id":          n.FormID,
			"created_time":     data.CreatedAt(s.now()).Format(time.RFC3339),
			"is_test":          data.IsTest,
			"field_data":       data.FieldData,
		},
		CustomerName:    mapped.CustomerName,
		CustomerEmail:   mapped.CustomerEmail,
		CustomerPhone:   mapped.CustomerPhone,
		VehicleInterest: mapped.VehicleInterest,
		InitialMessage:  mapped.InitialMessage,
		Score:           LeadScore,
	}

	var lead leads.Lead
	err = db.WithTenantScope(ctx, s.pool, tenant.ID, func(tx pgx.Tx) error {
		// a concurrent delivery of the same lead may have won while we fetched
		exists, existsErr := s.repo.ExistsByFacebookLeadID(ctx, tx, n.LeadgenID)
		if existsErr != nil {
			return existsErr
		}
		if exists {
			return nil
		}
		var createErr error
		lead, createErr = s.repo.Create(ctx, tx, params)
		return createErr
	})
	if err != nil {
		log.DatabaseError("leadads.create", err)
		return result, fmt.Errorf("create lead: %w", err)
	}
	if lead.ID == uuid.Nil {
		result.Status = FetchDuplicate
		return result, nil
	}

	result.Status = FetchCreated
	result.LeadID = lead.ID
	result.IsTest = data.IsTest
	log.Info("lead-ads lead created", "lead_id", lead.ID, "is_test", data.IsTest)

	s.bus.Publish(ctx, events.LeadAccepted{
		BaseEvent:    events.NewBaseEvent(),
		LeadID:       lead.ID,
		TenantID:     tenant.ID,
		Source:       leads.SourceFacebook,
		SkipResponse: data.IsTest,
	})
	return result, nil
}
