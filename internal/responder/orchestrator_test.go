package responder

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dealerdesk_backend/internal/dealerships"
	"dealerdesk_backend/internal/email"
	"dealerdesk_backend/internal/leads"
	"dealerdesk_backend/internal/textgen"
	"dealerdesk_backend/platform/db"
	"dealerdesk_backend/platform/logger"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	mu       sync.Mutex
	text     string
	err      error
	requests []textgen.Request
}

func (g *stubGenerator) Complete(_ context.Context, req textgen.Request) (textgen.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return textgen.Response{}, g.err
	}
	return textgen.Response{Text: g.text, TokensUsed: 321, Model: "test-model"}, nil
}

type recordingSender struct {
	sent []email.Reply
	err  error
}

func (s *recordingSender) SendReply(_ context.Context, r email.Reply) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, r)
	return "msg-1", nil
}

func (s *recordingSender) Provider() string { return "test" }

type stubTenants map[uuid.UUID]dealerships.Dealership

func (s stubTenants) GetByID(_ context.Context, id uuid.UUID) (dealerships.Dealership, error) {
	d, ok := s[id]
	if !ok {
		return dealerships.Dealership{}, dealerships.ErrNotFound
	}
	return d, nil
}

var leadRowColumns = []string{
	"id", "dealership_id", "assigned_to", "source", "source_url", "source_metadata", "status",
	"customer_name", "customer_email", "customer_phone", "vehicle_interest", "initial_message",
	"lead_score", "created_at", "updated_at", "last_contact_at", "converted_at",
}

func leadRows(l leads.Lead) *pgxmock.Rows {
	return pgxmock.NewRows(leadRowColumns).AddRow(
		l.ID, l.TenantID, l.AssignedTo, l.Source, l.SourceURL, l.SourceMetadata, l.Status,
		l.CustomerName, l.CustomerEmail, l.CustomerPhone, l.VehicleInterest, l.InitialMessage,
		l.Score, l.CreatedAt, l.UpdatedAt, l.LastContactAt, l.ConvertedAt,
	)
}

func expectScope(mock pgxmock.PgxPoolIface, tenantID uuid.UUID) {
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT set_config`).
		WithArgs(db.TenantSetting, tenantID.String()).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
}

func strPtr(s string) *string { return &s }

type fixture struct {
	orch   *Orchestrator
	mock   pgxmock.PgxPoolIface
	gen    *stubGenerator
	sender *recordingSender
	tenant dealerships.Dealership
	lead   leads.Lead
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	tenant := dealerships.Dealership{
		ID:      uuid.New(),
		Name:    "Bilhuset Oslo",
		Email:   "post@bilhuset.no",
		Phone:   strPtr("+4722334455"),
		Address: strPtr("Storgata 1, Oslo"),
	}
	now := time.Date(2024, 6, 1, 12, 0, 30, 0, time.UTC)
	lead := leads.Lead{
		ID:              uuid.New(),
		TenantID:        tenant.ID,
		Source:          leads.SourceWebsite,
		SourceMetadata:  map[string]any{},
		Status:          leads.StatusNew,
		CustomerName:    strPtr("Ola Nordmann"),
		CustomerEmail:   strPtr("ola@example.com"),
		VehicleInterest: strPtr("Volvo XC60"),
		InitialMessage:  strPtr("Interested in a test drive"),
		Score:           50,
		CreatedAt:       now.Add(-30 * time.Second),
		UpdatedAt:       now.Add(-30 * time.Second),
	}

	gen := &stubGenerator{text: "Takk for henvendelsen! En selger tar kontakt i dag."}
	sender := &recordingSender{}
	orch := NewOrchestrator(mock, stubTenants{tenant.ID: tenant}, leads.NewRepository(), NewConversationRepository(),
		NewReplyGenerator(gen), sender, logger.Nop())
	orch.now = func() time.Time { return now }

	return &fixture{orch: orch, mock: mock, gen: gen, sender: sender, tenant: tenant, lead: lead, now: now}
}

func (f *fixture) expectLoad() {
	expectScope(f.mock, f.tenant.ID)
	f.mock.ExpectQuery(`FROM leads WHERE id`).
		WithArgs(f.lead.ID).
		WillReturnRows(leadRows(f.lead))
	f.mock.ExpectCommit()
}

func (f *fixture) expectConversation(reply, model string) uuid.UUID {
	outboundID := uuid.New()
	expectScope(f.mock, f.tenant.ID)
	f.mock.ExpectQuery(`INSERT INTO conversations`).
		WithArgs(f.lead.ID, f.tenant.ID, f.lead.Source, DirectionInbound, leads.Deref(f.lead.CustomerName),
			SenderCustomer, leads.Deref(f.lead.InitialMessage), map[string]any{"source": f.lead.Source}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(uuid.New(), f.now))
	f.mock.ExpectQuery(`INSERT INTO conversations`).
		WithArgs(f.lead.ID, f.tenant.ID, leads.SourceEmail, DirectionOutbound, AssistantSender,
			SenderAI, reply, map[string]any{"automated": true, "ai_model": model}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(outboundID, f.now))
	f.mock.ExpectCommit()
	return outboundID
}

func (f *fixture) expectMarkContacted() {
	expectScope(f.mock, f.tenant.ID)
	f.mock.ExpectExec(`UPDATE leads`).
		WithArgs(f.lead.ID, f.now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.mock.ExpectCommit()
}

func stepNames(r Result) []string {
	names := make([]string, 0, len(r.Steps))
	for _, s := range r.Steps {
		names = append(names, s.Name)
	}
	return names
}

func TestProcessDeliversAndRecords(t *testing.T) {
	f := newFixture(t)
	f.expectLoad()
	outboundID := f.expectConversation(f.gen.text, "test-model")
	f.expectMarkContacted()

	result := f.orch.Process(context.Background(), f.tenant.ID, f.lead.ID, Options{})

	assert.Equal(t, StatusSuccess, result.Status)
	assert.True(t, result.EmailSent)
	assert.Equal(t, "msg-1", result.EmailID)
	assert.Equal(t, "test-model", result.Model)
	assert.Equal(t, 321, result.TokensUsed)
	require.NotNil(t, result.ConversationID)
	assert.Equal(t, outboundID, *result.ConversationID)
	assert.Equal(t, []string{StepLoad, StepSkip, StepGenerate, StepDeliver, StepRecord, StepUpdate}, stepNames(result))
	assert.Greater(t, int64(result.Duration), int64(0))

	require.Len(t, f.sender.sent, 1)
	sent := f.sender.sent[0]
	assert.Equal(t, "ola@example.com", sent.ToEmail)
	assert.Equal(t, "Svar på din henvendelse - Volvo XC60", sent.Subject)
	assert.Equal(t, "post@bilhuset.no", sent.ReplyTo)
	assert.Equal(t, "Bilhuset Oslo", sent.DealershipName)
	assert.Equal(t, "Storgata 1, Oslo", sent.DealershipAddress)

	require.Len(t, f.gen.requests, 1)
	req := f.gen.requests[0]
	assert.InDelta(t, 0.7, req.Temperature, 0.0001)
	assert.Equal(t, int32(500), req.MaxTokens)
	assert.Contains(t, req.System, "Bilhuset Oslo")
	assert.Contains(t, req.Prompt, "Interessert i: Volvo XC60")
	assert.Contains(t, req.Prompt, "Melding: Interested in a test drive")

	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestProcessDeliveryFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.sender.err = errors.New("smtp down")
	f.expectLoad()
	f.expectConversation(f.gen.text, "test-model")
	f.expectMarkContacted()

	result := f.orch.Process(context.Background(), f.tenant.ID, f.lead.ID, Options{})

	assert.Equal(t, StatusSuccess, result.Status)
	assert.False(t, result.EmailSent)
	assert.Equal(t, "smtp down", result.EmailError)
	assert.NotNil(t, result.ConversationID)
	assert.Equal(t, "smtp down", result.Steps[3].Error)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestProcessUsesFallbackWhenGenerationFails(t *testing.T) {
	f := newFixture(t)
	f.gen.err = textgen.ErrNotConfigured
	fallback := FallbackReply(f.tenant.Name)
	f.expectLoad()
	f.expectConversation(fallback, FallbackModel)
	f.expectMarkContacted()

	result := f.orch.Process(context.Background(), f.tenant.ID, f.lead.ID, Options{})

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, FallbackModel, result.Model)
	assert.Zero(t, result.TokensUsed)
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, fallback, f.sender.sent[0].ResponseText)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestProcessWithoutCustomerEmailSkipsDelivery(t *testing.T) {
	f := newFixture(t)
	f.lead.CustomerEmail = nil
	f.expectLoad()
	f.expectConversation(f.gen.text, "test-model")
	f.expectMarkContacted()

	result := f.orch.Process(context.Background(), f.tenant.ID, f.lead.ID, Options{})

	assert.Equal(t, StatusSuccess, result.Status)
	assert.False(t, result.EmailSent)
	assert.Equal(t, ReasonNoEmail, result.EmailError)
	assert.Empty(t, f.sender.sent)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestProcessConversationFailureStillUpdatesLead(t *testing.T) {
	f := newFixture(t)
	f.expectLoad()
	expectScope(f.mock, f.tenant.ID)
	f.mock.ExpectQuery(`INSERT INTO conversations`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(uuid.New(), f.now))
	f.mock.ExpectQuery(`INSERT INTO conversations`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("check constraint"))
	f.mock.ExpectRollback()
	f.expectMarkContacted()

	result := f.orch.Process(context.Background(), f.tenant.ID, f.lead.ID, Options{})

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Nil(t, result.ConversationID)
	assert.True(t, result.EmailSent)
	assert.Contains(t, result.Steps[4].Error, "check constraint")
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestProcessSkips(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*leads.Lead)
		opts   Options
		reason string
	}{
		{name: "manual", mutate: func(l *leads.Lead) { l.Source = leads.SourceManual }, reason: ReasonManualLead},
		{name: "caller opted out", mutate: func(*leads.Lead) {}, opts: Options{SkipResponse: true}, reason: ReasonResponseOff},
		{name: "test lead", mutate: func(l *leads.Lead) {
			l.Source = leads.SourceFacebook
			l.SourceMetadata = map[string]any{"is_test": true}
		}, reason: ReasonTestLead},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			tc.mutate(&f.lead)
			f.expectLoad()

			result := f.orch.Process(context.Background(), f.tenant.ID, f.lead.ID, tc.opts)

			assert.Equal(t, StatusSkipped, result.Status)
			assert.Equal(t, tc.reason, result.Reason)
			assert.Empty(t, f.gen.requests)
			assert.Empty(t, f.sender.sent)
			assert.NoError(t, f.mock.ExpectationsWereMet())
		})
	}
}

func TestProcessFailsWhenLeadInvisible(t *testing.T) {
	f := newFixture(t)
	expectScope(f.mock, f.tenant.ID)
	f.mock.ExpectQuery(`FROM leads WHERE id`).
		WithArgs(f.lead.ID).
		WillReturnRows(pgxmock.NewRows(leadRowColumns))
	f.mock.ExpectRollback()

	result := f.orch.Process(context.Background(), f.tenant.ID, f.lead.ID, Options{})

	assert.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, result.Error, "lead not found")
	assert.Empty(t, f.gen.requests)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestProcessFailsForUnknownDealership(t *testing.T) {
	f := newFixture(t)

	result := f.orch.Process(context.Background(), uuid.New(), f.lead.ID, Options{})

	assert.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, result.Error, "dealership not found")
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestProcessRefusesConcurrentRunForSameLead(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.orch.markRunning(f.lead.ID))

	result := f.orch.Process(context.Background(), f.tenant.ID, f.lead.ID, Options{})

	assert.Equal(t, StatusSkipped, result.Status)
	assert.Equal(t, ReasonAlreadyRunning, result.Reason)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestProcessWarnsWhenBudgetExceeded(t *testing.T) {
	f := newFixture(t)
	var logs bytes.Buffer
	f.orch.log = logger.NewWithWriter("production", &logs)
	f.orch.budget = 0
	f.lead.Source = leads.SourceManual
	f.expectLoad()

	f.orch.Process(context.Background(), f.tenant.ID, f.lead.ID, Options{})

	assert.Contains(t, logs.String(), "response exceeded time budget")
}

func TestPlaceholderDealershipEmailIsNotExposed(t *testing.T) {
	tenant := dealerships.Dealership{Name: "Ny Forhandler", Email: "org_123@" + dealerships.PlaceholderDomain}
	lead := leads.Lead{CustomerEmail: strPtr("kunde@example.no")}

	reply := deliveryFor(lead, tenant, "Hei")
	input := replyInput(lead, tenant)

	assert.Empty(t, reply.ReplyTo)
	assert.Empty(t, reply.DealershipEmail)
	assert.Empty(t, input.DealershipEmail)
	assert.Equal(t, "Svar på din henvendelse", reply.Subject)
}
