package inbound

import (
	"context"
	"errors"
	"testing"
	"time"

	"dealerdesk_backend/internal/events"
	"dealerdesk_backend/internal/leads"
	"dealerdesk_backend/platform/logger"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipelineFixture struct {
	pipeline *Pipeline
	mock     pgxmock.PgxPoolIface
	gen      *scriptedGenerator
	bus      *recordingBus
	tenantID uuid.UUID
	email    Email
	now      time.Time
}

func newPipelineFixture(t *testing.T, replies ...reply) *pipelineFixture {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	spam, err := DefaultSpamPolicy()
	require.NoError(t, err)

	gen := &scriptedGenerator{replies: replies}
	bus := &recordingBus{}
	p := NewPipeline(mock, NewRepository(), leads.NewRepository(), spam, NewClassifier(gen), NewExtractor(gen, "NO"), bus, logger.Nop())
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	tenantID := uuid.New()
	email := Email{
		ID:               uuid.New(),
		TenantID:         tenantID,
		MessageID:        "<abc@mail.kunde.no>",
		FromEmail:        "ola@kunde.no",
		FromName:         strPtr("Ola Nordmann"),
		ToEmail:          "leads@inbound.dealerdesk.no",
		Subject:          strPtr("Prøvekjøring ID.4"),
		BodyText:         strPtr("Hei! Kan jeg prøvekjøre ID.4 på lørdag? Mvh Ola, 912 34 567"),
		RawHeaders:       map[string]any{},
		Attachments:      []Attachment{},
		ProcessingStatus: StatusProcessing,
		ReceivedAt:       now.Add(-time.Minute),
	}

	return &pipelineFixture{pipeline: p, mock: mock, gen: gen, bus: bus, tenantID: tenantID, email: email, now: now}
}

func (f *pipelineFixture) expectClaim() {
	expectScope(f.mock, f.tenantID)
	f.mock.ExpectQuery(`UPDATE inbound_emails`).
		WithArgs(f.email.ID).
		WillReturnRows(emailRows(f.email))
	f.mock.ExpectCommit()
}

func TestProcessUnsubscribeNewsletterIsSpamWithoutLead(t *testing.T) {
	f := newPipelineFixture(t)
	f.email.Subject = strPtr("Månedens kampanje")
	f.email.BodyText = nil
	f.email.BodyHTML = strPtr(`<p>Nye tilbud hver uke</p><a href="https://forhandler.no/u">Unsubscribe</a>`)

	f.expectClaim()
	expectScope(f.mock, f.tenantID)
	f.mock.ExpectExec(`UPDATE inbound_emails`).
		WithArgs(f.email.ID, LabelSpam, float32(1), "Body contains spam keyword: 'unsubscribe'",
			map[string]any(nil), (*uuid.UUID)(nil), f.now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.mock.ExpectCommit()

	result, err := f.pipeline.Process(context.Background(), f.tenantID, f.email.ID)
	require.NoError(t, err)

	assert.Equal(t, ResultCompleted, result.Status)
	assert.Equal(t, LabelSpam, result.Classification)
	assert.Nil(t, result.LeadID)
	assert.Empty(t, f.gen.requests, "spam must not reach the model")
	assert.Empty(t, f.bus.published)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestProcessSalesInquiryCreatesLead(t *testing.T) {
	f := newPipelineFixture(t,
		reply{text: `{"classification": "sales_inquiry", "confidence": 0.9, "reasoning": "Wants a test drive"}`},
		reply{text: `{"customer_name": "Ola Nordmann", "email": "ola@kunde.no", "phone": "912 34 567",
			"car_interest": "VW ID.4", "inquiry_summary": "Test drive on Saturday", "urgency": "high", "source": "direct_email"}`},
	)
	created := leads.Lead{
		ID:             uuid.New(),
		TenantID:       f.tenantID,
		Source:         leads.SourceEmail,
		SourceMetadata: map[string]any{},
		Status:         leads.StatusNew,
		CustomerName:   strPtr("Ola Nordmann"),
		CustomerEmail:  strPtr("ola@kunde.no"),
		Score:          70,
		CreatedAt:      f.now,
		UpdatedAt:      f.now,
	}

	f.expectClaim()
	expectScope(f.mock, f.tenantID)
	f.mock.ExpectQuery(`INSERT INTO leads`).
		WithArgs(f.tenantID, leads.SourceEmail, (*string)(nil), map[string]any{
			"email_id":   f.email.ID.String(),
			"from_email": "ola@kunde.no",
			"subject":    f.email.Subject,
		},
			strPtr("Ola Nordmann"), strPtr("ola@kunde.no"), strPtr("+4791234567"), strPtr("VW ID.4"),
			strPtr("Test drive on Saturday"), 70).
		WillReturnRows(leadRows(created))
	f.mock.ExpectExec(`UPDATE inbound_emails`).
		WithArgs(f.email.ID, LabelSalesInquiry, float32(0.9), "Wants a test drive",
			pgxmock.AnyArg(), &created.ID, f.now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.mock.ExpectCommit()

	result, err := f.pipeline.Process(context.Background(), f.tenantID, f.email.ID)
	require.NoError(t, err)

	assert.Equal(t, ResultCompleted, result.Status)
	assert.Equal(t, LabelSalesInquiry, result.Classification)
	require.NotNil(t, result.LeadID)
	assert.Equal(t, created.ID, *result.LeadID)

	require.Len(t, f.bus.published, 1)
	accepted, ok := f.bus.published[0].(events.LeadAccepted)
	require.True(t, ok)
	assert.Equal(t, created.ID, accepted.LeadID)
	assert.Equal(t, leads.SourceEmail, accepted.Source)
	assert.False(t, accepted.SkipResponse)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestProcessLeadFailureMarksEmailFailed(t *testing.T) {
	f := newPipelineFixture(t,
		reply{text: `{"classification": "sales_inquiry", "confidence": 0.8, "reasoning": "Price question"}`},
		reply{err: errors.New("timeout")},
	)

	f.expectClaim()
	expectScope(f.mock, f.tenantID)
	f.mock.ExpectQuery(`INSERT INTO leads`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), 60).
		WillReturnError(errors.New("connection reset"))
	f.mock.ExpectRollback()
	expectScope(f.mock, f.tenantID)
	f.mock.ExpectExec(`UPDATE inbound_emails`).
		WithArgs(f.email.ID, strPtr(LabelSalesInquiry), pgxmock.AnyArg(), strPtr("Price question"),
			"Failed to create lead: connection reset", f.now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.mock.ExpectCommit()

	result, err := f.pipeline.Process(context.Background(), f.tenantID, f.email.ID)
	require.NoError(t, err)

	assert.Equal(t, ResultFailed, result.Status)
	assert.Nil(t, result.LeadID)
	assert.Empty(t, f.bus.published)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestProcessNonInquiryCompletesWithoutExtraction(t *testing.T) {
	f := newPipelineFixture(t,
		reply{text: `{"classification": "other", "confidence": 0.7, "reasoning": "Supplier invoice"}`},
	)

	f.expectClaim()
	expectScope(f.mock, f.tenantID)
	f.mock.ExpectExec(`UPDATE inbound_emails`).
		WithArgs(f.email.ID, LabelOther, float32(0.7), "Supplier invoice",
			map[string]any(nil), (*uuid.UUID)(nil), f.now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.mock.ExpectCommit()

	result, err := f.pipeline.Process(context.Background(), f.tenantID, f.email.ID)
	require.NoError(t, err)

	assert.Equal(t, LabelOther, result.Classification)
	assert.Len(t, f.gen.requests, 1)
	assert.Empty(t, f.bus.published)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestProcessSkipsEmailThatIsNotPending(t *testing.T) {
	f := newPipelineFixture(t)

	expectScope(f.mock, f.tenantID)
	f.mock.ExpectQuery(`UPDATE inbound_emails`).
		WithArgs(f.email.ID).
		WillReturnRows(pgxmock.NewRows(emailRowColumns))
	f.mock.ExpectRollback()

	result, err := f.pipeline.Process(context.Background(), f.tenantID, f.email.ID)
	require.NoError(t, err)
	assert.Equal(t, ResultSkipped, result.Status)
	assert.Empty(t, f.gen.requests)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}
