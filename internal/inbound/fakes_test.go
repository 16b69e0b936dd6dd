package inbound

import (
	"context"
	"sync"

	"dealerdesk_backend/internal/events"
	"dealerdesk_backend/internal/leads"
	"dealerdesk_backend/internal/textgen"
	"dealerdesk_backend/platform/db"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

type reply struct {
	text string
	err  error
}

// scriptedGenerator answers Complete calls in order.
type scriptedGenerator struct {
	mu       sync.Mutex
	replies  []reply
	requests []textgen.Request
}

func (g *scriptedGenerator) Complete(_ context.Context, req textgen.Request) (textgen.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if len(g.replies) == 0 {
		return textgen.Response{}, textgen.ErrNotConfigured
	}
	next := g.replies[0]
	g.replies = g.replies[1:]
	if next.err != nil {
		return textgen.Response{}, next.err
	}
	return textgen.Response{Text: next.text, Model: "test-model"}, nil
}

type recordingBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (b *recordingBus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, e)
}

func (b *recordingBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func expectScope(mock pgxmock.PgxPoolIface, tenantID uuid.UUID) {
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT set_config`).
		WithArgs(db.TenantSetting, tenantID.String()).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
}

var emailRowColumns = []string{
	"id", "dealership_id", "message_id", "from_email", "from_name", "to_email", "subject",
	"body_text", "body_html", "raw_headers", "attachments", "processing_status", "classification",
	"classification_confidence", "classification_reasoning", "extracted_data", "error_message",
	"retry_count", "received_at", "processed_at", "lead_id",
}

func emailRows(e Email) *pgxmock.Rows {
	return pgxmock.NewRows(emailRowColumns).AddRow(
		e.ID, e.TenantID, e.MessageID, e.FromEmail, e.FromName, e.ToEmail, e.Subject,
		e.BodyText, e.BodyHTML, e.RawHeaders, e.Attachments, e.ProcessingStatus, e.Classification,
		e.ClassificationConfidence, e.ClassificationReasoning, e.ExtractedData, e.ErrorMessage,
		e.RetryCount, e.ReceivedAt, e.ProcessedAt, e.LeadID,
	)
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

func strPtr(s string) *string { return &s }
