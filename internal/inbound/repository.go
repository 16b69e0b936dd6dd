package inbound

import (
	"context"
	"errors"
	"time"

	"dealerdesk_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	// ErrNotFound is returned when no visible email matches.
	ErrNotFound = errors.New("email not found")
	// ErrNotClaimable is returned when an email is not pending anymore.
	ErrNotClaimable = errors.New("email is not pending")
)

// Repository stores inbound emails. Callers pass a querier carrying the
// tenant scope; the table is hidden without it.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// NewEmail holds the relay data persisted as a pending email.
type NewEmail struct {
	TenantID    uuid.UUID
	MessageID   string
	FromEmail   string
	FromName    *string
	ToEmail     string
	Subject     *string
	BodyText    *string
	BodyHTML    *string
	RawHeaders  map[string]any
	Attachments []Attachment
	ReceivedAt  time.Time
}

const emailColumns = `id, dealership_id, message_id, from_email, from_name, to_email, subject,
    body_text, body_html, raw_headers, attachments, processing_status, classification,
    classification_confidence, classification_reasoning, extracted_data, error_message,
    retry_count, received_at, processed_at, lead_id`

func scanEmail(row pgx.Row) (Email, error) {
	var e Email
	err := row.Scan(
		&e.ID, &e.TenantID, &e.MessageID, &e.FromEmail, &e.FromName, &e.ToEmail, &e.Subject,
		&e.BodyText, &e.BodyHTML, &e.RawHeaders, &e.Attachments, &e.ProcessingStatus, &e.Classification,
		&e.ClassificationConfidence, &e.ClassificationReasoning, &e.ExtractedData, &e.ErrorMessage,
		&e.RetryCount, &e.ReceivedAt, &e.ProcessedAt, &e.LeadID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Email{}, ErrNotFound
	}
	return e, err
}

// FindIDByMessageID returns the id of the email with messageID.
func (r *Repository) FindIDByMessageID(ctx context.Context, q db.Querier, messageID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.QueryRow(ctx, `SELECT id FROM inbound_emails WHERE message_id = $1`, messageID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrNotFound
	}
	return id, err
}

// InsertPending stores a new pending email. inserted is false when the
// Message-ID already exists, in which case id is zero.
func (r *Repository) InsertPending(ctx context.Context, q db.Querier, e NewEmail) (id uuid.UUID, inserted bool, err error) {
	headers := e.RawHeaders
	if headers == nil {
		headers = map[string]any{}
	}
	attachments := e.Attachments
	if attachments == nil {
		attachments = []Attachment{}
	}

	err = q.QueryRow(ctx, `
    INSERT INTO inbound_emails (
        dealership_id, message_id, from_email, from_name, to_email, subject,
        body_text, body_html, raw_headers, attachments, processing_status, received_at
    ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'pending', $11)
    ON CONFLICT (message_id) DO NOTHING
    RETURNING id`,
		e.TenantID, e.MessageID, e.FromEmail, e.FromName, e.ToEmail, e.Subject,
		e.BodyText, e.BodyHTML, headers, attachments, e.ReceivedAt,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

// GetByID returns an email visible in the current scope.
func (r *Repository) GetByID(ctx context.Context, q db.Querier, id uuid.UUID) (Email, error) {
	return scanEmail(q.QueryRow(ctx, `SELECT `+emailColumns+` FROM inbound_emails WHERE id = $1`, id))
}

// Claim moves a pending email to processing and returns it. Concurrent
// workers race on the status predicate; losers get ErrNotClaimable.
func (r *Repository) Claim(ctx context.Context, q db.Querier, id uuid.UUID) (Email, error) {
	e, err := scanEmail(q.QueryRow(ctx, `
    UPDATE inbound_emails
    SET processing_status = 'processing',
        processing_started_at = now()
    WHERE id = $1 AND processing_status = 'pending'
    RETURNING `+emailColumns, id))
	if errors.Is(err, ErrNotFound) {
		return Email{}, ErrNotClaimable
	}
	return e, err
}

// Complete records the final classification. leadID and extracted are
// optional.
func (r *Repository) Complete(ctx context.Context, q db.Querier, id uuid.UUID, c Classification, extracted map[string]any, leadID *uuid.UUID, at time.Time) error {
	tag, err := q.Exec(ctx, `
    UPDATE inbound_emails
    SET processing_status = 'completed',
        classification = $2,
        classification_confidence = $3,
        classification_reasoning = $4,
        extracted_data = $5,
        lead_id = $6,
        error_message = NULL,
        processed_at = $7
    WHERE id = $1`,
		id, c.Label, float32(c.Confidence), c.Reasoning, extracted, leadID, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailed records a processing failure. The classification, when known,
// is kept so an operator sees how far the pipeline got.
func (r *Repository) MarkFailed(ctx context.Context, q db.Querier, id uuid.UUID, c *Classification, reason string, at time.Time) error {
	var label, reasoning *string
	var confidence *float32
	if c != nil {
		label, reasoning = &c.Label, &c.Reasoning
		conf := float32(c.Confidence)
		confidence = &conf
	}

	tag, err := q.Exec(ctx, `
    UPDATE inbound_emails
    SET processing_status = 'failed',
        classification = COALESCE($2, classification),
        classification_confidence = COALESCE($3, classification_confidence),
        classification_reasoning = COALESCE($4, classification_reasoning),
        error_message = $5,
        processed_at = $6
    WHERE id = $1`,
		id, label, confidence, reasoning, reason, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetForReprocess puts an email back to pending and bumps its retry count.
func (r *Repository) ResetForReprocess(ctx context.Context, q db.Querier, id uuid.UUID) (Email, error) {
	return scanEmail(q.QueryRow(ctx, `
    UPDATE inbound_emails
    SET processing_status = 'pending',
        retry_count = retry_count + 1,
        error_message = NULL,
        processed_at = NULL
    WHERE id = $1
    RETURNING `+emailColumns, id))
}

// ListPendingBefore returns ids of emails still pending since before.
func (r *Repository) ListPendingBefore(ctx context.Context, q db.Querier, before time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx, `
    SELECT id FROM inbound_emails
    WHERE processing_status = 'pending' AND received_at < $1
    ORDER BY received_at
    LIMIT $2`, before, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

// FailStuckProcessing fails emails that were claimed earlier than before and
// never finished.
func (r *Repository) FailStuckProcessing(ctx context.Context, q db.Querier, before, at time.Time) (int64, error) {
	tag, err := q.Exec(ctx, `
    UPDATE inbound_emails
    SET processing_status = 'failed',
        error_message = 'processing timed out',
        processed_at = $2
    WHERE processing_status = 'processing'
      AND COALESCE(processing_started_at, received_at) < $1`, before, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
