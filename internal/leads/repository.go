package leads

import (
	"context"
	"errors"
	"time"

	"dealerdesk_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when no visible lead matches.
var ErrNotFound = errors.New("lead not found")

// Repository stores leads. Every method runs on the caller's querier, which
// must carry the tenant scope; without it the row policy hides all leads.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

const leadColumns = `id, dealership_id, assigned_to, source, source_url, source_metadata, status,
    customer_name, customer_email, customer_phone, vehicle_interest, initial_message,
    lead_score, created_at, updated_at, last_contact_at, converted_at`

func scanLead(row pgx.Row) (Lead, error) {
	var l Lead
	err := row.Scan(
		&l.ID, &l.TenantID, &l.AssignedTo, &l.Source, &l.SourceURL, &l.SourceMetadata, &l.Status,
		&l.CustomerName, &l.CustomerEmail, &l.CustomerPhone, &l.VehicleInterest, &l.InitialMessage,
		&l.Score, &l.CreatedAt, &l.UpdatedAt, &l.LastContactAt, &l.ConvertedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	return l, err
}

// Create inserts a lead with status new.
func (r *Repository) Create(ctx context.Context, q db.Querier, p CreateParams) (Lead, error) {
	p = p.fitColumns()
	metadata := p.SourceMetadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return scanLead(q.QueryRow(ctx, `
    INSERT INTO leads (
        dealership_id, source, source_url, source_metadata, status,
        customer_name, customer_email, customer_phone, vehicle_interest, initial_message, lead_score
    ) VALUES ($1, $2, $3, $4, 'new', $5, $6, $7, $8, $9, $10)
    RETURNING `+leadColumns,
		p.TenantID, p.Source, p.SourceURL, metadata,
		p.CustomerName, p.CustomerEmail, p.CustomerPhone, p.VehicleInterest, p.InitialMessage, p.Score,
	))
}

// GetByID returns a lead visible in the current scope.
func (r *Repository) GetByID(ctx context.Context, q db.Querier, id uuid.UUID) (Lead, error) {
	return scanLead(q.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
}

// FindRecentByEmail returns the newest lead for email created at or after since.
func (r *Repository) FindRecentByEmail(ctx context.Context, q db.Querier, tenantID uuid.UUID, email string, since time.Time) (Lead, error) {
	return scanLead(q.QueryRow(ctx, `
    SELECT `+leadColumns+`
    FROM leads
    WHERE dealership_id = $1
      AND lower(customer_email) = lower($2)
      AND created_at >= $3
    ORDER BY created_at DESC
    LIMIT 1`, tenantID, email, since))
}

// UpdateIntake rewrites the customer-supplied fields of a lead.
func (r *Repository) UpdateIntake(ctx context.Context, q db.Querier, l Lead) error {
	tag, err := q.Exec(ctx, `
    UPDATE leads
    SET customer_name = $2,
        customer_phone = $3,
        vehicle_interest = $4,
        initial_message = $5,
        source_url = $6,
        updated_at = now()
    WHERE id = $1`,
		l.ID, l.CustomerName, l.CustomerPhone, l.VehicleInterest, l.InitialMessage, l.SourceURL)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ExistsByFacebookLeadID reports whether a lead-ads lead id was already imported.
func (r *Repository) ExistsByFacebookLeadID(ctx context.Context, q db.Querier, leadgenID string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
    SELECT EXISTS (
        SELECT 1 FROM leads
        WHERE source = 'facebook'
          AND source_metadata ->> 'facebook_lead_id' = $1
    )`, leadgenID).Scan(&exists)
	return exists, err
}

// MarkContacted records the first automated contact. The first-response
// latency is only set once.
func (r *Repository) MarkContacted(ctx context.Context, q db.Querier, id uuid.UUID, at time.Time) error {
	tag, err := q.Exec(ctx, `
    UPDATE leads
    SET status = 'contacted',
        last_contact_at = $2,
        first_response_time = COALESCE(first_response_time, $2 - created_at),
        updated_at = now()
    WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
