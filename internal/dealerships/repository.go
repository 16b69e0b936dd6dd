package dealerships

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"dealerdesk_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when no dealership matches.
var ErrNotFound = errors.New("dealership not found")

const selectColumns = `
    SELECT id, clerk_org_id, name, email, phone, address,
           email_integration_enabled, email_forwarding_address,
           facebook_integration_enabled, facebook_page_tokens,
           created_at, updated_at
    FROM dealerships`

// Repository reads dealerships. The table has no row-level policy, so these
// lookups work outside a tenant scope.
type Repository struct {
	db db.Querier
}

func NewRepository(q db.Querier) *Repository {
	return &Repository{db: q}
}

// GetByID returns the dealership with id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Dealership, error) {
	return scanOne(r.db.QueryRow(ctx, selectColumns+` WHERE id = $1`, id))
}

// GetByForwardingAddress resolves the tenant owning an inbound address.
// Only dealerships with the email integration enabled match.
func (r *Repository) GetByForwardingAddress(ctx context.Context, address string) (Dealership, error) {
	return scanOne(r.db.QueryRow(ctx, selectColumns+`
    WHERE lower(email_forwarding_address) = lower($1)
      AND email_integration_enabled = true`, strings.TrimSpace(address)))
}

// GetByFacebookPage resolves the tenant that connected a lead-ads page.
func (r *Repository) GetByFacebookPage(ctx context.Context, pageID string) (Dealership, error) {
	return scanOne(r.db.QueryRow(ctx, selectColumns+`
    WHERE facebook_page_tokens ? $1
      AND facebook_integration_enabled = true
    LIMIT 1`, pageID))
}

// ListEmailEnabledIDs returns dealerships with the email integration active.
func (r *Repository) ListEmailEnabledIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM dealerships WHERE email_integration_enabled = true ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func scanOne(row pgx.Row) (Dealership, error) {
	var d Dealership
	var tokens []byte
	err := row.Scan(
		&d.ID,
		&d.ClerkOrgID,
		&d.Name,
		&d.Email,
		&d.Phone,
		&d.Address,
		&d.EmailIntegrationEnabled,
		&d.EmailForwardingAddress,
		&d.FacebookIntegrationEnabled,
		&tokens,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Dealership{}, ErrNotFound
	}
	if err != nil {
		return Dealership{}, err
	}
	d.FacebookPageTokens = map[string]string{}
	if len(tokens) > 0 {
		if err := json.Unmarshal(tokens, &d.FacebookPageTokens); err != nil {
			return Dealership{}, err
		}
	}
	return d, nil
}
