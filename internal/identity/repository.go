package identity

import (
	"context"
	"errors"
	"time"

	"dealerdesk_backend/internal/dealerships"
	"dealerdesk_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned by lookups that match nothing.
var ErrNotFound = errors.New("not found")

// Principal is a local user.
type Principal struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	ClerkUserID string
	Email       string
	Name        *string
	Role        string
	CreatedAt   time.Time
}

// Store is the persistence the resolver needs. Every method runs on the
// caller's transaction.
type Store interface {
	FindTenantByOrgID(ctx context.Context, q db.Querier, orgID string) (dealerships.Dealership, error)
	FindTenantByEmail(ctx context.Context, q db.Querier, email string) (dealerships.Dealership, error)
	CreateTenant(ctx context.Context, q db.Querier, orgID, name, email string) (dealerships.Dealership, error)
	UpdateTenant(ctx context.Context, q db.Querier, t dealerships.Dealership) error

	FindPrincipal(ctx context.Context, q db.Querier, clerkUserID string) (Principal, error)
	CountPrincipals(ctx context.Context, q db.Querier, tenantID, excluding uuid.UUID) (int, error)
	CreatePrincipal(ctx context.Context, q db.Querier, p Principal) (Principal, error)
	UpdatePrincipal(ctx context.Context, q db.Querier, p Principal) error
	UnassignLeads(ctx context.Context, q db.Querier, principalID uuid.UUID) (int64, error)
	DeletePrincipal(ctx context.Context, q db.Querier, principalID uuid.UUID) (Principal, error)
}

// Repository is the Postgres Store.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

const tenantColumns = `id, clerk_org_id, name, email, created_at, updated_at`

func scanTenant(row pgx.Row) (dealerships.Dealership, error) {
	var t dealerships.Dealership
	err := row.Scan(&t.ID, &t.ClerkOrgID, &t.Name, &t.Email, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return dealerships.Dealership{}, ErrNotFound
	}
	return t, err
}

func (r *Repository) FindTenantByOrgID(ctx context.Context, q db.Querier, orgID string) (dealerships.Dealership, error) {
	return scanTenant(q.QueryRow(ctx, `SELECT `+tenantColumns+` FROM dealerships WHERE clerk_org_id = $1`, orgID))
}

func (r *Repository) FindTenantByEmail(ctx context.Context, q db.Querier, email string) (dealerships.Dealership, error) {
	return scanTenant(q.QueryRow(ctx, `SELECT `+tenantColumns+` FROM dealerships WHERE email = $1`, email))
}

func (r *Repository) CreateTenant(ctx context.Context, q db.Querier, orgID, name, email string) (dealerships.Dealership, error) {
	return scanTenant(q.QueryRow(ctx, `
    INSERT INTO dealerships (clerk_org_id, name, email)
    VALUES ($1, $2, $3)
    RETURNING `+tenantColumns, orgID, name, email))
}

func (r *Repository) UpdateTenant(ctx context.Context, q db.Querier, t dealerships.Dealership) error {
	_, err := q.Exec(ctx, `
    UPDATE dealerships
    SET clerk_org_id = $2, name = $3, email = $4, updated_at = now()
    WHERE id = $1`, t.ID, t.ClerkOrgID, t.Name, t.Email)
	return err
}

const principalColumns = `id, dealership_id, clerk_user_id, email, name, role, created_at`

func scanPrincipal(row pgx.Row) (Principal, error) {
	var p Principal
	err := row.Scan(&p.ID, &p.TenantID, &p.ClerkUserID, &p.Email, &p.Name, &p.Role, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Principal{}, ErrNotFound
	}
	return p, err
}

func (r *Repository) FindPrincipal(ctx context.Context, q db.Querier, clerkUserID string) (Principal, error) {
	return scanPrincipal(q.QueryRow(ctx, `SELECT `+principalColumns+` FROM users WHERE clerk_user_id = $1`, clerkUserID))
}

func (r *Repository) CountPrincipals(ctx context.Context, q db.Querier, tenantID, excluding uuid.UUID) (int, error) {
	var count int
	err := q.QueryRow(ctx, `
    SELECT count(*) FROM users
    WHERE dealership_id = $1 AND id <> $2`, tenantID, excluding).Scan(&count)
	return count, err
}

func (r *Repository) CreatePrincipal(ctx context.Context, q db.Querier, p Principal) (Principal, error) {
	return scanPrincipal(q.QueryRow(ctx, `
    INSERT INTO users (dealership_id, clerk_user_id, email, name, role)
    VALUES ($1, $2, $3, $4, $5)
    RETURNING `+principalColumns, p.TenantID, p.ClerkUserID, p.Email, p.Name, p.Role))
}

func (r *Repository) UpdatePrincipal(ctx context.Context, q db.Querier, p Principal) error {
	_, err := q.Exec(ctx, `
    UPDATE users
    SET dealership_id = $2, email = $3, name = $4, role = $5
    WHERE id = $1`, p.ID, p.TenantID, p.Email, p.Name, p.Role)
	return err
}

// UnassignLeads clears assignments. Leads are tenant-scoped, so the caller
// must have set the principal's tenant on the transaction.
func (r *Repository) UnassignLeads(ctx context.Context, q db.Querier, principalID uuid.UUID) (int64, error) {
	tag, err := q.Exec(ctx, `UPDATE leads SET assigned_to = NULL, updated_at = now() WHERE assigned_to = $1`, principalID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) DeletePrincipal(ctx context.Context, q db.Querier, principalID uuid.UUID) (Principal, error) {
	return scanPrincipal(q.QueryRow(ctx, `DELETE FROM users WHERE id = $1 RETURNING `+principalColumns, principalID))
}

var _ Store = (*Repository)(nil)
