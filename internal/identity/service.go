package identity

import (
	"context"
	"errors"
	"fmt"

	"dealerdesk_backend/internal/dealerships"
	"dealerdesk_backend/platform/apperr"
	"dealerdesk_backend/platform/db"
	"dealerdesk_backend/platform/httpkit"
	"dealerdesk_backend/platform/logger"
	"dealerdesk_backend/platform/validator"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Result carries the handler fields returned to the webhook caller.
type Result struct {
	DealershipID      *uuid.UUID `json:"dealership_id,omitempty"`
	UserID            *uuid.UUID `json:"user_id,omitempty"`
	CreatedDealership *bool      `json:"created_dealership,omitempty"`
	CreatedUser       *bool      `json:"created_user,omitempty"`
	DeletedUserID     *uuid.UUID `json:"deleted_user_id,omitempty"`
	ClerkUserID       string     `json:"clerk_user_id,omitempty"`
	ClerkOrgID        string     `json:"clerk_org_id,omitempty"`
	UserEmail         string     `json:"user_email,omitempty"`
	UnassignedLeads   *int64     `json:"unassigned_leads,omitempty"`
	Message           string     `json:"message,omitempty"`
}

// Service applies provisioning events. Each event runs in one transaction.
type Service struct {
	db    db.TxBeginner
	store Store
	log   *logger.Logger
}

func NewService(pool db.TxBeginner, store Store, log *logger.Logger) *Service {
	return &Service{db: pool, store: store, log: log}
}

// Handle applies event atomically. Store errors come back as apperr kinds:
// unique violations as conflicts, check violations as bad requests.
func (s *Service) Handle(ctx context.Context, event Event) (Result, error) {
	var result Result
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		switch e := event.(type) {
		case OrganizationCreated:
			result, err = s.organizationCreated(ctx, tx, e)
		case MembershipCreated:
			result, err = s.membershipCreated(ctx, tx, e)
		case UserDeleted:
			result, err = s.userDeleted(ctx, tx, e)
		case MembershipDeleted:
			result, err = s.membershipDeleted(ctx, tx, e)
		default:
			err = fmt.Errorf("%w: %T", ErrUnhandledEvent, event)
		}
		return err
	})
	if err != nil {
		return Result{}, s.translate(event.EventType(), err)
	}
	return result, nil
}

func (s *Service) translate(eventType string, err error) error {
	if errors.Is(err, ErrUnhandledEvent) {
		return err
	}
	op := "identity." + eventType
	if apperr.IsUniqueViolation(err) {
		s.log.Warn("provisioning conflict", "event_type", eventType, "error", err)
		return apperr.Wrap(apperr.KindConflict, "a dealership with this organization or email already exists; retry the delivery", err).WithOp(op)
	}
	translated := apperr.FromStore(op, err)
	if apperr.Is(translated, apperr.KindInternal) {
		s.log.Error("provisioning failed", "event_type", eventType, "error", err)
	}
	return translated
}

func (s *Service) organizationCreated(ctx context.Context, tx pgx.Tx, e OrganizationCreated) (Result, error) {
	email := tenantEmail(e.ContactEmail, e.OrgID)
	tenant, created, err := s.ensureTenant(ctx, tx, e.OrgID, e.Name, email, true)
	if err != nil {
		return Result{}, err
	}
	return Result{DealershipID: &tenant.ID, CreatedDealership: &created}, nil
}

func (s *Service) membershipCreated(ctx context.Context, tx pgx.Tx, e MembershipCreated) (Result, error) {
	rawEmail := memberEmail(e.User)
	emailValid := validator.IsEmail(rawEmail)

	tenant, createdTenant, err := s.ensureTenant(ctx, tx, e.OrgID, e.OrgName, tenantEmail(rawEmail, e.OrgID), false)
	if err != nil {
		return Result{}, err
	}

	if emailValid && tenant.HasPlaceholderEmail() && tenant.Email != rawEmail {
		if err := s.upgradeTenantEmail(ctx, tx, &tenant, rawEmail); err != nil {
			return Result{}, err
		}
	}

	principal, err := s.store.FindPrincipal(ctx, tx, e.User.UserID)
	createdUser := false
	switch {
	case errors.Is(err, ErrNotFound):
		others, err := s.store.CountPrincipals(ctx, tx, tenant.ID, uuid.Nil)
		if err != nil {
			return Result{}, err
		}
		email := principalEmail(rawEmail, e.User.UserID)
		principal, err = s.store.CreatePrincipal(ctx, tx, Principal{
			TenantID:    tenant.ID,
			ClerkUserID: e.User.UserID,
			Email:       email,
			Name:        displayName(e.User, email),
			Role:        determineRole(e.Role, createdTenant, others),
		})
		if err != nil {
			return Result{}, err
		}
		createdUser = true
	case err != nil:
		return Result{}, err
	default:
		if err := s.refreshPrincipal(ctx, tx, &principal, tenant, e, rawEmail, createdTenant); err != nil {
			return Result{}, err
		}
	}

	return Result{
		DealershipID:      &tenant.ID,
		UserID:            &principal.ID,
		CreatedDealership: &createdTenant,
		CreatedUser:       &createdUser,
	}, nil
}

func (s *Service) refreshPrincipal(ctx context.Context, tx pgx.Tx, p *Principal, tenant dealerships.Dealership, e MembershipCreated, rawEmail string, createdTenant bool) error {
	others, err := s.store.CountPrincipals(ctx, tx, tenant.ID, p.ID)
	if err != nil {
		return err
	}

	p.TenantID = tenant.ID
	p.Role = determineRole(e.Role, createdTenant, others)
	if validator.IsEmail(rawEmail) {
		p.Email = rawEmail
	}
	if name := e.User.FullName(); name != "" {
		p.Name = &name
	}
	return s.store.UpdatePrincipal(ctx, tx, *p)
}

// ensureTenant finds the dealership by organization ID, then by contact
// email (re-linking the organization ID), and creates it otherwise. A
// concurrent insert for the same organization is resolved by one retry of
// the lookup. Only an authoritative contact email replaces the stored one;
// member emails go through upgradeTenantEmail.
func (s *Service) ensureTenant(ctx context.Context, tx pgx.Tx, orgID, name, email string, authoritativeEmail bool) (dealerships.Dealership, bool, error) {
	tenant, err := s.lookupTenant(ctx, tx, orgID, name, email, authoritativeEmail)
	if err == nil {
		return tenant, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return dealerships.Dealership{}, false, err
	}

	if name == "" {
		name = unnamedDealership
	}
	err = savepoint(ctx, tx, func(sp pgx.Tx) error {
		var createErr error
		tenant, createErr = s.store.CreateTenant(ctx, sp, orgID, name, email)
		return createErr
	})
	if err == nil {
		s.log.Info("dealership provisioned", "dealership_id", tenant.ID, "clerk_org_id", orgID)
		return tenant, true, nil
	}
	if !apperr.IsUniqueViolation(err) {
		return dealerships.Dealership{}, false, err
	}

	s.log.Info("dealership insert raced, retrying lookup", "clerk_org_id", orgID)
	tenant, retryErr := s.lookupTenant(ctx, tx, orgID, name, email, authoritativeEmail)
	if retryErr != nil {
		if errors.Is(retryErr, ErrNotFound) {
			return dealerships.Dealership{}, false, err
		}
		return dealerships.Dealership{}, false, retryErr
	}
	return tenant, false, nil
}

func (s *Service) lookupTenant(ctx context.Context, tx pgx.Tx, orgID, name, email string, authoritativeEmail bool) (dealerships.Dealership, error) {
	tenant, err := s.store.FindTenantByOrgID(ctx, tx, orgID)
	if err == nil {
		changed := false
		if name != "" && name != tenant.Name {
			tenant.Name = name
			changed = true
		}
		if authoritativeEmail && email != tenant.Email && validator.IsEmail(email) && !dealerships.IsPlaceholderEmail(email) {
			tenant.Email = email
			changed = true
		}
		if changed {
			if err := s.store.UpdateTenant(ctx, tx, tenant); err != nil {
				return dealerships.Dealership{}, err
			}
		}
		return tenant, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return dealerships.Dealership{}, err
	}

	tenant, err = s.store.FindTenantByEmail(ctx, tx, email)
	if err != nil {
		return dealerships.Dealership{}, err
	}
	s.log.Info("re-linking dealership to organization", "dealership_id", tenant.ID, "clerk_org_id", orgID)
	tenant.ClerkOrgID = &orgID
	if name != "" {
		tenant.Name = name
	}
	if err := s.store.UpdateTenant(ctx, tx, tenant); err != nil {
		return dealerships.Dealership{}, err
	}
	return tenant, nil
}

// upgradeTenantEmail replaces a placeholder contact email. If another
// dealership already owns the address the placeholder is kept.
func (s *Service) upgradeTenantEmail(ctx context.Context, tx pgx.Tx, tenant *dealerships.Dealership, email string) error {
	upgraded := *tenant
	upgraded.Email = email
	err := savepoint(ctx, tx, func(sp pgx.Tx) error {
		return s.store.UpdateTenant(ctx, sp, upgraded)
	})
	if apperr.IsUniqueViolation(err) {
		s.log.Warn("placeholder email kept, address owned by another dealership", "dealership_id", tenant.ID)
		return nil
	}
	if err != nil {
		return err
	}
	*tenant = upgraded
	return nil
}

func (s *Service) userDeleted(ctx context.Context, tx pgx.Tx, e UserDeleted) (Result, error) {
	principal, err := s.store.FindPrincipal(ctx, tx, e.UserID)
	if errors.Is(err, ErrNotFound) {
		return Result{ClerkUserID: e.UserID, Message: "User not found in database"}, nil
	}
	if err != nil {
		return Result{}, err
	}
	return s.deletePrincipal(ctx, tx, principal, Result{ClerkUserID: e.UserID})
}

func (s *Service) membershipDeleted(ctx context.Context, tx pgx.Tx, e MembershipDeleted) (Result, error) {
	base := Result{ClerkUserID: e.UserID, ClerkOrgID: e.OrgID}

	tenant, err := s.store.FindTenantByOrgID(ctx, tx, e.OrgID)
	if errors.Is(err, ErrNotFound) {
		base.Message = "Dealership not found"
		return base, nil
	}
	if err != nil {
		return Result{}, err
	}

	principal, err := s.store.FindPrincipal(ctx, tx, e.UserID)
	if errors.Is(err, ErrNotFound) {
		base.Message = "User not found in database"
		return base, nil
	}
	if err != nil {
		return Result{}, err
	}
	if principal.TenantID != tenant.ID {
		s.log.Warn("membership deletion for principal of another dealership ignored", "clerk_user_id", e.UserID, "clerk_org_id", e.OrgID)
		base.Message = "User does not belong to this dealership"
		return base, nil
	}
	return s.deletePrincipal(ctx, tx, principal, base)
}

// deletePrincipal unassigns the principal's leads under its tenant scope and
// then removes the row.
func (s *Service) deletePrincipal(ctx context.Context, tx pgx.Tx, p Principal, result Result) (Result, error) {
	if err := db.SetTenant(ctx, tx, p.TenantID); err != nil {
		return Result{}, err
	}
	unassigned, err := s.store.UnassignLeads(ctx, tx, p.ID)
	if err != nil {
		return Result{}, err
	}
	deleted, err := s.store.DeletePrincipal(ctx, tx, p.ID)
	if errors.Is(err, ErrNotFound) {
		result.Message = "User not found in database"
		return result, nil
	}
	if err != nil {
		return Result{}, err
	}

	s.log.Info("principal deleted", "user_id", deleted.ID, "dealership_id", deleted.TenantID, "unassigned_leads", unassigned)
	result.DeletedUserID = &deleted.ID
	result.UserEmail = deleted.Email
	result.UnassignedLeads = &unassigned
	return result, nil
}

// ResolvePrincipal maps a session-token subject to the local user for
// authenticated routes.
func (s *Service) ResolvePrincipal(ctx context.Context, subject string) (httpkit.Principal, error) {
	var principal Principal
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		principal, err = s.store.FindPrincipal(ctx, tx, subject)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return httpkit.Principal{}, httpkit.ErrUnknownPrincipal
	}
	if err != nil {
		return httpkit.Principal{}, err
	}
	return httpkit.Principal{UserID: principal.ID, TenantID: principal.TenantID, Role: principal.Role}, nil
}

// savepoint runs fn in a nested transaction so a failed statement does not
// abort the enclosing one.
func savepoint(ctx context.Context, tx pgx.Tx, fn func(pgx.Tx) error) error {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(sp); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}
