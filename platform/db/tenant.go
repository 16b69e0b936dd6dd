package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// TenantSetting is the session variable read by the row-level security policies.
const TenantSetting = "app.current_dealership_id"

// ErrTenantScope is returned when the tenant marker cannot be established.
// The unit of work never runs in that case.
var ErrTenantScope = errors.New("tenant scope could not be established")

// Querier is the query surface shared by pools, transactions and mocks.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxBeginner starts transactions. Satisfied by *pgxpool.Pool and pgxmock pools.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// WithTenantScope runs fn inside a transaction whose row visibility is limited
// to tenantID. The marker is transaction-local (set_config(..., true)), so it is
// discarded on commit, rollback, panic and cancellation alike.
func WithTenantScope(ctx context.Context, db TxBeginner, tenantID uuid.UUID, fn func(tx pgx.Tx) error) error {
	if tenantID == uuid.Nil {
		return fmt.Errorf("%w: empty tenant id", ErrTenantScope)
	}

	return runTx(ctx, db, ErrTenantScope, func(tx pgx.Tx) error {
		if err := SetTenant(ctx, tx, tenantID); err != nil {
			return err
		}
		return fn(tx)
	})
}

// SetTenant sets the tenant marker on an already open transaction. Used when
// the tenant only becomes known partway through a unit of work.
func SetTenant(ctx context.Context, tx Querier, tenantID uuid.UUID) error {
	if tenantID == uuid.Nil {
		return fmt.Errorf("%w: empty tenant id", ErrTenantScope)
	}
	if _, err := tx.Exec(ctx, "SELECT set_config($1, $2, true)", TenantSetting, tenantID.String()); err != nil {
		return fmt.Errorf("%w: %w", ErrTenantScope, err)
	}
	return nil
}

// WithTx runs fn in a plain transaction without a tenant marker. Tenant-owned
// tables read as empty inside it; it is meant for system lookups on tables
// without row-level security (dealerships, users).
func WithTx(ctx context.Context, db TxBeginner, fn func(tx pgx.Tx) error) error {
	return runTx(ctx, db, nil, fn)
}

func runTx(ctx context.Context, db TxBeginner, beginErr error, fn func(tx pgx.Tx) error) (err error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		if beginErr != nil {
			return fmt.Errorf("%w: begin: %w", beginErr, err)
		}
		return fmt.Errorf("begin: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
