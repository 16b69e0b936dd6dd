package inbound

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dealerdesk_backend/internal/events"
	"dealerdesk_backend/platform/apperr"
	"dealerdesk_backend/platform/db"
	"dealerdesk_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ReprocessResponse is returned by the reprocess endpoint.
type ReprocessResponse struct {
	EmailID          uuid.UUID `json:"email_id"`
	ProcessingStatus string    `json:"processing_status"`
	RetryCount       int       `json:"retry_count"`
}

// Reprocessor puts emails back into the pipeline on operator request.
type Reprocessor struct {
	pool db.TxBeginner
	repo *Repository
	bus  events.Bus
	log  *logger.Logger
}

func NewReprocessor(pool db.TxBeginner, repo *Repository, bus events.Bus, log *logger.Logger) *Reprocessor {
	return &Reprocessor{pool: pool, repo: repo, bus: bus, log: log}
}

// Reprocess resets an email of tenantID to pending and enqueues it again.
// Emails of other tenants are invisible and reported as not found; emails
// currently being processed are rejected.
func (r *Reprocessor) Reprocess(ctx context.Context, tenantID, emailID uuid.UUID) (ReprocessResponse, error) {
	var email Email
	err := db.WithTenantScope(ctx, r.pool, tenantID, func(tx pgx.Tx) error {
		current, err := r.repo.GetByID(ctx, tx, emailID)
		if err != nil {
			return err
		}
		if current.ProcessingStatus == StatusProcessing {
			return apperr.Conflict("email is being processed")
		}
		email, err = r.repo.ResetForReprocess(ctx, tx, emailID)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return ReprocessResponse{}, apperr.NotFound("email not found")
	}
	if err != nil {
		return ReprocessResponse{}, apperr.FromStore("inbound.reprocess", err)
	}

	r.log.WithTenant(tenantID.String()).Info("email queued for reprocessing",
		"email_id", emailID.String(), "retry_count", email.RetryCount)
	r.bus.Publish(ctx, events.EmailReceived{
		BaseEvent: events.NewBaseEvent(),
		EmailID:   emailID,
		TenantID:  tenantID,
	})

	return ReprocessResponse{
		EmailID:          email.ID,
		ProcessingStatus: email.ProcessingStatus,
		RetryCount:       email.RetryCount,
	}, nil
}

// Enqueuer schedules pipeline runs.
type Enqueuer interface {
	EnqueueEmail(ctx context.Context, tenantID, emailID uuid.UUID) error
}

// TenantLister lists dealerships with the email channel enabled.
type TenantLister interface {
	ListEmailEnabledIDs(ctx context.Context) ([]uuid.UUID, error)
}

// SweepStats counts what one sweep did.
type SweepStats struct {
	Requeued int
	TimedOut int64
}

// Sweeper recovers emails lost between the relay and the worker: old pending
// emails are enqueued again and emails stuck in processing are failed.
type Sweeper struct {
	pool       db.TxBeginner
	tenants    TenantLister
	repo       *Repository
	enqueuer   Enqueuer
	stuckAfter time.Duration
	batch      int
	now        func() time.Time
	log        *logger.Logger
}

func NewSweeper(pool db.TxBeginner, tenants TenantLister, repo *Repository, enqueuer Enqueuer, stuckAfter time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{
		pool:       pool,
		tenants:    tenants,
		repo:       repo,
		enqueuer:   enqueuer,
		stuckAfter: stuckAfter,
		batch:      100,
		now:        time.Now,
		log:        log,
	}
}

// Sweep visits every email-enabled tenant. A failing tenant does not stop
// the others; all errors are returned joined.
func (s *Sweeper) Sweep(ctx context.Context) (SweepStats, error) {
	tenantIDs, err := s.tenants.ListEmailEnabledIDs(ctx)
	if err != nil {
		return SweepStats{}, fmt.Errorf("list tenants: %w", err)
	}

	var stats SweepStats
	var errs []error
	for _, tenantID := range tenantIDs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		requeued, timedOut, err := s.sweepTenant(ctx, tenantID)
		stats.Requeued += requeued
		stats.TimedOut += timedOut
		if err != nil {
			errs = append(errs, fmt.Errorf("tenant %s: %w", tenantID, err))
		}
	}

	if stats.Requeued > 0 || stats.TimedOut > 0 {
		s.log.Info("email sweep finished", "requeued", stats.Requeued, "timed_out", stats.TimedOut)
	}
	return stats, errors.Join(errs...)
}

func (s *Sweeper) sweepTenant(ctx context.Context, tenantID uuid.UUID) (int, int64, error) {
	now := s.now()
	cutoff := now.Add(-s.stuckAfter)

	var pending []uuid.UUID
	var timedOut int64
	err := db.WithTenantScope(ctx, s.pool, tenantID, func(tx pgx.Tx) error {
		var err error
		if pending, err = s.repo.ListPendingBefore(ctx, tx, cutoff, s.batch); err != nil {
			return err
		}
		timedOut, err = s.repo.FailStuckProcessing(ctx, tx, cutoff, now)
		return err
	})
	if err != nil {
		return 0, 0, err
	}

	requeued := 0
	for _, emailID := range pending {
		if err := s.enqueuer.EnqueueEmail(ctx, tenantID, emailID); err != nil {
			return requeued, timedOut, fmt.Errorf("enqueue %s: %w", emailID, err)
		}
		requeued++
	}
	return requeued, timedOut, nil
}
