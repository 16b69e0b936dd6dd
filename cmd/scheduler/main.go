package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dealerdesk_backend/internal/dealerships"
	"dealerdesk_backend/internal/email"
	"dealerdesk_backend/internal/events"
	"dealerdesk_backend/internal/inbound"
	"dealerdesk_backend/internal/leadads"
	"dealerdesk_backend/internal/responder"
	"dealerdesk_backend/internal/scheduler"
	"dealerdesk_backend/internal/textgen"
	"dealerdesk_backend/platform/config"
	"dealerdesk_backend/platform/db"
	"dealerdesk_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)

	// Leads created by the worker are queued for a reply through the same bridge
	// the API uses.
	queue, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize task queue client", "error", err)
		panic("failed to initialize task queue client: " + err.Error())
	}
	defer func() { _ = queue.Close() }()
	scheduler.NewBridge(queue, log).Subscribe(eventBus)

	gen, err := textgen.New(ctx, cfg)
	if err != nil {
		log.Error("failed to initialize text generator", "error", err)
		panic("failed to initialize text generator: " + err.Error())
	}

	spam, err := inbound.LoadSpamPolicy(cfg.GetSpamPolicyFile())
	if err != nil {
		log.Error("failed to load spam policy", "error", err)
		panic("failed to load spam policy: " + err.Error())
	}

	sender, err := initSender(cfg, log)
	if err != nil {
		log.Error("failed to initialize email sender", "error", err)
		panic("failed to initialize email sender: " + err.Error())
	}

	pipeline := inbound.NewPipelineFromDeps(pool, gen, spam, eventBus, cfg.GetDefaultPhoneRegion(), log)
	fetcher := leadads.NewFetchServiceFromDeps(pool, eventBus, cfg, cfg.GetDefaultPhoneRegion(), log)
	orchestrator := responder.NewOrchestratorFromDeps(pool, gen, sender, log)

	worker, err := scheduler.NewWorker(cfg, scheduler.NewProcessor(pipeline, fetcher, orchestrator, log), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	sweeper := inbound.NewSweeper(pool, dealerships.NewRepository(pool), inbound.NewRepository(), queue, cfg.GetEmailStuckAfter(), log)
	jobs, err := scheduler.NewJobs(sweeper, cfg.GetEmailSweepInterval(), log)
	if err != nil {
		log.Error("failed to initialize periodic jobs", "error", err)
		panic("failed to initialize periodic jobs: " + err.Error())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return jobs.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("scheduler stopped with error", "error", err)
	}
	eventBus.Wait()
	log.Info("scheduler stopped")
}

func initSender(cfg *config.Config, log *logger.Logger) (email.Sender, error) {
	if !cfg.GetEmailEnabled() {
		log.Warn("EMAIL_ENABLED is false; replies are generated and recorded but not delivered")
	}
	return email.NewSender(cfg)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
