package scheduler

import (
	"context"
	"errors"
	"fmt"

	"dealerdesk_backend/internal/inbound"
	"dealerdesk_backend/internal/leadads"
	"dealerdesk_backend/internal/responder"
	"dealerdesk_backend/platform/config"
	"dealerdesk_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// EmailProcessor runs the inbound email pipeline.
type EmailProcessor interface {
	Process(ctx context.Context, tenantID, emailID uuid.UUID) (inbound.ProcessResult, error)
}

// LeadAdFetcher retrieves lead-ads submissions.
type LeadAdFetcher interface {
	Fetch(ctx context.Context, n leadads.Notification) (leadads.FetchResult, error)
}

// LeadResponder produces the first reply to a lead.
type LeadResponder interface {
	Process(ctx context.Context, tenantID, leadID uuid.UUID, opts responder.Options) responder.Result
}

// Processor holds the task handlers.
type Processor struct {
	emails    EmailProcessor
	leadAds   LeadAdFetcher
	responder LeadResponder
	log       *logger.Logger
}

func NewProcessor(emails EmailProcessor, leadAds LeadAdFetcher, resp LeadResponder, log *logger.Logger) *Processor {
	return &Processor{emails: emails, leadAds: leadAds, responder: resp, log: log}
}

// Register binds every task type on mux.
func (p *Processor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskEmailProcess, p.handleEmailProcess)
	mux.HandleFunc(TaskLeadAdFetch, p.handleLeadAdFetch)
	mux.HandleFunc(TaskLeadRespond, p.handleLeadRespond)
}

func (p *Processor) handleEmailProcess(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseEmailProcessPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return fmt.Errorf("tenant id: %v: %w", err, asynq.SkipRetry)
	}
	emailID, err := uuid.Parse(payload.EmailID)
	if err != nil {
		return fmt.Errorf("email id: %v: %w", err, asynq.SkipRetry)
	}

	result, err := p.emails.Process(ctx, tenantID, emailID)
	if err != nil {
		return err
	}
	p.log.Info("email processed", "email_id", emailID, "status", result.Status, "classification", result.Classification)
	return nil
}

func (p *Processor) handleLeadAdFetch(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseLeadAdFetchPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	result, err := p.leadAds.Fetch(ctx, leadads.Notification{
		LeadgenID: payload.LeadgenID,
		PageID:    payload.PageID,
		FormID:    payload.FormID,
	})
	if err != nil {
		if !leadads.Retryable(err) {
			p.log.Warn("lead-ads fetch abandoned", "leadgen_id", payload.LeadgenID, "error", err)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	p.log.Info("lead-ads submission fetched", "leadgen_id", payload.LeadgenID, "status", result.Status, "lead_id", result.LeadID)
	return nil
}

func (p *Processor) handleLeadRespond(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseLeadRespondPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return fmt.Errorf("tenant id: %v: %w", err, asynq.SkipRetry)
	}
	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return fmt.Errorf("lead id: %v: %w", err, asynq.SkipRetry)
	}

	result := p.responder.Process(ctx, tenantID, leadID, responder.Options{SkipResponse: payload.SkipResponse})
	if result.Status == responder.StatusFailed {
		return fmt.Errorf("lead response failed: %s: %w", result.Error, asynq.SkipRetry)
	}
	return nil
}

// Worker consumes the task queue.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, processor *Processor, log *logger.Logger) (*Worker, error) {
	opt, err := redisClientOpt(cfg)
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = defaultQueue
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			log.Warn("task failed",
				"task", task.Type(),
				"retry", retried,
				"max_retry", maxRetry,
				"final", errors.Is(err, asynq.SkipRetry) || retried >= maxRetry,
				"error", err)
		}),
	})

	mux := asynq.NewServeMux()
	processor.Register(mux)

	return &Worker{server: server, mux: mux, log: log}, nil
}

// Run blocks until ctx is cancelled, then drains in-flight tasks.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return nil
	}

	if err := w.server.Start(w.mux); err != nil {
		w.log.Error("scheduler worker failed to start", "error", err)
		return err
	}
	<-ctx.Done()
	w.server.Shutdown()
	w.log.Info("scheduler worker stopped")
	return nil
}
