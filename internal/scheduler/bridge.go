package scheduler

import (
	"context"

	"dealerdesk_backend/internal/events"
	"dealerdesk_backend/platform/logger"

	"github.com/google/uuid"
)

// TaskEnqueuer is the subset of Client the bridge needs.
type TaskEnqueuer interface {
	EnqueueLeadResponse(ctx context.Context, tenantID, leadID uuid.UUID, skipResponse bool) error
	EnqueueEmail(ctx context.Context, tenantID, emailID uuid.UUID) error
	EnqueueLeadAd(ctx context.Context, payload LeadAdFetchPayload) error
}

// Bridge turns intake events into queued tasks.
type Bridge struct {
	queue TaskEnqueuer
	log   *logger.Logger
}

func NewBridge(queue TaskEnqueuer, log *logger.Logger) *Bridge {
	return &Bridge{queue: queue, log: log}
}

// Subscribe registers the bridge on bus.
func (b *Bridge) Subscribe(bus events.Bus) {
	b.SubscribeReplies(bus)
	bus.Subscribe(events.EmailReceived{}.EventName(), events.HandlerFunc(b.onEmailReceived))
	bus.Subscribe(events.LeadAdReceived{}.EventName(), events.HandlerFunc(b.onLeadAdReceived))
}

// SubscribeReplies registers only the reply scheduling, for processes that
// run the intake work themselves.
func (b *Bridge) SubscribeReplies(bus events.Bus) {
	bus.Subscribe(events.LeadAccepted{}.EventName(), events.HandlerFunc(b.onLeadAccepted))
}

func (b *Bridge) onLeadAccepted(ctx context.Context, event events.Event) error {
	e, ok := event.(events.LeadAccepted)
	if !ok {
		return nil
	}
	if e.SkipResponse {
		b.log.Debug("lead accepted without automated reply", "lead_id", e.LeadID, "source", e.Source)
		return nil
	}
	if err := b.queue.EnqueueLeadResponse(ctx, e.TenantID, e.LeadID, false); err != nil {
		b.log.Error("failed to enqueue lead response", "lead_id", e.LeadID, "error", err)
		return err
	}
	return nil
}

func (b *Bridge) onEmailReceived(ctx context.Context, event events.Event) error {
	e, ok := event.(events.EmailReceived)
	if !ok {
		return nil
	}
	// A lost task is recovered by the email sweep.
	if err := b.queue.EnqueueEmail(ctx, e.TenantID, e.EmailID); err != nil {
		b.log.Error("failed to enqueue email processing", "email_id", e.EmailID, "error", err)
		return err
	}
	return nil
}

func (b *Bridge) onLeadAdReceived(ctx context.Context, event events.Event) error {
	e, ok := event.(events.LeadAdReceived)
	if !ok {
		return nil
	}
	err := b.queue.EnqueueLeadAd(ctx, LeadAdFetchPayload{
		LeadgenID: e.LeadgenID,
		PageID:    e.PageID,
		FormID:    e.FormID,
	})
	if err != nil {
		b.log.Error("failed to enqueue lead-ads fetch", "leadgen_id", e.LeadgenID, "error", err)
		return err
	}
	return nil
}
