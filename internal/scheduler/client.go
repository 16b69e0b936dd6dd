package scheduler

import (
	"context"
	"errors"
	"fmt"

	"dealerdesk_backend/platform/config"
	"dealerdesk_backend/platform/rediskit"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const defaultQueue = "default"

// Retry budgets per task type. A reply is never retried so a customer cannot
// receive two.
const (
	leadRespondMaxRetry  = 0
	emailProcessMaxRetry = 3
	leadAdFetchMaxRetry  = 5
)

// Client enqueues background work. Tasks carry a deterministic id, so a task
// that is still queued is not enqueued twice. Email and lead-ads tasks that
// asynq archived after exhausting their retries are replaced on the next
// enqueue, which is how reprocessing and the stuck-email sweep revive them.
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	queue     string
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	opt, err := redisClientOpt(cfg)
	if err != nil {
		return nil, err
	}
	return newClient(asynq.NewClient(opt), asynq.NewInspector(opt), cfg.GetAsynqQueueName()), nil
}

func newClient(client *asynq.Client, inspector *asynq.Inspector, queue string) *Client {
	if queue == "" {
		queue = defaultQueue
	}
	return &Client{client: client, inspector: inspector, queue: queue}
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	err := c.client.Close()
	if c.inspector != nil {
		err = errors.Join(err, c.inspector.Close())
	}
	return err
}

// EnqueueLeadResponse schedules the first reply to a lead. An archived reply
// task is left in place; operators rerun it with leadctl.
func (c *Client) EnqueueLeadResponse(ctx context.Context, tenantID, leadID uuid.UUID, skipResponse bool) error {
	task, err := NewLeadRespondTask(LeadRespondPayload{
		TenantID:     tenantID.String(),
		LeadID:       leadID.String(),
		SkipResponse: skipResponse,
	})
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, TaskLeadRespond+":"+leadID.String(), leadRespondMaxRetry, false)
}

// EnqueueEmail schedules classification of a stored email.
func (c *Client) EnqueueEmail(ctx context.Context, tenantID, emailID uuid.UUID) error {
	task, err := NewEmailProcessTask(EmailProcessPayload{
		TenantID: tenantID.String(),
		EmailID:  emailID.String(),
	})
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, TaskEmailProcess+":"+emailID.String(), emailProcessMaxRetry, true)
}

// EnqueueLeadAd schedules the retrieval of a lead-ads submission.
func (c *Client) EnqueueLeadAd(ctx context.Context, payload LeadAdFetchPayload) error {
	if payload.LeadgenID == "" {
		return errors.New("leadgen id is required")
	}
	task, err := NewLeadAdFetchTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, TaskLeadAdFetch+":"+payload.LeadgenID, leadAdFetchMaxRetry, true)
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task, taskID string, maxRetry int, replaceArchived bool) error {
	if c == nil || c.client == nil {
		return errors.New("scheduler client not configured")
	}
	opts := []asynq.Option{
		asynq.Queue(c.queue),
		asynq.TaskID(taskID),
		asynq.MaxRetry(maxRetry),
	}
	_, err := c.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) && replaceArchived {
		released, releaseErr := c.releaseArchived(taskID)
		if releaseErr != nil {
			return fmt.Errorf("enqueue %s: %w", task.Type(), releaseErr)
		}
		if released {
			_, err = c.client.EnqueueContext(ctx, task, opts...)
		}
	}
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	return nil
}

// releaseArchived deletes taskID when it sits in the archive, freeing the id.
// Pending, scheduled, retrying and active tasks are kept.
func (c *Client) releaseArchived(taskID string) (bool, error) {
	if c.inspector == nil {
		return false, nil
	}
	info, err := c.inspector.GetTaskInfo(c.queue, taskID)
	if errors.Is(err, asynq.ErrTaskNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("inspect task %s: %w", taskID, err)
	}
	if info.State != asynq.TaskStateArchived {
		return false, nil
	}
	if err := c.inspector.DeleteTask(c.queue, taskID); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
		return false, fmt.Errorf("delete archived task %s: %w", taskID, err)
	}
	return true, nil
}

func redisClientOpt(cfg config.RedisConfig) (asynq.RedisClientOpt, error) {
	opt, err := rediskit.Options(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Username:  opt.Username,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}
