package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dealerdesk_backend/internal/events"
	"dealerdesk_backend/internal/inbound"
	"dealerdesk_backend/internal/leadads"
	"dealerdesk_backend/internal/responder"
	"dealerdesk_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	opt := asynq.RedisClientOpt{Addr: mr.Addr()}
	c := newClient(asynq.NewClient(opt), asynq.NewInspector(opt), "")
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func pending(t *testing.T, mr *miniredis.Miniredis) []string {
	t.Helper()
	if !mr.Exists("asynq:{default}:pending") {
		return nil
	}
	ids, err := mr.List("asynq:{default}:pending")
	require.NoError(t, err)
	return ids
}

func TestClientEnqueuesEmailOnce(t *testing.T) {
	c, mr := newTestClient(t)
	tenantID, emailID := uuid.New(), uuid.New()

	require.NoError(t, c.EnqueueEmail(context.Background(), tenantID, emailID))
	require.NoError(t, c.EnqueueEmail(context.Background(), tenantID, emailID))

	assert.Equal(t, []string{"email:process:" + emailID.String()}, pending(t, mr))
}

func TestClientRequeuesArchivedEmail(t *testing.T) {
	c, mr := newTestClient(t)
	tenantID, emailID := uuid.New(), uuid.New()
	taskID := "email:process:" + emailID.String()

	require.NoError(t, c.EnqueueEmail(context.Background(), tenantID, emailID))
	require.NoError(t, c.inspector.ArchiveTask(defaultQueue, taskID))
	require.Empty(t, pending(t, mr))

	require.NoError(t, c.EnqueueEmail(context.Background(), tenantID, emailID))

	assert.Equal(t, []string{taskID}, pending(t, mr))
	info, err := c.inspector.GetTaskInfo(defaultQueue, taskID)
	require.NoError(t, err)
	assert.Equal(t, asynq.TaskStatePending, info.State)
}

func TestClientLeavesArchivedReplyAlone(t *testing.T) {
	c, mr := newTestClient(t)
	tenantID, leadID := uuid.New(), uuid.New()
	taskID := "lead:respond:" + leadID.String()

	require.NoError(t, c.EnqueueLeadResponse(context.Background(), tenantID, leadID, false))
	require.NoError(t, c.inspector.ArchiveTask(defaultQueue, taskID))

	require.NoError(t, c.EnqueueLeadResponse(context.Background(), tenantID, leadID, false))

	assert.Empty(t, pending(t, mr))
	info, err := c.inspector.GetTaskInfo(defaultQueue, taskID)
	require.NoError(t, err)
	assert.Equal(t, asynq.TaskStateArchived, info.State)
}

func TestClientEnqueuesEachTaskType(t *testing.T) {
	c, mr := newTestClient(t)
	leadID := uuid.New()

	require.NoError(t, c.EnqueueLeadResponse(context.Background(), uuid.New(), leadID, false))
	require.NoError(t, c.EnqueueLeadAd(context.Background(), LeadAdFetchPayload{LeadgenID: "L-1", PageID: "page-1"}))

	assert.ElementsMatch(t, []string{"lead:respond:" + leadID.String(), "leadads:fetch:L-1"}, pending(t, mr))
}

func TestClientRejectsLeadAdWithoutID(t *testing.T) {
	c, mr := newTestClient(t)

	assert.Error(t, c.EnqueueLeadAd(context.Background(), LeadAdFetchPayload{PageID: "page-1"}))
	assert.Empty(t, pending(t, mr))
}

func TestTaskPayloadsRoundTrip(t *testing.T) {
	task, err := NewLeadRespondTask(LeadRespondPayload{TenantID: "t", LeadID: "l", SkipResponse: true})
	require.NoError(t, err)
	assert.Equal(t, TaskLeadRespond, task.Type())

	payload, err := ParseLeadRespondPayload(task)
	require.NoError(t, err)
	assert.Equal(t, LeadRespondPayload{TenantID: "t", LeadID: "l", SkipResponse: true}, payload)

	_, err = ParseEmailProcessPayload(asynq.NewTask(TaskEmailProcess, []byte("{")))
	assert.Error(t, err)
}

type enqueueCall struct {
	kind string
	id   string
}

type recordingQueue struct {
	mu    sync.Mutex
	calls []enqueueCall
	err   error
}

func (q *recordingQueue) record(kind, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls = append(q.calls, enqueueCall{kind: kind, id: id})
	return q.err
}

func (q *recordingQueue) EnqueueLeadResponse(_ context.Context, _, leadID uuid.UUID, _ bool) error {
	return q.record(TaskLeadRespond, leadID.String())
}

func (q *recordingQueue) EnqueueEmail(_ context.Context, _, emailID uuid.UUID) error {
	return q.record(TaskEmailProcess, emailID.String())
}

func (q *recordingQueue) EnqueueLeadAd(_ context.Context, p LeadAdFetchPayload) error {
	return q.record(TaskLeadAdFetch, p.LeadgenID)
}

func TestBridgeEnqueuesIntakeEvents(t *testing.T) {
	queue := &recordingQueue{}
	bus := events.NewInMemoryBus(logger.Nop())
	NewBridge(queue, logger.Nop()).Subscribe(bus)
	ctx := context.Background()
	leadID, emailID := uuid.New(), uuid.New()

	require.NoError(t, bus.PublishSync(ctx, events.LeadAccepted{LeadID: leadID, TenantID: uuid.New(), Source: "website"}))
	require.NoError(t, bus.PublishSync(ctx, events.LeadAccepted{LeadID: uuid.New(), Source: "facebook", SkipResponse: true}))
	require.NoError(t, bus.PublishSync(ctx, events.EmailReceived{EmailID: emailID, TenantID: uuid.New()}))
	require.NoError(t, bus.PublishSync(ctx, events.LeadAdReceived{LeadgenID: "L-9", PageID: "page-1"}))

	assert.Equal(t, []enqueueCall{
		{kind: TaskLeadRespond, id: leadID.String()},
		{kind: TaskEmailProcess, id: emailID.String()},
		{kind: TaskLeadAdFetch, id: "L-9"},
	}, queue.calls)
}

func TestBridgeRepliesOnlySubscription(t *testing.T) {
	queue := &recordingQueue{}
	bus := events.NewInMemoryBus(logger.Nop())
	NewBridge(queue, logger.Nop()).SubscribeReplies(bus)
	ctx := context.Background()
	leadID := uuid.New()

	require.NoError(t, bus.PublishSync(ctx, events.EmailReceived{EmailID: uuid.New(), TenantID: uuid.New()}))
	require.NoError(t, bus.PublishSync(ctx, events.LeadAdReceived{LeadgenID: "L-9", PageID: "page-1"}))
	require.NoError(t, bus.PublishSync(ctx, events.LeadAccepted{LeadID: leadID, TenantID: uuid.New(), Source: "email"}))

	assert.Equal(t, []enqueueCall{{kind: TaskLeadRespond, id: leadID.String()}}, queue.calls)
}

func TestBridgeReportsEnqueueFailures(t *testing.T) {
	queue := &recordingQueue{err: errors.New("redis down")}
	bus := events.NewInMemoryBus(logger.Nop())
	NewBridge(queue, logger.Nop()).Subscribe(bus)

	err := bus.PublishSync(context.Background(), events.EmailReceived{EmailID: uuid.New()})
	assert.ErrorContains(t, err, "redis down")
}

type stubEmails struct {
	err     error
	tenants []uuid.UUID
}

func (s *stubEmails) Process(_ context.Context, tenantID, emailID uuid.UUID) (inbound.ProcessResult, error) {
	s.tenants = append(s.tenants, tenantID)
	return inbound.ProcessResult{EmailID: emailID, Status: inbound.ResultCompleted}, s.err
}

type stubLeadAds struct {
	err  error
	seen []leadads.Notification
}

func (s *stubLeadAds) Fetch(_ context.Context, n leadads.Notification) (leadads.FetchResult, error) {
	s.seen = append(s.seen, n)
	return leadads.FetchResult{Status: leadads.FetchCreated}, s.err
}

type stubResponder struct {
	result responder.Result
	opts   []responder.Options
}

func (s *stubResponder) Process(_ context.Context, _, leadID uuid.UUID, opts responder.Options) responder.Result {
	s.opts = append(s.opts, opts)
	r := s.result
	r.LeadID = leadID
	return r
}

func TestProcessorEmailTask(t *testing.T) {
	emails := &stubEmails{}
	p := NewProcessor(emails, &stubLeadAds{}, &stubResponder{}, logger.Nop())
	tenantID := uuid.New()

	task, err := NewEmailProcessTask(EmailProcessPayload{TenantID: tenantID.String(), EmailID: uuid.NewString()})
	require.NoError(t, err)
	require.NoError(t, p.handleEmailProcess(context.Background(), task))
	assert.Equal(t, []uuid.UUID{tenantID}, emails.tenants)

	emails.err = errors.New("connection reset")
	err = p.handleEmailProcess(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestProcessorRejectsMalformedPayloads(t *testing.T) {
	p := NewProcessor(&stubEmails{}, &stubLeadAds{}, &stubResponder{}, logger.Nop())

	task, err := NewEmailProcessTask(EmailProcessPayload{TenantID: "nope", EmailID: uuid.NewString()})
	require.NoError(t, err)
	assert.ErrorIs(t, p.handleEmailProcess(context.Background(), task), asynq.SkipRetry)

	assert.ErrorIs(t, p.handleLeadRespond(context.Background(), asynq.NewTask(TaskLeadRespond, []byte("x"))), asynq.SkipRetry)
}

func TestProcessorLeadAdRetryPolicy(t *testing.T) {
	cases := map[string]struct {
		err       error
		wantErr   bool
		skipRetry bool
	}{
		"created":      {},
		"auth":         {err: leadads.ErrAuth, wantErr: true, skipRetry: true},
		"client error": {err: &leadads.GraphAPIError{StatusCode: 404, Message: "gone"}, wantErr: true, skipRetry: true},
		"rate limited": {err: leadads.ErrRateLimited, wantErr: true},
		"server error": {err: &leadads.GraphAPIError{StatusCode: 502, Message: "bad gateway"}, wantErr: true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			fetcher := &stubLeadAds{err: tc.err}
			p := NewProcessor(&stubEmails{}, fetcher, &stubResponder{}, logger.Nop())
			task, err := NewLeadAdFetchTask(LeadAdFetchPayload{LeadgenID: "L-1", PageID: "page-1", FormID: "F-1"})
			require.NoError(t, err)

			err = p.handleLeadAdFetch(context.Background(), task)

			assert.Equal(t, []leadads.Notification{{LeadgenID: "L-1", PageID: "page-1", FormID: "F-1"}}, fetcher.seen)
			if !tc.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tc.skipRetry, errors.Is(err, asynq.SkipRetry))
		})
	}
}

func TestProcessorLeadRespond(t *testing.T) {
	resp := &stubResponder{result: responder.Result{Status: responder.StatusSuccess}}
	p := NewProcessor(&stubEmails{}, &stubLeadAds{}, resp, logger.Nop())
	task, err := NewLeadRespondTask(LeadRespondPayload{TenantID: uuid.NewString(), LeadID: uuid.NewString(), SkipResponse: true})
	require.NoError(t, err)

	require.NoError(t, p.handleLeadRespond(context.Background(), task))
	assert.Equal(t, []responder.Options{{SkipResponse: true}}, resp.opts)

	resp.result = responder.Result{Status: responder.StatusFailed, Error: "load lead: not found"}
	err = p.handleLeadRespond(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.ErrorContains(t, err, "load lead: not found")
}

type countingSweep struct {
	calls atomic.Int32
}

func (s *countingSweep) Sweep(context.Context) (inbound.SweepStats, error) {
	s.calls.Add(1)
	return inbound.SweepStats{}, errors.New("tenant down")
}

func TestJobsSweepImmediatelyAndStopOnCancel(t *testing.T) {
	sweep := &countingSweep{}
	jobs, err := NewJobs(sweep, time.Hour, logger.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- jobs.Run(ctx) }()

	assert.Eventually(t, func() bool { return sweep.calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("jobs did not stop")
	}
	assert.EqualValues(t, 1, sweep.calls.Load())
}
