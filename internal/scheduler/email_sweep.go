package scheduler

import (
	"context"
	"time"

	"dealerdesk_backend/internal/inbound"
	"dealerdesk_backend/platform/logger"

	"github.com/go-co-op/gocron/v2"
)

const defaultEmailSweepInterval = 5 * time.Minute

// EmailSweep is the periodic recovery pass over the email queue.
type EmailSweep interface {
	Sweep(ctx context.Context) (inbound.SweepStats, error)
}

// Jobs runs the periodic maintenance jobs. A job never overlaps itself.
type Jobs struct {
	scheduler gocron.Scheduler
	sweep     EmailSweep
	interval  time.Duration
	log       *logger.Logger
}

func NewJobs(sweep EmailSweep, interval time.Duration, log *logger.Logger) (*Jobs, error) {
	if interval <= 0 {
		interval = defaultEmailSweepInterval
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Jobs{scheduler: s, sweep: sweep, interval: interval, log: log}, nil
}

// Run starts the jobs and stops them when ctx is cancelled.
func (j *Jobs) Run(ctx context.Context) error {
	_, err := j.scheduler.NewJob(
		gocron.DurationJob(j.interval),
		gocron.NewTask(j.sweepEmails),
		gocron.WithName("email-sweep"),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return err
	}

	j.scheduler.Start()
	<-ctx.Done()
	return j.scheduler.Shutdown()
}

func (j *Jobs) sweepEmails(ctx context.Context) {
	stats, err := j.sweep.Sweep(ctx)
	if err != nil {
		j.log.Warn("email sweep failed", "error", err, "requeued", stats.Requeued, "timed_out", stats.TimedOut)
	}
}
