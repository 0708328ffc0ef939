package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultPollSpec polls the schedule queue once a second.
const DefaultPollSpec = "@every 1s"

// DefaultClaimBatch bounds how many due jobs one poll publishes.
const DefaultClaimBatch = 100

// Scheduler moves due jobs from the schedule queue to the delivery pipeline.
type Scheduler struct {
	cron      *cron.Cron
	spec      string
	queue     ScheduleQueue
	publisher Publisher
	batch     int
	now       func() time.Time
	logger    *slog.Logger
}

func NewScheduler(spec string, queue ScheduleQueue, publisher Publisher, logger *slog.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultPollSpec
	}
	logger = logger.With("component", "Scheduler")
	cl := cronLogger{logger: logger}

	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(
				cron.Recover(cl),
				cron.SkipIfStillRunning(cl),
			),
		),
		spec:      spec,
		queue:     queue,
		publisher: publisher,
		batch:     DefaultClaimBatch,
		now:       time.Now,
		logger:    logger,
	}
	if _, err := s.cron.AddFunc(spec, func() { s.Poll(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid schedule poll spec %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started", "spec", s.spec)
}

// Stop waits for a running poll to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll claims due jobs and publishes them. It returns how many were published.
// A job whose publish fails is put back on the queue.
func (s *Scheduler) Poll(ctx context.Context) int {
	jobs, err := s.queue.ClaimDue(ctx, s.now(), s.batch)
	if err != nil {
		s.logger.Error("Failed to claim due jobs", "err", err)
	}

	published := 0
	for _, job := range jobs {
		if err := s.publisher.Publish(ctx, job); err != nil {
			s.logger.Error("Failed to publish due job, requeueing", "job_id", job.ID, "err", err)
			if err := s.queue.Enqueue(ctx, job); err != nil {
				s.logger.Error("Failed to requeue job", "job_id", job.ID, "err", err)
			}
			continue
		}
		published++
	}
	if published > 0 {
		s.logger.Info("Published due jobs", "count", published)
	}
	return published
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "err", err)...)
}
