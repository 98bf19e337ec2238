package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/sitecms/sitecms/internal/tasks"
)

// Enqueuer queues tasks. *asynq.Client implements it.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Scheduler enqueues the periodic content tasks on a cron cadence
type Scheduler struct {
	enqueuer Enqueuer
	schedule cron.Schedule
	logger   zerolog.Logger
	now      func() time.Time
}

// NewScheduler parses a standard 5-field cron expression
// (minute hour day-of-month month day-of-week)
func NewScheduler(enqueuer Enqueuer, cronExpr string, logger zerolog.Logger) (*Scheduler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler cron %q: %w", cronExpr, err)
	}
	return &Scheduler{
		enqueuer: enqueuer,
		schedule: schedule,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		now:      time.Now,
	}, nil
}

// Next returns the first run time after from
func (s *Scheduler) Next(from time.Time) time.Time {
	return s.schedule.Next(from)
}

// Run enqueues once on startup, then at every scheduled time until ctx is done
func (s *Scheduler) Run(ctx context.Context) {
	s.Tick(s.now())

	for {
		next := s.schedule.Next(s.now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info().Msg("Scheduler stopped")
			return
		case <-timer.C:
			s.Tick(next)
		}
	}
}

// Tick enqueues every periodic task for runAt. Tasks are unique per run so
// several schedulers against one Redis do not duplicate work.
func (s *Scheduler) Tick(runAt time.Time) {
	builders := []func(time.Time) (*asynq.Task, error){
		tasks.NewPublishScheduledNewsTask,
		tasks.NewExpireAnnouncementsTask,
		tasks.NewPruneRevokedTokensTask,
	}

	for _, build := range builders {
		task, err := build(runAt.UTC())
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to build periodic task")
			continue
		}

		queue := tasks.QueueDefault
		if task.Type() == tasks.TypePruneRevokedTokens {
			queue = tasks.QueueLow
		}

		_, err = s.enqueuer.Enqueue(task,
			asynq.Queue(queue),
			asynq.Unique(time.Minute),
			asynq.MaxRetry(3),
		)
		switch {
		case errors.Is(err, asynq.ErrDuplicateTask):
			s.logger.Debug().Str("task_type", task.Type()).Msg("Periodic task already queued")
		case err != nil:
			s.logger.Error().Err(err).Str("task_type", task.Type()).Msg("Failed to enqueue periodic task")
		default:
			s.logger.Debug().Str("task_type", task.Type()).Time("run_at", runAt).Msg("Periodic task enqueued")
		}
	}
}
