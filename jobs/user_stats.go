// Package jobs runs background maintenance on a cron schedule.
package jobs

import (
	"context"
	"time"

	auth "github.com/goliatone/hr-auth"
	"github.com/robfig/cron/v3"
)

// UserCounter reports registered users per role.
type UserCounter interface {
	UserCounts(ctx context.Context) (map[auth.Role]int, int, error)
}

// StatsSink receives the latest user counts.
type StatsSink interface {
	SetUserCounts(byRole map[string]int, total int)
}

// UserStats refreshes the user count gauges.
type UserStats struct {
	Counter UserCounter
	Sink    StatsSink
	Logger  auth.Logger
	Timeout time.Duration
}

// Run takes one snapshot.
func (j *UserStats) Run(ctx context.Context) error {
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	byRole, total, err := j.Counter.UserCounts(ctx)
	if err != nil {
		j.logger().Error("user stats refresh failed", "error", err)
		return err
	}

	counts := make(map[string]int, len(byRole))
	for role, n := range byRole {
		counts[string(role)] = n
	}
	if j.Sink != nil {
		j.Sink.SetUserCounts(counts, total)
	}

	j.logger().Info("user stats refreshed", "total", total, "by_role", counts)
	return nil
}

func (j *UserStats) logger() auth.Logger {
	if j.Logger == nil {
		return auth.NopLogger{}
	}
	return j.Logger
}

// Scheduler owns the cron runner for background jobs.
type Scheduler struct {
	cron   *cron.Cron
	logger auth.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a stopped scheduler. Job failures are logged to
// logger at warn level.
func NewScheduler(logger auth.Logger) *Scheduler {
	if logger == nil {
		logger = auth.NopLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Job is anything runnable by the scheduler.
type Job interface {
	Run(ctx context.Context) error
}

// Add schedules job using a standard cron spec or descriptor such as
// "@every 1h".
func (s *Scheduler) Add(spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.run(s.ctx, spec, job)
	})
	return err
}

// RunNow runs job once on the caller's goroutine. A failure is logged and
// returned; the schedule is unaffected.
func (s *Scheduler) RunNow(ctx context.Context, job Job) error {
	return s.run(ctx, "startup", job)
}

func (s *Scheduler) run(ctx context.Context, trigger string, job Job) error {
	err := job.Run(ctx)
	if err != nil {
		s.logger.Warn("scheduled job failed", "trigger", trigger, "error", err)
	}
	return err
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling, cancels running jobs and waits for them to
// return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
