// Package scanner runs the guard's periodic background work: detection
// scans, alert redelivery and storage retention.
package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/engagement-guard/internal/guard"
	"github.com/p-blackswan/engagement-guard/internal/models"
)

// Job is one periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scanner fires each job on its own ticker until the context ends.
type Scanner struct {
	jobs   []Job
	logger zerolog.Logger
}

// New creates a scanner. Jobs with a non-positive interval are dropped.
func New(jobs []Job, logger zerolog.Logger) *Scanner {
	s := &Scanner{logger: logger.With().Str("component", "scanner").Logger()}
	for _, j := range jobs {
		if j.Interval <= 0 || j.Run == nil {
			s.logger.Warn().Str("job", j.Name).Msg("job disabled")
			continue
		}
		s.jobs = append(s.jobs, j)
	}
	return s
}

// Jobs returns the active jobs.
func (s *Scanner) Jobs() []Job { return s.jobs }

// Run blocks until ctx is cancelled and every job has stopped.
func (s *Scanner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, j := range s.jobs {
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			s.runJob(ctx, j)
		}(j)
	}
	wg.Wait()
}

func (s *Scanner) runJob(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	s.logger.Info().Str("job", job.Name).Dur("interval", job.Interval).Msg("job started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Str("job", job.Name).Msg("job stopped")
			return
		case <-ticker.C:
			s.fire(ctx, job)
		}
	}
}

// fire runs one tick. A panicking job is logged and keeps its schedule.
func (s *Scanner) fire(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("job", job.Name).Interface("panic", r).Msg("job panicked")
		}
	}()
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.logger.Error().Err(err).Str("job", job.Name).Msg("job failed")
		return
	}
	s.logger.Debug().Str("job", job.Name).Dur("took", time.Since(start)).Msg("job tick")
}

// Guard is the subset of guard.Guard the scan job needs.
type Guard interface {
	Scan(ctx context.Context, snap *models.PageSnapshot) guard.ScanReport
}

// ScanJob re-scans the most recent page snapshot and session state.
func ScanJob(g Guard, interval time.Duration, logger zerolog.Logger) Job {
	return Job{
		Name:     "scan",
		Interval: interval,
		Run: func(ctx context.Context) error {
			r := g.Scan(ctx, nil)
			if r.Result.Level > models.AlertNone && !r.Repeated {
				logger.Warn().
					Str("level", r.Result.Level.String()).
					Int("signals", len(r.Result.Signals)).
					Str("action", string(r.Directive.Action)).
					Msg("periodic scan raised alert")
			}
			return nil
		},
	}
}

// Redeliverer retries parked alerts.
type Redeliverer interface {
	Redeliver(ctx context.Context) (int, error)
}

// RedeliveryJob drains the alert outbox.
func RedeliveryJob(r Redeliverer, interval time.Duration, logger zerolog.Logger) Job {
	return Job{
		Name:     "redeliver",
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, err := r.Redeliver(ctx)
			if n > 0 {
				logger.Info().Int("delivered", n).Msg("parked alerts delivered")
			}
			return err
		},
	}
}

// Retainer prunes old rows.
type Retainer interface {
	RunRetention(ctx context.Context) error
}

// RetentionJob prunes storage.
func RetentionJob(r Retainer, interval time.Duration) Job {
	return Job{Name: "retention", Interval: interval, Run: r.RunRetention}
}
