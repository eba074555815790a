// Package scheduler runs named jobs on fixed intervals until stopped.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/proxymail/internal/metrics"
)

// Job is a named task run every Interval. When Delay is positive the first
// run happens after Delay instead of after one Interval.
type Job struct {
	Name     string
	Interval time.Duration
	Delay    time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs each registered job on its own ticker goroutine.
// A failing run is logged and the job runs again at its next tick.
type Scheduler struct {
	jobs    []Job
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// New creates a scheduler. m may be nil.
func New(m *metrics.Metrics, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		metrics: m,
		logger:  logger.With(slog.String("component", "scheduler")),
	}
}

// Add registers a job. Jobs must be added before Start.
func (s *Scheduler) Add(job Job) error {
	if job.Interval <= 0 {
		return fmt.Errorf("scheduler: job %s needs a positive interval", job.Name)
	}
	if job.Delay < 0 {
		return fmt.Errorf("scheduler: job %s has a negative delay", job.Name)
	}
	if job.Run == nil {
		return fmt.Errorf("scheduler: job %s has no run function", job.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler: cannot add job %s while running", job.Name)
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// Start launches one goroutine per job. ctx is passed to every run.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})

	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, job, s.stop)
	}
	s.logger.Info("scheduler started", slog.Int("jobs", len(s.jobs)))
}

// Stop signals every job loop to exit and waits for in-flight runs
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, job Job, stop <-chan struct{}) {
	defer s.wg.Done()

	if job.Delay > 0 {
		timer := time.NewTimer(job.Delay)
		select {
		case <-timer.C:
			s.RunNow(ctx, job)
		case <-stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunNow(ctx, job)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunNow runs a job once on the calling goroutine and records the outcome
func (s *Scheduler) RunNow(ctx context.Context, job Job) {
	started := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(started)
	s.metrics.JobRun(job.Name, elapsed, err)

	if err != nil {
		s.logger.Error("job failed",
			slog.String("job", job.Name),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Debug("job finished",
		slog.String("job", job.Name),
		slog.Duration("elapsed", elapsed),
	)
}
