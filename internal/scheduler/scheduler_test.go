package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/proxymail/internal/metrics"
	"github.com/mcoot/proxymail/internal/testutil"
)

type SchedulerSuite struct {
	suite.Suite
	scheduler *Scheduler
	ctx       context.Context
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerSuite))
}

func (s *SchedulerSuite) SetupTest() {
	s.scheduler = New(metrics.New(), testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *SchedulerSuite) TearDownTest() {
	s.scheduler.Stop()
}

func (s *SchedulerSuite) TestJobRunsRepeatedly() {
	var runs atomic.Int32
	s.Require().NoError(s.scheduler.Add(Job{
		Name:     "count",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	}))

	s.scheduler.Start(s.ctx)
	s.Eventually(func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
}

func (s *SchedulerSuite) TestFailingJobKeepsRunning() {
	var runs atomic.Int32
	s.Require().NoError(s.scheduler.Add(Job{
		Name:     "flaky",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return errors.New("disk full")
		},
	}))

	s.scheduler.Start(s.ctx)
	s.Eventually(func() bool { return runs.Load() >= 2 }, time.Second, time.Millisecond)
}

func (s *SchedulerSuite) TestStopHaltsJobs() {
	var runs atomic.Int32
	s.Require().NoError(s.scheduler.Add(Job{
		Name:     "count",
		Interval: 2 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	}))

	s.scheduler.Start(s.ctx)
	s.Eventually(func() bool { return runs.Load() >= 1 }, time.Second, time.Millisecond)
	s.scheduler.Stop()

	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	s.Equal(after, runs.Load())
}

func (s *SchedulerSuite) TestDelayedFirstRun() {
	var runs atomic.Int32
	s.Require().NoError(s.scheduler.Add(Job{
		Name:     "cleanup",
		Interval: time.Hour,
		Delay:    5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	}))

	s.scheduler.Start(s.ctx)
	s.Eventually(func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	s.Equal(int32(1), runs.Load())
}

func (s *SchedulerSuite) TestStopDuringDelay() {
	var runs atomic.Int32
	s.Require().NoError(s.scheduler.Add(Job{
		Name:     "cleanup",
		Interval: time.Hour,
		Delay:    time.Hour,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	}))

	s.scheduler.Start(s.ctx)
	s.scheduler.Stop()
	s.Zero(runs.Load())
}

func (s *SchedulerSuite) TestStopWithoutStart() {
	s.NotPanics(func() {
		s.scheduler.Stop()
		s.scheduler.Stop()
	})
}

func (s *SchedulerSuite) TestContextCancelStopsLoops() {
	ctx, cancel := context.WithCancel(s.ctx)
	var runs atomic.Int32
	s.Require().NoError(s.scheduler.Add(Job{
		Name:     "count",
		Interval: 2 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	}))

	s.scheduler.Start(ctx)
	s.Eventually(func() bool { return runs.Load() >= 1 }, time.Second, time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		s.scheduler.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		s.Fail("job loop did not exit after cancel")
	}
}

func (s *SchedulerSuite) TestAddValidation() {
	s.Error(s.scheduler.Add(Job{Name: "bad", Interval: 0, Run: func(context.Context) error { return nil }}))
	s.Error(s.scheduler.Add(Job{Name: "bad", Interval: time.Second}))
	s.Error(s.scheduler.Add(Job{Name: "bad", Interval: time.Second, Delay: -time.Second, Run: func(context.Context) error { return nil }}))

	s.scheduler.Start(s.ctx)
	s.Error(s.scheduler.Add(Job{Name: "late", Interval: time.Second, Run: func(context.Context) error { return nil }}))
}

func (s *SchedulerSuite) TestRunNowRunsSynchronously() {
	ran := false
	s.scheduler.RunNow(s.ctx, Job{
		Name: "once",
		Run: func(ctx context.Context) error {
			ran = true
			return nil
		},
	})
	s.True(ran)
}
