package cron

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type funcJob struct {
	name, schedule string
	run            func(ctx context.Context) error
}

func (j funcJob) Name() string     { return j.name }
func (j funcJob) Schedule() string { return j.schedule }
func (j funcJob) Run(ctx context.Context) error {
	if j.run == nil {
		return nil
	}
	return j.run(ctx)
}

func TestScheduler_Register(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil)
	for _, name := range []string{"connector_sync:notion", "job_watch"} {
		if err := s.RegisterJob(funcJob{name: name, schedule: "@hourly"}); err != nil {
			t.Fatalf("RegisterJob(%s): %v", name, err)
		}
	}
	if err := s.RegisterJob(funcJob{name: "job_watch", schedule: "@daily"}); err == nil {
		t.Error("duplicate name accepted")
	}
	if got := s.Jobs(); len(got) != 2 || got[0] != "connector_sync:notion" || got[1] != "job_watch" {
		t.Errorf("Jobs = %v", got)
	}
}

func TestScheduler_StartRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil)
	_ = s.RegisterJob(funcJob{name: "ok", schedule: "@hourly"})
	_ = s.RegisterJob(funcJob{name: "bad", schedule: "whenever"})
	if err := s.Start(); err == nil {
		t.Fatal("expected schedule error")
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("Stop after failed Start: %v", err)
	}
}

func TestScheduler_RunsAndStops(t *testing.T) {
	t.Parallel()

	ran := make(chan struct{}, 1)
	stopped := make(chan struct{})
	var once sync.Once
	s := NewScheduler(nil)
	_ = s.RegisterJob(funcJob{name: "tick", schedule: "@every 1s", run: func(ctx context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		<-ctx.Done()
		once.Do(func() { close(stopped) })
		return ctx.Err()
	}})
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job never ran")
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-stopped:
	default:
		t.Error("Stop returned before the running job saw cancellation")
	}
}

func TestScheduler_SkipsOverlappingTicks(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var runs, active, peak atomic.Int32
	s := NewScheduler(nil)
	job := funcJob{name: "slow", schedule: "@hourly", run: func(context.Context) error {
		runs.Add(1)
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		active.Add(-1)
		return errors.New("done")
	}}
	_ = s.RegisterJob(job)
	tick := s.wrap(context.Background(), job)

	var wg sync.WaitGroup
	started := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		close(started)
		tick()
	}()
	<-started
	for runs.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	for range 5 {
		tick()
	}
	close(release)
	wg.Wait()

	if runs.Load() != 1 || peak.Load() != 1 {
		t.Errorf("runs = %d, peak = %d; overlapping ticks should be skipped", runs.Load(), peak.Load())
	}
}

func TestValidateSchedule(t *testing.T) {
	t.Parallel()

	for _, expr := range []string{"*/5 * * * *", "@daily", "@every 30s"} {
		if err := ValidateSchedule(expr); err != nil {
			t.Errorf("ValidateSchedule(%q) = %v", expr, err)
		}
	}
	for _, expr := range []string{"", "every day", "60 * * * *", "* * * * * *"} {
		if err := ValidateSchedule(expr); err == nil {
			t.Errorf("ValidateSchedule(%q) accepted", expr)
		}
	}
}
