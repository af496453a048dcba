package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"todobot/pkg/logx"
)

func startedService(t *testing.T, workers int) *Service {
	t.Helper()
	s := New(Config{Workers: workers, HistorySize: 10}, logx.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
		defer stopCancel()
		s.Stop(stopCtx)
		cancel()
	})
	return s
}

func (s *Service) defOf(t *testing.T, name string) *scheduleDef {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.defs {
		if d.name == name {
			return d
		}
	}
	t.Fatalf("job %q not registered", name)
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAddReplacesByName(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), nil)

	if err := s.Add("tick", "1m", func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add("tick", "5m", func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("Add replace: %v", err)
	}
	s.mu.Lock()
	defs := len(s.defs)
	s.mu.Unlock()
	if defs != 1 {
		t.Fatalf("defs = %d, want upsert by name", defs)
	}

	if err := s.Add("tick", "garbage", func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for invalid spec")
	}
}

func TestFireRunsJobAndRecordsHistory(t *testing.T) {
	t.Parallel()
	s := startedService(t, 1)

	var runs atomic.Int32
	if err := s.Add("count", "1m", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	d := s.defOf(t, "count")

	s.fire(d)
	waitFor(t, func() bool { return runs.Load() == 1 })
	s.fire(d)
	waitFor(t, func() bool { return runs.Load() == 2 })

	waitFor(t, func() bool { return len(s.History()) == 2 })
	hist := s.History()
	if hist[0].Name != "count" || hist[0].Error != "" {
		t.Fatalf("history = %+v", hist)
	}
}

func TestFailedJobRecordsError(t *testing.T) {
	t.Parallel()
	s := startedService(t, 1)

	if err := s.Add("flaky", "1m", func(ctx context.Context) error {
		return errors.New("boom")
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	s.fire(s.defOf(t, "flaky"))

	waitFor(t, func() bool { return len(s.History()) == 1 })
	if got := s.History()[0].Error; got != "boom" {
		t.Fatalf("history error = %q, want boom", got)
	}
}

func TestOverlappingFireSkipped(t *testing.T) {
	t.Parallel()
	s := startedService(t, 2)

	var started atomic.Int32
	release := make(chan struct{})
	if err := s.Add("slow", "1m", func(ctx context.Context) error {
		started.Add(1)
		<-release
		return nil
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	d := s.defOf(t, "slow")

	s.fire(d)
	waitFor(t, func() bool { return started.Load() == 1 })

	// The job is still in flight: a second tick must be skipped entirely.
	s.fire(d)
	time.Sleep(50 * time.Millisecond)
	if started.Load() != 1 {
		t.Fatalf("started = %d, want overlapping tick skipped", started.Load())
	}
	close(release)

	waitFor(t, func() bool { return len(s.History()) == 1 })

	// Once finished, the next tick runs again.
	s.fire(d)
	waitFor(t, func() bool { return started.Load() == 2 })
}
