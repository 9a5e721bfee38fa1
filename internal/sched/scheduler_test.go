package sched

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerFiresOnInterval(t *testing.T) {
	s := New(2)
	var fired int64
	err := s.Add(Task{
		Name:  "tick",
		Every: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt64(&fired, 1)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if n := atomic.LoadInt64(&fired); n < 3 {
		t.Fatalf("fired %d times, want at least 3", n)
	}
}

func TestSchedulerSurvivesPanicsAndErrors(t *testing.T) {
	s := New(2)
	var panics, errs, healthy int64

	tasks := []Task{
		{
			Name:  "panics",
			Every: 5 * time.Millisecond,
			Run: func(ctx context.Context) error {
				atomic.AddInt64(&panics, 1)
				panic("boom")
			},
		},
		{
			Name:  "errors",
			Every: 5 * time.Millisecond,
			Run: func(ctx context.Context) error {
				atomic.AddInt64(&errs, 1)
				return context.DeadlineExceeded
			},
		},
		{
			Name:  "healthy",
			Every: 5 * time.Millisecond,
			Run: func(ctx context.Context) error {
				atomic.AddInt64(&healthy, 1)
				return nil
			},
		},
	}
	for _, task := range tasks {
		if err := s.Add(task); err != nil {
			t.Fatalf("add %s: %v", task.Name, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if n := atomic.LoadInt64(&panics); n < 2 {
		t.Fatalf("panicking task fired %d times, want at least 2", n)
	}
	if n := atomic.LoadInt64(&errs); n < 2 {
		t.Fatalf("failing task fired %d times, want at least 2", n)
	}
	if n := atomic.LoadInt64(&healthy); n < 2 {
		t.Fatalf("healthy task fired %d times, want at least 2", n)
	}
}

func TestSchedulerGateVetoesTicks(t *testing.T) {
	s := New(1)
	var fired int64
	err := s.Add(Task{
		Name:  "gated",
		Every: 5 * time.Millisecond,
		Gate:  func(now time.Time) bool { return false },
		Run: func(ctx context.Context) error {
			atomic.AddInt64(&fired, 1)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if n := atomic.LoadInt64(&fired); n != 0 {
		t.Fatalf("gated task fired %d times, want 0", n)
	}
}

func TestSchedulerRejectsBadTasks(t *testing.T) {
	s := New(1)
	if err := s.Add(Task{Every: time.Second, Run: func(ctx context.Context) error { return nil }}); err == nil {
		t.Fatal("expected error for missing name")
	}
	if err := s.Add(Task{Name: "x", Run: func(ctx context.Context) error { return nil }}); err == nil {
		t.Fatal("expected error for missing interval")
	}
	if err := s.Add(Task{Name: "x", Every: time.Second}); err == nil {
		t.Fatal("expected error for missing run func")
	}
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	s := New(1)
	if err := s.Add(Task{
		Name:  "tick",
		Every: 5 * time.Millisecond,
		Run:   func(ctx context.Context) error { return nil },
	}); err != nil {
		t.Fatalf("add: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
