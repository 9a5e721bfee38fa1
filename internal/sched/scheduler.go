package sched

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Task is one periodic job. Gate, when set, can veto a tick, e.g. to keep
// reconciliation inside trading hours.
type Task struct {
	Name  string
	Every time.Duration
	Gate  func(now time.Time) bool
	Run   func(ctx context.Context) error
}

// Scheduler fires tasks on their intervals through a fixed worker pool.
// Every run is wrapped in recover and error logging, so one bad cycle
// never cancels future firings.
type Scheduler struct {
	workers int

	mu    sync.Mutex
	tasks []Task
}

// New creates a scheduler with the given pool size.
func New(workers int) *Scheduler {
	if workers <= 0 {
		workers = 4
	}
	return &Scheduler{workers: workers}
}

// Add registers a task. Tasks added after Run starts are ignored.
func (s *Scheduler) Add(t Task) error {
	if t.Name == "" {
		return errors.New("sched: task needs a name")
	}
	if t.Every <= 0 {
		return errors.Errorf("sched: task %s needs a positive interval", t.Name)
	}
	if t.Run == nil {
		return errors.Errorf("sched: task %s needs a run func", t.Name)
	}

	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()
	return nil
}

// Run blocks until the context is cancelled, firing due tasks through the
// pool. Ticks arriving while all workers are busy wait their turn.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	tasks := make([]Task, len(s.tasks))
	copy(tasks, s.tasks)
	s.mu.Unlock()

	jobs := make(chan Task)
	var wg sync.WaitGroup

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case t := <-jobs:
					s.runOne(ctx, t)
				}
			}
		}()
	}

	for _, t := range tasks {
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			ticker := time.NewTicker(t.Every)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case now := <-ticker.C:
					if t.Gate != nil && !t.Gate(now) {
						continue
					}
					select {
					case jobs <- t:
					case <-ctx.Done():
						return
					}
				}
			}
		}(t)
	}

	logs.Infof("scheduler running %d tasks on %d workers", len(tasks), s.workers)
	wg.Wait()
}

func (s *Scheduler) runOne(ctx context.Context, t Task) {
	defer func() {
		if r := recover(); r != nil {
			logs.Errorf("task %s panicked: %v", t.Name, r)
		}
	}()
	if err := t.Run(ctx); err != nil {
		logs.Warnf("task %s: %+v", t.Name, err)
	}
}
