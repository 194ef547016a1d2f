// Package reaper runs periodic cleanup of expired authorization state.
package reaper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultInterval is used when New is given a non-positive interval.
const DefaultInterval = time.Minute

// TaskFunc removes expired entries as of now and returns how many it removed.
type TaskFunc func(ctx context.Context, now time.Time) (int, error)

// Task is a named sweep.
type Task struct {
	Name string
	Run  TaskFunc
}

// Option configures a Reaper.
type Option func(*Reaper)

// WithNowFunc overrides the clock passed to tasks.
func WithNowFunc(fn func() time.Time) Option {
	return func(r *Reaper) {
		if fn != nil {
			r.nowFunc = fn
		}
	}
}

// Reaper runs its tasks in order on a fixed interval from a single goroutine.
type Reaper struct {
	interval time.Duration
	tasks    []Task
	nowFunc  func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func New(interval time.Duration, tasks []Task, opts ...Option) *Reaper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	r := &Reaper{
		interval: interval,
		tasks:    tasks,
		nowFunc:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the background loop. Calling Start on a running reaper does nothing.
func (r *Reaper) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	go r.loop(ctx, r.done)
	log.Info().Dur("interval", r.interval).Int("tasks", len(r.tasks)).Msg("Reaper started")
}

// Stop cancels the loop and waits for an in-flight sweep to finish. It is safe to call
// more than once.
func (r *Reaper) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel, done := r.cancel, r.done
	r.running = false
	r.mu.Unlock()

	cancel()
	<-done
	log.Info().Msg("Reaper stopped")
}

func (r *Reaper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce runs every task once and returns the count each removed. A task that fails or
// panics is logged and does not stop the remaining tasks.
func (r *Reaper) RunOnce(ctx context.Context) map[string]int {
	now := r.nowFunc()
	counts := make(map[string]int, len(r.tasks))

	for _, task := range r.tasks {
		if ctx.Err() != nil {
			break
		}
		n, err := runTask(ctx, task, now)
		if err != nil {
			log.Error().Err(err).Str("task", task.Name).Msg("Sweep failed")
			continue
		}
		counts[task.Name] = n
		if n > 0 {
			log.Info().Str("task", task.Name).Int("removed", n).Msg("Swept expired entries")
		} else {
			log.Debug().Str("task", task.Name).Msg("Nothing to sweep")
		}
	}
	return counts
}

func runTask(ctx context.Context, task Task, now time.Time) (n int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in sweep %q: %v", task.Name, rec)
		}
	}()
	return task.Run(ctx, now)
}
