package dispatcher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cnblogs-search/internal/crawler"
)

// Runner is the part of Dispatcher a Trigger drives.
type Runner interface {
	Run(ctx context.Context, seeds []string) (crawler.RunSummary, error)
}

// RunStatus describes the latest background run.
type RunStatus struct {
	Running    bool                `json:"running"`
	StartedAt  time.Time           `json:"started_at,omitzero"`
	FinishedAt time.Time           `json:"finished_at,omitzero"`
	Summary    *crawler.RunSummary `json:"summary,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// Trigger starts crawl runs in the background, at most one at a time. Runs
// inherit the base context, so cancelling it stops them cooperatively.
type Trigger struct {
	base   context.Context
	runner Runner
	seeds  []string
	logger *zap.Logger

	mu     sync.Mutex
	status RunStatus
	done   chan struct{}
}

// NewTrigger creates a Trigger that crawls from seeds.
func NewTrigger(base context.Context, runner Runner, seeds []string, logger *zap.Logger) *Trigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trigger{base: base, runner: runner, seeds: seeds, logger: logger}
}

// Start launches a run unless one is already in flight. It reports whether a
// new run was started.
func (t *Trigger) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Running {
		return false
	}
	t.status = RunStatus{Running: true, StartedAt: time.Now().UTC()}
	done := make(chan struct{})
	t.done = done

	go func() {
		defer close(done)
		summary, err := t.runner.Run(t.base, t.seeds)

		t.mu.Lock()
		defer t.mu.Unlock()
		t.status.Running = false
		t.status.FinishedAt = time.Now().UTC()
		t.status.Summary = &summary
		if err != nil {
			t.status.Error = err.Error()
			if !IsCancelled(err) {
				t.logger.Error("background crawl failed", zap.Error(err))
			}
		}
	}()
	return true
}

// Status snapshots the latest run.
func (t *Trigger) Status() RunStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Wait blocks until the current run, if any, has finished or ctx is done.
func (t *Trigger) Wait(ctx context.Context) error {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
