package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/cnblogs-search/internal/crawler"
)

type gatedRunner struct {
	release chan struct{}
	calls   chan []string
	err     error
}

func (r *gatedRunner) Run(ctx context.Context, seeds []string) (crawler.RunSummary, error) {
	r.calls <- seeds
	select {
	case <-r.release:
	case <-ctx.Done():
		return crawler.RunSummary{RunID: "run-1"}, ctx.Err()
	}
	return crawler.RunSummary{RunID: "run-1", Indexed: 3}, r.err
}

func TestTriggerRunsOneAtATime(t *testing.T) {
	t.Parallel()

	runner := &gatedRunner{release: make(chan struct{}), calls: make(chan []string, 2)}
	trig := NewTrigger(context.Background(), runner, []string{"https://site/alice/default.html?page=1"}, zap.NewNop())

	require.True(t, trig.Start())
	require.Equal(t, []string{"https://site/alice/default.html?page=1"}, <-runner.calls)
	require.False(t, trig.Start())
	require.True(t, trig.Status().Running)

	close(runner.release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, trig.Wait(ctx))

	status := trig.Status()
	require.False(t, status.Running)
	require.NotNil(t, status.Summary)
	require.Equal(t, int64(3), status.Summary.Indexed)
	require.Empty(t, status.Error)
	require.False(t, status.FinishedAt.Before(status.StartedAt))

	// A finished run frees the slot.
	require.True(t, trig.Start())
	<-runner.calls
	require.NoError(t, trig.Wait(ctx))
}

func TestTriggerRecordsFailure(t *testing.T) {
	t.Parallel()

	runner := &gatedRunner{release: make(chan struct{}), calls: make(chan []string, 1), err: errors.New("flush index: disk full")}
	close(runner.release)
	trig := NewTrigger(context.Background(), runner, nil, nil)

	require.True(t, trig.Start())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, trig.Wait(ctx))
	require.Equal(t, "flush index: disk full", trig.Status().Error)
}

func TestTriggerStopsWithBaseContext(t *testing.T) {
	t.Parallel()

	base, stop := context.WithCancel(context.Background())
	runner := &gatedRunner{release: make(chan struct{}), calls: make(chan []string, 1)}
	trig := NewTrigger(base, runner, nil, zap.NewNop())

	require.True(t, trig.Start())
	<-runner.calls
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, trig.Wait(ctx))
	require.Contains(t, trig.Status().Error, context.Canceled.Error())
}

func TestTriggerWaitWithoutRun(t *testing.T) {
	t.Parallel()

	trig := NewTrigger(context.Background(), &gatedRunner{}, nil, nil)
	require.NoError(t, trig.Wait(context.Background()))
	require.Equal(t, RunStatus{}, trig.Status())
}
