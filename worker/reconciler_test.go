package worker_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Franklin1312/ChainPass/backfill"
	"github.com/Franklin1312/ChainPass/worker"
)

type backfillerMock struct {
	runs    atomic.Int32
	release chan struct{}
}

func (b *backfillerMock) Run(ctx context.Context) (backfill.Report, error) {
	b.runs.Add(1)
	if b.release != nil {
		select {
		case <-b.release:
		case <-ctx.Done():
			return backfill.Report{}, ctx.Err()
		}
	}
	return backfill.Report{Events: 1}, nil
}

func TestReconciler_RunsPeriodically(t *testing.T) {
	b := &backfillerMock{}
	r := worker.NewReconciler(b, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	assert.EventuallyWithT(t, func(t *assert.CollectT) {
		assert.GreaterOrEqual(t, b.runs.Load(), int32(2))
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestReconciler_OneBackfillAtATime(t *testing.T) {
	b := &backfillerMock{release: make(chan struct{})}
	r := worker.NewReconciler(b, 0)
	ctx := context.Background()

	first := make(chan error, 1)
	go func() {
		_, err := r.Backfill(ctx)
		first <- err
	}()

	assert.EventuallyWithT(t, func(t *assert.CollectT) {
		assert.Equal(t, int32(1), b.runs.Load())
	}, time.Second, 5*time.Millisecond)

	_, err := r.Backfill(ctx)
	assert.ErrorIs(t, err, worker.ErrBusy)

	close(b.release)
	require.NoError(t, <-first)

	report, err := r.Backfill(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Events)
}

func TestReconciler_DisabledWithoutInterval(t *testing.T) {
	r := worker.NewReconciler(&backfillerMock{}, 0)

	assert.NoError(t, r.Run(context.Background()))
}
