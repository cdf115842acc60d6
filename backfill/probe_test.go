package backfill_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Franklin1312/ChainPass/backfill"
	"github.com/Franklin1312/ChainPass/ledger"
)

func readFrom(existing ...uint64) func(context.Context, uint64) (uint64, error) {
	set := map[uint64]bool{}
	for _, id := range existing {
		set[id] = true
	}
	return func(_ context.Context, id uint64) (uint64, error) {
		if !set[id] {
			return 0, fmt.Errorf("id %d: %w", id, ledger.ErrNotFound)
		}
		return id, nil
	}
}

func collect(t *testing.T, ctx context.Context, read func(context.Context, uint64) (uint64, error), opts backfill.ProbeOptions) []uint64 {
	t.Helper()

	var ids []uint64
	for id, err := range backfill.Probe(ctx, read, opts) {
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func TestProbe(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name     string
		existing []uint64
		opts     backfill.ProbeOptions
		expected []uint64
		gaps     []uint64
	}{
		{
			name:     "stops at first missing id",
			existing: []uint64{1, 2, 4},
			expected: []uint64{1, 2},
		},
		{
			name:     "empty ledger",
			expected: nil,
		},
		{
			name:     "skips gaps within tolerance",
			existing: []uint64{1, 3, 4, 7},
			opts:     backfill.ProbeOptions{GapTolerance: 1},
			expected: []uint64{1, 3, 4},
			gaps:     []uint64{2},
		},
		{
			name:     "wider tolerance",
			existing: []uint64{1, 3, 4, 7},
			opts:     backfill.ProbeOptions{GapTolerance: 2},
			expected: []uint64{1, 3, 4, 7},
			gaps:     []uint64{2, 5, 6},
		},
		{
			name:     "bounded by max id",
			existing: []uint64{1, 2, 3, 4},
			opts:     backfill.ProbeOptions{MaxID: 2},
			expected: []uint64{1, 2},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var gaps []uint64
			opts := tc.opts
			opts.OnGap = func(id uint64) { gaps = append(gaps, id) }

			assert.Equal(t, tc.expected, collect(t, ctx, readFrom(tc.existing...), opts))
			assert.Equal(t, tc.gaps, gaps)
		})
	}
}

func TestProbe_Restartable(t *testing.T) {
	ctx := context.Background()
	calls := 0
	read := func(ctx context.Context, id uint64) (uint64, error) {
		calls++
		return readFrom(1, 2, 3)(ctx, id)
	}
	seq := backfill.Probe(ctx, read, backfill.ProbeOptions{})

	for id := range seq {
		assert.Equal(t, uint64(1), id)
		break
	}
	assert.Equal(t, 1, calls, "probe must not read ahead")

	var ids []uint64
	for id, err := range seq {
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, []uint64{1, 2, 3}, ids)
}

func TestProbe_StopsOnError(t *testing.T) {
	boom := errors.New("boom")
	read := func(_ context.Context, id uint64) (uint64, error) {
		if id == 2 {
			return 0, boom
		}
		return id, nil
	}

	var errs []error
	var ids []uint64
	for id, err := range backfill.Probe(context.Background(), read, backfill.ProbeOptions{}) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ids = append(ids, id)
	}

	assert.Equal(t, []uint64{1}, ids)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], boom)
}

func TestProbe_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, err := range backfill.Probe(ctx, readFrom(1, 2), backfill.ProbeOptions{}) {
		assert.ErrorIs(t, err, context.Canceled)
	}
}
