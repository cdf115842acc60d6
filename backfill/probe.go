package backfill

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/Franklin1312/ChainPass/ledger"
)

type ProbeOptions struct {
	// MaxID bounds the sweep. Zero means no bound.
	MaxID uint64
	// GapTolerance is how many consecutive missing ids are skipped before the
	// sweep ends. Ids are expected to be dense, so the default is zero.
	GapTolerance uint64
	// OnGap is called for every missing id that turned out to be followed by
	// an existing one.
	OnGap func(id uint64)
}

// Probe walks ids 1, 2, 3, ... and yields each record read until read
// returns ledger.ErrNotFound. It is lazy and every range over it starts again
// from id 1. Any other error is yielded once and ends the sequence.
func Probe[T any](ctx context.Context, read func(ctx context.Context, id uint64) (T, error), opts ProbeOptions) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		var missed []uint64

		for id := uint64(1); opts.MaxID == 0 || id <= opts.MaxID; id++ {
			if err := ctx.Err(); err != nil {
				yield(zero, err)
				return
			}

			v, err := read(ctx, id)
			if errors.Is(err, ledger.ErrNotFound) {
				missed = append(missed, id)
				if uint64(len(missed)) > opts.GapTolerance {
					return
				}
				continue
			}
			if err != nil {
				yield(zero, fmt.Errorf("reading id %d: %w", id, err))
				return
			}

			if opts.OnGap != nil {
				for _, gap := range missed {
					opts.OnGap(gap)
				}
			}
			missed = missed[:0]

			if !yield(v, nil) {
				return
			}
		}
	}
}
