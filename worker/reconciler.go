// Package worker runs the periodic mirror reconciliation.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"

	"github.com/Franklin1312/ChainPass/backfill"
)

var ErrBusy = errors.New("a backfill is already running")

type Backfiller interface {
	Run(ctx context.Context) (backfill.Report, error)
}

// Reconciler re-runs the backfill to repair whatever the live subscription
// missed. At most one backfill runs at a time.
type Reconciler struct {
	backfiller Backfiller
	interval   time.Duration

	lock sync.Mutex
}

func NewReconciler(b Backfiller, interval time.Duration) *Reconciler {
	return &Reconciler{
		backfiller: b,
		interval:   interval,
	}
}

// Backfill runs a sweep now, or returns ErrBusy if one is in progress.
func (r *Reconciler) Backfill(ctx context.Context) (backfill.Report, error) {
	if !r.lock.TryLock() {
		return backfill.Report{}, ErrBusy
	}
	defer r.lock.Unlock()

	return r.backfiller.Run(ctx)
}

// Run reconciles every interval until ctx is done. A zero interval disables
// it.
func (r *Reconciler) Run(ctx context.Context) error {
	if r.interval <= 0 {
		return nil
	}

	logger := log.FromContext(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		_, err := r.Backfill(ctx)
		switch {
		case errors.Is(err, ErrBusy):
			logger.Debug("Skipping reconciliation, backfill in progress")
		case err != nil && ctx.Err() == nil:
			logger.WithError(err).Error("Reconciliation failed")
		}
	}
}
