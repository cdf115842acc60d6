// Package listener follows the ledger's event subscription and hands every
// decoded event to the event bus. It owns reconnecting: a dropped subscription
// is re-established with exponential backoff, resuming from the current head.
package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/cenkalti/backoff/v3"

	"github.com/Franklin1312/ChainPass/event"
	"github.com/Franklin1312/ChainPass/ledger"
	"github.com/Franklin1312/ChainPass/metrics"
)

type Ledger interface {
	Subscribe(ctx context.Context, names ...string) (*ledger.Subscription, error)
}

type Publisher interface {
	Publish(ctx context.Context, event any) error
}

type Config struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

type Listener struct {
	ledger    Ledger
	publisher Publisher
	config    Config

	running     chan struct{}
	runningOnce sync.Once
}

func New(l Ledger, p Publisher, config Config) *Listener {
	if config.InitialInterval == 0 {
		config.InitialInterval = time.Second
	}
	if config.MaxInterval == 0 {
		config.MaxInterval = time.Minute
	}

	return &Listener{
		ledger:    l,
		publisher: p,
		config:    config,
		running:   make(chan struct{}),
	}
}

// Running is closed once the first subscription is established.
func (l *Listener) Running() chan struct{} {
	return l.running
}

// Run keeps a subscription open until ctx is done. It never gives up on its
// own.
func (l *Listener) Run(ctx context.Context) error {
	logger := log.FromContext(ctx)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.config.InitialInterval
	b.MaxInterval = l.config.MaxInterval
	b.MaxElapsedTime = 0

	err := backoff.RetryNotify(
		func() error {
			return l.listen(ctx, b)
		},
		backoff.WithContext(b, ctx),
		func(err error, next time.Duration) {
			metrics.SubscriptionReconnects.Inc()
			logger.WithError(err).WithField("retry_in", next).Warn("Ledger subscription lost, reconnecting")
		},
	)
	if ctx.Err() != nil {
		return nil
	}

	return err
}

func (l *Listener) listen(ctx context.Context, b backoff.BackOff) error {
	sub, err := l.ledger.Subscribe(ctx, event.Names...)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return fmt.Errorf("subscribing to ledger events: %w", err)
	}
	defer sub.Close()

	log.FromContext(ctx).Info("Subscribed to ledger events")
	l.runningOnce.Do(func() { close(l.running) })

	// A working subscription starts the next outage from the shortest delay,
	// whether or not any event arrived on it.
	b.Reset()

	for {
		select {
		case <-ctx.Done():
			return backoff.Permanent(ctx.Err())

		case err := <-sub.Err():
			if err == nil {
				err = ledger.ErrSubscriptionClosed
			}
			return err

		case ev, ok := <-sub.Events():
			if !ok {
				return ledger.ErrSubscriptionClosed
			}

			l.forward(ctx, ev)
		}
	}
}

func (l *Listener) forward(ctx context.Context, ev any) {
	name := cqrs.StructName(ev)
	logger := log.FromContext(ctx).WithField("event_name", name)

	if header, ok := event.HeaderOf(ev); ok {
		ctx = log.ContextWithCorrelationID(ctx, header.ID)
		logger = logger.WithField("tx_hash", header.TxHash).WithField("block", header.BlockNumber)
	}

	if err := l.publisher.Publish(ctx, ev); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		metrics.EventsDropped.WithLabelValues(name).Inc()
		logger.WithError(err).Error("Failed to publish ledger event")
		return
	}

	logger.Debug("Published ledger event")
}
