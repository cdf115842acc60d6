package listener_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Franklin1312/ChainPass/event"
	"github.com/Franklin1312/ChainPass/ledger/ledgertest"
	"github.com/Franklin1312/ChainPass/listener"
)

type publisherMock struct {
	lock   sync.Mutex
	events []any
}

func (p *publisherMock) Publish(_ context.Context, ev any) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.events = append(p.events, ev)
	return nil
}

func (p *publisherMock) Published() []any {
	p.lock.Lock()
	defer p.lock.Unlock()

	return append([]any(nil), p.events...)
}

func startListener(t *testing.T, l *ledgertest.Ledger, p *publisherMock) (*listener.Listener, chan error) {
	t.Helper()

	return startListenerWith(t, l, p, listener.Config{
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
	})
}

func startListenerWith(t *testing.T, l *ledgertest.Ledger, p *publisherMock, config listener.Config) (*listener.Listener, chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	lis := listener.New(l, p, config)

	done := make(chan error, 1)
	go func() {
		done <- lis.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("listener did not stop")
		}
	})

	select {
	case <-lis.Running():
	case <-time.After(time.Second):
		t.Fatal("listener did not start")
	}

	return lis, done
}

func TestListener_PublishesLedgerEvents(t *testing.T) {
	l := ledgertest.New()
	p := &publisherMock{}
	startListener(t, l, p)

	used := event.TicketUsed{
		Header:  event.NewHeader("0x01", 0, 1, time.Now()),
		TokenID: 7,
	}
	l.Emit(used)

	assert.EventuallyWithT(t, func(t *assert.CollectT) {
		assert.Equal(t, []any{used}, p.Published())
	}, time.Second, 10*time.Millisecond)
}

func TestListener_ReconnectsAfterDisconnect(t *testing.T) {
	l := ledgertest.New()
	p := &publisherMock{}
	startListener(t, l, p)

	first := event.EventDeactivated{Header: event.NewHeader("0x01", 0, 1, time.Now()), EventID: 1}
	l.Emit(first)

	assert.EventuallyWithT(t, func(t *assert.CollectT) {
		assert.Len(t, p.Published(), 1)
	}, time.Second, 10*time.Millisecond)

	l.Disconnect()

	assert.EventuallyWithT(t, func(t *assert.CollectT) {
		assert.Equal(t, 1, l.Subscribers())
		assert.Equal(t, 2, l.Calls().Subscribes)
	}, time.Second, 10*time.Millisecond)

	second := event.EventDeactivated{Header: event.NewHeader("0x02", 0, 2, time.Now()), EventID: 2}
	l.Emit(second)

	assert.EventuallyWithT(t, func(t *assert.CollectT) {
		assert.Equal(t, []any{first, second}, p.Published())
	}, time.Second, 10*time.Millisecond)
}

func TestListener_QuietSubscriptionsResetBackoff(t *testing.T) {
	l := ledgertest.New()
	startListenerWith(t, l, &publisherMock{}, listener.Config{
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     time.Second,
	})

	// Without a reset the delay would reach hundreds of milliseconds by the
	// last round.
	for i := range 10 {
		l.Disconnect()

		assert.EventuallyWithT(t, func(t *assert.CollectT) {
			assert.Equal(t, 1, l.Subscribers())
			assert.Equal(t, i+2, l.Calls().Subscribes)
		}, 150*time.Millisecond, 5*time.Millisecond, "reconnect %d", i+1)
	}
}

func TestListener_StopsWithContext(t *testing.T) {
	l := ledgertest.New()
	lis := listener.New(l, &publisherMock{}, listener.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- lis.Run(ctx)
	}()

	<-lis.Running()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}

	assert.EventuallyWithT(t, func(t *assert.CollectT) {
		assert.Equal(t, 0, l.Subscribers())
	}, time.Second, 10*time.Millisecond)
}
