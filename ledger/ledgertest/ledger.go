// Package ledgertest provides an in-memory ledger for tests. It enforces the
// contract's redemption rules and emits the events a real node would.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Franklin1312/ChainPass/event"
	"github.com/Franklin1312/ChainPass/ledger"
)

type CallCounts struct {
	Reads      int
	Estimates  int
	Submits    int
	Awaits     int
	Subscribes int
}

type Ledger struct {
	lock sync.Mutex

	events  map[uint64]ledger.EventSnapshot
	tickets map[uint64]ledger.TicketSnapshot
	owners  map[uint64]string
	pending map[string]ledger.Call

	block  uint64
	nextTx uint64
	calls  CallCounts
	// readBlocks lists the block every point read was pinned to.
	readBlocks []uint64

	subscribers []*subscriber

	// ReadErr, when set, fails every point read.
	ReadErr      error
	SubmitErr    error
	SubscribeErr error
	// HoldConfirmations makes AwaitConfirmation block until its context ends.
	HoldConfirmations bool
}

type subscriber struct {
	events chan any
	errs   chan error
	done   chan struct{}
}

func New() *Ledger {
	return &Ledger{
		events:  map[uint64]ledger.EventSnapshot{},
		tickets: map[uint64]ledger.TicketSnapshot{},
		owners:  map[uint64]string{},
		pending: map[string]ledger.Call{},
	}
}

// AddEvent registers an event in a new block and returns that block.
func (l *Ledger) AddEvent(e ledger.EventSnapshot) uint64 {
	l.lock.Lock()
	defer l.lock.Unlock()

	l.block++
	l.events[e.EventID] = e
	return l.block
}

// AddTicket mints a ticket in a new block without emitting an event, as if it
// predates any subscription. It returns the block.
func (l *Ledger) AddTicket(t ledger.TicketSnapshot, owner string) uint64 {
	l.lock.Lock()
	defer l.lock.Unlock()

	l.block++
	l.tickets[t.TokenID] = t
	l.owners[t.TokenID] = owner

	if e, ok := l.events[t.EventID]; ok {
		e.TicketsMinted++
		l.events[t.EventID] = e
	}
	return l.block
}

func (l *Ledger) Ticket(tokenID uint64) (ledger.TicketSnapshot, bool) {
	l.lock.Lock()
	defer l.lock.Unlock()

	t, ok := l.tickets[tokenID]
	return t, ok
}

// Transfer resells a ticket in a new block without emitting an event. It
// returns the block.
func (l *Ledger) Transfer(tokenID uint64, buyer string) uint64 {
	l.lock.Lock()
	defer l.lock.Unlock()

	l.block++
	t := l.tickets[tokenID]
	t.TransferCount++
	l.tickets[tokenID] = t
	l.owners[tokenID] = buyer

	return l.block
}

// SetBlock moves the chain head. The fake keeps no history: a read pinned to
// any block returns the current state.
func (l *Ledger) SetBlock(block uint64) {
	l.lock.Lock()
	defer l.lock.Unlock()

	l.block = block
}

func (l *Ledger) BlockNumber(_ context.Context) (uint64, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.ReadErr != nil {
		return 0, l.ReadErr
	}
	return l.block, nil
}

func (l *Ledger) ReadBlocks() []uint64 {
	l.lock.Lock()
	defer l.lock.Unlock()

	return append([]uint64(nil), l.readBlocks...)
}

func (l *Ledger) Calls() CallCounts {
	l.lock.Lock()
	defer l.lock.Unlock()

	return l.calls
}

func (l *Ledger) ReadEvent(_ context.Context, eventID uint64, block uint64) (ledger.EventSnapshot, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	l.calls.Reads++
	l.readBlocks = append(l.readBlocks, block)
	if l.ReadErr != nil {
		return ledger.EventSnapshot{}, l.ReadErr
	}

	e, ok := l.events[eventID]
	if !ok {
		return ledger.EventSnapshot{}, fmt.Errorf("event %d: %w", eventID, ledger.ErrNotFound)
	}
	return e, nil
}

func (l *Ledger) ReadTicket(_ context.Context, tokenID uint64, block uint64) (ledger.TicketSnapshot, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	l.calls.Reads++
	l.readBlocks = append(l.readBlocks, block)
	if l.ReadErr != nil {
		return ledger.TicketSnapshot{}, l.ReadErr
	}

	t, ok := l.tickets[tokenID]
	if !ok {
		return ledger.TicketSnapshot{}, fmt.Errorf("ticket %d: %w", tokenID, ledger.ErrNotFound)
	}
	return t, nil
}

func (l *Ledger) OwnerOf(_ context.Context, tokenID uint64, block uint64) (string, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	l.calls.Reads++
	l.readBlocks = append(l.readBlocks, block)
	if l.ReadErr != nil {
		return "", l.ReadErr
	}

	owner, ok := l.owners[tokenID]
	if !ok {
		return "", fmt.Errorf("owner of %d: %w", tokenID, ledger.ErrNotFound)
	}
	return owner, nil
}

func (l *Ledger) EstimateGas(_ context.Context, call ledger.Call) (uint64, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	l.calls.Estimates++

	if err := l.check(call); err != nil {
		return 0, fmt.Errorf("estimating gas for %s: %w", call.Method, err)
	}
	return 50_000, nil
}

func (l *Ledger) Submit(_ context.Context, call ledger.Call, _ uint64) (ledger.PendingTx, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	l.calls.Submits++
	if l.SubmitErr != nil {
		return ledger.PendingTx{}, l.SubmitErr
	}

	l.nextTx++
	hash := fmt.Sprintf("0x%064x", l.nextTx)
	l.pending[hash] = call

	return ledger.PendingTx{Hash: hash}, nil
}

// AwaitConfirmation mines the transaction: the contract rules are checked
// again against the current state, so the second of two racing redemptions
// reverts.
func (l *Ledger) AwaitConfirmation(ctx context.Context, tx ledger.PendingTx, _ uint64) (ledger.Receipt, error) {
	l.lock.Lock()
	l.calls.Awaits++
	hold := l.HoldConfirmations
	l.lock.Unlock()

	if hold {
		<-ctx.Done()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ledger.Receipt{}, fmt.Errorf("transaction %s: %w", tx.Hash, ledger.ErrConfirmationTimeout)
		}
		return ledger.Receipt{}, ctx.Err()
	}

	l.lock.Lock()
	call, ok := l.pending[tx.Hash]
	if !ok {
		l.lock.Unlock()
		return ledger.Receipt{}, fmt.Errorf("unknown transaction %s", tx.Hash)
	}
	delete(l.pending, tx.Hash)

	l.block++
	block := l.block

	if err := l.check(call); err != nil {
		l.lock.Unlock()
		return ledger.Receipt{}, fmt.Errorf("transaction %s failed: %w", tx.Hash, err)
	}

	tokenID, _, _ := ledger.MarkTicketAsUsedArgs(call)
	t := l.tickets[tokenID]
	t.IsUsed = true
	l.tickets[tokenID] = t
	l.lock.Unlock()

	l.Emit(event.TicketUsed{
		Header:  event.NewHeader(tx.Hash, 0, block, time.Now()),
		TokenID: tokenID,
	})

	return ledger.Receipt{TxHash: tx.Hash, BlockNumber: block}, nil
}

func (l *Ledger) check(call ledger.Call) error {
	tokenID, qrHash, ok := ledger.MarkTicketAsUsedArgs(call)
	if !ok {
		return fmt.Errorf("unsupported call %s", call.Method)
	}

	t, ok := l.tickets[tokenID]
	if !ok {
		return &ledger.RevertError{Code: ledger.CodeBadTokenID}
	}
	if t.IsUsed {
		return &ledger.RevertError{Code: ledger.CodeAlreadyUsed}
	}
	if !strings.EqualFold(t.QRHash, qrHash) {
		return &ledger.RevertError{Code: ledger.CodeBadQRHash}
	}
	return nil
}

func (l *Ledger) Subscribe(_ context.Context, _ ...string) (*ledger.Subscription, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	l.calls.Subscribes++
	if l.SubscribeErr != nil {
		return nil, l.SubscribeErr
	}

	s := &subscriber{
		events: make(chan any, 64),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	l.subscribers = append(l.subscribers, s)

	return ledger.NewSubscription(s.events, s.errs, func() {
		close(s.done)
		l.remove(s)
	}), nil
}

// Emit delivers an event to every live subscription.
func (l *Ledger) Emit(ev any) {
	l.lock.Lock()
	subscribers := append([]*subscriber(nil), l.subscribers...)
	l.lock.Unlock()

	for _, s := range subscribers {
		select {
		case s.events <- ev:
		case <-s.done:
		}
	}
}

// Disconnect fails every live subscription, as a dropped websocket would.
func (l *Ledger) Disconnect() {
	l.lock.Lock()
	subscribers := l.subscribers
	l.subscribers = nil
	l.lock.Unlock()

	for _, s := range subscribers {
		s.errs <- ledger.ErrSubscriptionClosed
	}
}

func (l *Ledger) Subscribers() int {
	l.lock.Lock()
	defer l.lock.Unlock()

	return len(l.subscribers)
}

func (l *Ledger) remove(s *subscriber) {
	l.lock.Lock()
	defer l.lock.Unlock()

	for i, other := range l.subscribers {
		if other == s {
			l.subscribers = append(l.subscribers[:i], l.subscribers[i+1:]...)
			return
		}
	}
}
