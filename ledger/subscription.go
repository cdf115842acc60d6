package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/Franklin1312/ChainPass/event"
)

var ErrSubscriptionClosed = errors.New("subscription closed")

// Subscription delivers decoded ledger events until it fails or is closed.
// Err yields at most one error; Events is closed once delivery stops.
type Subscription struct {
	events <-chan any
	errs   <-chan error

	closeOnce sync.Once
	closeFn   func()
}

func NewSubscription(events <-chan any, errs <-chan error, closeFn func()) *Subscription {
	return &Subscription{
		events:  events,
		errs:    errs,
		closeFn: closeFn,
	}
}

func (s *Subscription) Events() <-chan any {
	return s.events
}

func (s *Subscription) Err() <-chan error {
	return s.errs
}

func (s *Subscription) Close() {
	s.closeOnce.Do(s.closeFn)
}

// Subscribe opens a websocket log subscription for the named contract events,
// starting at the current head.
func (c *Client) Subscribe(ctx context.Context, names ...string) (*Subscription, error) {
	if c.wsURL == "" {
		return nil, errors.New("ledger websocket url is not configured")
	}

	var topics []common.Hash
	for _, name := range names {
		ev, ok := contractABI.Events[name]
		if !ok {
			return nil, fmt.Errorf("unknown ledger event %q", name)
		}
		topics = append(topics, ev.ID)
	}

	ws, err := ethclient.DialContext(ctx, c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("dialing ledger websocket: %w", err)
	}

	logs := make(chan types.Log, 64)
	sub, err := ws.SubscribeFilterLogs(ctx, ethereum.FilterQuery{
		Addresses: []common.Address{c.address},
		Topics:    [][]common.Hash{topics},
	}, logs)
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("subscribing to logs: %w", err)
	}

	events := make(chan any)
	errs := make(chan error, 1)
	done := make(chan struct{})

	go func() {
		defer close(events)
		defer ws.Close()
		defer sub.Unsubscribe()

		logger := log.FromContext(ctx)

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				if err == nil {
					err = ErrSubscriptionClosed
				}
				errs <- err
				return
			case l := <-logs:
				// Logs of reorged-out blocks are replayed with Removed set.
				if l.Removed {
					continue
				}

				decoded, err := DecodeLog(l, time.Now())
				if err != nil {
					logger.WithError(err).WithField("tx_hash", l.TxHash.Hex()).Warn("Skipping undecodable log")
					continue
				}

				select {
				case events <- decoded:
				case <-done:
					return
				}
			}
		}
	}()

	return NewSubscription(events, errs, func() { close(done) }), nil
}

// DecodeLog turns a raw contract log into one of the event package types.
func DecodeLog(l types.Log, observedAt time.Time) (any, error) {
	if len(l.Topics) == 0 {
		return nil, errors.New("log has no topics")
	}

	abiEvent, err := contractABI.EventByID(l.Topics[0])
	if err != nil {
		return nil, fmt.Errorf("looking up event: %w", err)
	}

	fields := map[string]any{}
	if err := contractABI.UnpackIntoMap(fields, abiEvent.Name, l.Data); err != nil {
		return nil, fmt.Errorf("unpacking %s data: %w", abiEvent.Name, err)
	}

	var indexed abi.Arguments
	for _, arg := range abiEvent.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if err := abi.ParseTopicsIntoMap(fields, indexed, l.Topics[1:]); err != nil {
		return nil, fmt.Errorf("unpacking %s topics: %w", abiEvent.Name, err)
	}

	f := logFields(fields)
	header := event.NewHeader(l.TxHash.Hex(), l.Index, l.BlockNumber, observedAt)

	switch abiEvent.Name {
	case "EventCreated":
		return event.EventCreated{
			Header:      header,
			EventID:     f.id("eventId"),
			Name:        f.text("name"),
			TicketPrice: FormatEther(f.wei("ticketPrice")),
			TotalSupply: f.id("totalSupply"),
		}, nil
	case "EventDeactivated":
		return event.EventDeactivated{
			Header:  header,
			EventID: f.id("eventId"),
		}, nil
	case "TicketMinted":
		return event.TicketMinted{
			Header:  header,
			TokenID: f.id("tokenId"),
			EventID: f.id("eventId"),
			Buyer:   f.address("buyer"),
			QRHash:  f.hash("qrHash"),
		}, nil
	case "TicketListed":
		return event.TicketListed{
			Header:  header,
			TokenID: f.id("tokenId"),
			Seller:  f.address("seller"),
			Price:   FormatEther(f.wei("price")),
		}, nil
	case "ListingCancelled":
		return event.ListingCancelled{
			Header:  header,
			TokenID: f.id("tokenId"),
		}, nil
	case "TicketSold":
		return event.TicketSold{
			Header:  header,
			TokenID: f.id("tokenId"),
			Seller:  f.address("seller"),
			Buyer:   f.address("buyer"),
			Price:   FormatEther(f.wei("price")),
			Fee:     FormatEther(f.wei("fee")),
		}, nil
	case "TicketUsed":
		return event.TicketUsed{
			Header:  header,
			TokenID: f.id("tokenId"),
		}, nil
	}

	return nil, fmt.Errorf("unsupported event %s", abiEvent.Name)
}

type logFields map[string]any

func (f logFields) wei(name string) *big.Int {
	v, _ := f[name].(*big.Int)
	return v
}

func (f logFields) id(name string) uint64 {
	if v := f.wei(name); v != nil {
		return v.Uint64()
	}
	return 0
}

func (f logFields) text(name string) string {
	v, _ := f[name].(string)
	return v
}

func (f logFields) address(name string) string {
	v, _ := f[name].(common.Address)
	return v.Hex()
}

func (f logFields) hash(name string) string {
	v, _ := f[name].([32]byte)
	return common.Hash(v).Hex()
}
