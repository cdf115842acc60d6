// Package memory is the in-process mirror store, used when no database is
// configured and in tests.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/Franklin1312/ChainPass/entity"
)

type Store struct {
	events     map[uint64]entity.Event
	tickets    map[uint64]entity.Ticket
	eventKeys  onceKeys
	ticketKeys onceKeys
	lock       *sync.RWMutex

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		events:     make(map[uint64]entity.Event),
		tickets:    make(map[uint64]entity.Ticket),
		eventKeys:  make(onceKeys),
		ticketKeys: make(onceKeys),
		lock:       &sync.RWMutex{},
		now:        time.Now,
	}
}

func (s *Store) UpsertEvent(_ context.Context, eventID uint64, patch entity.EventPatch) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	now := s.now().UTC()
	e, exists := s.events[eventID]
	if !exists {
		e = entity.NewEvent(eventID, now)
	}

	if !s.eventKeys.claim(eventID, patch.OnceKey, patch.Block, e.SyncedBlock) {
		patch = patch.WithoutIncrements()
	}

	synced := e.SyncedBlock
	if patch.Apply(&e) {
		e.UpdatedAt = now
	}
	s.events[eventID] = e

	if e.SyncedBlock > synced {
		s.eventKeys.prune(eventID, e.SyncedBlock)
	}

	return !exists, nil
}

func (s *Store) UpsertTicket(_ context.Context, tokenID uint64, patch entity.TicketPatch) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	now := s.now().UTC()
	t, exists := s.tickets[tokenID]
	if !exists {
		t = entity.NewTicket(tokenID, now)
	}

	if !s.ticketKeys.claim(tokenID, patch.OnceKey, patch.Block, t.SyncedBlock) {
		patch = patch.WithoutIncrements()
	}

	synced := t.SyncedBlock
	if patch.Apply(&t) {
		t.UpdatedAt = now
	}
	s.tickets[tokenID] = t

	if t.SyncedBlock > synced {
		s.ticketKeys.prune(tokenID, t.SyncedBlock)
	}

	return !exists, nil
}

// onceKeys holds the claimed once keys per record, with the block of the log
// that claimed them. Guarded by the store's lock.
type onceKeys map[uint64]map[string]uint64

// claim records the key and reports whether this call was the first to do so.
// Keys of blocks the record is already synced past are not kept.
func (k onceKeys) claim(id uint64, key string, block, synced uint64) bool {
	if key == "" || (block != 0 && block <= synced) {
		return true
	}

	keys, ok := k[id]
	if !ok {
		keys = make(map[string]uint64)
		k[id] = keys
	}
	if _, ok := keys[key]; ok {
		return false
	}
	keys[key] = block

	return true
}

// prune forgets the keys claimed at or below synced. A redelivered patch of
// those blocks has its increments dropped by the record's SyncedBlock instead.
func (k onceKeys) prune(id uint64, synced uint64) {
	keys := k[id]
	for key, block := range keys {
		if block != 0 && block <= synced {
			delete(keys, key)
		}
	}
	if len(keys) == 0 {
		delete(k, id)
	}
}

func (s *Store) GetEvent(_ context.Context, eventID uint64) (entity.Event, error) {
	s.lock.RLock()
	e, exists := s.events[eventID]
	s.lock.RUnlock()

	if !exists {
		return entity.Event{}, fmt.Errorf("event %d: %w", eventID, entity.ErrNotFound)
	}
	return e, nil
}

func (s *Store) GetTicket(_ context.Context, tokenID uint64) (entity.Ticket, error) {
	s.lock.RLock()
	t, exists := s.tickets[tokenID]
	s.lock.RUnlock()

	if !exists {
		return entity.Ticket{}, fmt.Errorf("ticket %d: %w", tokenID, entity.ErrNotFound)
	}
	return t, nil
}

// FindEvents yields matching events in ascending id order. Each range over the
// sequence reads a fresh snapshot.
func (s *Store) FindEvents(_ context.Context, filter entity.EventFilter) iter.Seq2[entity.Event, error] {
	return func(yield func(entity.Event, error) bool) {
		s.lock.RLock()
		events := make([]entity.Event, 0, len(s.events))
		for _, e := range s.events {
			if filter.Match(e) {
				events = append(events, e)
			}
		}
		s.lock.RUnlock()

		slices.SortFunc(events, func(a, b entity.Event) int {
			return cmp.Compare(a.EventID, b.EventID)
		})

		for _, e := range events {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (s *Store) FindTickets(_ context.Context, filter entity.TicketFilter) iter.Seq2[entity.Ticket, error] {
	return func(yield func(entity.Ticket, error) bool) {
		s.lock.RLock()
		tickets := make([]entity.Ticket, 0, len(s.tickets))
		for _, t := range s.tickets {
			if filter.Match(t) {
				tickets = append(tickets, t)
			}
		}
		s.lock.RUnlock()

		slices.SortFunc(tickets, func(a, b entity.Ticket) int {
			return cmp.Compare(a.TokenID, b.TokenID)
		})

		for _, t := range tickets {
			if !yield(t, nil) {
				return
			}
		}
	}
}
