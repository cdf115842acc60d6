package entity

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// Event is the mirror of one ledger-registered event.
type Event struct {
	EventID          uint64    `json:"eventId" db:"event_id"`
	Name             string    `json:"name" db:"name"`
	Date             string    `json:"date" db:"date"`
	Venue            string    `json:"venue" db:"venue"`
	TicketPrice      string    `json:"ticketPrice" db:"ticket_price"`
	TotalSupply      uint64    `json:"totalSupply" db:"total_supply"`
	TicketsMinted    uint64    `json:"ticketsMinted" db:"tickets_minted"`
	MaxResalePercent uint64    `json:"maxResalePercent" db:"max_resale_percent"`
	IsActive         bool      `json:"isActive" db:"is_active"`
	// SyncedBlock is the ledger block of the newest snapshot merged in.
	SyncedBlock uint64    `json:"syncedBlock" db:"synced_block"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// NewEvent returns the record an upsert starts from when the key is absent.
func NewEvent(eventID uint64, now time.Time) Event {
	return Event{
		EventID:   eventID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

type EventFilter struct {
	ActiveOnly bool
}

func (f EventFilter) Match(e Event) bool {
	if f.ActiveOnly && !e.IsActive {
		return false
	}
	return true
}

func Ptr[T any](v T) *T {
	return &v
}
