package entity

import (
	"strings"
	"time"
)

const (
	StatusValid = "VALID"
	StatusUsed  = "USED"
)

type Ticket struct {
	TokenID       uint64 `json:"tokenId" db:"token_id"`
	EventID       uint64 `json:"eventId" db:"event_id"`
	SeatNumber    string `json:"seatNumber" db:"seat_number"`
	OriginalPrice string `json:"originalPrice" db:"original_price"`
	// OriginalBuyer is the current holder; resales overwrite it.
	OriginalBuyer string    `json:"originalBuyer" db:"original_buyer"`
	IsUsed        bool      `json:"isUsed" db:"is_used"`
	QRHash        string    `json:"qrHash" db:"qr_hash"`
	TransferCount uint64    `json:"transferCount" db:"transfer_count"`
	Listing       Listing   `json:"listing"`
	SyncedBlock   uint64    `json:"syncedBlock" db:"synced_block"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}

type Listing struct {
	IsActive bool       `json:"isActive"`
	Seller   string     `json:"seller,omitempty"`
	Price    string     `json:"price,omitempty"`
	ListedAt *time.Time `json:"listedAt,omitempty"`
}

func NewTicket(tokenID uint64, now time.Time) Ticket {
	return Ticket{
		TokenID:   tokenID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TicketSummary is what the gate scanner gets back with a validation result.
type TicketSummary struct {
	TokenID    uint64 `json:"tokenId"`
	EventID    uint64 `json:"eventId"`
	SeatNumber string `json:"seatNumber"`
	Owner      string `json:"owner"`
}

func (t Ticket) Summary() TicketSummary {
	return TicketSummary{
		TokenID:    t.TokenID,
		EventID:    t.EventID,
		SeatNumber: t.SeatNumber,
		Owner:      t.OriginalBuyer,
	}
}

type TicketStatus struct {
	TokenID    uint64 `json:"tokenId"`
	EventID    uint64 `json:"eventId"`
	SeatNumber string `json:"seatNumber"`
	Owner      string `json:"owner"`
	IsUsed     bool   `json:"isUsed"`
	Status     string `json:"status"`
}

func (t Ticket) Status() TicketStatus {
	status := StatusValid
	if t.IsUsed {
		status = StatusUsed
	}

	return TicketStatus{
		TokenID:    t.TokenID,
		EventID:    t.EventID,
		SeatNumber: t.SeatNumber,
		Owner:      t.OriginalBuyer,
		IsUsed:     t.IsUsed,
		Status:     status,
	}
}

// TicketFilter selects tickets; zero fields match everything.
type TicketFilter struct {
	EventID    uint64
	Owner      string
	ListedOnly bool
}

func (f TicketFilter) Match(t Ticket) bool {
	if f.EventID != 0 && t.EventID != f.EventID {
		return false
	}
	if f.Owner != "" && !strings.EqualFold(t.OriginalBuyer, f.Owner) {
		return false
	}
	if f.ListedOnly && !t.Listing.IsActive {
		return false
	}
	return true
}
