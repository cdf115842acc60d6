package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// namespace scopes the deterministic header ids.
var namespace = uuid.MustParse("6f1c2b1e-3a52-4c8e-9a55-5b0e52c1a7d4")

type Header struct {
	ID          string    `json:"id"`
	PublishedAt time.Time `json:"published_at"`
	BlockNumber uint64    `json:"block_number"`
	TxHash      string    `json:"tx_hash"`
	LogIndex    uint      `json:"log_index"`
}

// NewHeader identifies a ledger log. The same log always yields the same ID,
// so a redelivered event can be recognised by it.
func NewHeader(txHash string, logIndex uint, blockNumber uint64, observedAt time.Time) Header {
	return Header{
		ID:          uuid.NewSHA1(namespace, []byte(fmt.Sprintf("%s:%d", txHash, logIndex))).String(),
		PublishedAt: observedAt.UTC(),
		BlockNumber: blockNumber,
		TxHash:      txHash,
		LogIndex:    logIndex,
	}
}

// Names lists every ledger event the mirror follows.
var Names = []string{
	"EventCreated",
	"EventDeactivated",
	"TicketMinted",
	"TicketListed",
	"ListingCancelled",
	"TicketSold",
	"TicketUsed",
}

// HeaderOf returns the header of any ledger event value or pointer.
func HeaderOf(ev any) (Header, bool) {
	switch e := ev.(type) {
	case EventCreated:
		return e.Header, true
	case *EventCreated:
		return e.Header, true
	case EventDeactivated:
		return e.Header, true
	case *EventDeactivated:
		return e.Header, true
	case TicketMinted:
		return e.Header, true
	case *TicketMinted:
		return e.Header, true
	case TicketListed:
		return e.Header, true
	case *TicketListed:
		return e.Header, true
	case ListingCancelled:
		return e.Header, true
	case *ListingCancelled:
		return e.Header, true
	case TicketSold:
		return e.Header, true
	case *TicketSold:
		return e.Header, true
	case TicketUsed:
		return e.Header, true
	case *TicketUsed:
		return e.Header, true
	}
	return Header{}, false
}
