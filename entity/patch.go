package entity

import "time"

// EventPatch is a partial update of an Event. Nil fields are left untouched.
type EventPatch struct {
	Name             *string
	Date             *string
	Venue            *string
	TicketPrice      *string
	TotalSupply      *uint64
	MaxResalePercent *uint64
	TicketsMinted    *uint64
	// MinTicketsMinted raises TicketsMinted to at least this value.
	MinTicketsMinted *uint64
	AddTicketsMinted uint64
	// IsActive can only deactivate: true never reactivates an event.
	IsActive *bool

	// OnceKey makes the increments of this patch apply at most once per key.
	// A patch without increments still claims the key.
	OnceKey string
	// Block is the ledger block of the log the patch comes from. Increments
	// at or below the record's SyncedBlock are already part of a snapshot.
	Block uint64
	// SyncedBlock marks the patch as a snapshot read at that block.
	SyncedBlock *uint64
}

// Apply merges the patch into e and reports whether any field changed.
// TicketsMinted is clamped to TotalSupply afterwards.
func (p EventPatch) Apply(e *Event) bool {
	before := *e

	if p.Block != 0 && p.Block <= e.SyncedBlock {
		p = p.WithoutIncrements()
	}
	if p.SyncedBlock != nil && *p.SyncedBlock > e.SyncedBlock {
		e.SyncedBlock = *p.SyncedBlock
	}

	setString(&e.Name, p.Name)
	setString(&e.Date, p.Date)
	setString(&e.Venue, p.Venue)
	setString(&e.TicketPrice, p.TicketPrice)
	setUint(&e.TotalSupply, p.TotalSupply)
	setUint(&e.MaxResalePercent, p.MaxResalePercent)
	setUint(&e.TicketsMinted, p.TicketsMinted)

	if p.MinTicketsMinted != nil && *p.MinTicketsMinted > e.TicketsMinted {
		e.TicketsMinted = *p.MinTicketsMinted
	}
	e.TicketsMinted += p.AddTicketsMinted
	if e.TicketsMinted > e.TotalSupply {
		e.TicketsMinted = e.TotalSupply
	}

	if p.IsActive != nil && !*p.IsActive {
		e.IsActive = false
	}

	return before != *e
}

// WithoutIncrements is the patch to apply once its key was already claimed.
func (p EventPatch) WithoutIncrements() EventPatch {
	p.AddTicketsMinted = 0
	return p
}

type ListingPatch struct {
	IsActive *bool
	Seller   *string
	Price    *string
	ListedAt *time.Time
}

// TicketPatch is a partial update of a Ticket. Nil fields are left untouched.
type TicketPatch struct {
	EventID       *uint64
	SeatNumber    *string
	OriginalPrice *string
	OriginalBuyer *string
	QRHash        *string
	// IsUsed can only mark a ticket used, never unused.
	IsUsed *bool
	// TransferCount is merged as a maximum so the counter never goes down.
	TransferCount    *uint64
	AddTransferCount uint64
	Listing          *ListingPatch

	OnceKey     string
	Block       uint64
	SyncedBlock *uint64
}

// Apply merges the patch into t and reports whether any field changed.
// A used ticket never keeps an active listing.
func (p TicketPatch) Apply(t *Ticket) bool {
	before := *t

	if p.Block != 0 && p.Block <= t.SyncedBlock {
		p = p.WithoutIncrements()
	}
	if p.SyncedBlock != nil && *p.SyncedBlock > t.SyncedBlock {
		t.SyncedBlock = *p.SyncedBlock
	}

	setUint(&t.EventID, p.EventID)
	setString(&t.SeatNumber, p.SeatNumber)
	setString(&t.OriginalPrice, p.OriginalPrice)
	setString(&t.OriginalBuyer, p.OriginalBuyer)
	setString(&t.QRHash, p.QRHash)

	if p.IsUsed != nil && *p.IsUsed {
		t.IsUsed = true
	}

	if p.TransferCount != nil && *p.TransferCount > t.TransferCount {
		t.TransferCount = *p.TransferCount
	}
	t.TransferCount += p.AddTransferCount

	if l := p.Listing; l != nil {
		if l.IsActive != nil {
			t.Listing.IsActive = *l.IsActive
		}
		setString(&t.Listing.Seller, l.Seller)
		setString(&t.Listing.Price, l.Price)
		if l.ListedAt != nil {
			listedAt := l.ListedAt.UTC()
			t.Listing.ListedAt = &listedAt
		}
	}

	if t.IsUsed {
		t.Listing.IsActive = false
	}

	return !before.sameFields(*t)
}

func (p TicketPatch) WithoutIncrements() TicketPatch {
	p.AddTransferCount = 0
	return p
}

func (t Ticket) sameFields(o Ticket) bool {
	if t.TokenID != o.TokenID ||
		t.EventID != o.EventID ||
		t.SeatNumber != o.SeatNumber ||
		t.OriginalPrice != o.OriginalPrice ||
		t.OriginalBuyer != o.OriginalBuyer ||
		t.IsUsed != o.IsUsed ||
		t.QRHash != o.QRHash ||
		t.TransferCount != o.TransferCount ||
		t.SyncedBlock != o.SyncedBlock {
		return false
	}

	a, b := t.Listing, o.Listing
	if a.IsActive != b.IsActive || a.Seller != b.Seller || a.Price != b.Price {
		return false
	}
	if (a.ListedAt == nil) != (b.ListedAt == nil) {
		return false
	}

	return a.ListedAt == nil || a.ListedAt.Equal(*b.ListedAt)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setUint(dst *uint64, v *uint64) {
	if v != nil {
		*dst = *v
	}
}
