// Package backfill replays the ledger's current state into the mirror by
// sweeping the dense event and ticket id spaces.
package backfill

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"

	"github.com/Franklin1312/ChainPass/entity"
	"github.com/Franklin1312/ChainPass/ledger"
	"github.com/Franklin1312/ChainPass/metrics"
)

type Ledger interface {
	BlockNumber(ctx context.Context) (uint64, error)
	ReadEvent(ctx context.Context, eventID uint64, block uint64) (ledger.EventSnapshot, error)
	ReadTicket(ctx context.Context, tokenID uint64, block uint64) (ledger.TicketSnapshot, error)
	OwnerOf(ctx context.Context, tokenID uint64, block uint64) (string, error)
}

type Store interface {
	UpsertEvent(ctx context.Context, eventID uint64, patch entity.EventPatch) (bool, error)
	UpsertTicket(ctx context.Context, tokenID uint64, patch entity.TicketPatch) (bool, error)
}

type Config struct {
	MaxEventID   uint64
	MaxTokenID   uint64
	GapTolerance uint64
}

type Report struct {
	Block      uint64        `json:"block"`
	Events     int           `json:"events"`
	Tickets    int           `json:"tickets"`
	EventGaps  []uint64      `json:"eventGaps,omitempty"`
	TicketGaps []uint64      `json:"ticketGaps,omitempty"`
	Took       time.Duration `json:"took"`
}

type Backfiller struct {
	ledger Ledger
	store  Store
	config Config
}

func New(l Ledger, s Store, config Config) *Backfiller {
	return &Backfiller{
		ledger: l,
		store:  s,
		config: config,
	}
}

// Run sweeps events, then tickets, both read at the head block seen when it
// starts. Running it again over an unchanged ledger leaves the mirror as it
// was.
func (b *Backfiller) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	var report Report

	if err := b.SyncEvents(ctx, &report); err != nil {
		metrics.BackfillRuns.WithLabelValues("failed").Inc()
		return report, err
	}

	if err := b.SyncTickets(ctx, &report); err != nil {
		metrics.BackfillRuns.WithLabelValues("failed").Inc()
		return report, err
	}

	report.Took = time.Since(start)
	metrics.BackfillRuns.WithLabelValues("ok").Inc()

	log.FromContext(ctx).
		WithField("block", report.Block).
		WithField("events", report.Events).
		WithField("tickets", report.Tickets).
		WithField("gaps", len(report.EventGaps)+len(report.TicketGaps)).
		WithField("took", report.Took).
		Info("Backfill complete")

	return report, nil
}

// pin fixes the block a sweep reads at, once per report.
func (b *Backfiller) pin(ctx context.Context, report *Report) error {
	if report.Block != 0 {
		return nil
	}

	head, err := b.ledger.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("pinning backfill block: %w", err)
	}
	report.Block = head

	return nil
}

// SyncEvents mirrors every event as of report.Block, pinning it to the
// current head when unset.
func (b *Backfiller) SyncEvents(ctx context.Context, report *Report) error {
	logger := log.FromContext(ctx)
	if err := b.pin(ctx, report); err != nil {
		return err
	}

	read := func(ctx context.Context, eventID uint64) (ledger.EventSnapshot, error) {
		return b.ledger.ReadEvent(ctx, eventID, report.Block)
	}

	events := Probe(ctx, read, ProbeOptions{
		MaxID:        b.config.MaxEventID,
		GapTolerance: b.config.GapTolerance,
		OnGap: func(id uint64) {
			logger.WithField("event_id", id).Warn("Skipped missing event id")
			report.EventGaps = append(report.EventGaps, id)
		},
	})

	for snapshot, err := range events {
		if err != nil {
			return fmt.Errorf("sweeping events: %w", err)
		}

		if _, err := b.store.UpsertEvent(ctx, snapshot.EventID, EventPatch(snapshot, report.Block)); err != nil {
			return fmt.Errorf("upserting event %d: %w", snapshot.EventID, err)
		}

		logger.WithField("event_id", snapshot.EventID).Debug("Synced event")
		report.Events++
	}

	return nil
}

type ownedTicket struct {
	ledger.TicketSnapshot
	Owner string
}

func (b *Backfiller) readOwnedTicket(ctx context.Context, tokenID uint64, block uint64) (ownedTicket, error) {
	owner, err := b.ledger.OwnerOf(ctx, tokenID, block)
	if err != nil {
		return ownedTicket{}, err
	}

	snapshot, err := b.ledger.ReadTicket(ctx, tokenID, block)
	if err != nil {
		return ownedTicket{}, err
	}

	return ownedTicket{TicketSnapshot: snapshot, Owner: owner}, nil
}

// SyncTickets mirrors every token as of report.Block, pinning it to the
// current head when unset.
func (b *Backfiller) SyncTickets(ctx context.Context, report *Report) error {
	logger := log.FromContext(ctx)
	if err := b.pin(ctx, report); err != nil {
		return err
	}

	read := func(ctx context.Context, tokenID uint64) (ownedTicket, error) {
		return b.readOwnedTicket(ctx, tokenID, report.Block)
	}

	tickets := Probe(ctx, read, ProbeOptions{
		MaxID:        b.config.MaxTokenID,
		GapTolerance: b.config.GapTolerance,
		OnGap: func(id uint64) {
			logger.WithField("token_id", id).Warn("Skipped missing token id")
			report.TicketGaps = append(report.TicketGaps, id)
		},
	})

	for t, err := range tickets {
		if err != nil {
			return fmt.Errorf("sweeping tickets: %w", err)
		}

		patch := TicketPatch(t.TicketSnapshot, t.Owner, report.Block)
		if _, err := b.store.UpsertTicket(ctx, t.TokenID, patch); err != nil {
			return fmt.Errorf("upserting ticket %d: %w", t.TokenID, err)
		}

		report.Tickets++
	}

	return nil
}

// MintedKey is the once key of the minted-count increment for a token.
func MintedKey(tokenID uint64) string {
	return fmt.Sprintf("minted:%d", tokenID)
}

// EventPatch is the full mirror state of a ledger event read at block. The
// minted count only ever rises, and live mints up to block are not counted
// again.
func EventPatch(s ledger.EventSnapshot, block uint64) entity.EventPatch {
	return entity.EventPatch{
		SyncedBlock:      entity.Ptr(block),
		Name:             entity.Ptr(s.Name),
		Date:             entity.Ptr(s.Date),
		Venue:            entity.Ptr(s.Venue),
		TicketPrice:      entity.Ptr(s.TicketPrice),
		TotalSupply:      entity.Ptr(s.TotalSupply),
		MaxResalePercent: entity.Ptr(s.MaxResalePercent),
		MinTicketsMinted: entity.Ptr(s.TicketsMinted),
		IsActive:         entity.Ptr(s.IsActive),
	}
}

func TicketPatch(s ledger.TicketSnapshot, owner string, block uint64) entity.TicketPatch {
	return entity.TicketPatch{
		SyncedBlock:   entity.Ptr(block),
		EventID:       entity.Ptr(s.EventID),
		SeatNumber:    entity.Ptr(s.SeatNumber),
		OriginalPrice: entity.Ptr(s.OriginalPrice),
		OriginalBuyer: entity.Ptr(owner),
		QRHash:        entity.Ptr(s.QRHash),
		IsUsed:        entity.Ptr(s.IsUsed),
		TransferCount: entity.Ptr(s.TransferCount),
	}
}
