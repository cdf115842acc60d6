package message

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"

	"github.com/Franklin1312/ChainPass/backfill"
	"github.com/Franklin1312/ChainPass/entity"
	"github.com/Franklin1312/ChainPass/event"
	"github.com/Franklin1312/ChainPass/ledger"
	"github.com/Franklin1312/ChainPass/metrics"
)

type Ledger interface {
	BlockNumber(ctx context.Context) (uint64, error)
	ReadEvent(ctx context.Context, eventID uint64, block uint64) (ledger.EventSnapshot, error)
	ReadTicket(ctx context.Context, tokenID uint64, block uint64) (ledger.TicketSnapshot, error)
}

type Store interface {
	UpsertEvent(ctx context.Context, eventID uint64, patch entity.EventPatch) (bool, error)
	UpsertTicket(ctx context.Context, tokenID uint64, patch entity.TicketPatch) (bool, error)
}

// Handler projects ledger events onto the mirror. Every method is safe to run
// again for the same event. Patches carry the block of their log, so an
// increment already counted by a snapshot of a later block is dropped.
type Handler struct {
	ledger Ledger
	store  Store
	maxLag time.Duration
	now    func() time.Time
}

func NewHandler(l Ledger, s Store, maxLag time.Duration) Handler {
	return Handler{
		ledger: l,
		store:  s,
		maxLag: maxLag,
		now:    time.Now,
	}
}

func (h Handler) EventCreated(ctx context.Context, e *event.EventCreated) error {
	patch := entity.EventPatch{
		Name:        entity.Ptr(e.Name),
		TicketPrice: entity.Ptr(e.TicketPrice),
		TotalSupply: entity.Ptr(e.TotalSupply),
	}

	head, err := h.ledger.BlockNumber(ctx)
	if err != nil {
		return err
	}

	snapshot, err := h.ledger.ReadEvent(ctx, e.EventID, head)
	switch {
	case err == nil:
		patch = backfill.EventPatch(snapshot, head)
	case errors.Is(err, ledger.ErrNotFound):
		log.FromContext(ctx).WithField("event_id", e.EventID).Warn("Event not readable yet, mirroring logged fields only")
	default:
		return fmt.Errorf("reading event %d: %w", e.EventID, err)
	}

	if _, err := h.store.UpsertEvent(ctx, e.EventID, patch); err != nil {
		return fmt.Errorf("upserting event %d: %w", e.EventID, err)
	}

	h.applied(ctx, "EventCreated", e.Header)
	return nil
}

func (h Handler) EventDeactivated(ctx context.Context, e *event.EventDeactivated) error {
	patch := entity.EventPatch{
		IsActive: entity.Ptr(false),
		Block:    e.Header.BlockNumber,
	}
	if _, err := h.store.UpsertEvent(ctx, e.EventID, patch); err != nil {
		return fmt.Errorf("deactivating event %d: %w", e.EventID, err)
	}

	h.applied(ctx, "EventDeactivated", e.Header)
	return nil
}

func (h Handler) TicketMinted(ctx context.Context, e *event.TicketMinted) error {
	patch := entity.TicketPatch{
		EventID: entity.Ptr(e.EventID),
	}

	head, err := h.ledger.BlockNumber(ctx)
	if err != nil {
		return err
	}

	snapshot, err := h.ledger.ReadTicket(ctx, e.TokenID, head)
	switch {
	case err == nil:
		patch = backfill.TicketPatch(snapshot, e.Buyer, head)
	case errors.Is(err, ledger.ErrNotFound):
		log.FromContext(ctx).WithField("token_id", e.TokenID).Warn("Ticket not readable yet, mirroring logged fields only")
	default:
		return fmt.Errorf("reading ticket %d: %w", e.TokenID, err)
	}
	patch.OriginalBuyer = entity.Ptr(e.Buyer)
	patch.QRHash = entity.Ptr(e.QRHash)

	if _, err := h.store.UpsertTicket(ctx, e.TokenID, patch); err != nil {
		return fmt.Errorf("upserting ticket %d: %w", e.TokenID, err)
	}

	minted := entity.EventPatch{
		AddTicketsMinted: 1,
		OnceKey:          backfill.MintedKey(e.TokenID),
		Block:            e.Header.BlockNumber,
	}
	if _, err := h.store.UpsertEvent(ctx, e.EventID, minted); err != nil {
		return fmt.Errorf("counting mint of %d: %w", e.TokenID, err)
	}

	h.applied(ctx, "TicketMinted", e.Header)
	return nil
}

func (h Handler) TicketListed(ctx context.Context, e *event.TicketListed) error {
	patch := entity.TicketPatch{
		Listing: &entity.ListingPatch{
			IsActive: entity.Ptr(true),
			Seller:   entity.Ptr(e.Seller),
			Price:    entity.Ptr(e.Price),
			ListedAt: entity.Ptr(e.Header.PublishedAt),
		},
		Block: e.Header.BlockNumber,
	}
	if _, err := h.store.UpsertTicket(ctx, e.TokenID, patch); err != nil {
		return fmt.Errorf("listing ticket %d: %w", e.TokenID, err)
	}

	h.applied(ctx, "TicketListed", e.Header)
	return nil
}

func (h Handler) ListingCancelled(ctx context.Context, e *event.ListingCancelled) error {
	patch := entity.TicketPatch{
		Listing: &entity.ListingPatch{IsActive: entity.Ptr(false)},
		Block:   e.Header.BlockNumber,
	}
	if _, err := h.store.UpsertTicket(ctx, e.TokenID, patch); err != nil {
		return fmt.Errorf("cancelling listing of %d: %w", e.TokenID, err)
	}

	h.applied(ctx, "ListingCancelled", e.Header)
	return nil
}

func (h Handler) TicketSold(ctx context.Context, e *event.TicketSold) error {
	patch := entity.TicketPatch{
		OriginalBuyer:    entity.Ptr(e.Buyer),
		AddTransferCount: 1,
		Listing:          &entity.ListingPatch{IsActive: entity.Ptr(false)},
		OnceKey:          "sold:" + e.Header.ID,
		Block:            e.Header.BlockNumber,
	}
	if _, err := h.store.UpsertTicket(ctx, e.TokenID, patch); err != nil {
		return fmt.Errorf("transferring ticket %d: %w", e.TokenID, err)
	}

	h.applied(ctx, "TicketSold", e.Header)
	return nil
}

func (h Handler) TicketUsed(ctx context.Context, e *event.TicketUsed) error {
	patch := entity.TicketPatch{
		IsUsed:  entity.Ptr(true),
		Listing: &entity.ListingPatch{IsActive: entity.Ptr(false)},
		Block:   e.Header.BlockNumber,
	}
	if _, err := h.store.UpsertTicket(ctx, e.TokenID, patch); err != nil {
		return fmt.Errorf("marking ticket %d used: %w", e.TokenID, err)
	}

	h.applied(ctx, "TicketUsed", e.Header)
	return nil
}

func (h Handler) applied(ctx context.Context, name string, header event.Header) {
	metrics.EventsApplied.WithLabelValues(name).Inc()

	lag := h.now().Sub(header.PublishedAt)
	metrics.SyncLag.WithLabelValues(name).Observe(lag.Seconds())

	logger := log.FromContext(ctx).WithField("block", header.BlockNumber).WithField("lag", lag)
	if h.maxLag > 0 && lag > h.maxLag {
		logger.Warn("Mirror is lagging behind the ledger")
		return
	}
	logger.Debug("Applied ledger event")
}
