package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Franklin1312/ChainPass/entity"
	"github.com/Franklin1312/ChainPass/memory"
)

func TestStore_UpsertEvent(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()

	created, err := s.UpsertEvent(ctx, 1, entity.EventPatch{
		Name:        entity.Ptr("Genesis Concert"),
		TotalSupply: entity.Ptr(uint64(100)),
	})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.UpsertEvent(ctx, 1, entity.EventPatch{Venue: entity.Ptr("Arena")})
	require.NoError(t, err)
	assert.False(t, created)

	e, err := s.GetEvent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Genesis Concert", e.Name, "fields outside the patch are kept")
	assert.Equal(t, "Arena", e.Venue)
	assert.True(t, e.IsActive)
}

func TestStore_GetMissing(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()

	_, err := s.GetEvent(ctx, 1)
	assert.True(t, errors.Is(err, entity.ErrNotFound))

	_, err = s.GetTicket(ctx, 1)
	assert.True(t, errors.Is(err, entity.ErrNotFound))
}

func TestStore_OnceKeyDropsRepeatedIncrements(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()

	_, err := s.UpsertTicket(ctx, 7, entity.TicketPatch{OriginalBuyer: entity.Ptr("0xA")})
	require.NoError(t, err)

	sold := entity.TicketPatch{
		OriginalBuyer:    entity.Ptr("0xB"),
		AddTransferCount: 1,
		OnceKey:          "sale-1",
	}
	for range 3 {
		_, err := s.UpsertTicket(ctx, 7, sold)
		require.NoError(t, err)
	}

	ticket, err := s.GetTicket(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ticket.TransferCount)
	assert.Equal(t, "0xB", ticket.OriginalBuyer)
}

func TestStore_ConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()

	_, err := s.UpsertEvent(ctx, 1, entity.EventPatch{TotalSupply: entity.Ptr(uint64(1000))})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpsertEvent(ctx, 1, entity.EventPatch{AddTicketsMinted: 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	e, err := s.GetEvent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), e.TicketsMinted)
}

func TestStore_UpdatedAtOnlyMovesOnChange(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()

	_, err := s.UpsertTicket(ctx, 7, entity.TicketPatch{IsUsed: entity.Ptr(true)})
	require.NoError(t, err)
	before, err := s.GetTicket(ctx, 7)
	require.NoError(t, err)

	_, err = s.UpsertTicket(ctx, 7, entity.TicketPatch{IsUsed: entity.Ptr(true)})
	require.NoError(t, err)
	after, err := s.GetTicket(ctx, 7)
	require.NoError(t, err)

	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func TestStore_FindTickets(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()

	upsert := func(tokenID, eventID uint64, owner string, listed bool) {
		_, err := s.UpsertTicket(ctx, tokenID, entity.TicketPatch{
			EventID:       entity.Ptr(eventID),
			OriginalBuyer: entity.Ptr(owner),
			Listing:       &entity.ListingPatch{IsActive: entity.Ptr(listed)},
		})
		require.NoError(t, err)
	}
	upsert(3, 1, "0xAbC", false)
	upsert(1, 1, "0xabc", true)
	upsert(2, 2, "0xdef", true)

	collect := func(filter entity.TicketFilter) []uint64 {
		var ids []uint64
		for ticket, err := range s.FindTickets(ctx, filter) {
			require.NoError(t, err)
			ids = append(ids, ticket.TokenID)
		}
		return ids
	}

	assert.Equal(t, []uint64{1, 2, 3}, collect(entity.TicketFilter{}))
	assert.Equal(t, []uint64{1, 3}, collect(entity.TicketFilter{EventID: 1}))
	assert.Equal(t, []uint64{1, 3}, collect(entity.TicketFilter{Owner: "0xABC"}))
	assert.Equal(t, []uint64{1, 2}, collect(entity.TicketFilter{ListedOnly: true}))

	// The sequence can be ranged again and stops early when asked.
	seq := s.FindTickets(ctx, entity.TicketFilter{})
	for ticket := range seq {
		assert.Equal(t, uint64(1), ticket.TokenID)
		break
	}
	assert.Equal(t, []uint64{1, 2, 3}, collect(entity.TicketFilter{}))
}

func TestStore_FindEvents(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()

	for _, id := range []uint64{2, 1, 3} {
		_, err := s.UpsertEvent(ctx, id, entity.EventPatch{})
		require.NoError(t, err)
	}
	_, err := s.UpsertEvent(ctx, 2, entity.EventPatch{IsActive: entity.Ptr(false)})
	require.NoError(t, err)

	var active []uint64
	for e, err := range s.FindEvents(ctx, entity.EventFilter{ActiveOnly: true}) {
		require.NoError(t, err)
		active = append(active, e.EventID)
	}

	assert.Equal(t, []uint64{1, 3}, active)
}
