package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/Franklin1312/ChainPass/entity"
)

const ticketColumns = `token_id, event_id, seat_number, original_price, original_buyer,
	is_used, qr_hash, transfer_count, listing_active, listing_seller, listing_price,
	listing_listed_at, synced_block, created_at, updated_at`

type ticketRow struct {
	TokenID         uint64       `db:"token_id"`
	EventID         uint64       `db:"event_id"`
	SeatNumber      string       `db:"seat_number"`
	OriginalPrice   string       `db:"original_price"`
	OriginalBuyer   string       `db:"original_buyer"`
	IsUsed          bool         `db:"is_used"`
	QRHash          string       `db:"qr_hash"`
	TransferCount   uint64       `db:"transfer_count"`
	ListingActive   bool         `db:"listing_active"`
	ListingSeller   string       `db:"listing_seller"`
	ListingPrice    string       `db:"listing_price"`
	ListingListedAt sql.NullTime `db:"listing_listed_at"`
	SyncedBlock     uint64       `db:"synced_block"`
	CreatedAt       time.Time    `db:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
}

func (r ticketRow) ticket() entity.Ticket {
	t := entity.Ticket{
		TokenID:       r.TokenID,
		EventID:       r.EventID,
		SeatNumber:    r.SeatNumber,
		OriginalPrice: r.OriginalPrice,
		OriginalBuyer: r.OriginalBuyer,
		IsUsed:        r.IsUsed,
		QRHash:        r.QRHash,
		TransferCount: r.TransferCount,
		Listing: entity.Listing{
			IsActive: r.ListingActive,
			Seller:   r.ListingSeller,
			Price:    r.ListingPrice,
		},
		SyncedBlock: r.SyncedBlock,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.ListingListedAt.Valid {
		listedAt := r.ListingListedAt.Time.UTC()
		t.Listing.ListedAt = &listedAt
	}
	return t
}

type TicketRepo struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewTicketRepo(db *sqlx.DB) TicketRepo {
	return TicketRepo{
		db:  db,
		now: time.Now,
	}
}

func (r TicketRepo) UpsertTicket(ctx context.Context, tokenID uint64, patch entity.TicketPatch) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}

	created, err := upsertTicket(ctx, tx, tokenID, patch, r.now().UTC())
	if err != nil {
		return false, errors.Join(err, tx.Rollback())
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing transaction: %w", err)
	}

	return created, nil
}

func upsertTicket(ctx context.Context, tx *sqlx.Tx, tokenID uint64, patch entity.TicketPatch, now time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO tickets (token_id, created_at, updated_at)
		VALUES ($1, $2, $2)
		ON CONFLICT (token_id) DO NOTHING;`, tokenID, now)
	if err != nil {
		return false, fmt.Errorf("inserting ticket: %w", err)
	}
	created, err := inserted(res)
	if err != nil {
		return false, err
	}

	var row ticketRow
	err = tx.GetContext(ctx, &row, `SELECT `+ticketColumns+` FROM tickets WHERE token_id = $1 FOR UPDATE`, tokenID)
	if err != nil {
		return false, fmt.Errorf("locking ticket: %w", err)
	}

	key := onceKey{kind: "ticket", recordID: tokenID, key: patch.OnceKey, block: patch.Block}
	claimed, err := claimOnceKey(ctx, tx, key, row.SyncedBlock, now)
	if err != nil {
		return false, err
	}
	if !claimed {
		patch = patch.WithoutIncrements()
	}

	t := row.ticket()
	if !patch.Apply(&t) {
		return created, nil
	}

	var listedAt sql.NullTime
	if t.Listing.ListedAt != nil {
		listedAt = sql.NullTime{Time: *t.Listing.ListedAt, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `UPDATE tickets SET
		event_id = $2, seat_number = $3, original_price = $4, original_buyer = $5,
		is_used = $6, qr_hash = $7, transfer_count = $8, listing_active = $9,
		listing_seller = $10, listing_price = $11, listing_listed_at = $12, synced_block = $13,
		updated_at = $14
		WHERE token_id = $1`,
		t.TokenID, t.EventID, t.SeatNumber, t.OriginalPrice, t.OriginalBuyer,
		t.IsUsed, t.QRHash, t.TransferCount, t.Listing.IsActive,
		t.Listing.Seller, t.Listing.Price, listedAt, t.SyncedBlock, now)
	if err != nil {
		return false, fmt.Errorf("updating ticket: %w", err)
	}

	if t.SyncedBlock > row.SyncedBlock {
		if err := pruneOnceKeys(ctx, tx, "ticket", tokenID, t.SyncedBlock); err != nil {
			return false, err
		}
	}

	return created, nil
}

func (r TicketRepo) GetTicket(ctx context.Context, tokenID uint64) (entity.Ticket, error) {
	var row ticketRow
	err := r.db.GetContext(ctx, &row, `SELECT `+ticketColumns+` FROM tickets WHERE token_id = $1`, tokenID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Ticket{}, fmt.Errorf("ticket %d: %w", tokenID, entity.ErrNotFound)
	}
	if err != nil {
		return entity.Ticket{}, fmt.Errorf("querying ticket: %w", err)
	}

	return row.ticket(), nil
}

func (r TicketRepo) FindTickets(ctx context.Context, filter entity.TicketFilter) iter.Seq2[entity.Ticket, error] {
	return func(yield func(entity.Ticket, error) bool) {
		rows, err := r.db.QueryxContext(ctx, `SELECT `+ticketColumns+` FROM tickets
			WHERE ($1::bigint = 0 OR event_id = $1::bigint)
			AND ($2::text = '' OR lower(original_buyer) = lower($2::text))
			AND ($3::boolean = FALSE OR listing_active)
			ORDER BY token_id`, filter.EventID, filter.Owner, filter.ListedOnly)
		if err != nil {
			yield(entity.Ticket{}, fmt.Errorf("querying tickets: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var row ticketRow
			if err := rows.StructScan(&row); err != nil {
				yield(entity.Ticket{}, fmt.Errorf("scanning row: %w", err))
				return
			}
			if !yield(row.ticket(), nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(entity.Ticket{}, fmt.Errorf("iterating rows: %w", err))
		}
	}
}

// Store is the mirror backed by postgres.
type Store struct {
	EventRepo
	TicketRepo
}

func NewStore(db *sqlx.DB) Store {
	return Store{
		EventRepo:  NewEventRepo(db),
		TicketRepo: NewTicketRepo(db),
	}
}
