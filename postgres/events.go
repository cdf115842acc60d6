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

const eventColumns = `event_id, name, date, venue, ticket_price, total_supply,
	tickets_minted, max_resale_percent, is_active, synced_block, created_at, updated_at`

type EventRepo struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewEventRepo(db *sqlx.DB) EventRepo {
	return EventRepo{
		db:  db,
		now: time.Now,
	}
}

func (r EventRepo) UpsertEvent(ctx context.Context, eventID uint64, patch entity.EventPatch) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}

	created, err := upsertEvent(ctx, tx, eventID, patch, r.now().UTC())
	if err != nil {
		return false, errors.Join(err, tx.Rollback())
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing transaction: %w", err)
	}

	return created, nil
}

func upsertEvent(ctx context.Context, tx *sqlx.Tx, eventID uint64, patch entity.EventPatch, now time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO events (event_id, is_active, created_at, updated_at)
		VALUES ($1, TRUE, $2, $2)
		ON CONFLICT (event_id) DO NOTHING;`, eventID, now)
	if err != nil {
		return false, fmt.Errorf("inserting event: %w", err)
	}
	created, err := inserted(res)
	if err != nil {
		return false, err
	}

	var e entity.Event
	err = tx.GetContext(ctx, &e, `SELECT `+eventColumns+` FROM events WHERE event_id = $1 FOR UPDATE`, eventID)
	if err != nil {
		return false, fmt.Errorf("locking event: %w", err)
	}

	key := onceKey{kind: "event", recordID: eventID, key: patch.OnceKey, block: patch.Block}
	claimed, err := claimOnceKey(ctx, tx, key, e.SyncedBlock, now)
	if err != nil {
		return false, err
	}
	if !claimed {
		patch = patch.WithoutIncrements()
	}

	synced := e.SyncedBlock
	if !patch.Apply(&e) {
		return created, nil
	}

	_, err = tx.ExecContext(ctx, `UPDATE events SET
		name = $2, date = $3, venue = $4, ticket_price = $5, total_supply = $6,
		tickets_minted = $7, max_resale_percent = $8, is_active = $9, synced_block = $10,
		updated_at = $11
		WHERE event_id = $1`,
		e.EventID, e.Name, e.Date, e.Venue, e.TicketPrice, e.TotalSupply,
		e.TicketsMinted, e.MaxResalePercent, e.IsActive, e.SyncedBlock, now)
	if err != nil {
		return false, fmt.Errorf("updating event: %w", err)
	}

	if e.SyncedBlock > synced {
		if err := pruneOnceKeys(ctx, tx, "event", eventID, e.SyncedBlock); err != nil {
			return false, err
		}
	}

	return created, nil
}

func (r EventRepo) GetEvent(ctx context.Context, eventID uint64) (entity.Event, error) {
	var e entity.Event
	err := r.db.GetContext(ctx, &e, `SELECT `+eventColumns+` FROM events WHERE event_id = $1`, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Event{}, fmt.Errorf("event %d: %w", eventID, entity.ErrNotFound)
	}
	if err != nil {
		return entity.Event{}, fmt.Errorf("querying event: %w", err)
	}

	return e, nil
}

func (r EventRepo) FindEvents(ctx context.Context, filter entity.EventFilter) iter.Seq2[entity.Event, error] {
	return func(yield func(entity.Event, error) bool) {
		rows, err := r.db.QueryxContext(ctx, `SELECT `+eventColumns+` FROM events
			WHERE ($1::boolean = FALSE OR is_active)
			ORDER BY event_id`, filter.ActiveOnly)
		if err != nil {
			yield(entity.Event{}, fmt.Errorf("querying events: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var e entity.Event
			if err := rows.StructScan(&e); err != nil {
				yield(entity.Event{}, fmt.Errorf("scanning row: %w", err))
				return
			}
			if !yield(e, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(entity.Event{}, fmt.Errorf("iterating rows: %w", err))
		}
	}
}

type onceKey struct {
	kind     string
	recordID uint64
	key      string
	block    uint64
}

// claimOnceKey records the key and reports whether this call was the first to
// do so. It runs inside the caller's transaction, so a rollback releases it.
// Keys of blocks the record is already synced past are not stored.
func claimOnceKey(ctx context.Context, tx *sqlx.Tx, k onceKey, synced uint64, now time.Time) (bool, error) {
	if k.key == "" || (k.block != 0 && k.block <= synced) {
		return true, nil
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO applied_updates (kind, once_key, record_id, block, applied_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING;`, k.kind, k.key, k.recordID, k.block, now)
	if err != nil {
		return false, fmt.Errorf("claiming once key: %w", err)
	}

	return inserted(res)
}

// pruneOnceKeys drops the keys a snapshot at synced already covers.
func pruneOnceKeys(ctx context.Context, tx *sqlx.Tx, kind string, recordID, synced uint64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM applied_updates
		WHERE kind = $1 AND record_id = $2 AND block > 0 AND block <= $3`, kind, recordID, synced)
	if err != nil {
		return fmt.Errorf("pruning once keys: %w", err)
	}
	return nil
}

func inserted(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return n == 1, nil
}
