package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

func InitialiseDB(ctx context.Context, db *sqlx.DB) error {
	if err := CreateEventsTable(ctx, db); err != nil {
		return fmt.Errorf("creating events table: %w", err)
	}

	if err := CreateTicketsTable(ctx, db); err != nil {
		return fmt.Errorf("creating tickets table: %w", err)
	}

	if err := CreateAppliedUpdatesTable(ctx, db); err != nil {
		return fmt.Errorf("creating applied updates table: %w", err)
	}

	return nil
}

func CreateEventsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS events (
		event_id BIGINT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL DEFAULT '',
		venue TEXT NOT NULL DEFAULT '',
		ticket_price TEXT NOT NULL DEFAULT '',
		total_supply BIGINT NOT NULL DEFAULT 0,
		tickets_minted BIGINT NOT NULL DEFAULT 0,
		max_resale_percent BIGINT NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		synced_block BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
		CHECK (tickets_minted <= total_supply)
	);
	ALTER TABLE events ADD COLUMN IF NOT EXISTS synced_block BIGINT NOT NULL DEFAULT 0;`)
	return err
}

func CreateTicketsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS tickets (
		token_id BIGINT PRIMARY KEY,
		event_id BIGINT NOT NULL DEFAULT 0,
		seat_number TEXT NOT NULL DEFAULT '',
		original_price TEXT NOT NULL DEFAULT '',
		original_buyer TEXT NOT NULL DEFAULT '',
		is_used BOOLEAN NOT NULL DEFAULT FALSE,
		qr_hash TEXT NOT NULL DEFAULT '',
		transfer_count BIGINT NOT NULL DEFAULT 0,
		listing_active BOOLEAN NOT NULL DEFAULT FALSE,
		listing_seller TEXT NOT NULL DEFAULT '',
		listing_price TEXT NOT NULL DEFAULT '',
		listing_listed_at TIMESTAMP WITH TIME ZONE,
		synced_block BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
		CHECK (NOT (is_used AND listing_active))
	);
	ALTER TABLE tickets ADD COLUMN IF NOT EXISTS synced_block BIGINT NOT NULL DEFAULT 0;
	CREATE INDEX IF NOT EXISTS tickets_event_id_idx ON tickets (event_id);
	CREATE INDEX IF NOT EXISTS tickets_owner_idx ON tickets (lower(original_buyer));`)
	return err
}

// CreateAppliedUpdatesTable holds the once keys of increments already merged,
// with the record and ledger block they belong to so they can be pruned once
// a snapshot covers that block.
func CreateAppliedUpdatesTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS applied_updates (
		kind TEXT NOT NULL,
		once_key TEXT NOT NULL,
		record_id BIGINT NOT NULL DEFAULT 0,
		block BIGINT NOT NULL DEFAULT 0,
		applied_at TIMESTAMP WITH TIME ZONE NOT NULL,
		PRIMARY KEY (kind, once_key)
	);
	ALTER TABLE applied_updates ADD COLUMN IF NOT EXISTS record_id BIGINT NOT NULL DEFAULT 0;
	ALTER TABLE applied_updates ADD COLUMN IF NOT EXISTS block BIGINT NOT NULL DEFAULT 0;
	CREATE INDEX IF NOT EXISTS applied_updates_record_idx ON applied_updates (kind, record_id, block);`)
	return err
}
