package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jason-s-yu/pricecheck/internal/models"
)

// RoomEventsSchema creates the archive table the historian writes to.
const RoomEventsSchema = `
CREATE TABLE IF NOT EXISTS room_events (
	room_id     INT NOT NULL,
	seq         BIGINT NOT NULL,
	event_type  TEXT NOT NULL,
	payload     JSONB,
	recorded_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (room_id, seq)
);
CREATE INDEX IF NOT EXISTS room_events_type_idx ON room_events (event_type, recorded_at);
`

// Execer is satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Migrate applies each schema statement in order.
func Migrate(ctx context.Context, db Execer, schemas ...string) error {
	for _, s := range schemas {
		if _, err := db.Exec(ctx, s); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// txBeginner is satisfied by *pgxpool.Pool and *pgx.Conn.
type txBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// EventArchive writes room events to Postgres.
type EventArchive struct {
	db txBeginner
}

// NewEventArchive returns an archive writing through db.
func NewEventArchive(db txBeginner) *EventArchive {
	return &EventArchive{db: db}
}

// WriteEvents stores a batch in one transaction. Events already archived
// (same room and seq, e.g. after a historian restart) are skipped.
func (a *EventArchive) WriteEvents(ctx context.Context, events []models.RoomEvent) error {
	if len(events) == 0 {
		return nil
	}
	return beginTxFunc(ctx, a.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `CREATE TEMP TABLE room_events_in (LIKE room_events) ON COMMIT DROP`); err != nil {
			return fmt.Errorf("create staging table: %w", err)
		}
		_, err := tx.CopyFrom(ctx, pgx.Identifier{"room_events_in"},
			[]string{"room_id", "seq", "event_type", "payload", "recorded_at"},
			pgx.CopyFromSlice(len(events), func(i int) ([]any, error) {
				ev := events[i]
				var payload any
				if len(ev.Payload) > 0 {
					payload = string(ev.Payload)
				}
				return []any{ev.RoomID, ev.Seq, ev.EventType, payload, time.UnixMilli(ev.Timestamp).UTC()}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy room events: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO room_events
			SELECT * FROM room_events_in
			ON CONFLICT (room_id, seq) DO NOTHING
		`)
		return err
	})
}

// beginTxFunc starts a transaction, calls f with it, and commits or rolls back
// as needed.
func beginTxFunc(ctx context.Context, db txBeginner, txOptions pgx.TxOptions, f func(tx pgx.Tx) error) error {
	tx, err := db.BeginTx(ctx, txOptions)
	if err != nil {
		return err
	}
	if err := f(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx rollback error: %v; original error: %w", rbErr, err)
		}
		return err
	}
	return tx.Commit(ctx)
}
