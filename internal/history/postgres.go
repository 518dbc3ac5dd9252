package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time interface check.
var _ Store = (*PGStore)(nil)

const ddlReviewLog = `
CREATE TABLE IF NOT EXISTS review_log (
    id          BIGSERIAL    PRIMARY KEY,
    timestamp   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    card_id     BIGINT       NOT NULL DEFAULT 0,
    note_id     BIGINT       NOT NULL DEFAULT 0,
    deck        TEXT         NOT NULL DEFAULT '',
    intent_kind TEXT         NOT NULL,
    ease        INT          NOT NULL DEFAULT 0,
    transcript  TEXT         NOT NULL,
    corrected   TEXT         NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_review_log_timestamp
    ON review_log (timestamp);

CREATE INDEX IF NOT EXISTS idx_review_log_card_id
    ON review_log (card_id);
`

// PGStore is the PostgreSQL-backed review log. Obtain one via [NewPGStore].
// All methods are safe for concurrent use.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wraps an existing connection pool and ensures the review_log
// table exists. The pool is shared with whatever else uses the database
// (typically the card index) and is not closed by the store.
func NewPGStore(ctx context.Context, pool *pgxpool.Pool) (*PGStore, error) {
	if _, err := pool.Exec(ctx, ddlReviewLog); err != nil {
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

// Record implements [Store]. A zero Timestamp is filled with the current
// time.
func (s *PGStore) Record(ctx context.Context, e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	const q = `
		INSERT INTO review_log
		    (timestamp, card_id, note_id, deck, intent_kind, ease, transcript, corrected)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, q,
		e.Timestamp,
		e.CardID,
		e.NoteID,
		e.Deck,
		e.IntentKind,
		e.Ease,
		e.Transcript,
		e.Corrected,
	)
	if err != nil {
		return fmt.Errorf("history: record: %w", err)
	}
	return nil
}

// Recent implements [Store]. Entries come back newest first.
func (s *PGStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	q := `
		SELECT timestamp, card_id, note_id, deck, intent_kind, ease, transcript, corrected
		FROM   review_log
		ORDER  BY timestamp DESC`

	args := []any{}
	if limit > 0 {
		args = append(args, limit)
		q += "\nLIMIT $1"
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(
			&e.Timestamp,
			&e.CardID,
			&e.NoteID,
			&e.Deck,
			&e.IntentKind,
			&e.Ease,
			&e.Transcript,
			&e.Corrected,
		)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("history: scan rows: %w", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}
