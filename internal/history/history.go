// Package history records every review action the server performs: which
// card was graded (or asked about), what the user actually said, and what
// the correction pipeline made of it. The log is what makes a voice review
// session auditable — when a card got buried by a mishearing, the history
// shows the raw transcript that caused it.
//
// Two implementations are provided: [PGStore] (PostgreSQL, shares the pool
// with the card index) and [FileStore] (append-only JSON lines, enough for
// single-user setups without a database).
package history

import (
	"context"
	"time"
)

// Entry is a single review-log record.
type Entry struct {
	// Timestamp is when the action happened (UTC).
	Timestamp time.Time `json:"timestamp"`

	// CardID and NoteID identify the card under review. Zero when the
	// reviewer was idle.
	CardID int64 `json:"card_id"`
	NoteID int64 `json:"note_id,omitempty"`

	// Deck is the deck name at review time.
	Deck string `json:"deck,omitempty"`

	// IntentKind is the classified intent: "grade", "question", or
	// "ambiguous".
	IntentKind string `json:"intent_kind"`

	// Ease is the Anki button submitted (1–4). Zero for non-grade entries.
	Ease int `json:"ease,omitempty"`

	// Transcript is the raw STT text; Corrected is the text after the
	// correction pipeline. Equal when no correction fired.
	Transcript string `json:"transcript"`
	Corrected  string `json:"corrected,omitempty"`
}

// Store persists review-log entries.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Record appends one entry to the log.
	Record(ctx context.Context, e Entry) error

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)
}
