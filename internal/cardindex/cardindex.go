// Package cardindex maintains a pgvector-backed semantic index of card text.
//
// Every note's front/back plain text is embedded once and stored with an
// HNSW index for cosine-distance search. The assistant uses the index to
// pull cards similar to the one under review into its follow-up answers
// ("you saw a related card about URLLC last week").
//
// The index owns its [pgxpool.Pool]; other database users (the review
// history) share it via [Index.Pool].
package cardindex

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/ankivoice/ankivoice/pkg/provider/embeddings"
)

// Card is one indexed note with its extracted plain text.
type Card struct {
	NoteID int64
	Deck   string
	Front  string
	Back   string
}

// Hit is a search result: a card and its cosine distance from the query
// (smaller is more similar).
type Hit struct {
	Card     Card
	Distance float64
}

// ddlCardIndex returns the schema with the embedding dimension baked into
// the vector column type.
func ddlCardIndex(dims int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS card_index (
    note_id     BIGINT       PRIMARY KEY,
    deck        TEXT         NOT NULL DEFAULT '',
    front       TEXT         NOT NULL,
    back        TEXT         NOT NULL DEFAULT '',
    embedding   vector(%d),
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_card_index_deck
    ON card_index (deck);

CREATE INDEX IF NOT EXISTS idx_card_index_embedding
    ON card_index USING hnsw (embedding vector_cosine_ops);
`, dims)
}

// Index is the pgvector card index. All methods are safe for concurrent use.
type Index struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
}

// New connects to the PostgreSQL database at dsn, registers pgvector types
// on every connection, and ensures the card_index table exists with the
// embedder's vector dimension. Changing the embedding model (and thus the
// dimension) after the first migration requires a manual schema change.
func New(ctx context.Context, dsn string, embedder embeddings.Provider) (*Index, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("card index: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("card index: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("card index: ping: %w", err)
	}

	dims := embedder.Dimensions()
	if dims <= 0 {
		pool.Close()
		return nil, fmt.Errorf("card index: embedder %q reports no dimension", embedder.ModelID())
	}
	if _, err := pool.Exec(ctx, ddlCardIndex(dims)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("card index: migrate: %w", err)
	}

	return &Index{pool: pool, embedder: embedder}, nil
}

// Pool exposes the underlying connection pool for components that share the
// database (the PostgreSQL review history).
func (i *Index) Pool() *pgxpool.Pool { return i.pool }

// Close releases the connection pool.
func (i *Index) Close() { i.pool.Close() }

// embedText is the canonical embedding input for a card: front and back
// joined so one vector covers both sides.
func embedText(c Card) string {
	if c.Back == "" {
		return c.Front
	}
	return c.Front + "\n" + c.Back
}

// Upsert embeds and stores the given cards. The whole batch goes to the
// embedder in one call; a card already present (same note ID) is replaced.
// An empty batch is a no-op.
func (i *Index) Upsert(ctx context.Context, cards []Card) error {
	if len(cards) == 0 {
		return nil
	}

	texts := make([]string, len(cards))
	for n, c := range cards {
		texts[n] = embedText(c)
	}
	vecs, err := i.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("card index: embed batch: %w", err)
	}
	if len(vecs) != len(cards) {
		return fmt.Errorf("card index: embed batch: got %d vectors for %d cards", len(vecs), len(cards))
	}

	const q = `
		INSERT INTO card_index (note_id, deck, front, back, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (note_id) DO UPDATE SET
		    deck       = EXCLUDED.deck,
		    front      = EXCLUDED.front,
		    back       = EXCLUDED.back,
		    embedding  = EXCLUDED.embedding,
		    updated_at = now()`

	for n, c := range cards {
		vec := pgvector.NewVector(vecs[n])
		if _, err := i.pool.Exec(ctx, q, c.NoteID, c.Deck, c.Front, c.Back, vec); err != nil {
			return fmt.Errorf("card index: upsert note %d: %w", c.NoteID, err)
		}
	}
	return nil
}

// Similar embeds text and returns the topK closest cards by cosine
// distance, most similar first. A non-empty deck restricts results to that
// deck; excludeNoteID (when non-zero) drops the card currently under review
// from its own results.
func (i *Index) Similar(ctx context.Context, text string, topK int, deck string, excludeNoteID int64) ([]Hit, error) {
	vec, err := i.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("card index: embed query: %w", err)
	}

	args := []any{pgvector.NewVector(vec)}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conditions []string
	if deck != "" {
		conditions = append(conditions, "deck = "+next(deck))
	}
	if excludeNoteID != 0 {
		conditions = append(conditions, "note_id <> "+next(excludeNoteID))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, "\n  AND ")
	}

	args = append(args, topK)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		SELECT note_id, deck, front, back,
		       embedding <=> $1 AS distance
		FROM   card_index
		%s
		ORDER  BY distance
		LIMIT  %s`, whereClause, limitArg)

	rows, err := i.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("card index: search: %w", err)
	}

	hits, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Hit, error) {
		var h Hit
		err := row.Scan(&h.Card.NoteID, &h.Card.Deck, &h.Card.Front, &h.Card.Back, &h.Distance)
		return h, err
	})
	if err != nil {
		return nil, fmt.Errorf("card index: scan rows: %w", err)
	}
	if hits == nil {
		hits = []Hit{}
	}
	return hits, nil
}

// Count returns the number of indexed cards. Used by sync logging and the
// readiness check.
func (i *Index) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := i.pool.QueryRow(ctx, `SELECT count(*) FROM card_index`).Scan(&n); err != nil {
		return 0, fmt.Errorf("card index: count: %w", err)
	}
	return n, nil
}
