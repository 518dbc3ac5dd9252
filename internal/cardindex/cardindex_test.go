package cardindex_test

import (
	"context"
	"os"
	"testing"

	"github.com/ankivoice/ankivoice/internal/cardindex"
	"github.com/ankivoice/ankivoice/pkg/provider/embeddings/mock"
)

const testDims = 4

// testIndex creates a fresh Index against the test database, or skips when
// ANKIVOICE_TEST_POSTGRES_DSN is not set.
func testIndex(t *testing.T, embedder *mock.Provider) *cardindex.Index {
	t.Helper()
	dsn := os.Getenv("ANKIVOICE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ANKIVOICE_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}

	ctx := context.Background()
	idx, err := cardindex.New(ctx, dsn, embedder)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(idx.Close)

	if _, err := idx.Pool().Exec(ctx, `TRUNCATE card_index`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return idx
}

func TestIndex_UpsertAndSimilar(t *testing.T) {
	embedder := &mock.Provider{
		DimensionsValue: testDims,
		ModelIDValue:    "test-embed",
		EmbedBatchResult: [][]float32{
			{1, 0, 0, 0},
			{0, 1, 0, 0},
		},
		// Query vector close to the first card.
		EmbedResult: []float32{0.9, 0.1, 0, 0},
	}
	idx := testIndex(t, embedder)
	ctx := context.Background()

	cards := []cardindex.Card{
		{NoteID: 1, Deck: "Biology", Front: "powerhouse of the cell?", Back: "mitochondria"},
		{NoteID: 2, Deck: "Spanish::Verbs", Front: "hablar", Back: "to speak"},
	}
	if err := idx.Upsert(ctx, cards); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	n, err := idx.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Fatalf("Count=%d, want 2", n)
	}

	hits, err := idx.Similar(ctx, "what produces energy in the cell", 2, "", 0)
	if err != nil {
		t.Fatalf("Similar: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].Card.NoteID != 1 {
		t.Errorf("closest hit NoteID=%d, want 1", hits[0].Card.NoteID)
	}
	if hits[0].Distance > hits[1].Distance {
		t.Error("hits not ordered by ascending distance")
	}
}

func TestIndex_SimilarDeckFilterAndExclusion(t *testing.T) {
	embedder := &mock.Provider{
		DimensionsValue: testDims,
		ModelIDValue:    "test-embed",
		EmbedBatchResult: [][]float32{
			{1, 0, 0, 0},
			{0.9, 0.1, 0, 0},
			{0, 0, 1, 0},
		},
		EmbedResult: []float32{1, 0, 0, 0},
	}
	idx := testIndex(t, embedder)
	ctx := context.Background()

	cards := []cardindex.Card{
		{NoteID: 1, Deck: "Biology", Front: "cell energy"},
		{NoteID: 2, Deck: "Biology", Front: "cell power"},
		{NoteID: 3, Deck: "Spanish::Verbs", Front: "hablar"},
	}
	if err := idx.Upsert(ctx, cards); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	// Deck filter keeps only Biology; exclusion drops the card itself.
	hits, err := idx.Similar(ctx, "cell energy", 10, "Biology", 1)
	if err != nil {
		t.Fatalf("Similar: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1: %+v", len(hits), hits)
	}
	if hits[0].Card.NoteID != 2 {
		t.Errorf("hit NoteID=%d, want 2", hits[0].Card.NoteID)
	}
}

func TestIndex_UpsertReplaces(t *testing.T) {
	embedder := &mock.Provider{
		DimensionsValue:  testDims,
		ModelIDValue:     "test-embed",
		EmbedBatchResult: [][]float32{{1, 0, 0, 0}},
		EmbedResult:      []float32{1, 0, 0, 0},
	}
	idx := testIndex(t, embedder)
	ctx := context.Background()

	if err := idx.Upsert(ctx, []cardindex.Card{{NoteID: 1, Deck: "D", Front: "old front"}}); err != nil {
		t.Fatalf("first Upsert: %v", err)
	}
	if err := idx.Upsert(ctx, []cardindex.Card{{NoteID: 1, Deck: "D", Front: "new front"}}); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}

	n, err := idx.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("Count=%d, want 1 after replace", n)
	}

	hits, err := idx.Similar(ctx, "front", 1, "", 0)
	if err != nil {
		t.Fatalf("Similar: %v", err)
	}
	if hits[0].Card.Front != "new front" {
		t.Errorf("Front=%q, want %q", hits[0].Card.Front, "new front")
	}
}
