package history_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ankivoice/ankivoice/internal/history"
)

func newFileStore(t *testing.T) *history.FileStore {
	t.Helper()
	return history.NewFileStore(filepath.Join(t.TempDir(), "review.jsonl"))
}

func TestFileStore_RecordAndRecent(t *testing.T) {
	t.Parallel()

	fs := newFileStore(t)
	ctx := context.Background()

	entries := []history.Entry{
		{CardID: 1, Deck: "Spanish::Verbs", IntentKind: "grade", Ease: 3, Transcript: "good"},
		{CardID: 2, Deck: "Spanish::Verbs", IntentKind: "question", Transcript: "why is that"},
		{CardID: 3, Deck: "Biology", IntentKind: "grade", Ease: 1, Transcript: "agane", Corrected: "again"},
	}
	for _, e := range entries {
		if err := fs.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := fs.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}

	// Newest first.
	if got[0].CardID != 3 || got[2].CardID != 1 {
		t.Errorf("order wrong: %+v", got)
	}
	if got[0].Corrected != "again" {
		t.Errorf("Corrected=%q, want %q", got[0].Corrected, "again")
	}
	// Zero timestamps are filled at write time.
	if got[0].Timestamp.IsZero() {
		t.Error("Timestamp not filled")
	}
}

func TestFileStore_RecentLimit(t *testing.T) {
	t.Parallel()

	fs := newFileStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		e := history.Entry{CardID: int64(i), IntentKind: "grade", Ease: 3, Transcript: "good"}
		if err := fs.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := fs.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].CardID != 5 || got[1].CardID != 4 {
		t.Errorf("got cards %d, %d; want 5, 4", got[0].CardID, got[1].CardID)
	}
}

func TestFileStore_RecentMissingFile(t *testing.T) {
	t.Parallel()

	fs := history.NewFileStore(filepath.Join(t.TempDir(), "never-written.jsonl"))
	got, err := fs.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent on missing file: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d entries, want 0", len(got))
	}
}

func TestFileStore_SkipsCorruptLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "review.jsonl")
	fs := history.NewFileStore(path)
	ctx := context.Background()

	if err := fs.Record(ctx, history.Entry{CardID: 1, IntentKind: "grade", Ease: 4, Transcript: "easy"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	// Simulate a torn write.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString("{\"card_id\": 2, \"trunc\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()

	if err := fs.Record(ctx, history.Entry{CardID: 3, IntentKind: "grade", Ease: 2, Transcript: "hard"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := fs.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2 (corrupt line skipped)", len(got))
	}
}

func TestFileStore_PreservesExplicitTimestamp(t *testing.T) {
	t.Parallel()

	fs := newFileStore(t)
	ctx := context.Background()

	ts := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	if err := fs.Record(ctx, history.Entry{Timestamp: ts, CardID: 1, IntentKind: "grade", Ease: 3, Transcript: "good"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := fs.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if !got[0].Timestamp.Equal(ts) {
		t.Errorf("Timestamp=%v, want %v", got[0].Timestamp, ts)
	}
}
