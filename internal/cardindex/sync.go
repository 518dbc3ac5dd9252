package cardindex

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ankivoice/ankivoice/internal/anki"
	"github.com/ankivoice/ankivoice/internal/cardtext"
)

const (
	defaultBatchSize   = 50
	defaultConcurrency = 4
)

// CollectionSource is the slice of the AnkiConnect client the syncer needs.
// *anki.Client satisfies it.
type CollectionSource interface {
	DeckNames(ctx context.Context) ([]string, error)
	FindNotes(ctx context.Context, query string) ([]int64, error)
	NotesInfo(ctx context.Context, noteIDs []int64) ([]anki.NoteInfo, error)
}

// Upserter receives batches of extracted cards. *Index satisfies it.
type Upserter interface {
	Upsert(ctx context.Context, cards []Card) error
}

// SyncOption is a functional option for [Syncer].
type SyncOption func(*Syncer)

// WithBatchSize sets how many notes are fetched and embedded per batch.
// Default: 50.
func WithBatchSize(n int) SyncOption {
	return func(s *Syncer) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithConcurrency bounds how many decks are synced in parallel. Default: 4.
func WithConcurrency(n int) SyncOption {
	return func(s *Syncer) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets the logger used for per-deck progress. Default: slog.Default().
func WithLogger(l *slog.Logger) SyncOption {
	return func(s *Syncer) {
		s.logger = l
	}
}

// Syncer walks the Anki collection and feeds extracted card text into the
// index. Safe for a single Sync call at a time.
type Syncer struct {
	source      CollectionSource
	index       Upserter
	batchSize   int
	concurrency int
	logger      *slog.Logger
}

// NewSyncer constructs a [Syncer] over the given collection source and index.
func NewSyncer(source CollectionSource, index Upserter, opts ...SyncOption) *Syncer {
	s := &Syncer{
		source:      source,
		index:       index,
		batchSize:   defaultBatchSize,
		concurrency: defaultConcurrency,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Sync indexes the given decks, or every deck in the collection when decks
// is empty. Decks are processed in parallel (bounded by WithConcurrency);
// within a deck, notes are fetched and embedded in batches. The first error
// cancels the remaining work.
func (s *Syncer) Sync(ctx context.Context, decks []string) error {
	if len(decks) == 0 {
		var err error
		decks, err = s.source.DeckNames(ctx)
		if err != nil {
			return fmt.Errorf("card sync: list decks: %w", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, deck := range decks {
		g.Go(func() error {
			return s.syncDeck(ctx, deck)
		})
	}
	return g.Wait()
}

// syncDeck indexes one deck, batch by batch.
func (s *Syncer) syncDeck(ctx context.Context, deck string) error {
	noteIDs, err := s.source.FindNotes(ctx, fmt.Sprintf("deck:%q", deck))
	if err != nil {
		return fmt.Errorf("card sync: find notes in %q: %w", deck, err)
	}

	indexed := 0
	for start := 0; start < len(noteIDs); start += s.batchSize {
		end := min(start+s.batchSize, len(noteIDs))

		notes, err := s.source.NotesInfo(ctx, noteIDs[start:end])
		if err != nil {
			return fmt.Errorf("card sync: notes info in %q: %w", deck, err)
		}

		cards := make([]Card, 0, len(notes))
		for _, n := range notes {
			if c, ok := cardFromNote(deck, n); ok {
				cards = append(cards, c)
			}
		}
		if err := s.index.Upsert(ctx, cards); err != nil {
			return fmt.Errorf("card sync: upsert in %q: %w", deck, err)
		}
		indexed += len(cards)
	}

	s.logger.Info("deck synced", "deck", deck, "notes", len(noteIDs), "indexed", indexed)
	return nil
}

// cardFromNote extracts the plain-text front/back from a note. The field
// with template order 0 is the front, order 1 the back. Notes whose front
// strips down to nothing (media-only cards) are skipped.
func cardFromNote(deck string, n anki.NoteInfo) (Card, bool) {
	var frontHTML, backHTML string
	for _, f := range n.Fields {
		switch f.Order {
		case 0:
			frontHTML = f.Value
		case 1:
			backHTML = f.Value
		}
	}

	front := cardtext.Text(frontHTML)
	if front == "" {
		return Card{}, false
	}
	return Card{
		NoteID: n.NoteID,
		Deck:   deck,
		Front:  front,
		Back:   cardtext.Text(backHTML),
	}, true
}
