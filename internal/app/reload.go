package app

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/ankivoice/ankivoice/internal/config"
	"github.com/ankivoice/ankivoice/internal/review"
	"github.com/ankivoice/ankivoice/internal/server"
	"github.com/ankivoice/ankivoice/pkg/types"
)

// swappableReview lets a config reload replace the review service while
// requests are in flight. Each request reads the current service once, so a
// swap never splits a single utterance across two vocabularies.
type swappableReview struct {
	ptr atomic.Pointer[review.Service]
}

// Compile-time interface assertion.
var _ server.ReviewService = (*swappableReview)(nil)

func (s *swappableReview) swap(svc *review.Service) { s.ptr.Store(svc) }

func (s *swappableReview) current() *review.Service { return s.ptr.Load() }

func (s *swappableReview) HandleUtterance(ctx context.Context, t types.Transcript) (*review.Outcome, error) {
	return s.current().HandleUtterance(ctx, t)
}

func (s *swappableReview) Classify(ctx context.Context, t types.Transcript) (*review.Outcome, error) {
	return s.current().Classify(ctx, t)
}

func (s *swappableReview) Current(ctx context.Context) (*review.CardView, error) {
	return s.current().Current(ctx)
}

func (s *swappableReview) ShowAnswer(ctx context.Context) error {
	return s.current().ShowAnswer(ctx)
}

func (s *swappableReview) SubmitGrade(ctx context.Context, ease int) error {
	return s.current().SubmitGrade(ctx, ease)
}

func (s *swappableReview) Undo(ctx context.Context) error {
	return s.current().Undo(ctx)
}

func (s *swappableReview) DeleteNote(ctx context.Context, cardID int64) (int64, error) {
	return s.current().DeleteNote(ctx, cardID)
}

func (s *swappableReview) SuggestGrade(ctx context.Context, cardID int64, spoken string, confidence float64) (*review.Suggestion, error) {
	return s.current().SuggestGrade(ctx, cardID, spoken, confidence)
}

func (s *swappableReview) Ask(ctx context.Context, question string) (string, error) {
	return s.current().Ask(ctx, question)
}

func (s *swappableReview) ExplainGrade(ctx context.Context, spoken string) (string, error) {
	return s.current().ExplainGrade(ctx, spoken)
}

// ApplyConfig applies a hot reload. Only log level, classifier vocabulary,
// and judge term sets change live; everything else (listen address, provider
// stack, database DSNs) requires a restart.
//
// Pass this method to [config.NewWatcher] as the change callback.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	if d.VocabularyChanged || d.TermSetsChanged {
		a.review.swap(a.buildReview(new))
		a.server.SetKeywords(keywordBoosts(new))
		slog.Info("review vocabulary reloaded",
			"grade_words", len(new.Review.ExtraGradeWords),
			"question_cues", len(new.Review.ExtraQuestionCues),
			"term_set_decks", len(new.Review.TermSets))
	}
}

// slogLevel maps the config level to a slog level. Unknown values fall back
// to info.
func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
