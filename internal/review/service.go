// Package review orchestrates a single voice-review step: a final
// transcript comes in, is run through the correction pipeline, classified,
// and acted on against the running Anki instance. Grades are submitted
// through AnkiConnect, questions are relayed to the assistant with the
// current card as context, and ambiguous utterances produce a reprompt for
// the client. Every action is recorded to the review history.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/ankivoice/ankivoice/internal/anki"
	"github.com/ankivoice/ankivoice/internal/assistant"
	"github.com/ankivoice/ankivoice/internal/cardtext"
	"github.com/ankivoice/ankivoice/internal/history"
	"github.com/ankivoice/ankivoice/internal/intent"
	"github.com/ankivoice/ankivoice/internal/judge"
	"github.com/ankivoice/ankivoice/internal/observe"
	"github.com/ankivoice/ankivoice/internal/transcript"
	"github.com/ankivoice/ankivoice/pkg/types"
)

// ErrInvalidEase is returned when a grade outside Anki's 1..4 button range
// is submitted.
var ErrInvalidEase = errors.New("review: ease must be between 1 and 4")

// ErrNoTermSet is returned by SuggestGrade when the current deck has no
// configured term set to judge against.
var ErrNoTermSet = errors.New("review: no term set configured for deck")

// ErrNoAssistant is returned when a question intent arrives but no
// assistant is configured.
var ErrNoAssistant = errors.New("review: no assistant configured")

// repromptMessage is sent back to the client for ambiguous utterances.
const repromptMessage = "Say a grade (again, hard, good, easy) or ask a question about the card."

// Connector is the AnkiConnect surface the service drives. Satisfied by
// *anki.Client.
type Connector interface {
	GuiShowAnswer(ctx context.Context) error
	GuiAnswerCard(ctx context.Context, ease int) error
	GuiUndoReview(ctx context.Context) error
	GuiDeckOverview(ctx context.Context) error
	NoteIDForCard(ctx context.Context, cardID int64) (int64, error)
	DeleteNotes(ctx context.Context, noteIDs []int64) error
	CardsInfo(ctx context.Context, cardIDs []int64) ([]anki.CardInfo, error)
}

// CardSource reports the card currently shown in the reviewer. Satisfied by
// *anki.Bridge.
type CardSource interface {
	Current(ctx context.Context) (*anki.CurrentCard, error)
}

// Answerer produces LLM-backed explanations and follow-up answers.
// Satisfied by *assistant.Assistant.
type Answerer interface {
	ExplainGrade(ctx context.Context, card assistant.Card, spoken string) (string, error)
	AnswerQuestion(ctx context.Context, card assistant.Card, question string) (string, error)
}

// Outcome is the result of handling one utterance, returned to the voice
// client as JSON.
type Outcome struct {
	// Kind is the classified intent: "grade", "question", or "ambiguous".
	Kind string `json:"kind"`

	// Transcript is the raw STT text; Corrected is the text after the
	// correction pipeline when it differs.
	Transcript string `json:"transcript"`
	Corrected  string `json:"corrected,omitempty"`

	// Ease is the submitted Anki button for grade outcomes.
	Ease int `json:"ease,omitempty"`

	// Answer is the assistant's reply for question outcomes.
	Answer string `json:"answer,omitempty"`

	// Reprompt is a message the client should speak back for ambiguous
	// outcomes.
	Reprompt string `json:"reprompt,omitempty"`

	// CardID and NoteID identify the card the action applied to.
	CardID int64 `json:"card_id,omitempty"`
	NoteID int64 `json:"note_id,omitempty"`
}

// CardView is the current card with its HTML rendered down to plain text.
type CardView struct {
	CardID    int64  `json:"card_id"`
	NoteID    int64  `json:"note_id"`
	DeckID    int64  `json:"deck_id"`
	FrontHTML string `json:"front_html"`
	BackHTML  string `json:"back_html"`
	FrontText string `json:"front_text"`
	BackText  string `json:"back_text"`
}

// Suggestion is a deterministic grade suggestion from the answer judge.
type Suggestion struct {
	Verdict       judge.Verdict `json:"verdict"`
	SuggestedEase int           `json:"suggested_ease"`
	Hits          []string      `json:"hits"`
	Missing       []string      `json:"missing"`
}

// Service executes review actions. All dependencies beyond the two Anki
// clients are optional; absent ones degrade the matching feature rather
// than failing construction.
type Service struct {
	anki      Connector
	cards     CardSource
	parser    *intent.Parser
	corrector transcript.Pipeline
	terms     []string
	assistant Answerer
	history   history.Store
	termSets  map[string]judge.TermSet
	metrics   *observe.Metrics
	log       *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithParser replaces the default intent parser.
func WithParser(p *intent.Parser) Option {
	return func(s *Service) { s.parser = p }
}

// WithCorrector enables transcript correction before classification. terms
// is the extra vocabulary (deck terms) aligned against in addition to the
// classifier's own words.
func WithCorrector(p transcript.Pipeline, terms ...string) Option {
	return func(s *Service) {
		s.corrector = p
		s.terms = terms
	}
}

// WithAssistant enables question answering and grade explanations.
func WithAssistant(a Answerer) Option {
	return func(s *Service) { s.assistant = a }
}

// WithHistory enables review-log recording.
func WithHistory(st history.Store) Option {
	return func(s *Service) { s.history = st }
}

// WithTermSets configures per-deck term sets for judge-based grade
// suggestions, keyed by deck name.
func WithTermSets(sets map[string]judge.TermSet) Option {
	return func(s *Service) { s.termSets = sets }
}

// WithMetrics enables metric recording.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// New builds a Service on top of the AnkiConnect client and the bridge
// add-on client.
func New(conn Connector, cards CardSource, opts ...Option) *Service {
	s := &Service{
		anki:   conn,
		cards:  cards,
		parser: intent.NewParser(),
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// HandleUtterance corrects, classifies, and acts on one final transcript.
func (s *Service) HandleUtterance(ctx context.Context, t types.Transcript) (*Outcome, error) {
	corrected := s.correct(ctx, t)

	in := s.parser.Parse(corrected)
	kind := intent.Kind(in)
	if s.metrics != nil {
		s.metrics.RecordIntent(ctx, kind)
	}
	s.log.Info("utterance classified",
		"kind", kind, "transcript", t.Text, "corrected", corrected)

	switch v := in.(type) {
	case intent.Grade:
		return s.actGrade(ctx, v.Ease, t.Text, corrected)
	case intent.Question:
		return s.actQuestion(ctx, v.SourceText, t.Text, corrected)
	default:
		s.record(ctx, history.Entry{
			IntentKind: "ambiguous",
			Transcript: t.Text,
			Corrected:  diff(t.Text, corrected),
		})
		return &Outcome{
			Kind:       "ambiguous",
			Transcript: t.Text,
			Corrected:  diff(t.Text, corrected),
			Reprompt:   repromptMessage,
		}, nil
	}
}

// Classify corrects and classifies text without acting on it.
func (s *Service) Classify(ctx context.Context, t types.Transcript) (*Outcome, error) {
	corrected := s.correct(ctx, t)

	in := s.parser.Parse(corrected)
	kind := intent.Kind(in)
	if s.metrics != nil {
		s.metrics.RecordIntent(ctx, kind)
	}

	out := &Outcome{
		Kind:       kind,
		Transcript: t.Text,
		Corrected:  diff(t.Text, corrected),
	}
	switch v := in.(type) {
	case intent.Grade:
		out.Ease = v.Ease
	case intent.Ambiguous:
		out.Reprompt = repromptMessage
	}
	return out, nil
}

// Current returns the card under review with its text stripped of HTML.
func (s *Service) Current(ctx context.Context) (*CardView, error) {
	card, err := s.currentCard(ctx)
	if err != nil {
		return nil, err
	}
	return &CardView{
		CardID:    card.CardID,
		NoteID:    card.NoteID,
		DeckID:    card.DeckID,
		FrontHTML: card.FrontHTML,
		BackHTML:  card.BackHTML,
		FrontText: cardtext.Text(card.FrontHTML),
		BackText:  cardtext.Text(card.BackHTML),
	}, nil
}

// ShowAnswer flips the current card to its answer side.
func (s *Service) ShowAnswer(ctx context.Context) error {
	return s.timed(ctx, "guiShowAnswer", s.anki.GuiShowAnswer)
}

// SubmitGrade answers the current card with ease. The answer side is shown
// first because guiAnswerCard only works once the answer is visible.
func (s *Service) SubmitGrade(ctx context.Context, ease int) error {
	if ease < 1 || ease > 4 {
		return fmt.Errorf("%w: got %d", ErrInvalidEase, ease)
	}
	if err := s.timed(ctx, "guiShowAnswer", s.anki.GuiShowAnswer); err != nil {
		return fmt.Errorf("review: show answer: %w", err)
	}
	if err := s.timed(ctx, "guiAnswerCard", func(ctx context.Context) error {
		return s.anki.GuiAnswerCard(ctx, ease)
	}); err != nil {
		return fmt.Errorf("review: answer card: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordAnswer(ctx, ease)
	}
	return nil
}

// Undo reverts the last submitted review.
func (s *Service) Undo(ctx context.Context) error {
	if err := s.timed(ctx, "guiUndoReview", s.anki.GuiUndoReview); err != nil {
		return fmt.Errorf("review: undo: %w", err)
	}
	s.log.Info("review undone")
	return nil
}

// DeleteNote deletes the note behind cardID and returns the deleted note
// ID. The reviewer is closed first: deleting the note of the card
// currently shown crashes Anki's reviewer.
func (s *Service) DeleteNote(ctx context.Context, cardID int64) (int64, error) {
	noteID, err := s.anki.NoteIDForCard(ctx, cardID)
	if err != nil {
		return 0, fmt.Errorf("review: resolve note for card %d: %w", cardID, err)
	}
	if err := s.timed(ctx, "guiDeckOverview", s.anki.GuiDeckOverview); err != nil {
		return 0, fmt.Errorf("review: close reviewer: %w", err)
	}
	if err := s.anki.DeleteNotes(ctx, []int64{noteID}); err != nil {
		return 0, fmt.Errorf("review: delete note %d: %w", noteID, err)
	}
	s.log.Info("note deleted", "card_id", cardID, "note_id", noteID)
	return noteID, nil
}

// SuggestGrade judges transcript against the term set configured for the
// deck of cardID and suggests an ease. confidence is the STT confidence
// used to pick between Good and Easy for correct answers.
func (s *Service) SuggestGrade(ctx context.Context, cardID int64, spoken string, confidence float64) (*Suggestion, error) {
	infos, err := s.anki.CardsInfo(ctx, []int64{cardID})
	if err != nil {
		return nil, fmt.Errorf("review: card info for %d: %w", cardID, err)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("review: card %d not found", cardID)
	}

	deck := infos[0].DeckName
	terms, ok := s.termSets[deck]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoTermSet, deck)
	}

	res := judge.Judge(spoken, terms)
	return &Suggestion{
		Verdict:       res.Verdict,
		SuggestedEase: judge.EaseFromVerdict(res.Verdict, confidence),
		Hits:          res.Hits,
		Missing:       res.Missing,
	}, nil
}

// ExplainGrade asks the assistant why a spoken answer was (in)correct for
// the card under review.
func (s *Service) ExplainGrade(ctx context.Context, spoken string) (string, error) {
	if s.assistant == nil {
		return "", ErrNoAssistant
	}
	card, err := s.currentCard(ctx)
	if err != nil {
		return "", err
	}
	return s.assistant.ExplainGrade(ctx, s.assistantCard(ctx, card), spoken)
}

// Ask relays a free-form question about the current card to the assistant.
func (s *Service) Ask(ctx context.Context, question string) (string, error) {
	if s.assistant == nil {
		return "", ErrNoAssistant
	}
	card, err := s.currentCard(ctx)
	if err != nil {
		return "", err
	}
	return s.assistant.AnswerQuestion(ctx, s.assistantCard(ctx, card), question)
}

func (s *Service) actGrade(ctx context.Context, ease int, raw, corrected string) (*Outcome, error) {
	card, err := s.currentCard(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.SubmitGrade(ctx, ease); err != nil {
		return nil, err
	}

	s.record(ctx, history.Entry{
		CardID:     card.CardID,
		NoteID:     card.NoteID,
		Deck:       s.deckName(ctx, card.CardID),
		IntentKind: "grade",
		Ease:       ease,
		Transcript: raw,
		Corrected:  diff(raw, corrected),
	})
	return &Outcome{
		Kind:       "grade",
		Transcript: raw,
		Corrected:  diff(raw, corrected),
		Ease:       ease,
		CardID:     card.CardID,
		NoteID:     card.NoteID,
	}, nil
}

func (s *Service) actQuestion(ctx context.Context, question, raw, corrected string) (*Outcome, error) {
	if s.assistant == nil {
		return nil, ErrNoAssistant
	}
	card, err := s.currentCard(ctx)
	if err != nil {
		return nil, err
	}

	answer, err := s.assistant.AnswerQuestion(ctx, s.assistantCard(ctx, card), question)
	if err != nil {
		return nil, fmt.Errorf("review: answer question: %w", err)
	}

	s.record(ctx, history.Entry{
		CardID:     card.CardID,
		NoteID:     card.NoteID,
		Deck:       s.deckName(ctx, card.CardID),
		IntentKind: "question",
		Transcript: raw,
		Corrected:  diff(raw, corrected),
	})
	return &Outcome{
		Kind:       "question",
		Transcript: raw,
		Corrected:  diff(raw, corrected),
		Answer:     answer,
		CardID:     card.CardID,
		NoteID:     card.NoteID,
	}, nil
}

// correct runs the correction pipeline when configured. Correction is
// best-effort: on failure the raw text is classified instead.
func (s *Service) correct(ctx context.Context, t types.Transcript) string {
	if s.corrector == nil {
		return t.Text
	}
	res, err := s.corrector.Correct(ctx, t, s.terms)
	if err != nil {
		s.log.Warn("transcript correction failed", "error", err)
		return t.Text
	}
	if s.metrics != nil {
		for _, c := range res.Corrections {
			s.metrics.RecordCorrection(ctx, c.Method)
		}
	}
	return res.Corrected
}

func (s *Service) currentCard(ctx context.Context) (*anki.CurrentCard, error) {
	card, err := s.cards.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("review: current card: %w", err)
	}
	return card, nil
}

func (s *Service) assistantCard(ctx context.Context, card *anki.CurrentCard) assistant.Card {
	return assistant.Card{
		NoteID: card.NoteID,
		Deck:   s.deckName(ctx, card.CardID),
		Front:  cardtext.Text(card.FrontHTML),
		Back:   cardtext.Text(card.BackHTML),
	}
}

// deckName resolves the deck name of a card. The bridge only reports deck
// IDs, so this costs one AnkiConnect round trip; failures degrade to an
// empty name.
func (s *Service) deckName(ctx context.Context, cardID int64) string {
	infos, err := s.anki.CardsInfo(ctx, []int64{cardID})
	if err != nil || len(infos) == 0 {
		s.log.Debug("deck name lookup failed", "card_id", cardID, "error", err)
		return ""
	}
	return infos[0].DeckName
}

// record appends a history entry. History is best-effort: a failing log
// never blocks the review action that already happened.
func (s *Service) record(ctx context.Context, e history.Entry) {
	if s.history == nil {
		return
	}
	e.Timestamp = time.Now().UTC()
	if err := s.history.Record(ctx, e); err != nil {
		s.log.Warn("history record failed", "error", err)
	}
}

// timed runs fn and records its latency on the Anki duration histogram.
func (s *Service) timed(ctx context.Context, action string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	if s.metrics != nil {
		s.metrics.AnkiDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(observe.Attr("action", action)))
	}
	return err
}

// diff returns corrected when it differs from raw, else the empty string so
// unchanged transcripts are not duplicated in output and history.
func diff(raw, corrected string) string {
	if corrected == raw {
		return ""
	}
	return corrected
}
