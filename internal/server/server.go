// Package server exposes the review loop over HTTP: a JSON API mirroring
// the reviewer actions (current card, show answer, grade, undo, ask,
// delete) plus a WebSocket voice endpoint that turns Opus audio into
// classified review actions.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ankivoice/ankivoice/internal/anki"
	"github.com/ankivoice/ankivoice/internal/health"
	"github.com/ankivoice/ankivoice/internal/observe"
	"github.com/ankivoice/ankivoice/internal/review"
	"github.com/ankivoice/ankivoice/pkg/provider/stt"
	"github.com/ankivoice/ankivoice/pkg/types"
)

// ReviewService is the review surface the server exposes. Satisfied by
// *review.Service.
type ReviewService interface {
	HandleUtterance(ctx context.Context, t types.Transcript) (*review.Outcome, error)
	Classify(ctx context.Context, t types.Transcript) (*review.Outcome, error)
	Current(ctx context.Context) (*review.CardView, error)
	ShowAnswer(ctx context.Context) error
	SubmitGrade(ctx context.Context, ease int) error
	Undo(ctx context.Context) error
	DeleteNote(ctx context.Context, cardID int64) (int64, error)
	SuggestGrade(ctx context.Context, cardID int64, spoken string, confidence float64) (*review.Suggestion, error)
	Ask(ctx context.Context, question string) (string, error)
	ExplainGrade(ctx context.Context, spoken string) (string, error)
}

// Server routes HTTP and WebSocket traffic to the review service.
type Server struct {
	review   ReviewService
	stt      stt.Provider
	health   *health.Handler
	metrics  *observe.Metrics
	log      *slog.Logger
	language string

	// mu guards keywords, which a config reload may replace while voice
	// sessions are being started.
	mu       sync.RWMutex
	keywords []types.KeywordBoost
}

// Option configures a Server.
type Option func(*Server)

// WithSTT enables the /voice WebSocket endpoint.
func WithSTT(p stt.Provider) Option {
	return func(s *Server) { s.stt = p }
}

// WithLanguage sets the recognition language for voice sessions.
func WithLanguage(lang string) Option {
	return func(s *Server) { s.language = lang }
}

// WithKeywords sets the vocabulary hints passed to new STT sessions.
func WithKeywords(kw []types.KeywordBoost) Option {
	return func(s *Server) { s.keywords = kw }
}

// WithHealth registers /healthz and /readyz from the given handler.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics enables the observability middleware and voice session gauge.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New builds a Server around svc.
func New(svc ReviewService, opts ...Option) *Server {
	s := &Server{
		review: svc,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetKeywords replaces the vocabulary hints passed to new STT sessions.
// Sessions already running keep their hints until the client sends a
// keywords control frame.
func (s *Server) SetKeywords(kw []types.KeywordBoost) {
	s.mu.Lock()
	s.keywords = kw
	s.mu.Unlock()
}

func (s *Server) sessionKeywords() []types.KeywordBoost {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keywords
}

// Handler returns the full route table, wrapped in the observability
// middleware when metrics are configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.health != nil {
		s.health.Register(mux)
	}
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /current", s.handleCurrent)
	mux.HandleFunc("POST /show-answer", s.handleShowAnswer)
	mux.HandleFunc("POST /answer/{ease}", s.handleAnswer)
	mux.HandleFunc("POST /classify", s.handleClassify)
	mux.HandleFunc("POST /grade", s.handleGrade)
	mux.HandleFunc("POST /grade-with-explanation", s.handleGradeWithExplanation)
	mux.HandleFunc("POST /submit-grade", s.handleSubmitGrade)
	mux.HandleFunc("POST /undo", s.handleUndo)
	mux.HandleFunc("POST /ask", s.handleAsk)
	mux.HandleFunc("POST /delete-note", s.handleDeleteNote)
	mux.HandleFunc("GET /voice", s.handleVoice)

	var h http.Handler = mux
	if s.metrics != nil {
		h = observe.Middleware(s.metrics)(h)
	}
	return h
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	view, err := s.review.Current(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, view)
}

func (s *Server) handleShowAnswer(w http.ResponseWriter, r *http.Request) {
	if err := s.review.ShowAnswer(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	ease, err := strconv.Atoi(r.PathValue("ease"))
	if err != nil {
		badRequest(w, "ease must be a number 1..4")
		return
	}
	if err := s.review.SubmitGrade(r.Context(), ease); err != nil {
		s.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"ok": true, "ease": ease})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	}
	if !decode(w, r, &in) {
		return
	}
	if in.Text == "" {
		badRequest(w, "text is required")
		return
	}
	out, err := s.review.Classify(r.Context(), types.Transcript{
		Text: in.Text, IsFinal: true, Confidence: in.Confidence,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, out)
}

func (s *Server) handleGrade(w http.ResponseWriter, r *http.Request) {
	var in struct {
		CardID     int64   `json:"card_id"`
		Transcript string  `json:"transcript"`
		Confidence float64 `json:"confidence"`
	}
	if !decode(w, r, &in) {
		return
	}
	if in.CardID == 0 || in.Transcript == "" {
		badRequest(w, "card_id and transcript are required")
		return
	}
	sug, err := s.review.SuggestGrade(r.Context(), in.CardID, in.Transcript, in.Confidence)
	if err != nil {
		s.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, sug)
}

func (s *Server) handleGradeWithExplanation(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Transcript string `json:"transcript"`
	}
	if !decode(w, r, &in) {
		return
	}
	if in.Transcript == "" {
		badRequest(w, "transcript is required")
		return
	}
	explanation, err := s.review.ExplainGrade(r.Context(), in.Transcript)
	if err != nil {
		s.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"explanation": explanation})
}

func (s *Server) handleSubmitGrade(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Ease int `json:"ease"`
	}
	if !decode(w, r, &in) {
		return
	}
	if err := s.review.SubmitGrade(r.Context(), in.Ease); err != nil {
		s.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"ok": true, "ease": in.Ease})
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	if err := s.review.Undo(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Question string `json:"question"`
	}
	if !decode(w, r, &in) {
		return
	}
	if in.Question == "" {
		badRequest(w, "question is required")
		return
	}
	answer, err := s.review.Ask(r.Context(), in.Question)
	if err != nil {
		s.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"answer": answer})
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	var in struct {
		CardID int64 `json:"card_id"`
	}
	if !decode(w, r, &in) {
		return
	}
	if in.CardID == 0 {
		badRequest(w, "card_id is required")
		return
	}
	noteID, err := s.review.DeleteNote(r.Context(), in.CardID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]int64{"note_id": noteID})
}

// writeError maps service errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, review.ErrInvalidEase):
		status = http.StatusBadRequest
	case errors.Is(err, anki.ErrNoCard):
		status = http.StatusConflict
	case errors.Is(err, review.ErrNoTermSet):
		status = http.StatusNotFound
	case errors.Is(err, review.ErrNoAssistant):
		status = http.StatusServiceUnavailable
	}
	s.log.Warn("request failed", "status", status, "error", err)
	respond(w, status, map[string]string{"error": err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	respond(w, http.StatusBadRequest, map[string]string{"error": msg})
}

// decode reads the JSON request body into v, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}
