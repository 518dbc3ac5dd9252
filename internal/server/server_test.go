package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ankivoice/ankivoice/internal/anki"
	"github.com/ankivoice/ankivoice/internal/judge"
	"github.com/ankivoice/ankivoice/internal/review"
	"github.com/ankivoice/ankivoice/pkg/types"
)

// fakeReview is a scripted ReviewService that records its calls.
type fakeReview struct {
	mu    sync.Mutex
	calls []string

	outcome    *review.Outcome
	view       *review.CardView
	suggestion *review.Suggestion
	answer     string
	noteID     int64
	err        error

	lastEase     int
	lastQuestion string
	lastCardID   int64
}

func (f *fakeReview) add(c string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeReview) HandleUtterance(_ context.Context, t types.Transcript) (*review.Outcome, error) {
	f.add("handleUtterance")
	return f.outcome, f.err
}

func (f *fakeReview) Classify(_ context.Context, t types.Transcript) (*review.Outcome, error) {
	f.add("classify")
	return f.outcome, f.err
}

func (f *fakeReview) Current(context.Context) (*review.CardView, error) {
	f.add("current")
	return f.view, f.err
}

func (f *fakeReview) ShowAnswer(context.Context) error {
	f.add("showAnswer")
	return f.err
}

func (f *fakeReview) SubmitGrade(_ context.Context, ease int) error {
	f.add("submitGrade")
	f.lastEase = ease
	if ease < 1 || ease > 4 {
		return review.ErrInvalidEase
	}
	return f.err
}

func (f *fakeReview) Undo(context.Context) error {
	f.add("undo")
	return f.err
}

func (f *fakeReview) DeleteNote(_ context.Context, cardID int64) (int64, error) {
	f.add("deleteNote")
	f.lastCardID = cardID
	return f.noteID, f.err
}

func (f *fakeReview) SuggestGrade(_ context.Context, cardID int64, spoken string, confidence float64) (*review.Suggestion, error) {
	f.add("suggestGrade")
	f.lastCardID = cardID
	return f.suggestion, f.err
}

func (f *fakeReview) Ask(_ context.Context, question string) (string, error) {
	f.add("ask")
	f.lastQuestion = question
	return f.answer, f.err
}

func (f *fakeReview) ExplainGrade(_ context.Context, spoken string) (string, error) {
	f.add("explainGrade")
	return f.answer, f.err
}

var _ ReviewService = (*fakeReview)(nil)

func newTestServer(t *testing.T, svc ReviewService, opts ...Option) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(svc, opts...).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestCurrent(t *testing.T) {
	t.Parallel()

	svc := &fakeReview{view: &review.CardView{
		CardID:    1001,
		NoteID:    2001,
		FrontText: "What is the powerhouse of the cell?",
		BackText:  "The mitochondria",
	}}
	srv := newTestServer(t, svc)

	resp, err := http.Get(srv.URL + "/current")
	if err != nil {
		t.Fatalf("GET /current: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	got := decodeBody[review.CardView](t, resp)
	if got.CardID != 1001 || got.FrontText != svc.view.FrontText {
		t.Errorf("body = %+v", got)
	}
}

func TestCurrent_NoCard(t *testing.T) {
	t.Parallel()

	svc := &fakeReview{err: anki.ErrNoCard}
	srv := newTestServer(t, svc)

	resp, err := http.Get(srv.URL + "/current")
	if err != nil {
		t.Fatalf("GET /current: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestAnswer(t *testing.T) {
	t.Parallel()

	svc := &fakeReview{}
	srv := newTestServer(t, svc)

	resp := postJSON(t, srv.URL+"/answer/3", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if svc.lastEase != 3 {
		t.Errorf("ease = %d, want 3", svc.lastEase)
	}
}

func TestAnswer_InvalidEase(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeReview{})

	for _, path := range []string{"/answer/abc", "/answer/9"} {
		resp := postJSON(t, srv.URL+path, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("POST %s status = %d, want 400", path, resp.StatusCode)
		}
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	svc := &fakeReview{outcome: &review.Outcome{Kind: "grade", Ease: 2, Transcript: "mark as hard"}}
	srv := newTestServer(t, svc)

	resp := postJSON(t, srv.URL+"/classify", map[string]any{"text": "mark as hard", "confidence": 0.9})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	got := decodeBody[review.Outcome](t, resp)
	if got.Kind != "grade" || got.Ease != 2 {
		t.Errorf("outcome = %+v", got)
	}
}

func TestClassify_MissingText(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeReview{})
	resp := postJSON(t, srv.URL+"/classify", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGrade(t *testing.T) {
	t.Parallel()

	svc := &fakeReview{suggestion: &review.Suggestion{
		Verdict:       judge.VerdictPartial,
		SuggestedEase: 2,
		Hits:          []string{"mitochondria"},
		Missing:       []string{"atp"},
	}}
	srv := newTestServer(t, svc)

	resp := postJSON(t, srv.URL+"/grade", map[string]any{
		"card_id": 1001, "transcript": "the mitochondria", "confidence": 0.9,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	got := decodeBody[review.Suggestion](t, resp)
	if got.SuggestedEase != 2 || len(got.Missing) != 1 {
		t.Errorf("suggestion = %+v", got)
	}
	if svc.lastCardID != 1001 {
		t.Errorf("cardID = %d, want 1001", svc.lastCardID)
	}
}

func TestGrade_NoTermSet(t *testing.T) {
	t.Parallel()

	svc := &fakeReview{err: review.ErrNoTermSet}
	srv := newTestServer(t, svc)

	resp := postJSON(t, srv.URL+"/grade", map[string]any{"card_id": 1, "transcript": "x"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGradeWithExplanation(t *testing.T) {
	t.Parallel()

	svc := &fakeReview{answer: "Correct."}
	srv := newTestServer(t, svc)

	resp := postJSON(t, srv.URL+"/grade-with-explanation", map[string]any{"transcript": "the mitochondria"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	got := decodeBody[map[string]string](t, resp)
	if got["explanation"] != "Correct." {
		t.Errorf("body = %v", got)
	}
}

func TestSubmitGrade(t *testing.T) {
	t.Parallel()

	svc := &fakeReview{}
	srv := newTestServer(t, svc)

	resp := postJSON(t, srv.URL+"/submit-grade", map[string]any{"ease": 4})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if svc.lastEase != 4 {
		t.Errorf("ease = %d, want 4", svc.lastEase)
	}
}

func TestSubmitGrade_Invalid(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeReview{})
	resp := postJSON(t, srv.URL+"/submit-grade", map[string]any{"ease": 0})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUndo(t *testing.T) {
	t.Parallel()

	svc := &fakeReview{}
	srv := newTestServer(t, svc)

	resp := postJSON(t, srv.URL+"/undo", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(svc.calls) != 1 || svc.calls[0] != "undo" {
		t.Errorf("calls = %v", svc.calls)
	}
}

func TestAsk(t *testing.T) {
	t.Parallel()

	svc := &fakeReview{answer: "ATP is the cell's energy currency."}
	srv := newTestServer(t, svc)

	resp := postJSON(t, srv.URL+"/ask", map[string]any{"question": "what is ATP"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	got := decodeBody[map[string]string](t, resp)
	if got["answer"] != svc.answer {
		t.Errorf("answer = %q", got["answer"])
	}
	if svc.lastQuestion != "what is ATP" {
		t.Errorf("question = %q", svc.lastQuestion)
	}
}

func TestAsk_NoAssistant(t *testing.T) {
	t.Parallel()

	svc := &fakeReview{err: review.ErrNoAssistant}
	srv := newTestServer(t, svc)

	resp := postJSON(t, srv.URL+"/ask", map[string]any{"question": "why"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestDeleteNote(t *testing.T) {
	t.Parallel()

	svc := &fakeReview{noteID: 2001}
	srv := newTestServer(t, svc)

	resp := postJSON(t, srv.URL+"/delete-note", map[string]any{"card_id": 1001})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	got := decodeBody[map[string]int64](t, resp)
	if got["note_id"] != 2001 {
		t.Errorf("note_id = %d, want 2001", got["note_id"])
	}
}

func TestDeleteNote_MissingCardID(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeReview{})
	resp := postJSON(t, srv.URL+"/delete-note", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestInvalidJSONBody(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeReview{})
	resp, err := http.Post(srv.URL+"/classify", "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUpstreamErrorIsBadGateway(t *testing.T) {
	t.Parallel()

	svc := &fakeReview{err: errors.New("ankiconnect: connection refused")}
	srv := newTestServer(t, svc)

	resp := postJSON(t, srv.URL+"/undo", nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeReview{})
	resp, err := http.Get(srv.URL + "/undo")
	if err != nil {
		t.Fatalf("GET /undo: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}

func TestVoice_NotConfigured(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeReview{})
	resp, err := http.Get(srv.URL + "/voice")
	if err != nil {
		t.Fatalf("GET /voice: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}
