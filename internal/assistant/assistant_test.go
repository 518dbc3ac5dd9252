package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ankivoice/ankivoice/internal/cardindex"
	"github.com/ankivoice/ankivoice/internal/mcphost"
	"github.com/ankivoice/ankivoice/pkg/provider/llm"
	llmmock "github.com/ankivoice/ankivoice/pkg/provider/llm/mock"
	"github.com/ankivoice/ankivoice/pkg/types"
)

var testCard = Card{
	NoteID: 201,
	Deck:   "Biology",
	Front:  "What is the powerhouse of the cell?",
	Back:   "The mitochondria",
}

func TestExplainGrade(t *testing.T) {
	t.Parallel()
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "You said chloroplast, but the card asks about the mitochondria.",
		},
	}
	a := New(provider)

	got, err := a.ExplainGrade(context.Background(), testCard, "the chloroplast")
	if err != nil {
		t.Fatalf("ExplainGrade: %v", err)
	}
	if !strings.Contains(got, "mitochondria") {
		t.Errorf("explanation = %q", got)
	}

	if len(provider.CompleteCalls) != 1 {
		t.Fatalf("Complete called %d times, want 1", len(provider.CompleteCalls))
	}
	req := provider.CompleteCalls[0].Req
	if req.SystemPrompt == "" {
		t.Error("request missing system prompt")
	}
	user := req.Messages[len(req.Messages)-1].Content
	for _, want := range []string{testCard.Front, testCard.Back, "the chloroplast"} {
		if !strings.Contains(user, want) {
			t.Errorf("user message missing %q:\n%s", want, user)
		}
	}
}

func TestExplainGrade_EmptyMeansCorrect(t *testing.T) {
	t.Parallel()
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "   "},
	}
	a := New(provider)

	got, err := a.ExplainGrade(context.Background(), testCard, "mitochondria")
	if err != nil {
		t.Fatalf("ExplainGrade: %v", err)
	}
	if got != "Correct." {
		t.Errorf("got %q, want %q", got, "Correct.")
	}
}

func TestExplainGrade_ProviderError(t *testing.T) {
	t.Parallel()
	provider := &llmmock.Provider{CompleteErr: errors.New("backend down")}
	a := New(provider)

	if _, err := a.ExplainGrade(context.Background(), testCard, "x"); err == nil {
		t.Error("expected error when provider fails")
	}
}

func TestAnswerQuestion(t *testing.T) {
	t.Parallel()
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "It produces ATP through cellular respiration.",
		},
	}
	a := New(provider)

	got, err := a.AnswerQuestion(context.Background(), testCard, "why is it called that?")
	if err != nil {
		t.Fatalf("AnswerQuestion: %v", err)
	}
	if got != "It produces ATP through cellular respiration." {
		t.Errorf("answer = %q", got)
	}

	user := provider.CompleteCalls[0].Req.Messages[0].Content
	for _, want := range []string{testCard.Front, testCard.Back, "why is it called that?"} {
		if !strings.Contains(user, want) {
			t.Errorf("user message missing %q:\n%s", want, user)
		}
	}
}

func TestAnswerQuestion_EmptyFallbackText(t *testing.T) {
	t.Parallel()
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: ""},
	}
	a := New(provider)

	got, err := a.AnswerQuestion(context.Background(), testCard, "what?")
	if err != nil {
		t.Fatalf("AnswerQuestion: %v", err)
	}
	if got != "I don't have an answer." {
		t.Errorf("got %q", got)
	}
}

type fakeIndex struct {
	hits []cardindex.Hit
	err  error

	gotText    string
	gotDeck    string
	gotExclude int64
}

func (f *fakeIndex) Similar(_ context.Context, text string, _ int, deck string, excludeNoteID int64) ([]cardindex.Hit, error) {
	f.gotText = text
	f.gotDeck = deck
	f.gotExclude = excludeNoteID
	return f.hits, f.err
}

func TestAnswerQuestion_IncludesRelatedCards(t *testing.T) {
	t.Parallel()
	idx := &fakeIndex{hits: []cardindex.Hit{
		{Card: cardindex.Card{NoteID: 1, Front: "What is ATP?"}, Distance: 0.1},
		{Card: cardindex.Card{NoteID: 2, Front: "Define cellular respiration"}, Distance: 0.2},
	}}
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "See related material."},
	}
	a := New(provider, WithCardIndex(idx))

	_, err := a.AnswerQuestion(context.Background(), testCard, "tell me more")
	if err != nil {
		t.Fatalf("AnswerQuestion: %v", err)
	}

	if idx.gotText != "tell me more" {
		t.Errorf("index queried with %q", idx.gotText)
	}
	if idx.gotDeck != "Biology" || idx.gotExclude != 201 {
		t.Errorf("deck/exclude = %q/%d, want Biology/201", idx.gotDeck, idx.gotExclude)
	}

	user := provider.CompleteCalls[0].Req.Messages[0].Content
	if !strings.Contains(user, "Related cards:") || !strings.Contains(user, "What is ATP?") {
		t.Errorf("user message missing related cards:\n%s", user)
	}
}

func TestAnswerQuestion_IndexFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	idx := &fakeIndex{err: errors.New("pool closed")}
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "Answer without related cards."},
	}
	a := New(provider, WithCardIndex(idx))

	got, err := a.AnswerQuestion(context.Background(), testCard, "what?")
	if err != nil {
		t.Fatalf("AnswerQuestion: %v", err)
	}
	if got != "Answer without related cards." {
		t.Errorf("got %q", got)
	}
}

// scriptedProvider returns canned responses in order, looping on the last.
type scriptedProvider struct {
	responses []*llm.CompletionResponse
	calls     []llm.CompletionRequest
	caps      types.ModelCapabilities
}

func (p *scriptedProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.calls = append(p.calls, req)
	i := min(len(p.calls)-1, len(p.responses)-1)
	return p.responses[i], nil
}

func (p *scriptedProvider) StreamCompletion(_ context.Context, _ llm.CompletionRequest) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk)
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) CountTokens(_ []types.Message) (int, error) { return 0, nil }

func (p *scriptedProvider) Capabilities() types.ModelCapabilities { return p.caps }

func TestAnswerQuestion_ToolLoop(t *testing.T) {
	t.Parallel()

	host := mcphost.New()
	var gotArgs string
	if err := host.RegisterBuiltin(mcphost.BuiltinTool{
		Definition: types.ToolDefinition{Name: "card_info", Description: "look up a note"},
		Handler: func(_ context.Context, args string) (string, error) {
			gotArgs = args
			return `{"model":"Basic"}`, nil
		},
	}); err != nil {
		t.Fatalf("RegisterBuiltin: %v", err)
	}
	defer host.Close()

	provider := &scriptedProvider{
		caps: types.ModelCapabilities{SupportsToolCalling: true},
		responses: []*llm.CompletionResponse{
			{ToolCalls: []types.ToolCall{{ID: "c1", Name: "card_info", Arguments: `{"note_id":201}`}}},
			{Content: "This is a Basic note."},
		},
	}
	a := New(provider, WithTools(host))

	got, err := a.AnswerQuestion(context.Background(), testCard, "what note type is this?")
	if err != nil {
		t.Fatalf("AnswerQuestion: %v", err)
	}
	if got != "This is a Basic note." {
		t.Errorf("answer = %q", got)
	}
	if gotArgs != `{"note_id":201}` {
		t.Errorf("tool args = %q", gotArgs)
	}

	if len(provider.calls) != 2 {
		t.Fatalf("Complete called %d times, want 2", len(provider.calls))
	}
	// First request offers the tool catalogue.
	if len(provider.calls[0].Tools) != 1 || provider.calls[0].Tools[0].Name != "card_info" {
		t.Errorf("first request tools = %+v", provider.calls[0].Tools)
	}
	// Second request carries the tool result back to the model.
	msgs := provider.calls[1].Messages
	last := msgs[len(msgs)-1]
	if last.Role != "tool" || last.ToolCallID != "c1" {
		t.Errorf("last message = %+v, want tool result for c1", last)
	}
	if !strings.Contains(last.Content, "Basic") {
		t.Errorf("tool result content = %q", last.Content)
	}
}

func TestAnswerQuestion_ToolLoopBounded(t *testing.T) {
	t.Parallel()

	host := mcphost.New()
	if err := host.RegisterBuiltin(mcphost.BuiltinTool{
		Definition: types.ToolDefinition{Name: "loop"},
		Handler: func(_ context.Context, _ string) (string, error) {
			return "again", nil
		},
	}); err != nil {
		t.Fatalf("RegisterBuiltin: %v", err)
	}
	defer host.Close()

	// Every response requests another tool call; the loop must stop anyway.
	provider := &scriptedProvider{
		caps: types.ModelCapabilities{SupportsToolCalling: true},
		responses: []*llm.CompletionResponse{
			{ToolCalls: []types.ToolCall{{ID: "x", Name: "loop", Arguments: "{}"}}},
		},
	}
	a := New(provider, WithTools(host))

	got, err := a.AnswerQuestion(context.Background(), testCard, "spin")
	if err != nil {
		t.Fatalf("AnswerQuestion: %v", err)
	}
	if got != "I don't have an answer." {
		t.Errorf("got %q, want the empty-answer fallback", got)
	}
	if len(provider.calls) != defaultMaxToolRounds+1 {
		t.Errorf("Complete called %d times, want %d", len(provider.calls), defaultMaxToolRounds+1)
	}
}

func TestAnswerQuestion_NoToolsWhenUnsupported(t *testing.T) {
	t.Parallel()

	host := mcphost.New()
	defer host.Close()
	if err := host.RegisterBuiltin(mcphost.BuiltinTool{
		Definition: types.ToolDefinition{Name: "card_info"},
		Handler:    func(_ context.Context, _ string) (string, error) { return "", nil },
	}); err != nil {
		t.Fatalf("RegisterBuiltin: %v", err)
	}

	provider := &llmmock.Provider{
		CompleteResponse:  &llm.CompletionResponse{Content: "plain answer"},
		ModelCapabilities: types.ModelCapabilities{SupportsToolCalling: false},
	}
	a := New(provider, WithTools(host))

	if _, err := a.AnswerQuestion(context.Background(), testCard, "q"); err != nil {
		t.Fatalf("AnswerQuestion: %v", err)
	}
	if len(provider.CompleteCalls[0].Req.Tools) != 0 {
		t.Error("tools offered to a provider without tool calling support")
	}
}
