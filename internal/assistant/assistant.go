// Package assistant generates grading explanations and follow-up answers
// during a review session.
//
// Both operations use the card under review as context. Follow-up answers can
// additionally be augmented with semantically similar cards from the card
// index and with MCP tools the model may call (current card, card info,
// similar cards, plus any external servers).
//
// The provider is typically a [resilience.LLMFallback] so a failing backend
// does not stall the review loop.
package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/ankivoice/ankivoice/internal/cardindex"
	"github.com/ankivoice/ankivoice/internal/mcphost"
	"github.com/ankivoice/ankivoice/internal/observe"
	"github.com/ankivoice/ankivoice/pkg/provider/llm"
	"github.com/ankivoice/ankivoice/pkg/types"
)

// Card carries the plain-text content of the card under review.
type Card struct {
	NoteID int64
	Deck   string
	Front  string
	Back   string
}

// ToolHost exposes MCP tools to the assistant. Satisfied by *mcphost.Host.
type ToolHost interface {
	Tools() []types.ToolDefinition
	ExecuteTool(ctx context.Context, name string, args string) (*mcphost.ToolResult, error)
}

// SimilaritySearcher finds related cards for follow-up context. Satisfied by
// *cardindex.Index.
type SimilaritySearcher interface {
	Similar(ctx context.Context, text string, topK int, deck string, excludeNoteID int64) ([]cardindex.Hit, error)
}

const (
	defaultTemperature = 0.2

	// defaultMaxToolRounds bounds the tool-call loop so a model that keeps
	// requesting tools cannot spin forever.
	defaultMaxToolRounds = 3

	// relatedCardCount is how many similar cards are folded into follow-up
	// context.
	relatedCardCount = 3
)

const explainSystemPrompt = `You evaluate spoken answers to flashcards. ` +
	`Provide a brief explanation of what was wrong, if anything. ` +
	`If the answer is correct, respond with an empty string or just say it's correct. ` +
	`The transcript comes from speech recognition, so acronyms and proper nouns are often mangled; if they are close, say nothing. ` +
	`The focus is whether the user covers what is on the flashcard and understands the concept. Do not nitpick. ` +
	`Keep explanations to a few sentences.`

const followupSystemPrompt = `You answer follow-up questions about flashcards. ` +
	`Be brief and direct. Use the card context provided, and the tools when you need more detail.`

// Assistant produces short natural-language responses for the review loop.
type Assistant struct {
	llm           llm.Provider
	tools         ToolHost
	index         SimilaritySearcher
	metrics       *observe.Metrics
	temperature   float64
	maxToolRounds int
}

// Option configures an [Assistant].
type Option func(*Assistant)

// WithTools offers the host's MCP tools to the model during follow-up
// answering. Ignored when the provider does not support tool calling.
func WithTools(h ToolHost) Option {
	return func(a *Assistant) { a.tools = h }
}

// WithCardIndex folds semantically similar cards into follow-up context.
func WithCardIndex(idx SimilaritySearcher) Option {
	return func(a *Assistant) { a.index = idx }
}

// WithTemperature overrides the sampling temperature. Default: 0.2.
func WithTemperature(t float64) Option {
	return func(a *Assistant) { a.temperature = t }
}

// WithMetrics wires LLM latency and error metrics into the assistant.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Assistant) { a.metrics = m }
}

// New creates an Assistant backed by the given provider.
func New(provider llm.Provider, opts ...Option) *Assistant {
	a := &Assistant{
		llm:           provider,
		temperature:   defaultTemperature,
		maxToolRounds: defaultMaxToolRounds,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ExplainGrade produces a short explanation of what was wrong with a spoken
// answer, or "Correct." when the model has nothing to flag.
func (a *Assistant) ExplainGrade(ctx context.Context, card Card, transcript string) (string, error) {
	user := fmt.Sprintf(
		"Question: %s\nReference answer: %s\nSpoken transcript: %s\n"+
			"Briefly explain what was incorrect about this answer, if anything. If correct, just say it's correct.",
		card.Front, card.Back, transcript)

	resp, err := a.complete(ctx, llm.CompletionRequest{
		SystemPrompt: explainSystemPrompt,
		Temperature:  a.temperature,
		Messages: []types.Message{
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("assistant: explain grade: %w", err)
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "Correct.", nil
	}
	return text, nil
}

// AnswerQuestion answers a follow-up question about the card under review.
// Related cards from the index and MCP tools are used when configured.
func (a *Assistant) AnswerQuestion(ctx context.Context, card Card, question string) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Card front: %s\nCard back (reference): %s\n", card.Front, card.Back)

	if a.index != nil {
		hits, err := a.index.Similar(ctx, question, relatedCardCount, card.Deck, card.NoteID)
		if err != nil {
			// Related cards are best-effort context; answer without them.
			observe.Logger(ctx).Warn("similar card lookup failed", "error", err)
		}
		if len(hits) > 0 {
			sb.WriteString("Related cards:\n")
			for _, h := range hits {
				fmt.Fprintf(&sb, "- %s\n", h.Card.Front)
			}
		}
	}

	fmt.Fprintf(&sb, "User question: %s\nProvide a brief answer (1-3 sentences).", question)

	req := llm.CompletionRequest{
		SystemPrompt: followupSystemPrompt,
		Temperature:  a.temperature,
		Messages: []types.Message{
			{Role: "user", Content: sb.String()},
		},
	}
	if a.tools != nil && a.llm.Capabilities().SupportsToolCalling {
		req.Tools = a.tools.Tools()
	}

	resp, err := a.completeWithTools(ctx, req)
	if err != nil {
		return "", fmt.Errorf("assistant: answer question: %w", err)
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "I don't have an answer.", nil
	}
	return text, nil
}

// completeWithTools runs the completion, executing requested tool calls and
// feeding results back until the model produces text or the round budget is
// spent.
func (a *Assistant) completeWithTools(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := a.complete(ctx, req)
	if err != nil {
		return nil, err
	}

	for round := 0; round < a.maxToolRounds && len(resp.ToolCalls) > 0 && a.tools != nil; round++ {
		req.Messages = append(req.Messages, types.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			result, execErr := a.tools.ExecuteTool(ctx, call.Name, call.Arguments)
			content := ""
			switch {
			case execErr != nil:
				content = "tool error: " + execErr.Error()
			case result.IsError:
				content = "tool error: " + result.Content
			default:
				content = result.Content
			}
			req.Messages = append(req.Messages, types.Message{
				Role:       "tool",
				Content:    content,
				Name:       call.Name,
				ToolCallID: call.ID,
			})
		}

		resp, err = a.complete(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	return resp, nil
}

// complete wraps Provider.Complete with request/error metrics.
func (a *Assistant) complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := a.llm.Complete(ctx, req)
	if a.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
			a.metrics.RecordProviderError(ctx, "assistant", "llm")
		}
		a.metrics.RecordProviderRequest(ctx, "assistant", "llm", status)
	}
	return resp, err
}
