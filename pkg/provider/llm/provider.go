// Package llm abstracts the language-model backends behind the review
// assistant.
//
// A Provider wraps one model API — OpenAI, Anthropic, Gemini, or a local
// Ollama instance — so that answer grading, intent handling, and transcript
// correction can be written once against a uniform surface.
//
// Implementations must be safe for concurrent use. A channel returned by
// StreamCompletion is owned by the implementation and closed when the stream
// ends or the context is cancelled.
package llm

import (
	"context"

	"github.com/ankivoice/ankivoice/pkg/types"
)

// Usage is the backend's token accounting for one exchange. Counts are in
// the model's own token unit and are not comparable across providers.
type Usage struct {
	// PromptTokens covers the system prompt plus all input messages.
	PromptTokens int

	// CompletionTokens covers the generated reply.
	CompletionTokens int

	// TotalTokens is the sum, passed through when the backend reports it.
	TotalTokens int
}

// CompletionRequest is one full request to the model. Messages must be
// non-empty.
type CompletionRequest struct {
	// Messages is the conversation so far, oldest first. The last entry
	// drives the reply.
	Messages []types.Message

	// Tools the model may call, such as card lookups. Callers should check
	// Capabilities().SupportsToolCalling before offering any.
	Tools []types.ToolDefinition

	// Temperature in [0.0, 2.0]; 0 asks for greedy decoding. Grading uses
	// low values, open-ended follow-up chat higher ones.
	Temperature float64

	// MaxTokens caps the reply length. Zero defers to the provider default.
	MaxTokens int

	// SystemPrompt is injected ahead of Messages. Providers without a native
	// system slot prepend it as a "system"-role message.
	SystemPrompt string
}

// Chunk is one streamed fragment. Any combination of the fields may be set.
type Chunk struct {
	// Text is the incremental reply content.
	Text string

	// FinishReason is non-empty only on the final chunk: "stop", "length",
	// "tool_calls", or "error" when the stream broke mid-flight.
	FinishReason string

	// ToolCalls the model is requesting, already assembled by the provider.
	ToolCalls []types.ToolCall
}

// CompletionResponse is the non-streaming reply.
type CompletionResponse struct {
	// Content is the assistant's full text. Empty when the model answered
	// only with tool calls.
	Content string

	// ToolCalls the caller must execute and feed back into the conversation.
	ToolCalls []types.ToolCall

	// Usage for this exchange.
	Usage Usage
}

// Provider is one LLM backend. Every method must honour ctx cancellation
// promptly; all methods may be called from multiple goroutines.
type Provider interface {
	// StreamCompletion starts a completion and emits Chunks as they arrive.
	// The returned channel is never nil when err is nil, and is closed by the
	// provider when generation finishes or ctx is cancelled; callers must
	// drain it. Failures before the stream opens come back as the error;
	// failures after come back as a final Chunk with FinishReason "error".
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete runs the request to completion and returns the whole reply.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates the context-window cost of messages, used to
	// trim conversation history before a request. Estimates should err on
	// the high side.
	CountTokens(messages []types.Message) (int, error)

	// Capabilities describes the underlying model. The result is constant
	// for the lifetime of the Provider.
	Capabilities() types.ModelCapabilities
}
