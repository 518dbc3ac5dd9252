// Package types holds the data structures shared across ankivoice packages.
//
// Providers, the review service, and the server all exchange these values;
// keeping them in one leaf package avoids import cycles. Anything specific to
// a single package stays in that package.
package types

import "time"

// Transcript is one speech-to-text result, partial or final.
type Transcript struct {
	// Text as heard by the recognizer.
	Text string

	// IsFinal distinguishes an authoritative transcript from an interim one
	// that a later result may revise.
	IsFinal bool

	// Confidence in [0.0, 1.0]; zero when the provider reports none.
	Confidence float64

	// Words carries per-word detail, nil when the provider has none.
	Words []WordDetail

	// Timestamp is the utterance start, relative to session start.
	Timestamp time.Duration

	// Duration of the utterance.
	Duration time.Duration
}

// WordDetail is one recognized word with its timing and confidence.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost biases recognition toward one term of the review vocabulary:
// grade words like "again" and "easy", plus terms drawn from the current
// deck's cards that general speech models often mishear.
type KeywordBoost struct {
	Keyword string

	// Boost strength on the provider's own scale.
	Boost float64
}

// Message is one entry in an LLM conversation.
type Message struct {
	// Role is "system", "user", "assistant", or "tool".
	Role string

	Content string

	// Name optionally identifies the participant.
	Name string

	// ToolCalls requested by the assistant, when Role is "assistant".
	ToolCalls []ToolCall

	// ToolCallID links a "tool"-role message to the call it answers.
	ToolCallID string
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	// ID assigned by the provider, echoed back in the tool result.
	ID string

	Name string

	// Arguments as a JSON-encoded string.
	Arguments string
}

// ToolDefinition describes a tool offered to the model, such as the card
// lookup the grading assistant exposes.
type ToolDefinition struct {
	Name string

	// Description is shown to the model verbatim.
	Description string

	// Parameters is a JSON Schema for the tool's input.
	Parameters map[string]any
}

// ModelCapabilities is the static description of one model.
type ModelCapabilities struct {
	// ContextWindow is the combined input + output token budget.
	ContextWindow int

	// MaxOutputTokens bounds a single completion.
	MaxOutputTokens int

	SupportsToolCalling bool
	SupportsVision      bool
	SupportsStreaming   bool
}
