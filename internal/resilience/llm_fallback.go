package resilience

import (
	"context"

	"github.com/ankivoice/ankivoice/pkg/provider/llm"
	"github.com/ankivoice/ankivoice/pkg/types"
)

var _ llm.Provider = (*LLMFallback)(nil)

// LLMFallback is an [llm.Provider] that fails over across backends so grade
// explanations and follow-up answers keep flowing when the preferred model is
// down. Each backend sits behind its own circuit breaker; an open breaker is
// skipped without being called.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

// NewLLMFallback starts a chain with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends a backend to the end of the chain.
func (lf *LLMFallback) AddFallback(name string, provider llm.Provider) {
	lf.group.AddFallback(name, provider)
}

// Complete asks the first healthy backend, moving down the chain on failure.
func (lf *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(lf.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// StreamCompletion opens a stream on the first healthy backend. Failover
// covers only the connection attempt; once chunks are flowing, a mid-stream
// error ends the stream rather than restarting it elsewhere.
func (lf *LLMFallback) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return ExecuteWithResult(lf.group, func(p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

// CountTokens uses the first healthy backend's tokenizer.
func (lf *LLMFallback) CountTokens(messages []types.Message) (int, error) {
	return ExecuteWithResult(lf.group, func(p llm.Provider) (int, error) {
		return p.CountTokens(messages)
	})
}

// Capabilities come from the primary; they are static metadata, so breaker
// state is ignored here.
func (lf *LLMFallback) Capabilities() types.ModelCapabilities {
	if len(lf.group.chain) > 0 {
		return lf.group.chain[0].value.Capabilities()
	}
	return types.ModelCapabilities{}
}
