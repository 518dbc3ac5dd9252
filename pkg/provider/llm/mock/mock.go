// Package mock is an in-memory llm.Provider for tests.
//
// Set the response fields before use and inspect CompleteCalls afterwards:
//
//	p := &mock.Provider{
//	    CompleteResponse: &llm.CompletionResponse{Content: "Hello!"},
//	}
package mock

import (
	"context"
	"sync"

	"github.com/ankivoice/ankivoice/pkg/provider/llm"
	"github.com/ankivoice/ankivoice/pkg/types"
)

var _ llm.Provider = (*Provider)(nil)

// CompleteCall is one recorded Complete invocation.
type CompleteCall struct {
	Req llm.CompletionRequest
}

// Provider answers every call from its configured fields. A zero Provider
// returns zero values and nil errors. Configure it before handing it to the
// code under test; the mutex only guards the call log.
type Provider struct {
	// StreamChunks is replayed on the channel StreamCompletion returns,
	// then the channel closes.
	StreamChunks []llm.Chunk
	// StreamErr makes StreamCompletion fail without opening a channel.
	StreamErr error

	// CompleteResponse and CompleteErr are returned by Complete as-is.
	CompleteResponse *llm.CompletionResponse
	CompleteErr      error

	// TokenCount and CountTokensErr are returned by CountTokens.
	TokenCount     int
	CountTokensErr error

	// ModelCapabilities is returned by Capabilities.
	ModelCapabilities types.ModelCapabilities

	mu sync.Mutex
	// CompleteCalls lists every Complete invocation in order. Guarded by mu;
	// read it only after the code under test is done.
	CompleteCalls []CompleteCall
}

// StreamCompletion replays StreamChunks, honouring ctx between sends.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	if p.StreamErr != nil {
		err := p.StreamErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := make([]llm.Chunk, len(p.StreamChunks))
	copy(chunks, p.StreamChunks)
	p.mu.Unlock()

	ch := make(chan llm.Chunk, len(chunks))
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- c:
			}
		}
	}()
	return ch, nil
}

// Complete logs the request and returns the configured response pair.
func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Req: req})
	return p.CompleteResponse, p.CompleteErr
}

// CountTokens returns the configured count regardless of the messages.
func (p *Provider) CountTokens([]types.Message) (int, error) {
	return p.TokenCount, p.CountTokensErr
}

// Capabilities returns the configured capabilities.
func (p *Provider) Capabilities() types.ModelCapabilities {
	return p.ModelCapabilities
}
