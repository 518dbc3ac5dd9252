// Package mock is an in-memory embeddings.Provider for tests.
//
// Configure the canned vectors before handing it to the code under test:
//
//	p := &mock.Provider{
//	    EmbedResult:     []float32{0.1, 0.2, 0.3},
//	    DimensionsValue: 3,
//	    ModelIDValue:    "test-embed-v1",
//	}
package mock

import (
	"context"

	"github.com/ankivoice/ankivoice/pkg/provider/embeddings"
)

var _ embeddings.Provider = (*Provider)(nil)

// Provider answers every call from its configured fields. The zero value
// returns nil vectors and nil errors.
type Provider struct {
	// EmbedResult and EmbedErr are returned by every Embed call.
	EmbedResult []float32
	EmbedErr    error

	// EmbedBatchResult is returned by EmbedBatch. When nil, EmbedBatch
	// returns one nil vector per input text so callers still see the
	// expected length.
	EmbedBatchResult [][]float32
	EmbedBatchErr    error

	// DimensionsValue is returned by Dimensions.
	DimensionsValue int

	// ModelIDValue is returned by ModelID.
	ModelIDValue string
}

func (p *Provider) Embed(context.Context, string) ([]float32, error) {
	return p.EmbedResult, p.EmbedErr
}

func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if p.EmbedBatchErr != nil {
		return nil, p.EmbedBatchErr
	}
	if p.EmbedBatchResult != nil {
		return p.EmbedBatchResult, nil
	}
	return make([][]float32, len(texts)), nil
}

func (p *Provider) Dimensions() int {
	return p.DimensionsValue
}

func (p *Provider) ModelID() string {
	return p.ModelIDValue
}
