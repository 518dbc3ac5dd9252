// Package embeddings abstracts the text-embedding backends that power the
// card index.
//
// A Provider maps card text to dense float32 vectors, whether through the
// OpenAI API or a local Ollama model. The card index stores these vectors in
// Postgres and ranks cards by cosine similarity, so all vectors from one
// Provider must live in one space.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is one embedding backend. Every vector it returns has length
// Dimensions(); vectors from different Providers must not be compared.
type Provider interface {
	// Embed returns the vector for one text. The text is passed to the model
	// verbatim — callers add any model-specific prefix (such as "query: ")
	// themselves.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts in one backend call; result[i] belongs to
	// texts[i]. There are no partial results: any failure returns a nil
	// slice and an error.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the fixed vector length of the underlying model.
	Dimensions() int

	// ModelID names the embedding model, for logging and for checking that
	// stored vectors match the configured model.
	ModelID() string
}
