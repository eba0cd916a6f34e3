package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The returned vector represents the semantic meaning of the text.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// Batch processing is more efficient than calling EmbedText multiple times.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates a vector embedding for a search query.
	// Some models embed queries differently from documents, so retrieval
	// must use this method for query text rather than EmbedText.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Size returns the dimensionality of the vectors this embedder produces.
	Size() int
}
