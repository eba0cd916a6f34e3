// Package mock provides test double implementations of AI service interfaces.
//
// This package contains a mock implementation of ai.Embedder for use in
// unit tests. The mock allows tests to run without external AI service
// dependencies and enables controlled, deterministic behavior.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	mockEmbedder := mock.NewMockEmbedder()
//	vectors, err := mockEmbedder.EmbedTexts(ctx, []string{"test"})
//
//	// Custom behavior injection
//	mockEmbedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, errors.New("embed service down")
//	}
//
//	// Check call counts
//	count := mockEmbedder.CallCount()
//
// # Default Behavior
//
// MockEmbedder returns deterministic unit vectors derived from a hash of
// the input text, so identical texts always embed identically.
package mock
