// Package mock provides test doubles for the ai interfaces.
//
// The mocks let tests run without an embedding server and give controlled,
// deterministic behavior.
//
// # Usage in Tests
//
//	provider := mock.NewMockProvider()
//	vec, err := provider.Embedder().EmbedText(ctx, "ordinary income")
//
//	// Custom behavior injection
//	embedder := mock.NewMockEmbedder()
//	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
//	    return nil, errors.New("embedding server down")
//	}
//
// # Default Behavior
//
// MockEmbedder returns hashed bag-of-words unit vectors, so texts that share
// words are similar and the same text always maps to the same vector.
package mock
