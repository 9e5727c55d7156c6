package ingestion

import "errors"

var (
	// ErrSnapshotRepositoryRequired is returned when a snapshot repository is not provided.
	ErrSnapshotRepositoryRequired = errors.New("snapshot repository required")

	// ErrRegistryRequired is returned when a registry is not provided.
	ErrRegistryRequired = errors.New("registry required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrInvalidMaxAttempts is returned when a retry budget is not positive.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrInvalidInput is returned for unreadable provision records.
	ErrInvalidInput = errors.New("invalid ingestion input")

	// ErrEmbeddingMismatch is returned when the embedder returns the wrong number of vectors.
	ErrEmbeddingMismatch = errors.New("embedding result mismatch")
)
