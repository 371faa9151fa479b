package embed

import "context"

// DefaultBatchSize is the default number of chunk texts sent per embedding request.
const DefaultBatchSize = 32

// DefaultDimensions is the expected embedding vector length when a
// configuration does not specify one explicitly.
const DefaultDimensions = 768

// Result is one chunk's embedding outcome: a vector and the name of
// the model that produced it. A chunk is only considered vectorized
// when both are non-empty; a non-empty vector paired with an empty
// model name is a hard error for that chunk.
type Result struct {
	Vector []float32
	Model  string
}

// Embedder requests embeddings for batches of chunk text from an
// external embedding service, consumed through this narrow interface.
type Embedder interface {
	// EmbedBatch returns one Result per input text, in order. A
	// per-item failure to produce a usable result is reported via
	// Result.Model == "" with a non-empty Result.Vector, which callers
	// must treat as that item remaining unvectorized — it is not a
	// reason to fail the whole batch.
	EmbedBatch(ctx context.Context, texts []string) ([]Result, error)

	// Dimensions returns the embedding vector length this embedder
	// produces.
	Dimensions() int

	// ModelName returns the configured model identifier.
	ModelName() string

	// Available reports whether the embedding service is currently
	// reachable.
	Available(ctx context.Context) bool

	// Close releases any held resources (idle connections, etc).
	Close() error
}
