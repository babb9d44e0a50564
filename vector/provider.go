// Package vector abstracts approximate-nearest-neighbor storage behind a
// small Provider interface. The shipped implementation is chromem-go, an
// embedded pure-Go store; external engines can be swapped in behind the
// same contract.
package vector

import "context"

// Result is one similarity search match.
type Result struct {
	// ID is the stored document ID.
	ID string
	// Score is cosine similarity in [0, 1].
	Score float32
	// Content is the stored document text.
	Content string
	// Metadata carries the document's stored attributes.
	Metadata map[string]any
}

// Provider stores vectors and serves top-k cosine similarity search.
type Provider interface {
	// Upsert adds or replaces a document with its precomputed embedding.
	Upsert(ctx context.Context, collection, id string, vector []float32, metadata map[string]any) error

	// Search returns the topK most similar documents.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error)

	// SearchWithFilter combines similarity search with exact-match
	// metadata filtering.
	SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]Result, error)

	// Count reports how many documents a collection holds.
	Count(ctx context.Context, collection string) (int, error)

	// DeleteCollection removes a collection and all its documents. Used
	// when rebuilding the index from scratch.
	DeleteCollection(ctx context.Context, collection string) error

	// Name identifies the provider implementation.
	Name() string

	// Close releases resources and flushes any persistence.
	Close() error
}
