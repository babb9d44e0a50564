package vector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/space-cap/alimgen/embedder"
)

// Doc is one document to index: a stable ID, the raw text, and attributes
// stored alongside it (policy_type, doc_type, source).
type Doc struct {
	ID       string
	Content  string
	Metadata map[string]any
}

// Store pairs an Embedder with a Provider behind a text-in, text-out
// search API. Callers never touch raw vectors.
type Store struct {
	provider   Provider
	embedder   embedder.Embedder
	collection string
	logger     *slog.Logger
}

// NewStore creates a Store over the given provider and embedder.
func NewStore(provider Provider, emb embedder.Embedder, collection string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		provider:   provider,
		embedder:   emb,
		collection: collection,
		logger:     logger,
	}
}

// Add embeds and upserts docs in one batch. Embedding failures abort the
// whole batch so the index never holds a partial corpus silently.
func (s *Store) Add(ctx context.Context, docs []Doc) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed %d documents: %w", len(docs), err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	for i, doc := range docs {
		metadata := make(map[string]any, len(doc.Metadata)+1)
		for k, v := range doc.Metadata {
			metadata[k] = v
		}
		metadata["content"] = doc.Content

		if err := s.provider.Upsert(ctx, s.collection, doc.ID, vectors[i], metadata); err != nil {
			return fmt.Errorf("failed to upsert document %q: %w", doc.ID, err)
		}
	}

	s.logger.Info("Indexed documents into vector store",
		"collection", s.collection,
		"count", len(docs))
	return nil
}

// Search embeds the query and returns the topK most similar documents.
// The error surfaces embedder or provider failure; callers decide whether
// to degrade to sparse-only retrieval.
func (s *Store) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	return s.SearchWithFilter(ctx, query, topK, nil)
}

// SearchWithFilter is Search restricted to documents whose metadata
// matches the filter exactly.
func (s *Store) SearchWithFilter(ctx context.Context, query string, topK int, filter map[string]any) ([]Result, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := s.provider.SearchWithFilter(ctx, s.collection, vector, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return results, nil
}

// Count reports how many documents the store holds.
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.provider.Count(ctx, s.collection)
}

// Reset drops the collection so it can be rebuilt from scratch.
func (s *Store) Reset(ctx context.Context) error {
	return s.provider.DeleteCollection(ctx, s.collection)
}
