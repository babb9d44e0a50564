// Package retrieval combines dense vector search with BM25 sparse
// retrieval over the policy corpus, fusing both score lists into a single
// ranking.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/space-cap/alimgen/bm25"
	"github.com/space-cap/alimgen/tokenizer"
	"github.com/space-cap/alimgen/vector"
)

// Mode selects the retrieval strategy.
type Mode string

const (
	ModeHybrid Mode = "hybrid"
	ModeDense  Mode = "dense"
	ModeSparse Mode = "sparse"
)

// Default fusion weights.
const (
	DefaultDenseWeight  = 0.7
	DefaultSparseWeight = 0.3
)

// Document is one retrievable unit of the corpus.
type Document struct {
	ID       string
	DocType  string
	Content  string
	Metadata map[string]any
}

// Result is one ranked retrieval match.
type Result struct {
	ID       string
	DocType  string
	Content  string
	Metadata map[string]any

	// DenseScore and SparseScore are the per-side scores after
	// normalization; Score is the weighted fusion.
	DenseScore  float64
	SparseScore float64
	Score       float64

	// Rank is 1-based position in the final ordering.
	Rank int

	// Method records which strategy produced the result.
	Method Mode
}

// Config tunes the retriever.
type Config struct {
	// DenseWeight and SparseWeight are fusion weights. They are
	// re-normalized to sum to 1 when they do not.
	DenseWeight  float64
	SparseWeight float64

	// Normalize applies min-max normalization to each side's scores over
	// the candidate set before fusion.
	Normalize bool

	// BM25 parameters for the sparse index.
	BM25 bm25.Config
}

// SetDefaults applies default configuration values.
func (c *Config) SetDefaults() {
	if c.DenseWeight == 0 && c.SparseWeight == 0 {
		c.DenseWeight = DefaultDenseWeight
		c.SparseWeight = DefaultSparseWeight
		c.Normalize = true
	}
}

// Retriever serves hybrid search over an in-memory corpus registry, a BM25
// index built from it, and an external vector store.
type Retriever struct {
	store     *vector.Store
	index     *bm25.Index
	docs      map[string]Document
	tokenizer tokenizer.Tokenizer
	cfg       Config
	logger    *slog.Logger
}

// NewRetriever builds the sparse index over docs and wires the dense store.
// The store may be nil, in which case only sparse retrieval is available.
func NewRetriever(store *vector.Store, docs []Document, tok tokenizer.Tokenizer, cfg Config, logger *slog.Logger) (*Retriever, error) {
	cfg.SetDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if tok == nil {
		tok = tokenizer.New()
	}

	if sum := cfg.DenseWeight + cfg.SparseWeight; sum != 1.0 {
		logger.Warn("Fusion weights do not sum to 1, re-normalizing",
			"dense", cfg.DenseWeight,
			"sparse", cfg.SparseWeight)
		cfg.DenseWeight /= sum
		cfg.SparseWeight /= sum
	}

	corpus := make([]bm25.Document, 0, len(docs))
	registry := make(map[string]Document, len(docs))
	for _, doc := range docs {
		corpus = append(corpus, bm25.Document{
			ID:      doc.ID,
			DocType: doc.DocType,
			Tokens:  tok.Tokenize(doc.Content),
		})
		registry[doc.ID] = doc
	}

	index, err := bm25.Build(corpus, cfg.BM25)
	if err != nil {
		return nil, fmt.Errorf("failed to build sparse index: %w", err)
	}

	return &Retriever{
		store:     store,
		index:     index,
		docs:      registry,
		tokenizer: tok,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Search returns up to topK documents for query. An empty docType searches
// the whole corpus. In hybrid mode a dense-side failure degrades to
// sparse-only with a warning instead of failing the request.
func (r *Retriever) Search(ctx context.Context, query string, topK int, mode Mode, docType string) ([]Result, error) {
	if topK <= 0 {
		return nil, nil
	}

	switch mode {
	case ModeDense:
		results, err := r.denseSearch(ctx, query, topK, docType)
		if err != nil {
			return nil, err
		}
		return finalize(results, topK, ModeDense), nil

	case ModeSparse:
		return finalize(r.sparseSearch(query, topK, docType), topK, ModeSparse), nil

	default:
		return r.hybridSearch(ctx, query, topK, docType)
	}
}

// hybridSearch over-fetches 2*topK from each side, fuses by weighted
// score, and returns the topK of the union.
func (r *Retriever) hybridSearch(ctx context.Context, query string, topK int, docType string) ([]Result, error) {
	fetch := topK * 2

	dense, err := r.denseSearch(ctx, query, fetch, docType)
	if err != nil {
		r.logger.Warn("Dense search failed, degrading to sparse-only retrieval",
			"query", query,
			"error", err)
		dense = nil
	}
	sparse := r.sparseSearch(query, fetch, docType)

	byID := make(map[string]*Result)
	order := make([]string, 0, len(dense)+len(sparse))
	for _, res := range dense {
		res := res
		byID[res.ID] = &res
		order = append(order, res.ID)
	}
	for _, res := range sparse {
		if existing, ok := byID[res.ID]; ok {
			existing.SparseScore = res.SparseScore
			continue
		}
		res := res
		byID[res.ID] = &res
		order = append(order, res.ID)
	}

	if r.cfg.Normalize {
		normalize(byID, order)
	}

	fused := make([]Result, 0, len(order))
	for _, id := range order {
		res := byID[id]
		res.Score = r.cfg.DenseWeight*res.DenseScore + r.cfg.SparseWeight*res.SparseScore
		res.Method = ModeHybrid
		fused = append(fused, *res)
	}

	sort.SliceStable(fused, func(a, b int) bool {
		return fused[a].Score > fused[b].Score
	})

	return finalize(fused, topK, ModeHybrid), nil
}

func (r *Retriever) denseSearch(ctx context.Context, query string, topK int, docType string) ([]Result, error) {
	if r.store == nil {
		return nil, fmt.Errorf("dense retrieval unavailable: no vector store configured")
	}

	var filter map[string]any
	if docType != "" {
		filter = map[string]any{"doc_type": docType}
	}

	matches, err := r.store.SearchWithFilter(ctx, query, topK, filter)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		res := Result{
			ID:         m.ID,
			Content:    m.Content,
			Metadata:   m.Metadata,
			DenseScore: float64(m.Score),
			Score:      float64(m.Score),
			Method:     ModeDense,
		}
		if dt, ok := m.Metadata["doc_type"].(string); ok {
			res.DocType = dt
		}
		// Prefer the registry copy so metadata keeps its original types.
		if doc, ok := r.docs[m.ID]; ok {
			res.DocType = doc.DocType
			res.Content = doc.Content
			res.Metadata = doc.Metadata
		}
		results = append(results, res)
	}
	return results, nil
}

func (r *Retriever) sparseSearch(query string, topK int, docType string) []Result {
	hits := r.index.Search(r.tokenizer.Tokenize(query), topK, docType)

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		doc := r.docs[hit.DocID]
		results = append(results, Result{
			ID:          hit.DocID,
			DocType:     hit.DocType,
			Content:     doc.Content,
			Metadata:    doc.Metadata,
			SparseScore: hit.Score,
			Score:       hit.Score,
			Method:      ModeSparse,
		})
	}
	return results
}

// normalize min-max scales each side's scores over the candidate set.
// A degenerate side (all scores equal) collapses to zero rather than NaN.
func normalize(byID map[string]*Result, order []string) {
	var dMin, dMax, sMin, sMax float64
	first := true
	for _, id := range order {
		res := byID[id]
		if first {
			dMin, dMax = res.DenseScore, res.DenseScore
			sMin, sMax = res.SparseScore, res.SparseScore
			first = false
			continue
		}
		if res.DenseScore < dMin {
			dMin = res.DenseScore
		}
		if res.DenseScore > dMax {
			dMax = res.DenseScore
		}
		if res.SparseScore < sMin {
			sMin = res.SparseScore
		}
		if res.SparseScore > sMax {
			sMax = res.SparseScore
		}
	}

	for _, id := range order {
		res := byID[id]
		res.DenseScore = scale(res.DenseScore, dMin, dMax)
		res.SparseScore = scale(res.SparseScore, sMin, sMax)
	}
}

func scale(v, min, max float64) float64 {
	if max == min {
		return 0
	}
	return (v - min) / (max - min)
}

// finalize truncates to topK and assigns 1-based ranks.
func finalize(results []Result, topK int, mode Mode) []Result {
	if len(results) > topK {
		results = results[:topK]
	}
	for i := range results {
		results[i].Rank = i + 1
		results[i].Method = mode
	}
	return results
}

// Stats summarizes the retriever's corpus.
func (r *Retriever) Stats() map[string]any {
	stats := r.index.Stats()
	stats["dense_enabled"] = r.store != nil
	stats["dense_weight"] = r.cfg.DenseWeight
	stats["sparse_weight"] = r.cfg.SparseWeight
	return stats
}
