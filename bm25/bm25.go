// Package bm25 implements Okapi BM25 sparse retrieval over a tokenized
// corpus. The index is immutable once built, so concurrent readers need no
// locking.
package bm25

import (
	"errors"
	"math"
	"sort"
)

// Default Okapi parameters.
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// ErrEmptyCorpus is returned by Build when no documents are provided.
var ErrEmptyCorpus = errors.New("bm25: cannot build index over empty corpus")

// Document is one indexable unit: a stable ID, an optional type tag used
// for filtered search, and the pre-tokenized content.
type Document struct {
	ID      string
	DocType string
	Tokens  []string
}

// Hit is one search result.
type Hit struct {
	DocID   string
	DocType string
	Score   float64
	// Index is the document's insertion position in the corpus.
	Index int
}

// Config tunes the BM25 scoring function.
type Config struct {
	// K1 controls term frequency saturation (default 1.2).
	K1 float64
	// B controls document length normalization (default 0.75).
	B float64
}

// SetDefaults applies default parameter values.
func (c *Config) SetDefaults() {
	if c.K1 <= 0 {
		c.K1 = DefaultK1
	}
	if c.B <= 0 {
		c.B = DefaultB
	}
}

// Index is a built BM25 index. Immutable after Build.
type Index struct {
	k1 float64
	b  float64

	docs     []Document
	termFreq []map[string]int
	docLen   []int
	avgLen   float64
	idf      map[string]float64
}

// Build indexes the corpus and precomputes IDF weights.
// Returns ErrEmptyCorpus when docs is empty.
func Build(docs []Document, cfg Config) (*Index, error) {
	if len(docs) == 0 {
		return nil, ErrEmptyCorpus
	}
	cfg.SetDefaults()

	idx := &Index{
		k1:       cfg.K1,
		b:        cfg.B,
		docs:     docs,
		termFreq: make([]map[string]int, len(docs)),
		docLen:   make([]int, len(docs)),
	}

	df := make(map[string]int)
	totalLen := 0
	for i, doc := range docs {
		tf := make(map[string]int, len(doc.Tokens))
		for _, tok := range doc.Tokens {
			tf[tok]++
		}
		idx.termFreq[i] = tf
		idx.docLen[i] = len(doc.Tokens)
		totalLen += len(doc.Tokens)
		for tok := range tf {
			df[tok]++
		}
	}
	idx.avgLen = float64(totalLen) / float64(len(docs))

	// IDF with the +1 shift so every matching term contributes a positive
	// score; the score > 0 cut in Search then means "matched at all".
	n := float64(len(docs))
	idx.idf = make(map[string]float64, len(df))
	for tok, freq := range df {
		idx.idf[tok] = math.Log((n-float64(freq)+0.5)/(float64(freq)+0.5) + 1)
	}

	return idx, nil
}

// Len returns the number of indexed documents.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.docs)
}

// Score computes BM25 scores for queryTokens against every document,
// aligned with corpus insertion order. A nil index yields an empty slice.
func (idx *Index) Score(queryTokens []string) []float64 {
	if idx == nil || len(idx.docs) == 0 {
		return nil
	}

	scores := make([]float64, len(idx.docs))
	for _, tok := range queryTokens {
		idf, ok := idx.idf[tok]
		if !ok {
			continue
		}
		for i, tf := range idx.termFreq {
			f := float64(tf[tok])
			if f == 0 {
				continue
			}
			norm := 1 - idx.b + idx.b*float64(idx.docLen[i])/idx.avgLen
			scores[i] += idf * f * (idx.k1 + 1) / (f + idx.k1*norm)
		}
	}
	return scores
}

// Search returns up to k documents matching queryTokens, ordered strictly
// by score descending with ties broken by insertion order. Only documents
// with score > 0 are returned. A non-empty docType restricts results to
// documents carrying that type; an unknown docType yields no results.
func (idx *Index) Search(queryTokens []string, k int, docType string) []Hit {
	scores := idx.Score(queryTokens)
	if len(scores) == 0 || k <= 0 {
		return nil
	}

	hits := make([]Hit, 0, len(scores))
	for i, score := range scores {
		if score <= 0 {
			continue
		}
		if docType != "" && idx.docs[i].DocType != docType {
			continue
		}
		hits = append(hits, Hit{
			DocID:   idx.docs[i].ID,
			DocType: idx.docs[i].DocType,
			Score:   score,
			Index:   i,
		})
	}

	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Score > hits[b].Score
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Stats summarizes the built corpus.
func (idx *Index) Stats() map[string]any {
	if idx == nil {
		return map[string]any{"total_documents": 0, "index_built": false}
	}
	total := 0
	for _, l := range idx.docLen {
		total += l
	}
	return map[string]any{
		"total_documents":        len(idx.docs),
		"total_tokens":           total,
		"average_tokens_per_doc": idx.avgLen,
		"index_built":            true,
	}
}
