package retrieval

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/space-cap/alimgen/vector"
)

type fixedEmbedder struct {
	vectors map[string][]float32
}

func (f *fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func (f *fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, _ := f.Embed(ctx, t)
		out = append(out, v)
	}
	return out, nil
}

func (f *fixedEmbedder) Dimension() int { return 3 }
func (f *fixedEmbedder) Model() string  { return "fixed" }
func (f *fixedEmbedder) Close() error   { return nil }

func testDocs() []Document {
	return []Document{
		{ID: "p1", DocType: "policy", Content: "알림톡 템플릿 작성 가이드", Metadata: map[string]any{"doc_type": "policy"}},
		{ID: "p2", DocType: "policy", Content: "블랙리스트 금지 광고성 내용", Metadata: map[string]any{"doc_type": "policy"}},
		{ID: "t1", DocType: "template", Content: "주문 배송 완료 안내 템플릿", Metadata: map[string]any{"doc_type": "template"}},
	}
}

func newDenseRetriever(t *testing.T, docs []Document, vectors map[string][]float32) *Retriever {
	t.Helper()

	provider, err := vector.NewChromemProvider(vector.ChromemConfig{})
	require.NoError(t, err)
	store := vector.NewStore(provider, &fixedEmbedder{vectors: vectors}, "policies", slog.Default())

	vdocs := make([]vector.Doc, 0, len(docs))
	for _, d := range docs {
		vdocs = append(vdocs, vector.Doc{ID: d.ID, Content: d.Content, Metadata: d.Metadata})
	}
	require.NoError(t, store.Add(context.Background(), vdocs))

	r, err := NewRetriever(store, docs, nil, Config{}, slog.Default())
	require.NoError(t, err)
	return r
}

func TestNewRetriever_EmptyCorpus(t *testing.T) {
	_, err := NewRetriever(nil, nil, nil, Config{}, slog.Default())
	assert.Error(t, err)
}

func TestSearch_SparseMode(t *testing.T) {
	r, err := NewRetriever(nil, testDocs(), nil, Config{}, slog.Default())
	require.NoError(t, err)

	results, err := r.Search(context.Background(), "배송 안내", 5, ModeSparse, "")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "t1", results[0].ID)
	assert.Equal(t, ModeSparse, results[0].Method)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, "주문 배송 완료 안내 템플릿", results[0].Content)
}

func TestSearch_DenseModeWithoutStore(t *testing.T) {
	r, err := NewRetriever(nil, testDocs(), nil, Config{}, slog.Default())
	require.NoError(t, err)

	_, err = r.Search(context.Background(), "아무거나", 5, ModeDense, "")
	assert.Error(t, err)
}

func TestSearch_HybridDegradesToSparse(t *testing.T) {
	// No vector store: hybrid must still answer from the sparse side.
	r, err := NewRetriever(nil, testDocs(), nil, Config{}, slog.Default())
	require.NoError(t, err)

	results, err := r.Search(context.Background(), "템플릿 작성 가이드", 5, ModeHybrid, "")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "p1", results[0].ID)
	assert.Equal(t, ModeHybrid, results[0].Method)
}

func TestSearch_HybridFusion(t *testing.T) {
	vectors := map[string][]float32{
		"알림톡 템플릿 작성 가이드":   {1, 0, 0},
		"블랙리스트 금지 광고성 내용": {0, 1, 0},
		"주문 배송 완료 안내 템플릿": {0, 0.9, 0.1},
		"템플릿 가이드":           {0.95, 0.05, 0},
	}
	r := newDenseRetriever(t, testDocs(), vectors)

	// p1 matches both the dense side (closest vector) and the sparse side
	// (shares tokens), so it must rank first.
	results, err := r.Search(context.Background(), "템플릿 가이드", 3, ModeHybrid, "")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "p1", results[0].ID)
	assert.Greater(t, results[0].DenseScore, 0.0)
	assert.Greater(t, results[0].SparseScore, 0.0)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
		assert.Equal(t, i+1, results[i].Rank)
	}
}

func TestSearch_DocTypeFilter(t *testing.T) {
	r, err := NewRetriever(nil, testDocs(), nil, Config{}, slog.Default())
	require.NoError(t, err)

	results, err := r.Search(context.Background(), "템플릿", 5, ModeSparse, "template")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "t1", results[0].ID)
}

func TestSearch_TopKTruncation(t *testing.T) {
	r, err := NewRetriever(nil, testDocs(), nil, Config{}, slog.Default())
	require.NoError(t, err)

	results, err := r.Search(context.Background(), "템플릿 안내", 1, ModeSparse, "")
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestConfig_WeightNormalization(t *testing.T) {
	r, err := NewRetriever(nil, testDocs(), nil, Config{DenseWeight: 7, SparseWeight: 3}, slog.Default())
	require.NoError(t, err)

	stats := r.Stats()
	assert.InDelta(t, 0.7, stats["dense_weight"].(float64), 1e-9)
	assert.InDelta(t, 0.3, stats["sparse_weight"].(float64), 1e-9)
}
