package bm25

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCorpus() []Document {
	return []Document{
		{ID: "policy-1", DocType: "policy", Tokens: []string{"알림톡", "템플릿", "작성", "가이드"}},
		{ID: "policy-2", DocType: "policy", Tokens: []string{"블랙리스트", "금지", "광고성", "내용"}},
		{ID: "tmpl-1", DocType: "template", Tokens: []string{"배송", "완료", "안내", "템플릿"}},
		{ID: "tmpl-2", DocType: "template", Tokens: []string{"주문", "확인", "안내"}},
	}
}

func TestBuild_EmptyCorpus(t *testing.T) {
	_, err := Build(nil, Config{})
	assert.ErrorIs(t, err, ErrEmptyCorpus)
}

func TestBuild_Defaults(t *testing.T) {
	idx, err := Build(testCorpus(), Config{})
	require.NoError(t, err)
	assert.Equal(t, 4, idx.Len())
	assert.Equal(t, DefaultK1, idx.k1)
	assert.Equal(t, DefaultB, idx.b)
}

func TestScore_AlignedWithCorpusOrder(t *testing.T) {
	idx, err := Build(testCorpus(), Config{})
	require.NoError(t, err)

	scores := idx.Score([]string{"템플릿"})
	require.Len(t, scores, 4)
	assert.Greater(t, scores[0], 0.0)
	assert.Zero(t, scores[1])
	assert.Greater(t, scores[2], 0.0)
	assert.Zero(t, scores[3])
}

func TestScore_UnbuiltIndex(t *testing.T) {
	var idx *Index
	assert.Empty(t, idx.Score([]string{"알림톡"}))
}

func TestSearch_OrderAndPositiveCut(t *testing.T) {
	idx, err := Build(testCorpus(), Config{})
	require.NoError(t, err)

	hits := idx.Search([]string{"배송", "안내"}, 10, "")
	require.NotEmpty(t, hits)
	// tmpl-1 matches both terms and must outrank tmpl-2.
	assert.Equal(t, "tmpl-1", hits[0].DocID)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
	for _, h := range hits {
		assert.Greater(t, h.Score, 0.0)
	}
}

func TestSearch_TieBrokenByInsertionOrder(t *testing.T) {
	docs := []Document{
		{ID: "a", Tokens: []string{"안내", "메시지"}},
		{ID: "b", Tokens: []string{"안내", "메시지"}},
	}
	idx, err := Build(docs, Config{})
	require.NoError(t, err)

	hits := idx.Search([]string{"안내"}, 2, "")
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].DocID)
	assert.Equal(t, "b", hits[1].DocID)
}

func TestSearch_DocTypeFilter(t *testing.T) {
	idx, err := Build(testCorpus(), Config{})
	require.NoError(t, err)

	hits := idx.Search([]string{"템플릿"}, 10, "template")
	require.Len(t, hits, 1)
	assert.Equal(t, "tmpl-1", hits[0].DocID)

	assert.Empty(t, idx.Search([]string{"템플릿"}, 10, "unknown_type"))
}

func TestSearch_NoMatches(t *testing.T) {
	idx, err := Build(testCorpus(), Config{})
	require.NoError(t, err)

	assert.Empty(t, idx.Search([]string{"존재하지않는토큰"}, 10, ""))
}

func TestSearch_Determinism(t *testing.T) {
	idx, err := Build(testCorpus(), Config{})
	require.NoError(t, err)

	query := []string{"안내", "템플릿"}
	first := idx.Search(query, 10, "")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, idx.Search(query, 10, ""))
	}
}
