package ingest

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/space-cap/alimgen/model"
)

func TestPolicyTypeForFile(t *testing.T) {
	assert.Equal(t, model.PolicyReviewGuidelines, PolicyTypeForFile("audit.md"))
	assert.Equal(t, model.PolicyProhibitedTemplates, PolicyTypeForFile("black-list.md"))
	assert.Equal(t, model.PolicyGeneral, PolicyTypeForFile("notes.md"))
}

func TestSplitText_ShortText(t *testing.T) {
	chunks := SplitText("짧은 정책 문서", ChunkSize, ChunkOverlap)
	require.Len(t, chunks, 1)
	assert.Equal(t, "짧은 정책 문서", chunks[0])
}

func TestSplitText_Empty(t *testing.T) {
	assert.Empty(t, SplitText("", ChunkSize, ChunkOverlap))
	assert.Empty(t, SplitText("   \n\n  ", ChunkSize, ChunkOverlap))
}

func TestSplitText_RespectsChunkSize(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString(strings.Repeat("알림톡 정책 조항입니다. ", 10))
		sb.WriteString("\n\n")
	}

	chunks := SplitText(sb.String(), ChunkSize, ChunkOverlap)
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk)), ChunkSize)
	}
}

func TestSplitText_OverlapCarriesContext(t *testing.T) {
	var paragraphs []string
	for i := 0; i < 30; i++ {
		paragraphs = append(paragraphs, strings.Repeat("정책", 60))
	}
	chunks := SplitText(strings.Join(paragraphs, "\n\n"), 300, 50)
	require.Greater(t, len(chunks), 1)

	// Each chunk after the first starts with the tail of its predecessor.
	for i := 1; i < len(chunks); i++ {
		tail := tailRunes(chunks[i-1], 50)
		assert.True(t, strings.HasPrefix(chunks[i], tail))
	}
}

func TestSplitText_OversizedSinglePiece(t *testing.T) {
	// No separators at all: falls back to rune splitting.
	chunks := SplitText(strings.Repeat("가", 2500), ChunkSize, 0)
	require.GreaterOrEqual(t, len(chunks), 3)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk)), ChunkSize)
	}
}

func TestLoadPolicies(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "audit.md"),
		[]byte("# 심사 기준\n\n알림톡 템플릿은 정보성 메시지여야 합니다."), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "black-list.md"),
		[]byte("# 금지 사항\n\n광고성 내용은 반려됩니다."), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"),
		[]byte("ignored"), 0644))

	docs, err := LoadPolicies(dir, slog.Default())
	require.NoError(t, err)
	require.Len(t, docs, 2)

	// Name-ordered: audit.md first.
	assert.Equal(t, "policy_audit.md_0", docs[0].ID)
	assert.Equal(t, "policy", docs[0].DocType)
	assert.Equal(t, string(model.PolicyReviewGuidelines), docs[0].Metadata["policy_type"])
	assert.Equal(t, "audit.md", docs[0].Metadata["source"])
	assert.Equal(t, string(model.PolicyProhibitedTemplates), docs[1].Metadata["policy_type"])
}

func TestLoadPolicies_EmptyDir(t *testing.T) {
	_, err := LoadPolicies(t.TempDir(), slog.Default())
	assert.Error(t, err)
}

func TestLoadPolicies_MissingDir(t *testing.T) {
	_, err := LoadPolicies("/nonexistent/policies", slog.Default())
	assert.Error(t, err)
}
