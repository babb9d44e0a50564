package retrieval

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func policyDocs() []Document {
	return []Document{
		{
			ID: "chunk-1", DocType: "policy",
			Content:  "알림톡 템플릿 작성 가이드: 메시지는 정보성 내용만 포함해야 합니다.",
			Metadata: map[string]any{"policy_type": "content_guidelines", "source": "content-guide.md"},
		},
		{
			ID: "chunk-2", DocType: "policy",
			Content:  "알림톡 심사 기준: 블랙리스트 위반 사항이 있으면 승인 반려됩니다.",
			Metadata: map[string]any{"policy_type": "review_guidelines", "source": "audit.md"},
		},
		{
			ID: "chunk-3", DocType: "policy",
			Content:  "변수 사용 규칙: 변수는 #{변수명} 형태로 40개까지 사용할 수 있습니다.",
			Metadata: map[string]any{"policy_type": "content_guidelines", "source": "content-guide.md"},
		},
		{
			ID: "tmpl-1", DocType: "template",
			Content:  "주문 배송 완료 안내 템플릿 예시",
			Metadata: map[string]any{"policy_type": "allowed_templates", "source": "templates.json"},
		},
	}
}

func newContextBuilder(t *testing.T) *ContextBuilder {
	t.Helper()
	r, err := NewRetriever(nil, policyDocs(), nil, Config{}, slog.Default())
	require.NoError(t, err)
	return NewContextBuilder(r, slog.Default())
}

func TestBuild_TemplateGeneration(t *testing.T) {
	b := newContextBuilder(t)

	pc := b.Build(context.Background(), "교육 강의 수강 신청 알림톡 템플릿", ContextTemplateGeneration)
	require.NotNil(t, pc)
	assert.Greater(t, pc.TotalChunks, 0)
	assert.Contains(t, pc.Context, "## 카카오 알림톡 템플릿 작성 가이드")
	assert.Contains(t, pc.Context, "콘텐츠 작성 가이드")
	assert.Contains(t, pc.Sources, "content-guide.md")
	assert.Len(t, pc.RelevanceScores, pc.TotalChunks)
}

func TestBuild_ComplianceCheckHeader(t *testing.T) {
	b := newContextBuilder(t)

	pc := b.Build(context.Background(), "알림톡 심사 기준", ContextComplianceCheck)
	assert.Contains(t, pc.Context, "## 카카오 알림톡 정책 준수 기준")
	assert.Contains(t, pc.PolicyTypes, "review_guidelines")
}

func TestBuild_OnlyPolicyDocs(t *testing.T) {
	// Template documents never leak into policy context.
	b := newContextBuilder(t)

	pc := b.Build(context.Background(), "배송 안내 템플릿", ContextGeneral)
	assert.NotContains(t, pc.Sources, "templates.json")
}

func TestBuild_NoMatchesFallsBack(t *testing.T) {
	r, err := NewRetriever(nil, []Document{
		{ID: "x", DocType: "policy", Content: "zzz qqq", Metadata: map[string]any{}},
	}, nil, Config{}, slog.Default())
	require.NoError(t, err)
	b := NewContextBuilder(r, slog.Default())

	pc := b.Build(context.Background(), "완전히 무관한 주제의 검색어입니다만", ContextGeneral)
	assert.Contains(t, pc.Context, "카카오 알림톡 기본 정책")
}

func TestDedupeAndRank(t *testing.T) {
	long := strings.Repeat("가", 120)
	results := []Result{
		{ID: "a", Content: long + "하나", Score: 0.5},
		{ID: "b", Content: long + "둘", Score: 0.9}, // same first 100 runes as "a"
		{ID: "c", Content: "완전히 다른 내용", Score: 0.7},
		{ID: "d", Content: "   ", Score: 1.0},
	}

	unique := dedupeAndRank(results)
	require.Len(t, unique, 2)
	assert.Equal(t, "c", unique[0].ID, "sorted by score descending")
	assert.Equal(t, "a", unique[1].ID, "first occurrence wins the dedup")
}

func TestFormatContext_GroupCapAndSeparators(t *testing.T) {
	chunks := []Result{
		{ID: "1", Content: "첫번째 내용", Score: 0.9, Metadata: map[string]any{"policy_type": "review_guidelines"}},
		{ID: "2", Content: "두번째 내용", Score: 0.8, Metadata: map[string]any{"policy_type": "review_guidelines"}},
		{ID: "3", Content: "세번째 내용", Score: 0.7, Metadata: map[string]any{"policy_type": "review_guidelines"}},
		{ID: "4", Content: "네번째 내용", Score: 0.6, Metadata: map[string]any{"policy_type": "review_guidelines"}},
	}

	text := formatContext(chunks, ContextGeneral)
	assert.Contains(t, text, "### 심사 가이드라인")
	assert.NotContains(t, text, "네번째 내용", "at most three chunks per policy type")
	assert.Equal(t, 2, strings.Count(text, "---"))
}

func TestPolicyTypeTitle_Unknown(t *testing.T) {
	assert.Equal(t, "기타 정책", policyTypeTitle("mystery"))
	assert.Equal(t, "일반 정책", policyTypeTitle("general"))
}
