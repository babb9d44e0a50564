package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"strings"
)

// ContextType selects which policy angle the built context emphasizes.
type ContextType string

const (
	ContextTemplateGeneration ContextType = "template_generation"
	ContextComplianceCheck    ContextType = "compliance_check"
	ContextGeneral            ContextType = "general"
)

// Limits on context assembly.
const (
	primaryTopK    = 8
	secondaryTopK  = 3
	maxChunks      = 10
	maxPerGroup    = 3
	dedupPrefixLen = 100
)

// PolicyContext is an assembled, prompt-ready policy digest.
type PolicyContext struct {
	// Context is the formatted markdown text injected into prompts.
	Context string
	// Sources lists the distinct source files the chunks came from.
	Sources []string
	// PolicyTypes lists the distinct policy categories represented.
	PolicyTypes []string
	// RelevanceScores holds the per-chunk scores, ordered with the chunks.
	RelevanceScores []float64
	// TotalChunks is the number of chunks after deduplication.
	TotalChunks int
}

// secondaryQueries broadens retrieval per context type beyond the caller's
// primary query.
var secondaryQueries = map[ContextType][]string{
	ContextTemplateGeneration: {
		"알림톡 템플릿 작성 가이드",
		"메시지 유형별 작성 방법",
		"변수 사용 규칙",
	},
	ContextComplianceCheck: {
		"알림톡 심사 기준",
		"블랙리스트 위반 사항",
		"승인 반려 사유",
	},
	ContextGeneral: {
		"알림톡 기본 규칙",
		"정보성 메시지 정의",
	},
}

var contextHeaders = map[ContextType]string{
	ContextTemplateGeneration: "## 카카오 알림톡 템플릿 작성 가이드",
	ContextComplianceCheck:    "## 카카오 알림톡 정책 준수 기준",
	ContextGeneral:            "## 카카오 알림톡 정책 정보",
}

var policyTypeTitles = map[string]string{
	"review_guidelines":          "심사 가이드라인",
	"content_guidelines":         "콘텐츠 작성 가이드",
	"allowed_templates":          "허용 템플릿 유형",
	"prohibited_templates":       "금지 템플릿 유형",
	"operational_procedures":     "운영 절차",
	"image_guidelines":           "이미지 가이드라인",
	"infotalk_guidelines":        "인포톡 가이드라인",
	"public_template_guidelines": "공용 템플릿 가이드라인",
	"general":                    "일반 정책",
}

// basicPolicyContext stands in when retrieval finds nothing or fails.
const basicPolicyContext = `## 카카오 알림톡 기본 정책

### 기본 원칙
1. 알림톡은 정보성 메시지만 발송 가능합니다.
2. 광고성 내용은 포함할 수 없습니다.
3. 수신자가 서비스를 이용하거나 계약을 체결한 경우에만 발송 가능합니다.

### 필수 요구사항
- 메시지는 1,000자 이내로 작성해야 합니다.
- 변수는 #{변수명} 형태로 사용하며 40개를 초과할 수 없습니다.
- 정중한 어조를 유지해야 합니다.
- 정보성 메시지임을 명시해야 합니다.

### 금지사항
- 광고성 표현 (할인, 이벤트, 특가 등)
- 변수만으로 구성된 메시지
- 과도한 연락처 정보
- 블랙리스트에 해당하는 내용`

// ContextBuilder assembles policy context for prompts from retrieval
// results.
type ContextBuilder struct {
	retriever *Retriever
	logger    *slog.Logger
}

// NewContextBuilder creates a builder over the given retriever.
func NewContextBuilder(retriever *Retriever, logger *slog.Logger) *ContextBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContextBuilder{retriever: retriever, logger: logger}
}

// Build runs the primary query plus context-type secondary queries,
// deduplicates and ranks the chunks, and formats them for prompt
// injection. Retrieval failure yields the built-in basic policy context
// rather than an error.
func (b *ContextBuilder) Build(ctx context.Context, query string, ctype ContextType) *PolicyContext {
	b.logger.Info("Building policy context",
		"query", truncate(query, 100),
		"context_type", string(ctype))

	primary, err := b.retriever.Search(ctx, query, primaryTopK, ModeHybrid, "policy")
	if err != nil {
		b.logger.Error("Policy retrieval failed, using fallback context", "error", err)
		return fallbackContext()
	}

	queries, ok := secondaryQueries[ctype]
	if !ok {
		queries = secondaryQueries[ContextGeneral]
	}
	for _, q := range queries {
		extra, err := b.retriever.Search(ctx, q, secondaryTopK, ModeHybrid, "policy")
		if err != nil {
			b.logger.Warn("Secondary policy search failed", "query", q, "error", err)
			continue
		}
		primary = append(primary, extra...)
	}

	chunks := dedupeAndRank(primary)

	pc := &PolicyContext{
		Context:         formatContext(chunks, ctype),
		Sources:         extractMetaValues(chunks, "source"),
		PolicyTypes:     extractMetaValues(chunks, "policy_type"),
		RelevanceScores: make([]float64, 0, len(chunks)),
		TotalChunks:     len(chunks),
	}
	for _, c := range chunks {
		pc.RelevanceScores = append(pc.RelevanceScores, c.Score)
	}

	b.logger.Info("Policy context assembled",
		"chunks", pc.TotalChunks,
		"sources", len(pc.Sources))
	return pc
}

func fallbackContext() *PolicyContext {
	return &PolicyContext{
		Context:         basicPolicyContext,
		Sources:         []string{"fallback"},
		PolicyTypes:     []string{"general"},
		RelevanceScores: []float64{1.0},
		TotalChunks:     1,
	}
}

// dedupeAndRank drops chunks whose leading text was already seen, sorts
// by score descending, and caps the result.
func dedupeAndRank(results []Result) []Result {
	seen := make(map[string]bool, len(results))
	unique := make([]Result, 0, len(results))
	for _, res := range results {
		content := strings.TrimSpace(res.Content)
		if content == "" {
			continue
		}
		key := prefixRunes(content, dedupPrefixLen)
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, res)
	}

	sort.SliceStable(unique, func(a, b int) bool {
		return unique[a].Score > unique[b].Score
	})

	if len(unique) > maxChunks {
		unique = unique[:maxChunks]
	}
	return unique
}

// formatContext groups chunks by policy type and renders the markdown
// digest, at most maxPerGroup chunks per group separated by rules.
func formatContext(chunks []Result, ctype ContextType) string {
	if len(chunks) == 0 {
		return basicPolicyContext
	}

	header, ok := contextHeaders[ctype]
	if !ok {
		header = contextHeaders[ContextGeneral]
	}

	var groupOrder []string
	grouped := make(map[string][]Result)
	for _, chunk := range chunks {
		pt := metaString(chunk.Metadata, "policy_type")
		if pt == "" {
			pt = "general"
		}
		if _, exists := grouped[pt]; !exists {
			groupOrder = append(groupOrder, pt)
		}
		grouped[pt] = append(grouped[pt], chunk)
	}

	parts := []string{header}
	for _, pt := range groupOrder {
		group := grouped[pt]
		if len(group) > maxPerGroup {
			group = group[:maxPerGroup]
		}
		parts = append(parts, "\n### "+policyTypeTitle(pt))
		for i, chunk := range group {
			parts = append(parts, "\n"+strings.TrimSpace(chunk.Content))
			if i < len(group)-1 {
				parts = append(parts, "\n---")
			}
		}
	}
	return strings.Join(parts, "\n")
}

func policyTypeTitle(policyType string) string {
	if title, ok := policyTypeTitles[policyType]; ok {
		return title
	}
	return "기타 정책"
}

// extractMetaValues collects the distinct values of a metadata key, sorted
// for deterministic output.
func extractMetaValues(chunks []Result, key string) []string {
	set := make(map[string]bool)
	for _, chunk := range chunks {
		if v := metaString(chunk.Metadata, key); v != "" {
			set[v] = true
		}
	}
	values := make([]string, 0, len(set))
	for v := range set {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

func metaString(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	if v, ok := metadata[key].(string); ok {
		return v
	}
	return ""
}

func prefixRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) > n {
		runes = runes[:n]
	}
	return string(runes)
}

func truncate(s string, n int) string {
	return prefixRunes(s, n)
}
