package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/space-cap/alimgen/model"
)

// Verdict weights. The blacklist carries the most because a single hit is
// an automatic platform rejection.
const (
	weightBasic     = 0.3
	weightBlacklist = 0.4
	weightVariables = 0.2
	weightLLM       = 0.1
)

// complianceThreshold is the minimum aggregate score for a compliant
// verdict.
const complianceThreshold = 80

// criticalMarkers flag a violation as requiring a change before submission.
var criticalMarkers = []string{"블랙리스트", "광고성", "변수만으로", "길이 초과"}

// Checker combines the deterministic rule checks with the LLM review into
// a single verdict.
type Checker struct {
	reviewer *Reviewer
	logger   *slog.Logger
}

// NewChecker creates a Checker. The reviewer may be nil; the verdict then
// rests on the deterministic checks with a neutral LLM score.
func NewChecker(reviewer *Reviewer, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{reviewer: reviewer, logger: logger}
}

// Check runs every rule family on the template and aggregates the scores.
// A failed LLM review degrades to a neutral score; the absorbed error is
// returned alongside the verdict so callers can record it.
func (c *Checker) Check(ctx context.Context, tmpl *model.Template, policyContext string) (*model.Verdict, error) {
	c.logger.Info("Starting compliance check for template")

	if tmpl == nil || strings.TrimSpace(tmpl.Text) == "" {
		return FailedVerdict("템플릿 텍스트가 없습니다."), nil
	}

	basic := CheckBasicRules(tmpl.Text)
	blacklist := CheckBlacklist(tmpl.Text)
	variables := CheckVariables(tmpl.Text, tmpl.ButtonSuggestion)

	review := Review{ComplianceScore: defaultLLMScore}
	var reviewErr error
	if c.reviewer != nil {
		review, reviewErr = c.reviewer.Review(ctx, tmpl.Text, policyContext)
	}

	verdict := combine(basic, blacklist, variables, review)
	c.logger.Info("Compliance check completed",
		"score", verdict.ComplianceScore,
		"compliant", verdict.IsCompliant)
	return verdict, reviewErr
}

// combine merges the per-family results into the weighted verdict.
func combine(basic, blacklist, variables checkResult, review Review) *model.Verdict {
	total := basic.Score*weightBasic +
		blacklist.Score*weightBlacklist +
		variables.Score*weightVariables +
		review.ComplianceScore*weightLLM

	var violations []string
	violations = append(violations, basic.Violations...)
	violations = append(violations, blacklist.Violations...)
	violations = append(violations, variables.Violations...)
	violations = append(violations, review.Violations...)

	var warnings []string
	warnings = append(warnings, basic.Warnings...)
	warnings = append(warnings, variables.Warnings...)

	var required []string
	for _, v := range violations {
		if isCritical(v) {
			required = append(required, v)
		}
	}

	score := math.Round(total*10) / 10

	return &model.Verdict{
		IsCompliant:         len(required) == 0 && score >= complianceThreshold,
		ComplianceScore:     score,
		Violations:          violations,
		Warnings:            warnings,
		Recommendations:     recommendations(violations, warnings),
		ApprovalProbability: approvalProbability(score, required),
		RequiredChanges:     required,
		DetailedScores: model.DetailedScores{
			BasicRules:     basic.Score,
			BlacklistCheck: blacklist.Score,
			VariableUsage:  variables.Score,
			LLMAnalysis:    review.ComplianceScore,
		},
	}
}

// recommendations maps findings onto actionable fixes, deduplicated in
// first-occurrence order.
func recommendations(violations, warnings []string) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(rec string) {
		if _, ok := seen[rec]; ok {
			return
		}
		seen[rec] = struct{}{}
		out = append(out, rec)
	}

	for _, v := range violations {
		switch {
		case strings.Contains(v, "광고성"):
			add("광고성 표현을 제거하고 순수 정보성 내용으로 수정하세요")
		case strings.Contains(v, "길이 초과"):
			add(fmt.Sprintf("메시지 길이를 %d자 이내로 줄이세요", model.MaxTemplateLength))
		case strings.Contains(v, "변수"):
			add("변수 사용 규칙을 확인하고 수정하세요")
		case strings.Contains(v, "정보성 메시지"):
			add("메시지 하단에 정보성 메시지 표시를 추가하세요")
		}
	}
	for _, w := range warnings {
		if strings.Contains(w, "인사말") {
			add("메시지 시작에 적절한 인사말을 추가하세요")
		}
	}
	return out
}

func approvalProbability(score float64, required []string) model.ApprovalProbability {
	switch {
	case len(required) > 0:
		return model.ApprovalLow
	case score >= 90:
		return model.ApprovalHigh
	case score >= 75:
		return model.ApprovalMedium
	default:
		return model.ApprovalLow
	}
}

func isCritical(violation string) bool {
	for _, marker := range criticalMarkers {
		if strings.Contains(violation, marker) {
			return true
		}
	}
	return false
}

// FailedVerdict is the verdict when the check itself cannot run.
func FailedVerdict(reason string) *model.Verdict {
	return &model.Verdict{
		IsCompliant:         false,
		ComplianceScore:     0,
		Violations:          []string{reason},
		Recommendations:     []string{"전문가 검토 필요"},
		ApprovalProbability: model.ApprovalLow,
		RequiredChanges:     []string{reason},
	}
}

// Report renders a verdict as a human-readable Korean markdown report.
func Report(v *model.Verdict) string {
	var sb strings.Builder

	status := "❌ 위반"
	if v.IsCompliant {
		status = "✅ 준수"
	}

	sb.WriteString("## 카카오 알림톡 정책 준수 검증 결과\n\n")
	sb.WriteString("### 종합 평가\n")
	fmt.Fprintf(&sb, "- **준수 여부**: %s\n", status)
	fmt.Fprintf(&sb, "- **준수 점수**: %.1f/100점\n", v.ComplianceScore)
	fmt.Fprintf(&sb, "- **승인 가능성**: %s\n\n", v.ApprovalProbability)

	sb.WriteString("### 세부 점수\n")
	fmt.Fprintf(&sb, "- 기본 규칙: %.0f/100점\n", v.DetailedScores.BasicRules)
	fmt.Fprintf(&sb, "- 블랙리스트 검증: %.0f/100점\n", v.DetailedScores.BlacklistCheck)
	fmt.Fprintf(&sb, "- 변수 사용: %.0f/100점\n", v.DetailedScores.VariableUsage)
	fmt.Fprintf(&sb, "- AI 분석: %.0f/100점\n", v.DetailedScores.LLMAnalysis)

	fmt.Fprintf(&sb, "\n### 위반사항 (%d건)\n", len(v.Violations))
	for i, violation := range v.Violations {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, violation)
	}

	if len(v.Warnings) > 0 {
		fmt.Fprintf(&sb, "\n### 경고사항 (%d건)\n", len(v.Warnings))
		for i, warning := range v.Warnings {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, warning)
		}
	}
	if len(v.Recommendations) > 0 {
		sb.WriteString("\n### 개선 권장사항\n")
		for i, rec := range v.Recommendations {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, rec)
		}
	}
	if len(v.RequiredChanges) > 0 {
		sb.WriteString("\n### 필수 수정사항\n")
		for i, change := range v.RequiredChanges {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, change)
		}
	}

	return sb.String()
}
