package compliance

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/space-cap/alimgen/llm"
	"github.com/space-cap/alimgen/model"
)

type fakeProvider struct {
	response string
	err      error
	calls    int
}

func (p *fakeProvider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &llm.Response{Text: p.response, TokensUsed: 80}, nil
}

func (p *fakeProvider) Model() string { return "fake" }
func (p *fakeProvider) Close() error  { return nil }

func newChecker(t *testing.T, provider llm.Provider) *Checker {
	t.Helper()
	if provider == nil {
		return NewChecker(nil, slog.Default())
	}
	prompts, err := llm.NewPromptBuilder()
	require.NoError(t, err)
	return NewChecker(NewReviewer(provider, prompts, slog.Default()), slog.Default())
}

func cleanTmpl() *model.Template {
	return &model.Template{
		Text:             cleanTemplate,
		Variables:        model.ExtractVariables(cleanTemplate),
		ButtonSuggestion: "강의 보기",
	}
}

func TestCheck_CompliantTemplate(t *testing.T) {
	c := newChecker(t, nil)

	verdict, err := c.Check(context.Background(), cleanTmpl(), "정보성 메시지만 허용")
	require.NoError(t, err)
	require.NotNil(t, verdict)

	// 100*0.3 + 100*0.4 + 100*0.2 + 80*0.1 with a neutral LLM score.
	assert.Equal(t, 98.0, verdict.ComplianceScore)
	assert.True(t, verdict.IsCompliant)
	assert.Equal(t, model.ApprovalHigh, verdict.ApprovalProbability)
	assert.Empty(t, verdict.RequiredChanges)
	assert.Equal(t, 100.0, verdict.DetailedScores.BasicRules)
	assert.Equal(t, 80.0, verdict.DetailedScores.LLMAnalysis)
}

func TestCheck_AdTemplateFails(t *testing.T) {
	c := newChecker(t, nil)

	tmpl := &model.Template{Text: "지금 클릭하세요! 할인 이벤트 특가 진행 중입니다."}
	verdict, err := c.Check(context.Background(), tmpl, "")
	require.NoError(t, err)

	assert.False(t, verdict.IsCompliant)
	assert.Equal(t, model.ApprovalLow, verdict.ApprovalProbability)
	assert.NotEmpty(t, verdict.RequiredChanges)
	assert.Contains(t, verdict.Recommendations, "광고성 표현을 제거하고 순수 정보성 내용으로 수정하세요")
	assert.Contains(t, verdict.Recommendations, "메시지 시작에 적절한 인사말을 추가하세요")
}

func TestCheck_EmptyTemplate(t *testing.T) {
	c := newChecker(t, nil)

	verdict, err := c.Check(context.Background(), &model.Template{Text: "   "}, "")
	require.NoError(t, err)
	assert.False(t, verdict.IsCompliant)
	assert.Zero(t, verdict.ComplianceScore)
	assert.Equal(t, []string{"템플릿 텍스트가 없습니다."}, verdict.RequiredChanges)
	assert.Equal(t, []string{"전문가 검토 필요"}, verdict.Recommendations)
}

func TestCheck_LLMReviewMergesFindings(t *testing.T) {
	provider := &fakeProvider{response: `{
		"is_compliant": false,
		"compliance_score": 60,
		"violations": ["광고성 어조가 감지되었습니다"],
		"recommendations": ["톤을 낮추세요"],
		"approval_probability": "낮음",
		"required_changes": []
	}`}
	c := newChecker(t, provider)

	verdict, err := c.Check(context.Background(), cleanTmpl(), "정책")
	require.NoError(t, err)
	assert.Equal(t, 1, provider.calls)

	// 100*0.3 + 100*0.4 + 100*0.2 + 60*0.1
	assert.Equal(t, 96.0, verdict.ComplianceScore)
	assert.Equal(t, 60.0, verdict.DetailedScores.LLMAnalysis)
	assert.Contains(t, verdict.Violations, "광고성 어조가 감지되었습니다")

	// A 광고성 finding from the review is critical.
	assert.False(t, verdict.IsCompliant)
	assert.Equal(t, model.ApprovalLow, verdict.ApprovalProbability)
}

func TestCheck_LLMFailureIsNeutral(t *testing.T) {
	c := newChecker(t, &fakeProvider{err: errors.New("upstream down")})

	verdict, err := c.Check(context.Background(), cleanTmpl(), "정책")
	assert.Error(t, err, "the absorbed review failure must be reported")
	assert.Equal(t, 98.0, verdict.ComplianceScore)
	assert.True(t, verdict.IsCompliant)
	assert.Equal(t, 80.0, verdict.DetailedScores.LLMAnalysis)
}

func TestCheck_LLMGarbageIsNeutral(t *testing.T) {
	c := newChecker(t, &fakeProvider{response: "죄송하지만 판단할 수 없습니다."})

	verdict, err := c.Check(context.Background(), cleanTmpl(), "정책")
	assert.Error(t, err)
	assert.Equal(t, 80.0, verdict.DetailedScores.LLMAnalysis)
	assert.True(t, verdict.IsCompliant)
}

func TestApprovalProbability(t *testing.T) {
	assert.Equal(t, model.ApprovalLow, approvalProbability(95, []string{"블랙리스트 위반: 스팸_패턴"}))
	assert.Equal(t, model.ApprovalHigh, approvalProbability(90, nil))
	assert.Equal(t, model.ApprovalMedium, approvalProbability(75, nil))
	assert.Equal(t, model.ApprovalLow, approvalProbability(74.9, nil))
}

func TestRecommendations_Dedup(t *testing.T) {
	recs := recommendations([]string{
		"광고성 키워드 발견: 할인",
		"블랙리스트 위반: 광고성_내용",
	}, nil)
	assert.Equal(t, []string{"광고성 표현을 제거하고 순수 정보성 내용으로 수정하세요"}, recs)
}

func TestReport(t *testing.T) {
	c := newChecker(t, nil)
	verdict, err := c.Check(context.Background(), cleanTmpl(), "")
	require.NoError(t, err)

	report := Report(verdict)
	assert.Contains(t, report, "✅ 준수")
	assert.Contains(t, report, "98.0/100점")
	assert.Contains(t, report, "### 세부 점수")
	assert.NotContains(t, report, "### 필수 수정사항")
}
