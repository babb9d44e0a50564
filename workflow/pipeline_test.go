package workflow

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/space-cap/alimgen/analyzer"
	"github.com/space-cap/alimgen/cache"
	"github.com/space-cap/alimgen/compliance"
	"github.com/space-cap/alimgen/generator"
	"github.com/space-cap/alimgen/llm"
	"github.com/space-cap/alimgen/model"
	"github.com/space-cap/alimgen/retrieval"
)

// routedProvider answers each prompt kind with a canned response, keyed off
// the system prompt, so the fully assembled pipeline runs end to end
// without an upstream model.
type routedProvider struct {
	analysisJSON   string
	generationJSON string
	reviewJSON     string

	analysisCalls   int
	generationCalls int
	reviewCalls     int
}

func (p *routedProvider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	switch {
	case strings.Contains(req.System, "요구사항 분석"):
		p.analysisCalls++
		return &llm.Response{Text: p.analysisJSON, TokensUsed: 100}, nil
	case strings.Contains(req.System, "템플릿 생성"):
		p.generationCalls++
		return &llm.Response{Text: p.generationJSON, TokensUsed: 200}, nil
	default:
		p.reviewCalls++
		return &llm.Response{Text: p.reviewJSON, TokensUsed: 80}, nil
	}
}

func (p *routedProvider) Model() string { return "routed" }
func (p *routedProvider) Close() error  { return nil }

const approvingReviewJSON = `{
  "is_compliant": true,
  "compliance_score": 95,
  "violations": [],
  "recommendations": [],
  "approval_probability": "높음",
  "required_changes": []
}`

const neutralReviewJSON = `{"compliance_score": 80}`

func policyCorpus() []retrieval.Document {
	return []retrieval.Document{
		{
			ID: "policy_audit.md_0", DocType: "policy",
			Content: "알림톡 템플릿은 정보성 메시지만 허용되며 광고성 내용은 심사에서 반려됩니다.",
			Metadata: map[string]any{
				"source": "audit.md", "policy_type": "review_guidelines", "doc_type": "policy",
			},
		},
		{
			ID: "policy_content-guide.md_0", DocType: "policy",
			Content: "템플릿 변수는 #{변수명} 형태로 사용하고 정책 기준을 넘는 변수 수는 허용되지 않습니다.",
			Metadata: map[string]any{
				"source": "content-guide.md", "policy_type": "content_guidelines", "doc_type": "policy",
			},
		},
	}
}

// newPipeline assembles the engine over the real analyzer, generator, and
// checker, with sparse-only retrieval over an inline policy corpus and a
// shared result cache.
func newPipeline(t *testing.T, provider llm.Provider) (*Engine, *cache.Cache) {
	t.Helper()
	logger := slog.Default()

	prompts, err := llm.NewPromptBuilder()
	require.NoError(t, err)

	retriever, err := retrieval.NewRetriever(nil, policyCorpus(), nil, retrieval.Config{}, logger)
	require.NoError(t, err)

	c := cache.New(cache.Config{})
	eng := New(DefaultConfig(),
		analyzer.New(provider, prompts, c, logger),
		retrieval.NewContextBuilder(retriever, logger),
		generator.New(provider, prompts, nil, c, logger),
		compliance.NewChecker(compliance.NewReviewer(provider, prompts, logger), logger),
		nil, logger)
	return eng, c
}

func TestPipeline_CourseApplication(t *testing.T) {
	provider := &routedProvider{
		analysisJSON: `{
			"business_type": "교육",
			"service_type": "신청",
			"message_purpose": "수강 신청 완료 안내",
			"target_audience": "수강생",
			"tone": "정중한"
		}`,
		generationJSON: `{
			"template_text": "안녕하세요 #{수신자명}님, #{강의명} 수강 신청이 완료되었습니다.\n\n강의 일정: #{날짜}\n\n※ 이 메시지는 서비스를 신청하신 분들께 발송되는 정보성 안내입니다.",
			"variables": ["수신자명", "강의명", "날짜"],
			"button_suggestion": "강의실 입장"
		}`,
		reviewJSON: approvingReviewJSON,
	}
	eng, _ := newPipeline(t, provider)

	result := eng.Run(context.Background(), model.Request{
		UserRequest: "온라인 파이썬 강의 수강 신청 완료 안내",
	})

	require.True(t, result.Success)
	assert.Equal(t, model.BusinessEducation, result.Analysis.BusinessType)
	assert.Equal(t, model.ServiceApplication, result.Analysis.ServiceType)
	assert.Equal(t, 1, result.WorkflowInfo.Iterations)

	assert.Contains(t, result.Template.Text, "안녕하세요")
	assert.Contains(t, result.Template.Text, "#{수신자명}")
	assert.Contains(t, result.Template.Text, "정보성 안내")
	assert.True(t, result.Compliance.IsCompliant)
	assert.GreaterOrEqual(t, result.Compliance.ComplianceScore, 80.0)
	assert.Empty(t, result.WorkflowInfo.Errors)
}

func TestPipeline_MedicalReservationKeywordOverride(t *testing.T) {
	// The model misclassifies the request; the keyword rules must correct
	// it to 의료/예약 before generation.
	provider := &routedProvider{
		analysisJSON: `{
			"business_type": "기타",
			"service_type": "안내",
			"message_purpose": "예약 확정 안내",
			"tone": "정중한"
		}`,
		generationJSON: `{
			"template_text": "안녕하세요 #{수신자명}님, #{병원명} 진료 예약이 확정되었습니다.\n\n예약 일시: #{예약일시}\n\n※ 이 메시지는 예약을 하신 분들께 발송되는 정보성 안내입니다.",
			"variables": ["수신자명", "병원명", "예약일시"]
		}`,
		reviewJSON: approvingReviewJSON,
	}
	eng, _ := newPipeline(t, provider)

	result := eng.Run(context.Background(), model.Request{
		UserRequest: "치과 진료 예약 확정 및 내원 준비사항 안내",
	})

	require.True(t, result.Success)
	assert.Equal(t, model.BusinessMedical, result.Analysis.BusinessType)
	assert.Equal(t, model.ServiceReservation, result.Analysis.ServiceType)

	assert.Contains(t, result.Template.Variables, "수신자명")
	assert.Contains(t, result.Template.Variables, "예약일시")
	assert.True(t, result.Compliance.IsCompliant)
}

func TestPipeline_PromotionalTextRejected(t *testing.T) {
	provider := &routedProvider{reviewJSON: neutralReviewJSON}
	eng, _ := newPipeline(t, provider)

	verdict := eng.Validate(context.Background(),
		"50% 할인 이벤트 진행 중! 특가 상품을 확인하세요", "")
	require.NotNil(t, verdict)

	assert.False(t, verdict.IsCompliant)
	assert.Less(t, verdict.DetailedScores.BlacklistCheck, 100.0)
	assert.Contains(t, verdict.Violations, "광고성 키워드 발견: 할인, 특가, 이벤트")
	assert.Equal(t, model.ApprovalLow, verdict.ApprovalProbability)
	assert.NotEmpty(t, verdict.RequiredChanges)
}

func TestPipeline_IdenticalRequestsServedFromCache(t *testing.T) {
	provider := &routedProvider{
		analysisJSON: `{
			"business_type": "교육",
			"service_type": "신청",
			"message_purpose": "수강 신청 완료 안내",
			"tone": "정중한"
		}`,
		generationJSON: `{
			"template_text": "안녕하세요 #{수신자명}님, #{강의명} 수강 신청이 완료되었습니다.\n\n※ 이 메시지는 서비스를 신청하신 분들께 발송되는 정보성 안내입니다.",
			"variables": ["수신자명", "강의명"]
		}`,
		reviewJSON: approvingReviewJSON,
	}
	eng, c := newPipeline(t, provider)

	req := model.Request{UserRequest: "온라인 파이썬 강의 수강 신청 완료 안내"}
	first := eng.Run(context.Background(), req)
	second := eng.Run(context.Background(), req)

	require.True(t, first.Success)
	require.True(t, second.Success)
	assert.Equal(t, first.Template.Text, second.Template.Text)

	// Analysis and generation hit the cache on the second run; only the
	// compliance review goes back to the model.
	assert.Equal(t, 1, provider.analysisCalls)
	assert.Equal(t, 1, provider.generationCalls)
	assert.Equal(t, 2, provider.reviewCalls)
	assert.EqualValues(t, 2, c.Stats()["hits"])
}
