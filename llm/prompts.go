package llm

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Token budgets for prompt sections. Policy context dominates prompt size,
// so it is truncated to a fixed budget before injection.
const (
	PolicyContextTokenBudget = 400
	promptEncoding           = "cl100k_base"
)

// Example is an approved template shown to the model as a few-shot
// reference.
type Example struct {
	Text         string
	Category1    string
	Category2    string
	BusinessType string
}

// GenerationParams collects everything the generation prompt needs.
type GenerationParams struct {
	BusinessType    string
	ServiceType     string
	Purpose         string
	Audience        string
	Tone            string
	Variables       []string
	OriginalRequest string
	PolicyContext   string
	Examples        []Example

	// RefinementNotes carries compliance feedback when regenerating a
	// rejected template.
	RefinementNotes string
}

// PromptBuilder renders the prompts for the three model stages and
// enforces token budgets on injected context.
type PromptBuilder struct {
	enc *tiktoken.Tiktoken
}

// NewPromptBuilder creates a builder with the cl100k_base encoding.
func NewPromptBuilder() (*PromptBuilder, error) {
	enc, err := tiktoken.GetEncoding(promptEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s encoding: %w", promptEncoding, err)
	}
	return &PromptBuilder{enc: enc}, nil
}

// CountTokens reports the token length of text.
func (b *PromptBuilder) CountTokens(text string) int {
	return len(b.enc.Encode(text, nil, nil))
}

// TruncateTokens cuts text down to at most budget tokens.
func (b *PromptBuilder) TruncateTokens(text string, budget int) string {
	tokens := b.enc.Encode(text, nil, nil)
	if len(tokens) <= budget {
		return text
	}
	return b.enc.Decode(tokens[:budget])
}

const analysisSystemPrompt = `당신은 카카오 알림톡 템플릿 요구사항 분석 전문가입니다.
사용자의 요청을 분석하여 다음 정보를 JSON 형태로 추출해주세요:

{
  "business_type": "교육|의료|음식점|쇼핑몰|서비스업|금융|기타",
  "service_type": "신청|예약|주문|배송|안내|확인|피드백",
  "message_purpose": "메시지 목적",
  "target_audience": "대상 고객층",
  "required_variables": ["#{변수명} 형태의 필요 변수"],
  "tone": "정중한|친근한|공식적인",
  "urgency": "높음|보통|낮음",
  "estimated_category": "예상 카테고리"
}

응답은 반드시 유효한 JSON 형태로만 제공해주세요.`

// AnalysisPrompt builds the request-analysis call.
func (b *PromptBuilder) AnalysisPrompt(userRequest string) Request {
	return Request{
		System: analysisSystemPrompt,
		User:   "다음 사용자 요청을 분석해주세요:\n\n" + userRequest,
	}
}

// GenerationPrompt builds the template-generation call. The policy context
// is truncated to PolicyContextTokenBudget tokens and at most three
// examples are included.
func (b *PromptBuilder) GenerationPrompt(p GenerationParams) Request {
	var sys strings.Builder
	sys.WriteString("당신은 카카오 알림톡 템플릿 생성 전문가입니다.\n")
	sys.WriteString("주어진 정보를 바탕으로 카카오 정책에 완벽히 부합하는 알림톡 템플릿을 생성해주세요.\n\n")
	sys.WriteString("**정책 컨텍스트:**\n")
	sys.WriteString(b.TruncateTokens(p.PolicyContext, PolicyContextTokenBudget))
	sys.WriteString("\n\n**참고할 승인된 템플릿들:**\n")
	sys.WriteString(formatExamples(p.Examples))
	sys.WriteString(`

**생성 규칙:**
1. 반드시 정보성 메시지여야 함
2. 광고성 내용 금지
3. 변수는 #{변수명} 형태로 사용
4. 메시지는 1000자 이내
5. 정중한 톤 유지
6. 필수 정보만 포함
7. 버튼 사용 시 명확한 설명 포함

응답 형태:
{
  "template_text": "생성된 템플릿 내용",
  "variables": ["변수1", "변수2"],
  "button_suggestion": "제안 버튼명 (선택사항)"
}`)

	var user strings.Builder
	user.WriteString("다음 요구사항에 맞는 알림톡 템플릿을 생성해주세요:\n\n")
	user.WriteString("**요구사항:**\n")
	fmt.Fprintf(&user, "- 비즈니스 유형: %s\n", p.BusinessType)
	fmt.Fprintf(&user, "- 서비스 유형: %s\n", p.ServiceType)
	fmt.Fprintf(&user, "- 메시지 목적: %s\n", p.Purpose)
	fmt.Fprintf(&user, "- 대상 고객: %s\n", p.Audience)
	fmt.Fprintf(&user, "- 필요 변수: %s\n", strings.Join(p.Variables, ", "))
	fmt.Fprintf(&user, "- 톤앤매너: %s\n", p.Tone)
	if p.OriginalRequest != "" {
		fmt.Fprintf(&user, "\n사용자 원본 요청: %s\n", p.OriginalRequest)
	}
	if p.RefinementNotes != "" {
		fmt.Fprintf(&user, "\n**이전 검수에서 지적된 사항 (반드시 반영):**\n%s\n", p.RefinementNotes)
	}

	return Request{System: sys.String(), User: user.String()}
}

// ReviewPrompt builds the compliance-review call.
func (b *PromptBuilder) ReviewPrompt(templateText, policyContext string) Request {
	var sys strings.Builder
	sys.WriteString("당신은 카카오 알림톡 정책 준수 검증 전문가입니다.\n")
	sys.WriteString("주어진 템플릿이 카카오 정책을 준수하는지 철저히 검증해주세요.\n\n")
	sys.WriteString("**정책 기준:**\n")
	sys.WriteString(b.TruncateTokens(policyContext, PolicyContextTokenBudget))
	sys.WriteString(`

검증 항목:
1. 정보성 메시지 여부
2. 광고성 내용 포함 여부
3. 블랙리스트 위반 여부
4. 변수 사용 규칙 준수
5. 메시지 길이 적절성
6. 필수 안내사항 포함 여부

응답 형태:
{
  "is_compliant": true/false,
  "compliance_score": 0-100,
  "violations": ["위반사항1", "위반사항2"],
  "recommendations": ["개선사항1", "개선사항2"],
  "approval_probability": "높음/보통/낮음",
  "required_changes": ["필수 수정사항1", "필수 수정사항2"]
}`)

	return Request{
		System: sys.String(),
		User:   "다음 템플릿을 검증해주세요:\n\n" + templateText,
	}
}

// formatExamples renders up to three few-shot examples for the generation
// prompt.
func formatExamples(examples []Example) string {
	if len(examples) == 0 {
		return "참고할 템플릿이 없습니다."
	}
	if len(examples) > 3 {
		examples = examples[:3]
	}

	var sb strings.Builder
	for i, ex := range examples {
		fmt.Fprintf(&sb, "\n템플릿 %d:\n내용: %s\n카테고리: %s > %s\n비즈니스 유형: %s\n",
			i+1, ex.Text, ex.Category1, ex.Category2, ex.BusinessType)
	}
	return sb.String()
}
