// Package analyzer turns a free-form user request into a structured
// Analysis: business/service classification, tone, urgency, required
// variables, category estimate, and compliance concerns.
//
// The model's answer is a starting point; deterministic keyword rules
// correct the classification, and explicit request hints override both.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/space-cap/alimgen/cache"
	"github.com/space-cap/alimgen/llm"
	"github.com/space-cap/alimgen/model"
)

// keywordRule pairs a classification value with its trigger keywords.
// Rules are ordered; the first match wins.
type keywordRule[T ~string] struct {
	value    T
	keywords []string
}

var businessRules = []keywordRule[model.BusinessType]{
	{model.BusinessEducation, []string{"강의", "수강", "교육", "학습", "코스", "강좌", "교실", "학원"}},
	{model.BusinessMedical, []string{"병원", "진료", "예약", "치료", "의료", "건강", "상담"}},
	{model.BusinessRestaurant, []string{"주문", "배달", "음식", "식당", "메뉴", "예약"}},
	{model.BusinessEcommerce, []string{"구매", "주문", "배송", "상품", "결제", "쇼핑"}},
	{model.BusinessService, []string{"예약", "상담", "서비스", "이용", "문의"}},
	{model.BusinessFinance, []string{"결제", "송금", "계좌", "카드", "대출", "보험"}},
}

var serviceRules = []keywordRule[model.ServiceType]{
	{model.ServiceApplication, []string{"신청", "등록", "가입", "접수"}},
	{model.ServiceReservation, []string{"예약", "예정", "일정"}},
	{model.ServiceOrder, []string{"주문", "구매", "결제"}},
	{model.ServiceDelivery, []string{"배송", "발송", "택배", "출고"}},
	{model.ServiceNotification, []string{"안내", "공지", "알림", "정보"}},
	{model.ServiceConfirmation, []string{"확인", "승인", "완료"}},
	{model.ServiceFeedback, []string{"후기", "평가", "리뷰", "만족도"}},
}

// variableRules maps a variable name to the keywords implying it.
var variableRules = []keywordRule[string]{
	{"날짜", []string{"일정", "날짜", "시간", "예약"}},
	{"금액", []string{"금액", "가격", "비용", "요금"}},
	{"상품명", []string{"상품", "제품", "서비스명"}},
	{"주소", []string{"주소", "위치", "장소"}},
	{"연락처", []string{"전화", "연락처", "번호"}},
	{"코드", []string{"코드", "번호", "인증"}},
}

var urgencyRules = []keywordRule[model.Urgency]{
	{model.UrgencyHigh, []string{"긴급", "즉시", "빠른", "urgent"}},
	{model.UrgencyLow, []string{"일반", "정기", "안내"}},
}

// baseVariable is always required.
const baseVariable = "수신자명"

// categoryMapping maps (business, service) pairs onto the platform's
// two-level category taxonomy.
var categoryMapping = map[[2]string]model.Category{
	{"교육", "신청"}:  {Category1: "서비스이용", Category2: "이용안내/공지"},
	{"교육", "안내"}:  {Category1: "서비스이용", Category2: "이용안내/공지"},
	{"쇼핑몰", "주문"}: {Category1: "거래", Category2: "주문/결제"},
	{"쇼핑몰", "배송"}: {Category1: "거래", Category2: "배송"},
	{"의료", "예약"}:  {Category1: "서비스이용", Category2: "예약/신청"},
	{"서비스업", "예약"}: {Category1: "서비스이용", Category2: "예약/신청"},
}

var defaultCategory = model.Category{Category1: "서비스이용", Category2: "이용안내/공지"}

var (
	adKeywords         = []string{"할인", "이벤트", "프로모션", "혜택", "특가"}
	prohibitedKeywords = []string{"무료", "쿠폰", "포인트", "적립"}
)

// llmAnalysis is the JSON shape the model is asked to produce. Required
// variables are derived from keyword rules and request hints, not from the
// model, so that key is not decoded.
type llmAnalysis struct {
	BusinessType      string `json:"business_type"`
	ServiceType       string `json:"service_type"`
	MessagePurpose    string `json:"message_purpose"`
	TargetAudience    string `json:"target_audience"`
	Tone              string `json:"tone"`
	Urgency           string `json:"urgency"`
	EstimatedCategory string `json:"estimated_category"`
}

// Analyzer classifies user requests.
type Analyzer struct {
	provider llm.Provider
	prompts  *llm.PromptBuilder
	cache    *cache.Cache
	logger   *slog.Logger
}

// New creates an Analyzer. The cache may be nil to disable caching.
func New(provider llm.Provider, prompts *llm.PromptBuilder, c *cache.Cache, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{provider: provider, prompts: prompts, cache: c, logger: logger}
}

// Analyze interprets the request. Upstream or parse failures degrade to a
// conservative default analysis, with the absorbed error returned alongside
// so callers can record it; the analysis is never nil.
func (a *Analyzer) Analyze(ctx context.Context, req model.Request) (*model.Analysis, error) {
	a.logger.Info("Analyzing user request", "request", truncate(req.UserRequest, 100))

	cacheKey := cache.Key(cache.NamespaceAnalysis, req)
	if a.cache != nil {
		if cached, ok := a.cache.Get(cacheKey); ok {
			if analysis, ok := cached.(*model.Analysis); ok {
				a.logger.Debug("Analysis served from cache")
				copied := *analysis
				return &copied, nil
			}
		}
	}

	base, err := a.llmAnalyze(ctx, req.UserRequest)
	if err != nil {
		a.logger.Error("LLM analysis failed, using default analysis", "error", err)
		return a.defaultAnalysis(req), err
	}

	analysis := a.enhance(base, req)

	if a.cache != nil {
		copied := *analysis
		a.cache.Set(cacheKey, &copied)
	}

	a.logger.Info("Request analysis completed",
		"business_type", analysis.BusinessType,
		"service_type", analysis.ServiceType,
		"urgency", analysis.Urgency)
	return analysis, nil
}

func (a *Analyzer) llmAnalyze(ctx context.Context, userRequest string) (*llmAnalysis, error) {
	resp, err := a.provider.Complete(ctx, a.prompts.AnalysisPrompt(userRequest))
	if err != nil {
		return nil, err
	}

	var parsed llmAnalysis
	if err := llm.DecodeJSON(resp.Text, &parsed); err != nil {
		return nil, fmt.Errorf("analysis response: %w", err)
	}
	return &parsed, nil
}

// enhance corrects the model's classification with keyword rules, applies
// request hints, and derives category and compliance concerns.
func (a *Analyzer) enhance(base *llmAnalysis, req model.Request) *model.Analysis {
	text := req.UserRequest

	businessType, _ := model.ParseBusinessType(base.BusinessType)
	serviceType, _ := model.ParseServiceType(base.ServiceType)

	// Keyword rules outrank the model's guess.
	if bt, ok := classify(text, businessRules); ok {
		businessType = bt
	}
	if st, ok := classify(text, serviceRules); ok {
		serviceType = st
	}

	// Explicit request hints outrank everything.
	if req.BusinessType != "" {
		if bt, ok := model.ParseBusinessType(req.BusinessType); ok {
			businessType = bt
		}
	}
	if req.ServiceType != "" {
		if st, ok := model.ParseServiceType(req.ServiceType); ok {
			serviceType = st
		}
	}

	tone := model.ToneFormal
	switch model.Tone(base.Tone) {
	case model.ToneFriendly, model.ToneOfficial, model.ToneFormal:
		tone = model.Tone(base.Tone)
	}
	if req.Tone != "" {
		switch model.Tone(req.Tone) {
		case model.ToneFriendly, model.ToneOfficial, model.ToneFormal:
			tone = model.Tone(req.Tone)
		}
	}

	purpose := base.MessagePurpose
	if purpose == "" {
		purpose = "일반 안내"
	}
	audience := base.TargetAudience
	if req.TargetAudience != "" {
		audience = req.TargetAudience
	}
	if audience == "" {
		audience = "고객"
	}

	return &model.Analysis{
		OriginalRequest:    text,
		BusinessType:       businessType,
		ServiceType:        serviceType,
		MessagePurpose:     purpose,
		TargetAudience:     audience,
		Tone:               tone,
		Urgency:            detectUrgency(text),
		RequiredVariables:  extractVariables(text, req.RequiredVariables),
		EstimatedCategory:  estimateCategory(businessType, serviceType),
		ComplianceConcerns: identifyConcerns(text),
	}
}

// defaultAnalysis is the conservative fallback when the model cannot be
// consulted. Keyword rules still run so the result reflects the request.
func (a *Analyzer) defaultAnalysis(req model.Request) *model.Analysis {
	businessType := model.BusinessOther
	serviceType := model.ServiceNotification
	if bt, ok := classify(req.UserRequest, businessRules); ok {
		businessType = bt
	}
	if st, ok := classify(req.UserRequest, serviceRules); ok {
		serviceType = st
	}

	return &model.Analysis{
		OriginalRequest:    req.UserRequest,
		BusinessType:       businessType,
		ServiceType:        serviceType,
		MessagePurpose:     "일반 안내",
		TargetAudience:     "고객",
		Tone:               model.ToneFormal,
		Urgency:            model.UrgencyMedium,
		RequiredVariables:  extractVariables(req.UserRequest, req.RequiredVariables),
		EstimatedCategory:  estimateCategory(businessType, serviceType),
		ComplianceConcerns: []string{"분석 실패로 인한 수동 검토 필요"},
	}
}

func classify[T ~string](text string, rules []keywordRule[T]) (T, bool) {
	for _, rule := range rules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.value, true
			}
		}
	}
	var zero T
	return zero, false
}

// extractVariables collects required variables: the base recipient name,
// keyword-implied variables in rule order, then explicit extras.
func extractVariables(text string, extra []string) []string {
	vars := []string{baseVariable}
	seen := map[string]bool{baseVariable: true}

	for _, rule := range variableRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) && !seen[rule.value] {
				vars = append(vars, rule.value)
				seen[rule.value] = true
				break
			}
		}
	}

	for _, v := range extra {
		v = strings.TrimSpace(v)
		if v != "" && !seen[v] {
			vars = append(vars, v)
			seen[v] = true
		}
	}
	return vars
}

func detectUrgency(text string) model.Urgency {
	if u, ok := classify(text, urgencyRules); ok {
		return u
	}
	return model.UrgencyMedium
}

func estimateCategory(bt model.BusinessType, st model.ServiceType) model.Category {
	if cat, ok := categoryMapping[[2]string{string(bt), string(st)}]; ok {
		return cat
	}
	return defaultCategory
}

func identifyConcerns(text string) []string {
	var concerns []string
	if containsAny(text, adKeywords) {
		concerns = append(concerns, "광고성 내용 포함 가능성")
	}
	if containsAny(text, prohibitedKeywords) {
		concerns = append(concerns, "금지 키워드 포함")
	}
	return concerns
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// Summary renders an analysis for logs and API responses.
func Summary(a *model.Analysis) string {
	concerns := "없음"
	if len(a.ComplianceConcerns) > 0 {
		concerns = strings.Join(a.ComplianceConcerns, ", ")
	}

	return fmt.Sprintf(`## 요청 분석 결과

**비즈니스 정보:**
- 업종: %s
- 서비스 유형: %s
- 메시지 목적: %s

**메시지 설정:**
- 대상: %s
- 톤앤매너: %s
- 긴급도: %s

**필요 변수:** %s

**예상 카테고리:** %s > %s

**주의사항:** %s
`,
		a.BusinessType, a.ServiceType, a.MessagePurpose,
		a.TargetAudience, a.Tone, a.Urgency,
		strings.Join(a.RequiredVariables, ", "),
		a.EstimatedCategory.Category1, a.EstimatedCategory.Category2,
		concerns)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) > n {
		runes = runes[:n]
	}
	return string(runes)
}
