// Package generator produces policy-compliant AlimTalk templates from an
// analyzed request and retrieved policy context, with deterministic
// post-processing and a fallback template when the model cannot deliver.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/space-cap/alimgen/cache"
	"github.com/space-cap/alimgen/ingest"
	"github.com/space-cap/alimgen/llm"
	"github.com/space-cap/alimgen/model"
)

// exampleCount is how many approved templates the prompt references.
const exampleCount = 3

// truncationSlack keeps headroom below the length cap when cutting by
// sentence, so the closing notice still fits.
const truncationSlack = 50

var (
	dollarVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)
	// bareVarPattern matches {name} not already prefixed with # or $.
	// RE2 has no lookbehind, so the preceding character is captured and
	// restored in the replacement.
	bareVarPattern = regexp.MustCompile(`([^#$]|^)\{([^}]+)\}`)
)

var greetings = []string{"안녕하세요", "안녕하십니까", "반갑습니다"}

var infoNoticePatterns = []string{
	"정보성 메시지", "안내 메시지", "발송되는 메시지",
	"요청하신 분들께", "신청하신 분들께",
}

var infoNotices = map[model.ServiceType]string{
	model.ServiceApplication:  "※ 이 메시지는 서비스를 신청하신 분들께 발송되는 정보성 안내입니다.",
	model.ServiceReservation:  "※ 이 메시지는 예약을 하신 분들께 발송되는 정보성 안내입니다.",
	model.ServiceOrder:        "※ 이 메시지는 주문을 하신 분들께 발송되는 정보성 안내입니다.",
	model.ServiceNotification: "※ 이 메시지는 서비스 이용 관련 정보성 안내입니다.",
}

// llmTemplate is the JSON shape the model is asked to produce.
type llmTemplate struct {
	TemplateText     string   `json:"template_text"`
	Variables        []string `json:"variables"`
	ButtonSuggestion string   `json:"button_suggestion"`
}

// Generator creates templates.
type Generator struct {
	provider llm.Provider
	prompts  *llm.PromptBuilder
	store    *ingest.TemplateStore
	cache    *cache.Cache
	logger   *slog.Logger
}

// New creates a Generator. The cache may be nil to disable caching.
func New(provider llm.Provider, prompts *llm.PromptBuilder, store *ingest.TemplateStore, c *cache.Cache, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{provider: provider, prompts: prompts, store: store, cache: c, logger: logger}
}

// Generate produces a template for the analysis using the policy context.
// Model or parse failure degrades to the fallback template, with the
// absorbed error returned alongside so callers can record it; Generate
// never returns a nil template.
func (g *Generator) Generate(ctx context.Context, analysis *model.Analysis, policyContext string) (*model.Template, error) {
	g.logger.Info("Generating template",
		"business_type", analysis.BusinessType,
		"service_type", analysis.ServiceType)

	cacheKey := cache.Key(cache.NamespaceGeneration, map[string]any{
		"analysis": analysis,
		"policy":   policyContext,
	})
	if g.cache != nil {
		if cached, ok := g.cache.Get(cacheKey); ok {
			if tmpl, ok := cached.(*model.Template); ok {
				g.logger.Debug("Template served from cache")
				copied := *tmpl
				return &copied, nil
			}
		}
	}

	examples := g.findExamples(analysis)
	raw, err := g.llmGenerate(ctx, analysis, policyContext, examples)
	if err != nil {
		g.logger.Error("Template generation failed, using fallback", "error", err)
		return g.Fallback(analysis), err
	}
	if strings.TrimSpace(raw.TemplateText) == "" {
		g.logger.Warn("Model returned an empty template, using fallback")
		return g.Fallback(analysis), fmt.Errorf("generation response: empty template text")
	}

	tmpl := g.postProcess(raw, analysis)

	if g.cache != nil {
		copied := *tmpl
		g.cache.Set(cacheKey, &copied)
	}

	g.logger.Info("Template generation completed",
		"length", len([]rune(tmpl.Text)),
		"variables", len(tmpl.Variables))
	return tmpl, nil
}

// findExamples picks few-shot examples with escalating breadth: exact
// business+service match, then business type, then estimated category,
// then any approved template.
func (g *Generator) findExamples(analysis *model.Analysis) []llm.Example {
	if g.store == nil {
		return nil
	}

	matches := g.store.FindSimilar(analysis.BusinessType, analysis.ServiceType, exampleCount)
	if len(matches) < 2 {
		if byBusiness := g.store.ByBusinessType(analysis.BusinessType); len(byBusiness) >= 2 {
			matches = byBusiness
		} else if byCategory := g.store.ByCategory(
			analysis.EstimatedCategory.Category1, analysis.EstimatedCategory.Category2); len(byCategory) > 0 {
			matches = byCategory
		} else {
			matches = g.store.Approved()
		}
	}
	if len(matches) > exampleCount {
		matches = matches[:exampleCount]
	}

	examples := make([]llm.Example, 0, len(matches))
	for _, m := range matches {
		examples = append(examples, llm.Example{
			Text:         m.Text,
			Category1:    m.Metadata.Category1,
			Category2:    m.Metadata.Category2,
			BusinessType: string(m.Metadata.BusinessType),
		})
	}
	return examples
}

func (g *Generator) llmGenerate(ctx context.Context, analysis *model.Analysis, policyContext string, examples []llm.Example) (*llmTemplate, error) {
	params := llm.GenerationParams{
		BusinessType:    string(analysis.BusinessType),
		ServiceType:     string(analysis.ServiceType),
		Purpose:         analysis.MessagePurpose,
		Audience:        analysis.TargetAudience,
		Tone:            string(analysis.Tone),
		Variables:       analysis.RequiredVariables,
		OriginalRequest: analysis.OriginalRequest,
		PolicyContext:   policyContext,
		Examples:        examples,
	}
	if fb := analysis.ComplianceFeedback; fb != nil {
		params.RefinementNotes = formatFeedback(fb)
	}

	resp, err := g.provider.Complete(ctx, g.prompts.GenerationPrompt(params))
	if err != nil {
		return nil, err
	}

	var parsed llmTemplate
	if err := llm.DecodeJSON(resp.Text, &parsed); err != nil {
		return nil, fmt.Errorf("generation response: %w", err)
	}
	return &parsed, nil
}

// postProcess normalizes the model output: variable syntax, length cap,
// greeting, and the mandatory informational notice. The cap applies to the
// final text, so an appended greeting or notice counts against the draft's
// budget and forces a re-truncation.
func (g *Generator) postProcess(raw *llmTemplate, analysis *model.Analysis) *model.Template {
	text := FixVariableFormat(raw.TemplateText)

	if len([]rune(text)) > model.MaxTemplateLength {
		text = TruncateBySentence(text, model.MaxTemplateLength)
	}

	greeting, notice := missingParts(text, analysis)
	if overhead := len([]rune(greeting + notice)); overhead > 0 &&
		len([]rune(text))+overhead > model.MaxTemplateLength {
		text = TruncateBySentence(text, model.MaxTemplateLength-overhead)
		// Truncation can cut a greeting or notice the draft already had.
		greeting, notice = missingParts(text, analysis)
	}
	text = greeting + text + notice

	return &model.Template{
		Text:             text,
		Variables:        model.ExtractVariables(text),
		ButtonSuggestion: raw.ButtonSuggestion,
		Metadata:         buildMetadata(text, analysis, model.GenerationAI),
	}
}

// Fallback returns the safe default template for an analysis.
func (g *Generator) Fallback(analysis *model.Analysis) *model.Template {
	text := fmt.Sprintf(`안녕하세요 #{수신자명}님,

요청하신 %s 관련 안내드립니다.

자세한 내용은 아래 버튼을 통해 확인하실 수 있습니다.

※ 이 메시지는 서비스 이용 관련 정보성 안내입니다.`, analysis.ServiceType)

	return &model.Template{
		Text:             text,
		Variables:        []string{"수신자명"},
		ButtonSuggestion: "자세히 보기",
		Metadata:         buildMetadata(text, analysis, model.GenerationFallback),
	}
}

func buildMetadata(text string, analysis *model.Analysis, method string) model.TemplateMetadata {
	return model.TemplateMetadata{
		Category1:        analysis.EstimatedCategory.Category1,
		Category2:        analysis.EstimatedCategory.Category2,
		BusinessType:     analysis.BusinessType,
		ServiceType:      analysis.ServiceType,
		EstimatedLength:  len([]rune(text)),
		VariableCount:    len(model.ExtractVariables(text)),
		TargetAudience:   analysis.TargetAudience,
		Tone:             analysis.Tone,
		GenerationMethod: method,
	}
}

// FixVariableFormat rewrites ${name} and bare {name} placeholders into the
// platform's #{name} syntax.
func FixVariableFormat(text string) string {
	text = dollarVarPattern.ReplaceAllString(text, "#{$1}")
	text = bareVarPattern.ReplaceAllString(text, "$1#{$2}")
	return text
}

// TruncateBySentence cuts text to fit maxLength runes, keeping whole
// sentences and truncationSlack runes of headroom.
func TruncateBySentence(text string, maxLength int) string {
	if len([]rune(text)) <= maxLength {
		return text
	}

	budget := maxLength - truncationSlack
	var out strings.Builder
	for _, sentence := range strings.Split(text, ".") {
		if sentence == "" {
			continue
		}
		candidate := sentence + "."
		if len([]rune(out.String()))+len([]rune(candidate)) > budget {
			break
		}
		out.WriteString(candidate)
	}

	result := strings.TrimSpace(out.String())
	if result == "" {
		// No sentence boundary inside the budget: hard cut.
		runes := []rune(text)
		result = strings.TrimSpace(string(runes[:budget])) + "."
	}
	if !strings.HasSuffix(result, ".") {
		result += "."
	}
	return result
}

// missingParts returns the greeting prefix and notice suffix the text
// still needs, empty when already present.
func missingParts(text string, analysis *model.Analysis) (greeting, notice string) {
	if !hasGreeting(text) {
		greeting = greetingFor(analysis.Tone) + " "
	}
	if !hasInfoNotice(text) {
		notice = "\n\n" + infoNoticeFor(analysis.ServiceType)
	}
	return greeting, notice
}

func hasGreeting(text string) bool {
	for _, g := range greetings {
		if strings.Contains(text, g) {
			return true
		}
	}
	return false
}

func greetingFor(tone model.Tone) string {
	if tone == model.ToneOfficial {
		return "안녕하십니까"
	}
	return "안녕하세요"
}

func hasInfoNotice(text string) bool {
	for _, pattern := range infoNoticePatterns {
		if strings.Contains(text, pattern) {
			return true
		}
	}
	return false
}

func infoNoticeFor(st model.ServiceType) string {
	if notice, ok := infoNotices[st]; ok {
		return notice
	}
	return infoNotices[model.ServiceNotification]
}

func formatFeedback(fb *model.ComplianceFeedback) string {
	var lines []string
	for _, v := range fb.Violations {
		lines = append(lines, "- 위반: "+v)
	}
	for _, c := range fb.RequiredChanges {
		lines = append(lines, "- 필수 수정: "+c)
	}
	for _, r := range fb.Recommendations {
		lines = append(lines, "- 개선: "+r)
	}
	return strings.Join(lines, "\n")
}
