// Package workflow orchestrates the template generation pipeline: request
// analysis, policy retrieval, generation, and compliance checking, with a
// bounded refinement loop feeding verdict findings back into regeneration.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/space-cap/alimgen/compliance"
	"github.com/space-cap/alimgen/metrics"
	"github.com/space-cap/alimgen/model"
	"github.com/space-cap/alimgen/retrieval"
)

// Stage names, used for timings and metrics labels.
const (
	StageRequestAnalysis    = "request_analysis"
	StagePolicyRetrieval    = "policy_retrieval"
	StageTemplateGeneration = "template_generation"
	StageComplianceCheck    = "compliance_check"
)

// Config bounds the refinement loop.
type Config struct {
	// MaxIterations caps generate/check rounds per request.
	MaxIterations int
	// MinComplianceScore is the score below which a template is refined.
	MinComplianceScore float64
	// AutoRefinement enables the refinement loop at all.
	AutoRefinement bool
	// StrictCompliance also refines when required changes remain, even if
	// the score passes.
	StrictCompliance bool
}

// DefaultConfig returns the standard workflow configuration.
func DefaultConfig() Config {
	return Config{
		MaxIterations:      3,
		MinComplianceScore: 80,
		AutoRefinement:     true,
		StrictCompliance:   true,
	}
}

// SetDefaults fills unset numeric fields.
func (c *Config) SetDefaults() {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 3
	}
	if c.MinComplianceScore <= 0 {
		c.MinComplianceScore = 80
	}
}

// Analyzer interprets the user request. A failure degrades to a usable
// default analysis; the absorbed error is returned alongside.
type Analyzer interface {
	Analyze(ctx context.Context, req model.Request) (*model.Analysis, error)
}

// PolicyProvider assembles policy context for a query.
type PolicyProvider interface {
	Build(ctx context.Context, query string, ctype retrieval.ContextType) *retrieval.PolicyContext
}

// Generator produces templates from an analysis and policy context. A
// failure degrades to the fallback template; the absorbed error is returned
// alongside.
type Generator interface {
	Generate(ctx context.Context, analysis *model.Analysis, policyContext string) (*model.Template, error)
	Fallback(analysis *model.Analysis) *model.Template
}

// Checker judges a template against policy. A failed LLM review degrades
// to a neutral score; the absorbed error is returned alongside.
type Checker interface {
	Check(ctx context.Context, tmpl *model.Template, policyContext string) (*model.Verdict, error)
}

// Engine runs the pipeline.
type Engine struct {
	cfg       Config
	analyzer  Analyzer
	policies  PolicyProvider
	generator Generator
	checker   Checker
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates an Engine. Metrics may be nil.
func New(cfg Config, analyzer Analyzer, policies PolicyProvider, generator Generator, checker Checker, m *metrics.Metrics, logger *slog.Logger) *Engine {
	cfg.SetDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:       cfg,
		analyzer:  analyzer,
		policies:  policies,
		generator: generator,
		checker:   checker,
		metrics:   m,
		logger:    logger,
	}
}

// Run executes the full pipeline for one request. It always returns a
// usable Result: component failures degrade to fallbacks and are recorded
// in WorkflowInfo.Errors.
func (e *Engine) Run(ctx context.Context, req model.Request) *model.Result {
	start := time.Now()
	logger := e.logger.With("request_id", uuid.NewString())

	if strings.TrimSpace(req.UserRequest) == "" {
		return ErrorResult("사용자 요청이 비어 있습니다")
	}
	logger.Info("Starting workflow", "request", truncate(req.UserRequest, 100))

	var info model.WorkflowInfo
	stage := func(name string, fn func()) {
		t := time.Now()
		fn()
		d := time.Since(t)
		info.Stages = append(info.Stages, model.StageTiming{
			Stage:      name,
			DurationMs: d.Milliseconds(),
		})
		e.metrics.ObserveStage(name, d.Seconds())
	}

	var analysis *model.Analysis
	stage(StageRequestAnalysis, func() {
		var err error
		analysis, err = e.analyzer.Analyze(ctx, req)
		if err != nil {
			info.Errors = append(info.Errors, stageError(StageRequestAnalysis, err))
		}
	})

	var policy *retrieval.PolicyContext
	stage(StagePolicyRetrieval, func() {
		query := fmt.Sprintf("%s %s 알림톡 템플릿 정책",
			analysis.BusinessType, analysis.ServiceType)
		policy = e.policies.Build(ctx, query, retrieval.ContextTemplateGeneration)
	})

	var tmpl *model.Template
	var verdict *model.Verdict
	for iter := 1; iter <= e.cfg.MaxIterations; iter++ {
		info.Iterations = iter

		if err := ctx.Err(); err != nil {
			info.Errors = append(info.Errors, err.Error())
			break
		}

		stage(StageTemplateGeneration, func() {
			var err error
			tmpl, err = e.generator.Generate(ctx, analysis, policy.Context)
			if err != nil {
				info.Errors = append(info.Errors, stageError(StageTemplateGeneration, err))
			}
		})
		stage(StageComplianceCheck, func() {
			var err error
			verdict, err = e.checker.Check(ctx, tmpl, policy.Context)
			if err != nil {
				info.Errors = append(info.Errors, stageError(StageComplianceCheck, err))
			}
		})

		if !e.needsRefinement(verdict, iter) {
			break
		}
		if iter < e.cfg.MaxIterations {
			logger.Info("Refining template based on compliance feedback",
				"iteration", iter,
				"score", verdict.ComplianceScore,
				"violations", len(verdict.Violations))
			analysis.ComplianceFeedback = &model.ComplianceFeedback{
				Violations:      verdict.Violations,
				Recommendations: verdict.Recommendations,
				RequiredChanges: verdict.RequiredChanges,
			}
		}
	}

	// The loop can exit without output when the context dies early.
	if tmpl == nil {
		tmpl = e.generator.Fallback(analysis)
	}
	if verdict == nil {
		verdict = compliance.FailedVerdict("검증이 완료되지 않았습니다.")
	}

	info.PolicySources = policy.Sources
	info.ProcessingSeconds = time.Since(start).Seconds()

	result := &model.Result{
		Success:      len(info.Errors) == 0,
		Template:     *tmpl,
		Compliance:   *verdict,
		Analysis:     summarize(analysis),
		WorkflowInfo: info,
	}

	e.metrics.ObserveRequest(result.Success, info.Iterations)
	logger.Info("Workflow completed",
		"success", result.Success,
		"iterations", info.Iterations,
		"score", verdict.ComplianceScore,
		"duration", time.Since(start))
	return result
}

// Validate checks an existing template against current policy without
// generating anything.
func (e *Engine) Validate(ctx context.Context, templateText, buttonSuggestion string) *model.Verdict {
	policy := e.policies.Build(ctx, "알림톡 템플릿 심사 기준", retrieval.ContextComplianceCheck)
	tmpl := &model.Template{
		Text:             templateText,
		Variables:        model.ExtractVariables(templateText),
		ButtonSuggestion: buttonSuggestion,
	}
	verdict, err := e.checker.Check(ctx, tmpl, policy.Context)
	if err != nil {
		e.logger.Warn("Compliance check degraded during validation", "error", err)
	}
	return verdict
}

// needsRefinement decides whether another generation round is worthwhile.
func (e *Engine) needsRefinement(verdict *model.Verdict, iteration int) bool {
	if !e.cfg.AutoRefinement {
		return false
	}
	if iteration >= e.cfg.MaxIterations {
		return false
	}
	if verdict.ComplianceScore < e.cfg.MinComplianceScore {
		return true
	}
	if e.cfg.StrictCompliance && len(verdict.RequiredChanges) > 0 {
		return true
	}
	return false
}

// stageError renders an absorbed stage failure for WorkflowInfo.Errors:
// the stage name is the stable code, the error text the human-readable
// part.
func stageError(stage string, err error) string {
	return stage + ": " + err.Error()
}

func summarize(a *model.Analysis) model.AnalysisSummary {
	return model.AnalysisSummary{
		BusinessType:       a.BusinessType,
		ServiceType:        a.ServiceType,
		MessagePurpose:     a.MessagePurpose,
		EstimatedCategory:  a.EstimatedCategory,
		ComplianceConcerns: a.ComplianceConcerns,
	}
}

// ErrorResult is the response shape when the pipeline cannot run at all.
func ErrorResult(msg string) *model.Result {
	return &model.Result{
		Success: false,
		Template: model.Template{
			Variables: []string{},
			Metadata: model.TemplateMetadata{
				Category1:        "서비스이용",
				Category2:        "이용안내/공지",
				BusinessType:     model.BusinessOther,
				ServiceType:      model.ServiceNotification,
				TargetAudience:   "일반",
				Tone:             model.ToneFormal,
				GenerationMethod: model.GenerationError,
			},
		},
		Compliance: model.Verdict{
			IsCompliant:         false,
			Violations:          []string{msg},
			Recommendations:     []string{"시스템 오류로 인한 수동 검토 필요"},
			ApprovalProbability: model.ApprovalLow,
		},
		Analysis: model.AnalysisSummary{
			BusinessType:       model.BusinessOther,
			ServiceType:        model.ServiceNotification,
			MessagePurpose:     "시스템 오류",
			ComplianceConcerns: []string{msg},
		},
		WorkflowInfo: model.WorkflowInfo{Errors: []string{msg}},
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) > n {
		runes = runes[:n]
	}
	return string(runes)
}
