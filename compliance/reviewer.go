package compliance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/space-cap/alimgen/llm"
)

// defaultLLMScore is assumed when the review call fails: the deterministic
// checks still carry 90% of the verdict weight.
const defaultLLMScore = 80

// Review is the model's assessment of a template.
type Review struct {
	IsCompliant         bool     `json:"is_compliant"`
	ComplianceScore     float64  `json:"compliance_score"`
	Violations          []string `json:"violations"`
	Recommendations     []string `json:"recommendations"`
	ApprovalProbability string   `json:"approval_probability"`
	RequiredChanges     []string `json:"required_changes"`
}

// Reviewer runs the LLM review pass.
type Reviewer struct {
	provider llm.Provider
	prompts  *llm.PromptBuilder
	logger   *slog.Logger
}

// NewReviewer creates a Reviewer.
func NewReviewer(provider llm.Provider, prompts *llm.PromptBuilder, logger *slog.Logger) *Reviewer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reviewer{provider: provider, prompts: prompts, logger: logger}
}

// Review asks the model to judge the template against the policy context.
// Upstream or parse failure degrades to a neutral review with
// defaultLLMScore so the deterministic checks still decide the verdict; the
// absorbed error is returned alongside so callers can record it.
func (r *Reviewer) Review(ctx context.Context, templateText, policyContext string) (Review, error) {
	resp, err := r.provider.Complete(ctx, r.prompts.ReviewPrompt(templateText, policyContext))
	if err != nil {
		r.logger.Warn("LLM compliance review failed, assuming neutral score", "error", err)
		return Review{ComplianceScore: defaultLLMScore}, err
	}

	var review Review
	if err := llm.DecodeJSON(resp.Text, &review); err != nil {
		r.logger.Warn("Failed to parse compliance review, assuming neutral score", "error", err)
		return Review{ComplianceScore: defaultLLMScore}, fmt.Errorf("review response: %w", err)
	}

	if review.ComplianceScore <= 0 {
		review.ComplianceScore = defaultLLMScore
	}
	return review, nil
}
