// Package model defines the shared domain types for AlimTalk template
// generation: the closed business/service taxonomies, retrieval results,
// generated templates, and compliance verdicts.
//
// Enum values are the Korean strings used on the wire and in the policy
// corpus; the Go constant names carry the English identifiers.
package model

import "regexp"

// BusinessType classifies the requester's line of business.
type BusinessType string

const (
	BusinessEducation  BusinessType = "교육"
	BusinessMedical    BusinessType = "의료"
	BusinessRestaurant BusinessType = "음식점"
	BusinessEcommerce  BusinessType = "쇼핑몰"
	BusinessService    BusinessType = "서비스업"
	BusinessFinance    BusinessType = "금융"
	BusinessOther      BusinessType = "기타"
)

// BusinessTypes lists every valid business type.
var BusinessTypes = []BusinessType{
	BusinessEducation, BusinessMedical, BusinessRestaurant,
	BusinessEcommerce, BusinessService, BusinessFinance, BusinessOther,
}

// ParseBusinessType maps a string onto the closed enum.
// Out-of-enum values map to BusinessOther with ok=false.
func ParseBusinessType(s string) (BusinessType, bool) {
	for _, bt := range BusinessTypes {
		if string(bt) == s {
			return bt, true
		}
	}
	return BusinessOther, false
}

// ServiceType classifies what the message is about.
type ServiceType string

const (
	ServiceApplication  ServiceType = "신청"
	ServiceReservation  ServiceType = "예약"
	ServiceOrder        ServiceType = "주문"
	ServiceDelivery     ServiceType = "배송"
	ServiceNotification ServiceType = "안내"
	ServiceConfirmation ServiceType = "확인"
	ServiceFeedback     ServiceType = "피드백"
)

// ServiceTypes lists every valid service type.
var ServiceTypes = []ServiceType{
	ServiceApplication, ServiceReservation, ServiceOrder, ServiceDelivery,
	ServiceNotification, ServiceConfirmation, ServiceFeedback,
}

// ParseServiceType maps a string onto the closed enum.
// Out-of-enum values map to ServiceNotification with ok=false.
func ParseServiceType(s string) (ServiceType, bool) {
	for _, st := range ServiceTypes {
		if string(st) == s {
			return st, true
		}
	}
	return ServiceNotification, false
}

// Tone is the requested register of the message.
type Tone string

const (
	ToneFormal   Tone = "정중한"
	ToneFriendly Tone = "친근한"
	ToneOfficial Tone = "공식적인"
)

// Urgency grades how time-sensitive the message is.
type Urgency string

const (
	UrgencyHigh   Urgency = "높음"
	UrgencyMedium Urgency = "보통"
	UrgencyLow    Urgency = "낮음"
)

// ApprovalProbability estimates how likely the platform is to approve
// the template as written.
type ApprovalProbability string

const (
	ApprovalHigh   ApprovalProbability = "높음"
	ApprovalMedium ApprovalProbability = "보통"
	ApprovalLow    ApprovalProbability = "낮음"
)

// PolicyType identifies which policy document family a chunk came from.
type PolicyType string

const (
	PolicyReviewGuidelines        PolicyType = "review_guidelines"
	PolicyContentGuidelines       PolicyType = "content_guidelines"
	PolicyAllowedTemplates        PolicyType = "allowed_templates"
	PolicyProhibitedTemplates     PolicyType = "prohibited_templates"
	PolicyOperationalProcedures   PolicyType = "operational_procedures"
	PolicyImageGuidelines         PolicyType = "image_guidelines"
	PolicyInfotalkGuidelines      PolicyType = "infotalk_guidelines"
	PolicyPublicTemplateGuide     PolicyType = "public_template_guidelines"
	PolicyGeneral                 PolicyType = "general"
)

// GenerationMethod records how a template was produced.
const (
	GenerationAI       = "ai_generated"
	GenerationFallback = "fallback"
	GenerationError    = "error"
)

// MaxTemplateLength is the platform cap on template text, in runes.
const MaxTemplateLength = 1000

// MaxVariableCount is the platform cap on distinct variable placeholders.
const MaxVariableCount = 40

// Request is a template generation request as delivered by the transport.
// UserRequest is required; the remaining fields are optional hints.
type Request struct {
	UserRequest            string   `json:"user_request"`
	BusinessType           string   `json:"business_type,omitempty"`
	ServiceType            string   `json:"service_type,omitempty"`
	TargetAudience         string   `json:"target_audience,omitempty"`
	Tone                   string   `json:"tone,omitempty"`
	RequiredVariables      []string `json:"required_variables,omitempty"`
	AdditionalRequirements string   `json:"additional_requirements,omitempty"`
}

// Category is the two-level template category taxonomy the platform uses.
type Category struct {
	Category1 string `json:"category_1"`
	Category2 string `json:"category_2"`
}

// ComplianceFeedback carries a verdict's findings back into the next
// generation iteration. Copied by value between iterations.
type ComplianceFeedback struct {
	Violations      []string `json:"violations"`
	Recommendations []string `json:"recommendations"`
	RequiredChanges []string `json:"required_changes"`
}

// Analysis is the structured interpretation of a user request.
type Analysis struct {
	OriginalRequest    string              `json:"original_request"`
	BusinessType       BusinessType        `json:"business_type"`
	ServiceType        ServiceType         `json:"service_type"`
	MessagePurpose     string              `json:"message_purpose"`
	TargetAudience     string              `json:"target_audience"`
	Tone               Tone                `json:"tone"`
	Urgency            Urgency             `json:"urgency"`
	RequiredVariables  []string            `json:"required_variables"`
	EstimatedCategory  Category            `json:"estimated_category"`
	ComplianceConcerns []string            `json:"compliance_concerns"`
	ComplianceFeedback *ComplianceFeedback `json:"compliance_feedback,omitempty"`
}

// PolicyChunk is one paragraph-sized unit of policy text. Immutable after
// ingestion.
type PolicyChunk struct {
	Content        string     `json:"content"`
	Source         string     `json:"source"`
	PolicyType     PolicyType `json:"policy_type"`
	ChunkIndex     int        `json:"chunk_index"`
	RelevanceScore float64    `json:"relevance_score"`
}

// TemplateMetadata describes a template's classification and shape.
type TemplateMetadata struct {
	Category1        string       `json:"category_1"`
	Category2        string       `json:"category_2"`
	BusinessType     BusinessType `json:"business_type"`
	ServiceType      ServiceType  `json:"service_type"`
	EstimatedLength  int          `json:"estimated_length"`
	VariableCount    int          `json:"variable_count"`
	TargetAudience   string       `json:"target_audience"`
	Tone             Tone         `json:"tone"`
	GenerationMethod string       `json:"generation_method"`
}

// ApprovedTemplate is a previously platform-approved template used as a
// few-shot example during generation.
type ApprovedTemplate struct {
	ID        string           `json:"id"`
	Text      string           `json:"text"`
	Variables []string         `json:"variables"`
	Metadata  TemplateMetadata `json:"metadata"`
}

// Template is a generated AlimTalk template.
type Template struct {
	Text             string           `json:"text"`
	Variables        []string         `json:"variables"`
	ButtonSuggestion string           `json:"button_suggestion,omitempty"`
	Metadata         TemplateMetadata `json:"metadata"`
}

// DetailedScores breaks a verdict down by sub-check.
type DetailedScores struct {
	BasicRules     float64 `json:"basic_rules"`
	BlacklistCheck float64 `json:"blacklist_check"`
	VariableUsage  float64 `json:"variable_usage"`
	LLMAnalysis    float64 `json:"llm_analysis"`
}

// Verdict is the combined compliance assessment of a template.
type Verdict struct {
	IsCompliant         bool                `json:"is_compliant"`
	ComplianceScore     float64             `json:"compliance_score"`
	Violations          []string            `json:"violations"`
	Warnings            []string            `json:"warnings"`
	Recommendations     []string            `json:"recommendations"`
	ApprovalProbability ApprovalProbability `json:"approval_probability"`
	RequiredChanges     []string            `json:"required_changes"`
	DetailedScores      DetailedScores      `json:"detailed_scores"`
}

// AnalysisSummary is the analysis subset echoed in the final result.
type AnalysisSummary struct {
	BusinessType       BusinessType `json:"business_type"`
	ServiceType        ServiceType  `json:"service_type"`
	MessagePurpose     string       `json:"message_purpose"`
	EstimatedCategory  Category     `json:"estimated_category"`
	ComplianceConcerns []string     `json:"compliance_concerns"`
}

// StageTiming records the duration of one workflow stage.
type StageTiming struct {
	Stage      string `json:"stage"`
	DurationMs int64  `json:"duration_ms"`
}

// WorkflowInfo summarizes how the pipeline ran.
type WorkflowInfo struct {
	Iterations        int           `json:"iterations"`
	Errors            []string      `json:"errors"`
	PolicySources     []string      `json:"policy_sources"`
	ProcessingSeconds float64       `json:"processing_time_seconds"`
	Stages            []StageTiming `json:"stages,omitempty"`
}

// Result is the full response of one GenerateTemplate call.
type Result struct {
	Success      bool            `json:"success"`
	Template     Template        `json:"template"`
	Compliance   Verdict         `json:"compliance"`
	Analysis     AnalysisSummary `json:"analysis"`
	WorkflowInfo WorkflowInfo    `json:"workflow_info"`
}

// variablePattern matches #{name} placeholders.
var variablePattern = regexp.MustCompile(`#\{([^}]+)\}`)

// ExtractVariables returns the variable names referenced in text, in
// first-occurrence order, deduplicated.
func ExtractVariables(text string) []string {
	matches := variablePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	vars := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		vars = append(vars, m[1])
	}
	return vars
}

// StripVariables removes every #{name} placeholder from text.
func StripVariables(text string) string {
	return variablePattern.ReplaceAllString(text, "")
}

// CountVariables counts placeholder occurrences in text, including
// duplicates.
func CountVariables(text string) int {
	return len(variablePattern.FindAllString(text, -1))
}
