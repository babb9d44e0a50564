// Package compliance verifies generated templates against KakaoTalk
// AlimTalk policy: deterministic rule checks, an LLM review pass, and a
// weighted aggregate verdict.
package compliance

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/space-cap/alimgen/model"
)

// checkResult is the outcome of one rule family.
type checkResult struct {
	Score      float64
	Violations []string
	Warnings   []string
}

var adKeywords = []string{
	"할인", "특가", "이벤트", "프로모션", "혜택", "무료",
	"선착순", "한정", "특별", "기회", "놓치지",
}

var greetingMarkers = []string{"안녕하세요", "안녕하십니까", "반갑습니다"}

var infoIndicationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`정보성.*메시지`),
	regexp.MustCompile(`안내.*메시지`),
	regexp.MustCompile(`발송.*메시지`),
	regexp.MustCompile(`신청.*분들께`),
	regexp.MustCompile(`요청.*분들께`),
}

var phonePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{2,3}-\d{3,4}-\d{4}`),
	regexp.MustCompile(`\d{10,11}`),
	regexp.MustCompile(`1\d{3}-\d{4}`),
}

// blacklistRule is one prohibited pattern. RE2 has no negative lookahead,
// so the consent exception ("동의" appearing after the match) is expressed
// as a separate check on the remainder of the text.
type blacklistRule struct {
	category      string
	pattern       *regexp.Regexp
	unlessTrailer string
}

var blacklistRules = []blacklistRule{
	{category: "무료_서비스", pattern: regexp.MustCompile(`(?i)무료.*뉴스레터`)},
	{category: "무료_서비스", pattern: regexp.MustCompile(`(?i)무료.*구독`)},
	{category: "무료_서비스", pattern: regexp.MustCompile(`(?i)무료.*멤버십`)},
	{category: "포인트_적립", pattern: regexp.MustCompile(`(?i)포인트.*적립`), unlessTrailer: "동의"},
	{category: "포인트_적립", pattern: regexp.MustCompile(`(?i)적립금.*지급`), unlessTrailer: "동의"},
	{category: "포인트_적립", pattern: regexp.MustCompile(`(?i)마일리지.*적립`), unlessTrailer: "동의"},
	{category: "쿠폰_발급", pattern: regexp.MustCompile(`(?i)쿠폰.*발급.*소멸`)},
	{category: "쿠폰_발급", pattern: regexp.MustCompile(`(?i)빠른.*소멸.*쿠폰`)},
	{category: "쿠폰_발급", pattern: regexp.MustCompile(`(?i)한정.*쿠폰`)},
	{category: "광고성_내용", pattern: regexp.MustCompile(`(?i)할인.*이벤트`)},
	{category: "광고성_내용", pattern: regexp.MustCompile(`(?i)특가.*행사`)},
	{category: "광고성_내용", pattern: regexp.MustCompile(`(?i)프로모션.*혜택`)},
	{category: "스팸_패턴", pattern: regexp.MustCompile(`(?i)지금.*클릭`)},
	{category: "스팸_패턴", pattern: regexp.MustCompile(`(?i)놓치지.*마세요`)},
	{category: "스팸_패턴", pattern: regexp.MustCompile(`(?i)단.*\d+일`)},
}

var validVariableName = regexp.MustCompile(`^[가-힣a-zA-Z0-9_\s]+$`)

// CheckBasicRules verifies length, greeting, informational indication,
// advertising keywords, and contact info density.
func CheckBasicRules(text string) checkResult {
	var res checkResult
	score := 100.0

	if n := len([]rune(text)); n > model.MaxTemplateLength {
		res.Violations = append(res.Violations,
			fmt.Sprintf("메시지 길이 초과 (%d/%d자)", n, model.MaxTemplateLength))
		score -= 20
	}

	if !containsAny(text, greetingMarkers) {
		res.Warnings = append(res.Warnings, "인사말이 포함되지 않았습니다")
		score -= 5
	}

	if !hasInfoIndication(text) {
		res.Violations = append(res.Violations, "정보성 메시지 표시가 없습니다")
		score -= 15
	}

	if found := findAdKeywords(text); len(found) > 0 {
		res.Violations = append(res.Violations,
			"광고성 키워드 발견: "+strings.Join(found, ", "))
		score -= 25
	}

	if phoneCount(text) > 2 {
		res.Violations = append(res.Violations, "과도한 연락처 정보 포함")
		score -= 10
	}

	res.Score = clampScore(score)
	return res
}

// CheckBlacklist scans for prohibited template patterns. Every matching
// rule costs 30 points.
func CheckBlacklist(text string) checkResult {
	var res checkResult
	score := 100.0

	for _, rule := range blacklistRules {
		loc := rule.pattern.FindStringIndex(text)
		if loc == nil {
			continue
		}
		if rule.unlessTrailer != "" && strings.Contains(text[loc[1]:], rule.unlessTrailer) {
			continue
		}
		res.Violations = append(res.Violations, "블랙리스트 위반: "+rule.category)
		score -= 30
	}

	res.Score = clampScore(score)
	return res
}

// CheckVariables verifies placeholder count, names, non-variable content,
// and that the button label carries no variable.
func CheckVariables(text, buttonSuggestion string) checkResult {
	var res checkResult
	score := 100.0

	count := model.CountVariables(text)
	if count > model.MaxVariableCount {
		res.Violations = append(res.Violations,
			fmt.Sprintf("변수 개수 초과 (%d/%d개)", count, model.MaxVariableCount))
		score -= 25
	}

	stripped := strings.TrimSpace(model.StripVariables(text))
	if len([]rune(stripped)) < 10 {
		res.Violations = append(res.Violations, "변수만으로 구성된 템플릿입니다")
		score -= 30
	}

	var invalid []string
	for _, name := range model.ExtractVariables(text) {
		if !isValidVariableName(name) {
			invalid = append(invalid, name)
		}
	}
	if len(invalid) > 0 {
		res.Violations = append(res.Violations,
			"잘못된 변수명: "+strings.Join(invalid, ", "))
		score -= 10
	}

	if buttonSuggestion != "" && strings.Contains(buttonSuggestion, "#{") {
		res.Violations = append(res.Violations, "버튼명에 변수 사용 금지")
		score -= 15
	}

	res.Score = clampScore(score)
	return res
}

func isValidVariableName(name string) bool {
	return len([]rune(name)) <= 20 && validVariableName.MatchString(name)
}

func hasInfoIndication(text string) bool {
	for _, p := range infoIndicationPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func findAdKeywords(text string) []string {
	var found []string
	for _, kw := range adKeywords {
		if strings.Contains(text, kw) {
			found = append(found, kw)
		}
	}
	return found
}

func phoneCount(text string) int {
	count := 0
	for _, p := range phonePatterns {
		count += len(p.FindAllString(text, -1))
	}
	return count
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	return score
}
