// Package tokenizer provides rule-based Korean tokenization for sparse
// retrieval. It extracts Hangul runs, Latin runs, and digit runs without a
// morphological analyzer; an analyzer can be plugged in behind the same
// Tokenizer interface.
package tokenizer

import (
	"regexp"
	"strings"
)

// Tokenizer turns text into an ordered token list. Implementations must be
// deterministic and safe for concurrent use.
type Tokenizer interface {
	Tokenize(text string) []string
}

var (
	variablePattern = regexp.MustCompile(`#\{[^}]+\}`)
	nonWordPattern  = regexp.MustCompile(`[^\w\s가-힣]`)
	spacePattern    = regexp.MustCompile(`\s+`)

	hangulPattern = regexp.MustCompile(`[가-힣]{2,}`)
	latinPattern  = regexp.MustCompile(`[a-zA-Z]{2,}`)
	digitPattern  = regexp.MustCompile(`\d+`)
)

// RegexTokenizer is the default rule-based tokenizer. It holds no mutable
// state, so the zero value is ready to use from any goroutine.
type RegexTokenizer struct{}

// New returns a ready-to-use rule-based tokenizer.
func New() *RegexTokenizer {
	return &RegexTokenizer{}
}

// Tokenize extracts tokens from text: Hangul runs of length >= 2, then
// Latin runs of length >= 2, then digit runs. Variable placeholders are
// removed before extraction. Empty input yields an empty result.
func (t *RegexTokenizer) Tokenize(text string) []string {
	cleaned := t.clean(text)
	if cleaned == "" {
		return nil
	}

	var tokens []string
	tokens = append(tokens, hangulPattern.FindAllString(cleaned, -1)...)
	tokens = append(tokens, latinPattern.FindAllString(cleaned, -1)...)
	tokens = append(tokens, digitPattern.FindAllString(cleaned, -1)...)
	return tokens
}

// clean strips variable placeholders and collapses non-word characters into
// single spaces.
func (t *RegexTokenizer) clean(text string) string {
	text = variablePattern.ReplaceAllString(text, "")
	text = nonWordPattern.ReplaceAllString(text, " ")
	text = spacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Frequency counts occurrences per token.
func Frequency(tokens []string) map[string]int {
	freq := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		freq[tok]++
	}
	return freq
}

var _ Tokenizer = (*RegexTokenizer)(nil)
