// Package llm provides the Claude API client used for request analysis,
// template generation, and compliance review, plus the prompt construction
// and response parsing around it.
package llm

import (
	"context"
	"errors"
)

// Sentinel errors for upstream failures. Callers use errors.Is to decide
// between fallback output and hard failure.
var (
	// ErrUpstreamTimeout indicates the model did not answer in time.
	ErrUpstreamTimeout = errors.New("llm: upstream request timed out")

	// ErrUpstreamUnavailable indicates a non-retryable or retry-exhausted
	// upstream failure.
	ErrUpstreamUnavailable = errors.New("llm: upstream unavailable")

	// ErrParse indicates the model answered but the response could not be
	// parsed as the expected JSON.
	ErrParse = errors.New("llm: failed to parse model response")
)

// Request is one completion call.
type Request struct {
	// System is the system prompt (may be empty).
	System string
	// User is the user message.
	User string
	// MaxTokens overrides the client default when > 0.
	MaxTokens int
	// Temperature overrides the client default when > 0.
	Temperature float64
}

// Response is a completed request.
type Response struct {
	// Text is the concatenated text content.
	Text string
	// TokensUsed is input plus output token usage.
	TokensUsed int
}

// Provider is a text completion backend.
type Provider interface {
	// Complete runs one request and returns the model's text answer.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Model returns the model name in use.
	Model() string

	// Close releases resources.
	Close() error
}
