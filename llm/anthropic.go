package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"
)

// Anthropic client defaults.
const (
	DefaultModel       = "claude-3-5-haiku-latest"
	DefaultHost        = "https://api.anthropic.com"
	DefaultMaxTokens   = 2000
	DefaultTemperature = 0.3
	DefaultTimeout     = 120
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1

	anthropicVersion = "2023-06-01"
)

// AnthropicConfig configures the Anthropic client.
type AnthropicConfig struct {
	// APIKey for the Anthropic API (required).
	APIKey string
	// Model name (default claude-3-5-haiku-latest).
	Model string
	// Host overrides the API endpoint.
	Host string
	// MaxTokens is the default completion budget.
	MaxTokens int
	// Temperature is the default sampling temperature.
	Temperature float64
	// Timeout per request in seconds.
	Timeout int
	// MaxRetries bounds retry attempts for retryable failures.
	MaxRetries int
	// RetryDelay is the backoff base in seconds.
	RetryDelay int
}

// SetDefaults applies default configuration values.
func (c *AnthropicConfig) SetDefaults() {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
}

// AnthropicClient implements Provider against the Anthropic Messages API.
type AnthropicClient struct {
	cfg    AnthropicConfig
	client *http.Client
	logger *slog.Logger
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewAnthropicClient creates a client for the Anthropic Messages API.
func NewAnthropicClient(cfg AnthropicConfig, logger *slog.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Anthropic")
	}
	cfg.SetDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	return &AnthropicClient{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
		logger: logger,
	}, nil
}

// Model returns the configured model name.
func (c *AnthropicClient) Model() string {
	return c.cfg.Model
}

// Close releases resources.
func (c *AnthropicClient) Close() error {
	return nil
}

// retryStrategy classifies an HTTP failure for retry purposes.
type retryStrategy int

const (
	noRetry retryStrategy = iota
	// conservativeRetry is a quick retry for transient server errors
	// (at most 2 attempts).
	conservativeRetry
	// smartRetry is header-driven retry for rate limits.
	smartRetry
)

func strategyFor(statusCode int) retryStrategy {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return smartRetry
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusGatewayTimeout:
		return conservativeRetry
	default:
		return noRetry
	}
}

// rateLimitInfo carries retry hints from response headers.
type rateLimitInfo struct {
	retryAfter time.Duration
	resetTime  int64
}

// Complete runs one request with retry on rate limits and transient server
// errors. Timeouts map to ErrUpstreamTimeout, exhausted or non-retryable
// failures to ErrUpstreamUnavailable.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (*Response, error) {
	payload := c.buildRequest(req)
	baseDelay := time.Duration(c.cfg.RetryDelay) * time.Second

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		resp, strategy, info, err := c.attempt(ctx, payload)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if strategy == noRetry || attempt >= c.cfg.MaxRetries {
			break
		}

		var delay time.Duration
		switch strategy {
		case smartRetry:
			switch {
			case info.retryAfter > 0:
				delay = info.retryAfter
			case info.resetTime > 0:
				delay = time.Until(time.Unix(info.resetTime, 0))
				if delay < 0 {
					delay = baseDelay
				}
			default:
				exponential := time.Duration(math.Pow(2, float64(attempt))) * baseDelay
				delay = exponential + time.Duration(float64(exponential)*0.1)
			}
			c.logger.Warn("Rate limited by Anthropic, retrying",
				"delay", delay,
				"attempt", attempt+1,
				"max_attempts", c.cfg.MaxRetries)

		case conservativeRetry:
			if attempt >= 2 {
				return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
			}
			delay = time.Duration(2+attempt) * time.Second
			c.logger.Warn("Anthropic server error, retrying",
				"delay", delay,
				"attempt", attempt+1)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, lastErr)
}

func (c *AnthropicClient) buildRequest(req Request) anthropicRequest {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}
	temperature := c.cfg.Temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}

	return anthropicRequest{
		Model:       c.cfg.Model,
		Messages:    []anthropicMessage{{Role: "user", Content: req.User}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
		System:      req.System,
	}
}

func (c *AnthropicClient) attempt(ctx context.Context, payload anthropicRequest) (*Response, retryStrategy, rateLimitInfo, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, noRetry, rateLimitInfo{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.cfg.Host+"/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, noRetry, rateLimitInfo{}, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, noRetry, rateLimitInfo{}, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	info := extractRateLimitHeaders(resp.Header)

	if resp.StatusCode != http.StatusOK {
		return nil, strategyFor(resp.StatusCode), info,
			fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, noRetry, info, fmt.Errorf("failed to decode response: %w", err)
	}
	if parsed.Error != nil {
		return nil, noRetry, info, fmt.Errorf("Anthropic API error: %s", parsed.Error.Message)
	}

	var text string
	for _, content := range parsed.Content {
		if content.Type == "text" {
			text += content.Text
		}
	}

	return &Response{
		Text:       text,
		TokensUsed: parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
	}, noRetry, info, nil
}

func extractRateLimitHeaders(headers http.Header) rateLimitInfo {
	info := rateLimitInfo{}

	if retryAfter := headers.Get("retry-after"); retryAfter != "" {
		if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
			info.retryAfter = seconds
		}
	}
	if resetStr := headers.Get("anthropic-ratelimit-requests-reset"); resetStr != "" {
		if resetTime, err := time.Parse(time.RFC3339, resetStr); err == nil {
			info.resetTime = resetTime.Unix()
		}
	}

	return info
}

var _ Provider = (*AnthropicClient)(nil)
