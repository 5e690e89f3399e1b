// Package imagegen wraps the image generation API used by the synthesis stage.
package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reelforge/internal/services"
)

const (
	defaultHTTPTimeout   = 120 * time.Second
	defaultRetryAttempts = 3
	defaultRetryBase     = 2 * time.Second
	defaultRetryMax      = 20 * time.Second
)

// Config captures the runtime settings for the image API.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Width          int
	Height         int
	TimeoutSeconds int
}

// Client talks to an OpenAI-compatible image generation endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts overrides the default retry count.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retryMaxAttempts = attempts
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs an image generation client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			Model:          strings.TrimSpace(cfg.Model),
			Width:          cfg.Width,
			Height:         cfg.Height,
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient:       &http.Client{Timeout: timeout},
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBase,
		retryMaxDelay:    defaultRetryMax,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = "https://api.openai.com/v1/images/generations"
	}
	if client.cfg.Width <= 0 {
		client.cfg.Width = 1080
	}
	if client.cfg.Height <= 0 {
		client.cfg.Height = 1920
	}
	return client
}

type generationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type generationResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Generate produces one image for the prompt and returns the raw image bytes.
// Content policy rejections and auth failures are tagged as non-retryable;
// rate limits and server errors are retried before surfacing as transient.
func (c *Client) Generate(ctx context.Context, prompt string) ([]byte, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: image generate: empty prompt", services.ErrValidation)
	}
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: image generate: api key required", services.ErrFatal)
	}

	attempts := c.retryMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		data, err := c.generateOnce(ctx, prompt)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retryable(err) || attempt == attempts || ctx.Err() != nil {
			return nil, err
		}
		if sleepErr := c.sleep(ctx, c.backoffDelay(attempt)); sleepErr != nil {
			return nil, sleepErr
		}
	}
	return nil, lastErr
}

func (c *Client) generateOnce(ctx context.Context, prompt string) ([]byte, error) {
	payload := generationRequest{
		Model:          c.cfg.Model,
		Prompt:         prompt,
		N:              1,
		Size:           fmt.Sprintf("%dx%d", c.cfg.Width, c.cfg.Height),
		ResponseFormat: "b64_json",
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: image generate: encode body: %w", services.ErrFatal, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: image generate: new request: %w", services.ErrFatal, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: image generate: http error: %w", services.ErrTransient, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: image generate: read body: %w", services.ErrTransient, err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, classifyHTTPError(resp.StatusCode, body)
	}

	var decoded generationResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%w: image generate: decode response: %w", services.ErrTransient, err)
	}
	if decoded.Error != nil {
		return nil, classifyAPIError(decoded.Error.Code, decoded.Error.Type, decoded.Error.Message)
	}
	if len(decoded.Data) == 0 {
		return nil, fmt.Errorf("%w: image generate: empty response data", services.ErrTransient)
	}
	entry := decoded.Data[0]
	if entry.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(entry.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("%w: image generate: decode image: %w", services.ErrTransient, err)
		}
		return data, nil
	}
	if entry.URL != "" {
		return c.download(ctx, entry.URL)
	}
	return nil, fmt.Errorf("%w: image generate: response has no image payload", services.ErrTransient)
}

func (c *Client) download(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: image download: new request: %w", services.ErrFatal, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: image download: http error: %w", services.ErrTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: image download: http %d", services.ErrTransient, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: image download: read body: %w", services.ErrTransient, err)
	}
	return data, nil
}

func classifyHTTPError(status int, body []byte) error {
	detail := strings.TrimSpace(string(body))
	var decoded generationResponse
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Error != nil {
		return classifyAPIError(decoded.Error.Code, decoded.Error.Type, decoded.Error.Message)
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: image generate: http %d: %s", services.ErrFatal, status, detail)
	case status == http.StatusPaymentRequired:
		return fmt.Errorf("%w: image generate: http %d: %s", services.ErrFatal, status, detail)
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: image generate: http %d: %s", services.ErrTransient, status, detail)
	default:
		return fmt.Errorf("%w: image generate: http %d: %s", services.ErrFatal, status, detail)
	}
}

func classifyAPIError(code, kind, message string) error {
	lowered := strings.ToLower(code + " " + kind + " " + message)
	switch {
	case strings.Contains(lowered, "content_policy") || strings.Contains(lowered, "safety"):
		return fmt.Errorf("%w: image generate: rejected by content policy: %s", services.ErrValidation, message)
	case strings.Contains(lowered, "billing") || strings.Contains(lowered, "insufficient_quota") || strings.Contains(lowered, "invalid_api_key") || strings.Contains(lowered, "authentication"):
		return fmt.Errorf("%w: image generate: %s", services.ErrFatal, message)
	case strings.Contains(lowered, "rate_limit") || strings.Contains(lowered, "server_error") || strings.Contains(lowered, "overloaded"):
		return fmt.Errorf("%w: image generate: %s", services.ErrTransient, message)
	default:
		return fmt.Errorf("%w: image generate: %s", services.ErrTransient, message)
	}
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, services.ErrTransient) || errors.Is(err, services.ErrResource)
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.retryBaseDelay
	if delay <= 0 {
		delay = defaultRetryBase
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	if max := c.retryMaxDelay; max > 0 && delay > max {
		delay = max
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// HealthCheck verifies the API key is present. A full request is too costly
// to run per health probe, so this only validates local configuration.
func (c *Client) HealthCheck(ctx context.Context) error {
	_ = ctx
	if c.cfg.APIKey == "" {
		return errors.New("image health: api key required")
	}
	if c.cfg.Model == "" {
		return errors.New("image health: model required")
	}
	return nil
}
