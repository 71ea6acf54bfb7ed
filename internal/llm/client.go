// Package llm talks to a Mistral-compatible chat completion API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aarso/diaa/internal/fault"
	"github.com/aarso/diaa/internal/reliability"
)

var ErrEmptyCompletion = errors.New("chat completion returned no choices")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single non-streaming completion call.
type Request struct {
	APIKey   string
	Messages []Message
}

type Config struct {
	ChatURL     string
	ModelsURL   string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int
	RetryBase   time.Duration
}

type Client struct {
	HTTPClient *http.Client
	cfg        Config
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type completionChoice struct {
	Index        int     `json:"index"`
	FinishReason string  `json:"finish_reason"`
	Message      Message `json:"message"`
}

type completionResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Choices []completionChoice `json:"choices"`
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 250 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
	}
}

func (c *Client) Model() string { return c.cfg.Model }

// Complete returns the first choice's content. Failures are *fault.Error with
// Kind ApiError; Status is zero for transport errors.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.APIKey) == "" {
		return "", fault.API("chat.complete", http.StatusUnauthorized, errors.New("api key missing"))
	}
	payload, err := json.Marshal(completionRequest{
		Model:       c.cfg.Model,
		Messages:    req.Messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fault.API("chat.complete", 0, fmt.Errorf("marshal request: %w", err))
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := reliability.ExponentialBackoff(attempt-1, c.cfg.RetryBase, 4*time.Second)
			if err := reliability.Sleep(ctx, wait); err != nil {
				return "", fault.API("chat.complete", 0, err)
			}
		}
		text, status, err := c.completeOnce(ctx, req.APIKey, payload)
		if err == nil {
			return text, nil
		}
		lastErr = fault.API("chat.complete", status, err)
		if status != 0 && !reliability.IsRetryableHTTPStatus(status) {
			break
		}
		if status == 0 && !reliability.IsRetryableTransportError(err) {
			break
		}
	}
	return "", lastErr
}

func (c *Client) completeOnce(ctx context.Context, apiKey string, payload []byte) (string, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ChatURL, bytes.NewReader(payload))
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	res, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return "", 0, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", res.StatusCode, fmt.Errorf("chat http status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	// An unusable 2xx body is not an upstream status failure.
	var cr completionResponse
	if err := json.NewDecoder(res.Body).Decode(&cr); err != nil {
		return "", 0, fmt.Errorf("decode response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", 0, ErrEmptyCompletion
	}
	return strings.TrimSpace(cr.Choices[0].Message.Content), 0, nil
}

// ValidateKey lists models with apiKey; any 2xx means the key works.
func (c *Client) ValidateKey(ctx context.Context, apiKey string) error {
	if strings.TrimSpace(apiKey) == "" {
		return fault.API("chat.validate_key", http.StatusUnauthorized, errors.New("api key missing"))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ModelsURL, nil)
	if err != nil {
		return fault.API("chat.validate_key", 0, fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Accept", "application/json")

	res, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fault.API("chat.validate_key", 0, fmt.Errorf("send request: %w", err))
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fault.API("chat.validate_key", res.StatusCode, fmt.Errorf("models http status %d", res.StatusCode))
	}
	return nil
}
