// Package openai implements the primary chat provider against the OpenAI
// Chat Completions API. Failures are normalized into llm.ProviderError kinds
// so callers never inspect OpenAI response shapes.
package openai

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

	"companion-agent/internal/domain"
	"companion-agent/internal/llm"
)

const defaultBaseURL = "https://api.openai.com/v1"

// chatRequest is the minimal request shape for the Chat Completions endpoint.
type chatRequest struct {
	Model       string            `json:"model"`
	Messages    []domain.ChatTurn `json:"messages"`
	Temperature *float64          `json:"temperature,omitempty"`
}

// chatResponse is the minimal response shape returned by the Chat
// Completions endpoint.
type chatResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Choices []struct {
		Index   int             `json:"index"`
		Message domain.ChatTurn `json:"message"`
	} `json:"choices"`
}

// Client is a focused OpenAI chat-completions client.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client with the injected API key. The key is not
// validated here; the orchestrator decides availability from the key shape
// before any call is made.
func NewClient(apiKey, model string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("openai: model must not be empty")
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		apiKey:     strings.TrimSpace(apiKey),
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func chatURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/v1/chat/completions"
}

// Chat sends the composed system message plus the transcript and returns the
// assistant text. Errors are always *llm.ProviderError.
func (c *Client) Chat(ctx context.Context, system string, transcript []domain.ChatTurn) (string, error) {
	messages := make([]domain.ChatTurn, 0, len(transcript)+1)
	if strings.TrimSpace(system) != "" {
		messages = append(messages, domain.ChatTurn{Role: domain.RoleSystem, Content: system})
	}
	messages = append(messages, transcript...)

	body, err := json.Marshal(chatRequest{Model: c.model, Messages: messages})
	if err != nil {
		return "", c.wrap(llm.KindUnknown, 0, fmt.Errorf("marshal request: %w", err))
	}

	url := chatURL(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", c.wrap(llm.KindUnknown, 0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", c.wrap(llm.KindNetworkUnreachable, 0, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", c.wrap(classifyStatus(res.StatusCode, string(buf)), res.StatusCode,
			fmt.Errorf("unexpected status %d from %s: %s", res.StatusCode, url, string(buf)))
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", c.wrap(llm.KindInvalidResponse, res.StatusCode, fmt.Errorf("read response body: %w", err))
	}

	var payload chatResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", c.wrap(llm.KindInvalidResponse, res.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	if len(payload.Choices) == 0 {
		return "", c.wrap(llm.KindInvalidResponse, res.StatusCode, errors.New("no choices in response"))
	}
	text := payload.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", c.wrap(llm.KindInvalidResponse, res.StatusCode, errors.New("empty completion content"))
	}
	return text, nil
}

func (c *Client) wrap(kind llm.ErrorKind, status int, err error) error {
	return llm.NewProviderError(domain.ProviderPrimary, kind, status, fmt.Errorf("openai: %w", err))
}

// classifyStatus maps OpenAI HTTP failures onto the shared taxonomy. A 429
// carrying the insufficient_quota marker is a billing problem, not a
// transient rate limit.
func classifyStatus(status int, body string) llm.ErrorKind {
	switch {
	case status == http.StatusTooManyRequests && strings.Contains(body, "insufficient_quota"):
		return llm.KindQuotaExceeded
	case status == http.StatusTooManyRequests:
		return llm.KindRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return llm.KindUnauthorized
	case status == http.StatusPaymentRequired:
		return llm.KindQuotaExceeded
	default:
		return llm.KindUnknown
	}
}
