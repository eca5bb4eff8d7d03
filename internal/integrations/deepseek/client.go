// Package deepseek implements the fallback chat provider. The API is
// OpenAI-compatible, but the reasoning models interleave think sections into
// their output, so responses are post-processed before they reach the
// caller.
package deepseek

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"companion-agent/internal/domain"
	"companion-agent/internal/llm"
)

const defaultBaseURL = "https://api.deepseek.com"

// Disclaimer is appended to every fallback response so the user knows the
// backup model produced it.
const Disclaimer = "\n\n(Note: I'm currently running on a backup model, so responses may differ slightly from usual.)"

// placeholderUserTurn is synthesized when the outbound transcript is empty
// or does not end with a user turn; the API rejects transcripts whose last
// message is not from the user.
const placeholderUserTurn = "Please continue the conversation."

var (
	thinkBlockRe  = regexp.MustCompile(`(?s)<think>.*?</think>`)
	residualTagRe = regexp.MustCompile(`</?(?:think|thinking|reasoning|answer)>`)
	newlineRunRe  = regexp.MustCompile(`\n{3,}`)
)

type chatRequest struct {
	Model    string            `json:"model"`
	Messages []domain.ChatTurn `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message domain.ChatTurn `json:"message"`
	} `json:"choices"`
}

// Client is a focused DeepSeek chat client.
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

// NewClient creates a Client with the injected API key.
func NewClient(apiKey, model string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("deepseek: model must not be empty")
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
	return base + "/chat/completions"
}

// Chat sends the transcript and returns the cleaned assistant text with the
// fallback disclaimer appended. Errors are always *llm.ProviderError.
func (c *Client) Chat(ctx context.Context, system string, transcript []domain.ChatTurn) (string, error) {
	outbound := ensureTrailingUserTurn(transcript)
	messages := make([]domain.ChatTurn, 0, len(outbound)+1)
	if strings.TrimSpace(system) != "" {
		messages = append(messages, domain.ChatTurn{Role: domain.RoleSystem, Content: system})
	}
	messages = append(messages, outbound...)

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
		return "", c.wrap(classifyStatus(res.StatusCode), res.StatusCode,
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

	text := sanitize(payload.Choices[0].Message.Content)
	if text == "" {
		return "", c.wrap(llm.KindInvalidResponse, res.StatusCode, errors.New("empty completion after cleanup"))
	}
	return text + Disclaimer, nil
}

func (c *Client) wrap(kind llm.ErrorKind, status int, err error) error {
	return llm.NewProviderError(domain.ProviderFallback, kind, status, fmt.Errorf("deepseek: %w", err))
}

// classifyStatus maps DeepSeek HTTP failures onto the shared taxonomy.
// DeepSeek reports an exhausted balance as 402 rather than a quota-flavored
// 429.
func classifyStatus(status int) llm.ErrorKind {
	switch status {
	case http.StatusPaymentRequired:
		return llm.KindQuotaExceeded
	case http.StatusTooManyRequests:
		return llm.KindRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		return llm.KindUnauthorized
	default:
		return llm.KindUnknown
	}
}

// ensureTrailingUserTurn returns a transcript guaranteed to end with a
// user-role turn, synthesizing a placeholder when needed. The input slice is
// never mutated.
func ensureTrailingUserTurn(transcript []domain.ChatTurn) []domain.ChatTurn {
	if n := len(transcript); n > 0 && transcript[n-1].Role == domain.RoleUser {
		return transcript
	}
	out := make([]domain.ChatTurn, 0, len(transcript)+1)
	out = append(out, transcript...)
	return append(out, domain.ChatTurn{Role: domain.RoleUser, Content: placeholderUserTurn})
}

// sanitize strips think sections and residual meta-tags and collapses runs
// of three or more newlines down to two.
func sanitize(text string) string {
	text = thinkBlockRe.ReplaceAllString(text, "")
	text = residualTagRe.ReplaceAllString(text, "")
	text = newlineRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
