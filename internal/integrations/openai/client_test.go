package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"companion-agent/internal/domain"
	"companion-agent/internal/llm"
)

func TestChatURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"https://api.openai.com/v1", "https://api.openai.com/v1/chat/completions"},
		{"https://api.openai.com/v1/", "https://api.openai.com/v1/chat/completions"},
		{"http://localhost:8080", "http://localhost:8080/v1/chat/completions"},
		{"", "https://api.openai.com/v1/chat/completions"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, chatURL(tc.base), "base=%q", tc.base)
	}
}

func TestNewClient_EmptyModel(t *testing.T) {
	_, err := NewClient("sk-test", "")
	require.Error(t, err)
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient("sk-test", "gpt-4o-mini",
		WithBaseURL(srv.URL),
		WithHTTPClient(&http.Client{Timeout: 2 * time.Second}),
	)
	require.NoError(t, err)
	return c
}

func TestClient_Chat_HappyPath(t *testing.T) {
	var sent chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &sent))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-123",
			"object": "chat.completion",
			"created": 1670000000,
			"choices": [{
				"index": 0,
				"message": { "role": "assistant", "content": "Hello from mock" }
			}]
		}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	resp, err := c.Chat(context.Background(), "be nice", []domain.ChatTurn{{Role: domain.RoleUser, Content: "hi"}})
	require.NoError(t, err)
	require.Equal(t, "Hello from mock", resp)

	require.Equal(t, "gpt-4o-mini", sent.Model)
	require.Len(t, sent.Messages, 2)
	require.Equal(t, domain.RoleSystem, sent.Messages[0].Role)
	require.Equal(t, "be nice", sent.Messages[0].Content)
	require.Equal(t, "hi", sent.Messages[1].Content)
}

func TestClient_Chat_OmitsEmptySystemMessage(t *testing.T) {
	var sent chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &sent))
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Chat(context.Background(), "  ", []domain.ChatTurn{{Role: domain.RoleUser, Content: "hi"}})
	require.NoError(t, err)
	require.Len(t, sent.Messages, 1)
	require.Equal(t, domain.RoleUser, sent.Messages[0].Role)
}

func TestClient_Chat_ErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   llm.ErrorKind
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"code":"rate_limit_exceeded"}}`, llm.KindRateLimited},
		{"quota exhausted", http.StatusTooManyRequests, `{"error":{"code":"insufficient_quota"}}`, llm.KindQuotaExceeded},
		{"bad key", http.StatusUnauthorized, `{"error":{"code":"invalid_api_key"}}`, llm.KindUnauthorized},
		{"forbidden", http.StatusForbidden, ``, llm.KindUnauthorized},
		{"server error", http.StatusInternalServerError, ``, llm.KindUnknown},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(tc.body))
		}))
		c := newTestClient(t, srv)
		_, err := c.Chat(context.Background(), "", []domain.ChatTurn{{Role: domain.RoleUser, Content: "hi"}})
		srv.Close()

		var pe *llm.ProviderError
		require.ErrorAs(t, err, &pe, tc.name)
		require.Equal(t, tc.want, pe.Kind, tc.name)
		require.Equal(t, domain.ProviderPrimary, pe.Provider, tc.name)
	}
}

func TestClient_Chat_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	c, err := NewClient("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL))
	require.NoError(t, err)
	_, err = c.Chat(context.Background(), "", []domain.ChatTurn{{Role: domain.RoleUser, Content: "hi"}})
	require.Equal(t, llm.KindNetworkUnreachable, llm.KindOf(err))
}

func TestClient_Chat_InvalidResponses(t *testing.T) {
	cases := map[string]string{
		"not json":      "not-a-json",
		"no choices":    `{"choices":[]}`,
		"empty content": `{"choices":[{"index":0,"message":{"role":"assistant","content":""}}]}`,
	}
	for name, body := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		c := newTestClient(t, srv)
		_, err := c.Chat(context.Background(), "", []domain.ChatTurn{{Role: domain.RoleUser, Content: "hi"}})
		srv.Close()
		require.Equal(t, llm.KindInvalidResponse, llm.KindOf(err), "case=%s", name)
	}
}
