// Package usecase orchestrates chat requests: input validation, persona
// configuration, profile fact extraction, prompt composition, the failover
// call, and transcript persistence.
package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"companion-agent/internal/domain"
	"companion-agent/internal/llm"
	"companion-agent/internal/profile"
)

const (
	defaultMaxContext    = 40
	defaultMaxMessage    = 2000
	maxConversationTurns = 50
)

// ParamGetter loads persona configuration from the parameter store.
type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
	GetByPath(ctx context.Context, path string) (map[string]string, error)
}

// ChatProvider is the failover orchestrator seam.
type ChatProvider interface {
	Chat(ctx context.Context, system string, transcript []domain.ChatTurn) (llm.Result, error)
	Status() domain.ProviderStatus
}

// TranscriptStore persists and replays conversation turns.
type TranscriptStore interface {
	GetConversationTurnCount(ctx context.Context, conversationID string) (int, error)
	GetTranscript(ctx context.Context, conversationID string, limit int) ([]domain.ChatTurn, error)
	SaveExchange(ctx context.Context, conversationID, userText, assistantText, provider string, turns int) error
}

// ChatService handles one inbound chat request end to end.
type ChatService struct {
	params          ParamGetter
	provider        ChatProvider
	state           TranscriptStore
	paramPrefix     string
	maxContextTurns int
	maxMessageLen   int

	cacheMu     sync.RWMutex
	cacheLoaded bool
	basePrompt  string
	personas    map[string]string
}

type ChatInput struct {
	ConversationID string
	Message        string
	Personality    string
	Context        string
}

type ChatOutput struct {
	Answer         string
	ConversationID string
	Provider       domain.ProviderTag
	Fallback       bool
}

func NewChatService(p ParamGetter, provider ChatProvider, s TranscriptStore, paramPrefix string, maxContextTurns, maxMessageLen int) (*ChatService, error) {
	if p == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	if provider == nil {
		return nil, errors.New("usecase: chat provider must not be nil")
	}
	if s == nil {
		return nil, errors.New("usecase: transcript store must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	if maxContextTurns <= 0 {
		maxContextTurns = defaultMaxContext
	}
	if maxMessageLen <= 0 {
		maxMessageLen = defaultMaxMessage
	}
	return &ChatService{
		params:          p,
		provider:        provider,
		state:           s,
		paramPrefix:     paramPrefix,
		maxContextTurns: maxContextTurns,
		maxMessageLen:   maxMessageLen,
	}, nil
}

func (s *ChatService) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return ChatOutput{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if len(message) > s.maxMessageLen {
		return ChatOutput{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}
	if err := s.ensureConfig(ctx); err != nil {
		return ChatOutput{}, newError(ErrorInternal, "ssm_load_error", err)
	}
	convID := strings.TrimSpace(in.ConversationID)
	if convID == "" {
		convID = newUUID()
	}

	existingTurns := 0
	if strings.TrimSpace(in.ConversationID) != "" {
		turnCount, err := s.state.GetConversationTurnCount(ctx, convID)
		if err != nil {
			return ChatOutput{}, newError(ErrorInternal, "state_turn_count_error", err)
		}
		existingTurns = turnCount
		if existingTurns >= maxConversationTurns {
			return ChatOutput{}, newError(ErrorInvalidInput, "conversation_turn_limit", nil)
		}
	}

	history, err := s.state.GetTranscript(ctx, convID, s.maxContextTurns)
	if err != nil {
		return ChatOutput{}, newError(ErrorInternal, "state_history_error", err)
	}

	transcript := make([]domain.ChatTurn, 0, len(history)+1)
	transcript = append(transcript, history...)
	transcript = append(transcript, domain.ChatTurn{Role: domain.RoleUser, Content: message})

	facts := profile.Extract(in.Context)
	system := composeSystemPrompt(promptInput{
		basePrompt:  s.basePrompt,
		personality: in.Personality,
		personas:    s.personas,
		facts:       facts,
		rawContext:  in.Context,
		transcript:  transcript,
	})

	result, err := s.provider.Chat(ctx, system, transcript)
	if err != nil {
		if errors.Is(err, llm.ErrNoProviders) {
			return ChatOutput{}, newError(ErrorUnavailable, "no_provider_available", err)
		}
		if llm.KindOf(err) == llm.KindRateLimited {
			return ChatOutput{}, newError(ErrorRateLimited, "provider_rate_limited", err)
		}
		return ChatOutput{}, newError(ErrorUpstream, "provider_error", err)
	}

	if err := s.state.SaveExchange(ctx, convID, message, result.Text, string(result.Provider), existingTurns+1); err != nil {
		return ChatOutput{}, newError(ErrorInternal, "state_write_error", err)
	}

	return ChatOutput{
		Answer:         result.Text,
		ConversationID: convID,
		Provider:       result.Provider,
		Fallback:       result.Fallback,
	}, nil
}

// Status reports the provider snapshot for the status endpoint.
func (s *ChatService) Status() domain.ProviderStatus {
	return s.provider.Status()
}

// ensureConfig lazily loads the base prompt and persona overrides once per
// process. A failed load is retried on the next request.
func (s *ChatService) ensureConfig(ctx context.Context) error {
	s.cacheMu.RLock()
	if s.cacheLoaded {
		s.cacheMu.RUnlock()
		return nil
	}
	s.cacheMu.RUnlock()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheLoaded {
		return nil
	}

	basePrompt, err := s.params.GetParameter(ctx, s.paramPrefix+"/base_prompt")
	if err != nil {
		return err
	}
	personas, err := s.params.GetByPath(ctx, s.paramPrefix+"/personas")
	if err != nil {
		return err
	}

	s.basePrompt = basePrompt
	s.personas = personas
	s.cacheLoaded = true
	return nil
}

var newUUID = func() string {
	return uuid.NewString()
}
