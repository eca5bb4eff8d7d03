// Package handler exposes the chat and status operations over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"companion-agent/internal/domain"
	"companion-agent/internal/usecase"
)

// ChatService is the usecase seam consumed by the HTTP layer.
type ChatService interface {
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
	Status() domain.ProviderStatus
}

// Handler routes chat traffic to the chat service.
type Handler struct {
	chat   ChatService
	logger *zap.Logger
}

// New creates a Handler.
func New(chat ChatService, logger *zap.Logger) (*Handler, error) {
	if chat == nil {
		return nil, errors.New("handler: chat service must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{chat: chat, logger: logger}, nil
}

// Register attaches all routes to the echo instance.
func (h *Handler) Register(e *echo.Echo) {
	api := e.Group("/api/v1")
	api.POST("/chat", h.HandleChat)
	api.GET("/status", h.HandleStatus)
	api.GET("/health", h.HandleHealth)
}

type chatRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
	Personality    string `json:"personality"`
	Context        string `json:"context"`
}

type chatResponse struct {
	Answer         string `json:"answer"`
	ConversationID string `json:"conversation_id"`
	Provider       string `json:"provider"`
	Fallback       bool   `json:"fallback"`
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// HandleChat accepts a user message and returns the assistant answer.
func (h *Handler) HandleChat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{
			Code:  string(usecase.ErrorInvalidInput),
			Error: "malformed request body",
		})
	}

	out, err := h.chat.Chat(c.Request().Context(), usecase.ChatInput{
		ConversationID: req.ConversationID,
		Message:        req.Message,
		Personality:    req.Personality,
		Context:        req.Context,
	})
	if err != nil {
		return h.chatError(c, err)
	}

	return c.JSON(http.StatusOK, chatResponse{
		Answer:         out.Answer,
		ConversationID: out.ConversationID,
		Provider:       string(out.Provider),
		Fallback:       out.Fallback,
	})
}

// HandleStatus reports the provider snapshot.
func (h *Handler) HandleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.chat.Status())
}

// HandleHealth is a liveness probe.
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) chatError(c echo.Context, err error) error {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		h.logger.Error("chat request failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorResponse{
			Code:  string(usecase.ErrorInternal),
			Error: "internal error",
		})
	}

	status := statusFor(ucErr.Code)
	if status >= http.StatusInternalServerError {
		h.logger.Error("chat request failed",
			zap.String("code", string(ucErr.Code)),
			zap.String("reason", ucErr.Reason),
			zap.Error(err),
		)
	} else {
		h.logger.Warn("chat request rejected",
			zap.String("code", string(ucErr.Code)),
			zap.String("reason", ucErr.Reason),
		)
	}
	return c.JSON(status, errorResponse{Code: string(ucErr.Code), Error: userMessageFor(ucErr.Code)})
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests
	case usecase.ErrorUpstream:
		return http.StatusBadGateway
	case usecase.ErrorUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func userMessageFor(code usecase.ErrorCode) string {
	switch code {
	case usecase.ErrorInvalidInput:
		return "the message was empty, too long, or the conversation is full"
	case usecase.ErrorRateLimited:
		return "too many requests right now, please slow down"
	case usecase.ErrorUpstream:
		return "the assistant could not produce a response"
	case usecase.ErrorUnavailable:
		return "no assistant service is currently available"
	default:
		return "internal error"
	}
}
