// Package llm defines the provider seam: the client interface implemented by
// the upstream integrations, the normalized failure taxonomy, local
// availability checks, and the failover orchestrator that ties them
// together.
package llm

import (
	"context"
	"errors"
	"fmt"

	"companion-agent/internal/domain"
)

// ErrorKind classifies provider failures independently of any provider's
// wire format. Integrations map their own response shapes onto these kinds
// so the orchestrator never inspects provider-specific payloads.
type ErrorKind string

const (
	KindRateLimited        ErrorKind = "rate_limited"
	KindQuotaExceeded      ErrorKind = "quota_exceeded"
	KindUnauthorized       ErrorKind = "unauthorized"
	KindNetworkUnreachable ErrorKind = "network_unreachable"
	KindInvalidResponse    ErrorKind = "invalid_response"
	KindUnknown            ErrorKind = "unknown"
)

// ProviderError is the normalized failure returned by chat clients.
type ProviderError struct {
	Provider   domain.ProviderTag
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("llm: %s provider: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("llm: %s provider: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewProviderError builds a normalized provider failure.
func NewProviderError(provider domain.ProviderTag, kind ErrorKind, statusCode int, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, StatusCode: statusCode, Err: err}
}

// KindOf extracts the classified kind from a provider failure, falling back
// to KindUnknown for anything else.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// Client is the contract every chat integration satisfies: it sends the
// composed system message plus the transcript and returns generated text or
// a *ProviderError.
type Client interface {
	Chat(ctx context.Context, system string, transcript []domain.ChatTurn) (string, error)
}
