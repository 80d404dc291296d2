package models

import (
	"context"
	"errors"
)

// Shared provider failure sentinels. Implementations wrap these so callers
// can branch with errors.Is regardless of which provider ran.
var (
	// ErrProviderUnavailable indicates a transport-level failure reaching
	// the provider.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrProviderBadResponse indicates the provider answered but the
	// response shape was unusable (non-2xx status, empty completion,
	// malformed body).
	ErrProviderBadResponse = errors.New("provider returned unusable response")
)

// Provider is the core interface every AI integration implements.
// Callers inject this interface rather than a concrete provider.
type Provider interface {
	// Generate issues one completion request and returns the raw text output.
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
	// Name returns the provider identifier (e.g., "openai", "anthropic").
	Name() string
}

// GenerateRequest carries everything a provider call needs. Effort and
// MaxOutputTokens are passed through to the provider verbatim.
type GenerateRequest struct {
	Prompt          string
	Effort          string
	MaxOutputTokens int
	JSONMode        bool
}

// GenerateResponse is the raw provider output plus usage metadata.
type GenerateResponse struct {
	Content   string
	Model     string
	TokensIn  int
	TokensOut int
}
