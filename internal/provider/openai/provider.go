// Package openai implements models.Provider against the OpenAI chat
// completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/melodydashora/triad/internal/config"
	"github.com/melodydashora/triad/pkg/models"
)

// Provider implements models.Provider using OpenAI.
type Provider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewProvider(cfg config.OpenAIConfig, model string, timeout time.Duration) *Provider {
	return &Provider{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *Provider) Name() string { return "openai" }

type chatRequest struct {
	Model               string          `json:"model"`
	Messages            []chatMessage   `json:"messages"`
	MaxCompletionTokens int             `json:"max_completion_tokens,omitempty"`
	ReasoningEffort     string          `json:"reasoning_effort,omitempty"`
	ResponseFormat      *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) (models.GenerateResponse, error) {
	body := chatRequest{
		Model:               p.model,
		Messages:            []chatMessage{{Role: "user", Content: req.Prompt}},
		MaxCompletionTokens: req.MaxOutputTokens,
		ReasoningEffort:     req.Effort,
	}
	if req.JSONMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return models.GenerateResponse{}, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return models.GenerateResponse{}, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return models.GenerateResponse{}, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.GenerateResponse{}, fmt.Errorf("%w: status %d", models.ErrProviderBadResponse, resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.GenerateResponse{}, fmt.Errorf("%w: decoding body: %v", models.ErrProviderBadResponse, err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return models.GenerateResponse{}, fmt.Errorf("%w: empty completion", models.ErrProviderBadResponse)
	}

	return models.GenerateResponse{
		Content:   out.Choices[0].Message.Content,
		Model:     out.Model,
		TokensIn:  out.Usage.PromptTokens,
		TokensOut: out.Usage.CompletionTokens,
	}, nil
}

// classifyError maps transport failures onto provider sentinels, preserving
// context cancellation so callers can tell timeouts apart.
func classifyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
}

var _ models.Provider = (*Provider)(nil)
