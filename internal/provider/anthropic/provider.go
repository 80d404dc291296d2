// Package anthropic implements models.Provider against the Anthropic
// messages API.
package anthropic

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

const apiVersion = "2023-06-01"

// Provider implements models.Provider using Anthropic.
type Provider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewProvider(cfg config.AnthropicConfig, model string, timeout time.Duration) *Provider {
	return &Provider{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *Provider) Name() string { return "anthropic" }

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) (models.GenerateResponse, error) {
	prompt := req.Prompt
	if req.JSONMode {
		// The messages API has no JSON response mode; instruct instead.
		prompt += "\n\nYou must respond with valid JSON only. Do not include any text before or after the JSON object."
	}

	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	payload, err := json.Marshal(messagesRequest{
		Model:     p.model,
		MaxTokens: maxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return models.GenerateResponse{}, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return models.GenerateResponse{}, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return models.GenerateResponse{}, err
		}
		return models.GenerateResponse{}, fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.GenerateResponse{}, fmt.Errorf("%w: status %d", models.ErrProviderBadResponse, resp.StatusCode)
	}

	var out messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.GenerateResponse{}, fmt.Errorf("%w: decoding body: %v", models.ErrProviderBadResponse, err)
	}
	if len(out.Content) == 0 || out.Content[0].Text == "" {
		return models.GenerateResponse{}, fmt.Errorf("%w: empty completion", models.ErrProviderBadResponse)
	}

	return models.GenerateResponse{
		Content:   out.Content[0].Text,
		Model:     out.Model,
		TokensIn:  out.Usage.InputTokens,
		TokensOut: out.Usage.OutputTokens,
	}, nil
}

var _ models.Provider = (*Provider)(nil)
