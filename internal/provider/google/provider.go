// Package google implements models.Provider using the Gemini SDK.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/melodydashora/triad/internal/config"
	"github.com/melodydashora/triad/pkg/models"
)

// Provider implements models.Provider using Google Gemini.
type Provider struct {
	client *genai.Client
	model  string
}

func NewProvider(ctx context.Context, cfg config.GoogleConfig, model string) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("google API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Provider{client: client, model: model}, nil
}

func (p *Provider) Name() string { return "google" }

func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) (models.GenerateResponse, error) {
	model := p.client.GenerativeModel(p.model)
	if req.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxOutputTokens))
	}
	if req.JSONMode {
		model.ResponseMIMEType = "application/json"
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return models.GenerateResponse{}, err
		}
		return models.GenerateResponse{}, fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
	}

	text, err := extractText(resp)
	if err != nil {
		return models.GenerateResponse{}, err
	}

	out := models.GenerateResponse{Content: text, Model: p.model}
	if resp.UsageMetadata != nil {
		out.TokensIn = int(resp.UsageMetadata.PromptTokenCount)
		out.TokensOut = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

// Close releases the underlying gRPC connection.
func (p *Provider) Close() error {
	return p.client.Close()
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", models.ErrProviderBadResponse)
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("%w: no content", models.ErrProviderBadResponse)
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: no text parts", models.ErrProviderBadResponse)
	}
	return strings.Join(parts, ""), nil
}

var _ models.Provider = (*Provider)(nil)
