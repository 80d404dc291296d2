// Package provider constructs the AI provider named by a stage config.
package provider

import (
	"context"
	"fmt"

	"github.com/melodydashora/triad/internal/config"
	"github.com/melodydashora/triad/internal/provider/anthropic"
	"github.com/melodydashora/triad/internal/provider/google"
	"github.com/melodydashora/triad/internal/provider/mock"
	"github.com/melodydashora/triad/internal/provider/openai"
	"github.com/melodydashora/triad/pkg/models"
)

// New constructs the provider named by a stage config.
// Called once per stage at server startup.
func New(ctx context.Context, cfg *config.Config, stage config.StageConfig) (models.Provider, error) {
	switch stage.Provider {
	case "openai":
		return openai.NewProvider(cfg.OpenAI, stage.Model, stage.Timeout), nil
	case "anthropic":
		return anthropic.NewProvider(cfg.Anthropic, stage.Model, stage.Timeout), nil
	case "google":
		return google.NewProvider(ctx, cfg.Google, stage.Model)
	case "mock":
		return mock.NewProvider(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q: must be one of openai, anthropic, google, mock", stage.Provider)
	}
}
