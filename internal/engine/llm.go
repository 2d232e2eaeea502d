package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// ModelOptions configures the language model behind the engine.
type ModelOptions struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
}

// NewModel creates a langchaingo model for the configured provider.
func NewModel(ctx context.Context, opts ModelOptions) (llms.Model, error) {
	log.Debug().
		Str("provider", opts.Provider).
		Str("model", opts.Model).
		Float64("temperature", opts.Temperature).
		Msg("creating language model")

	switch opts.Provider {
	case "openai":
		openaiOpts := []openai.Option{
			openai.WithModel(opts.Model),
			openai.WithToken(opts.APIKey),
		}
		if opts.BaseURL != "" {
			openaiOpts = append(openaiOpts, openai.WithBaseURL(opts.BaseURL))
		}
		return openai.New(openaiOpts...)
	case "googleai":
		return googleai.New(ctx,
			googleai.WithAPIKey(opts.APIKey),
			googleai.WithDefaultModel(opts.Model))
	case "claude":
		return anthropic.New(
			anthropic.WithToken(opts.APIKey),
			anthropic.WithModel(opts.Model))
	case "ollama":
		ollamaOpts := []ollama.Option{ollama.WithModel(opts.Model)}
		if opts.BaseURL != "" {
			ollamaOpts = append(ollamaOpts, ollama.WithServerURL(opts.BaseURL))
		}
		return ollama.New(ollamaOpts...)
	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", opts.Provider)
	}
}
