// Package llm talks to hosted language models. Every provider is hidden
// behind Client so the answer pipeline can be tested with Mock.
package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Client completes a single prompt.
type Client interface {
	// Complete sends system and prompt and returns the model's text.
	Complete(ctx context.Context, system, prompt string) (string, error)

	// Model returns the configured model name.
	Model() string
}

// Provider names accepted by New.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Config holds configuration for creating a client.
type Config struct {
	Provider    string  // openai, anthropic or gemini
	Model       string  // empty selects the provider default
	APIKey      string  // optional for local OpenAI-compatible endpoints
	BaseURL     string  // OpenAI-compatible endpoint override
	Temperature float64 // sampling temperature
	MaxTokens   int     // response cap; anthropic requires one
}

const defaultMaxTokens = 2048

// New creates a client for cfg.Provider.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	var (
		c   Client
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		c, err = newOpenAI(cfg, logger)
	case ProviderAnthropic:
		c, err = newAnthropic(cfg, logger)
	case ProviderGemini:
		c, err = newGemini(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}
