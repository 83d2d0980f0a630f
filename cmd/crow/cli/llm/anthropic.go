package llm

import (
	"context"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"

type anthropicClient struct {
	client *anthropic.Client
	cfg    Config
	logger *zap.Logger
}

func newAnthropic(cfg Config, logger *zap.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, NewError(ErrorTypeAuth, "api key is required for anthropic", false, nil)
	}
	if cfg.Model == "" {
		cfg.Model = defaultAnthropicModel
	}

	var opts []anthropic.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")))
	}
	return &anthropicClient{
		client: anthropic.NewClient(cfg.APIKey, opts...),
		cfg:    cfg,
		logger: logger.Named("llm.anthropic"),
	}, nil
}

func (c *anthropicClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	c.logger.Debug("LLM request",
		zap.String("model", c.cfg.Model),
		zap.Int("prompt_len", len(prompt)))

	temperature := float32(c.cfg.Temperature)
	start := time.Now()
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.cfg.Model),
		System:      system,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: &temperature,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		c.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", withModel(ClassifyError(err), c.cfg.Model)
	}

	c.logger.Info("LLM request completed",
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))
	return textFromMessages(resp), nil
}

func (c *anthropicClient) Model() string { return c.cfg.Model }

func textFromMessages(resp anthropic.MessagesResponse) string {
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			b.WriteString(*block.Text)
		}
	}
	return b.String()
}
