package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const defaultOpenAIModel = "gpt-4o-mini"

type openAIClient struct {
	client *openai.Client
	cfg    Config
	logger *zap.Logger
}

func newOpenAI(cfg Config, logger *zap.Logger) (Client, error) {
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, NewError(ErrorTypeAuth, "api key is required for the hosted openai endpoint", false, nil)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}

	return &openAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
		logger: logger.Named("llm.openai"),
	}, nil
}

func (c *openAIClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	c.logger.Debug("LLM request",
		zap.String("model", c.cfg.Model),
		zap.Int("prompt_len", len(prompt)))

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(c.cfg.Temperature),
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		c.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", withModel(ClassifyError(err), c.cfg.Model)
	}
	if len(resp.Choices) == 0 {
		return "", NewError(ErrorTypeUnknown, "no choices in response", false, errors.New("empty response"))
	}

	c.logger.Info("LLM request completed",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))
	return resp.Choices[0].Message.Content, nil
}

func (c *openAIClient) Model() string { return c.cfg.Model }
