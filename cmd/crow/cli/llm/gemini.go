package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

type geminiClient struct {
	client *genai.Client
	cfg    Config
	logger *zap.Logger
}

func newGemini(ctx context.Context, cfg Config, logger *zap.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, NewError(ErrorTypeAuth, "api key is required for gemini", false, nil)
	}
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, NewError(ErrorTypeEndpoint, "create gemini client", false, err)
	}
	return &geminiClient{
		client: client,
		cfg:    cfg,
		logger: logger.Named("llm.gemini"),
	}, nil
}

func (c *geminiClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	c.logger.Debug("LLM request",
		zap.String("model", c.cfg.Model),
		zap.Int("prompt_len", len(prompt)))

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr(float32(c.cfg.Temperature)),
		MaxOutputTokens:   int32(c.cfg.MaxTokens),
	})
	if err != nil {
		c.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", withModel(ClassifyError(err), c.cfg.Model)
	}

	text := resp.Text()
	if text == "" {
		return "", NewError(ErrorTypeUnknown, "no text in response", false, errors.New("empty response"))
	}
	c.logger.Info("LLM request completed", zap.Duration("elapsed", time.Since(start)))
	return text, nil
}

func (c *geminiClient) Model() string { return c.cfg.Model }
