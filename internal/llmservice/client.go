package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"learning-assistant/internal/config"
	"learning-assistant/internal/models"
)

var ErrEmptyResponse = errors.New("llm returned no choices")

// Client wraps one chat model built at startup and shared by all requests.
type Client struct {
	llm         llms.Model
	model       string
	temperature float64
	maxTokens   int
}

// New builds the chat model for the configured provider.
func New(cfg config.LLMConfig) (*Client, error) {
	llm, err := newModel(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithModel(llm, cfg), nil
}

// NewWithModel wraps an already constructed model.
func NewWithModel(llm llms.Model, cfg config.LLMConfig) *Client {
	return &Client{
		llm:         llm,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

func newModel(cfg config.LLMConfig) (llms.Model, error) {
	key := strings.TrimPrefix(cfg.Key, "Bearer ")
	switch cfg.Provider {
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("error initializing ollama: %w", err)
		}
		return llm, nil
	case "anthropic":
		opts := []anthropic.Option{anthropic.WithToken(key), anthropic.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		llm, err := anthropic.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("error initializing anthropic: %w", err)
		}
		return llm, nil
	case "openai", "":
		opts := []openai.Option{openai.WithToken(key), openai.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("error initializing openai: %w", err)
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// ModelName reports the configured model identifier.
func (c *Client) ModelName() string {
	return c.model
}

// Generate sends the system prompt followed by messages and returns the first
// choice. An empty systemPrompt sends no system message.
func (c *Client) Generate(ctx context.Context, systemPrompt string, messages []models.Message) (string, error) {
	content := make([]llms.MessageContent, 0, len(messages)+1)
	if systemPrompt != "" {
		content = append(content, llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt))
	}
	for _, m := range messages {
		content = append(content, llms.TextParts(roleType(m.Role), m.Content))
	}

	opts := []llms.CallOption{llms.WithTemperature(c.temperature)}
	if c.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.maxTokens))
	}

	log.Ctx(ctx).Debug().Str("model", c.model).Int("messages", len(content)).Msg("Generating content")
	res, err := c.llm.GenerateContent(ctx, content, opts...)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if res == nil || len(res.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return res.Choices[0].Content, nil
}

func roleType(role string) schema.ChatMessageType {
	switch role {
	case models.RoleSystem:
		return schema.ChatMessageTypeSystem
	case models.RoleAssistant:
		return schema.ChatMessageTypeAI
	default:
		return schema.ChatMessageTypeHuman
	}
}
