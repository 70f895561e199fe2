package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/siherrmann/recurve/helper"
)

// Completer generates a completion for a prompt
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config holds the parameters for an OpenAI-compatible completion client.
// BaseURL may point at any server speaking the OpenAI chat API, such as a
// local vLLM or Ollama instance.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
}

// ConfigFromEnv reads the client configuration from OPENAI_API_KEY,
// OPENAI_BASE_URL and OPENAI_MODEL
func ConfigFromEnv() (*Config, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &Config{
		APIKey:  apiKey,
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
		Model:   model,
	}, nil
}

// OpenAIClient is a Completer backed by an OpenAI-compatible chat API
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	logger      *slog.Logger
}

// NewOpenAIClient creates a completion client from the given configuration
func NewOpenAIClient(config *Config, logger *slog.Logger) (*OpenAIClient, error) {
	if config == nil {
		return nil, helper.NewError("config validation", fmt.Errorf("config is nil"))
	}
	if config.APIKey == "" {
		return nil, helper.NewError("config validation", fmt.Errorf("api key is empty"))
	}
	if config.Model == "" {
		return nil, helper.NewError("config validation", fmt.Errorf("model is empty"))
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	logger.Info("Initialized OpenAI client", slog.String("model", config.Model))

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       config.Model,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		logger:      logger,
	}, nil
}

// Complete sends the prompt as a single user message and returns the
// first choice's content
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if c.temperature > 0 {
		req.Temperature = c.temperature
	}
	if c.maxTokens > 0 {
		req.MaxCompletionTokens = c.maxTokens
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", helper.NewError("chat completion", err)
	}

	if len(resp.Choices) == 0 {
		return "", helper.NewError("chat completion", fmt.Errorf("no choices returned"))
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
