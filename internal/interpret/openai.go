package interpret

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/danielpatrickdp/dpd-weights/internal/weights"
)

// OpenAIInterpreter asks an OpenAI-compatible chat endpoint for the
// narrative. Ollama works through its /v1 compatibility layer.
type OpenAIInterpreter struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAIInterpreter creates a client for baseURL, or the public OpenAI
// API when baseURL is empty.
func NewOpenAIInterpreter(apiKey, baseURL, model string) *OpenAIInterpreter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAIInterpreter{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		maxTokens: 200,
	}
}

func (o *OpenAIInterpreter) Interpret(ctx context.Context, result weights.UpdateResult) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: Prompt(result)},
		},
		MaxTokens:   o.maxTokens,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
