package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/codexray/malapi-catalog/internal/domain/analysis"
	"github.com/codexray/malapi-catalog/internal/infra/ai/prompt"
)

const maxTokens = 2048

type Client struct {
	*openai.Client
}

func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		return &Client{Client: openai.NewClient(apiKey)}
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &Client{Client: openai.NewClientWithConfig(cfg)}
}

// Analyze runs one analysis over the decompiled source and reports the token
// usage the provider billed for it.
func (c *Client) Analyze(ctx context.Context, sourceCode string, analysisType analysis.Type, model string, temperature float32) (analysis.ProviderResult, error) {
	req := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.SystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: prompt.UserPrompt(analysisType, sourceCode)},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
		req.Temperature = 0
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return analysis.ProviderResult{}, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return analysis.ProviderResult{}, fmt.Errorf("empty completion response")
	}

	return analysis.ProviderResult{
		ResultText: resp.Choices[0].Message.Content,
		TokenUsage: resp.Usage.TotalTokens,
	}, nil
}
