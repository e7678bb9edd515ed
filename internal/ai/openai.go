package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider talks to an OpenAI-compatible chat completion endpoint
type OpenAIProvider struct {
	client      *openai.Client
	maxTokens   int
	temperature float32
}

// NewOpenAIProvider creates a provider. An empty baseURL uses the OpenAI API.
func NewOpenAIProvider(apiKey, baseURL string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(cfg),
		maxTokens:   4096,
		temperature: 0.7,
	}, nil
}

// Generate sends a single-turn prompt and returns the first choice
func (p *OpenAIProvider) Generate(ctx context.Context, modelID, prompt string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: modelID,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are an expert tutor preparing students for competitive engineering entrance exams."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	})
	if err != nil {
		return "", classifyOpenAIError(modelID, err)
	}
	if len(resp.Choices) == 0 {
		return "", &ProviderError{Kind: ProviderUnavailable, Model: modelID, Err: errors.New("no response choices returned")}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func classifyOpenAIError(model string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Kind: ProviderTimeout, Model: model, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ProviderError{Kind: ProviderTimeout, Model: model, Err: err}
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	switch status {
	case http.StatusTooManyRequests:
		return &ProviderError{Kind: ProviderRateLimited, Model: model, Err: err}
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return &ProviderError{Kind: ProviderTimeout, Model: model, Err: err}
	}
	if status >= 400 && status < 500 {
		return &ProviderError{Kind: ProviderRejected, Model: model, Err: err}
	}
	return &ProviderError{Kind: ProviderUnavailable, Model: model, Err: err}
}
