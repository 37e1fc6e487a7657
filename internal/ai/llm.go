// Package ai provides the provider clients for the audit pipeline: LLM
// completions, text embeddings, and resilient parsing of model output.
package ai

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// LLMService produces a completion for a prompt. Implementations must be
// safe for concurrent use.
type LLMService interface {
	Complete(ctx context.Context, model, prompt string, maxTokens int) (string, error)
}

// AnthropicService is the production LLMService backed by the Anthropic
// Messages API, with retry, circuit breaking, and bounded concurrency.
type AnthropicService struct {
	client *anthropic.Client
	caller caller
}

// NewAnthropicService creates a client using the given API key.
func NewAnthropicService(apiKey string, retry RetryConfig) (*AnthropicService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required (set ANTHROPIC_API_KEY)")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicService{client: &client, caller: newCaller(retry)}, nil
}

// Complete sends a single-turn user prompt and returns the concatenated
// text blocks of the response.
func (s *AnthropicService) Complete(ctx context.Context, model, prompt string, maxTokens int) (string, error) {
	var text string
	err := s.caller.do(ctx, "completion", func(ctx context.Context) error {
		response, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(model),
			MaxTokens: int64(maxTokens),
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if err != nil {
			return err
		}

		text = ""
		for _, block := range response.Content {
			if block.Type == "text" {
				text += block.Text
			}
		}
		if text == "" {
			return fmt.Errorf("empty response from model %s", model)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}
