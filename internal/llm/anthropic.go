package llm

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicDefaultModel = "claude-3-5-sonnet-20241022"

// AnthropicGenerator streams replies from the Anthropic Messages API.
type AnthropicGenerator struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicGenerator creates an Anthropic-backed generator.
func NewAnthropicGenerator(apiKey string) (*AnthropicGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic API key is required")
	}
	return &AnthropicGenerator{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropicDefaultModel,
	}, nil
}

// Name returns the provider name.
func (g *AnthropicGenerator) Name() string {
	return "anthropic"
}

// Stream sends the conversation plus prompt and relays text deltas.
func (g *AnthropicGenerator) Stream(ctx context.Context, turns []Turn, prompt string, emit EmitFunc) (string, error) {
	messages := make([]anthropic.MessageParam, 0, len(turns)+1)
	for _, t := range turns {
		messages = append(messages, anthropicMessage(t.Role, t.Content))
	}
	messages = append(messages, anthropicMessage("user", prompt))

	stream := g.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     anthropic.F(g.model),
		MaxTokens: anthropic.F(int64(4096)),
		Messages:  anthropic.F(messages),
	})

	var content string
	for stream.Next() {
		event := stream.Current()
		if event.Type != anthropic.MessageStreamEventTypeContentBlockDelta {
			continue
		}
		delta, ok := event.Delta.(anthropic.ContentBlockDeltaEventDelta)
		if !ok {
			continue
		}
		if delta.Type == "text_delta" && delta.Text != "" {
			content += delta.Text
			if err := emit(delta.Text); err != nil {
				return "", err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return "", err
	}
	return content, nil
}

func anthropicMessage(role, content string) anthropic.MessageParam {
	return anthropic.MessageParam{
		Role: anthropic.F(anthropic.MessageParamRole(role)),
		Content: anthropic.F([]anthropic.ContentBlockParamUnion{
			anthropic.TextBlockParam{
				Type: anthropic.F(anthropic.TextBlockParamTypeText),
				Text: anthropic.F(content),
			},
		}),
	}
}
