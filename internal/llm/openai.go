package llm

import (
	"context"
	"errors"
	"io"

	"github.com/sashabaranov/go-openai"
)

const openaiDefaultModel = "gpt-4o"

// OpenAIGenerator streams replies from the OpenAI chat completions
// API.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator creates an OpenAI-backed generator.
func NewOpenAIGenerator(apiKey string) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("openai API key is required")
	}
	return &OpenAIGenerator{
		client: openai.NewClient(apiKey),
		model:  openaiDefaultModel,
	}, nil
}

// Name returns the provider name.
func (g *OpenAIGenerator) Name() string {
	return "openai"
}

// Stream sends the conversation plus prompt and relays content deltas.
func (g *OpenAIGenerator) Stream(ctx context.Context, turns []Turn, prompt string, emit EmitFunc) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	for _, t := range turns {
		messages = append(messages, openai.ChatCompletionMessage{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	stream, err := g.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    g.model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var content string
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		if len(response.Choices) == 0 {
			continue
		}
		delta := response.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		content += delta
		if err := emit(delta); err != nil {
			return "", err
		}
	}
	return content, nil
}
