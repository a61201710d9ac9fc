// Package llm generates assistant replies for the dev backend. A
// generator streams its reply as deltas; the transport layer decides
// how those deltas reach the wire.
package llm

import (
	"context"
	"fmt"
)

// EmitFunc receives one reply delta. Returning an error aborts the
// generation.
type EmitFunc func(delta string) error

// Turn is one prior message handed to the generator as context.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generator produces a streamed assistant reply for a prompt.
type Generator interface {
	// Stream generates the reply for prompt given the prior turns,
	// calling emit for each delta, and returns the full reply text.
	Stream(ctx context.Context, turns []Turn, prompt string, emit EmitFunc) (string, error)

	// Name returns the provider name.
	Name() string
}

// Provider selects the generator implementation.
type Provider string

const (
	ProviderScripted  Provider = "scripted"
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// New creates a generator for the provider. The scripted generator
// needs no key and is the default for local development.
func New(provider Provider, anthropicKey, openaiKey string) (Generator, error) {
	switch provider {
	case ProviderAnthropic:
		return NewAnthropicGenerator(anthropicKey)
	case ProviderOpenAI:
		return NewOpenAIGenerator(openaiKey)
	case ProviderScripted, "":
		return NewScriptedGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}
