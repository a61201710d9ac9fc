package llm

import (
	"context"
	"fmt"
	"time"
)

// ScriptedGenerator echoes a canned reply built from the prompt,
// streamed in small chunks with a short pause between them. It exists
// so the backend works end to end without any API key.
type ScriptedGenerator struct {
	chunkSize int
	delay     time.Duration
}

// NewScriptedGenerator creates the default local generator.
func NewScriptedGenerator() *ScriptedGenerator {
	return &ScriptedGenerator{chunkSize: 12, delay: 30 * time.Millisecond}
}

// Name returns the provider name.
func (g *ScriptedGenerator) Name() string {
	return "scripted"
}

// Stream emits the canned reply in fixed-size chunks.
func (g *ScriptedGenerator) Stream(ctx context.Context, turns []Turn, prompt string, emit EmitFunc) (string, error) {
	reply := fmt.Sprintf("You said: %q. This is a scripted reply from the dev backend (%d prior turns).", prompt, len(turns))

	for i := 0; i < len(reply); i += g.chunkSize {
		end := i + g.chunkSize
		if end > len(reply) {
			end = len(reply)
		}
		if err := emit(reply[i:end]); err != nil {
			return "", err
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(g.delay):
		}
	}
	return reply, nil
}
