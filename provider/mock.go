package provider

import (
	"context"
	"strings"
)

// MockModelID names the deterministic local generator.
const MockModelID = "mock-local"

// MockModelConfig is the public configuration string of the mock model.
const MockModelConfig = "mock-local-v1"

// Mock is a deterministic offline generator. Used as the fallback when no
// real provider is configured and in tests.
type Mock struct{}

func (Mock) Generate(ctx context.Context, prompt string) (*Generation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	subject := prompt
	if i := strings.Index(prompt, "\n\n"); i >= 0 {
		subject = prompt[i+2:]
	}
	subject = strings.TrimSpace(subject)

	words := strings.Fields(subject)
	if len(words) > 24 {
		words = words[:24]
	}
	out := "Summary: " + strings.Join(words, " ")

	return &Generation{
		Output:      out,
		ModelID:     MockModelID,
		ModelConfig: MockModelConfig,
	}, nil
}
