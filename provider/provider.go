// Package provider abstracts the text generator a record attests to.
package provider

import "context"

// Generation is one completed model invocation.
type Generation struct {
	// Output is the generated text.
	Output string
	// ModelID names the model in "<vendor>:<model>" or plain form.
	ModelID string
	// ModelConfig is the text whose digest becomes the record's modelHash.
	// Empty means the configuration is proprietary and the hash degrades to
	// the zero digest.
	ModelConfig string
}

// Provider runs a generation for a prompt.
type Provider interface {
	Generate(ctx context.Context, prompt string) (*Generation, error)
}
