package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	openAIDefaultBase  = "https://api.openai.com/v1"
	openAIDefaultModel = "gpt-4o-mini"
)

// OpenAI invokes the OpenAI chat completions API.
//
// ModelConfig is left empty on generations: the hosted configuration is
// proprietary, so records produced through this provider carry a zero
// modelHash.
type OpenAI struct {
	// APIKey authorizes requests. Required.
	APIKey string
	// Model overrides the default model name when non-empty.
	Model string
	// BaseURL overrides the API base when non-empty.
	BaseURL string
	// HTTPClient overrides the default client when non-nil.
	HTTPClient *http.Client
}

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (o *OpenAI) Generate(ctx context.Context, prompt string) (*Generation, error) {
	if o.APIKey == "" {
		return nil, fmt.Errorf("provider: openai: missing API key")
	}
	model := o.Model
	if model == "" {
		model = openAIDefaultModel
	}
	base := o.BaseURL
	if base == "" {
		base = openAIDefaultBase
	}

	body, err := json.Marshal(openAIRequest{
		Model: model,
		Messages: []openAIMessage{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.APIKey)

	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider: openai: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("provider: openai: read response: %w", err)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("provider: openai: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return nil, fmt.Errorf("provider: openai: %s", parsed.Error.Message)
		}
		return nil, fmt.Errorf("provider: openai: status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("provider: openai: empty response")
	}

	return &Generation{
		Output:      parsed.Choices[0].Message.Content,
		ModelID:     "openai:" + model,
		ModelConfig: "",
	}, nil
}
