package out

import (
	"context"
	"time"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// GenerateRequest is a structured-output generation call. Every field
// participates in the response cache fingerprint.
type GenerateRequest struct {
	Model       string                `json:"model"`
	System      string                `json:"system,omitempty"`
	Prompt      string                `json:"prompt"`
	SchemaName  string                `json:"schema_name"`
	Schema      jsonschema.Definition `json:"schema"`
	Temperature float32               `json:"temperature"`
	MaxTokens   int                   `json:"max_tokens,omitempty"`
}

// Usage reports token accounting for one generation.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// GenerateResponse is the model's reply. Content is the raw JSON object text.
type GenerateResponse struct {
	ID           string    `json:"id"`
	Model        string    `json:"model"`
	Content      string    `json:"content"`
	FinishReason string    `json:"finish_reason"`
	Usage        Usage     `json:"usage"`
	Timestamp    time.Time `json:"timestamp"`
}

// Generator defines the outbound port for a language model backend.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}
