// Package classification assigns a triage label to an email with a language model.
package classification

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/sashabaranov/go-openai/jsonschema"

	"triage_worker/core/domain"
	"triage_worker/core/port/out"
	"triage_worker/pkg/apperr"
)

// =============================================================================
// LLM Classifier
// =============================================================================

const (
	schemaName = "email_triage_label"

	// maxBodyRunes bounds the body embedded in the prompt.
	maxBodyRunes = 12000
)

// Config tunes the generation request.
type Config struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// Classifier maps an email to exactly one TriageLabel.
type Classifier struct {
	gen out.Generator
	cfg Config
}

func NewClassifier(gen out.Generator, cfg Config) *Classifier {
	return &Classifier{gen: gen, cfg: cfg}
}

type labelOutput struct {
	Label     string `json:"label"`
	Reasoning string `json:"reasoning"`
}

// Classify returns the model's label and reasoning. A failed call or a label
// outside the closed set is reported as ErrClassification; there is no fallback label.
func (c *Classifier) Classify(ctx context.Context, email *domain.Email) (*domain.Classification, error) {
	resp, err := c.gen.Generate(ctx, c.Request(email))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrClassification, err)
	}
	return ParseOutput(resp.Content)
}

// Request builds the deterministic generation request for email.
func (c *Classifier) Request(email *domain.Email) out.GenerateRequest {
	return out.GenerateRequest{
		Model:       c.cfg.Model,
		Prompt:      BuildPrompt(email),
		SchemaName:  schemaName,
		Schema:      Schema(),
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
}

// ParseOutput decodes the model's JSON object and validates the label.
func ParseOutput(content string) (*domain.Classification, error) {
	var raw labelOutput
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("%w: malformed output: %v", apperr.ErrClassification, err)
	}
	label, err := domain.ParseTriageLabel(raw.Label)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrClassification, err)
	}
	return &domain.Classification{Label: label, Reasoning: raw.Reasoning}, nil
}

// Schema is the closed-world output schema: one enum label plus free-text reasoning.
func Schema() jsonschema.Definition {
	return jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"label": {
				Type: jsonschema.String,
				Enum: domain.LabelNames(),
			},
			"reasoning": {
				Type:        jsonschema.String,
				Description: "one or two sentences explaining the choice",
			},
		},
		Required:             []string{"label", "reasoning"},
		AdditionalProperties: false,
	}
}

// BuildPrompt renders the classification prompt. Output depends only on the
// email fields, so equal emails share a cache entry.
func BuildPrompt(email *domain.Email) string {
	var b strings.Builder
	b.WriteString("# Email Classification Prompt\n\n")
	b.WriteString("Classify the email into exactly ONE label:\n\n")
	for _, def := range domain.LabelDefinitions() {
		fmt.Fprintf(&b, "- **%s** - %s\n", def.Label, def.Reason)
	}

	from := email.From
	if from == "" {
		from = "Unknown"
	}
	b.WriteString("\nThe email is:\n\n")
	fmt.Fprintf(&b, "From: %s\n", from)
	fmt.Fprintf(&b, "Subject: %s\n", email.Subject)
	fmt.Fprintf(&b, "Body: %s\n", truncateBody(email.Text, maxBodyRunes))
	return b.String()
}

func truncateBody(body string, maxLen int) string {
	if utf8.RuneCountInString(body) <= maxLen {
		return body
	}
	runes := []rune(body)
	return string(runes[:maxLen]) + "..."
}
