package classification

import (
	"context"
	"errors"
	"strings"
	"testing"

	"triage_worker/core/domain"
	"triage_worker/core/port/out"
	"triage_worker/pkg/apperr"
)

type stubGenerator struct {
	content string
	err     error
	last    out.GenerateRequest
	reply   func(req out.GenerateRequest) string
}

func (g *stubGenerator) Generate(_ context.Context, req out.GenerateRequest) (*out.GenerateResponse, error) {
	g.last = req
	if g.err != nil {
		return nil, g.err
	}
	content := g.content
	if g.reply != nil {
		content = g.reply(req)
	}
	return &out.GenerateResponse{Content: content}, nil
}

func TestClassify(t *testing.T) {
	email := &domain.Email{From: "sales@x.io", Subject: "Quick question...", Text: "15 minutes on your calendar?"}

	tests := []struct {
		name        string
		content     string
		genErr      error
		expected    domain.TriageLabel
		wantErr     bool
		wantInvalid bool
	}{
		{"valid label", `{"label":"SPAM_LOW_PRIORITY","reasoning":"cold outreach"}`, nil, domain.LabelSpamLowPriority, false, false},
		{"surrounding whitespace", `{"label":" FYI ","reasoning":""}`, nil, 0, true, true},
		{"label outside set", `{"label":"URGENT","reasoning":"?"}`, nil, 0, true, true},
		{"lowercase label", `{"label":"fyi","reasoning":"?"}`, nil, 0, true, true},
		{"empty label", `{"reasoning":"?"}`, nil, 0, true, true},
		{"malformed json", `label: FYI`, nil, 0, true, false},
		{"generator error", "", errors.New("429 too many requests"), 0, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(&stubGenerator{content: tt.content, err: tt.genErr}, Config{Model: "m"})
			got, err := c.Classify(context.Background(), email)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got label %v", got.Label)
				}
				if !errors.Is(err, apperr.ErrClassification) {
					t.Errorf("expected ErrClassification, got %v", err)
				}
				if tt.wantInvalid && !errors.Is(err, domain.ErrInvalidLabel) {
					t.Errorf("expected ErrInvalidLabel, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Label != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got.Label)
			}
		})
	}
}

func TestRequestIsDeterministic(t *testing.T) {
	gen := &stubGenerator{content: `{"label":"FYI","reasoning":""}`}
	c := NewClassifier(gen, Config{Model: "gpt-4o-mini", Temperature: 0, MaxTokens: 256})
	email := &domain.Email{From: "a@b.c", Subject: "s", Text: "t"}

	r1 := c.Request(email)
	r2 := c.Request(email)
	if r1.Prompt != r2.Prompt {
		t.Error("expected identical prompts")
	}

	c.Classify(context.Background(), email)
	if gen.last.Model != "gpt-4o-mini" || gen.last.MaxTokens != 256 {
		t.Errorf("expected config to flow into request, got %+v", gen.last)
	}
	if gen.last.SchemaName != schemaName {
		t.Errorf("expected schema name %s, got %s", schemaName, gen.last.SchemaName)
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt(&domain.Email{Subject: "Invoice #42", Text: "Your receipt"})

	for _, name := range domain.LabelNames() {
		if !strings.Contains(prompt, "**"+name+"**") {
			t.Errorf("expected prompt to list %s", name)
		}
	}
	for _, want := range []string{"exactly ONE label", "From: Unknown", "Subject: Invoice #42", "Body: Your receipt"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("expected prompt to contain %q", want)
		}
	}
}

func TestSchemaEnumMatchesLabels(t *testing.T) {
	s := Schema()
	enum := s.Properties["label"].Enum
	if len(enum) != 6 {
		t.Fatalf("expected 6 labels, got %v", enum)
	}
	for _, v := range enum {
		if _, err := domain.ParseTriageLabel(v); err != nil {
			t.Errorf("schema enum value %q does not parse: %v", v, err)
		}
	}
	if s.AdditionalProperties != false {
		t.Error("expected additionalProperties=false for strict mode")
	}
}

func TestTruncateBody(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		maxLen   int
		expected string
	}{
		{"short body", "Hello world", 100, "Hello world"},
		{"exact length", "Hello", 5, "Hello"},
		{"truncated", "Hello world, this is a long message", 10, "Hello worl..."},
		{"multibyte", "안녕하세요 세계", 5, "안녕하세요..."},
		{"empty body", "", 100, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncateBody(tt.body, tt.maxLen); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	cases := EvalCases()
	if len(cases) != 8 {
		t.Fatalf("expected 8 fixture cases, got %d", len(cases))
	}

	// answers every case correctly except the GitHub notification
	gen := &stubGenerator{reply: func(req out.GenerateRequest) string {
		for _, tc := range cases {
			if strings.Contains(req.Prompt, "Subject: "+tc.Email.Subject+"\n") {
				if tc.Email.From == "noreply@github.com" {
					return `{"label":"NOT_A_LABEL","reasoning":""}`
				}
				return `{"label":"` + tc.Expected.String() + `","reasoning":""}`
			}
		}
		return `{}`
	}}

	report, err := NewClassifier(gen, Config{}).Evaluate(context.Background(), cases)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Score != 7.0/8.0 {
		t.Errorf("expected score 0.875, got %v", report.Score)
	}
	if report.Rows[2].Output != "ERROR" || report.Rows[2].Err == nil {
		t.Errorf("expected failed row for invalid label, got %+v", report.Rows[2])
	}
	if got := report.Rows[0].Input; got != "boss@company.com Urgent: Need your approval on the" {
		t.Errorf("expected 50-char input column, got %q", got)
	}
	if !strings.Contains(report.String(), "score: 0.88") {
		t.Errorf("expected score line, got %s", report.String())
	}
}
