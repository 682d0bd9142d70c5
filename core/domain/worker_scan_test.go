package domain

import (
	"bytes"
	"errors"
	"testing"

	"github.com/goccy/go-json"
)

func TestScanSummary_JSON(t *testing.T) {
	var s ScanSummary
	s.Add(DispatchResult{MessageID: "m1", Outcome: OutcomeSkippedDuplicate})
	s.Add(DispatchResult{MessageID: "m2", Outcome: OutcomeLabeled, Label: LabelFYI})
	s.Add(DispatchResult{MessageID: "m3", Outcome: OutcomeFailed, Err: errors.New("boom")})

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(&s); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var decoded ScanSummary
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode failed: %v (%s)", err, buf.String())
	}
	if len(decoded.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(decoded.Results))
	}
	if decoded.Results[0].Label != 0 {
		t.Errorf("expected no label for skipped result, got %v", decoded.Results[0].Label)
	}
	if decoded.Results[1].Label != LabelFYI {
		t.Errorf("expected FYI, got %v", decoded.Results[1].Label)
	}
	if decoded.Results[2].Error != "boom" {
		t.Errorf("expected error text, got %q", decoded.Results[2].Error)
	}
	if decoded.ProcessedCount != 1 || decoded.SkippedCount != 1 || decoded.FailedCount != 1 {
		t.Errorf("unexpected counts %+v", decoded)
	}
}

func TestTriageLabel_Text(t *testing.T) {
	tests := []struct {
		label   TriageLabel
		want    string
		wantErr bool
	}{
		{0, "", false},
		{LabelActionRequired, "ACTION_REQUIRED", false},
		{LabelUncategorized, "UNCATEGORIZED", false},
		{TriageLabel(200), "", true},
	}
	for _, tt := range tests {
		got, err := tt.label.MarshalText()
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidLabel) {
				t.Errorf("expected ErrInvalidLabel for %d, got %v", uint8(tt.label), err)
			}
			continue
		}
		if err != nil || string(got) != tt.want {
			t.Errorf("expected %q, got %q (%v)", tt.want, got, err)
		}
	}

	var l TriageLabel
	if err := l.UnmarshalText([]byte(" FYI ")); !errors.Is(err, ErrInvalidLabel) {
		t.Errorf("expected padded name to be rejected, got %v", err)
	}
}
