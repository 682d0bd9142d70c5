package domain

import "time"

// Outcome is the terminal state of a single message dispatch.
type Outcome string

const (
	OutcomeLabeled                   Outcome = "LABELED"
	OutcomeDryRunComplete            Outcome = "DRY_RUN_COMPLETE"
	OutcomeSkippedDuplicate          Outcome = "SKIPPED_DUPLICATE"
	OutcomeSkippedMultiMessageThread Outcome = "SKIPPED_MULTI_MESSAGE_THREAD"
	OutcomeSkippedAlreadyLabeled     Outcome = "SKIPPED_ALREADY_LABELED"
	OutcomeClassificationFailed      Outcome = "CLASSIFICATION_FAILED"
	OutcomeFailed                    Outcome = "FAILED"
)

// IsSkip reports whether the outcome is a counted skip rather than work or failure.
func (o Outcome) IsSkip() bool {
	switch o {
	case OutcomeSkippedDuplicate, OutcomeSkippedMultiMessageThread, OutcomeSkippedAlreadyLabeled:
		return true
	}
	return false
}

// IsFailure reports whether the message was left unprocessed because of an error.
func (o Outcome) IsFailure() bool {
	return o == OutcomeClassificationFailed || o == OutcomeFailed
}

// DispatchResult is what the dispatcher reports for one candidate.
type DispatchResult struct {
	MessageID string      `json:"id"`
	Outcome   Outcome     `json:"outcome"`
	Label     TriageLabel `json:"label,omitempty"`
	Subject   string      `json:"-"`
	Err       error       `json:"-"`
	Error     string      `json:"error,omitempty"`
}

// ScanSummary folds the dispatch results of one scan.
type ScanSummary struct {
	ScanID         string           `json:"scan_id"`
	StartedAt      time.Time        `json:"started_at"`
	Since          time.Time        `json:"since"`
	Candidates     int              `json:"candidates"`
	ProcessedCount int              `json:"processed_count"`
	DryRunCount    int              `json:"dry_run_count"`
	SkippedCount   int              `json:"skipped_count"`
	FailedCount    int              `json:"failed_count"`
	Results        []DispatchResult `json:"results,omitempty"`
}

// Add folds one dispatch result into the summary.
func (s *ScanSummary) Add(r DispatchResult) {
	if r.Err != nil && r.Error == "" {
		r.Error = r.Err.Error()
	}
	s.Results = append(s.Results, r)
	switch {
	case r.Outcome == OutcomeLabeled:
		s.ProcessedCount++
	case r.Outcome == OutcomeDryRunComplete:
		s.DryRunCount++
	case r.Outcome.IsSkip():
		s.SkippedCount++
	case r.Outcome.IsFailure():
		s.FailedCount++
	}
}
