package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidLabel is returned when a value outside the closed label set is parsed.
var ErrInvalidLabel = errors.New("invalid triage label")

// TriageLabel is one of the fixed labels the classifier may assign.
// The zero value is not a valid label.
type TriageLabel uint8

const (
	LabelActionRequired TriageLabel = iota + 1
	LabelFYI
	LabelTransactional
	LabelNewsletter
	LabelSpamLowPriority
	LabelUncategorized
)

// LabelDefinition pairs a label with the rationale shown to the model.
type LabelDefinition struct {
	Label  TriageLabel
	Reason string
}

// labelDefinitions is ordered; prompt and schema rendering depend on this order.
var labelDefinitions = []LabelDefinition{
	{LabelActionRequired, "requires a response, decision, approval, or task completion"},
	{LabelFYI, "informational, no action needed"},
	{LabelTransactional, "automated system emails (receipts, alerts, notifications, CI/CD, GitHub)"},
	{LabelNewsletter, "subscribed content, digests, marketing"},
	{LabelSpamLowPriority, "unsolicited outreach, cold sales, junk"},
	{LabelUncategorized, "does not clearly fit any label above"},
}

var labelNames = map[TriageLabel]string{
	LabelActionRequired:  "ACTION_REQUIRED",
	LabelFYI:             "FYI",
	LabelTransactional:   "TRANSACTIONAL",
	LabelNewsletter:      "NEWSLETTER",
	LabelSpamLowPriority: "SPAM_LOW_PRIORITY",
	LabelUncategorized:   "UNCATEGORIZED",
}

// LabelDefinitions returns the closed label set in prompt order.
func LabelDefinitions() []LabelDefinition {
	out := make([]LabelDefinition, len(labelDefinitions))
	copy(out, labelDefinitions)
	return out
}

// LabelNames returns the wire names of every label in prompt order.
func LabelNames() []string {
	names := make([]string, len(labelDefinitions))
	for i, def := range labelDefinitions {
		names[i] = def.Label.String()
	}
	return names
}

// ParseTriageLabel maps a wire name to a label. It never falls back to a default.
func ParseTriageLabel(s string) (TriageLabel, error) {
	for label, name := range labelNames {
		if name == s {
			return label, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidLabel, s)
}

func (l TriageLabel) String() string {
	if name, ok := labelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("TriageLabel(%d)", uint8(l))
}

// Valid reports whether l is a member of the closed set.
func (l TriageLabel) Valid() bool {
	_, ok := labelNames[l]
	return ok
}

// MarshalText encodes the zero label (no label assigned) as an empty string.
func (l TriageLabel) MarshalText() ([]byte, error) {
	if l == 0 {
		return []byte{}, nil
	}
	if !l.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLabel, uint8(l))
	}
	return []byte(l.String()), nil
}

func (l *TriageLabel) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*l = 0
		return nil
	}
	parsed, err := ParseTriageLabel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// MailLabel is a label resource owned by the mail system.
type MailLabel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsSystem bool   `json:"is_system"`
}
