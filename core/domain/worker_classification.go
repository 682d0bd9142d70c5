package domain

// Classification is the classifier's verdict for one message.
// Reasoning is diagnostic only and is never persisted.
type Classification struct {
	Label     TriageLabel `json:"label"`
	Reasoning string      `json:"reasoning"`
}
