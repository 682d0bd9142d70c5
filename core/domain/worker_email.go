package domain

import "time"

// MessageRef is a message identifier as returned by a mailbox query.
type MessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
}

// ThreadMeta summarizes a thread without fetching message bodies.
type ThreadMeta struct {
	ThreadID        string `json:"thread_id"`
	MessageCount    int    `json:"message_count"`
	LatestMessageID string `json:"latest_message_id"`
}

// RawMessage is the undecoded RFC 5322 content of a message plus its current labels.
type RawMessage struct {
	ID       string   `json:"id"`
	ThreadID string   `json:"thread_id"`
	Raw      []byte   `json:"-"`
	LabelIDs []string `json:"label_ids"`
}

// Email is a parsed message as handed to the classifier.
type Email struct {
	MessageID string    `json:"message_id,omitempty"`
	From      string    `json:"from"`
	To        []string  `json:"to,omitempty"`
	Subject   string    `json:"subject"`
	Date      time.Time `json:"date,omitempty"`
	Text      string    `json:"text"`
	HTML      string    `json:"html,omitempty"`
}
