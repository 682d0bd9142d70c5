package triage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"triage_worker/core/domain"
	"triage_worker/core/port/out"
)

type fakeMessage struct {
	id       string
	threadID string
	subject  string
	labelIDs []string
}

// fakeMailbox is an in-memory mailbox. Messages are returned by ListMessages
// in insertion order regardless of the query.
type fakeMailbox struct {
	mu       sync.Mutex
	order    []string
	messages map[string]*fakeMessage
	labels   []domain.MailLabel
	nextID   int

	queries     []string
	createCalls int
	listLabels  int

	listErr   error
	threadErr map[string]error
	rawErr    map[string]error
	addErr    error
	createErr error
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{
		messages: make(map[string]*fakeMessage),
		labels: []domain.MailLabel{
			{ID: "INBOX", Name: "INBOX", IsSystem: true},
			{ID: "UNREAD", Name: "UNREAD", IsSystem: true},
			{ID: "IMPORTANT", Name: "IMPORTANT", IsSystem: true},
		},
		threadErr: make(map[string]error),
		rawErr:    make(map[string]error),
	}
}

func (f *fakeMailbox) add(id, threadID, subject string, labelIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if threadID == "" {
		threadID = "t-" + id
	}
	if len(labelIDs) == 0 {
		labelIDs = []string{"INBOX", "UNREAD"}
	}
	f.order = append(f.order, id)
	f.messages[id] = &fakeMessage{id: id, threadID: threadID, subject: subject, labelIDs: labelIDs}
}

func (f *fakeMailbox) addUserLabel(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labels = append(f.labels, domain.MailLabel{ID: id, Name: name})
}

func (f *fakeMailbox) labelsOf(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := append([]string(nil), f.messages[id].labelIDs...)
	sort.Strings(ids)
	return ids
}

func (f *fakeMailbox) ListMessages(_ context.Context, query string, limit int) ([]domain.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.listErr != nil {
		return nil, f.listErr
	}
	var refs []domain.MessageRef
	for _, id := range f.order {
		if len(refs) == limit {
			break
		}
		refs = append(refs, domain.MessageRef{ID: id, ThreadID: f.messages[id].threadID})
	}
	return refs, nil
}

func (f *fakeMailbox) GetThreadMeta(_ context.Context, threadID string) (*domain.ThreadMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.threadErr[threadID]; err != nil {
		return nil, err
	}
	meta := &domain.ThreadMeta{ThreadID: threadID}
	for _, id := range f.order {
		if f.messages[id].threadID == threadID {
			meta.MessageCount++
			meta.LatestMessageID = id
		}
	}
	return meta, nil
}

func (f *fakeMailbox) GetRawMessage(_ context.Context, messageID string) (*domain.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.rawErr[messageID]; err != nil {
		return nil, err
	}
	m, ok := f.messages[messageID]
	if !ok {
		return nil, out.NewProviderError("fake", out.ProviderErrNotFound, "no message", nil, false)
	}
	return &domain.RawMessage{
		ID:       m.id,
		ThreadID: m.threadID,
		Raw:      []byte(m.subject),
		LabelIDs: append([]string(nil), m.labelIDs...),
	}, nil
}

func (f *fakeMailbox) ListLabels(_ context.Context) ([]domain.MailLabel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listLabels++
	return append([]domain.MailLabel(nil), f.labels...), nil
}

func (f *fakeMailbox) CreateLabel(_ context.Context, name string) (*domain.MailLabel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	for _, l := range f.labels {
		if l.Name == name {
			return nil, out.NewProviderError("fake", out.ProviderErrAlreadyExists, "label exists", nil, false)
		}
	}
	f.nextID++
	l := domain.MailLabel{ID: fmt.Sprintf("Label_%d", f.nextID), Name: name}
	f.labels = append(f.labels, l)
	return &l, nil
}

func (f *fakeMailbox) AddLabels(_ context.Context, messageID string, labelIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	m, ok := f.messages[messageID]
	if !ok {
		return out.NewProviderError("fake", out.ProviderErrNotFound, "no message", nil, false)
	}
	for _, id := range labelIDs {
		known := false
		for _, l := range f.labels {
			if l.ID == id {
				known = true
				break
			}
		}
		if !known {
			return out.NewProviderError("fake", out.ProviderErrInvalidInput, "unknown label "+id, nil, false)
		}
		m.labelIDs = append(m.labelIDs, id)
	}
	return nil
}

// fakeClassifier picks the label by subject keyword and counts calls.
type fakeClassifier struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *fakeClassifier) Classify(_ context.Context, email *domain.Email) (*domain.Classification, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	if strings.Contains(email.Subject, "FAIL") {
		return nil, fmt.Errorf("model returned garbage")
	}
	label := domain.LabelFYI
	switch {
	case strings.Contains(email.Subject, "invoice"):
		label = domain.LabelTransactional
	case strings.Contains(email.Subject, "urgent"):
		label = domain.LabelActionRequired
	case strings.Contains(email.Subject, "digest"):
		label = domain.LabelNewsletter
	}
	return &domain.Classification{Label: label, Reasoning: "keyword"}, nil
}

func (c *fakeClassifier) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func subjectParser(raw []byte) (*domain.Email, error) {
	return &domain.Email{Subject: string(raw), From: "sender@example.com", Text: string(raw)}, nil
}
