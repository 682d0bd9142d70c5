package triage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"triage_worker/core/port/out"
)

// LabelResolver maps label names to mailbox label ids, creating labels lazily.
// Concurrent resolutions of one name share a single lookup, and a creation
// that loses a race to another writer falls back to re-reading the label list.
type LabelResolver struct {
	group singleflight.Group
	mu    sync.RWMutex
	ids   map[string]string
}

func NewLabelResolver() *LabelResolver {
	return &LabelResolver{ids: make(map[string]string)}
}

// Resolve returns the id of the label named name.
func (r *LabelResolver) Resolve(ctx context.Context, mb out.MailSource, name string) (string, error) {
	r.mu.RLock()
	id, ok := r.ids[name]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}

	v, err, _ := r.group.Do(name, func() (interface{}, error) {
		return r.resolve(ctx, mb, name)
	})
	if err != nil {
		return "", err
	}
	id = v.(string)

	r.mu.Lock()
	r.ids[name] = id
	r.mu.Unlock()
	return id, nil
}

// Forget drops a cached id so the next Resolve reads the mailbox again.
func (r *LabelResolver) Forget(name string) {
	r.mu.Lock()
	delete(r.ids, name)
	r.mu.Unlock()
}

func (r *LabelResolver) resolve(ctx context.Context, mb out.MailSource, name string) (string, error) {
	if id, err := findLabel(ctx, mb, name); err != nil || id != "" {
		return id, err
	}

	created, err := mb.CreateLabel(ctx, name)
	if err == nil {
		return created.ID, nil
	}
	if !isAlreadyExists(err) {
		return "", fmt.Errorf("create label %s: %w", name, err)
	}

	id, err := findLabel(ctx, mb, name)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("label %s reported as existing but not listed", name)
	}
	return id, nil
}

func findLabel(ctx context.Context, mb out.MailSource, name string) (string, error) {
	labels, err := mb.ListLabels(ctx)
	if err != nil {
		return "", fmt.Errorf("list labels: %w", err)
	}
	for _, l := range labels {
		if l.Name == name {
			return l.ID, nil
		}
	}
	return "", nil
}

func providerCode(err error) (out.ProviderErrorCode, bool) {
	var pe *out.ProviderError
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	return "", false
}

func isAlreadyExists(err error) bool {
	code, ok := providerCode(err)
	return ok && code == out.ProviderErrAlreadyExists
}

func isStaleLabel(err error) bool {
	code, ok := providerCode(err)
	return ok && (code == out.ProviderErrNotFound || code == out.ProviderErrInvalidInput)
}
