// Package watermark stores the scan cursor.
package watermark

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"triage_worker/core/port/out"
	"triage_worker/core/service/common"
)

// Store holds the single "last processed" timestamp, in epoch seconds.
// Writes are last-write-wins.
type Store struct {
	kv   out.KVStore
	keys common.Keyspace
}

func New(kv out.KVStore, keys common.Keyspace) *Store {
	return &Store{kv: kv, keys: keys}
}

// Read returns the stored cursor, or def when none is stored.
func (s *Store) Read(ctx context.Context, def time.Time) (time.Time, error) {
	raw, ok, err := s.kv.Get(ctx, s.keys.Watermark())
	if err != nil {
		return time.Time{}, fmt.Errorf("read watermark: %w", err)
	}
	if !ok {
		return def, nil
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse watermark %q: %w", raw, err)
	}
	return time.Unix(secs, 0), nil
}

// Advance overwrites the cursor unconditionally.
func (s *Store) Advance(ctx context.Context, ts time.Time) error {
	val := strconv.FormatInt(ts.Unix(), 10)
	if _, err := s.kv.Set(ctx, s.keys.Watermark(), val, out.SetOptions{}); err != nil {
		return fmt.Errorf("advance watermark: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.kv.Delete(ctx, s.keys.Watermark()); err != nil {
		return fmt.Errorf("clear watermark: %w", err)
	}
	return nil
}
