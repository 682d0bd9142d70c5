// Package ledger records which messages a scan has already claimed.
package ledger

import (
	"context"
	"fmt"
	"time"

	"triage_worker/core/port/out"
	"triage_worker/core/service/common"
)

// DefaultTTL is how long a claim blocks reprocessing of the same message.
const DefaultTTL = 30 * 24 * time.Hour

const claimedValue = "1"

// Ledger is the at-most-once claim store for message IDs.
type Ledger struct {
	kv   out.KVStore
	keys common.Keyspace
	ttl  time.Duration
}

func New(kv out.KVStore, keys common.Keyspace, ttl time.Duration) *Ledger {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Ledger{kv: kv, keys: keys, ttl: ttl}
}

// Claim atomically marks id as taken. It returns false, with no error, when
// another scan already holds the claim.
func (l *Ledger) Claim(ctx context.Context, id string) (bool, error) {
	ok, err := l.kv.Set(ctx, l.keys.Processed(id), claimedValue, out.SetOptions{
		IfNotExists: true,
		TTL:         l.ttl,
	})
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", id, err)
	}
	return ok, nil
}

// ResetAll removes every claim in this environment and returns how many were deleted.
// Operational use only.
func (l *Ledger) ResetAll(ctx context.Context) (int, error) {
	keys, err := l.kv.ScanKeys(ctx, l.keys.ProcessedPattern())
	if err != nil {
		return 0, fmt.Errorf("scan dedup keys: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := l.kv.Delete(ctx, keys...)
	if err != nil {
		return 0, fmt.Errorf("delete dedup keys: %w", err)
	}
	return int(n), nil
}
