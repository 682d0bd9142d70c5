package out

import (
	"context"
	"time"
)

// SetOptions controls conditional writes and expiry on a KV store.
type SetOptions struct {
	// IfNotExists makes the write succeed only when the key is absent.
	IfNotExists bool
	// TTL of zero means no expiry.
	TTL time.Duration
}

// KVStore defines the outbound port for the key-value backend holding
// dedup markers, the scan watermark and the OAuth refresh token.
type KVStore interface {
	// Get returns ok=false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set returns false only when IfNotExists was requested and the key already existed.
	Set(ctx context.Context, key, value string, opts SetOptions) (bool, error)
	Delete(ctx context.Context, keys ...string) (int64, error)
	// ScanKeys returns every key matching a glob pattern.
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
}

// ResponseCache is the storage-agnostic backend of the LLM response cache.
// Entries never expire.
type ResponseCache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
}
