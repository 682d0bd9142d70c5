package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"triage_worker/core/port/out"
	"triage_worker/pkg/apperr"
)

// =============================================================================
// Content-addressed response cache
// =============================================================================

// CacheObserver receives hit and miss notifications, typically for metrics.
type CacheObserver interface {
	CacheHit()
	CacheMiss()
}

type nopObserver struct{}

func (nopObserver) CacheHit()  {}
func (nopObserver) CacheMiss() {}

// Fingerprint returns the hex SHA-256 of the JSON encoding of req.
// Struct fields encode in declaration order and map keys sorted, so equal
// requests always produce equal fingerprints.
func Fingerprint(req any) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("serialize request: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Memoizer wraps a call with a cache keyed by the fingerprint of its request.
// onHit adjusts a decoded response before it is returned from cache.
// Concurrent misses on one fingerprint share a single call.
type Memoizer[Req, Resp any] struct {
	store    out.ResponseCache
	inflight singleflight.Group
	call     func(context.Context, Req) (Resp, error)
	onHit    func(Resp) Resp
	observer CacheObserver
	log      zerolog.Logger
}

func NewMemoizer[Req, Resp any](
	store out.ResponseCache,
	call func(context.Context, Req) (Resp, error),
	onHit func(Resp) Resp,
	observer CacheObserver,
	log zerolog.Logger,
) *Memoizer[Req, Resp] {
	if observer == nil {
		observer = nopObserver{}
	}
	if onHit == nil {
		onHit = func(r Resp) Resp { return r }
	}
	return &Memoizer[Req, Resp]{
		store:    store,
		call:     call,
		onHit:    onHit,
		observer: observer,
		log:      log,
	}
}

// Do returns the cached response for req, or invokes the wrapped call and stores
// its result with no expiry. A miss returns the live response unmodified to the
// caller that made the call; callers that waited on it get a cache-hit copy.
func (m *Memoizer[Req, Resp]) Do(ctx context.Context, req Req) (Resp, error) {
	var zero Resp

	key, err := Fingerprint(req)
	if err != nil {
		return zero, err
	}

	cached, err := m.lookup(ctx, key)
	if err == nil {
		m.observer.CacheHit()
		m.log.Debug().Str("fingerprint", key).Msg("llm cache hit")
		return m.onHit(cached), nil
	}
	if !errors.Is(err, errCacheMiss) {
		m.log.Warn().Err(err).Str("fingerprint", key).Msg("llm cache read failed, calling through")
	}
	m.observer.CacheMiss()

	led := false
	v, err, _ := m.inflight.Do(key, func() (any, error) {
		led = true
		return m.fill(ctx, key, req)
	})
	if err != nil {
		return zero, err
	}
	res := v.(filled[Resp])
	if led || res.data == nil {
		return res.resp, nil
	}
	// Waiters decode their own copy so onHit never touches the caller's response.
	var shared Resp
	if err := json.Unmarshal(res.data, &shared); err != nil {
		return res.resp, nil
	}
	return m.onHit(shared), nil
}

type filled[Resp any] struct {
	resp Resp
	data []byte
}

// fill invokes the wrapped call and stores its result with no expiry.
func (m *Memoizer[Req, Resp]) fill(ctx context.Context, key string, req Req) (filled[Resp], error) {
	resp, err := m.call(ctx, req)
	if err != nil {
		return filled[Resp]{}, err
	}

	data, err := json.Marshal(resp)
	if err != nil {
		m.log.Warn().Err(err).Msg("llm cache encode failed")
		return filled[Resp]{resp: resp}, nil
	}
	if err := m.store.Set(ctx, key, data); err != nil {
		m.log.Warn().Err(err).Str("fingerprint", key).Msg("llm cache write failed")
	}
	return filled[Resp]{resp: resp, data: data}, nil
}

var errCacheMiss = errors.New("cache miss")

func (m *Memoizer[Req, Resp]) lookup(ctx context.Context, key string) (Resp, error) {
	var resp Resp
	data, ok, err := m.store.Get(ctx, key)
	if err != nil {
		return resp, err
	}
	if !ok {
		return resp, errCacheMiss
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return resp, fmt.Errorf("%w: %v", apperr.ErrCacheCorrupt, err)
	}
	return resp, nil
}

// =============================================================================
// Cached generator
// =============================================================================

// CachedGenerator memoizes a Generator. Responses served from cache report
// zero usage since no tokens were spent.
type CachedGenerator struct {
	memo *Memoizer[out.GenerateRequest, *out.GenerateResponse]
}

var _ out.Generator = (*CachedGenerator)(nil)

func NewCachedGenerator(next out.Generator, store out.ResponseCache, observer CacheObserver, log zerolog.Logger) *CachedGenerator {
	return &CachedGenerator{
		memo: NewMemoizer(store, next.Generate, zeroUsage, observer, log),
	}
}

func (g *CachedGenerator) Generate(ctx context.Context, req out.GenerateRequest) (*out.GenerateResponse, error) {
	return g.memo.Do(ctx, req)
}

func zeroUsage(resp *out.GenerateResponse) *out.GenerateResponse {
	if resp == nil {
		return nil
	}
	resp.Usage = out.Usage{}
	return resp
}
