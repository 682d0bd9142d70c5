package cache

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"triage_worker/core/port/out"
)

// scanCount is the COUNT hint passed to each SCAN round trip.
const scanCount = 100

// RedisKV Redis 기반 KV 저장소
type RedisKV struct {
	client redis.UniversalClient
}

var _ out.KVStore = (*RedisKV)(nil)

// NewRedisKV 새 Redis KV 생성
func NewRedisKV(client redis.UniversalClient) *RedisKV {
	return &RedisKV{client: client}
}

// Get 값 조회. 키가 없으면 ok=false
func (c *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set 값 저장. IfNotExists면 SET NX 한 번으로 원자적으로 처리
func (c *RedisKV) Set(ctx context.Context, key, value string, opts out.SetOptions) (bool, error) {
	if opts.IfNotExists {
		return c.client.SetNX(ctx, key, value, opts.TTL).Result()
	}
	if err := c.client.Set(ctx, key, value, opts.TTL).Err(); err != nil {
		return false, err
	}
	return true, nil
}

// Delete 키 삭제
func (c *RedisKV) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return c.client.Del(ctx, keys...).Result()
}

// ScanKeys SCAN MATCH 커서 루프
func (c *RedisKV) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := c.client.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// Ping 연결 확인
func (c *RedisKV) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// =============================================================================
// LLM response cache
// =============================================================================

// RedisResponseCache stores LLM responses under <prefix><fingerprint> with no expiry.
type RedisResponseCache struct {
	client redis.UniversalClient
	prefix string
}

var _ out.ResponseCache = (*RedisResponseCache)(nil)

func NewRedisResponseCache(client redis.UniversalClient, prefix string) *RedisResponseCache {
	return &RedisResponseCache{client: client, prefix: prefix}
}

func (c *RedisResponseCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (c *RedisResponseCache) Set(ctx context.Context, key string, value []byte) error {
	return c.client.Set(ctx, c.prefix+key, value, 0).Err()
}
