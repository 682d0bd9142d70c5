// Package common provides shared utilities for services.
package common

import "fmt"

// =============================================================================
// Cache Keys
// =============================================================================

const (
	keyProcessed     = "processed"         // {prefix}:processed:{message_id}:{env}
	keyWatermark     = "last_processed_ts" // {prefix}:last_processed_ts:{env}
	keyRefreshToken  = "refresh_token"     // {prefix}:refresh_token:{env}
	keyOAuthState    = "oauth_state"       // {prefix}:oauth_state:{state}:{env}
	keyLLMCache      = "llm_cache"         // {prefix}:llm_cache:{fingerprint}
	DefaultKeyPrefix = "gmail-agent"
)

// Keyspace builds every persisted key. All families except the LLM cache are
// scoped by environment so local and production runs never share state.
type Keyspace struct {
	Prefix string
	Env    string
}

func NewKeyspace(prefix, env string) Keyspace {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return Keyspace{Prefix: prefix, Env: env}
}

func (k Keyspace) Processed(messageID string) string {
	return fmt.Sprintf("%s:%s:%s:%s", k.Prefix, keyProcessed, messageID, k.Env)
}

// ProcessedPattern matches every dedup marker of this environment.
func (k Keyspace) ProcessedPattern() string {
	return fmt.Sprintf("%s:%s:*:%s", k.Prefix, keyProcessed, k.Env)
}

func (k Keyspace) Watermark() string {
	return fmt.Sprintf("%s:%s:%s", k.Prefix, keyWatermark, k.Env)
}

func (k Keyspace) RefreshToken() string {
	return fmt.Sprintf("%s:%s:%s", k.Prefix, keyRefreshToken, k.Env)
}

func (k Keyspace) OAuthState(state string) string {
	return fmt.Sprintf("%s:%s:%s:%s", k.Prefix, keyOAuthState, state, k.Env)
}

// LLMCachePrefix is prepended to response fingerprints. Cached model output
// depends only on the request, so it is shared across environments.
func (k Keyspace) LLMCachePrefix() string {
	return fmt.Sprintf("%s:%s:", k.Prefix, keyLLMCache)
}
