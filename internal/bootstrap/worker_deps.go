package bootstrap

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"triage_worker/adapter/out/persistence"
	"triage_worker/adapter/out/provider"
	"triage_worker/config"
	"triage_worker/core/agent/llm"
	"triage_worker/core/port/out"
	"triage_worker/core/service/auth"
	"triage_worker/core/service/classification"
	"triage_worker/core/service/common"
	"triage_worker/core/service/ledger"
	"triage_worker/core/service/triage"
	"triage_worker/core/service/watermark"
	"triage_worker/infra/database"
	"triage_worker/pkg/cache"
	"triage_worker/pkg/crypto"
	"triage_worker/pkg/httputil"
	"triage_worker/pkg/logger"
	"triage_worker/pkg/metrics"
)

// KVStore is the persistence substrate plus a readiness check.
type KVStore interface {
	out.KVStore
	Ping(ctx context.Context) error
}

type Dependencies struct {
	Config *config.Config
	Redis  *redis.Client
	SQLite *sqlx.DB

	KV      KVStore
	Keys    common.Keyspace
	Metrics *metrics.TriageMetrics

	// Agent
	LLMClient *llm.Client
	Generator out.Generator

	// Services
	Classifier   *classification.Classifier
	Ledger       *ledger.Ledger
	Watermark    *watermark.Store
	Credentials  *auth.CredentialStore
	OAuthService *auth.OAuthService
	Scanner      *triage.Scanner
	ScanService  *triage.Service

	// Providers
	GmailProvider *provider.GmailAdapter
}

// NewDependencies builds everything every run mode shares. Call it once per
// process: metrics register on the default Prometheus registry.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{
		Config:  cfg,
		Keys:    common.NewKeyspace(cfg.KeyPrefix, cfg.Environment),
		Metrics: metrics.NewTriageMetrics(prometheus.DefaultRegisterer),
	}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// KV store
	switch cfg.KVBackend {
	case config.KVBackendRedis:
		redisCfg := database.DefaultRedisConfig()
		if cfg.RedisPoolSize > 0 {
			redisCfg.PoolSize = cfg.RedisPoolSize
		}
		client, err := database.NewRedisWithConfig(cfg.RedisURL, redisCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		deps.Redis = client
		deps.KV = cache.NewRedisKV(client)
		cleanups = append(cleanups, func() { client.Close() })
		logger.Info("Redis KV store connected")
	default:
		deps.KV = persistence.NewMemoryKV()
		logger.Warn("Using in-memory KV store: dedup and watermark are lost on restart")
	}

	// LLM
	deps.LLMClient = llm.NewClientWithConfig(llm.ClientConfig{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
		HTTPClient:  httputil.NewClient(httputil.OpenAIClientConfig()),
	})
	gen, err := deps.withResponseCache(deps.LLMClient, &cleanups)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.Generator = gen
	deps.Classifier = classification.NewClassifier(gen, classification.Config{
		Model:       cfg.LLMModel,
		Temperature: float32(cfg.LLMTemperature),
		MaxTokens:   cfg.LLMMaxTokens,
	})

	// State
	deps.Ledger = ledger.New(deps.KV, deps.Keys, cfg.DedupTTL)
	deps.Watermark = watermark.New(deps.KV, deps.Keys)
	deps.Credentials = auth.NewCredentialStore(deps.KV, deps.Keys)
	if cfg.TokenEncryptionKey != "" {
		enc, err := crypto.NewEncryptor([]byte(cfg.TokenEncryptionKey))
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("token encryption: %w", err)
		}
		deps.Credentials.WithCipher(enc)
	}

	// OAuth + Gmail
	oauthConfig := auth.NewGoogleConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
	deps.OAuthService = auth.NewOAuthService(oauthConfig, deps.Credentials, deps.KV, deps.Keys)
	deps.GmailProvider = provider.NewGmailAdapter(oauthConfig).
		WithHTTPClient(httputil.NewClient(httputil.GmailClientConfig()))

	// Scan pipeline
	var applier triage.LabelApplier = triage.NewMailboxApplier(triage.NewLabelResolver())
	if cfg.DryRun {
		applier = triage.NewDryRunApplier(logger.Component("applier"))
		logger.Info("Dry run enabled: labels are logged, not applied")
	}
	dispatcher := triage.NewDispatcher(triage.DispatcherConfig{
		Ledger:       deps.Ledger,
		Classifier:   deps.Classifier,
		Applier:      applier,
		Parser:       provider.ParseRawMessage,
		ThreadPolicy: triage.ThreadPolicy(cfg.ThreadPolicy),
		Recorder:     deps.Metrics,
		Logger:       logger.Component("dispatcher"),
	})
	deps.Scanner = triage.NewScanner(triage.ScannerConfig{
		Cursor:     deps.Watermark,
		Dispatcher: dispatcher,
		PageSize:   cfg.ScanPageSize,
		Lookback:   cfg.ScanLookback,
		Recorder:   deps.Metrics,
		Logger:     logger.Component("scanner"),
	})
	deps.ScanService = triage.NewService(
		deps.Credentials,
		deps.GmailProvider,
		deps.Scanner,
		deps.Ledger,
		deps.Watermark,
		logger.Component("scan_service"),
	)

	return deps, cleanup, nil
}

// withResponseCache wraps gen with the content-addressed response cache
// selected by LLM_CACHE_BACKEND.
func (d *Dependencies) withResponseCache(gen out.Generator, cleanups *[]func()) (out.Generator, error) {
	var store out.ResponseCache
	switch d.Config.LLMCacheBackend {
	case config.LLMCacheRedis:
		if d.Redis == nil {
			return nil, fmt.Errorf("LLM_CACHE_BACKEND=redis requires a redis connection")
		}
		store = cache.NewRedisResponseCache(d.Redis, d.Keys.LLMCachePrefix())
	case config.LLMCacheSQLite:
		db, err := database.NewSQLite(d.Config.LLMCachePath)
		if err != nil {
			return nil, fmt.Errorf("open llm cache %s: %w", d.Config.LLMCachePath, err)
		}
		d.SQLite = db
		*cleanups = append(*cleanups, func() { db.Close() })
		s, err := persistence.NewSQLiteCacheStore(context.Background(), db)
		if err != nil {
			return nil, err
		}
		store = s
	default:
		return gen, nil
	}
	logger.Info("LLM response cache enabled (backend=%s)", d.Config.LLMCacheBackend)
	return llm.NewCachedGenerator(gen, store, d.Metrics, logger.Component("llm_cache")), nil
}
