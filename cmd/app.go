package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/provider-reconcile/internal/consensus"
	"github.com/sells-group/provider-reconcile/internal/metrics"
	"github.com/sells-group/provider-reconcile/internal/model"
	"github.com/sells-group/provider-reconcile/internal/ocr"
	"github.com/sells-group/provider-reconcile/internal/reconcile"
	"github.com/sells-group/provider-reconcile/internal/resilience"
	"github.com/sells-group/provider-reconcile/internal/source"
	"github.com/sells-group/provider-reconcile/internal/store"
	anthropicpkg "github.com/sells-group/provider-reconcile/pkg/anthropic"
	"github.com/sells-group/provider-reconcile/pkg/npi"
)

// appEnv holds the store, source adapters and engine needed by the batch,
// reconcile, review and serve commands.
type appEnv struct {
	Store     store.Store
	Engine    *reconcile.Engine
	Fixtures  *source.Fixtures
	Breakers  *resilience.Breakers
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Explainer reconcile.Explainer

	redis *redis.Client
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.redis != nil {
		_ = e.redis.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "providers.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{MaxConns: cfg.Store.MaxConns})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore validates config for mode, opens the store and applies the
// schema. Callers should defer st.Close().
func openStore(ctx context.Context, mode string) (store.Store, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initApp opens the store and builds the source adapters, the selector and
// the engine. Callers should defer env.Close().
func initApp(ctx context.Context, mode string) (*appEnv, error) {
	st, err := openStore(ctx, mode)
	if err != nil {
		return nil, err
	}
	env := &appEnv{Store: st}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	env.Metrics = metrics.New(reg)
	env.Gatherer = reg
	env.Breakers = resilience.NewBreakers(resilience.FromSettings(cfg.Assist.FailureThreshold, cfg.Assist.CooldownSecs))

	env.Fixtures, err = source.LoadFixtures(cfg.Sources.FixtureDir)
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "load source fixtures")
	}

	registry, err := initRegistry(ctx, env)
	if err != nil {
		env.Close()
		return nil, err
	}
	adapters := []source.Adapter{
		registry,
		source.NewDirectory(model.SourceStateBoard, env.Fixtures),
		source.NewDirectory(model.SourceHospital, env.Fixtures),
		source.NewDirectory(model.SourceMaps, env.Fixtures),
	}
	collector := source.NewCollector(adapters,
		source.WithTimeout(time.Duration(cfg.Reconcile.SourceTimeoutSecs)*time.Second),
		source.WithMetrics(env.Metrics),
	)

	policy, threshold, err := loadPolicy()
	if err != nil {
		env.Close()
		return nil, err
	}
	scorer := consensus.NewScorer(policy)

	var selector consensus.Selector = scorer
	env.Explainer = reconcile.Template{}
	if cfg.Assist.Enabled {
		client := anthropicpkg.NewClient(cfg.Anthropic.Key)
		assistCfg := consensus.AssistConfig{
			Model:     cfg.Assist.Model,
			MaxTokens: cfg.Assist.MaxTokens,
			Timeout:   time.Duration(cfg.Assist.TimeoutSecs) * time.Second,
		}
		breaker := env.Breakers.For("anthropic")
		selector = consensus.NewAssisted(client, scorer, assistCfg,
			consensus.WithBreaker(breaker),
			consensus.WithMetrics(env.Metrics),
		)
		env.Explainer = reconcile.NewAssistedExplainer(client, assistCfg, breaker, env.Metrics)
		zap.L().Info("reasoning assist enabled", zap.String("model", cfg.Assist.Model))
	}

	extractor, err := ocr.NewExtractor(cfg.OCR)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.Engine = reconcile.New(st, collector, selector,
		reconcile.WithThreshold(threshold),
		reconcile.WithBatchLimit(cfg.Reconcile.BatchLimit),
		reconcile.WithOCR(extractor),
		reconcile.WithMetrics(env.Metrics),
	)

	zap.L().Info("reconcile engine ready",
		zap.Int("fixture_rows", env.Fixtures.Count(model.SourceRegistry)),
		zap.Bool("registry_live", cfg.Registry.Live),
		zap.Float64("threshold", threshold),
	)
	return env, nil
}

// initRegistry builds the registry adapter: live lookups when configured,
// optionally memoized in redis, otherwise the registry fixture.
func initRegistry(ctx context.Context, env *appEnv) (source.Adapter, error) {
	if !cfg.Registry.Live {
		return source.NewRegistry(env.Fixtures), nil
	}

	client := npi.NewClient(
		npi.WithBaseURL(cfg.Registry.BaseURL),
		npi.WithTimeout(time.Duration(cfg.Registry.TimeoutSecs)*time.Second),
		npi.WithRateLimit(cfg.Registry.RatePerSec),
		npi.WithRetry(resilience.RetryFromSettings(cfg.Registry.MaxRetries)),
	)
	var adapter source.Adapter = source.NewRegistry(env.Fixtures,
		source.WithLiveClient(client),
		source.WithRegistryBreaker(env.Breakers.For("registry")),
	)

	if cfg.Redis.URL == "" {
		return adapter, nil
	}
	rdb, err := source.NewRedisClient(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, eris.Wrap(err, "connect registry cache")
	}
	env.redis = rdb
	ttl := time.Duration(cfg.Redis.CacheTTLMins) * time.Minute
	zap.L().Info("registry cache enabled", zap.Duration("ttl", ttl))
	return source.NewCached(adapter, rdb, ttl), nil
}

// loadPolicy returns the trust policy and the auto-update threshold. A
// policy file carries its own threshold; otherwise the configured one
// applies to the built-in weights.
func loadPolicy() (*consensus.Policy, float64, error) {
	if cfg.Reconcile.PolicyFile == "" {
		p := consensus.DefaultPolicy().WithThreshold(cfg.Reconcile.Threshold)
		return p, p.Threshold, nil
	}
	p, err := consensus.LoadPolicy(cfg.Reconcile.PolicyFile)
	if err != nil {
		return nil, 0, eris.Wrap(err, "load trust policy")
	}
	return p, p.Threshold, nil
}
