package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"jobagg-engine/internal/aggregate"
	"jobagg-engine/internal/alerts"
	"jobagg-engine/internal/breaker"
	"jobagg-engine/internal/cache"
	"jobagg-engine/internal/config"
	"jobagg-engine/internal/domain"
	"jobagg-engine/internal/events"
	"jobagg-engine/internal/fallback"
	"jobagg-engine/internal/guard"
	"jobagg-engine/internal/httpapi"
	"jobagg-engine/internal/scrape"
	"jobagg-engine/internal/scrape/util"
	"jobagg-engine/internal/secrets"
	"jobagg-engine/internal/store"
	"jobagg-engine/internal/telemetry"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type paths struct {
	DataDir     string
	UserCfgPath string
}

func newPaths() (paths, error) {
	// Engine data dir: use env if provided, else local folder.
	dataDir := os.Getenv("JOBAGG_DATA_DIR")
	if dataDir == "" {
		dataDir = "."
	}
	userCfgPath, err := config.EnsureUserConfig(dataDir, filepath.Join("config", "config.yml"))
	if err != nil {
		return paths{}, fmt.Errorf("config bootstrap failed: %w", err)
	}
	return paths{DataDir: dataDir, UserCfgPath: userCfgPath}, nil
}

func loadConfig(p paths) (config.Config, error) {
	cfg, err := config.Load(p.UserCfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("config load failed (%s): %w", p.UserCfgPath, err)
	}
	cfg, vr := config.NormalizeAndValidate(cfg)
	if !vr.OK() {
		return config.Config{}, fmt.Errorf("invalid config %s: %v", p.UserCfgPath, vr.Errors)
	}
	if cfg.App.DataDir == "" {
		cfg.App.DataDir = p.DataDir
	}
	return cfg, nil
}

func newCfgVal(cfg config.Config) *atomic.Value {
	var v atomic.Value // stores config.Config
	v.Store(cfg)
	return &v
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Log.Level != "" {
		lvl, err := zapcore.ParseLevel(cfg.Log.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zc.Build()
}

func newHub() *events.Hub { return events.NewHub() }

func newHostLimiter() *util.HostLimiter { return util.NewHostLimiter(1.0, 2) }

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

func scrapeDeps(hc *http.Client, limiter *util.HostLimiter, log *zap.Logger) scrape.Deps {
	return scrape.Deps{HTTP: hc, Limiter: limiter, Log: log, AdzunaKey: secrets.AdzunaKey}
}

func newRegistry(cfg config.Config, hc *http.Client, limiter *util.HostLimiter, log *zap.Logger) (*scrape.Registry, error) {
	reg, err := scrape.Build(cfg, scrapeDeps(hc, limiter, log))
	if err != nil {
		return nil, err
	}
	log.Info("sources registered", zap.Int("count", len(reg.IDs())))
	return reg, nil
}

// newCache picks the backend from config and wraps it so degraded results
// are never stored.
func newCache(lc fx.Lifecycle, cfg config.Config, p paths, log *zap.Logger) (*cache.Guarded, error) {
	var backend cache.Cache
	janitorCtx, stopJanitor := context.WithCancel(context.Background())

	switch cfg.Cache.Backend {
	case "redis":
		rc := cache.NewRedis(cache.RedisOptions{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error { return rc.Ping(ctx) },
			OnStop: func(context.Context) error {
				stopJanitor()
				return rc.Close()
			},
		})
		backend = rc

	case "sqlite":
		path := cfg.Cache.SQLitePath
		if path == "" {
			path = filepath.Join(p.DataDir, "jobagg-cache.db")
		}
		db, err := store.Open(path)
		if err != nil {
			stopJanitor()
			return nil, err
		}
		tbl := store.NewCacheTable(db, time.Now)
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go sweep(janitorCtx, cfg.Cache.CleanupEvery, log, func(ctx context.Context) (int64, error) {
					return tbl.Cleanup(ctx)
				})
				return nil
			},
			OnStop: func(context.Context) error {
				stopJanitor()
				return db.Close()
			},
		})
		backend = tbl

	default:
		mem := cache.NewMemory(cache.MemoryOptions{MaxEntries: cfg.Cache.MaxEntries, Log: log})
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				mem.StartJanitor(janitorCtx, cfg.Cache.CleanupEvery)
				return nil
			},
			OnStop: func(context.Context) error {
				stopJanitor()
				return nil
			},
		})
		backend = mem
	}

	log.Info("cache ready", zap.String("backend", cfg.Cache.Backend), zap.Duration("ttl", cfg.Cache.TTL))
	return cache.NewGuarded(backend, log), nil
}

func sweep(ctx context.Context, every time.Duration, log *zap.Logger, fn func(context.Context) (int64, error)) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := fn(ctx)
			if err != nil {
				log.Warn("cache cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Debug("cache cleanup", zap.Int64("removed", n))
			}
		}
	}
}

func newBreakers(cfg config.Config) *breaker.Set {
	if !cfg.Breaker.Enabled {
		return nil
	}
	return breaker.NewSet(breaker.Config{
		FailureThreshold:    uint(cfg.Breaker.FailureThreshold),
		SuccessThreshold:    uint(cfg.Breaker.SuccessThreshold),
		HalfOpenMaxRequests: uint(cfg.Breaker.HalfOpenMaxRequests),
		ResetTimeout:        cfg.Breaker.ResetTimeout,
	})
}

func newFallback(cfg config.Config, hc *http.Client, limiter *util.HostLimiter, log *zap.Logger) (*fallback.Chain, error) {
	var strategies []fallback.Strategy
	if id := cfg.Fallback.Secondary; id != "" {
		src, ok := cfg.SourceByID(id)
		if !ok {
			src = config.Source{ID: id, Enabled: true}
		}
		a, err := scrape.NewAdapter(src, scrapeDeps(hc, limiter, log))
		if err != nil {
			return nil, fmt.Errorf("fallback secondary: %w", err)
		}
		strategies = append(strategies, fallback.NewSecondary(a, cfg.Fallback.SecondaryTimeout))
	}
	if cfg.Fallback.Synthetic.Enabled {
		strategies = append(strategies, fallback.NewSynthetic(cfg.Fallback.Synthetic.Count))
	}
	chain := fallback.NewChain(log, strategies...)
	log.Info("fallback chain", zap.Strings("strategies", chain.Names()))
	return chain, nil
}

func newSink(lc fx.Lifecycle, cfg config.Config, hub *events.Hub, log *zap.Logger) (telemetry.Sink, error) {
	tc := cfg.Telemetry
	var backends []telemetry.Sink
	if tc.Log {
		backends = append(backends, telemetry.NewLogSink(log))
	}
	if tc.Hub {
		backends = append(backends, telemetry.NewHubSink(hub))
	}

	var closers []func()
	if tc.NATS.URL != "" {
		ns, err := telemetry.NewNATSSink(tc.NATS.URL, log)
		if err != nil {
			return nil, err
		}
		backends = append(backends, ns)
		closers = append(closers, ns.Close)
	}
	if tc.ClickHouse.Addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		cs, err := telemetry.NewClickHouseSink(ctx, telemetry.ClickHouseOptions{
			Addr:     tc.ClickHouse.Addr,
			Database: tc.ClickHouse.Database,
			Username: tc.ClickHouse.Username,
			Password: tc.ClickHouse.Password,
		}, log)
		if err != nil {
			return nil, err
		}
		backends = append(backends, cs)
		closers = append(closers, func() { _ = cs.Close() })
	}

	async := telemetry.NewAsync(tc.BufferSize, log, backends...)
	runCtx, stop := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			async.Start(runCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stop()
			select {
			case <-waitChan(async.Wait):
			case <-ctx.Done():
			}
			for _, c := range closers {
				c()
			}
			if n := async.Dropped(); n > 0 {
				log.Warn("telemetry metrics dropped", zap.Int64("dropped", n))
			}
			return nil
		},
	})
	return async, nil
}

func waitChan(wait func()) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		wait()
		close(ch)
	}()
	return ch
}

func startTracer(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) {
	endpoint := cfg.Telemetry.OTLPEndpoint
	if endpoint == "" {
		return
	}
	var shutdown func(context.Context) error
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var err error
			shutdown, err = telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, endpoint)
			if err != nil {
				return err
			}
			log.Info("tracing enabled", zap.String("endpoint", endpoint))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if shutdown == nil {
				return nil
			}
			return shutdown(ctx)
		},
	})
}

func newOrchestrator(cfg config.Config, reg *scrape.Registry, c *cache.Guarded, b *breaker.Set, fb *fallback.Chain, sink telemetry.Sink, log *zap.Logger) *aggregate.Orchestrator {
	return aggregate.New(aggregate.Options{
		Sources:        reg,
		Cache:          c,
		Guard:          guard.New(cfg.Search.MaxConcurrentPerKey),
		Breakers:       b,
		Fallback:       fb,
		Sink:           sink,
		Log:            log,
		TTL:            cfg.Cache.TTL,
		GlobalDeadline: cfg.Search.GlobalDeadline,
		CancelGrace:    cfg.Search.CancelGrace,
		RequestID:      httpapi.RequestIDFrom,
	})
}

func newAlerts(lc fx.Lifecycle, cfg config.Config, o *aggregate.Orchestrator, hub *events.Hub, log *zap.Logger) (*alerts.Runner, error) {
	budget := domain.Budget{Default: cfg.Search.DefaultPageBudget, Max: cfg.Search.MaxPageBudget}
	r, err := alerts.NewRunner(o, cfg.Alerts, budget, hub, log)
	if err != nil {
		return nil, err
	}
	runCtx, stop := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			r.Start(runCtx)
			return nil
		},
		OnStop: func(context.Context) error {
			stop()
			return nil
		},
	})
	return r, nil
}

func newDeps(p paths, cfgVal *atomic.Value, log *zap.Logger, hub *events.Hub, o *aggregate.Orchestrator, reg *scrape.Registry, b *breaker.Set, c *cache.Guarded, r *alerts.Runner) httpapi.Deps {
	return httpapi.Deps{
		Log:         log,
		Hub:         hub,
		CfgVal:      cfgVal,
		UserCfgPath: p.UserCfgPath,
		LoadCfg: func() (config.Config, error) {
			return config.Load(p.UserCfgPath)
		},
		Search:       o,
		Sources:      reg,
		Breakers:     b,
		Cache:        c,
		Alerts:       r,
		SetAdzunaKey: secrets.SetAdzunaKey,
	}
}

func startServer(lc fx.Lifecycle, cfg config.Config, d httpapi.Deps, log *zap.Logger) {
	handler := httpapi.NewHandler(httpapi.NewMux(d), log, httpapi.RateLimitConfig{
		PerMinute: cfg.RateLimit.SearchPerMinute,
		Burst:     cfg.RateLimit.Burst,
	})
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	// Bind to a predictable local port.
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.App.Port)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			log.Info("engine listening", zap.String("addr", "http://"+addr))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
