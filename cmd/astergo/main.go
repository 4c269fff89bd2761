package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/aster/astergo/internal/api"
	"github.com/aster/astergo/internal/auth"
	"github.com/aster/astergo/internal/cache"
	"github.com/aster/astergo/internal/compose"
	"github.com/aster/astergo/internal/elements"
	"github.com/aster/astergo/internal/metrics"
	"github.com/aster/astergo/internal/propagation"
	"github.com/aster/astergo/internal/stream"
	"github.com/aster/astergo/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	addr := os.Getenv("ASTERGO_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	trustProxy := loadTrustProxy(logger)

	datasetCfg := loadDatasetConfig(logger)
	store := elements.NewStore()
	elCache := elements.NewCache(datasetCfg.CacheDir, datasetCfg.MaxFiles)

	// Attempt to load cached element data on startup.
	chunks, ts, err := elCache.LoadLatest()
	if err != nil {
		logger.Info("no element cache found, starting without body data", "error", err)
	} else {
		bodies := elements.ParseChunks(chunks, logger)
		if len(bodies) == 0 {
			logger.Warn("cached element data yielded no bodies")
		} else {
			store.Set(&elements.Dataset{
				Source:    "cache",
				FetchedAt: ts,
				Bodies:    bodies,
			})
			metrics.SetDatasetBodies(len(bodies))
			logger.Info("loaded body data from cache", "count", len(bodies), "cached_at", ts.Format(time.RFC3339))
		}
	}

	propCfg := loadPropConfig(logger)
	prop := propagation.NewPropagator(store, propCfg, logger)

	cacheCfg := loadCacheConfig(logger, propCfg)
	kfCache := cache.NewKeyframeCache(cacheCfg, prop, store, logger)

	streamCfg := loadStreamConfig(logger, trustProxy)
	streamHandler := stream.NewHandler(kfCache, store, streamCfg, logger)

	composeCfg := loadComposeConfig(logger, trustProxy)
	composeHandler := compose.NewHandler(composeCfg, logger)

	fetcher := elements.NewFetcher(datasetCfg.SourceURL, logger, datasetCfg.ExtraSourceURLs...)
	refresh := func(ctx context.Context) (int, error) {
		chunks, err := fetcher.Fetch(ctx)
		if err != nil {
			return 0, err
		}
		bodies := elements.ParseChunks(chunks, logger)
		if len(bodies) == 0 {
			return 0, errors.New("fetched element data yielded no bodies")
		}

		now := time.Now().UTC()
		store.Set(&elements.Dataset{
			Source:    fetcher.SourceURL(),
			FetchedAt: now,
			Bodies:    bodies,
		})
		metrics.SetDatasetBodies(len(bodies))

		if err := elCache.Write(chunks, now); err != nil {
			logger.Warn("failed to cache element data", "error", err)
		}

		logger.Info("dataset refreshed", "count", len(bodies))
		return len(bodies), nil
	}

	srv := api.NewServer(addr, logger, authCfg, store, datasetCfg, kfCache, streamHandler, composeHandler, refresh, web.Content)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start cache background worker.
	go kfCache.Start(ctx)

	// Background goroutine to update the dataset age gauge.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				age := store.AgeSeconds()
				if age >= 0 {
					metrics.SetDatasetAge(age)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// Fetch on startup when the cache gave us nothing, then re-fetch whenever
	// the dataset exceeds its maximum age.
	if datasetCfg.EnableFetch {
		go refreshLoop(ctx, store, datasetCfg.MaxAge, refresh, logger)
	}

	go func() {
		logger.Info("starting server", "addr", addr, "auth_enabled", authCfg.Enabled, "dataset_fetch_enabled", datasetCfg.EnableFetch)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// refreshLoop keeps the dataset fresher than maxAge. It checks every minute
// rather than sleeping the whole interval so a manual refresh through the API
// pushes the next automatic one out.
func refreshLoop(ctx context.Context, store *elements.Store, maxAge time.Duration, refresh api.RefreshFunc, logger *slog.Logger) {
	attempt := func() {
		fetchCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		if _, err := refresh(fetchCtx); err != nil {
			logger.Warn("automatic dataset refresh failed", "error", err)
		}
	}

	if store.Get() == nil {
		attempt()
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			age := store.AgeSeconds()
			if age < 0 || age > maxAge.Seconds() {
				attempt()
			}
		case <-ctx.Done():
			return
		}
	}
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	enabledStr := os.Getenv("ASTERGO_AUTH_ENABLED")
	if enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return cfg, errors.New("ASTERGO_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("ASTERGO_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("ASTERGO_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

func loadTrustProxy(logger *slog.Logger) bool {
	v := os.Getenv("ASTERGO_TRUST_PROXY")
	if v == "" {
		return false
	}
	trust, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warn("invalid ASTERGO_TRUST_PROXY value, defaulting to false", "value", v)
		return false
	}
	return trust
}

func loadDatasetConfig(logger *slog.Logger) api.DatasetConfig {
	cfg := api.DatasetConfig{
		EnableFetch: true,
		CacheDir:    "/tmp/astergo/elements",
		MaxFiles:    5,
		MaxAge:      24 * time.Hour,
	}

	if v := os.Getenv("ASTERGO_ENABLE_DATASET_FETCH"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid ASTERGO_ENABLE_DATASET_FETCH value, defaulting to false", "value", v)
		} else {
			cfg.EnableFetch = enabled
		}
	}

	if v := os.Getenv("ASTERGO_DATASET_SOURCE_URL"); v != "" {
		cfg.SourceURL = v
	}

	if v := os.Getenv("ASTERGO_DATASET_EXTRA_URLS"); v != "" {
		var urls []string
		for _, u := range strings.Split(v, ",") {
			u = strings.TrimSpace(u)
			if u != "" {
				urls = append(urls, u)
			}
		}
		cfg.ExtraSourceURLs = urls
	}

	if v := os.Getenv("ASTERGO_DATASET_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}

	if v := os.Getenv("ASTERGO_DATASET_MAX_AGE"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			logger.Warn("invalid ASTERGO_DATASET_MAX_AGE value, defaulting to 86400", "value", v)
		} else {
			cfg.MaxAge = time.Duration(seconds) * time.Second
		}
	}

	logger.Info("dataset config",
		"source_url", cfg.SourceURL,
		"extra_urls", cfg.ExtraSourceURLs,
		"cache_dir", cfg.CacheDir,
	)

	return cfg
}

func loadPropConfig(logger *slog.Logger) propagation.PropConfig {
	cfg := propagation.PropConfig{
		Workers: runtime.NumCPU(),
		Step:    time.Hour,
		Horizon: 72 * time.Hour,
	}

	if v := os.Getenv("ASTERGO_PROP_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ASTERGO_PROP_WORKERS value, using default", "value", v, "default", cfg.Workers)
		} else {
			cfg.Workers = n
		}
	}

	if v := os.Getenv("ASTERGO_KEYFRAME_STEP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ASTERGO_KEYFRAME_STEP value, using default", "value", v, "default", 3600)
		} else {
			cfg.Step = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("ASTERGO_KEYFRAME_HORIZON"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ASTERGO_KEYFRAME_HORIZON value, using default", "value", v, "default", 259200)
		} else {
			cfg.Horizon = time.Duration(n) * time.Second
		}
	}

	logger.Info("propagation config",
		"workers", cfg.Workers,
		"step_seconds", cfg.Step.Seconds(),
		"horizon_seconds", cfg.Horizon.Seconds(),
	)

	return cfg
}

func loadCacheConfig(logger *slog.Logger, propCfg propagation.PropConfig) cache.Config {
	cfg := cache.Config{
		Step:        propCfg.Step,
		Horizon:     propCfg.Horizon,
		GracePeriod: 30 * time.Second,
		Buffer:      10 * time.Minute,
	}

	if v := os.Getenv("ASTERGO_CACHE_STEP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ASTERGO_CACHE_STEP value, using propagation step", "value", v)
		} else {
			cfg.Step = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("ASTERGO_CACHE_HORIZON"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ASTERGO_CACHE_HORIZON value, using propagation horizon", "value", v)
		} else {
			cfg.Horizon = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("ASTERGO_CACHE_GRACE_PERIOD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ASTERGO_CACHE_GRACE_PERIOD value, using default", "value", v, "default", 30)
		} else {
			cfg.GracePeriod = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("ASTERGO_CACHE_BUFFER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ASTERGO_CACHE_BUFFER value, using default", "value", v, "default", 600)
		} else {
			cfg.Buffer = time.Duration(n) * time.Second
		}
	}

	logger.Info("cache config",
		"step_seconds", cfg.Step.Seconds(),
		"horizon_seconds", cfg.Horizon.Seconds(),
		"grace_period_seconds", cfg.GracePeriod.Seconds(),
		"buffer_seconds", cfg.Buffer.Seconds(),
	)

	return cfg
}

func loadStreamConfig(logger *slog.Logger, trustProxy bool) stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: 10,
		KeepaliveInterval:  30 * time.Second,
		TrustProxy:         trustProxy,
	}

	if v := os.Getenv("ASTERGO_STREAM_MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ASTERGO_STREAM_MAX_CONCURRENT value, using default", "value", v, "default", 10)
		} else {
			cfg.MaxConcurrentPerIP = n
		}
	}

	if v := os.Getenv("ASTERGO_STREAM_KEEPALIVE_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ASTERGO_STREAM_KEEPALIVE_INTERVAL value, using default", "value", v, "default", 30)
		} else {
			cfg.KeepaliveInterval = time.Duration(n) * time.Second
		}
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
	)

	return cfg
}

func loadComposeConfig(logger *slog.Logger, trustProxy bool) compose.Config {
	cfg := compose.Config{
		APIKey:     os.Getenv("ASTERGO_OPENROUTER_API_KEY"),
		AppURL:     os.Getenv("ASTERGO_APP_URL"),
		TrustProxy: trustProxy,
	}

	if v := os.Getenv("ASTERGO_ANALYZE_TIMEOUT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ASTERGO_ANALYZE_TIMEOUT value, using default", "value", v, "default", 90)
		} else {
			cfg.Timeout = time.Duration(n) * time.Second
		}
	}

	logger.Info("analyze config", "enabled", cfg.APIKey != "")

	return cfg
}
