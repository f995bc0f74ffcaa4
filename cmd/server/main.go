package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"log/slog"

	"github.com/safetycheck/safetycheck/internal/adapters"
	"github.com/safetycheck/safetycheck/internal/analysis"
	"github.com/safetycheck/safetycheck/internal/api"
	"github.com/safetycheck/safetycheck/internal/auth"
	"github.com/safetycheck/safetycheck/internal/config"
	"github.com/safetycheck/safetycheck/internal/logging"
	"github.com/safetycheck/safetycheck/internal/mediacache"
	"github.com/safetycheck/safetycheck/internal/mediaproc"
	"github.com/safetycheck/safetycheck/internal/metrics"
	"github.com/safetycheck/safetycheck/internal/pipeline"
	"github.com/safetycheck/safetycheck/internal/ratelimit"
	"github.com/safetycheck/safetycheck/internal/resultcache"
	"github.com/safetycheck/safetycheck/internal/server"
)

const version = "1.0.0"

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting safetycheck", "version", version)

	collector, err := metrics.NewCollector()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}

	// Result cache backend
	var cache resultcache.Cache
	switch cfg.Cache.Backend {
	case "redis":
		redisCache, err := resultcache.NewRedisCache(context.Background(), cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, cfg.Cache.TTL)
		if err != nil {
			logger.Error("failed to connect to redis", "addr", cfg.Cache.RedisAddr, "error", err)
			os.Exit(1)
		}
		defer redisCache.Close()
		cache = redisCache
		logger.Info("result cache using redis", "addr", cfg.Cache.RedisAddr)
	default:
		cache = resultcache.NewMemoryCache(cfg.Cache.TTL)
		logger.Info("result cache using memory", "ttl", cfg.Cache.TTL)
	}

	mcache, err := mediacache.New(mediacache.Options{
		Dir:          cfg.MediaCache.Dir,
		MaxSizeMB:    cfg.MediaCache.MaxSizeMB,
		FetchTimeout: cfg.MediaCache.FetchTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to init media cache", "dir", cfg.MediaCache.Dir, "error", err)
		os.Exit(1)
	}

	// Analyzer: OpenAI-backed when a key is configured, rule-based otherwise
	var analyzer analysis.Analyzer
	analysisCfg := analysis.ConfigFromEnv()
	if analysisCfg.APIKey != "" {
		analyzer = analysis.NewService(analysisCfg, logger)
		logger.Info("using reasoning-api analyzer", "model", analysisCfg.Model)
	} else {
		analyzer = analysis.NewRuleBasedAnalyzer()
		logger.Warn("OPENAI_API_KEY not set, using rule-based analyzer")
	}

	limiter := ratelimit.New(cfg.RateLimit.HourlyLimit, cfg.RateLimit.DailyLimit)
	registry := adapters.NewRegistry(logger)
	processor := mediaproc.New(mcache, mediaproc.NewStaticExtractor(), logger)

	p := pipeline.New(registry, processor, cache, limiter, analyzer, collector, logger)

	authConfig := auth.LoadConfigFromEnv()
	logger.Info("auth configured", "jwt_secret_set", authConfig.JWTSecret != "change-this-secret")

	mux := http.NewServeMux()
	api.SetupRoutes(mux, p, collector, authConfig, version, logger)

	srv := server.New(cfg.Server, logger, collector.InstrumentHandler(mux))

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("safetycheck started", "url", fmt.Sprintf("http://localhost:%s", cfg.Server.Port))

	waitForSignal(logger)

	logger.Info("shutting down")
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}

func waitForSignal(logger *slog.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	sig := <-c
	logger.Info("received signal", "signal", sig.String())
	signal.Stop(c)
	close(c)
}
