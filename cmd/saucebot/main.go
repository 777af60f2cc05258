package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/saucebot/internal/config"
	"github.com/kailas-cloud/saucebot/internal/db"
	dbRedis "github.com/kailas-cloud/saucebot/internal/db/redis"
	dbSqlite "github.com/kailas-cloud/saucebot/internal/db/sqlite"
	"github.com/kailas-cloud/saucebot/internal/domain/message"
	logpkg "github.com/kailas-cloud/saucebot/internal/logger"
	"github.com/kailas-cloud/saucebot/internal/metrics"
	"github.com/kailas-cloud/saucebot/internal/repository/correlation"
	"github.com/kailas-cloud/saucebot/internal/repository/searchcache"
	"github.com/kailas-cloud/saucebot/internal/transport/ascii2d"
	chiTransport "github.com/kailas-cloud/saucebot/internal/transport/chi"
	"github.com/kailas-cloud/saucebot/internal/transport/iqdb"
	"github.com/kailas-cloud/saucebot/internal/transport/onebot"
	"github.com/kailas-cloud/saucebot/internal/transport/saucenao"
	"github.com/kailas-cloud/saucebot/internal/usecase/aggregate"
	"github.com/kailas-cloud/saucebot/internal/usecase/correlate"
	"github.com/kailas-cloud/saucebot/internal/usecase/format"
	healthuc "github.com/kailas-cloud/saucebot/internal/usecase/health"
	"github.com/kailas-cloud/saucebot/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting saucebot",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.String("onebot_url", cfg.OneBot.WSURL),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
	)

	store, err := openStore(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.Register()

	correlations := correlation.New(store, metrics.CorrelationOpsTotal).
		WithTTL(time.Duration(cfg.Correlation.TTLSec) * time.Second)

	searchers := buildSearchers(cfg.Searchers, store, logger.Named("searcher"))
	aggregator := aggregate.New(logger.Named("aggregate"), searchers...)
	logger.Info("Searchers configured", zap.Strings("searchers", aggregator.Searchers()))

	formatter := format.New(format.Config{
		NotFoundText: cfg.Reply.NotFoundText,
		HeaderText:   cfg.Reply.HeaderText,
		MirrorHost:   cfg.Reply.MirrorHost,
	})
	correlator := correlate.New(
		correlations, aggregator, formatter,
		message.NewClassifier(cfg.Reply.TriggerPhrases),
		logger.Named("correlate"),
	)

	bot := onebot.New(onebot.Config{
		URL:               cfg.OneBot.WSURL,
		AccessToken:       cfg.OneBot.AccessToken,
		OutboundQueueSize: cfg.OneBot.OutboundQueueSize,
		WriteTimeout:      time.Duration(cfg.OneBot.WriteTimeoutSec) * time.Second,
	}, logger.Named("onebot"))

	// Ops HTTP server
	healthSvc := healthuc.New(store, bot)
	ops := chiTransport.NewServer(healthSvc, logger.Named("http"))

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      ops.Router(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	botDone := make(chan struct{})
	go func() {
		defer close(botDone)
		runBot(ctx, bot, correlator, time.Duration(cfg.OneBot.ReconnectDelaySec)*time.Second, logger)
	}()

	<-ctx.Done()
	logger.Info("Received shutdown signal")
	<-botDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	if err := correlations.Flush(shutdownCtx); err != nil {
		logger.Error("Failed to flush correlation store", zap.Error(err))
	}

	logger.Info("Bot stopped gracefully")
}

// runBot keeps a OneBot session open, reconnecting after delay until ctx ends.
func runBot(ctx context.Context, bot *onebot.Client, h onebot.Handler, delay time.Duration, logger *zap.Logger) {
	for {
		err := bot.Run(ctx, h)
		if ctx.Err() != nil {
			return
		}
		if onebot.IsClosed(err) {
			logger.Info("OneBot session ended, reconnecting", zap.Duration("delay", delay))
		} else {
			logger.Warn("OneBot session failed, reconnecting", zap.Duration("delay", delay), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// openStore creates the correlation store for the configured driver.
// "valkey" is served by the Redis driver; both speak RESP.
func openStore(cfg config.DatabaseConfig) (db.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		store, err := dbSqlite.NewStore(dbSqlite.Config{Path: cfg.Path})
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return store, nil
	case "redis", "valkey":
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Addrs,
			Password: cfg.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// buildSearchers assembles the enabled backends in reply order:
// ascii2d, saucenao, iqdb. Each is wrapped with rate limiting and, when
// searchers.cache_ttl_sec is set, an answer cache in front of the limiter.
func buildSearchers(cfg config.SearchersConfig, kv db.KVStore, logger *zap.Logger) []aggregate.Searcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = version.UserAgent()
	}
	timeout := func(sec int) time.Duration { return time.Duration(sec) * time.Second }

	var out []aggregate.Searcher
	wrap := func(s aggregate.Searcher, sc config.SearcherConfig) {
		var wrapped aggregate.Searcher = aggregate.NewInstrumented(s, sc.RatePerSec, sc.Burst, logger).
			WithMaxWait(timeout(sc.TimeoutSec))
		if cfg.CacheTTLSec > 0 {
			wrapped = searchcache.New(wrapped, kv, timeout(cfg.CacheTTLSec), metrics.SearchCacheTotal, logger)
		}
		out = append(out, wrapped)
	}

	if sc := cfg.Ascii2d; !sc.Disabled {
		wrap(ascii2d.New(ascii2d.Config{
			BaseURL:   sc.BaseURL,
			Timeout:   timeout(sc.TimeoutSec),
			UserAgent: cfg.UserAgentFor(sc),
		}), sc)
	}
	if sc := cfg.SauceNAO; !sc.Disabled {
		if sc.APIKey == "" {
			logger.Warn("SauceNAO api_key is empty; anonymous requests are heavily rate limited")
		}
		wrap(saucenao.New(saucenao.Config{
			BaseURL:       sc.BaseURL,
			APIKey:        sc.APIKey,
			Timeout:       timeout(sc.TimeoutSec),
			UserAgent:     cfg.UserAgentFor(sc),
			MinSimilarity: sc.Similarity(),
		}), sc)
	}
	if sc := cfg.IQDB; !sc.Disabled {
		// iqdb needs a browser agent; only an explicit per-backend one overrides it.
		wrap(iqdb.New(iqdb.Config{
			BaseURL:       sc.BaseURL,
			Timeout:       timeout(sc.TimeoutSec),
			UserAgent:     sc.UserAgent,
			MinSimilarity: sc.Similarity(),
		}), sc)
	}
	return out
}
