package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"mesto/internal/api"
	"mesto/internal/config"
	"mesto/internal/database"
	"mesto/internal/engine"
	"mesto/internal/events"
	"mesto/internal/export"
	"mesto/internal/gateway"
	"mesto/internal/logging"
	"mesto/internal/metrics"
	"mesto/internal/pricing"
	"mesto/internal/realtime"
	"mesto/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register()

	bus := events.NewEventBus()
	events.AttachDispatcher(bus, events.NewLogDispatcher(&logger), &logger)
	calc := pricing.NewCalculator(db, cfg.Pricing.Currency, &logger)
	gw := gateway.NewClient(cfg.Gateway.BaseURL, cfg.GatewayTimeout(), gateway.RetryPolicy{
		MaxRetries:    cfg.Gateway.Retry.MaxRetries,
		InitialDelay:  cfg.Gateway.Retry.InitialDelay(),
		MaxDelay:      cfg.Gateway.Retry.MaxDelay(),
		BackoffFactor: cfg.Gateway.Retry.BackoffFactor,
	}, &logger)

	sched, err := scheduler.New(db, &logger)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	eng := engine.NewService(db, calc, gw, sched, bus, &logger)

	sched.OnFire(eng.Expire)
	sched.Start()
	defer func() { _ = sched.Shutdown() }()
	if err := sched.Restore(ctx); err != nil {
		logger.Error().Err(err).Msg("restore expiry timers")
		return err
	}

	hub := realtime.NewHub(&logger)
	var bridge *realtime.Bridge
	if redisClient != nil {
		bridge = realtime.NewBridge(redisClient, cfg.Realtime.InstanceID, &logger)
	}
	router := realtime.NewRouter(hub, bridge, bus, &logger)
	if bridge != nil {
		go bridge.Listen(ctx, router)
	}

	minter := realtime.NewMinter(cfg.Realtime.JWTSecret, cfg.TokenTTL(), buildTokenStore(redisClient, cfg, &logger))
	exporter := export.NewExporter(db, cfg.Exports.Path, &logger)

	httpServer := api.NewHTTPServer(cfg.API, eng, exporter, minter, hub, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.Port).Msg("reservation engine started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("reservation engine stopped")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "engine-main").Logger()

	return cfg, logger, closer, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// buildTokenStore prefers redis so staff tokens stay single-use across
// instances, with an in-memory fallback when redis drops.
func buildTokenStore(redisClient *redis.Client, cfg *config.Config, logger *zerolog.Logger) realtime.TokenStore {
	memory := realtime.NewMemoryTokenStore(cfg.TokenTTL())
	if redisClient == nil {
		return memory
	}
	primary := realtime.NewRedisTokenStore(redisClient, cfg.TokenTTL())
	return realtime.NewFailoverTokenStore(primary, memory, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
