package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/emezpr/Sureodds/internal/cache"
	"github.com/emezpr/Sureodds/internal/config"
	"github.com/emezpr/Sureodds/internal/events"
	"github.com/emezpr/Sureodds/internal/fetcher"
	"github.com/emezpr/Sureodds/internal/gemini"
	"github.com/emezpr/Sureodds/internal/logger"
	"github.com/emezpr/Sureodds/internal/metrics"
	"github.com/emezpr/Sureodds/internal/server"
	"github.com/emezpr/Sureodds/internal/telegram"
	"github.com/emezpr/Sureodds/internal/ws"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	metrics.Register()

	store, err := newStore(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize cache store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close cache store: %v", err)
		}
	}()
	logger.Info("Cache store initialized (backend: %s)", cfg.Cache.Backend)

	geminiClient := gemini.NewClient(gemini.ClientConfig{
		BaseURL:         cfg.Gemini.BaseURL,
		Model:           cfg.Gemini.Model,
		APIKey:          cfg.Gemini.APIKey,
		Timeout:         cfg.Gemini.Timeout,
		MaxRetries:      cfg.Gemini.MaxRetries,
		RetryDelayBase:  cfg.Gemini.RetryDelayBase,
		Temperature:     cfg.Gemini.Temperature,
		MaxOutputTokens: cfg.Gemini.MaxOutputTokens,
	})

	f := fetcher.New(geminiClient, store, fetcher.Options{
		APIKey:          cfg.Gemini.APIKey,
		FreshnessWindow: cfg.Fetch.FreshnessWindow,
		MaxExcludes:     cfg.Fetch.MaxExcludes,
	})

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	var publisher *events.Publisher
	if cfg.Events.Enabled {
		publisher = events.NewPublisher(splitBrokers(cfg.Events.Brokers), cfg.Events.Topic)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("Failed to close Kafka publisher: %v", err)
			}
		}()
		logger.Info("Kafka publisher initialized (topic: %s)", cfg.Events.Topic)
	} else {
		logger.Debug("Kafka publishing disabled")
	}

	hub := ws.NewHub(originChecker(cfg.Server.CORSOrigins))

	// a nil *telegram.Client must stay a nil interface for the server's checks
	var notifier server.Notifier
	if telegramClient != nil {
		notifier = telegramClient
	}
	var pub server.Publisher
	if publisher != nil {
		pub = publisher
	}

	srv := server.New(server.Config{
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
	}, f, store, hub, notifier, pub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if cfg.Telegram.Enabled && telegramClient != nil {
		telegramClient.ListenForCommands(ctx)
	}

	httpSrv := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening on %s", cfg.Server.ListenAddr)
		serverErrors <- httpSrv.ListenAndServe()
	}()

	if cfg.Fetch.RefreshInterval > 0 {
		go runRefreshLoop(ctx, srv, telegramClient, cfg)
	}

	select {
	case err := <-serverErrors:
		logger.Fatal("HTTP server error: %v", err)

	case sig := <-sigChan:
		logger.Info("Shutdown signal received (%v), cleaning up...", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Graceful shutdown failed: %v", err)
			if err := httpSrv.Close(); err != nil {
				logger.Error("Could not stop server: %v", err)
			}
		}
	}

	logger.Info("Service stopped")
}

// runRefreshLoop keeps the cache warm on a fixed interval. Telegram gets one
// error notification per failure streak and one recovery notice.
func runRefreshLoop(ctx context.Context, srv *server.Server, telegramClient *telegram.Client, cfg *config.Config) {
	logger.Info("Starting refresh loop (interval: %v)", cfg.Fetch.RefreshInterval)

	ticker := time.NewTicker(cfg.Fetch.RefreshInterval)
	defer ticker.Stop()

	consecutiveFailures := 0
	handleResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Scheduled refresh failed: %v", err)
			if consecutiveFailures == 1 && telegramClient != nil {
				if sendErr := telegramClient.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
		} else {
			if consecutiveFailures > 0 && telegramClient != nil {
				if sendErr := telegramClient.SendRecovery(consecutiveFailures); sendErr != nil {
					logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
				}
			}
			consecutiveFailures = 0
		}
	}

	logger.Debug("Running initial refresh")
	_, err := srv.Refresh(ctx, false, nil)
	handleResult(err)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Debug("Running scheduled refresh")
			_, err := srv.Refresh(ctx, false, nil)
			handleResult(err)
		}
	}
}

// newStore builds the cache backend named in the configuration.
func newStore(cfg *config.Config) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case "sqlite":
		return cache.NewSQLiteStore(cfg.Cache.DBPath)
	case "redis":
		return cache.NewRedisStore(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, cfg.Cache.TTL)
	case "postgres":
		return cache.NewPostgresStore(cfg.Cache.PostgresDSN)
	case "memory":
		return cache.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Cache.Backend)
	}
}

// splitBrokers turns the comma-separated broker list into addresses.
func splitBrokers(brokers string) []string {
	parts := strings.Split(brokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// originChecker mirrors the HTTP CORS policy for WebSocket upgrades.
func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(r *http.Request) bool { return true }
		}
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}
