// Command server runs the filevault HTTP API.
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

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/zots0127/filevault/internal/adapter/handler"
	"github.com/zots0127/filevault/internal/infrastructure/repository"
	"github.com/zots0127/filevault/internal/infrastructure/storage"
	"github.com/zots0127/filevault/internal/infrastructure/tokenstore"
	"github.com/zots0127/filevault/internal/usecase"
	"github.com/zots0127/filevault/pkg/config"
	"github.com/zots0127/filevault/pkg/logger"
	"github.com/zots0127/filevault/pkg/metrics"
	"github.com/zots0127/filevault/pkg/middleware"
	"github.com/zots0127/filevault/pkg/signer"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	configPath := pflag.StringP("config", "c", os.Getenv("CONFIG_PATH"), "Configuration file path (env CONFIG_PATH)")
	showVersion := pflag.BoolP("version", "v", false, "Print the version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "filevault: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cm := config.NewConfigManager()
	cfg, err := cm.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return err
	}
	defer log.Sync()

	config.LogSummary(cfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStore(storage.Config{
		Root:       cfg.Storage.Root,
		QuotaBytes: cfg.Storage.QuotaBytes(),
	})
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	sessions, err := storage.NewSessionStore(cfg.Storage.Root)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}

	tokens, err := tokenstore.New(ctx, tokenstore.Config{
		Backend: cfg.Batch.Backend,
		Redis: tokenstore.RedisConfig{
			Addr:     cfg.Batch.RedisAddr,
			Password: cfg.Batch.RedisPassword,
			DB:       cfg.Batch.RedisDB,
			Prefix:   cfg.Batch.RedisPrefix,
		},
		SQLitePath: cfg.Batch.SQLitePath,
	})
	if err != nil {
		return fmt.Errorf("failed to open batch token store: %w", err)
	}
	defer tokens.Close()

	var mc *metrics.MetricsCollector
	if cfg.Metrics.Enabled {
		mc = metrics.NewMetricsCollector()
	}

	urlSigner := signer.New(signer.Config{
		Secret:        cfg.Signing.Key,
		PublicBaseURL: publicBaseURL(cfg),
		DefaultTTL:    cfg.Signing.DefaultTTL,
		MaxTTL:        cfg.Signing.MaxTTL,
	})

	auth, err := middleware.NewAuthentication(middleware.AuthConfig(cfg.Auth), log)
	if err != nil {
		return fmt.Errorf("failed to configure authentication: %w", err)
	}

	uploads := usecase.NewUploadUseCase(store, sessions, mc, log, cfg.Storage.ChunkSize)
	files := usecase.NewFileUseCase(store, urlSigner, mc, log)
	batch := usecase.NewBatchUseCase(store, tokens, mc, log, usecase.BatchConfig{
		TokenTTL: cfg.Batch.TokenTTL,
		SpoolDir: cfg.Batch.SpoolDir,
	})
	health := usecase.NewHealthUseCase(repository.NewHealthRepository(tokens, cfg.Storage.Root), version)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	mwConfig := middleware.DefaultConfig()
	mwConfig.MaxBodyBytes = cfg.Storage.MaxBodyBytes()
	mwConfig.CORS = middleware.CORSConfig(cfg.CORS)
	if cfg.Metrics.Enabled {
		mwConfig.SkipPaths = []string{"/healthz", cfg.Metrics.Path}
	}

	router := handler.NewRouter(handler.RouterConfig{
		Chain:       middleware.NewMiddlewareChain(mwConfig, log, mc),
		Auth:        auth,
		Metrics:     mc,
		MetricsPath: cfg.Metrics.Path,
	}, handler.Handlers{
		Upload: handler.NewUploadHandler(uploads, log),
		Files:  handler.NewFileHandler(files, log),
		Serve:  handler.NewServeHandler(files, mc, log),
		Batch:  handler.NewBatchHandler(batch, log),
		Health: handler.NewHealthHandler(health),
	})

	if watcher := watchConfig(cm, log); watcher != nil {
		defer watcher.Stop()
	}

	go sweepSessions(ctx, uploads, cfg.Storage.SweepInterval, cfg.Storage.SessionTTL, log)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.Info("server stopped")
	return nil
}

// publicBaseURL is the origin embedded in signed URLs
func publicBaseURL(cfg *config.Config) string {
	if cfg.Signing.PublicBaseURL != "" {
		return cfg.Signing.PublicBaseURL
	}
	return "http://localhost:" + cfg.Server.Port
}

// watchConfig reloads the config file on change and applies the new log
// level. Other settings take effect on restart.
func watchConfig(cm *config.ConfigManager, log logger.Logger) *config.ConfigWatcher {
	path := cm.ConfigPath()
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	cm.Watch(func(c *config.Config) {
		if err := log.SetLevel(c.Logging.Level); err != nil {
			log.Warn("ignoring reloaded log level", "level", c.Logging.Level, "error", err)
			return
		}
		log.Info("log level applied", "level", c.Logging.Level)
	})

	watcher, err := config.NewConfigWatcher(cm, log)
	if err != nil {
		log.Warn("config hot reload disabled", "error", err)
		return nil
	}
	watcher.Start()
	return watcher
}

// sweepSessions removes abandoned upload sessions on every tick
func sweepSessions(ctx context.Context, uploads *usecase.UploadUseCase, interval, olderThan time.Duration, log logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := uploads.Sweep(ctx, olderThan); err != nil {
				log.Warn("session sweep failed", "error", err)
			}
		}
	}
}
