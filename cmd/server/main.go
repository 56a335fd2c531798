package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/config-overlay/internal/application"
	"github.com/eugenenazirov/config-overlay/internal/config"
	"github.com/eugenenazirov/config-overlay/internal/logging"
)

var signalNotify = signal.Notify

func main() {
	overrides, err := parseFlags(os.Args[1:])
	kingpin.FatalIfError(err, "invalid arguments")

	cfg, err := config.Load(overrides)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx := context.Background()
	app, err := application.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	if err := app.Bootstrap(ctx); err != nil {
		logger.Fatal("failed to load override document", zap.Error(err))
	}

	if err := app.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	shutdown(app.Server(), app, cfg.Server.ShutdownGracePeriod, logger)
}

func parseFlags(args []string) (*config.CLIOverrides, error) {
	kingpinApp := kingpin.New("config-overlay", "Administrator configuration overlay - stores overrides and regenerates the merged LibreChat configuration")
	configFile := kingpinApp.Flag("config", "Path to YAML configuration file").String()
	port := kingpinApp.Flag("port", "HTTP port exposed by the service").String()
	logLevel := kingpinApp.Flag("log-level", "Minimum log level (debug, info, warn, error)").String()
	basePath := kingpinApp.Flag("base-config", "Base LibreChat YAML configuration").String()
	outputPath := kingpinApp.Flag("merged-config", "Where the merged configuration is written").String()
	storeDriver := kingpinApp.Flag("store", "Override store driver").Enum("memory", "surrealdb", "postgres")
	cacheDriver := kingpinApp.Flag("cache", "Effective configuration cache driver").Enum("local", "redis")
	pruneStale := kingpinApp.Flag("prune-stale", "Delete duplicate override documents at startup").Bool()
	rateLimitRPSFlag := kingpinApp.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	rateLimitBurstFlag := kingpinApp.Flag("rate-limit-burst", "Burst capacity for rate limiter").Default("-1").Int()

	if _, err := kingpinApp.Parse(args); err != nil {
		return nil, err
	}

	overrides := &config.CLIOverrides{
		ConfigFile:  *configFile,
		Port:        port,
		LogLevel:    logLevel,
		BasePath:    basePath,
		OutputPath:  outputPath,
		StoreDriver: storeDriver,
		CacheDriver: cacheDriver,
		PruneStale:  pruneStale,
	}

	if *rateLimitRPSFlag >= 0 {
		overrides.RateLimitRPS = rateLimitRPSFlag
	}

	if *rateLimitBurstFlag >= 0 {
		overrides.RateLimitBurst = rateLimitBurstFlag
	}

	return overrides, nil
}

// shutdown waits for a termination signal, drains the HTTP server and then
// releases the store and cache connections.
func shutdown(server *http.Server, resources io.Closer, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	logger.Info("shutting down server", zap.Stringer("signal", sig))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
	if err := resources.Close(); err != nil {
		logger.Warn("closing override store and cache failed", zap.Error(err))
	}
}
