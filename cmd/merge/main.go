// Command merge regenerates the merged LibreChat configuration from the stored
// overrides and exits. Run it before the application starts.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/config-overlay/internal/application"
	"github.com/eugenenazirov/config-overlay/internal/config"
	"github.com/eugenenazirov/config-overlay/internal/logging"
)

type options struct {
	overrides *config.CLIOverrides
	strict    bool
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	kingpin.FatalIfError(err, "invalid arguments")

	cfg, err := config.Load(opts.overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(context.Background(), cfg, opts.strict, logger); err != nil {
		logger.Error("merge failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	kingpinApp := kingpin.New("config-overlay-merge", "Writes the merged LibreChat configuration from stored overrides")
	configFile := kingpinApp.Flag("config", "Path to YAML configuration file").String()
	logLevel := kingpinApp.Flag("log-level", "Minimum log level (debug, info, warn, error)").String()
	basePath := kingpinApp.Flag("base-config", "Base LibreChat YAML configuration").String()
	outputPath := kingpinApp.Flag("merged-config", "Where the merged configuration is written").String()
	storeDriver := kingpinApp.Flag("store", "Override store driver").Enum("memory", "surrealdb", "postgres")
	pruneStale := kingpinApp.Flag("prune-stale", "Delete duplicate override documents first").Bool()
	strict := kingpinApp.Flag("strict", "Exit non-zero when the merge fails instead of leaving the base configuration in effect").Bool()

	if _, err := kingpinApp.Parse(args); err != nil {
		return options{}, err
	}

	return options{
		overrides: &config.CLIOverrides{
			ConfigFile:  *configFile,
			LogLevel:    logLevel,
			BasePath:    basePath,
			OutputPath:  outputPath,
			StoreDriver: storeDriver,
			PruneStale:  pruneStale,
		},
		strict: *strict,
	}, nil
}

// run loads the override document and writes the merged configuration. Unless
// strict is set, failures are logged and LibreChat falls back to its base file.
func run(ctx context.Context, cfg config.Config, strict bool, logger *zap.Logger) error {
	err := generate(ctx, cfg, logger)
	if err == nil || strict {
		return err
	}
	logger.Warn("merged configuration not generated, base configuration stays in effect",
		zap.String("base", cfg.Merge.BasePath),
		zap.Error(err),
	)
	return nil
}

func generate(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	st, err := application.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = st.Close()
	}()

	if cfg.Store.PruneStale {
		n, err := st.PruneStale(ctx)
		if err != nil {
			return fmt.Errorf("prune stale documents: %w", err)
		}
		logger.Info("pruned stale override documents", zap.Int("count", n))
	}

	engine := application.NewEngine(cfg, st, logger, nil)
	if _, err := engine.Generate(ctx, nil); err != nil {
		return err
	}
	logger.Info("merged configuration ready", zap.String("path", cfg.Merge.OutputPath))
	return nil
}
