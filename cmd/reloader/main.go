// Command reloader watches the restart markers touched by the apply endpoint and
// restarts LibreChat, debouncing bursts of changes into one restart.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/config-overlay/internal/logging"
	"github.com/eugenenazirov/config-overlay/internal/restart"
)

type options struct {
	markers   []string
	debounce  time.Duration
	container string
	command   []string
	logLevel  string
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	kingpin.FatalIfError(err, "invalid arguments")

	logger, err := logging.New(opts.logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, logger); err != nil {
		logger.Error("reloader stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	kingpinApp := kingpin.New("config-overlay-reloader", "Restarts LibreChat when the restart marker changes")
	markers := kingpinApp.Flag("marker", "Restart marker file to watch (repeatable)").Default("restart.flag").Envar("RESTART_MARKERS").Strings()
	debounce := kingpinApp.Flag("debounce", "Quiet period before restarting").Default("2s").Envar("RESTART_DEBOUNCE").Duration()
	container := kingpinApp.Flag("container", "Container restarted by the default command").Default("librechat_api").Envar("LIBRECHAT_CONTAINER").String()
	command := kingpinApp.Flag("command", "Restart command, one argument per flag (replaces docker restart)").Strings()
	logLevel := kingpinApp.Flag("log-level", "Minimum log level (debug, info, warn, error)").Envar("LOG_LEVEL").String()

	if _, err := kingpinApp.Parse(args); err != nil {
		return options{}, err
	}
	if *debounce < 0 {
		return options{}, fmt.Errorf("debounce must not be negative")
	}

	return options{
		markers:   splitMarkers(*markers),
		debounce:  *debounce,
		container: *container,
		command:   *command,
		logLevel:  *logLevel,
	}, nil
}

// splitMarkers accepts both repeated flags and the comma-separated form used by the
// server's RESTART_MARKERS.
func splitMarkers(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func restartCommand(opts options) []string {
	if len(opts.command) > 0 {
		return opts.command
	}
	return []string{"docker", "restart", opts.container}
}

func run(ctx context.Context, opts options, logger *zap.Logger) error {
	argv := restartCommand(opts)
	watcher, err := restart.NewWatcher(opts.markers, opts.debounce, restart.CommandAction(argv, logger), logger)
	if err != nil {
		return err
	}

	logger.Info("watching restart markers",
		zap.Strings("markers", opts.markers),
		zap.Duration("debounce", opts.debounce),
		zap.Strings("command", argv),
	)
	return watcher.Run(ctx)
}
