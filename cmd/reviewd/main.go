// # cmd/reviewd/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reviewd/internal/config"
	"reviewd/internal/history"
	"reviewd/internal/observability"
	"reviewd/internal/server"
)

var (
	configPath = flag.String("config", "", "Path to config file (default: reviewd.toml, then reviewd.example.toml)")
	addr       = flag.String("addr", "", "Listen address override, e.g. :8000")
	ui         = flag.Bool("ui", false, "Browse review findings in a terminal UI (review mode only)")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	version    = flag.Bool("version", false, "Print version and exit")
)

const VERSION = "1.0.0"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("reviewd v%s\n", VERSION)
		return
	}

	// Setup logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	output := os.Stdout
	if *ui {
		// In UI mode, avoid stdout logs corrupting the TUI.
		output = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	os.Exit(run())
}

// run owns every resource that needs a clean shutdown; main exits with
// its return code only after the deferred teardowns have run.
func run() int {
	cfg, cfgPath, err := loadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}
	if *addr != "" {
		cfg.Server.Address = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		shutdown, err := observability.SetupTracing(ctx, cfg.Tracing.Endpoint)
		if err != nil {
			slog.Error("failed to set up tracing", "error", err)
			return 1
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				slog.Warn("tracing shutdown", "error", err)
			}
		}()
	}

	var (
		store    *history.Store
		recorder *history.Recorder
	)
	if cfg.DB.IsEnabled() {
		store, err = history.Open(cfg.DB.Path)
		if err != nil {
			slog.Error("failed to open history store", "error", err, "path", cfg.DB.Path)
			return 1
		}
		defer store.Close()

		recorder = history.NewRecorder(store, cfg.DB.QueueCapacity)
		defer func() {
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := recorder.Close(drainCtx); err != nil {
				slog.Warn("history recorder drain", "error", err)
			}
		}()
	}

	if flag.NArg() > 0 {
		return runReview(ctx, cfg, recorder, flag.Args())
	}
	return runServer(ctx, cfg, cfgPath, store, recorder)
}

// loadConfig resolves the config file: an explicit -config path must load,
// a discovered file must load, and no file at all means defaults. The
// returned path is empty when defaults are in use.
func loadConfig() (*config.Config, string, error) {
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		return cfg, *configPath, err
	}
	if path, ok := config.Discover(); ok {
		cfg, err := config.Load(path)
		return cfg, path, err
	}
	slog.Info("no config file found, using defaults")
	return config.Default(), "", nil
}

func runServer(ctx context.Context, cfg *config.Config, cfgPath string, store *history.Store, recorder *history.Recorder) int {
	srv, err := server.New(cfg, store, recorder)
	if err != nil {
		slog.Error("failed to initialize server", "error", err)
		return 1
	}

	if cfgPath != "" {
		watcher := config.NewWatcher(cfgPath, srv.UpdateConfig)
		if err := watcher.Start(ctx); err != nil {
			slog.Warn("config watcher unavailable", "error", err, "path", cfgPath)
		} else {
			defer watcher.Stop()
		}
	}

	if err := srv.Start(ctx); err != nil {
		slog.Error("server failed", "error", err)
		return 1
	}
	return 0
}
