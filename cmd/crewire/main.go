// CLAUDE:SUMMARY CLI entry point for crewire — industrial CRE news ingestion, one-shot or scheduled, with an optional status server.
// Command crewire ingests industrial commercial-real-estate news feeds.
//
// Usage:
//
//	crewire -config crewire.yaml            # run on the configured interval
//	crewire -config crewire.yaml -once      # one ingestion pass, JSON to stdout
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hazyhaar/crewire/ingest"
)

func main() {
	configPath := flag.String("config", "crewire.yaml", "path to YAML config file")
	once := flag.Bool("once", false, "run one ingestion pass and exit")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *once); err != nil {
		logger.Error("crewire: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath string, once bool) error {
	cfg, err := ingest.LoadFile(configPath)
	if err != nil {
		return err
	}

	svc, err := ingest.New(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	if once {
		res := svc.Run(ctx)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	if cfg.StatusAddr != "" {
		srv := &http.Server{Addr: cfg.StatusAddr, Handler: svc.StatusHandler()}
		go func() {
			logger.Info("crewire: status server listening", "addr", cfg.StatusAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("crewire: status server", "error", err)
			}
		}()
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
		}()
	}

	logger.Info("crewire: starting", "sources", len(cfg.Sources), "scrapers", len(cfg.Scrapers), "interval", cfg.Interval)
	svc.Loop(ctx)
	return nil
}
