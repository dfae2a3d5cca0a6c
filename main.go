package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"serialscope/bus"
	"serialscope/channel"
	"serialscope/config"
	"serialscope/decoder"
	"serialscope/macro"
	"serialscope/monitoring"
	"serialscope/output"
	"serialscope/serial"
	"serialscope/store"
)

const (
	appName    = "serialscope"
	appVersion = "1.0.0"
)

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging")
	version := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("%s v%s\n", appName, appVersion)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := setupLogging(cfg, *debug)
	logger.Info("Starting serialscope",
		"version", appVersion,
		"port", cfg.Server.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Event bus carries everything the channels produce
	events := bus.New(logger)

	// Decoder registry: builtins plus any .js plugins
	registry := decoder.NewRegistry(cfg.Plugins.Dir, logger.With("component", "decoder"))
	if err := registry.LoadAll(); err != nil {
		logger.Error("Failed to load decoders", "error", err)
		os.Exit(1)
	}

	// Channel runtime
	manager := channel.NewManager(serial.Open, registry.DecodeAll, events, logger.With("component", "channel"))

	// Hot-plug polling
	poller := serial.NewPoller(serial.ListPorts, events, logger.With("component", "poller"))
	poller.Start(cfg.Ports.PollInterval())

	// Persistent stores
	macros, err := store.NewMacroStore(cfg.Store.DataDir, logger.With("component", "store"))
	if err != nil {
		logger.Error("Failed to load macro store", "error", err)
		os.Exit(1)
	}
	profiles, err := store.NewProfileStore(cfg.Store.DataDir, logger.With("component", "store"))
	if err != nil {
		logger.Error("Failed to load profile store", "error", err)
		os.Exit(1)
	}

	executor := macro.NewExecutor(macros, manager, logger.With("component", "macro"))

	// Optional NATS event mirror
	mirror, err := output.NewMirror(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger.With("component", "mirror"))
	if err != nil {
		logger.Error("Failed to connect NATS mirror", "error", err)
		os.Exit(1)
	}
	mirror.Start(events)

	server := monitoring.NewServer(cfg, &monitoring.Deps{
		Manager:  manager,
		List:     serial.ListPorts,
		Registry: registry,
		Macros:   macros,
		Profiles: profiles,
		Executor: executor,
		Events:   events,
		Shutdown: cancel,
	}, logger.With("component", "http"))

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	logger.Info("serialscope started", "port", cfg.Server.Port)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Shutdown requested")
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server failed", "error", err)
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("Shutting down gracefully...")

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn("Error stopping HTTP server", "error", err)
	}

	poller.Stop()

	done := make(chan struct{})
	go func() {
		manager.ShutdownAll()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("Channel shutdown timed out, forcing exit")
	}

	mirror.Stop()
	events.Close()

	logger.Info("serialscope stopped")
}

// setupLogging configures logging with optional file rotation
func setupLogging(cfg *config.Config, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	} else {
		switch cfg.Logging.Level {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Logging.Dir != "" {
		if err := os.MkdirAll(cfg.Logging.Dir, 0755); err != nil {
			log.Printf("Warning: failed to create log directory: %v", err)
			handler = slog.NewTextHandler(os.Stdout, opts)
		} else {
			writer := &lumberjack.Logger{
				Filename:   filepath.Join(cfg.Logging.Dir, "serialscope.log"),
				MaxSize:    cfg.Logging.MaxSizeMB,
				MaxBackups: cfg.Logging.MaxBackups,
				Compress:   cfg.Logging.Compress,
			}
			handler = slog.NewJSONHandler(writer, opts)
		}
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
