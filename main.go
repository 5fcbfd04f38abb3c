package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"adsb2mqtt/internal/config"
	"adsb2mqtt/internal/daemon"
	"adsb2mqtt/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML)")
	flag.Parse()

	if *configPath != "" {
		os.Setenv(config.ConfigPathEnv, *configPath)
	}

	cfg, err := config.Load()
	if err != nil {
		// Logger isn't initialized yet
		basicLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		basicLogger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logCloser := logging.Init(cfg.Log)
	defer logCloser.Close()

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := daemon.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to start daemon", "error", err)
		logCloser.Close()
		os.Exit(1)
	}

	slog.Info("Bridging BaseStation feed to MQTT",
		"basestation_addr", cfg.BaseStation.Addr,
		"mqtt_server", cfg.MQTT.Server,
		"topic_base", cfg.MQTT.TopicBase,
	)

	runErr := d.Run(ctx)
	if runErr != nil {
		slog.Error("Daemon stopped with error", "error", runErr)
	}

	if err := d.Close(); err != nil {
		slog.Error("Error during shutdown", "error", err)
	}
	slog.Info("Shutdown complete")

	if runErr != nil {
		logCloser.Close()
		os.Exit(1)
	}
}
