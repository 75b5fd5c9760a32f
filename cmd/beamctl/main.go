// Command beamctl runs the beamline feedback control loop: it loads
// configuration, builds the simulated BPM/BIC/magnet bundle, opens the
// command and telemetry endpoints, and drives the control loop until it
// receives a shutdown signal.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"beamctl/internal/command"
	"beamctl/internal/config"
	"beamctl/internal/hw"
	"beamctl/internal/logging"
	"beamctl/internal/loop"
	"beamctl/internal/rtprio"
	"beamctl/internal/telemetry"
	"beamctl/pkg/types"
)

func main() {
	var (
		configPath = flag.String("config", "beamctl.yaml", "Path to configuration file")
	)
	flag.Parse()

	logger := logging.GetLogger("main")

	configManager := config.NewManager(*configPath)
	if err := configManager.LoadConfig(""); err != nil {
		logger.Warn("failed to load config, creating default", "path", *configPath, "error", err)
		if err := configManager.CreateDefaultConfig(); err != nil {
			logger.Error("failed to create default config", "error", err)
			os.Exit(1)
		}
	}

	cfg := configManager.GetConfig()
	applyLoggingConfig(cfg.Logging)

	bundle := hw.NewSimulatedBundle(cfg)

	cmdServer := command.NewServer()
	if err := cmdServer.Listen(cfg.CommandEndpoint); err != nil {
		logger.Error("failed to start command server", "address", cfg.CommandEndpoint, "error", err)
		os.Exit(1)
	}
	defer cmdServer.Close()

	publisher := telemetry.NewPublisher()
	if err := publisher.Listen(cfg.TelemetryEndpoint); err != nil {
		logger.Error("failed to start telemetry publisher", "address", cfg.TelemetryEndpoint, "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	orchestrator := loop.NewOrchestrator(cfg, bundle, cmdServer, publisher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configManager.WatchChanges(func(updated types.SystemConfig) {
		logger.Info("configuration reload ignored by the running loop; restart to apply", "path", *configPath)
	})
	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	if err := configManager.StartWatching(watchCtx); err != nil {
		logger.Warn("config hot-reload watcher failed to start", "error", err)
	}

	done := make(chan struct{})
	go func() {
		if cfg.Realtime.Enabled {
			rtprio.Apply(rtprio.Options{
				Core:       cfg.Realtime.CPUCore,
				Priority:   cfg.Realtime.Priority,
				LockMemory: true,
			})
		}
		orchestrator.Run(ctx)
		close(done)
	}()

	logger.Info("beamctl running",
		"command_endpoint", cfg.CommandEndpoint,
		"telemetry_endpoint", cfg.TelemetryEndpoint,
		"loop_frequency_hz", cfg.Loop.FrequencyHz,
	)
	fmt.Printf("beamctl listening: command=%s telemetry=%s\n", cfg.CommandEndpoint, cfg.TelemetryEndpoint)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")
	orchestrator.Stop()

	select {
	case <-done:
		logger.Info("control loop stopped cleanly")
	case <-time.After(5 * time.Second):
		logger.Warn("control loop did not stop within timeout, exiting anyway")
	}
}

func applyLoggingConfig(section types.LoggingSection) {
	cfg := &logging.Config{
		Level:  section.Level,
		Format: section.Format,
		Output: section.Output,
	}
	if err := logging.GetManager().UpdateConfig(cfg); err != nil {
		logging.Default().Warn("failed to apply logging config", "error", err)
	}
}
