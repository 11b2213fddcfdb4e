// Command flighthookd runs the golf launch-monitor bridge: it supervises
// device and simulator actors against a TOML configuration file and
// exposes a REST/WebSocket dashboard.
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

	"github.com/divotmaker/flighthook/internal/buildinfo"
	"github.com/divotmaker/flighthook/internal/bus"
	"github.com/divotmaker/flighthook/internal/config"
	"github.com/divotmaker/flighthook/internal/registry"
	"github.com/divotmaker/flighthook/internal/schema"
	"github.com/divotmaker/flighthook/internal/state"
	"github.com/divotmaker/flighthook/internal/supervisor"
	"github.com/divotmaker/flighthook/internal/system"
)

// shutdownGrace is how long main sleeps after the bus is closed, giving actor
// goroutines time to observe their shutdown flag; it does not wait on them.
const shutdownGrace = 2 * time.Second

func main() {
	configPath := flag.String("config", "", "path to flighthook.toml (overrides search path / FLIGHTHOOK_CONFIG)")
	logLevel := flag.String("log-level", "info", "log level: trace, debug, info, warn, error")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(buildinfo.String())
		return
	}

	level, err := config.ParseLogLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))

	explicit := *configPath
	if explicit == "" {
		explicit = os.Getenv("FLIGHTHOOK_CONFIG")
	}
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	result, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	if result.Migrated {
		logger.Warn("migrated legacy configuration schema, persisting", "path", cfgPath)
		if err := config.Save(cfgPath, result.Config); err != nil {
			logger.Error("failed to persist migrated configuration", "error", err)
		}
	}

	logger.Info("flighthook starting", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "config", cfgPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.New(logger, bus.DefaultBacklog)
	reg := registry.New()
	gameState, writeHandle := state.NewGameState()
	cfgStore := state.NewConfigStore(result.Config)
	shared := state.NewShared(cfgStore, gameState)

	sup := supervisor.New(ctx, reg, b, shared, logger)

	sysActor := system.New(writeHandle, sup, cfgPath, logger)
	sysSender := b.NewSender(schema.SystemActorID)
	sysReceiver := b.Subscribe()
	if err := sysActor.Start(ctx, shared, sysSender, sysReceiver); err != nil {
		logger.Error("failed to start system actor", "error", err)
		os.Exit(1)
	}
	reg.Register(schema.SystemActorID, registry.Entry{Actor: sysActor, Name: "system", Receiver: sysReceiver})

	select {
	case <-sysActor.Ready():
	case <-time.After(5 * time.Second):
		logger.Error("system actor did not become ready in time")
		os.Exit(1)
	}

	started := sup.StartAll()
	logger.Info("startup reconciliation complete", "started", started.Started)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	cancel()
	reg.StopAll()
	b.Close()
	time.Sleep(shutdownGrace)

	logger.Info("flighthook stopped")
}
