package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/burstlab/burstd/internal/batch"
	"github.com/burstlab/burstd/internal/bridge"
	"github.com/burstlab/burstd/internal/config"
	"github.com/burstlab/burstd/internal/cron"
	"github.com/burstlab/burstd/internal/gateway"
	"github.com/burstlab/burstd/internal/history"
	"github.com/burstlab/burstd/internal/message"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("burstd v%s\n", version)
	case "serve":
		if err := serve(); err != nil {
			slog.Error("fatal", "error", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("burstd - adaptive message-batching gateway")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  burstd serve     Start the gateway")
	fmt.Println("  burstd version   Show version info")
}

func serve() error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	home := config.ResolveHome()
	slog.Info("burstd starting", "version", version, "home", home)

	for _, dir := range []string{
		config.HistoryDir(),
		config.LogsDir(),
		config.BridgesDir(),
	} {
		os.MkdirAll(dir, 0755)
	}

	cfgPath := config.ResolveConfigPath("")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Warn("config not found, using defaults", "path", cfgPath, "error", err)
		cfg = config.DefaultConfig()
	}
	config.Set(cfg)

	hist := history.NewStore(config.HistoryDir())
	if err := hist.Load(); err != nil {
		slog.Warn("failed to load history store", "error", err)
	}

	conns := gateway.NewConnManager()
	forwarder := &gateway.Forwarder{Conns: conns}

	opts := batchOptions(cfg)
	engine := batch.NewEngine(opts, batch.NewMemoryStore(), forwarder, hist, forwarder)

	config.RegisterOnReload(func(c *config.Config) {
		engine.SetOptions(batchOptions(c))
	})

	dedup := message.NewDedup(time.Duration(cfg.Batching.DedupTTLMinutes) * time.Minute)
	defer dedup.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutdown signal received", "signal", sig)
		cancel()
	}()

	go config.Watch(ctx)

	maint := cron.NewMaintenance(engine, hist)
	if err := maint.Start(); err != nil {
		slog.Warn("maintenance scheduler failed to start", "error", err)
	}
	defer maint.Stop()

	bridges := bridge.NewManager(
		fmt.Sprintf("ws://localhost:%d/ws", cfg.Gateway.Port),
		cfg.Gateway.Auth.Token,
	)
	for _, inst := range cfg.Bridges.Instances {
		dir := inst.Path
		if dir != "" && !filepath.IsAbs(dir) {
			dir = filepath.Join(config.BridgesDir(), dir)
		}
		bridges.Start(ctx, dir, inst.ID, inst.Enabled, inst.Env)
	}
	defer bridges.StopAll()

	defer func() {
		if err := hist.Save(); err != nil {
			slog.Warn("failed to save history store", "error", err)
		}
	}()

	srv := gateway.NewServer(cfg, engine, conns, dedup)
	return srv.Start(ctx)
}

// batchOptions maps the config's millisecond knobs onto engine options, with
// plain env vars taking final precedence.
func batchOptions(cfg *config.Config) batch.Options {
	opts := batch.DefaultOptions()
	b := cfg.Batching
	setMS := func(d *time.Duration, ms int) {
		if ms > 0 {
			*d = time.Duration(ms) * time.Millisecond
		}
	}
	setMS(&opts.TypingTimeout, b.TypingTimeoutMS)
	setMS(&opts.MaxWait, b.MaxWaitTimeMS)
	setMS(&opts.MinWait, b.MinWaitTimeMS)
	setMS(&opts.InitialDelay, b.InitialDelayMS)
	setMS(&opts.TypingFallback, b.TypingFallbackMS)
	if b.GroupSuffix != "" {
		opts.GroupSuffix = b.GroupSuffix
	}
	opts.ApplyEnv()
	return opts
}
