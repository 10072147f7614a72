// Package main is the entry point for the slidewired collaboration
// server: it hosts presentation rooms and relays presence, content
// deltas, and comments between connected editors.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/slidewire/slidewire/internal/collab"
	"github.com/slidewire/slidewire/internal/collab/archive"
	"github.com/slidewire/slidewire/internal/collab/wire"
	"github.com/slidewire/slidewire/internal/config"
	"github.com/slidewire/slidewire/internal/transport"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if opts.redisAddr != "" {
		cfg.Server.RedisAddr = opts.redisAddr
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel(),
	}))
	slog.SetDefault(log)

	managerOpts := []collab.ManagerOption{
		collab.WithGraceWindow(cfg.Collab.GraceWindow.Std()),
		collab.WithStaleAfter(cfg.Collab.StaleAfter.Std()),
		collab.WithManagerLogger(log),
	}

	// Comment archive is optional; without it room teardown discards
	// comment threads.
	var store *archive.Bolt
	if cfg.Collab.ArchivePath != "" {
		store, err = archive.OpenBolt(cfg.Collab.ArchivePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		defer store.Close()
		managerOpts = append(managerOpts, collab.WithArchive(store))
		log.Info("comment archive enabled", "path", cfg.Collab.ArchivePath)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis bridge is optional; without it each node relays only its
	// own connections.
	var rdb *redis.Client
	if cfg.Server.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Server.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: redis at %s: %v\n", cfg.Server.RedisAddr, err)
			return 1
		}
		defer rdb.Close()
	}

	// The bridge and the manager reference each other: the manager
	// publishes through the bridge, the bridge delivers remote traffic
	// back into the manager. The closure breaks the cycle; Run starts
	// only after the manager exists.
	var manager *collab.Manager
	var bridge *transport.RedisBridge
	if rdb != nil {
		bridge = transport.NewRedisBridge(rdb, log, func(roomID string, msg wire.Message) {
			manager.DeliverRemote(roomID, msg)
		})
		managerOpts = append(managerOpts, collab.WithRelay(bridge))
	}

	manager = collab.NewManager(managerOpts...)
	defer manager.Close()

	if bridge != nil {
		go func() {
			if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("redis bridge stopped", "error", err)
			}
		}()
		log.Info("redis bridge enabled", "addr", cfg.Server.RedisAddr)
	}

	sweeper, err := collab.NewSweeper(manager, cfg.Collab.SweepSpec, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid sweep spec %q: %v\n", cfg.Collab.SweepSpec, err)
		return 1
	}
	sweeper.Start()
	defer sweeper.Stop()

	// Live reload applies collaboration tunables without a restart;
	// listener changes still need one.
	if opts.configPath != "" {
		watcher, err := config.NewWatcher(opts.configPath, log, func(fresh config.Config) {
			manager.SetGraceWindow(fresh.Collab.GraceWindow.Std())
			manager.SetStaleAfter(fresh.Collab.StaleAfter.Std())
		})
		if err != nil {
			log.Warn("config watcher disabled", "error", err)
		} else {
			defer watcher.Close()
		}
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           transport.NewServer(manager, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("slidewired listening", "addr", cfg.Server.Addr, "version", version)
		errCh <- server.ListenAndServe()
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-signals:
		log.Info("shutting down", "signal", sig.String())
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("shutdown incomplete", "error", err)
		}
		return 0
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
}

type options struct {
	configPath string
	addr       string
	redisAddr  string
}

func parseFlags() options {
	var opts options
	var showVersion bool

	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.configPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.addr, "addr", "", "Listen address (overrides config)")
	flag.StringVar(&opts.redisAddr, "redis", "", "Redis address for cross-node relay (overrides config)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("slidewired %s (commit %s, built %s)\n", version, commit, date)
		os.Exit(0)
	}

	return opts
}
