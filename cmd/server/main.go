package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Tyrowin/echochamber/internal/config"
	"github.com/Tyrowin/echochamber/internal/hub"
	"github.com/Tyrowin/echochamber/internal/logging"
	"github.com/Tyrowin/echochamber/internal/server"
)

func main() {
	addr := flag.String("addr", "", "listen address (overrides SERVER_ADDR)")
	flag.Parse()

	cfg := setupConfig()
	if *addr != "" {
		cfg.Addr = *addr
	}

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Starting echo chamber",
		"addr", cfg.Addr,
		"id_strategy", cfg.IDStrategy,
		"announce", cfg.Announce,
		"rate_limit_enabled", cfg.RateLimitEnabled)

	clock := clockwork.NewRealClock()
	h := hub.New(hub.WithClock(clock), hub.WithLogger(slog.Default()))

	srv, err := server.New(cfg, h, server.WithClock(clock), server.WithLogger(slog.Default()))
	if err != nil {
		slog.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	done := runGracefulShutdown(srv, cfg.ShutdownTimeout)

	if err := srv.Start(); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
	slog.Info("Server stopped")
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// slog is not configured yet
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// runGracefulShutdown stops the server on SIGINT or SIGTERM. The returned
// channel is closed once shutdown has finished.
func runGracefulShutdown(srv *server.Server, timeout time.Duration) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}
