// Command drainhubd runs one notification server process: a WebSocket gateway
// over one Registry/Broadcaster/Coordinator triple. On SIGINT/SIGTERM it stops
// admitting connections, cancels the broadcaster and drains the live
// connections before exiting.
package main

import (
	"context"
	"errors"
	"net/http"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/driftlock/drainhub"
	"github.com/driftlock/drainhub/internal/config"
	"github.com/driftlock/drainhub/internal/wsgate"
)

func main() {
	cfg := config.FromEnv()
	logger := newLogger(cfg)

	logger.Info("starting notification server")

	// Wire the per-process triple:
	registry := drainhub.NewRegistry()
	registry.SetLogger(logger)

	broadcaster := drainhub.NewBroadcaster(registry, cfg.BroadcastInterval)
	broadcaster.SetLogger(logger)
	bctx, stopBroadcast := context.WithCancel(context.Background())
	defer stopBroadcast()
	go broadcaster.Run(bctx)

	coordinator := drainhub.NewCoordinator(registry, stopBroadcast, cfg.ShutdownTimeout, cfg.PollInterval)
	coordinator.SetLogger(logger)

	metrics := wsgate.NewMetrics(registry, broadcaster)
	gate := wsgate.New(registry, metrics)
	gate.SetLogger(logger)

	httpServer := &http.Server{
		ReadHeaderTimeout: 5 * time.Second,
		Addr:              cfg.Addr,
		Handler:           gate.Routes(),
	}

	// The HTTP server stays up through draining so that late connection
	// attempts receive a proper "service draining" close instead of a TCP
	// refusal; it is shut down only after the coordinator completes.
	go func() {
		logger.Infof("listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("listen on %s: %v", cfg.Addr, err)
		}
	}()

	// Wait for os.Signal to occur, then drain and exit:
	appCtx, cancel := drainhub.WithSignals(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	coordinator.Wait(appCtx)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown HTTP server: %v", err)
	}

	logger.Info("server stopped")
}

func newLogger(cfg config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
