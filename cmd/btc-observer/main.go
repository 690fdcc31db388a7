package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/keato/btc-observer/internal/config"
	"github.com/keato/btc-observer/internal/discovery"
	"github.com/keato/btc-observer/internal/logger"
	"github.com/keato/btc-observer/internal/metrics"
	"github.com/keato/btc-observer/internal/peerclient"
	"github.com/keato/btc-observer/internal/peerstore"
)

// retryBackoff is how long the main loop waits after every failed
// discovery-and-connect sweep before trying again.
const retryBackoff = 30 * time.Second

func main() {
	configPath := flag.String("config", "config.json", "path to JSON config file")
	flag.Parse()

	logger.Log.Info().Msg("=== btc-observer handshake client ===")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("failed to load config file, using defaults")
		defaults := config.Default()
		cfg = &defaults
	}
	logger.Log.Info().Str("network", cfg.Handshake.Network).Msg("configuration loaded")

	var store *peerstore.Store
	if cfg.Peerstore.DBHost != "" {
		store, err = peerstore.Open(cfg.Peerstore)
		if err != nil {
			logger.Log.Warn().Err(err).Msg("failed to connect to peerstore database, continuing without persistence")
		} else {
			defer store.Close()
			metrics.SeedFromDB(store.DB())
			logger.Log.Info().Msg("connected to peerstore database")
		}
	}

	metrics.StartMetricsServer(cfg.Metrics.ListenAddr)
	logger.Log.Info().Str("addr", cfg.Metrics.ListenAddr).Msg("prometheus metrics server started")

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		runLoop(ctx, *cfg, store)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Log.Info().Str("signal", sig.String()).Msg("received signal, initiating graceful shutdown")

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Log.Info().Msg("shutdown complete")
	case <-time.After(10 * time.Second):
		logger.Log.Warn().Msg("shutdown timeout - forcing exit")
	}
}

// runLoop repeatedly discovers candidates and drives one handshake at a
// time to completion, holding the established connection open until it
// drops or the context is cancelled, then starting over.
func runLoop(ctx context.Context, cfg config.Config, store *peerstore.Store) {
	client := peerclient.New(cfg.Handshake, store)

	for {
		if ctx.Err() != nil {
			return
		}

		candidates := discovery.Candidates(ctx, cfg.Discovery)
		conn, info, err := client.Connect(ctx, candidates)
		if err != nil {
			logger.Log.Warn().Err(err).Msg("no peer established this sweep")
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryBackoff):
				continue
			}
		}

		logger.Log.Info().
			Str("peer", info.PublicAddress).
			Int32("version", info.Version.Version).
			Str("user_agent", info.Version.UserAgent).
			Msg("peer established, holding connection")

		holdUntilClosed(ctx, conn)
	}
}

// holdUntilClosed blocks until ctx is cancelled or the connection's peer
// closes it, then releases the connection. Post-handshake message
// routing is out of scope; this just keeps the established channel
// alive as evidence of a successful handshake.
func holdUntilClosed(ctx context.Context, conn net.Conn) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 1)
		conn.Read(buf)
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}
	conn.Close()
}
