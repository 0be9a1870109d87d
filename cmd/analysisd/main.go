package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rustypig91/smart-chessboard-logic/internal/analysis"
	"github.com/rustypig91/smart-chessboard-logic/internal/engine"
	"github.com/rustypig91/smart-chessboard-logic/internal/events"
	"github.com/rustypig91/smart-chessboard-logic/internal/httpapi"
	"github.com/rustypig91/smart-chessboard-logic/internal/logx"
	"github.com/rustypig91/smart-chessboard-logic/internal/settings"
)

func main() {
	defaultStockfish := "/usr/bin/stockfish"
	if envPath := os.Getenv("STOCKFISH_PATH"); envPath != "" {
		defaultStockfish = envPath
	}

	var (
		// Server
		addr = flag.String("addr", ":8017", "listen address")

		// Stockfish
		stockfishPath = flag.String("stockfish", defaultStockfish, "path to Stockfish executable")

		// Workers
		workers = flag.Int("workers", 2, "number of engine workers")
		threads = flag.Int("threads", 1, "engine threads per worker")
		hashMB  = flag.Int("hash", 128, "engine hash MB per worker")

		// Analysis settings
		depth            = flag.Int("depth", 14, "default search depth")
		blunderThreshold = flag.Int("blunder-threshold", 50, "centipawn loss counted as a blunder")

		// Persistence
		settingsPath = flag.String("settings", "./data/settings.json", "settings override file (empty = disabled)")
		snapshotPath = flag.String("snapshot", "./data/cache.zst", "analysis cache snapshot file (empty = disabled)")
	)
	flag.Parse()

	logger := logx.NewLogger()

	// Settings registry: flags give the defaults, the override file wins.
	reg := settings.NewRegistry(*settingsPath)
	_ = reg.Register("analysis.depth", *depth, "default search depth")
	_ = reg.Register("analysis.blunder_threshold", *blunderThreshold, "centipawn loss counted as a blunder")
	_ = reg.Register("engine.threads", *threads, "engine threads per worker")
	_ = reg.Register("engine.hash_mb", *hashMB, "engine hash MB per worker")
	if err := reg.Load(); err != nil {
		logger.Warn().Err(err).Str("path", *settingsPath).Msg("failed to load settings overrides")
	}
	defaultDepth := reg.Int("analysis.depth", *depth)

	// Spawn one engine process per worker slot.
	runners := make([]analysis.Runner, 0, *workers)
	for i := 0; i < *workers; i++ {
		transport, err := engine.StartProcess(*stockfishPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", *stockfishPath).Msg("spawn engine")
		}
		h := engine.NewHandle(transport, engine.Config{
			Threads: reg.Int("engine.threads", *threads),
			HashMB:  reg.Int("engine.hash_mb", *hashMB),
			Logger:  logger.With().Str("component", "engine").Int("worker_id", i).Logger(),
		})
		runners = append(runners, h)
	}
	logger.Info().Int("workers", len(runners)).Str("path", *stockfishPath).Msg("engine processes spawned")

	cache := analysis.NewCache()
	if *snapshotPath != "" {
		recs, err := analysis.LoadSnapshot(*snapshotPath)
		if err != nil {
			logger.Warn().Err(err).Str("path", *snapshotPath).Msg("failed to load cache snapshot")
		} else if len(recs) > 0 {
			added := cache.Restore(recs)
			logger.Info().Int("entries", added).Msg("cache snapshot restored")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	disp := analysis.NewDispatcher(analysis.DispatcherConfig{
		Logger: logger.With().Str("component", "dispatcher").Logger(),
	}, cache, runners)
	disp.Start(ctx)

	coord := analysis.NewCoordinator(analysis.CoordinatorConfig{
		BlunderThreshold: reg.Int("analysis.blunder_threshold", *blunderThreshold),
		Logger:           logger.With().Str("component", "coordinator").Logger(),
	}, disp, cache)

	hub := events.NewHub()
	go hub.Run(ctx.Done())

	srv := &http.Server{
		Addr:         *addr,
		Handler:      httpapi.NewRouter(logger, coord, hub, defaultDepth),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("analysisd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	go func() {
		if err := coord.Ready(ctx); err != nil {
			logger.Error().Err(err).Msg("worker pool failed to initialize")
			return
		}
		logger.Info().Msg("worker pool ready")
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http server shutdown error")
	}

	coord.Stop()
	if *snapshotPath != "" {
		if err := os.MkdirAll(filepath.Dir(*snapshotPath), 0o755); err == nil {
			if err := analysis.SaveSnapshot(*snapshotPath, cache); err != nil {
				logger.Warn().Err(err).Str("path", *snapshotPath).Msg("failed to save cache snapshot")
			} else {
				logger.Info().Str("path", *snapshotPath).Msg("cache snapshot saved")
			}
		}
	}
	coord.Terminate()

	logger.Info().Msg("bye")
}
