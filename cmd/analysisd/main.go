package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gambitlabs/insights/internal/analyzer"
	"github.com/gambitlabs/insights/internal/classify"
	"github.com/gambitlabs/insights/internal/eco"
	"github.com/gambitlabs/insights/internal/engine"
	"github.com/gambitlabs/insights/internal/httpapi"
	"github.com/gambitlabs/insights/internal/logx"
	"github.com/gambitlabs/insights/internal/scheduler"
	"github.com/gambitlabs/insights/internal/store"
)

func main() {
	defaultStockfish := "stockfish"
	if envPath := os.Getenv("STOCKFISH_PATH"); envPath != "" {
		defaultStockfish = envPath
	}

	var (
		// Server
		addr = flag.String("addr", ":8010", "listen address")

		// Storage
		dbPath = flag.String("db", "./data/insights.db", "SQLite database path")

		// Stockfish
		stockfishPath = flag.String("stockfish", defaultStockfish, "path to Stockfish executable")
		engineCount   = flag.Int("engines", 4, "max engine processes in the pool")
		engineHash    = flag.Int("engine-hash", 256, "Stockfish hash MB per engine")
		engineThreads = flag.Int("engine-threads", 1, "Stockfish threads per engine")
		engineTTL     = flag.Duration("engine-ttl", 5*time.Minute, "idle engine retirement age")

		// Scheduler
		maxJobs    = flag.Int("jobs", 2, "concurrently running analysis jobs")
		queueDepth = flag.Int("queue-depth", 64, "queued jobs before submits are rejected")
		parallel   = flag.Int("parallel", 4, "concurrent position evaluations per game")

		// Default analysis quality
		depth    = flag.Int("depth", 16, "default search depth per position")
		moveTime = flag.Int("movetime", 200, "default search time per position (ms)")
		skill    = flag.Int("skill", 20, "default Stockfish skill level")
		multiPV  = flag.Int("multipv", 2, "default principal variations per position")

		// Classification
		thresholds = flag.String("thresholds", "", "YAML file overriding classification thresholds (empty = defaults)")

		// Openings
		ecoDir = flag.String("eco-dir", "./data/eco", "Directory containing ECO .tsv files (empty = disabled)")
	)
	flag.Parse()

	logger := logx.NewLogger()

	clsCfg := classify.DefaultConfig()
	if *thresholds != "" {
		var err error
		clsCfg, err = classify.LoadConfig(*thresholds)
		if err != nil {
			logger.Fatal().Err(err).Str("path", *thresholds).Msg("load thresholds")
		}
		logger.Info().Str("path", *thresholds).Msg("loaded classification thresholds")
	}

	db, err := store.Open(*dbPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", *dbPath).Msg("open store")
	}
	defer db.Close()
	logger.Info().Str("path", *dbPath).Msg("opened analysis store")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := engine.NewPool(engine.PoolConfig{
		Handle: engine.HandleConfig{
			Path:    *stockfishPath,
			HashMB:  *engineHash,
			Threads: *engineThreads,
		},
		MaxSize: *engineCount,
		IdleTTL: *engineTTL,
		Logger:  logger.With().Str("component", "engine-pool").Logger(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("create engine pool")
	}
	defer pool.Close()

	var ecoDB *eco.Database
	if *ecoDir != "" {
		ecoDB = eco.NewDatabase()
		if err := ecoDB.LoadDir(*ecoDir); err != nil {
			logger.Warn().Err(err).Str("dir", *ecoDir).Msg("failed to load ECO database")
			ecoDB = nil
		} else {
			logger.Info().Int("openings", ecoDB.Count()).Msg("ECO database loaded")
		}
	}

	an := analyzer.New(
		engine.NewEvaluator(pool, logger.With().Str("component", "evaluator").Logger()),
		classify.New(clsCfg),
		analyzer.Config{
			Parallel: *parallel,
			Openings: ecoDB,
			Logger:   logger.With().Str("component", "analyzer").Logger(),
		},
	)

	sched := scheduler.New(an, db, scheduler.Config{
		MaxRunning: *maxJobs,
		QueueDepth: *queueDepth,
		Logger:     logger.With().Str("component", "scheduler").Logger(),
	})
	go func() {
		if err := sched.Run(ctx); err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("scheduler stopped")
		}
	}()

	defaultCfg := analyzer.EngineConfig{
		Depth:      *depth,
		MoveTimeMS: *moveTime,
		Skill:      *skill,
		MultiPV:    *multiPV,
	}

	srv := &http.Server{
		Addr:         *addr,
		Handler:      httpapi.NewRouter(logger, sched, db, defaultCfg),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("api server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http server shutdown error")
	}

	logger.Info().Msg("shutdown complete")
}
