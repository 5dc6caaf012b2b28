package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/freeeve/pgn/v3"

	"github.com/gambitlabs/insights/internal/analyzer"
	"github.com/gambitlabs/insights/internal/chess"
	"github.com/gambitlabs/insights/internal/classify"
	"github.com/gambitlabs/insights/internal/eco"
	"github.com/gambitlabs/insights/internal/engine"
	"github.com/gambitlabs/insights/internal/logx"
	"github.com/gambitlabs/insights/internal/store"
)

func main() {
	defaultStockfish := "stockfish"
	if envPath := os.Getenv("STOCKFISH_PATH"); envPath != "" {
		defaultStockfish = envPath
	}

	var (
		inputPath = flag.String("pgn", "", "Path to PGN file (supports .zst)")
		dbPath    = flag.String("db", "./data/insights.db", "SQLite database path")
		platform  = flag.String("platform", "lichess", "platform tag for stored analyses")
		maxGames  = flag.Int("max-games", 0, "Maximum games to analyze (0 = unlimited)")

		stockfishPath = flag.String("stockfish", defaultStockfish, "path to Stockfish executable")
		engineCount   = flag.Int("engines", 4, "max engine processes in the pool")
		engineHash    = flag.Int("engine-hash", 256, "Stockfish hash MB per engine")
		parallel      = flag.Int("parallel", 4, "concurrent position evaluations per game")

		depth    = flag.Int("depth", 16, "search depth per position")
		moveTime = flag.Int("movetime", 200, "search time per position (ms)")
		multiPV  = flag.Int("multipv", 2, "principal variations per position")

		ecoDir = flag.String("eco-dir", "./data/eco", "Directory containing ECO .tsv files (empty = disabled)")

		freeEvery = flag.Int("free-every", 50, "return memory to the OS every N games")
	)
	flag.Parse()

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: batch-analyze --pgn <file.pgn[.zst]> [options]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	logger := logx.NewLogger()
	logger.Info().
		Str("pgn", *inputPath).
		Str("db", *dbPath).
		Int("depth", *depth).
		Msg("starting batch analysis")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := store.Open(*dbPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("open store")
	}
	defer db.Close()

	pool, err := engine.NewPool(engine.PoolConfig{
		Handle: engine.HandleConfig{
			Path:   *stockfishPath,
			HashMB: *engineHash,
		},
		MaxSize: *engineCount,
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
		}
	}

	an := analyzer.New(
		engine.NewEvaluator(pool, logger.With().Str("component", "evaluator").Logger()),
		classify.New(classify.DefaultConfig()),
		analyzer.Config{
			Parallel: *parallel,
			Openings: ecoDB,
			Logger:   logger.With().Str("component", "analyzer").Logger(),
		},
	)

	ecfg := analyzer.EngineConfig{
		Depth:      *depth,
		MoveTimeMS: *moveTime,
		Skill:      20,
		MultiPV:    *multiPV,
	}

	var analyzed, skipped, failed int64
	startTime := time.Now()

	parser := pgn.Games(*inputPath)

	stopped := false
gameLoop:
	for game := range parser.Games {
		select {
		case <-ctx.Done():
			if !stopped {
				logger.Info().Msg("interrupted, stopping parser...")
				parser.Stop()
				stopped = true
			}
			break gameLoop
		default:
		}

		if *maxGames > 0 && analyzed >= int64(*maxGames) {
			logger.Info().Int64("games", analyzed).Msg("reached max games limit")
			parser.Stop()
			break gameLoop
		}

		if len(game.Moves) == 0 {
			skipped++
			continue
		}

		moves := make([]string, len(game.Moves))
		for i, mv := range game.Moves {
			moves[i] = chess.MoveToUCI(mv)
		}

		in := analyzer.GameInput{
			GameID:   gameIDFromTags(game.Tags, analyzed),
			UserID:   game.Tags["White"],
			Platform: *platform,
			Moves:    moves,
			Rating:   parseRating(game.Tags["WhiteElo"]),
		}

		ga, err := an.Analyze(ctx, in, ecfg, nil)
		if err != nil {
			if ctx.Err() != nil {
				break gameLoop
			}
			logger.Error().Err(err).Str("game_id", in.GameID).Msg("analysis failed")
			failed++
			continue
		}
		if _, err := db.WriteGameAnalysis(ctx, ga); err != nil {
			logger.Error().Err(err).Str("game_id", in.GameID).Msg("persist failed")
			failed++
			continue
		}
		analyzed++

		if analyzed%int64(*freeEvery) == 0 {
			debug.FreeOSMemory()
			logger.Info().
				Int64("analyzed", analyzed).
				Int64("skipped", skipped).
				Dur("elapsed", time.Since(startTime)).
				Msg("progress")
		}
	}

	if err := parser.Err(); err != nil {
		logger.Error().Err(err).Msg("parser error")
	}

	logger.Info().
		Int64("analyzed", analyzed).
		Int64("skipped", skipped).
		Int64("failed", failed).
		Dur("elapsed", time.Since(startTime)).
		Msg("batch analysis done")
}

// gameIDFromTags prefers the platform's game URL slug, then the Site tag,
// then a positional fallback.
func gameIDFromTags(tags map[string]string, idx int64) string {
	if site := tags["Site"]; site != "" {
		if i := strings.LastIndexByte(site, '/'); i >= 0 && i+1 < len(site) {
			return site[i+1:]
		}
		return site
	}
	return fmt.Sprintf("game-%d", idx+1)
}

func parseRating(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
