// Package analyzer turns a game's move list into classified MoveRecords and
// a GameAnalysis summary, fanning position evaluations out over the engine
// pool with bounded concurrency.
package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gambitlabs/insights/internal/chess"
	"github.com/gambitlabs/insights/internal/classify"
	"github.com/gambitlabs/insights/internal/eco"
	"github.com/gambitlabs/insights/internal/engine"
)

// PositionEvaluator is the unit of work the analyzer schedules: one
// Evaluation for one position under a quality budget.
type PositionEvaluator interface {
	Evaluate(ctx context.Context, fen string, b engine.Budget) (*engine.Evaluation, error)
}

// Config tunes one analyzer instance.
type Config struct {
	Parallel int           // concurrent position evaluations per game (default 4)
	Openings *eco.Database // optional; names the game's opening when set
	Logger   zerolog.Logger
}

// Analyzer analyzes whole games. Safe for concurrent use.
type Analyzer struct {
	eval PositionEvaluator
	cls  *classify.Classifier
	cfg  Config
	log  zerolog.Logger
}

func New(eval PositionEvaluator, cls *classify.Classifier, cfg Config) *Analyzer {
	if cfg.Parallel <= 0 {
		cfg.Parallel = 4
	}
	return &Analyzer{eval: eval, cls: cls, cfg: cfg, log: cfg.Logger}
}

// Analyze replays the game, evaluates every distinct position with bounded
// fan-out, classifies each ply, and reduces the results. progress, when
// non-nil, receives monotonic (pliesCompleted, totalPlies) updates.
//
// Structural errors (illegal move list, empty game) surface immediately.
// A single unanalyzable position does not fail the game: the adjacent plies
// are marked unanalyzed and excluded from aggregates.
func (a *Analyzer) Analyze(ctx context.Context, in GameInput, ecfg EngineConfig, progress func(done, total int)) (*GameAnalysis, error) {
	positions, played, err := chess.Replay(in.Moves)
	if err != nil {
		return nil, fmt.Errorf("replay game %s: %w", in.GameID, err)
	}
	totalPlies := len(played)

	start := time.Now()
	evals, err := a.evaluatePositions(ctx, positions, totalPlies, ecfg, progress)
	if err != nil {
		return nil, err
	}

	analysis := a.reduce(in, ecfg, positions, played, evals)

	a.log.Info().
		Str("game_id", in.GameID).
		Int("plies", totalPlies).
		Int("analyzed", analysis.AnalyzedPlies).
		Int("brilliant", len(analysis.BrilliantPlies)).
		Dur("elapsed", time.Since(start)).
		Msg("game analyzed")

	return analysis, nil
}

// evaluatePositions evaluates positions[0..n] concurrently. Results come
// back out of order; indexing by ply restores the order deterministically.
// Failed positions stay nil.
func (a *Analyzer) evaluatePositions(ctx context.Context, positions []chess.Position, totalPlies int, ecfg EngineConfig, progress func(done, total int)) ([]*engine.Evaluation, error) {
	evals := make([]*engine.Evaluation, len(positions))
	done := make(chan int, len(positions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Parallel)

	for i := range positions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			budget := ecfg.Budget()
			if positions[i].Ply == totalPlies {
				// The final position precedes no move; no ranked lines needed.
				budget.MultiPV = 1
			}

			ev, err := a.eval.Evaluate(gctx, positions[i].FEN, budget)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				// Partial results beat total failure: log and move on.
				a.log.Warn().Err(err).Int("ply", positions[i].Ply).Msg("position unanalyzable")
			} else {
				evals[i] = ev
			}
			done <- 1
			return nil
		})
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- g.Wait()
		close(done)
	}()

	// Drain completions inline so progress updates stay monotonic.
	finished := 0
	for range done {
		finished++
		if progress != nil {
			// n+1 positions cover n plies.
			completed := finished - 1
			if completed < 0 {
				completed = 0
			}
			if completed > totalPlies {
				completed = totalPlies
			}
			progress(completed, totalPlies)
		}
	}
	if err := <-waitErr; err != nil {
		return nil, err
	}
	return evals, nil
}

// reduce builds MoveRecords and the game-level summary from per-position
// evaluations.
func (a *Analyzer) reduce(in GameInput, ecfg EngineConfig, positions []chess.Position, played []chess.PlayedMove, evals []*engine.Evaluation) *GameAnalysis {
	bands := a.cls.Config().Bands

	analysis := &GameAnalysis{
		GameID:     in.GameID,
		UserID:     in.UserID,
		Platform:   in.Platform,
		Config:     ecfg,
		TotalPlies: len(played),
		TierCounts: make(map[classify.Tier]int),
		Moves:      make([]MoveRecord, 0, len(played)),
		CreatedAt:  time.Now().UTC(),
	}
	analysis.Opening = a.nameOpening(positions)

	phases := make(map[classify.GamePhase]*phaseSum)

	for _, pm := range played {
		before := evals[pm.Ply-1]
		after := evals[pm.Ply]

		rec := MoveRecord{
			Ply:        pm.Ply,
			SAN:        pm.SAN,
			UCI:        pm.UCI,
			WhiteMoved: positions[pm.Ply-1].WhiteToMove,
			Before:     before,
			After:      after,
		}

		if before == nil || after == nil {
			analysis.Moves = append(analysis.Moves, rec)
			continue
		}

		rec.Analyzed = true
		rec.BestMove = before.BestMove

		// The sacrifice scan replays the position, so only pay for it when
		// the move is a Best candidate.
		sacrifice := 0
		if classify.Loss(before, after) <= bands.Best {
			if sac, err := chess.NetSacrifice(positions[pm.Ply-1].FEN, pm.UCI); err == nil {
				sacrifice = sac
			} else {
				a.log.Warn().Err(err).Int("ply", pm.Ply).Msg("sacrifice scan failed")
			}
		}

		res := a.cls.Classify(classify.MoveInput{
			Before:         before,
			After:          after,
			LegalMoves:     positions[pm.Ply-1].LegalMoves,
			NetSacrificeCP: sacrifice,
			Rating:         in.Rating,
		})

		rec.LossCP = res.LossCP
		rec.Tier = res.Tier
		rec.Brilliant = res.Brilliant
		rec.Accuracy = res.Accuracy

		analysis.AnalyzedPlies++
		analysis.TierCounts[res.Tier]++
		if res.Brilliant {
			analysis.BrilliantPlies = append(analysis.BrilliantPlies, pm.Ply)
		}

		phase := a.cls.Phase(pm.Ply)
		if phases[phase] == nil {
			phases[phase] = &phaseSum{}
		}
		phases[phase].sum += res.Accuracy
		phases[phase].n++

		analysis.Moves = append(analysis.Moves, rec)
	}

	analysis.Accuracy = PhaseAccuracy{
		Opening:    phaseMean(phases[classify.PhaseOpening]),
		Middlegame: phaseMean(phases[classify.PhaseMiddlegame]),
		Endgame:    phaseMean(phases[classify.PhaseEndgame]),
	}
	return analysis
}

// nameOpening finds the deepest book position the game passed through.
// Checked back to front so the most specific opening wins.
func (a *Analyzer) nameOpening(positions []chess.Position) *eco.Opening {
	if a.cfg.Openings == nil {
		return nil
	}
	last := len(positions) - 1
	if bound := a.cls.Config().Phases.OpeningPlies; last > bound {
		last = bound
	}
	for i := last; i >= 1; i-- {
		if o := a.cfg.Openings.LookupFEN(positions[i].FEN); o != nil {
			return o
		}
	}
	return nil
}

type phaseSum struct {
	sum float64
	n   int
}

// phaseMean averages a phase's per-ply accuracy; an empty phase is a perfect
// phase.
func phaseMean(p *phaseSum) float64 {
	if p == nil || p.n == 0 {
		return 100
	}
	return p.sum / float64(p.n)
}
