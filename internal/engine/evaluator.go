package engine

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/gambitlabs/insights/internal/metrics"
)

// Evaluator runs budgeted searches through the pool's lease discipline:
// acquire, evaluate, release, with one retry on a fresh handle after a
// transient fault.
type Evaluator struct {
	pool *Pool
	log  zerolog.Logger
}

func NewEvaluator(pool *Pool, log zerolog.Logger) *Evaluator {
	return &Evaluator{pool: pool, log: log}
}

// Evaluate produces one Evaluation for the position. Transient engine
// failures (crash, hard timeout, pool exhaustion) are retried once; a second
// failure surfaces to the caller, which decides whether to mark the ply
// unanalyzable.
func (e *Evaluator) Evaluate(ctx context.Context, fen string, b Budget) (*Evaluation, error) {
	ev, err := e.once(ctx, fen, b)
	if err == nil {
		metrics.PositionsEvaluated.Inc()
		return ev, nil
	}
	if !IsTransient(err) || ctx.Err() != nil {
		return nil, err
	}

	e.log.Warn().Err(err).Str("fen", fen).Msg("evaluation failed, retrying on fresh handle")
	ev, err = e.once(ctx, fen, b)
	if err != nil {
		metrics.PositionsFailed.Inc()
		return nil, err
	}
	metrics.PositionsEvaluated.Inc()
	return ev, nil
}

func (e *Evaluator) once(ctx context.Context, fen string, b Budget) (*Evaluation, error) {
	h, err := e.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer e.pool.Release(h)

	ev, err := h.Evaluate(ctx, fen, b)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			h.Fault()
		}
		return nil, err
	}
	return ev, nil
}
