// Package engine drives external UCI evaluation engines: a process handle
// speaking the request/response protocol, a bounded lease pool over those
// handles, and a budgeted position evaluator on top.
package engine

import (
	"errors"
	"time"
)

var (
	// ErrPoolExhausted is returned when no engine handle could be leased
	// within the bounded wait. Retryable.
	ErrPoolExhausted = errors.New("engine pool exhausted")

	// ErrHardTimeout is returned when a search ran past the hard ceiling and
	// the engine process was killed. Retryable on a fresh handle.
	ErrHardTimeout = errors.New("engine hard timeout")

	// ErrEngineFault is returned when the engine process died or broke
	// protocol mid-search. Retryable on a fresh handle.
	ErrEngineFault = errors.New("engine fault")

	// ErrPoolClosed is returned by Acquire after the pool shuts down.
	ErrPoolClosed = errors.New("engine pool closed")
)

// IsTransient reports whether err is one of the retryable engine errors.
func IsTransient(err error) bool {
	return errors.Is(err, ErrPoolExhausted) ||
		errors.Is(err, ErrHardTimeout) ||
		errors.Is(err, ErrEngineFault)
}

// mateScore anchors mate distances on the centipawn scale so that mate
// evaluations always dominate material ones.
const mateScore = 32000

// Budget bounds one position search. The engine stops at whichever of Depth
// or MoveTime it hits first; HardTimeout is the kill ceiling beyond that.
type Budget struct {
	Depth       int           // target search depth in plies
	MoveTime    time.Duration // soft wall-clock cap
	HardTimeout time.Duration // 0 = 3x MoveTime
	Skill       int           // engine skill level 0-20, 20 = full strength
	MultiPV     int           // ranked lines to report, 0/1 = best only
}

func (b Budget) hardDeadline() time.Duration {
	if b.HardTimeout > 0 {
		return b.HardTimeout
	}
	if b.MoveTime > 0 {
		return 3 * b.MoveTime
	}
	return 60 * time.Second
}

// Line is one ranked candidate line from a multi-PV search.
type Line struct {
	Move  string // first move of the line, UCI
	Score int    // centipawns from the side to move
	Mate  int    // moves to mate (+ deliver, - receive), 0 = none
	Depth int
}

// POVScore folds mate distance onto the centipawn scale, still from the
// side to move's perspective.
func (l Line) POVScore() int {
	return povScore(l.Score, l.Mate)
}

// Evaluation is the engine's verdict for one position.
type Evaluation struct {
	Score    int    // centipawns from the side to move
	Mate     int    // moves to mate (+ deliver, - receive), 0 = none
	BestMove string // UCI
	Depth    int    // depth actually reached
	Lines    []Line // ranked best-first; len <= Budget.MultiPV
}

// POVScore folds mate distance onto the centipawn scale, from the side to
// move's perspective.
func (e *Evaluation) POVScore() int {
	return povScore(e.Score, e.Mate)
}

// MatePlies returns the mate distance in plies: positive when the side to
// move delivers mate, negative when it receives it, 0 when no mate.
func (e *Evaluation) MatePlies() int {
	switch {
	case e.Mate > 0:
		return 2*e.Mate - 1
	case e.Mate < 0:
		return 2 * e.Mate
	}
	return 0
}

func povScore(cp, mate int) int {
	switch {
	case mate > 0:
		return mateScore - (2*mate - 1)
	case mate < 0:
		return -(mateScore - 2*(-mate))
	}
	return cp
}
