package classify

import (
	"github.com/gambitlabs/insights/internal/engine"
)

// MoveInput carries everything the classifier needs for one played ply.
// Before is the evaluation with the mover to move; After is the evaluation
// of the resulting position, with the opponent to move.
type MoveInput struct {
	Before *engine.Evaluation
	After  *engine.Evaluation

	LegalMoves     int // legal moves the mover had; 1 = forced
	NetSacrificeCP int // material given up by the move, see chess.NetSacrifice
	Rating         int // estimated strength of the player, 0 = unknown
}

// Result is the classification attached to a MoveRecord.
type Result struct {
	Tier      Tier
	LossCP    int
	Brilliant bool
	Accuracy  float64
}

// Classifier applies a threshold table to evaluated moves.
type Classifier struct {
	cfg Config
}

func New(cfg Config) *Classifier {
	return &Classifier{cfg: cfg}
}

func (c *Classifier) Config() Config {
	return c.cfg
}

// Loss computes the quality loss of the played move in centipawns from the
// mover's perspective, clamped to zero. Mate scores fold onto the centipawn
// scale so losing a forced mate registers as a large loss.
func Loss(before, after *engine.Evaluation) int {
	// After has the opponent to move; negate to the mover's perspective.
	played := -after.POVScore()
	loss := before.POVScore() - played
	if loss < 0 {
		loss = 0
	}
	return loss
}

// Classify maps one move to its tier and runs the brilliant overlay.
func (c *Classifier) Classify(in MoveInput) Result {
	loss := Loss(in.Before, in.After)
	tier := c.cfg.Bands.Tier(loss)
	res := Result{
		Tier:     tier,
		LossCP:   loss,
		Accuracy: Accuracy(loss),
	}
	if tier == TierBest {
		res.Brilliant = c.isBrilliant(in, loss)
	}
	return res
}

// isBrilliant implements the multi-factor overlay. Only called for Best
// moves, so brilliant always implies the Best tier.
func (c *Classifier) isBrilliant(in MoveInput, loss int) bool {
	// A forced move is never brilliant.
	if in.LegalMoves <= 1 {
		return false
	}

	// Non-obviousness gate: the top line must clearly beat the runner-up,
	// which rejects trivial recaptures and only-moves. Without a multi-PV
	// evaluation the gate cannot pass.
	if len(in.Before.Lines) < 2 {
		return false
	}
	gap := in.Before.Lines[0].POVScore() - in.Before.Lines[1].POVScore()
	if gap < c.cfg.Brilliant.ObviousGapCP {
		return false
	}

	mateBound, sacrificeCP := c.cfg.thresholdsFor(in.Rating)

	// Mate trigger: the move creates a short forced mate for the mover that
	// was not already on the board.
	moverMatePlies := -in.After.MatePlies() // flip: opponent receives = mover delivers
	hadMate := in.Before.Mate > 0
	if moverMatePlies > 0 && moverMatePlies <= mateBound && !hadMate {
		return true
	}

	// Sacrifice trigger: real material given up while the resulting position
	// is not losing and is winning or still among the best continuations.
	if in.NetSacrificeCP >= sacrificeCP {
		postMove := -in.After.POVScore()
		if postMove >= c.cfg.Brilliant.LosingFloorCP &&
			(postMove >= c.cfg.Brilliant.WinningFloorCP || loss <= c.cfg.Brilliant.BestGapCP) {
			return true
		}
	}

	return false
}

// Phase returns the game phase of a ply under the configured thresholds.
type GamePhase int

const (
	PhaseOpening GamePhase = iota
	PhaseMiddlegame
	PhaseEndgame
)

func (p GamePhase) String() string {
	switch p {
	case PhaseOpening:
		return "opening"
	case PhaseMiddlegame:
		return "middlegame"
	}
	return "endgame"
}

// Phase maps a 1-based ply index to its game phase.
func (c *Classifier) Phase(ply int) GamePhase {
	switch {
	case ply <= c.cfg.Phases.OpeningPlies:
		return PhaseOpening
	case ply <= c.cfg.Phases.MiddlegamePlies:
		return PhaseMiddlegame
	}
	return PhaseEndgame
}
