package analyzer

import (
	"fmt"
	"time"

	"github.com/gambitlabs/insights/internal/classify"
	"github.com/gambitlabs/insights/internal/eco"
	"github.com/gambitlabs/insights/internal/engine"
)

// GameInput identifies one game handed down by the upstream import layer:
// a fully-resolved move list plus owner metadata.
type GameInput struct {
	GameID   string
	UserID   string
	Platform string
	Moves    []string // SAN or UCI, mixed
	Rating   int      // estimated strength of the analyzed player, 0 = unknown
}

// EngineConfig is the quality budget an analysis ran under. It is part of
// the storage key so re-analysis under different settings is distinguishable
// from a cache hit.
type EngineConfig struct {
	Depth      int `json:"depth"`
	MoveTimeMS int `json:"move_time_ms"`
	Skill      int `json:"skill"`
	MultiPV    int `json:"multipv"`
}

// Key is the canonical storage-key form of the configuration.
func (c EngineConfig) Key() string {
	return fmt.Sprintf("d%d-t%d-s%d-pv%d", c.Depth, c.MoveTimeMS, c.Skill, c.MultiPV)
}

// Budget converts the configuration to a per-position search budget.
func (c EngineConfig) Budget() engine.Budget {
	return engine.Budget{
		Depth:    c.Depth,
		MoveTime: time.Duration(c.MoveTimeMS) * time.Millisecond,
		Skill:    c.Skill,
		MultiPV:  c.MultiPV,
	}
}

// MoveRecord is one classified ply. The After evaluation of ply i is the
// same Evaluation as the Before of ply i+1: both are views of one shared
// per-position evaluation, so the continuity invariant holds by
// construction.
type MoveRecord struct {
	Ply        int
	SAN        string
	UCI        string
	WhiteMoved bool

	Before   *engine.Evaluation
	After    *engine.Evaluation
	BestMove string // UCI, from the Before evaluation

	Analyzed  bool // false when either evaluation failed irrecoverably
	LossCP    int
	Tier      classify.Tier
	Brilliant bool
	Accuracy  float64
}

// PhaseAccuracy is the mean per-ply accuracy per game phase. Phases with no
// analyzed plies report 100.
type PhaseAccuracy struct {
	Opening    float64 `json:"opening"`
	Middlegame float64 `json:"middlegame"`
	Endgame    float64 `json:"endgame"`
}

// GameAnalysis aggregates all MoveRecords of one game.
type GameAnalysis struct {
	GameID   string
	UserID   string
	Platform string
	Config   EngineConfig

	TotalPlies    int
	AnalyzedPlies int

	Opening *eco.Opening

	TierCounts     map[classify.Tier]int
	BrilliantPlies []int
	Accuracy       PhaseAccuracy

	Moves     []MoveRecord
	CreatedAt time.Time
}
