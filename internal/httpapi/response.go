package httpapi

import (
	"time"

	"github.com/gambitlabs/insights/internal/analyzer"
	"github.com/gambitlabs/insights/internal/eco"
)

// SubmitRequest is the body of POST /v1/analysis.
type SubmitRequest struct {
	GameID   string        `json:"game_id"`
	UserID   string        `json:"user_id,omitempty"`
	Platform string        `json:"platform"`
	Rating   int           `json:"rating,omitempty"`
	Moves    []string      `json:"moves"` // SAN or UCI, mixed
	Config   *ConfigParams `json:"config,omitempty"`
}

// ConfigParams overrides individual engine settings; zero fields fall back
// to the server defaults.
type ConfigParams struct {
	Depth      int `json:"depth,omitempty"`
	MoveTimeMS int `json:"move_time_ms,omitempty"`
	Skill      int `json:"skill,omitempty"`
	MultiPV    int `json:"multipv,omitempty"`
}

func (p *ConfigParams) merge(def analyzer.EngineConfig) analyzer.EngineConfig {
	cfg := def
	if p.Depth > 0 {
		cfg.Depth = p.Depth
	}
	if p.MoveTimeMS > 0 {
		cfg.MoveTimeMS = p.MoveTimeMS
	}
	if p.Skill > 0 {
		cfg.Skill = p.Skill
	}
	if p.MultiPV > 0 {
		cfg.MultiPV = p.MultiPV
	}
	return cfg
}

type SubmitResponse struct {
	JobID     string `json:"job_id"`
	ConfigKey string `json:"config_key"`
}

// AnalysisResponse is the JSON-friendly form of a stored game analysis.
type AnalysisResponse struct {
	GameID   string `json:"game_id"`
	UserID   string `json:"user_id,omitempty"`
	Platform string `json:"platform"`

	ConfigKey string                `json:"config_key"`
	Config    analyzer.EngineConfig `json:"config"`

	Opening *eco.Opening `json:"opening,omitempty"`

	TotalPlies     int            `json:"total_plies"`
	AnalyzedPlies  int            `json:"analyzed_plies"`
	TierCounts     map[string]int `json:"tier_counts"`
	BrilliantPlies []int          `json:"brilliant_plies,omitempty"`

	Accuracy analyzer.PhaseAccuracy `json:"accuracy"`

	Moves     []MoveResponse `json:"moves"`
	CreatedAt time.Time      `json:"created_at"`
}

type MoveResponse struct {
	Ply        int    `json:"ply"`
	SAN        string `json:"san"`
	UCI        string `json:"uci"`
	WhiteMoved bool   `json:"white_moved"`
	Analyzed   bool   `json:"analyzed"`

	EvalCP    *int    `json:"eval_cp,omitempty"`   // from the mover, after the move
	EvalMate  *int    `json:"eval_mate,omitempty"` // moves until mate, signed
	BestMove  string  `json:"best_move,omitempty"`
	LossCP    int     `json:"loss_cp"`
	Tier      string  `json:"tier,omitempty"`
	Brilliant bool    `json:"brilliant,omitempty"`
	Accuracy  float64 `json:"accuracy"`
}

// ToAnalysisResponse converts a stored analysis to its API shape.
func ToAnalysisResponse(ga *analyzer.GameAnalysis) *AnalysisResponse {
	if ga == nil {
		return nil
	}

	resp := &AnalysisResponse{
		GameID:         ga.GameID,
		UserID:         ga.UserID,
		Platform:       ga.Platform,
		ConfigKey:      ga.Config.Key(),
		Config:         ga.Config,
		Opening:        ga.Opening,
		TotalPlies:     ga.TotalPlies,
		AnalyzedPlies:  ga.AnalyzedPlies,
		TierCounts:     make(map[string]int, len(ga.TierCounts)),
		BrilliantPlies: ga.BrilliantPlies,
		Accuracy:       ga.Accuracy,
		Moves:          make([]MoveResponse, 0, len(ga.Moves)),
		CreatedAt:      ga.CreatedAt,
	}
	for tier, n := range ga.TierCounts {
		resp.TierCounts[tier.String()] = n
	}

	for _, m := range ga.Moves {
		mr := MoveResponse{
			Ply:        m.Ply,
			SAN:        m.SAN,
			UCI:        m.UCI,
			WhiteMoved: m.WhiteMoved,
			Analyzed:   m.Analyzed,
		}
		if m.Analyzed {
			// Report the position after the move from the mover's view.
			cp := -m.After.Score
			mate := -m.After.Mate
			mr.EvalCP = &cp
			if mate != 0 {
				mr.EvalMate = &mate
			}
			mr.BestMove = m.BestMove
			mr.LossCP = m.LossCP
			mr.Tier = m.Tier.String()
			mr.Brilliant = m.Brilliant
			mr.Accuracy = m.Accuracy
		}
		resp.Moves = append(resp.Moves, mr)
	}
	return resp
}
