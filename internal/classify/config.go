// Package classify maps evaluated moves onto the quality taxonomy and runs
// the brilliant-move heuristic. All thresholds are configuration data so
// recalibration never touches the algorithm.
package classify

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Tier is one step of the ordered move-quality taxonomy.
type Tier int

const (
	TierBest Tier = iota
	TierGreat
	TierExcellent
	TierGood
	TierAcceptable
	TierInaccuracy
	TierMistake
	TierBlunder
)

var tierNames = [...]string{
	"best", "great", "excellent", "good",
	"acceptable", "inaccuracy", "mistake", "blunder",
}

func (t Tier) String() string {
	if t < 0 || int(t) >= len(tierNames) {
		return "unknown"
	}
	return tierNames[t]
}

// TierFromString parses a tier name as stored in the database.
func TierFromString(s string) (Tier, error) {
	for i, name := range tierNames {
		if name == s {
			return Tier(i), nil
		}
	}
	return 0, fmt.Errorf("unknown tier %q", s)
}

// Tiers lists every tier in order.
func Tiers() []Tier {
	out := make([]Tier, len(tierNames))
	for i := range out {
		out[i] = Tier(i)
	}
	return out
}

// Bands holds the centipawn upper bound per tier; a loss above the Mistake
// bound is a Blunder. Non-overlapping and ascending.
type Bands struct {
	Best       int `yaml:"best"`
	Great      int `yaml:"great"`
	Excellent  int `yaml:"excellent"`
	Good       int `yaml:"good"`
	Acceptable int `yaml:"acceptable"`
	Inaccuracy int `yaml:"inaccuracy"`
	Mistake    int `yaml:"mistake"`
}

// Tier maps a quality loss to its tier.
func (b Bands) Tier(lossCP int) Tier {
	switch {
	case lossCP <= b.Best:
		return TierBest
	case lossCP <= b.Great:
		return TierGreat
	case lossCP <= b.Excellent:
		return TierExcellent
	case lossCP <= b.Good:
		return TierGood
	case lossCP <= b.Acceptable:
		return TierAcceptable
	case lossCP <= b.Inaccuracy:
		return TierInaccuracy
	case lossCP <= b.Mistake:
		return TierMistake
	}
	return TierBlunder
}

// RatingTier adjusts the brilliant thresholds for one rating band: stronger
// players face a shorter mate bound and a larger required sacrifice so
// routine tactics are not over-rewarded.
type RatingTier struct {
	MinRating   int `yaml:"min_rating"`
	MateBound   int `yaml:"mate_bound"`   // plies
	SacrificeCP int `yaml:"sacrifice_cp"` // centipawns
}

// Brilliant holds the multi-factor brilliant-move thresholds.
type Brilliant struct {
	MateBound      int `yaml:"mate_bound"`       // forced mate within N plies
	SacrificeCP    int `yaml:"sacrifice_cp"`     // net material given up
	LosingFloorCP  int `yaml:"losing_floor_cp"`  // post-move score must stay above
	WinningFloorCP int `yaml:"winning_floor_cp"` // post-move score counts as winning
	BestGapCP      int `yaml:"best_gap_cp"`      // or within this gap of the best move
	ObviousGapCP   int `yaml:"obvious_gap_cp"`   // required rank1-rank2 gap

	RatingTiers []RatingTier `yaml:"rating_tiers"`
}

// Phases splits a game into opening/middlegame/endgame by ply count.
type Phases struct {
	OpeningPlies    int `yaml:"opening_plies"`
	MiddlegamePlies int `yaml:"middlegame_plies"`
}

// Config is the full classification threshold table.
type Config struct {
	Bands     Bands     `yaml:"bands"`
	Brilliant Brilliant `yaml:"brilliant"`
	Phases    Phases    `yaml:"phases"`

	// DefaultRating applies when game metadata carries no player rating.
	DefaultRating int `yaml:"default_rating"`
}

// DefaultConfig returns the shipped calibration.
func DefaultConfig() Config {
	return Config{
		Bands: Bands{
			Best:       5,
			Great:      15,
			Excellent:  25,
			Good:       50,
			Acceptable: 100,
			Inaccuracy: 200,
			Mistake:    400,
		},
		Brilliant: Brilliant{
			MateBound:      5,
			SacrificeCP:    600,
			LosingFloorCP:  -50,
			WinningFloorCP: 100,
			BestGapCP:      30,
			ObviousGapCP:   100,
			RatingTiers: []RatingTier{
				{MinRating: 1800, MateBound: 5, SacrificeCP: 650},
				{MinRating: 2200, MateBound: 3, SacrificeCP: 750},
				{MinRating: 2500, MateBound: 3, SacrificeCP: 900},
			},
		},
		Phases: Phases{
			OpeningPlies:    20,
			MiddlegamePlies: 60,
		},
		DefaultRating: 1500,
	}
}

// LoadConfig reads a threshold table from YAML, with defaults filled in for
// anything omitted.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read thresholds: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse thresholds: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	bounds := []int{
		c.Bands.Best, c.Bands.Great, c.Bands.Excellent, c.Bands.Good,
		c.Bands.Acceptable, c.Bands.Inaccuracy, c.Bands.Mistake,
	}
	if !sort.IntsAreSorted(bounds) {
		return fmt.Errorf("classification bands must be ascending: %v", bounds)
	}
	if c.Phases.OpeningPlies <= 0 || c.Phases.MiddlegamePlies <= c.Phases.OpeningPlies {
		return fmt.Errorf("phase thresholds must be positive and ascending")
	}
	return nil
}

// thresholdsFor resolves the mate bound and sacrifice threshold for a player
// rating. Tiers are matched by highest MinRating not exceeding the rating.
func (c Config) thresholdsFor(rating int) (mateBound, sacrificeCP int) {
	if rating <= 0 {
		rating = c.DefaultRating
	}
	mateBound = c.Brilliant.MateBound
	sacrificeCP = c.Brilliant.SacrificeCP
	for _, rt := range c.Brilliant.RatingTiers {
		if rating >= rt.MinRating {
			mateBound = rt.MateBound
			sacrificeCP = rt.SacrificeCP
		}
	}
	return mateBound, sacrificeCP
}
