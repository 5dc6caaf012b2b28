package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gambitlabs/insights/internal/analyzer"
	"github.com/gambitlabs/insights/internal/classify"
	"github.com/gambitlabs/insights/internal/eco"
	"github.com/gambitlabs/insights/internal/engine"
)

// Tier counts round-trip through JSON keyed by tier name so the stored text
// stays readable in ad-hoc queries.
func tierCountsJSON(counts map[classify.Tier]int) map[string]int {
	out := make(map[string]int, len(counts))
	for tier, n := range counts {
		out[tier.String()] = n
	}
	return out
}

func tierCountsFromJSON(raw string) (map[classify.Tier]int, error) {
	var byName map[string]int
	if err := json.Unmarshal([]byte(raw), &byName); err != nil {
		return nil, fmt.Errorf("unmarshal tier counts: %w", err)
	}
	out := make(map[classify.Tier]int, len(byName))
	for name, n := range byName {
		tier, err := classify.TierFromString(name)
		if err != nil {
			return nil, err
		}
		out[tier] = n
	}
	return out, nil
}

func scanAnalysis(row *sql.Row, id *int64) (*analyzer.GameAnalysis, error) {
	var ga analyzer.GameAnalysis
	var tiersRaw, brilliantRaw string
	var ecoCode, openingName sql.NullString
	var createdAt time.Time
	err := row.Scan(id, &ga.Platform, &ga.GameID, &ga.UserID,
		&ga.Config.Depth, &ga.Config.MoveTimeMS, &ga.Config.Skill, &ga.Config.MultiPV,
		&ecoCode, &openingName,
		&ga.TotalPlies, &ga.AnalyzedPlies, &tiersRaw, &brilliantRaw,
		&ga.Accuracy.Opening, &ga.Accuracy.Middlegame, &ga.Accuracy.Endgame, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if ecoCode.Valid {
		ga.Opening = &eco.Opening{ECO: ecoCode.String, Name: openingName.String}
	}
	ga.CreatedAt = createdAt.UTC()
	if ga.TierCounts, err = tierCountsFromJSON(tiersRaw); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(brilliantRaw), &ga.BrilliantPlies); err != nil {
		return nil, fmt.Errorf("unmarshal brilliant plies: %w", err)
	}
	return &ga, nil
}

func scanMove(rows *sql.Rows) (analyzer.MoveRecord, error) {
	var m analyzer.MoveRecord
	var beforeCP, beforeMate, afterCP, afterMate, lossCP sql.NullInt64
	var bestUCI, tier sql.NullString
	var accuracy sql.NullFloat64
	err := rows.Scan(&m.Ply, &m.SAN, &m.UCI, &m.WhiteMoved, &m.Analyzed,
		&beforeCP, &beforeMate, &afterCP, &afterMate,
		&bestUCI, &lossCP, &tier, &m.Brilliant, &accuracy)
	if err != nil {
		return m, err
	}
	if !m.Analyzed {
		return m, nil
	}

	m.Before = &engine.Evaluation{Score: int(beforeCP.Int64), Mate: int(beforeMate.Int64), BestMove: bestUCI.String}
	m.After = &engine.Evaluation{Score: int(afterCP.Int64), Mate: int(afterMate.Int64)}
	m.BestMove = bestUCI.String
	m.LossCP = int(lossCP.Int64)
	m.Accuracy = accuracy.Float64
	if m.Tier, err = classify.TierFromString(tier.String); err != nil {
		return m, err
	}
	return m, nil
}
