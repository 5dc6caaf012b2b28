// Package store persists finished game analyses in SQLite. One analysis is
// keyed by (platform, game_id, config_key): re-analyzing under the same
// engine settings replaces the previous row, different settings coexist.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gambitlabs/insights/internal/analyzer"
)

// ErrNotFound means no analysis exists for the requested key.
var ErrNotFound = errors.New("store: analysis not found")

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path.
//
// WAL keeps readers off the writer's lock, the busy timeout covers checkpoint
// stalls, and a single connection serializes writes so SQLITE_BUSY never
// reaches callers.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS game_analyses (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		platform        TEXT NOT NULL,
		game_id         TEXT NOT NULL,
		user_id         TEXT,
		config_key      TEXT NOT NULL,
		depth           INTEGER NOT NULL,
		move_time_ms    INTEGER NOT NULL,
		skill           INTEGER NOT NULL,
		multipv         INTEGER NOT NULL,
		eco             TEXT,
		opening         TEXT,
		total_plies     INTEGER NOT NULL,
		analyzed_plies  INTEGER NOT NULL,
		tier_counts     TEXT NOT NULL,
		brilliant_plies TEXT NOT NULL,
		acc_opening     REAL NOT NULL,
		acc_middlegame  REAL NOT NULL,
		acc_endgame     REAL NOT NULL,
		created_at      DATETIME NOT NULL,
		UNIQUE(platform, game_id, config_key)
	);

	CREATE TABLE IF NOT EXISTS move_records (
		analysis_id INTEGER NOT NULL REFERENCES game_analyses(id) ON DELETE CASCADE,
		ply         INTEGER NOT NULL,
		san         TEXT NOT NULL,
		uci         TEXT NOT NULL,
		white_moved BOOLEAN NOT NULL,
		analyzed    BOOLEAN NOT NULL,
		before_cp   INTEGER,
		before_mate INTEGER,
		after_cp    INTEGER,
		after_mate  INTEGER,
		best_uci    TEXT,
		loss_cp     INTEGER,
		tier        TEXT,
		brilliant   BOOLEAN NOT NULL DEFAULT 0,
		accuracy    REAL,
		PRIMARY KEY (analysis_id, ply)
	);

	CREATE INDEX IF NOT EXISTS idx_analyses_user ON game_analyses(user_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// WriteGameAnalysis upserts one analysis and its move records in a single
// transaction. replaced reports whether an analysis under the same key
// already existed.
func (s *Store) WriteGameAnalysis(ctx context.Context, ga *analyzer.GameAnalysis) (replaced bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	// Delete move records explicitly rather than trusting the FK cascade, so
	// replacement stays correct even on databases created before foreign key
	// enforcement was enabled.
	_, err = tx.ExecContext(ctx, `
		DELETE FROM move_records WHERE analysis_id IN (
			SELECT id FROM game_analyses WHERE platform = ? AND game_id = ? AND config_key = ?
		)
	`, ga.Platform, ga.GameID, ga.Config.Key())
	if err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, `
		DELETE FROM game_analyses WHERE platform = ? AND game_id = ? AND config_key = ?
	`, ga.Platform, ga.GameID, ga.Config.Key())
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		replaced = true
	}

	tiers, err := json.Marshal(tierCountsJSON(ga.TierCounts))
	if err != nil {
		return false, fmt.Errorf("marshal tier counts: %w", err)
	}
	brilliant, err := json.Marshal(ga.BrilliantPlies)
	if err != nil {
		return false, fmt.Errorf("marshal brilliant plies: %w", err)
	}

	var ecoCode, openingName sql.NullString
	if ga.Opening != nil {
		ecoCode = sql.NullString{String: ga.Opening.ECO, Valid: true}
		openingName = sql.NullString{String: ga.Opening.Name, Valid: true}
	}

	res, err = tx.ExecContext(ctx, `
		INSERT INTO game_analyses
		(platform, game_id, user_id, config_key, depth, move_time_ms, skill, multipv,
		 eco, opening, total_plies, analyzed_plies, tier_counts, brilliant_plies,
		 acc_opening, acc_middlegame, acc_endgame, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ga.Platform, ga.GameID, ga.UserID, ga.Config.Key(),
		ga.Config.Depth, ga.Config.MoveTimeMS, ga.Config.Skill, ga.Config.MultiPV,
		ecoCode, openingName,
		ga.TotalPlies, ga.AnalyzedPlies, string(tiers), string(brilliant),
		ga.Accuracy.Opening, ga.Accuracy.Middlegame, ga.Accuracy.Endgame, ga.CreatedAt)
	if err != nil {
		return false, err
	}
	analysisID, err := res.LastInsertId()
	if err != nil {
		return false, err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO move_records
		(analysis_id, ply, san, uci, white_moved, analyzed,
		 before_cp, before_mate, after_cp, after_mate,
		 best_uci, loss_cp, tier, brilliant, accuracy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return false, err
	}
	defer stmt.Close()

	for _, m := range ga.Moves {
		var beforeCP, beforeMate, afterCP, afterMate, lossCP sql.NullInt64
		var bestUCI, tier sql.NullString
		var accuracy sql.NullFloat64
		if m.Analyzed {
			beforeCP = sql.NullInt64{Int64: int64(m.Before.Score), Valid: true}
			beforeMate = sql.NullInt64{Int64: int64(m.Before.Mate), Valid: true}
			afterCP = sql.NullInt64{Int64: int64(m.After.Score), Valid: true}
			afterMate = sql.NullInt64{Int64: int64(m.After.Mate), Valid: true}
			lossCP = sql.NullInt64{Int64: int64(m.LossCP), Valid: true}
			bestUCI = sql.NullString{String: m.BestMove, Valid: true}
			tier = sql.NullString{String: m.Tier.String(), Valid: true}
			accuracy = sql.NullFloat64{Float64: m.Accuracy, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, analysisID, m.Ply, m.SAN, m.UCI, m.WhiteMoved, m.Analyzed,
			beforeCP, beforeMate, afterCP, afterMate, bestUCI, lossCP, tier, m.Brilliant, accuracy); err != nil {
			return false, fmt.Errorf("insert move %d: %w", m.Ply, err)
		}
	}

	return replaced, tx.Commit()
}

// GetGameAnalysis loads one analysis, move records included.
func (s *Store) GetGameAnalysis(ctx context.Context, platform, gameID, configKey string) (*analyzer.GameAnalysis, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM game_analyses WHERE platform = ? AND game_id = ? AND config_key = ?
	`, platform, gameID, configKey).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.getByRowID(ctx, id)
}

// IterateAnalyses streams every stored analysis to fn in insertion order,
// stopping on the first error. Move records are loaded per analysis.
func (s *Store) IterateAnalyses(ctx context.Context, fn func(*analyzer.GameAnalysis) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM game_analyses ORDER BY id
	`)
	if err != nil {
		return err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		ga, err := s.getByRowID(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(ga); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) getByRowID(ctx context.Context, id int64) (*analyzer.GameAnalysis, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, platform, game_id, user_id, depth, move_time_ms, skill, multipv,
		       eco, opening, total_plies, analyzed_plies, tier_counts, brilliant_plies,
		       acc_opening, acc_middlegame, acc_endgame, created_at
		FROM game_analyses WHERE id = ?
	`, id)

	var rowID int64
	ga, err := scanAnalysis(row, &rowID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ply, san, uci, white_moved, analyzed,
		       before_cp, before_mate, after_cp, after_mate,
		       best_uci, loss_cp, tier, brilliant, accuracy
		FROM move_records WHERE analysis_id = ? ORDER BY ply
	`, rowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMove(rows)
		if err != nil {
			return nil, err
		}
		ga.Moves = append(ga.Moves, m)
	}
	return ga, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
