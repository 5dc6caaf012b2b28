// Package eco names openings. Lookup tables are built from ECO .tsv files
// (eco, name, pgn columns) keyed by the packed position, so transpositions
// resolve to the same opening.
package eco

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/freeeve/pgn/v3"
)

// Opening is one ECO classification.
type Opening struct {
	ECO  string `json:"eco"`
	Name string `json:"name"`
}

// Database maps positions to openings.
type Database struct {
	byPosition map[pgn.PackedPosition]Opening
}

func NewDatabase() *Database {
	return &Database{byPosition: make(map[pgn.PackedPosition]Opening)}
}

var moveNumberRe = regexp.MustCompile(`\d+\.+\s*`)

// LoadDir loads every .tsv file in dir.
func (db *Database) LoadDir(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.tsv"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no .tsv files found in %s", dir)
	}
	for _, file := range files {
		if err := db.LoadFile(file); err != nil {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// LoadFile loads one TSV file. Lines whose move text does not parse are
// skipped.
func (db *Database) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			first = false
			if strings.HasPrefix(line, "eco\t") {
				continue
			}
		}

		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}

		pos, err := replaySAN(parts[2])
		if err != nil {
			continue
		}
		db.byPosition[pos.Pack()] = Opening{ECO: parts[0], Name: parts[1]}
	}
	return scanner.Err()
}

// replaySAN applies numbered PGN move text like "1. e4 e5 2. Nf3" to the
// starting position.
func replaySAN(text string) (*pgn.GameState, error) {
	pos := pgn.NewStartingPosition()
	for _, san := range strings.Fields(moveNumberRe.ReplaceAllString(text, "")) {
		if san == "" || san[0] == '$' || san[0] == '{' {
			continue
		}
		san = strings.TrimRight(san, "+#")

		mv, err := pgn.ParseSAN(pos, san)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", san, err)
		}
		if err := pgn.ApplyMove(pos, mv); err != nil {
			return nil, fmt.Errorf("apply %q: %w", san, err)
		}
	}
	return pos, nil
}

// Lookup returns the opening for a packed position, or nil.
func (db *Database) Lookup(pos pgn.PackedPosition) *Opening {
	if o, ok := db.byPosition[pos]; ok {
		return &o
	}
	return nil
}

// LookupFEN returns the opening for a FEN position, or nil. Move counters in
// the FEN do not affect the match.
func (db *Database) LookupFEN(fen string) *Opening {
	gs, err := pgn.NewGame(fen)
	if err != nil {
		return nil
	}
	return db.Lookup(gs.Pack())
}

// Count returns the number of openings loaded.
func (db *Database) Count() int {
	return len(db.byPosition)
}
