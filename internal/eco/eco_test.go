package eco_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/freeeve/pgn/v3"

	"github.com/gambitlabs/insights/internal/eco"
)

const sampleTSV = `eco	name	pgn
B00	King's Pawn Game	1. e4
C50	Italian Game	1. e4 e5 2. Nf3 Nc6 3. Bc4
A00	Broken Line	1. e4 e9
`

func loadSample(t *testing.T) *eco.Database {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "openings.tsv"), []byte(sampleTSV), 0o644); err != nil {
		t.Fatal(err)
	}
	db := eco.NewDatabase()
	if err := db.LoadDir(dir); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestLoadAndLookup(t *testing.T) {
	db := loadSample(t)

	// The unparseable line is dropped.
	if db.Count() != 2 {
		t.Errorf("loaded openings: got %d, want 2", db.Count())
	}

	pos := pgn.NewStartingPosition()
	if o := db.Lookup(pos.Pack()); o != nil {
		t.Errorf("starting position matched %s", o.ECO)
	}

	mv, err := pgn.ParseSAN(pos, "e4")
	if err != nil {
		t.Fatal(err)
	}
	if err := pgn.ApplyMove(pos, mv); err != nil {
		t.Fatal(err)
	}
	o := db.Lookup(pos.Pack())
	if o == nil || o.ECO != "B00" {
		t.Fatalf("after 1. e4: got %+v, want B00", o)
	}
}

func TestLookupFEN(t *testing.T) {
	db := loadSample(t)

	// Italian Game, with nonzero move counters in the FEN.
	fen := "r1bqkbnr/pppp1ppp/2n5/4p3/2B1P3/5N2/PPPP1PPP/RNBQK2R b KQkq - 3 3"
	o := db.LookupFEN(fen)
	if o == nil || o.ECO != "C50" {
		t.Fatalf("Italian Game: got %+v, want C50", o)
	}

	if db.LookupFEN("not a fen") != nil {
		t.Error("invalid FEN matched an opening")
	}
}

func TestLoadDirEmpty(t *testing.T) {
	db := eco.NewDatabase()
	if err := db.LoadDir(t.TempDir()); err == nil {
		t.Error("expected error for directory without .tsv files")
	}
}
