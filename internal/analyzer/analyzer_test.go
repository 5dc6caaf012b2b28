package analyzer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/gambitlabs/insights/internal/chess"
	"github.com/gambitlabs/insights/internal/classify"
	"github.com/gambitlabs/insights/internal/engine"
)

// fakeEval returns a flat evaluation for every position, optionally failing
// on one specific FEN.
type fakeEval struct {
	mu      sync.Mutex
	calls   int
	score   int
	failFEN string
}

func (f *fakeEval) Evaluate(_ context.Context, fen string, b engine.Budget) (*engine.Evaluation, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.failFEN != "" && fen == f.failFEN {
		return nil, errors.New("engine exploded")
	}
	return &engine.Evaluation{Score: f.score, BestMove: "a2a3", Depth: b.Depth}, nil
}

func testAnalyzer(eval PositionEvaluator, parallel int) *Analyzer {
	return New(eval, classify.New(classify.DefaultConfig()), Config{
		Parallel: parallel,
		Logger:   zerolog.Nop(),
	})
}

func testInput() GameInput {
	return GameInput{
		GameID:   "g1",
		UserID:   "u1",
		Platform: "lichess",
		Moves:    []string{"e4", "e5", "Nf3", "Nc6"},
	}
}

func testConfig() EngineConfig {
	return EngineConfig{Depth: 12, MoveTimeMS: 100, Skill: 20, MultiPV: 2}
}

func TestAnalyzeAllBest(t *testing.T) {
	eval := &fakeEval{score: 0}
	a := testAnalyzer(eval, 2)

	got, err := a.Analyze(context.Background(), testInput(), testConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}

	if got.TotalPlies != 4 || got.AnalyzedPlies != 4 {
		t.Fatalf("plies: got total=%d analyzed=%d, want 4/4", got.TotalPlies, got.AnalyzedPlies)
	}
	if eval.calls != 5 {
		t.Errorf("evaluator calls: got %d, want 5 (one per distinct position)", eval.calls)
	}
	if got.TierCounts[classify.TierBest] != 4 {
		t.Errorf("best count: got %d, want 4", got.TierCounts[classify.TierBest])
	}
	if len(got.BrilliantPlies) != 0 {
		t.Errorf("unexpected brilliant plies %v", got.BrilliantPlies)
	}
	if got.Accuracy.Opening != 100 || got.Accuracy.Middlegame != 100 || got.Accuracy.Endgame != 100 {
		t.Errorf("accuracy: got %+v, want 100 across phases", got.Accuracy)
	}
	for i, m := range got.Moves {
		if !m.Analyzed {
			t.Errorf("move %d not analyzed", i)
		}
		if m.Ply != i+1 {
			t.Errorf("move %d: ply %d out of order", i, m.Ply)
		}
	}
	// Adjacent plies share one evaluation per position.
	if got.Moves[0].After != got.Moves[1].Before {
		t.Error("ply 1 after and ply 2 before are not the same evaluation")
	}
}

func TestAnalyzeOnePositionFails(t *testing.T) {
	positions, _, err := chess.Replay(testInput().Moves)
	if err != nil {
		t.Fatal(err)
	}
	// Position after two plies: failing it unanalyzes plies 2 and 3.
	eval := &fakeEval{failFEN: positions[2].FEN}
	a := testAnalyzer(eval, 1)

	got, err := a.Analyze(context.Background(), testInput(), testConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.AnalyzedPlies != 2 {
		t.Fatalf("analyzed plies: got %d, want 2", got.AnalyzedPlies)
	}
	if len(got.Moves) != 4 {
		t.Fatalf("move records: got %d, want 4", len(got.Moves))
	}
	for _, m := range got.Moves {
		wantAnalyzed := m.Ply == 1 || m.Ply == 4
		if m.Analyzed != wantAnalyzed {
			t.Errorf("ply %d: analyzed=%v, want %v", m.Ply, m.Analyzed, wantAnalyzed)
		}
	}
	if n := got.TierCounts[classify.TierBest]; n != 2 {
		t.Errorf("best count: got %d, want 2 (unanalyzed plies excluded)", n)
	}
}

func TestAnalyzeStructuralError(t *testing.T) {
	a := testAnalyzer(&fakeEval{}, 1)

	in := testInput()
	in.Moves = []string{"e4", "Ke7"}
	if _, err := a.Analyze(context.Background(), in, testConfig(), nil); !errors.Is(err, chess.ErrIllegalMove) {
		t.Errorf("illegal move: got %v, want ErrIllegalMove", err)
	}

	in.Moves = nil
	if _, err := a.Analyze(context.Background(), in, testConfig(), nil); !errors.Is(err, chess.ErrEmptyGame) {
		t.Errorf("empty game: got %v, want ErrEmptyGame", err)
	}
}

func TestAnalyzeCancelled(t *testing.T) {
	a := testAnalyzer(&fakeEval{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Analyze(ctx, testInput(), testConfig(), nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestAnalyzeProgress(t *testing.T) {
	a := testAnalyzer(&fakeEval{}, 1)

	var updates []int
	progress := func(done, total int) {
		if total != 4 {
			t.Errorf("total: got %d, want 4", total)
		}
		updates = append(updates, done)
	}

	if _, err := a.Analyze(context.Background(), testInput(), testConfig(), progress); err != nil {
		t.Fatal(err)
	}
	if len(updates) == 0 {
		t.Fatal("no progress updates")
	}
	for i := 1; i < len(updates); i++ {
		if updates[i] < updates[i-1] {
			t.Fatalf("progress not monotonic: %v", updates)
		}
	}
	if last := updates[len(updates)-1]; last != 4 {
		t.Errorf("final update: got %d, want 4", last)
	}
}
