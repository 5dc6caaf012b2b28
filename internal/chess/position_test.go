package chess

import (
	"errors"
	"testing"
)

func TestReplaySAN(t *testing.T) {
	moves := []string{"e4", "e5", "Nf3", "Nc6", "Bc4"}
	positions, played, err := Replay(moves)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	if len(positions) != len(moves)+1 {
		t.Fatalf("positions = %d, want %d", len(positions), len(moves)+1)
	}
	if len(played) != len(moves) {
		t.Fatalf("played = %d, want %d", len(played), len(moves))
	}

	if !positions[0].WhiteToMove {
		t.Error("position 0 should be white to move")
	}
	if positions[0].LegalMoves != 20 {
		t.Errorf("starting position has %d legal moves, want 20", positions[0].LegalMoves)
	}
	if positions[1].WhiteToMove {
		t.Error("position 1 should be black to move")
	}

	if played[0].UCI != "e2e4" {
		t.Errorf("first move UCI = %q, want e2e4", played[0].UCI)
	}
	if played[2].UCI != "g1f3" {
		t.Errorf("third move UCI = %q, want g1f3", played[2].UCI)
	}
	for i, pm := range played {
		if pm.Ply != i+1 {
			t.Errorf("played[%d].Ply = %d, want %d", i, pm.Ply, i+1)
		}
	}
}

func TestReplayUCIAndMixed(t *testing.T) {
	positions, played, err := Replay([]string{"e2e4", "e5", "g1f3", "Nc6"})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(positions) != 5 {
		t.Fatalf("positions = %d, want 5", len(positions))
	}
	if played[2].UCI != "g1f3" {
		t.Errorf("move 3 UCI = %q, want g1f3", played[2].UCI)
	}
}

func TestReplayCaptureFlag(t *testing.T) {
	_, played, err := Replay([]string{"e4", "d5", "exd5"})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if !played[2].Capture {
		t.Error("exd5 should be flagged as a capture")
	}
	if played[0].Capture {
		t.Error("e4 should not be flagged as a capture")
	}
}

func TestReplayErrors(t *testing.T) {
	if _, _, err := Replay(nil); !errors.Is(err, ErrEmptyGame) {
		t.Errorf("empty game: got %v, want ErrEmptyGame", err)
	}

	// the second e5 is not legal for white
	if _, _, err := Replay([]string{"e4", "e5", "e5"}); !errors.Is(err, ErrIllegalMove) {
		t.Errorf("illegal SAN: got %v, want ErrIllegalMove", err)
	}

	if _, _, err := Replay([]string{"e2e5"}); !errors.Is(err, ErrIllegalMove) {
		t.Errorf("illegal UCI: got %v, want ErrIllegalMove", err)
	}
}

func TestLooksLikeUCI(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"e2e4", true},
		{"e7e8q", true},
		{"a1h8", true},
		{"Nf3", false},
		{"O-O", false},
		{"e2e9", false},
		{"e7e8k", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := looksLikeUCI(tt.in); got != tt.want {
			t.Errorf("looksLikeUCI(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
