package chess

import (
	"errors"
	"fmt"

	"github.com/freeeve/pgn/v3"
)

// ErrEmptyGame is returned when a game has no moves to analyze.
var ErrEmptyGame = errors.New("empty move list")

// ErrIllegalMove is returned when a move list cannot be replayed legally.
var ErrIllegalMove = errors.New("illegal move")

// Position is one board state within a game, derived by replaying the
// move list from the standard starting position. Immutable once built.
type Position struct {
	Ply         int    // 0 = position before the first move
	FEN         string
	WhiteToMove bool
	LegalMoves  int // legal moves available to the side to move
}

// PlayedMove is one resolved ply of the game.
type PlayedMove struct {
	Ply     int // 1-based ply index
	SAN     string
	UCI     string
	Capture bool
}

// Replay applies a move list from the starting position and returns the full
// position sequence (len(moves)+1 entries) plus the resolved moves. Input
// moves may be SAN or UCI, mixed freely. A move that cannot be resolved or
// applied surfaces ErrIllegalMove with the offending ply.
func Replay(moves []string) ([]Position, []PlayedMove, error) {
	if len(moves) == 0 {
		return nil, nil, ErrEmptyGame
	}

	pos := pgn.NewStartingPosition()
	positions := make([]Position, 0, len(moves)+1)
	played := make([]PlayedMove, 0, len(moves))

	for i, raw := range moves {
		legal := pgn.GenerateLegalMoves(pos)
		positions = append(positions, Position{
			Ply:         i,
			FEN:         pos.ToFEN(),
			WhiteToMove: i%2 == 0,
			LegalMoves:  len(legal),
		})

		mv, err := resolveMove(pos, legal, raw)
		if err != nil {
			return nil, nil, fmt.Errorf("ply %d (%q): %w", i+1, raw, err)
		}

		san := mv.String()
		capture := isCapture(pos, mv)

		if err := pgn.ApplyMove(pos, mv); err != nil {
			return nil, nil, fmt.Errorf("ply %d (%q): %w: %v", i+1, raw, ErrIllegalMove, err)
		}

		played = append(played, PlayedMove{
			Ply:     i + 1,
			SAN:     san,
			UCI:     MoveToUCI(mv),
			Capture: capture,
		})
	}

	final := pgn.GenerateLegalMoves(pos)
	positions = append(positions, Position{
		Ply:         len(moves),
		FEN:         pos.ToFEN(),
		WhiteToMove: len(moves)%2 == 0,
		LegalMoves:  len(final),
	})

	return positions, played, nil
}

// resolveMove parses a SAN or UCI move string against the current position.
func resolveMove(pos *pgn.GameState, legal []pgn.Mv, raw string) (pgn.Mv, error) {
	if looksLikeUCI(raw) {
		for _, mv := range legal {
			if MoveToUCI(mv) == raw {
				return mv, nil
			}
		}
		return pgn.Mv{}, ErrIllegalMove
	}
	mv, err := pgn.ParseSAN(pos, raw)
	if err != nil {
		return pgn.Mv{}, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	return mv, nil
}

func isCapture(pos *pgn.GameState, mv pgn.Mv) bool {
	if pos.PieceAt(mv.To) != 0 {
		return true
	}
	piece := pos.PieceAt(mv.From)
	isPawn := piece == 'P' || piece == 'p'
	return isPawn && mv.Flags == flagEnPassant
}
