package chess

import (
	"fmt"
	"strings"

	"github.com/freeeve/pgn/v3"
)

// PieceValue returns the conventional value of a piece in centipawns.
// Kings and empty squares are worth zero.
func PieceValue(piece byte) int {
	switch piece {
	case 'P', 'p':
		return 100
	case 'N', 'n', 'B', 'b':
		return 300
	case 'R', 'r':
		return 500
	case 'Q', 'q':
		return 900
	}
	return 0
}

// MaterialBalance computes white material minus black material in centipawns
// from the board field of a FEN string.
func MaterialBalance(fen string) int {
	board := fen
	if idx := strings.IndexByte(fen, ' '); idx > 0 {
		board = fen[:idx]
	}
	balance := 0
	for i := 0; i < len(board); i++ {
		c := board[i]
		if c >= 'A' && c <= 'Z' {
			balance += PieceValue(c)
		} else if c >= 'a' && c <= 'z' {
			balance -= PieceValue(c)
		}
	}
	return balance
}

// NetSacrifice estimates how much material the mover gives up by playing
// uciMove in the position described by fen, in centipawns. It is the value of
// the mover's most expensive piece the opponent can win on the next ply,
// discounted by an immediate recapture and by whatever the move itself
// captured. Zero means the move risks nothing material.
func NetSacrifice(fen string, uciMove string) (int, error) {
	pos, err := pgn.NewGame(fen)
	if err != nil {
		return 0, fmt.Errorf("parse FEN: %w", err)
	}

	legal := pgn.GenerateLegalMoves(pos)
	mv, err := resolveMove(pos, legal, uciMove)
	if err != nil {
		return 0, err
	}

	captured := 0
	if victim := pos.PieceAt(mv.To); victim != 0 {
		captured = PieceValue(victim)
	} else if mv.Flags == flagEnPassant {
		captured = 100
	}

	after := pos.Pack().Unpack()
	if after == nil {
		return 0, fmt.Errorf("copy position")
	}
	if err := pgn.ApplyMove(after, mv); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}

	// Opponent to move: find the most expensive mover piece they can win.
	exposed := 0
	for _, reply := range pgn.GenerateLegalMoves(after) {
		victim := after.PieceAt(reply.To)
		gain := PieceValue(victim)
		if victim == 0 {
			if attacker := after.PieceAt(reply.From); (attacker == 'P' || attacker == 'p') && reply.Flags == flagEnPassant {
				gain = 100
			} else {
				continue
			}
		}

		attacker := after.PieceAt(reply.From)

		// If the mover can recapture on the same square, the exchange costs
		// the opponent their attacker.
		replyPos := after.Pack().Unpack()
		if replyPos == nil {
			continue
		}
		if err := pgn.ApplyMove(replyPos, reply); err != nil {
			continue
		}
		for _, recapture := range pgn.GenerateLegalMoves(replyPos) {
			if recapture.To == reply.To && replyPos.PieceAt(recapture.To) != 0 {
				gain -= PieceValue(attacker)
				break
			}
		}

		if gain > exposed {
			exposed = gain
		}
	}

	net := exposed - captured
	if net < 0 {
		net = 0
	}
	return net, nil
}
