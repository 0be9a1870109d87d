// Package rules adapts the external chess-rules library to what the
// analysis coordinator needs: applying moves to FEN positions, parsing
// game notation, and producing canonical position fingerprints. Move
// legality, notation grammar and FEN validation all belong to the
// library; nothing here second-guesses it.
package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/notnil/chess"
)

var (
	// ErrInvalidPosition means the FEN string could not be parsed.
	ErrInvalidPosition = errors.New("invalid position")
	// ErrInvalidMove means the rules library rejected the move.
	ErrInvalidMove = errors.New("invalid move")
	// ErrInvalidNotation means the game notation could not be parsed.
	ErrInvalidNotation = errors.New("invalid game notation")
)

// StartingFEN is the standard initial position.
const StartingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Fingerprint canonicalizes a FEN into the position fingerprint used as
// the cache key: board layout, side to move, castling rights and
// en-passant target, with the move counters normalized so transposed
// positions dedupe. The result is itself a valid FEN.
func Fingerprint(fen string) (string, error) {
	pos, err := parseFEN(fen)
	if err != nil {
		return "", err
	}
	fields := strings.Fields(pos.String())
	if len(fields) < 4 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPosition, fen)
	}
	return strings.Join(fields[:4], " ") + " 0 1", nil
}

// ApplyMove applies one move (SAN or UCI notation) to a FEN position
// and returns the resulting FEN.
func ApplyMove(fen, move string) (string, error) {
	pos, err := parseFEN(fen)
	if err != nil {
		return "", err
	}
	mv, err := decodeMove(pos, move)
	if err != nil {
		return "", err
	}
	next := pos.Update(mv)
	return next.String(), nil
}

// ParseGameNotation parses PGN text into the ordered move sequence in
// UCI notation.
func ParseGameNotation(text string) ([]string, error) {
	opt, err := chess.PGN(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNotation, err)
	}
	game := chess.NewGame(opt)
	moves := game.Moves()
	out := make([]string, 0, len(moves))
	for _, mv := range moves {
		out = append(out, mv.String())
	}
	return out, nil
}

func parseFEN(fen string) (*chess.Position, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	return chess.NewGame(opt).Position(), nil
}

// decodeMove accepts SAN first (the notation humans and PGN use), then
// falls back to UCI (the notation engines emit).
func decodeMove(pos *chess.Position, move string) (*chess.Move, error) {
	if mv, err := (chess.AlgebraicNotation{}).Decode(pos, move); err == nil {
		return mv, nil
	}
	mv, err := chess.UCINotation{}.Decode(pos, move)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidMove, move, err)
	}
	// UCINotation does not check legality, only syntax.
	for _, legal := range pos.ValidMoves() {
		if legal.S1() == mv.S1() && legal.S2() == mv.S2() && legal.Promo() == mv.Promo() {
			return mv, nil
		}
	}
	return nil, fmt.Errorf("%w: %q is not legal here", ErrInvalidMove, move)
}
