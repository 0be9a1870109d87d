package rules

import (
	"fmt"

	"github.com/freeeve/pgn/v3"
)

// PackedKey returns the compact base64 key of a position. It is used as
// the board identifier on the wire (events, HTTP responses); the cache
// keys on the FEN fingerprint itself.
func PackedKey(fen string) (string, error) {
	key, err := pgn.PackedPositionFromFEN(fen)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	return key, nil
}

// FENFromPackedKey expands a packed position key back to its FEN.
func FENFromPackedKey(key string) (string, error) {
	packed, err := pgn.ParsePackedPosition(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	pos := packed.Unpack()
	if pos == nil {
		return "", fmt.Errorf("%w: failed to unpack %q", ErrInvalidPosition, key)
	}
	return pos.ToFEN(), nil
}
