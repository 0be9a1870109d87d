package rules

import (
	"errors"
	"strings"
	"testing"
)

func TestFingerprint(t *testing.T) {
	tests := []struct {
		name string
		fen  string
	}{
		{"start position", StartingFEN},
		{"after 1.e4", "rnbqkbnr/pppppppp/8/8/4P3/8/PPPPPPPP/RNBQKBNR b KQkq e3 0 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Fingerprint(tt.fen)
			if err != nil {
				t.Fatalf("Fingerprint(%q) failed: %v", tt.fen, err)
			}
			if !strings.HasSuffix(got, " 0 1") {
				t.Errorf("fingerprint %q does not normalize move counters", got)
			}
		})
	}
}

func TestFingerprint_CountersIgnored(t *testing.T) {
	// Same position reached at different game depths must fingerprint
	// identically so duplicate work dedupes.
	a := "rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq - 0 2"
	b := "rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq - 5 40"

	fa, err := Fingerprint(a)
	if err != nil {
		t.Fatal(err)
	}
	fb, err := Fingerprint(b)
	if err != nil {
		t.Fatal(err)
	}
	if fa != fb {
		t.Errorf("fingerprints differ: %q vs %q", fa, fb)
	}
}

func TestFingerprint_Invalid(t *testing.T) {
	if _, err := Fingerprint("not a fen"); !errors.Is(err, ErrInvalidPosition) {
		t.Errorf("error = %v, want ErrInvalidPosition", err)
	}
}

func TestApplyMove(t *testing.T) {
	tests := []struct {
		name string
		fen  string
		move string
	}{
		{"SAN", StartingFEN, "e4"},
		{"UCI", StartingFEN, "e2e4"},
		{"SAN knight", StartingFEN, "Nf3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ApplyMove(tt.fen, tt.move)
			if err != nil {
				t.Fatalf("ApplyMove(%q) failed: %v", tt.move, err)
			}
			if !strings.Contains(got, " b ") {
				t.Errorf("resulting FEN %q should be black to move", got)
			}
		})
	}
}

func TestApplyMove_SANAndUCIAgree(t *testing.T) {
	san, err := ApplyMove(StartingFEN, "e4")
	if err != nil {
		t.Fatal(err)
	}
	uciFen, err := ApplyMove(StartingFEN, "e2e4")
	if err != nil {
		t.Fatal(err)
	}
	if san != uciFen {
		t.Errorf("SAN and UCI application diverge: %q vs %q", san, uciFen)
	}
}

func TestApplyMove_Illegal(t *testing.T) {
	tests := []string{"e5", "e2e5", "Ke2", "zz9"}
	for _, move := range tests {
		t.Run(move, func(t *testing.T) {
			if _, err := ApplyMove(StartingFEN, move); !errors.Is(err, ErrInvalidMove) {
				t.Errorf("ApplyMove(%q) error = %v, want ErrInvalidMove", move, err)
			}
		})
	}
}

func TestParseGameNotation(t *testing.T) {
	pgn := "1. e4 e5 2. Nf3 Nc6 3. Bb5 a6 *"
	moves, err := ParseGameNotation(pgn)
	if err != nil {
		t.Fatalf("ParseGameNotation failed: %v", err)
	}
	want := []string{"e2e4", "e7e5", "g1f3", "b8c6", "f1b5", "a7a6"}
	if len(moves) != len(want) {
		t.Fatalf("got %d moves, want %d: %v", len(moves), len(want), moves)
	}
	for i := range want {
		if moves[i] != want[i] {
			t.Errorf("move[%d] = %q, want %q", i, moves[i], want[i])
		}
	}
}

func TestParseGameNotation_Invalid(t *testing.T) {
	if _, err := ParseGameNotation("1. zz9 xx7"); !errors.Is(err, ErrInvalidNotation) {
		t.Errorf("error = %v, want ErrInvalidNotation", err)
	}
}
