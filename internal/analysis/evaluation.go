package analysis

import "math"

// MoveEvaluation judges one played move by composing three terminal
// results: the position before the move, the position after it, and
// the position after the engine's preferred move instead.
//
// Sign convention: every score is oriented to the player who made the
// evaluated move. Engine scores arrive relative to the side to move at
// each position, so scores of positions where the opponent is to move
// (after the played move, after the best alternative) are negated once.
type MoveEvaluation struct {
	Move     string `json:"move"`
	BestMove string `json:"best_move"`

	// Centipawns, mover's perspective.
	PreScore  int `json:"pre_score"`
	PostScore int `json:"post_score"`
	BestScore int `json:"best_score"`

	// Delta is the played move's outcome minus the pre-move score;
	// BestDelta the same for the engine's preferred move.
	Delta     int `json:"delta"`
	BestDelta int `json:"best_delta"`

	Blunder bool `json:"blunder"`

	// WinChance is the mover's winning probability after the played
	// move, from a logistic mapping of the centipawn score.
	WinChance float64 `json:"win_chance"`
}

// winChance maps centipawns to a winning probability with the logistic
// curve used by the board display (scale 400 cp).
func winChance(cp int) float64 {
	return 1.0 / (1.0 + math.Exp(-float64(cp)/400.0))
}
