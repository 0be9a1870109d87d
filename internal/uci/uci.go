// Package uci parses the line-oriented text protocol spoken by chess
// engine processes. Parsing is pure: one input line in, one classified
// record out, no I/O and no state.
package uci

// ScoreType tags the score union on a progress record.
type ScoreType int

const (
	// ScoreNone means the line carried no usable score.
	ScoreNone ScoreType = iota
	// ScoreCentipawn is a centipawn evaluation from the side to move's
	// point of view.
	ScoreCentipawn
	// ScoreMate is a forced mate in N moves, sign gives who mates.
	ScoreMate
)

// Score is the tagged score union of a progress record.
type Score struct {
	Type  ScoreType
	Value int
}

// IsCentipawn reports whether the score is a centipawn evaluation.
func (s Score) IsCentipawn() bool { return s.Type == ScoreCentipawn }

// IsMate reports whether the score is a forced-mate distance.
func (s Score) IsMate() bool { return s.Type == ScoreMate }

// Info is one incremental progress record from an "info" line. Fields
// absent from the line keep their zero value, except MultiPV which
// defaults to 1 (engines omit it when only one line is searched).
type Info struct {
	Depth    int
	SelDepth int
	MultiPV  int
	Nodes    int64
	NPS      int64
	TimeMS   int64
	Score    Score
	PV       []string
}

// BestMove is the terminal record of a search. Move is preserved
// verbatim, including the "(none)" token an engine emits when the
// position has no legal move.
type BestMove struct {
	Move   string
	Ponder string
}

// Kind classifies one line of engine output.
type Kind int

const (
	// KindOther is any line the parser does not recognize. Callers
	// decide whether to ignore or log it; it is never an error.
	KindOther Kind = iota
	// KindInfo is a search progress line.
	KindInfo
	// KindBestMove is the terminal line of a search.
	KindBestMove
	// KindUCIOk acknowledges the engine-info handshake.
	KindUCIOk
	// KindReadyOk acknowledges a readiness check.
	KindReadyOk
)

// Line is one classified line of engine output. Info is set only for
// KindInfo, Best only for KindBestMove. Raw always holds the input.
type Line struct {
	Kind Kind
	Info *Info
	Best *BestMove
	Raw  string
}
