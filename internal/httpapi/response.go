package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rustypig91/smart-chessboard-logic/internal/analysis"
	"github.com/rustypig91/smart-chessboard-logic/internal/engine"
	"github.com/rustypig91/smart-chessboard-logic/internal/events"
)

// ResultResponse is the JSON-friendly shape of one terminal search
// result. Exactly one of ScoreCP and MateIn is set.
type ResultResponse struct {
	Position    string   `json:"position,omitempty"` // Base64 position key
	Fingerprint string   `json:"fingerprint"`
	BestMove    string   `json:"best_move"`
	Ponder      string   `json:"ponder,omitempty"`
	Depth       int      `json:"depth"`
	SelDepth    int      `json:"sel_depth,omitempty"`
	ScoreCP     *int     `json:"score_cp,omitempty"`
	MateIn      *int     `json:"mate_in,omitempty"`
	Nodes       int64    `json:"nodes,omitempty"`
	NPS         int64    `json:"nps,omitempty"`
	TimeMS      int64    `json:"time_ms,omitempty"`
	PV          []string `json:"pv,omitempty"`
}

// GameResponse carries the per-ply evaluations of a whole game.
type GameResponse struct {
	Moves    []analysis.MoveEvaluation `json:"moves"`
	Blunders int                       `json:"blunders"`
}

func toResultResponse(res engine.Result) ResultResponse {
	resp := ResultResponse{
		Position:    events.BoardID(res.Fingerprint),
		Fingerprint: res.Fingerprint,
		BestMove:    res.BestMove,
		Ponder:      res.Ponder,
		Depth:       res.Last.Depth,
		SelDepth:    res.Last.SelDepth,
		Nodes:       res.Last.Nodes,
		NPS:         res.Last.NPS,
		TimeMS:      res.Last.TimeMS,
		PV:          res.Last.PV,
	}
	switch {
	case res.Last.Score.IsCentipawn():
		v := res.Last.Score.Value
		resp.ScoreCP = &v
	case res.Last.Score.IsMate():
		v := res.Last.Score.Value
		resp.MateIn = &v
	}
	return resp
}

func toGameResponse(evals []analysis.MoveEvaluation) GameResponse {
	resp := GameResponse{Moves: evals}
	for _, ev := range evals {
		if ev.Blunder {
			resp.Blunders++
		}
	}
	return resp
}

// errorStatus maps the analysis error taxonomy onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, analysis.ErrInvalidInput),
		errors.Is(err, analysis.ErrInvalidMove),
		errors.Is(err, analysis.ErrInvalidNotation):
		return http.StatusBadRequest
	case errors.Is(err, analysis.ErrCancelled),
		errors.Is(err, analysis.ErrTerminated):
		return http.StatusServiceUnavailable
	case errors.Is(err, analysis.ErrWorkerFailure):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": err.Error()})
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// splitPath splits a URL path into parts
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
