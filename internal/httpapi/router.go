package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustypig91/smart-chessboard-logic/internal/analysis"
	"github.com/rustypig91/smart-chessboard-logic/internal/events"
	"github.com/rustypig91/smart-chessboard-logic/internal/rules"
	"github.com/rustypig91/smart-chessboard-logic/internal/uci"
)

// Handler serves the analysis API over the coordinator.
type Handler struct {
	coord        *analysis.Coordinator
	hub          *events.Hub
	defaultDepth int
	log          zerolog.Logger
}

// NewRouter creates the HTTP router. hub is optional; when present,
// search progress and finished evaluations are also pushed to connected
// websocket clients.
func NewRouter(log zerolog.Logger, coord *analysis.Coordinator, hub *events.Hub, defaultDepth int) http.Handler {
	h := &Handler{
		coord:        coord,
		hub:          hub,
		defaultDepth: defaultDepth,
		log:          log,
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", http.HandlerFunc(h.health))
	mux.Handle("/readyz", http.HandlerFunc(h.ready))
	mux.Handle("/v1/analyze", http.HandlerFunc(h.analyze))
	mux.Handle("/v1/move", http.HandlerFunc(h.move))
	mux.Handle("/v1/game", http.HandlerFunc(h.game))
	mux.Handle("/v1/stop", http.HandlerFunc(h.stop))
	mux.Handle("/v1/options", http.HandlerFunc(h.options))
	mux.Handle("/v1/status", http.HandlerFunc(h.status))
	mux.Handle("/v1/fen", http.HandlerFunc(h.fenLookup))
	mux.Handle("/v1/position/", http.HandlerFunc(h.position))
	mux.Handle("/v1/ws", http.HandlerFunc(h.ws))

	// pprof endpoints
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return CORS(RequestID(AccessLog(log, mux)))
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ready answers once the worker pool finished its handshakes. Slow
// engine startup reports 503 rather than hanging the probe.
func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.coord.Ready(ctx); err != nil {
		http.Error(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// analyze runs one position to depth. GET with fen and depth query
// parameters; depth falls back to the service default.
func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	fen := r.URL.Query().Get("fen")
	if fen == "" {
		http.Error(w, "missing fen parameter", http.StatusBadRequest)
		return
	}
	depth := h.depthParam(r)

	var onProgress func(uci.Info)
	if h.hub != nil && h.hub.HasClients() {
		fp, err := rules.Fingerprint(fen)
		if err == nil {
			onProgress = func(info uci.Info) {
				h.hub.PublishProgress(events.ProgressFromInfo(fp, info))
			}
		}
	}

	res, err := h.coord.AnalyzeStream(r.Context(), fen, depth, onProgress)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, toResultResponse(res))
}

type moveRequest struct {
	FEN   string `json:"fen"`
	Move  string `json:"move"`
	Depth int    `json:"depth"`
}

// move evaluates one played move. POST {"fen": ..., "move": ..., "depth": N};
// fen defaults to the starting position.
func (h *Handler) move(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Move == "" {
		http.Error(w, "missing move", http.StatusBadRequest)
		return
	}
	if req.FEN == "" {
		req.FEN = rules.StartingFEN
	}
	if req.Depth == 0 {
		req.Depth = h.defaultDepth
	}

	ev, err := h.coord.EvaluateMove(r.Context(), req.FEN, req.Move, req.Depth)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, ev)
}

type gameRequest struct {
	PGN   string   `json:"pgn,omitempty"`
	Moves []string `json:"moves,omitempty"`
	Depth int      `json:"depth"`
}

// game evaluates a whole game. POST with either pgn text or a UCI move
// list. Finished plies stream to the hub as they resolve.
func (h *Handler) game(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req gameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.PGN == "" && len(req.Moves) == 0 {
		http.Error(w, "missing pgn or moves", http.StatusBadRequest)
		return
	}
	if req.Depth == 0 {
		req.Depth = h.defaultDepth
	}

	onMove := func(ply int, ev analysis.MoveEvaluation) {
		if h.hub == nil {
			return
		}
		h.hub.PublishEvaluation(events.EvaluationPayload{
			Ply:        ply,
			Evaluation: ev,
			UpdatedAt:  time.Now().UnixMilli(),
		})
	}

	var evals []analysis.MoveEvaluation
	var err error
	if req.PGN != "" {
		evals, err = h.coord.EvaluateGameNotation(r.Context(), req.PGN, req.Depth, onMove)
	} else {
		evals, err = h.coord.EvaluateGame(r.Context(), req.Moves, req.Depth, onMove)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, toGameResponse(evals))
}

// stop cancels all queued and running searches.
func (h *Handler) stop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.coord.Stop()
	h.log.Info().Msg("all analysis stopped via API")
	writeJSON(w, map[string]any{"stopped": true})
}

type optionRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// options forwards an engine option to every worker.
func (h *Handler) options(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req optionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "missing option name", http.StatusBadRequest)
		return
	}
	if err := h.coord.SetOption(req.Name, req.Value); err != nil {
		writeError(w, err)
		return
	}
	h.log.Info().Str("name", req.Name).Str("value", req.Value).Msg("engine option updated via API")
	writeJSON(w, map[string]any{"applied": true})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.coord.Status())
}

// fenLookup converts a FEN string to a position key
func (h *Handler) fenLookup(w http.ResponseWriter, r *http.Request) {
	fen := r.URL.Query().Get("fen")
	if fen == "" {
		http.Error(w, "missing fen parameter", http.StatusBadRequest)
		return
	}

	key, err := rules.PackedKey(fen)
	if err != nil {
		http.Error(w, "invalid FEN: "+err.Error(), http.StatusBadRequest)
		return
	}
	normalized, err := rules.FENFromPackedKey(key)
	if err != nil {
		http.Error(w, "failed to unpack position: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"position": key,
		"fen":      normalized,
	})
}

// position expands a packed position key back to its FEN and cache
// fingerprint.
func (h *Handler) position(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path)
	if len(parts) < 3 {
		http.Error(w, "missing position key", http.StatusBadRequest)
		return
	}

	fen, err := rules.FENFromPackedKey(parts[2])
	if err != nil {
		http.Error(w, "invalid position key: "+err.Error(), http.StatusBadRequest)
		return
	}
	fp, err := rules.Fingerprint(fen)
	if err != nil {
		http.Error(w, "invalid position: "+err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]any{
		"position":    parts[2],
		"fen":         fen,
		"fingerprint": fp,
	})
}

func (h *Handler) ws(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		http.Error(w, "events not configured", http.StatusServiceUnavailable)
		return
	}
	initial := &events.StatusPayload{
		Status:    h.coord.Status(),
		UpdatedAt: time.Now().UnixMilli(),
	}
	h.hub.ServeWS(w, r, initial)
}

func (h *Handler) depthParam(r *http.Request) int {
	if d := r.URL.Query().Get("depth"); d != "" {
		if v, err := json.Number(d).Int64(); err == nil && v > 0 {
			return int(v)
		}
	}
	return h.defaultDepth
}
