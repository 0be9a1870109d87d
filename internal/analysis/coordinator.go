package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rustypig91/smart-chessboard-logic/internal/engine"
	"github.com/rustypig91/smart-chessboard-logic/internal/rules"
	"github.com/rustypig91/smart-chessboard-logic/internal/uci"
)

// CoordinatorConfig configures the analysis facade.
type CoordinatorConfig struct {
	MinDepth         int // lower clamp for requested depth, default 6
	MaxDepth         int // upper clamp for requested depth, default 30
	BlunderThreshold int // centipawns a move must lose to count as a blunder, default 50
	Logger           zerolog.Logger
}

// Coordinator is the public entry point for analysis: single positions,
// single-move evaluation, and whole-game evaluation. It composes the
// dispatcher and cache; the rules library is consumed for move
// application only.
type Coordinator struct {
	cfg   CoordinatorConfig
	log   zerolog.Logger
	disp  *Dispatcher
	cache *Cache
}

func NewCoordinator(cfg CoordinatorConfig, disp *Dispatcher, cache *Cache) *Coordinator {
	if cfg.MinDepth == 0 {
		cfg.MinDepth = 6
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = 30
	}
	if cfg.BlunderThreshold == 0 {
		cfg.BlunderThreshold = 50
	}
	return &Coordinator{cfg: cfg, log: cfg.Logger, disp: disp, cache: cache}
}

// Ready suspends until the worker pool finished initializing.
func (c *Coordinator) Ready(ctx context.Context) error {
	return c.disp.Ready(ctx)
}

// Analyze runs one search to the (clamped) requested depth and returns
// its terminal result. Duplicate concurrent calls for the same position
// and depth share one search.
func (c *Coordinator) Analyze(ctx context.Context, fen string, depth int) (engine.Result, error) {
	return c.analyze(ctx, fen, depth, nil)
}

// AnalyzeStream is Analyze with progress streaming. onProgress is
// invoked from the worker's output path and must not block; it only
// fires for the caller that triggered the search, not for attached
// duplicates.
func (c *Coordinator) AnalyzeStream(ctx context.Context, fen string, depth int, onProgress func(uci.Info)) (engine.Result, error) {
	return c.analyze(ctx, fen, depth, onProgress)
}

func (c *Coordinator) analyze(ctx context.Context, fen string, depth int, onProgress func(uci.Info)) (engine.Result, error) {
	fp, err := rules.Fingerprint(fen)
	if err != nil {
		return engine.Result{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	e := c.disp.Submit(Request{Fingerprint: fp, Depth: c.clampDepth(depth), Created: time.Now()}, onProgress)
	return e.Wait(ctx)
}

// EvaluateMove analyzes the position before a move, after it, and after
// the engine's preferred alternative, and derives the quality judgment.
// The before/after legs run concurrently and may land on different
// workers.
func (c *Coordinator) EvaluateMove(ctx context.Context, fenBefore, move string, depth int) (MoveEvaluation, error) {
	depth = c.clampDepth(depth)

	fenAfter, err := rules.ApplyMove(fenBefore, move)
	if err != nil {
		if errors.Is(err, rules.ErrInvalidPosition) {
			return MoveEvaluation{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return MoveEvaluation{}, err
	}

	var before, after engine.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		before, err = c.Analyze(gctx, fenBefore, depth)
		return err
	})
	g.Go(func() error {
		var err error
		after, err = c.Analyze(gctx, fenAfter, depth)
		return err
	})
	if err := g.Wait(); err != nil {
		return MoveEvaluation{}, err
	}

	if before.NoMove() {
		return MoveEvaluation{}, fmt.Errorf("%w: engine found no move in the start position", ErrIncompleteAnalysis)
	}
	fenBest, err := rules.ApplyMove(fenBefore, before.BestMove)
	if err != nil {
		return MoveEvaluation{}, fmt.Errorf("%w: engine best move %q: %v", ErrIncompleteAnalysis, before.BestMove, err)
	}
	best, err := c.Analyze(ctx, fenBest, depth)
	if err != nil {
		return MoveEvaluation{}, err
	}

	// The blunder judgment needs comparable scores on all three legs;
	// mate-type or missing scores invalidate it rather than defaulting.
	for _, r := range []engine.Result{before, after, best} {
		if !r.Last.Score.IsCentipawn() {
			return MoveEvaluation{}, fmt.Errorf("%w: non-centipawn score for %s", ErrIncompleteAnalysis, r.Fingerprint)
		}
	}

	// Orient everything to the mover (see MoveEvaluation).
	pre := before.Last.Score.Value
	post := -after.Last.Score.Value
	bestAlt := -best.Last.Score.Value

	delta := post - pre
	bestDelta := bestAlt - pre
	thr := c.cfg.BlunderThreshold

	ev := MoveEvaluation{
		Move:      move,
		BestMove:  before.BestMove,
		PreScore:  pre,
		PostScore: post,
		BestScore: bestAlt,
		Delta:     delta,
		BestDelta: bestDelta,
		Blunder:   delta <= -thr && bestDelta > -thr,
		WinChance: winChance(post),
	}
	c.log.Debug().
		Str("move", move).
		Int("delta", delta).
		Int("best_delta", bestDelta).
		Bool("blunder", ev.Blunder).
		Msg("move evaluated")
	return ev, nil
}

// EvaluateGame replays moves from the standard starting position and
// evaluates every ply. Plies are evaluated concurrently (they are
// independent submissions) but onMove fires strictly in ply order. On
// the first failed ply the remaining work is cancelled and the
// evaluations completed so far are returned alongside the error.
func (c *Coordinator) EvaluateGame(ctx context.Context, moves []string, depth int, onMove func(ply int, ev MoveEvaluation)) ([]MoveEvaluation, error) {
	fens := make([]string, len(moves)+1)
	fens[0] = rules.StartingFEN
	for i, mv := range moves {
		next, err := rules.ApplyMove(fens[i], mv)
		if err != nil {
			return nil, fmt.Errorf("ply %d (%s): %w", i, mv, err)
		}
		fens[i+1] = next
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type out struct {
		ev  MoveEvaluation
		err error
	}
	results := make([]chan out, len(moves))
	for i := range moves {
		results[i] = make(chan out, 1)
		go func(i int) {
			ev, err := c.EvaluateMove(ctx, fens[i], moves[i], depth)
			results[i] <- out{ev, err}
		}(i)
	}

	evals := make([]MoveEvaluation, 0, len(moves))
	for i := range moves {
		o := <-results[i]
		if o.err != nil {
			cancel()
			return evals, fmt.Errorf("ply %d (%s): %w", i, moves[i], o.err)
		}
		if onMove != nil {
			onMove(i, o.ev)
		}
		evals = append(evals, o.ev)
	}
	return evals, nil
}

// EvaluateGameNotation parses PGN text and evaluates the game it holds.
func (c *Coordinator) EvaluateGameNotation(ctx context.Context, pgn string, depth int, onMove func(ply int, ev MoveEvaluation)) ([]MoveEvaluation, error) {
	moves, err := rules.ParseGameNotation(pgn)
	if err != nil {
		return nil, err
	}
	return c.EvaluateGame(ctx, moves, depth, onMove)
}

// Stop cancels all queued and in-flight work. Workers return to Idle
// and the pool stays usable.
func (c *Coordinator) Stop() {
	c.disp.StopAll()
}

// SetOption forwards an engine option to every worker.
func (c *Coordinator) SetOption(name, value string) error {
	return c.disp.SetOption(name, value)
}

// Terminate shuts the pool down for good.
func (c *Coordinator) Terminate() {
	c.disp.Close()
}

// CoordinatorStatus combines pool and cache state for display.
type CoordinatorStatus struct {
	Pool         Status `json:"pool"`
	CacheEntries int    `json:"cache_entries"`
}

func (c *Coordinator) Status() CoordinatorStatus {
	return CoordinatorStatus{Pool: c.disp.Status(), CacheEntries: c.cache.Len()}
}

func (c *Coordinator) clampDepth(depth int) int {
	if depth < c.cfg.MinDepth {
		return c.cfg.MinDepth
	}
	if depth > c.cfg.MaxDepth {
		return c.cfg.MaxDepth
	}
	return depth
}
