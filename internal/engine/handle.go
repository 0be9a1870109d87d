// Package engine owns the worker side of the analysis pipeline: one
// Handle per engine process, serializing commands to it and
// demultiplexing its output stream into progress and terminal records.
package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rustypig91/smart-chessboard-logic/internal/uci"
)

var (
	// ErrCancelled rejects a search whose worker was told to stop, or
	// that was in flight when the pool shut down.
	ErrCancelled = errors.New("analysis cancelled")
	// ErrWorkerFailure means the engine process crashed or broke
	// protocol; the handle self-heals back to Idle.
	ErrWorkerFailure = errors.New("engine worker failure")
	// ErrTerminated rejects operations attempted after Terminate.
	ErrTerminated = errors.New("engine handle terminated")
)

// State is the handle lifecycle state.
type State int

const (
	Idle State = iota
	Initializing
	Busy
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Initializing:
		return "initializing"
	case Busy:
		return "busy"
	}
	return "unknown"
}

// Result is the immutable terminal output of one completed search.
type Result struct {
	Fingerprint string
	BestMove    string
	Ponder      string
	Last        uci.Info
}

// NoMove reports whether the engine found no legal move ("(none)").
func (r Result) NoMove() bool {
	return r.BestMove == "" || r.BestMove == "(none)"
}

// Config configures one engine handle.
type Config struct {
	Threads int // engine threads, default 1
	HashMB  int // engine hash table MB, default 16
	Logger  zerolog.Logger
}

type binding struct {
	fingerprint string
	depth       int
	onProgress  func(uci.Info)
	last        uci.Info
	cancelled   bool
	done        chan struct{}
	res         Result
	err         error
}

// Handle owns exactly one engine execution unit. Commands to the engine
// are strictly ordered and at most one acknowledgement-bearing command
// is outstanding at a time, so responses are never misattributed.
type Handle struct {
	cfg Config
	log zerolog.Logger
	tr  Transport

	// cmdMu serializes acknowledgement-bearing commands.
	cmdMu sync.Mutex
	ackCh chan uci.Line

	mu         sync.Mutex
	state      State
	want       uci.Kind // ack kind currently awaited, KindOther when none
	bound      *binding
	initCh     chan struct{}
	initErr    error
	terminated bool

	readerDone chan struct{}
}

// NewHandle wraps a transport. The output demultiplexer starts
// immediately; call Init before the first search.
func NewHandle(tr Transport, cfg Config) *Handle {
	if cfg.Threads == 0 {
		cfg.Threads = 1
	}
	if cfg.HashMB == 0 {
		cfg.HashMB = 16
	}
	h := &Handle{
		cfg:        cfg,
		log:        cfg.Logger,
		tr:         tr,
		ackCh:      make(chan uci.Line, 1),
		readerDone: make(chan struct{}),
	}
	go h.readLoop()
	return h
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Init performs the protocol handshake (engine-info query, option
// configuration, readiness check). It runs at most once per handle;
// concurrent callers before completion share the same pending
// initialization.
func (h *Handle) Init(ctx context.Context) error {
	h.mu.Lock()
	if h.terminated {
		h.mu.Unlock()
		return ErrTerminated
	}
	if h.initCh == nil {
		h.initCh = make(chan struct{})
		h.state = Initializing
		go h.runInit()
	}
	ch := h.initCh
	h.mu.Unlock()

	select {
	case <-ch:
	case <-ctx.Done():
		return ctx.Err()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.initErr
}

func (h *Handle) runInit() {
	err := h.sendAwait(context.Background(), uci.CmdUCI, uci.KindUCIOk)
	if err == nil {
		_ = h.tr.Send(uci.CmdSetOption("Threads", fmt.Sprint(h.cfg.Threads)))
		_ = h.tr.Send(uci.CmdSetOption("Hash", fmt.Sprint(h.cfg.HashMB)))
		err = h.sendAwait(context.Background(), uci.CmdIsReady, uci.KindReadyOk)
	}

	h.mu.Lock()
	if err != nil {
		h.initErr = fmt.Errorf("%w: handshake: %v", ErrWorkerFailure, err)
	}
	h.state = Idle
	close(h.initCh)
	h.mu.Unlock()

	if err != nil {
		h.log.Error().Err(err).Msg("engine handshake failed")
	} else {
		h.log.Info().Int("threads", h.cfg.Threads).Int("hash_mb", h.cfg.HashMB).Msg("engine ready")
	}
}

// SetOption sends a fire-and-forget option change.
func (h *Handle) SetOption(name, value string) error {
	h.mu.Lock()
	if h.terminated {
		h.mu.Unlock()
		return ErrTerminated
	}
	h.mu.Unlock()
	return h.tr.Send(uci.CmdSetOption(name, value))
}

// Search runs one fixed-depth search to completion. Progress records on
// the primary line are streamed to onProgress (which must not block:
// it is invoked synchronously from the output demultiplexer). The
// returned Result is built from the terminal line.
func (h *Handle) Search(ctx context.Context, fingerprint string, depth int, onProgress func(uci.Info)) (Result, error) {
	h.mu.Lock()
	if h.terminated {
		h.mu.Unlock()
		return Result{}, ErrTerminated
	}
	if h.initCh == nil || h.initErr != nil {
		err := h.initErr
		h.mu.Unlock()
		if err == nil {
			err = fmt.Errorf("%w: search before init", ErrWorkerFailure)
		}
		return Result{}, err
	}
	prev := h.bound
	h.mu.Unlock()

	// A previous search still bound means the caller broke the Idle
	// precondition; stop it and reject its future before rebinding.
	if prev != nil {
		h.Cancel()
		<-prev.done
	}

	// Reset engine game state, then a readiness round-trip. The engine
	// processes commands in order, so any terminal line from a stopped
	// search is guaranteed to arrive before this readyok.
	if err := h.tr.Send(uci.CmdNewGame); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrWorkerFailure, err)
	}
	if err := h.sendAwait(ctx, uci.CmdIsReady, uci.KindReadyOk); err != nil {
		return Result{}, err
	}
	if err := h.tr.Send(uci.CmdPositionFEN(fingerprint)); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrWorkerFailure, err)
	}

	b := &binding{
		fingerprint: fingerprint,
		depth:       depth,
		onProgress:  onProgress,
		done:        make(chan struct{}),
	}
	h.mu.Lock()
	if h.terminated {
		h.mu.Unlock()
		return Result{}, ErrTerminated
	}
	h.bound = b
	h.state = Busy
	h.mu.Unlock()

	if err := h.tr.Send(uci.CmdGoDepth(depth)); err != nil {
		h.mu.Lock()
		h.bound = nil
		h.state = Idle
		h.mu.Unlock()
		return Result{}, fmt.Errorf("%w: %v", ErrWorkerFailure, err)
	}

	select {
	case <-b.done:
	case <-ctx.Done():
		h.Cancel()
		<-b.done
	}
	return b.res, b.err
}

// Cancel sends a stop command for the currently bound search, if any.
// Its future is rejected with ErrCancelled once the engine's terminal
// line arrives, and the handle returns to Idle.
func (h *Handle) Cancel() {
	h.mu.Lock()
	b := h.bound
	if b != nil && !b.cancelled {
		b.cancelled = true
	} else {
		b = nil
	}
	h.mu.Unlock()
	if b != nil {
		_ = h.tr.Send(uci.CmdStop)
	}
}

// Terminate releases the engine execution unit. A bound search is
// rejected with ErrCancelled; subsequent operations fail with
// ErrTerminated.
func (h *Handle) Terminate() {
	h.mu.Lock()
	if h.terminated {
		h.mu.Unlock()
		return
	}
	h.terminated = true
	h.mu.Unlock()
	_ = h.tr.Close()
	<-h.readerDone
}

// sendAwait sends one acknowledgement-bearing command and blocks until
// its matching line arrives. cmdMu enforces the strict
// one-outstanding-acknowledgement rule.
func (h *Handle) sendAwait(ctx context.Context, cmd string, want uci.Kind) error {
	h.cmdMu.Lock()
	defer h.cmdMu.Unlock()

	h.mu.Lock()
	if h.terminated {
		h.mu.Unlock()
		return ErrTerminated
	}
	h.want = want
	h.mu.Unlock()

	if err := h.tr.Send(cmd); err != nil {
		h.clearWant()
		return fmt.Errorf("%w: send %q: %v", ErrWorkerFailure, cmd, err)
	}

	select {
	case <-h.ackCh:
		return nil
	case <-h.readerDone:
		h.clearWant()
		return fmt.Errorf("%w: output stream closed awaiting %q", ErrWorkerFailure, cmd)
	case <-ctx.Done():
		h.clearWant()
		return ctx.Err()
	}
}

func (h *Handle) clearWant() {
	h.mu.Lock()
	h.want = uci.KindOther
	h.mu.Unlock()
	// Drain a late acknowledgement so the next await starts clean.
	select {
	case <-h.ackCh:
	default:
	}
}

// readLoop splits the output stream on line boundaries and processes
// each line independently and in arrival order.
func (h *Handle) readLoop() {
	scanner := bufio.NewScanner(h.tr.Output())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		h.handleLine(uci.Parse(scanner.Text()))
	}

	// Stream ended: process exited or transport closed. Reject whatever
	// is still in flight; the handle stays usable only for Terminate.
	h.mu.Lock()
	cause := ErrWorkerFailure
	if h.terminated {
		cause = ErrCancelled
	}
	b := h.bound
	h.bound = nil
	if b != nil {
		b.err = fmt.Errorf("%w: engine output stream closed", cause)
		close(b.done)
	}
	h.state = Idle
	h.mu.Unlock()
	close(h.readerDone)
}

func (h *Handle) handleLine(ln uci.Line) {
	switch ln.Kind {
	case uci.KindUCIOk, uci.KindReadyOk:
		h.mu.Lock()
		if h.want == ln.Kind {
			h.want = uci.KindOther
			h.mu.Unlock()
			h.ackCh <- ln
			return
		}
		h.mu.Unlock()
		h.log.Debug().Str("line", ln.Raw).Msg("unexpected acknowledgement")

	case uci.KindInfo:
		h.mu.Lock()
		b := h.bound
		var cb func(uci.Info)
		if b != nil && ln.Info.MultiPV == 1 {
			b.last = *ln.Info
			cb = b.onProgress
		}
		h.mu.Unlock()
		if cb != nil {
			cb(*ln.Info)
		}

	case uci.KindBestMove:
		h.mu.Lock()
		b := h.bound
		h.bound = nil
		h.state = Idle
		h.mu.Unlock()
		if b == nil {
			h.log.Debug().Str("line", ln.Raw).Msg("terminal line with no bound search")
			return
		}
		if b.cancelled {
			b.err = ErrCancelled
		} else {
			b.res = Result{
				Fingerprint: b.fingerprint,
				BestMove:    ln.Best.Move,
				Ponder:      ln.Best.Ponder,
				Last:        b.last,
			}
		}
		close(b.done)

	default:
		h.log.Trace().Str("line", ln.Raw).Msg("engine chatter")
	}
}
