package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustypig91/smart-chessboard-logic/internal/uci"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// fakeEngine scripts an engine process behind the Transport interface.
// Responses are written to a pipe so the handle exercises its real
// line-splitting path.
type fakeEngine struct {
	pr *io.PipeReader
	pw *io.PipeWriter

	mu     sync.Mutex
	sent   []string
	closed bool

	onCmd func(cmd string, w io.Writer)
}

func newFakeEngine(onCmd func(cmd string, w io.Writer)) *fakeEngine {
	pr, pw := io.Pipe()
	return &fakeEngine{pr: pr, pw: pw, onCmd: onCmd}
}

func (f *fakeEngine) Send(cmd string) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return fmt.Errorf("closed")
	}
	f.sent = append(f.sent, cmd)
	f.mu.Unlock()
	if f.onCmd != nil {
		f.onCmd(cmd, f.pw)
	}
	return nil
}

func (f *fakeEngine) Output() io.Reader { return f.pr }

func (f *fakeEngine) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return f.pw.Close()
}

func (f *fakeEngine) sentCommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// handshake answers the init sequence; other commands go to onGo.
func handshake(onGo func(cmd string, w io.Writer)) func(string, io.Writer) {
	return func(cmd string, w io.Writer) {
		switch {
		case cmd == uci.CmdUCI:
			_, _ = io.WriteString(w, "id name faketest\nuciok\n")
		case cmd == uci.CmdIsReady:
			_, _ = io.WriteString(w, "readyok\n")
		default:
			if onGo != nil {
				onGo(cmd, w)
			}
		}
	}
}

func newTestHandle(t *testing.T, onGo func(cmd string, w io.Writer)) (*Handle, *fakeEngine) {
	t.Helper()
	fake := newFakeEngine(handshake(onGo))
	h := NewHandle(fake, Config{Logger: zerolog.Nop()})
	t.Cleanup(h.Terminate)
	if err := h.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return h, fake
}

func TestHandle_Search(t *testing.T) {
	// The whole search output arrives as one chunk: the handle must
	// split it into independent lines and filter the multipv-2 record.
	h, fake := newTestHandle(t, func(cmd string, w io.Writer) {
		if strings.HasPrefix(cmd, "go depth") {
			_, _ = io.WriteString(w,
				"info depth 11 multipv 1 score cp 20 nodes 1000 pv e2e4\n"+
					"info depth 12 score cp 35 nodes 2000 pv e2e4 e7e5\n"+
					"info depth 12 multipv 2 score cp 10 pv d2d4\n"+
					"bestmove e2e4 ponder e7e5\n")
		}
	})

	var progress []uci.Info
	res, err := h.Search(context.Background(), startFEN, 12, func(info uci.Info) {
		progress = append(progress, info)
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if res.BestMove != "e2e4" || res.Ponder != "e7e5" {
		t.Errorf("result = {%q %q}, want {e2e4 e7e5}", res.BestMove, res.Ponder)
	}
	if res.Fingerprint != startFEN {
		t.Errorf("result fingerprint = %q, want the submitted one", res.Fingerprint)
	}
	if res.Last.Depth != 12 || res.Last.Score.Value != 35 {
		t.Errorf("final record = depth %d score %d, want depth 12 score 35",
			res.Last.Depth, res.Last.Score.Value)
	}
	if len(progress) != 2 {
		t.Fatalf("got %d progress records, want 2 (multipv 2 filtered)", len(progress))
	}
	if progress[0].Depth != 11 || progress[1].Depth != 12 {
		t.Errorf("progress depths = %d,%d, want 11,12", progress[0].Depth, progress[1].Depth)
	}
	if h.State() != Idle {
		t.Errorf("state after search = %v, want Idle", h.State())
	}

	// The command pipeline must re-sync before setting the position.
	want := []string{"position fen " + startFEN, "go depth 12"}
	sent := fake.sentCommands()
	tail := sent[len(sent)-2:]
	for i := range want {
		if tail[i] != want[i] {
			t.Errorf("command[%d] = %q, want %q", i, tail[i], want[i])
		}
	}
	var sawNewGame bool
	for _, cmd := range sent {
		if cmd == uci.CmdNewGame {
			sawNewGame = true
		}
	}
	if !sawNewGame {
		t.Error("ucinewgame was never sent before the search")
	}
}

func TestHandle_InitShared(t *testing.T) {
	fake := newFakeEngine(handshake(nil))
	h := NewHandle(fake, Config{Logger: zerolog.Nop()})
	t.Cleanup(h.Terminate)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.Init(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("Init[%d] failed: %v", i, err)
		}
	}
	count := 0
	for _, cmd := range fake.sentCommands() {
		if cmd == uci.CmdUCI {
			count++
		}
	}
	if count != 1 {
		t.Errorf("handshake query sent %d times, want 1", count)
	}
}

func TestHandle_Cancel(t *testing.T) {
	searching := make(chan struct{}, 1)
	h, _ := newTestHandle(t, func(cmd string, w io.Writer) {
		switch {
		case strings.HasPrefix(cmd, "go depth"):
			_, _ = io.WriteString(w, "info depth 5 score cp 10 pv e2e4\n")
		case cmd == uci.CmdStop:
			// Forced early terminal line, as a real engine does.
			_, _ = io.WriteString(w, "bestmove e2e4\n")
		}
	})

	type out struct {
		res Result
		err error
	}
	done := make(chan out, 1)
	go func() {
		res, err := h.Search(context.Background(), startFEN, 20, func(uci.Info) {
			select {
			case searching <- struct{}{}:
			default:
			}
		})
		done <- out{res, err}
	}()

	<-searching
	h.Cancel()

	got := <-done
	if !errors.Is(got.err, ErrCancelled) {
		t.Fatalf("cancelled search error = %v, want ErrCancelled", got.err)
	}
	if h.State() != Idle {
		t.Fatalf("state after cancel = %v, want Idle", h.State())
	}

	// The handle must be reusable for the next search.
	h2 := h // same handle, new script not needed: go triggers only info
	res, err := func() (Result, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return h2.Search(ctx, startFEN, 5, nil)
	}()
	// The script never sends a terminal line for "go" in this test, so
	// cancel via context and accept ErrCancelled; what matters is that
	// the search was accepted at all after the previous cancellation.
	if err != nil && !errors.Is(err, ErrCancelled) && !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("follow-up search error = %v (res %+v)", err, res)
	}
}

func TestHandle_WorkerFailure(t *testing.T) {
	var fake *fakeEngine
	fake = newFakeEngine(func(cmd string, w io.Writer) {
		switch {
		case cmd == uci.CmdUCI:
			_, _ = io.WriteString(w, "uciok\n")
		case cmd == uci.CmdIsReady:
			_, _ = io.WriteString(w, "readyok\n")
		case strings.HasPrefix(cmd, "go depth"):
			// Engine crash mid-search.
			_ = fake.pw.Close()
		}
	})
	h := NewHandle(fake, Config{Logger: zerolog.Nop()})
	t.Cleanup(h.Terminate)
	if err := h.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	_, err := h.Search(context.Background(), startFEN, 10, nil)
	if !errors.Is(err, ErrWorkerFailure) {
		t.Fatalf("search error = %v, want ErrWorkerFailure", err)
	}
	if h.State() != Idle {
		t.Errorf("state after failure = %v, want Idle (self-heal)", h.State())
	}
}

func TestHandle_Terminate(t *testing.T) {
	h, _ := newTestHandle(t, nil)
	h.Terminate()

	if _, err := h.Search(context.Background(), startFEN, 10, nil); !errors.Is(err, ErrTerminated) {
		t.Errorf("Search after Terminate = %v, want ErrTerminated", err)
	}
	if err := h.SetOption("MultiPV", "1"); !errors.Is(err, ErrTerminated) {
		t.Errorf("SetOption after Terminate = %v, want ErrTerminated", err)
	}
	// Idempotent.
	h.Terminate()
}
