package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rustypig91/smart-chessboard-logic/internal/engine"
	"github.com/rustypig91/smart-chessboard-logic/internal/uci"
)

// Runner is one engine worker as the dispatcher sees it. engine.Handle
// is the production implementation; tests supply scripted fakes.
type Runner interface {
	Init(ctx context.Context) error
	Search(ctx context.Context, fingerprint string, depth int, onProgress func(uci.Info)) (engine.Result, error)
	SetOption(name, value string) error
	Cancel()
	Terminate()
}

// DispatcherConfig configures the worker pool dispatcher.
type DispatcherConfig struct {
	Logger zerolog.Logger
}

type slot struct {
	id     int
	runner Runner
	busy   bool
	dead   bool
}

type task struct {
	req        Request
	onProgress func(uci.Info)
}

// Dispatcher owns N runners and a strict-FIFO queue of pending
// requests. The queue, the per-worker busy flags and the cache's
// pending map are the only shared mutable state; queue and busy
// mutations all happen under d.mu.
type Dispatcher struct {
	log   zerolog.Logger
	cache *Cache

	mu     sync.Mutex
	queue  []task
	slots  []*slot
	closed bool

	readyCh  chan struct{}
	readyErr error

	submitted int64
	completed int64
	failed    int64
	cancelled int64
}

// NewDispatcher builds a dispatcher over the given runners. Call Start
// to initialize the pool.
func NewDispatcher(cfg DispatcherConfig, cache *Cache, runners []Runner) *Dispatcher {
	d := &Dispatcher{
		log:     cfg.Logger,
		cache:   cache,
		readyCh: make(chan struct{}),
	}
	for i, r := range runners {
		d.slots = append(d.slots, &slot{id: i, runner: r})
	}
	return d
}

// Start initializes all runners concurrently. Runners that fail their
// handshake are taken out of rotation; the pool is usable as long as
// at least one survives.
func (d *Dispatcher) Start(ctx context.Context) {
	go func() {
		g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
		for _, s := range d.slots {
			g.Go(func() error {
				if err := s.runner.Init(gctx); err != nil {
					d.log.Error().Err(err).Int("worker_id", s.id).Msg("worker init failed")
					d.mu.Lock()
					s.dead = true
					d.mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()

		d.mu.Lock()
		alive := 0
		for _, s := range d.slots {
			if !s.dead {
				alive++
			}
		}
		if alive == 0 {
			d.readyErr = fmt.Errorf("%w: no worker survived initialization", ErrWorkerFailure)
		}
		close(d.readyCh)
		d.mu.Unlock()

		d.log.Info().Int("workers", alive).Msg("dispatcher ready")
	}()
}

// Ready suspends until the pool finished initializing.
func (d *Dispatcher) Ready(ctx context.Context) error {
	select {
	case <-d.readyCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readyErr
}

// Submit attaches the request to an equivalent cache entry when one
// exists (pending or complete); otherwise it queues new work. The
// returned entry resolves with the terminal result or a taxonomy error.
func (d *Dispatcher) Submit(req Request, onProgress func(uci.Info)) *Entry {
	e, created := d.cache.GetOrCreate(req.Fingerprint, req.Depth)
	if !created {
		return e
	}
	atomic.AddInt64(&d.submitted, 1)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.cache.Reject(req.Fingerprint, req.Depth, ErrTerminated)
		return e
	}
	d.queue = append(d.queue, task{req: req, onProgress: onProgress})
	d.dispatchLocked()
	d.mu.Unlock()
	return e
}

// dispatchLocked binds queued requests to idle workers, strict FIFO.
// Callers hold d.mu.
func (d *Dispatcher) dispatchLocked() {
	for len(d.queue) > 0 {
		s := d.idleSlotLocked()
		if s == nil {
			return
		}
		t := d.queue[0]
		d.queue = d.queue[1:]
		s.busy = true
		go d.run(s, t)
	}
}

func (d *Dispatcher) idleSlotLocked() *slot {
	for _, s := range d.slots {
		if !s.busy && !s.dead {
			return s
		}
	}
	return nil
}

func (d *Dispatcher) run(s *slot, t task) {
	d.log.Debug().
		Int("worker_id", s.id).
		Str("fingerprint", t.req.Fingerprint).
		Int("depth", t.req.Depth).
		Msg("search assigned")

	res, err := s.runner.Search(context.Background(), t.req.Fingerprint, t.req.Depth, t.onProgress)
	switch {
	case err != nil:
		if isCancel(err) {
			atomic.AddInt64(&d.cancelled, 1)
		} else {
			atomic.AddInt64(&d.failed, 1)
			d.log.Warn().Err(err).Int("worker_id", s.id).Msg("search failed")
		}
		d.cache.Reject(t.req.Fingerprint, t.req.Depth, err)
	default:
		atomic.AddInt64(&d.completed, 1)
		d.cache.Resolve(t.req.Fingerprint, t.req.Depth, res)
	}

	d.mu.Lock()
	s.busy = false
	d.dispatchLocked()
	d.mu.Unlock()
}

// StopAll clears the pending queue, rejecting queued-but-unassigned
// requests with ErrCancelled, and signals every busy worker to stop its
// current search. Workers return to Idle and pick up any later work.
func (d *Dispatcher) StopAll() {
	d.mu.Lock()
	queued := d.queue
	d.queue = nil
	var busy []Runner
	for _, s := range d.slots {
		if s.busy {
			busy = append(busy, s.runner)
		}
	}
	d.mu.Unlock()

	for _, t := range queued {
		atomic.AddInt64(&d.cancelled, 1)
		d.cache.Reject(t.req.Fingerprint, t.req.Depth, ErrCancelled)
	}
	for _, r := range busy {
		r.Cancel()
	}
}

// SetOption forwards a fire-and-forget option change to every worker.
func (d *Dispatcher) SetOption(name, value string) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrTerminated
	}
	runners := make([]Runner, 0, len(d.slots))
	for _, s := range d.slots {
		if !s.dead {
			runners = append(runners, s.runner)
		}
	}
	d.mu.Unlock()

	for _, r := range runners {
		if err := r.SetOption(name, value); err != nil {
			return err
		}
	}
	return nil
}

// Close shuts the pool down: pending work is cancelled and every
// runner terminated. Submissions after Close reject with ErrTerminated.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.StopAll()
	for _, s := range d.slots {
		s.runner.Terminate()
	}
	d.log.Info().
		Int64("completed", atomic.LoadInt64(&d.completed)).
		Int64("failed", atomic.LoadInt64(&d.failed)).
		Int64("cancelled", atomic.LoadInt64(&d.cancelled)).
		Msg("dispatcher closed")
}

// Status is a point-in-time snapshot of the pool.
type Status struct {
	Workers     int   `json:"workers"`
	BusyWorkers int   `json:"busy_workers"`
	QueueLen    int   `json:"queue_len"`
	Submitted   int64 `json:"submitted"`
	Completed   int64 `json:"completed"`
	Failed      int64 `json:"failed"`
	Cancelled   int64 `json:"cancelled"`
}

func (d *Dispatcher) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := Status{
		QueueLen:  len(d.queue),
		Submitted: atomic.LoadInt64(&d.submitted),
		Completed: atomic.LoadInt64(&d.completed),
		Failed:    atomic.LoadInt64(&d.failed),
		Cancelled: atomic.LoadInt64(&d.cancelled),
	}
	for _, s := range d.slots {
		if s.dead {
			continue
		}
		st.Workers++
		if s.busy {
			st.BusyWorkers++
		}
	}
	return st
}

func isCancel(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}
