package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rustypig91/smart-chessboard-logic/internal/engine"
	"github.com/rustypig91/smart-chessboard-logic/internal/uci"
)

func cpResult(fp string, depth, cp int) engine.Result {
	return engine.Result{
		Fingerprint: fp,
		BestMove:    "e2e4",
		Last: uci.Info{
			Depth:   depth,
			MultiPV: 1,
			Score:   uci.Score{Type: uci.ScoreCentipawn, Value: cp},
		},
	}
}

func TestCacheGetOrCreateAtomic(t *testing.T) {
	c := NewCache()

	const n = 32
	var wg sync.WaitGroup
	entries := make([]*Entry, n)
	createdCount := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, created := c.GetOrCreate("fp", 18)
			entries[i] = e
			createdCount[i] = created
		}(i)
	}
	wg.Wait()

	creators := 0
	for i := 0; i < n; i++ {
		if createdCount[i] {
			creators++
		}
		if entries[i] != entries[0] {
			t.Fatalf("goroutine %d got a different entry", i)
		}
	}
	if creators != 1 {
		t.Fatalf("creators = %d, want exactly 1", creators)
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
}

func TestCacheResolveDepthFidelity(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		result    engine.Result
		wantErr   error
		wantKept  bool
	}{
		{
			name:      "reached requested depth",
			requested: 18,
			result:    cpResult("fp", 18, 35),
			wantKept:  true,
		},
		{
			name:      "exceeded requested depth",
			requested: 18,
			result:    cpResult("fp", 22, 35),
			wantKept:  true,
		},
		{
			name:      "stopped short",
			requested: 20,
			result:    cpResult("fp", 12, 35),
			wantErr:   ErrDepthNotReached,
		},
		{
			name:      "mate found early",
			requested: 20,
			result: engine.Result{
				Fingerprint: "fp",
				BestMove:    "d8h4",
				Last: uci.Info{
					Depth: 9,
					Score: uci.Score{Type: uci.ScoreMate, Value: 2},
				},
			},
			wantKept: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCache()
			e, created := c.GetOrCreate("fp", tt.requested)
			if !created {
				t.Fatal("expected to create the entry")
			}
			c.Resolve("fp", tt.requested, tt.result)

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			res, err := e.Wait(ctx)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Wait() err = %v, want %v", err, tt.wantErr)
				}
				if _, ok := c.Get("fp", tt.requested); ok {
					t.Fatal("rejected entry still cached")
				}
				return
			}
			if err != nil {
				t.Fatalf("Wait() err = %v", err)
			}
			if res.BestMove != tt.result.BestMove {
				t.Fatalf("BestMove = %q, want %q", res.BestMove, tt.result.BestMove)
			}
			if _, ok := c.Get("fp", tt.requested); ok != tt.wantKept {
				t.Fatalf("cached = %v, want %v", ok, tt.wantKept)
			}
		})
	}
}

func TestCacheRejectRemovesEntry(t *testing.T) {
	c := NewCache()
	e, _ := c.GetOrCreate("fp", 10)
	c.Reject("fp", 10, ErrCancelled)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := e.Wait(ctx); !errors.Is(err, ErrCancelled) {
		t.Fatalf("Wait() err = %v, want ErrCancelled", err)
	}
	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", c.Len())
	}

	// Retrying after a rejection creates a fresh entry.
	if _, created := c.GetOrCreate("fp", 10); !created {
		t.Fatal("expected a fresh entry after rejection")
	}
}

func TestCacheDistinctDepthsDistinctEntries(t *testing.T) {
	c := NewCache()
	a, _ := c.GetOrCreate("fp", 12)
	b, _ := c.GetOrCreate("fp", 20)
	if a == b {
		t.Fatal("same entry for different depths")
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
}

func TestCacheWaitHonorsContext(t *testing.T) {
	c := NewCache()
	e, _ := c.GetOrCreate("fp", 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait() err = %v, want context.Canceled", err)
	}
}
