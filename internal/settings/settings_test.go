package settings

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry("")
	if err := r.Register("analysis.depth", 14, "default search depth"); err != nil {
		t.Fatalf("Register() err = %v", err)
	}
	if err := r.Register("analysis.depth", 20, "dup"); !errors.Is(err, ErrDuplicateSetting) {
		t.Fatalf("duplicate Register() err = %v, want ErrDuplicateSetting", err)
	}

	if got := r.Int("analysis.depth", 0); got != 14 {
		t.Fatalf("Int() = %d, want 14", got)
	}
	if got := r.Int("absent", 7); got != 7 {
		t.Fatalf("Int() fallback = %d, want 7", got)
	}
}

func TestRegistrySetResetAndList(t *testing.T) {
	r := NewRegistry("")
	r.Register("blunder.threshold", 50, "centipawn loss counted as a blunder")
	r.Register("engine.path", "/usr/bin/stockfish", "engine binary")

	if err := r.Set("blunder.threshold", 75); err != nil {
		t.Fatalf("Set() err = %v", err)
	}
	if got := r.Int("blunder.threshold", 0); got != 75 {
		t.Fatalf("Int() = %d, want 75", got)
	}
	if err := r.Set("absent", 1); !errors.Is(err, ErrUnknownSetting) {
		t.Fatalf("Set() err = %v, want ErrUnknownSetting", err)
	}

	if err := r.Reset("blunder.threshold"); err != nil {
		t.Fatalf("Reset() err = %v", err)
	}
	if got := r.Int("blunder.threshold", 0); got != 50 {
		t.Fatalf("Int() after reset = %d, want 50", got)
	}

	list := r.List()
	if len(list) != 2 || list[0].Key != "blunder.threshold" || list[1].Key != "engine.path" {
		t.Fatalf("List() = %+v, want sorted blunder.threshold, engine.path", list)
	}
}

func TestRegistryPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	r := NewRegistry(path)
	r.Register("analysis.depth", 14, "default search depth")
	r.Register("engine.threads", 1, "threads per worker")
	if err := r.Set("analysis.depth", 20); err != nil {
		t.Fatalf("Set() err = %v", err)
	}

	// A fresh registry with the same file picks the override back up;
	// unchanged settings keep their defaults.
	fresh := NewRegistry(path)
	fresh.Register("analysis.depth", 14, "default search depth")
	fresh.Register("engine.threads", 1, "threads per worker")
	if err := fresh.Load(); err != nil {
		t.Fatalf("Load() err = %v", err)
	}
	if got := fresh.Int("analysis.depth", 0); got != 20 {
		t.Fatalf("Int() = %d, want persisted 20", got)
	}
	if got := fresh.Int("engine.threads", 0); got != 1 {
		t.Fatalf("Int() = %d, want default 1", got)
	}
}

func TestRegistryLoadMissingFile(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "absent.json"))
	r.Register("analysis.depth", 14, "default search depth")
	if err := r.Load(); err != nil {
		t.Fatalf("Load() err = %v", err)
	}
	if got := r.Int("analysis.depth", 0); got != 14 {
		t.Fatalf("Int() = %d, want 14", got)
	}
}

func TestRegistryTypedAccessors(t *testing.T) {
	r := NewRegistry("")
	r.Register("win.scale", 400.0, "logistic scale in centipawns")
	r.Register("engine.path", "/usr/bin/stockfish", "engine binary")
	r.Register("events.enabled", true, "publish websocket events")

	// JSON round trips numbers as float64.
	r.Set("win.scale", float64(600))

	if got := r.Float("win.scale", 0); got != 600 {
		t.Fatalf("Float() = %v, want 600", got)
	}
	if got := r.String("engine.path", ""); got != "/usr/bin/stockfish" {
		t.Fatalf("String() = %q", got)
	}
	if got := r.Bool("events.enabled", false); !got {
		t.Fatal("Bool() = false, want true")
	}
	if got := r.Bool("engine.path", false); got {
		t.Fatal("Bool() on string setting should fall back")
	}
}
