// Package settings is a small registry of named runtime settings with
// defaults, descriptions and optional JSON file persistence. Components
// register their knobs at startup; overrides survive restarts.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
)

var (
	ErrUnknownSetting   = errors.New("unknown setting")
	ErrDuplicateSetting = errors.New("setting already registered")
)

// Setting is one registered knob. Value holds the current override, or
// the default when none was set.
type Setting struct {
	Key         string `json:"key"`
	Description string `json:"description"`
	Default     any    `json:"default"`
	Value       any    `json:"value"`
}

// Registry holds registered settings and their overrides. A zero path
// disables persistence.
type Registry struct {
	mu    sync.Mutex
	path  string
	items map[string]*Setting
}

func NewRegistry(path string) *Registry {
	return &Registry{path: path, items: make(map[string]*Setting)}
}

// Register declares a setting with its default. Registering the same
// key twice is a programming error and rejected.
func (r *Registry) Register(key string, def any, description string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSetting, key)
	}
	r.items[key] = &Setting{Key: key, Description: description, Default: def, Value: def}
	return nil
}

// Get returns the current value of a setting.
func (r *Registry) Get(key string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[key]
	if !ok {
		return nil, false
	}
	return s.Value, true
}

// Set overrides a setting and persists the override file.
func (r *Registry) Set(key string, value any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	s.Value = value
	return r.saveLocked()
}

// Reset restores a setting to its default and persists.
func (r *Registry) Reset(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	s.Value = s.Default
	return r.saveLocked()
}

// List returns all settings sorted by key.
func (r *Registry) List() []Setting {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Setting, 0, len(r.items))
	for _, s := range r.items {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Load applies persisted overrides. Overrides for keys that are no
// longer registered are dropped; a missing file is not an error.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.path == "" {
		return nil
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load settings: %w", err)
	}
	overrides := make(map[string]any)
	if err := json.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	for key, value := range overrides {
		if s, ok := r.items[key]; ok {
			s.Value = value
		}
	}
	return nil
}

// saveLocked writes the overrides that differ from their defaults.
// Callers hold r.mu.
func (r *Registry) saveLocked() error {
	if r.path == "" {
		return nil
	}
	overrides := make(map[string]any)
	for key, s := range r.items {
		if s.Value != s.Default {
			overrides[key] = s.Value
		}
	}
	data, err := json.MarshalIndent(overrides, "", "  ")
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Int reads a setting as int. JSON numbers decode as float64, both
// forms are accepted; anything else falls back.
func (r *Registry) Int(key string, fallback int) int {
	v, ok := r.Get(key)
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return fallback
}

// Float reads a setting as float64.
func (r *Registry) Float(key string, fallback float64) float64 {
	v, ok := r.Get(key)
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return fallback
}

// String reads a setting as string.
func (r *Registry) String(key, fallback string) string {
	if v, ok := r.Get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}

// Bool reads a setting as bool.
func (r *Registry) Bool(key string, fallback bool) bool {
	if v, ok := r.Get(key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return fallback
}
