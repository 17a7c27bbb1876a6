// Package view backs the read-only dashboard pages. Every load carries a
// generation token so a response that arrives after the page was left, or
// after a newer load started, is discarded.
package view

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrSuperseded is returned to a load whose result was discarded.
var ErrSuperseded = errors.New("view load superseded")

// State of a view.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateLoaded  State = "loaded"
	StateFailed  State = "failed"
)

// Snapshot is the renderable state of a view.
type Snapshot[T any] struct {
	State    State     `json:"state"`
	Data     T         `json:"data"`
	Error    string    `json:"error,omitempty"`
	LoadedAt time.Time `json:"loadedAt,omitempty"`
}

// FetchFunc produces a view's data.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// View holds one page's data.
type View[T any] struct {
	mu         sync.Mutex
	fetch      FetchFunc[T]
	generation uint64
	cancel     context.CancelFunc
	snap       Snapshot[T]
}

// New creates an idle view.
func New[T any](fetch FetchFunc[T]) *View[T] {
	return &View[T]{fetch: fetch, snap: Snapshot[T]{State: StateIdle}}
}

// Load mounts the view: it cancels any load in flight, fetches, and applies
// the result only if no newer Load or Close happened meanwhile.
func (v *View[T]) Load(ctx context.Context) (Snapshot[T], error) {
	v.mu.Lock()
	if v.cancel != nil {
		v.cancel()
	}
	v.generation++
	token := v.generation
	loadCtx, cancel := context.WithCancel(ctx)
	v.cancel = cancel
	v.snap.State = StateLoading
	v.mu.Unlock()

	data, err := v.fetch(loadCtx)

	v.mu.Lock()
	defer v.mu.Unlock()
	cancel()

	if token != v.generation {
		return v.snap, ErrSuperseded
	}
	v.cancel = nil

	if err != nil {
		var zero T
		v.snap = Snapshot[T]{State: StateFailed, Data: zero, Error: err.Error()}
		return v.snap, err
	}
	v.snap = Snapshot[T]{State: StateLoaded, Data: data, LoadedAt: time.Now().UTC()}
	return v.snap, nil
}

// Close unmounts the view; a load still in flight is cancelled and its
// result dropped. The last applied data is kept for a later remount.
func (v *View[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	v.generation++
	if v.snap.State == StateLoading {
		v.snap.State = StateIdle
	}
}

// Snapshot returns the current state.
func (v *View[T]) Snapshot() Snapshot[T] {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snap
}
