package engine

import (
	"context"
	"sync"
)

// Registry maps engine-type identifiers to lazily constructed, initialized
// engine instances. Construction happens on first request per type;
// subsequent requests within the same session return the cached handle.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	handles   map[string]Engine
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		handles:   make(map[string]Engine),
	}
}

// Register installs a factory for an engine type. Registering the same
// type again replaces the factory but does not evict a cached handle.
func (r *Registry) Register(engineType string, f Factory) {
	r.mu.Lock()
	r.factories[engineType] = f
	r.mu.Unlock()
}

// Types returns the registered engine types.
func (r *Registry) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	return out
}

// Get returns the initialized engine for engineType, constructing and
// initializing it on first use. Initialization failures are wrapped in
// EngineInitError and not retried: the failed instance is not cached, so
// a later call may try again explicitly.
func (r *Registry) Get(ctx context.Context, engineType string) (Engine, error) {
	r.mu.Lock()
	if h, ok := r.handles[engineType]; ok {
		r.mu.Unlock()
		return h, nil
	}
	f, ok := r.factories[engineType]
	r.mu.Unlock()
	if !ok {
		return nil, &ErrEngineNotFound{Type: engineType}
	}

	eng, err := f()
	if err != nil {
		return nil, &EngineInitError{Type: engineType, Err: err}
	}
	if err := eng.Initialize(ctx); err != nil {
		return nil, &EngineInitError{Type: engineType, Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another caller may have won the race; prefer the cached handle and
	// dispose ours so only one initialized instance survives per type.
	if h, ok := r.handles[engineType]; ok {
		_ = eng.Dispose()
		return h, nil
	}
	r.handles[engineType] = eng
	return eng, nil
}

// DisposeAll tears down every cached handle and clears the cache.
// Dispose errors are collected best-effort; the first one is returned.
func (r *Registry) DisposeAll() error {
	r.mu.Lock()
	handles := make([]Engine, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.handles = make(map[string]Engine)
	r.mu.Unlock()

	var firstErr error
	for _, h := range handles {
		if err := h.Dispose(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
