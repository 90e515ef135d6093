// Package engine defines the pluggable build-engine capability and the
// registry that constructs and caches initialized engine instances. The
// actual bundler/toolchain lives behind the Engine interface; devlane
// never reaches into its transform or compile logic.
package engine

import (
	"context"
	"fmt"
)

// ServeOptions configures a dev or preview server run.
type ServeOptions struct {
	Root string // project root directory
	Host string // explicit IPv4 bind address
	Port int    // requested port, 0 lets the engine choose
}

// BuildOptions configures a one-shot production build.
type BuildOptions struct {
	Root   string
	OutDir string
}

// Server is a handle to a running dev or preview server.
type Server interface {
	// Addr returns the bound address, e.g. "127.0.0.1:3000".
	Addr() string
	Close() error
}

// Engine is the build-engine capability. Initialize must complete before
// any other call; Dispose releases held resources and is idempotent.
type Engine interface {
	Initialize(ctx context.Context) error
	Dev(ctx context.Context, opts ServeOptions) (Server, error)
	Build(ctx context.Context, opts BuildOptions) error
	Preview(ctx context.Context, opts ServeOptions) (Server, error)
	Dispose() error
}

// Factory constructs an uninitialized engine instance.
type Factory func() (Engine, error)

// ErrEngineNotFound reports a type with no registered factory.
type ErrEngineNotFound struct {
	Type string
}

func (e *ErrEngineNotFound) Error() string {
	return fmt.Sprintf("engine %q is not registered", e.Type)
}

// EngineInitError wraps a failure from Engine.Initialize. Initialization
// is not retried automatically; the caller decides.
type EngineInitError struct {
	Type string
	Err  error
}

func (e *EngineInitError) Error() string {
	return fmt.Sprintf("engine %q failed to initialize: %v", e.Type, e.Err)
}

func (e *EngineInitError) Unwrap() error { return e.Err }
