// Package launcher coordinates one session of engine-driven workload
// launches: it resolves configuration, picks the engine, and emits typed
// lifecycle events for everything it starts.
package launcher

import (
	"context"
	"log/slog"
	"sync"

	"github.com/devlane/devlane/internal/config"
	"github.com/devlane/devlane/internal/engine"
	"github.com/devlane/devlane/internal/event"
	"github.com/devlane/devlane/internal/project"
	"github.com/devlane/devlane/internal/supervisor"
)

// builtinEngines are the engine types registered out of the box. Custom
// types come in through Registry.Register before launching.
var builtinEngines = []string{"vite", "rsbuild", "webpack"}

// Options parameterizes one launch. Overrides are deep-merged on top of
// the session config before anything is resolved.
type Options struct {
	Root      string
	Host      string
	Port      int
	OutDir    string
	Overrides map[string]any
}

// Launcher drives dev, build and preview launches for one session.
// Actions are serialized: a session is a single caller's workflow, not a
// shared scheduler.
type Launcher struct {
	mu   sync.Mutex
	base *config.Config
	cur  *config.Config
	reg  *engine.Registry
	sup  *supervisor.Supervisor
	bus  *event.Bus
	log  *slog.Logger

	servers []engine.Server
}

// New builds a launcher over a session config and registers the built-in
// engine factories.
func New(base *config.Config, reg *engine.Registry, sup *supervisor.Supervisor, bus *event.Bus, log *slog.Logger) *Launcher {
	if log == nil {
		log = slog.Default()
	}
	l := &Launcher{base: base, cur: base, reg: reg, sup: sup, bus: bus, log: log}
	for _, t := range builtinEngines {
		engineType := t
		reg.Register(engineType, func() (engine.Engine, error) {
			return &cliEngine{engineType: engineType, sup: sup, cfg: l.sessionConfig}, nil
		})
	}
	return l
}

// Dev starts a development server and returns its handle.
func (l *Launcher) Dev(ctx context.Context, opts Options) (engine.Server, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	root, projectID, engineType, eng, err := l.prepare(ctx, opts)
	if err != nil {
		l.bus.Publish(event.Event{Topic: event.DevError, Project: projectID, Engine: engineType, Err: err})
		return nil, err
	}
	srv, err := eng.Dev(ctx, engine.ServeOptions{Root: root, Host: opts.Host, Port: opts.Port})
	if err != nil {
		l.bus.Publish(event.Event{Topic: event.DevError, Project: projectID, Engine: engineType, Err: err})
		return nil, err
	}
	l.servers = append(l.servers, srv)
	l.bus.Publish(event.Event{Topic: event.DevStarted, Project: projectID, Engine: engineType, Port: portOf(opts.Port, DefaultDevPort)})
	return srv, nil
}

// Build runs a one-shot production build, blocking until it finishes.
func (l *Launcher) Build(ctx context.Context, opts Options) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	root, projectID, engineType, eng, err := l.prepare(ctx, opts)
	if err != nil {
		l.bus.Publish(event.Event{Topic: event.BuildError, Project: projectID, Engine: engineType, Err: err})
		return err
	}
	if err := eng.Build(ctx, engine.BuildOptions{Root: root, OutDir: opts.OutDir}); err != nil {
		l.bus.Publish(event.Event{Topic: event.BuildError, Project: projectID, Engine: engineType, Err: err})
		return err
	}
	l.bus.Publish(event.Event{Topic: event.BuildDone, Project: projectID, Engine: engineType})
	return nil
}

// Preview serves the last production build.
func (l *Launcher) Preview(ctx context.Context, opts Options) (engine.Server, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	root, projectID, engineType, eng, err := l.prepare(ctx, opts)
	if err != nil {
		l.bus.Publish(event.Event{Topic: event.PreviewError, Project: projectID, Engine: engineType, Err: err})
		return nil, err
	}
	srv, err := eng.Preview(ctx, engine.ServeOptions{Root: root, Host: opts.Host, Port: opts.Port})
	if err != nil {
		l.bus.Publish(event.Event{Topic: event.PreviewError, Project: projectID, Engine: engineType, Err: err})
		return nil, err
	}
	l.servers = append(l.servers, srv)
	l.bus.Publish(event.Event{Topic: event.PreviewStarted, Project: projectID, Engine: engineType, Port: portOf(opts.Port, DefaultPreviewPort)})
	return srv, nil
}

// Destroy closes every server handle the session opened and disposes all
// cached engines. Calling it again is a no-op.
func (l *Launcher) Destroy() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for _, srv := range l.servers {
		if err := srv.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.servers = nil
	if err := l.reg.DisposeAll(); err != nil && firstErr == nil {
		firstErr = err
	}
	l.bus.Publish(event.Event{Topic: event.Destroyed})
	return firstErr
}

// prepare resolves the per-call config, framework plugins and engine
// instance. Callers hold l.mu.
func (l *Launcher) prepare(ctx context.Context, opts Options) (root, projectID, engineType string, eng engine.Engine, err error) {
	root = opts.Root
	if root == "" {
		root = l.base.Workspace.Root
	}
	if root == "" {
		root = "."
	}
	projectID = projectIDFor(root)

	cfg, err := l.base.MergeInline(opts.Overrides)
	if err != nil {
		return root, projectID, "", nil, err
	}

	framework := cfg.Framework
	if framework == "" {
		framework = project.DetectFramework(root)
	}
	if len(cfg.Plugins) == 0 {
		cfg.Plugins = project.PluginsFor(framework)
	}
	l.log.Debug("launch resolved", "project", projectID, "framework", framework, "plugins", cfg.Plugins)

	engineType = cfg.ResolveEngineType()
	l.cur = cfg
	eng, err = l.reg.Get(ctx, engineType)
	if err != nil {
		return root, projectID, engineType, nil, err
	}
	return root, projectID, engineType, eng, nil
}

// sessionConfig exposes the active per-call config to the CLI engines.
func (l *Launcher) sessionConfig() *config.Config {
	if l.cur != nil {
		return l.cur
	}
	return l.base
}

// Supervisor exposes the process table for stop/restart surfaces.
func (l *Launcher) Supervisor() *supervisor.Supervisor { return l.sup }

func portOf(requested, fallback int) int {
	if requested > 0 {
		return requested
	}
	return fallback
}
