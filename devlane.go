// Package devlane is a single-host control plane for project dev, build
// and preview workloads. It resolves a build engine per project, drives
// lifecycles through a process supervisor and streams logs, status and
// build progress to any number of observers.
package devlane

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/devlane/devlane/internal/config"
	"github.com/devlane/devlane/internal/engine"
	"github.com/devlane/devlane/internal/event"
	"github.com/devlane/devlane/internal/history"
	histfactory "github.com/devlane/devlane/internal/history/factory"
	"github.com/devlane/devlane/internal/launcher"
	"github.com/devlane/devlane/internal/logger"
	"github.com/devlane/devlane/internal/metrics"
	"github.com/devlane/devlane/internal/project"
	"github.com/devlane/devlane/internal/server"
	"github.com/devlane/devlane/internal/state"
	"github.com/devlane/devlane/internal/supervisor"
	"github.com/devlane/devlane/internal/telemetry"
	"github.com/devlane/devlane/internal/watcher"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = config.Config

type Options = launcher.Options

type Project = state.Project

type Running = supervisor.Running

type Envelope = telemetry.Envelope

type Observer = telemetry.Observer

type Event = event.Event

type Topic = event.Topic

// Lifecycle topics for Subscribe.
const (
	TopicDevStarted     = event.DevStarted
	TopicDevError       = event.DevError
	TopicBuildDone      = event.BuildDone
	TopicBuildError     = event.BuildError
	TopicPreviewStarted = event.PreviewStarted
	TopicPreviewError   = event.PreviewError
	TopicDestroyed      = event.Destroyed
)

type HistorySink = history.Sink

type Engine = engine.Engine

type Server = engine.Server

// Manager wires the control plane together: config, state, supervisor,
// engines, telemetry and the optional watcher/history extras.
type Manager struct {
	cfg      *config.Config
	store    *state.Store
	bus      *event.Bus
	hub      *telemetry.Hub
	sup      *supervisor.Supervisor
	registry *engine.Registry
	launcher *launcher.Launcher
	watch    *watcher.Watcher

	stopHistory func()
	histSink    io.Closer
}

// New builds a manager with default configuration.
func New() (*Manager, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg)
}

// NewWithConfig builds a manager over a loaded config: discovery scan,
// optional history sink and optional file watcher included.
func NewWithConfig(cfg *config.Config) (*Manager, error) {
	log := logger.New(cfg.Log.Level, cfg.Log.Color)
	store := state.NewStore()
	bus := event.NewBus()
	hub := telemetry.NewHub(store.Snapshot)
	sup := supervisor.New(store, hub, cfg.Capture, log)
	registry := engine.NewRegistry()
	l := launcher.New(cfg, registry, sup, bus, log)

	m := &Manager{
		cfg:      cfg,
		store:    store,
		bus:      bus,
		hub:      hub,
		sup:      sup,
		registry: registry,
		launcher: l,
	}

	if cfg.Workspace.Root != "" {
		if err := m.Scan(); err != nil {
			log.Warn("workspace scan failed", "root", cfg.Workspace.Root, "err", err)
		}
	}

	if cfg.History.DSN != "" {
		sink, err := histfactory.NewSinkFromDSN(cfg.History.DSN)
		if err != nil {
			return nil, err
		}
		m.stopHistory = history.Watch(bus, sink, log)
		if closer, ok := sink.(io.Closer); ok {
			m.histSink = closer
		}
	}

	if cfg.Watch.Enabled {
		onChange := func(projectID string) {
			if !cfg.Watch.Build {
				return
			}
			if p, ok := store.Get(projectID); ok {
				go func() { _ = l.Build(context.Background(), launcher.Options{Root: p.Path}) }()
			}
		}
		w, err := watcher.New(cfg.Watch.Debounce, hub, onChange, log)
		if err != nil {
			return nil, err
		}
		for _, p := range store.Snapshot() {
			if err := w.Watch(p.ID, p.Path); err != nil {
				log.Warn("watch project failed", "project", p.ID, "err", err)
			}
		}
		m.watch = w
	}

	return m, nil
}

// Scan re-discovers projects under the workspace root.
func (m *Manager) Scan() error {
	projects, err := project.Scan(m.cfg.Workspace.Root)
	if err != nil {
		return err
	}
	for _, p := range projects {
		m.store.Upsert(p)
	}
	return nil
}

func (m *Manager) Dev(ctx context.Context, opts Options) (Server, error) {
	return m.launcher.Dev(ctx, opts)
}

func (m *Manager) Build(ctx context.Context, opts Options) error {
	return m.launcher.Build(ctx, opts)
}

func (m *Manager) Preview(ctx context.Context, opts Options) (Server, error) {
	return m.launcher.Preview(ctx, opts)
}

func (m *Manager) Stop(projectID, action string) error { return m.sup.Stop(projectID, action) }

func (m *Manager) StopProject(projectID string) error { return m.sup.StopProject(projectID) }

func (m *Manager) Restart(projectID, action string) error { return m.sup.Restart(projectID, action) }

// Projects returns the discovered project table.
func (m *Manager) Projects() []Project { return m.store.Snapshot() }

// RunningWorkloads lists the live supervised processes.
func (m *Manager) RunningWorkloads() []Running { return m.sup.List() }

// Attach connects a telemetry observer: status snapshot, log replay, live.
func (m *Manager) Attach() *Observer { return m.hub.Attach() }

// Subscribe registers for typed lifecycle events.
func (m *Manager) Subscribe(t Topic) (<-chan Event, func()) { return m.bus.Subscribe(t) }

// RegisterEngine installs a custom engine factory.
func (m *Manager) RegisterEngine(engineType string, f engine.Factory) {
	m.registry.Register(engineType, f)
}

// Close shuts the plane down: watcher first, then every supervised
// process, the engine session and the history export.
func (m *Manager) Close() error {
	if m.watch != nil {
		_ = m.watch.Close()
	}
	_ = m.sup.StopAll()
	err := m.launcher.Destroy()
	if m.stopHistory != nil {
		m.stopHistory()
	}
	if m.histSink != nil {
		_ = m.histSink.Close()
	}
	return err
}

// LoadConfig reads a TOML config file.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// Handler returns the control plane HTTP handler for mounting in any mux.
func (m *Manager) Handler(basePath string) http.Handler {
	return server.NewRouter(m.launcher, m.store, m.hub, basePath).Handler()
}

// NewHTTPServer starts a standalone HTTP server exposing the control
// plane API and telemetry socket.
func NewHTTPServer(addr, basePath string, m *Manager) *http.Server {
	return server.NewServer(addr, server.NewRouter(m.launcher, m.store, m.hub, basePath))
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It blocks in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
