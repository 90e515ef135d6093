package launcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/devlane/devlane/internal/config"
	"github.com/devlane/devlane/internal/engine"
	"github.com/devlane/devlane/internal/supervisor"
)

// Default ports follow the vite conventions the built-in engines share.
const (
	DefaultDevPort     = 5173
	DefaultPreviewPort = 4173
)

// cliEngine adapts a command-line bundler to the Engine interface. The
// toolchain runs as a supervised child process; devlane only shapes its
// invocation and watches its lifecycle.
type cliEngine struct {
	engineType string
	sup        *supervisor.Supervisor

	// cfg yields the active session config so per-call inline overrides
	// reach command resolution.
	cfg func() *config.Config
}

func (e *cliEngine) Initialize(ctx context.Context) error {
	// Resolving the dev template catches a broken [engines] override early.
	_, err := e.cfg().CommandFor(e.engineType, "dev", config.DefaultHost, 1)
	return err
}

func (e *cliEngine) Dev(ctx context.Context, opts engine.ServeOptions) (engine.Server, error) {
	return e.serve(opts, supervisor.ActionDev, DefaultDevPort)
}

func (e *cliEngine) Preview(ctx context.Context, opts engine.ServeOptions) (engine.Server, error) {
	return e.serve(opts, supervisor.ActionPreview, DefaultPreviewPort)
}

func (e *cliEngine) Build(ctx context.Context, opts engine.BuildOptions) error {
	id := projectIDFor(opts.Root)
	command, err := e.cfg().CommandFor(e.engineType, supervisor.ActionBuild, "", 0)
	if err != nil {
		return err
	}
	return e.sup.Build(supervisor.Spec{
		ProjectID: id,
		Action:    supervisor.ActionBuild,
		Dir:       opts.Root,
		Command:   command,
	})
}

func (e *cliEngine) Dispose() error { return nil }

func (e *cliEngine) serve(opts engine.ServeOptions, action string, defaultPort int) (engine.Server, error) {
	host := opts.Host
	if host == "" {
		host = config.DefaultHost
	}
	port := opts.Port
	if port <= 0 {
		port = defaultPort
	}
	id := projectIDFor(opts.Root)
	command, err := e.cfg().CommandFor(e.engineType, action, host, port)
	if err != nil {
		return nil, err
	}
	spec := supervisor.Spec{
		ProjectID: id,
		Action:    action,
		Dir:       opts.Root,
		Command:   command,
		Host:      host,
		Port:      port,
	}
	if err := e.sup.Start(spec); err != nil {
		return nil, err
	}
	return &cliServer{sup: e.sup, projectID: id, action: action, addr: fmt.Sprintf("%s:%d", host, port)}, nil
}

// cliServer is the handle returned for a running dev or preview process.
type cliServer struct {
	sup       *supervisor.Supervisor
	projectID string
	action    string
	addr      string
}

func (s *cliServer) Addr() string { return s.addr }

// Close stops the underlying workload. Closing an already stopped server
// is a no-op.
func (s *cliServer) Close() error {
	err := s.sup.Stop(s.projectID, s.action)
	var nr *supervisor.ErrNotRunning
	if errors.As(err, &nr) {
		return nil
	}
	return err
}

func projectIDFor(root string) string {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return filepath.Base(root)
	}
	return filepath.Base(abs)
}
