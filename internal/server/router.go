// Package server exposes the control plane over HTTP: launch actions,
// workspace queries and the telemetry WebSocket. Handlers are embeddable
// in any mux.
package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/devlane/devlane/internal/launcher"
	"github.com/devlane/devlane/internal/state"
	"github.com/devlane/devlane/internal/supervisor"
	"github.com/devlane/devlane/internal/telemetry"
)

// Router provides embeddable HTTP handlers for the control plane.
// Endpoints:
//
//	POST {basePath}/action/dev       body: launch request JSON
//	POST {basePath}/action/build
//	POST {basePath}/action/preview
//	POST {basePath}/action/stop      body: {project, action}; empty project stops everything
//	POST {basePath}/workspace/project/:id/dev
//	POST {basePath}/workspace/project/:id/stop
//	POST {basePath}/workspace/project/:id/build
//	GET  {basePath}/workspace/running
//	GET  {basePath}/workspace/projects
//	GET  {basePath}/ws               telemetry observer socket
//
// Every REST response uses the {success, data|error} envelope.
type Router struct {
	launcher *launcher.Launcher
	sup      *supervisor.Supervisor
	store    *state.Store
	hub      *telemetry.Hub
	basePath string
}

// NewRouter constructs a Router with a configurable basePath.
func NewRouter(l *launcher.Launcher, store *state.Store, hub *telemetry.Hub, basePath string) *Router {
	return &Router{
		launcher: l,
		sup:      l.Supervisor(),
		store:    store,
		hub:      hub,
		basePath: sanitizeBase(basePath),
	}
}

// Handler returns an http.Handler powered by gin that can be mounted in
// any server or mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/action/dev", r.handleActionDev)
	group.POST("/action/build", r.handleActionBuild)
	group.POST("/action/preview", r.handleActionPreview)
	group.POST("/action/stop", r.handleActionStop)
	group.POST("/workspace/project/:id/dev", r.handleProjectDev)
	group.POST("/workspace/project/:id/stop", r.handleProjectStop)
	group.POST("/workspace/project/:id/build", r.handleProjectBuild)
	group.GET("/workspace/running", r.handleRunning)
	group.GET("/workspace/projects", r.handleProjects)
	group.GET("/ws", r.handleWS)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, r *Router) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

// launchRequest is the body of the /action launch endpoints.
type launchRequest struct {
	Root   string         `json:"root"`
	Host   string         `json:"host"`
	Port   int            `json:"port"`
	OutDir string         `json:"out_dir"`
	Config map[string]any `json:"config"`
}

type stopRequest struct {
	Project string `json:"project"`
	Action  string `json:"action"`
}

func (r *Router) handleActionDev(c *gin.Context) {
	var req launchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	srv, err := r.launcher.Dev(c.Request.Context(), launchOptions(req))
	if err != nil {
		writeErr(c, launchErrCode(err), err.Error())
		return
	}
	writeOK(c, gin.H{"addr": srv.Addr()})
}

func (r *Router) handleActionPreview(c *gin.Context) {
	var req launchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	srv, err := r.launcher.Preview(c.Request.Context(), launchOptions(req))
	if err != nil {
		writeErr(c, launchErrCode(err), err.Error())
		return
	}
	writeOK(c, gin.H{"addr": srv.Addr()})
}

func (r *Router) handleActionBuild(c *gin.Context) {
	var req launchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := r.launcher.Build(c.Request.Context(), launchOptions(req)); err != nil {
		writeErr(c, launchErrCode(err), err.Error())
		return
	}
	writeOK(c, nil)
}

func (r *Router) handleActionStop(c *gin.Context) {
	var req stopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	var err error
	switch {
	case req.Project == "":
		err = r.sup.StopAll()
	case req.Action == "":
		err = r.sup.StopProject(req.Project)
	default:
		err = r.sup.Stop(req.Project, req.Action)
	}
	if err != nil {
		writeErr(c, launchErrCode(err), err.Error())
		return
	}
	writeOK(c, nil)
}

func (r *Router) handleProjectDev(c *gin.Context) {
	p, ok := r.lookupProject(c)
	if !ok {
		return
	}
	srv, err := r.launcher.Dev(c.Request.Context(), launcher.Options{Root: p.Path})
	if err != nil {
		writeErr(c, launchErrCode(err), err.Error())
		return
	}
	writeOK(c, gin.H{"addr": srv.Addr()})
}

func (r *Router) handleProjectStop(c *gin.Context) {
	p, ok := r.lookupProject(c)
	if !ok {
		return
	}
	if err := r.sup.StopProject(p.ID); err != nil {
		writeErr(c, launchErrCode(err), err.Error())
		return
	}
	writeOK(c, nil)
}

func (r *Router) handleProjectBuild(c *gin.Context) {
	p, ok := r.lookupProject(c)
	if !ok {
		return
	}
	if err := r.launcher.Build(c.Request.Context(), launcher.Options{Root: p.Path}); err != nil {
		writeErr(c, launchErrCode(err), err.Error())
		return
	}
	writeOK(c, nil)
}

func (r *Router) handleRunning(c *gin.Context) {
	writeOK(c, r.sup.List())
}

func (r *Router) handleProjects(c *gin.Context) {
	writeOK(c, r.store.Snapshot())
}

func (r *Router) lookupProject(c *gin.Context) (state.Project, bool) {
	id := c.Param("id")
	if !isSafeName(id) {
		writeErr(c, http.StatusBadRequest, "invalid project id")
		return state.Project{}, false
	}
	p, ok := r.store.Get(id)
	if !ok {
		writeErr(c, http.StatusNotFound, "unknown project: "+id)
		return state.Project{}, false
	}
	return p, true
}

func launchOptions(req launchRequest) launcher.Options {
	return launcher.Options{
		Root:      req.Root,
		Host:      req.Host,
		Port:      req.Port,
		OutDir:    req.OutDir,
		Overrides: req.Config,
	}
}

// launchErrCode maps action failures to HTTP codes: occupied slot is a
// conflict, a missing process is not found, everything else is a bad
// request. Action errors never take the plane down.
func launchErrCode(err error) int {
	var already *supervisor.ErrAlreadyRunning
	if errors.As(err, &already) {
		return http.StatusConflict
	}
	var notRunning *supervisor.ErrNotRunning
	if errors.As(err, &notRunning) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}
