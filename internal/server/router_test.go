package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/devlane/devlane/internal/config"
	"github.com/devlane/devlane/internal/engine"
	"github.com/devlane/devlane/internal/event"
	"github.com/devlane/devlane/internal/launcher"
	"github.com/devlane/devlane/internal/state"
	"github.com/devlane/devlane/internal/supervisor"
	"github.com/devlane/devlane/internal/telemetry"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestRouter(t *testing.T) (*Router, *state.Store) {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	store := state.NewStore()
	hub := telemetry.NewHub(store.Snapshot)
	sup := supervisor.New(store, hub, cfg.Capture, nil)
	l := launcher.New(cfg, engine.NewRegistry(), sup, event.NewBus(), nil)
	return NewRouter(l, store, hub, ""), store
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s %s: %v (body %q)", method, path, err, w.Body.String())
	}
	return w, env
}

func TestWorkspaceProjects(t *testing.T) {
	r, store := newTestRouter(t)
	store.Upsert(state.Project{ID: "app", Name: "app", Framework: "react", Status: state.StatusStopped})
	h := r.Handler()

	w, env := doJSON(t, h, http.MethodGet, "/workspace/projects", nil)
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("code=%d env=%+v", w.Code, env)
	}
	list, ok := env.Data.([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("data = %#v", env.Data)
	}
}

func TestWorkspaceRunningEmpty(t *testing.T) {
	r, _ := newTestRouter(t)
	w, env := doJSON(t, r.Handler(), http.MethodGet, "/workspace/running", nil)
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("code=%d env=%+v", w.Code, env)
	}
}

func TestStopEmptyProjectStopsEverything(t *testing.T) {
	r, _ := newTestRouter(t)
	// no project named means a plane-wide sweep; an idle plane is fine
	w, env := doJSON(t, r.Handler(), http.MethodPost, "/action/stop", map[string]any{})
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("code=%d env=%+v", w.Code, env)
	}
}

func TestStopUnknownWorkloadIsNotFound(t *testing.T) {
	r, _ := newTestRouter(t)
	h := r.Handler()

	w, env := doJSON(t, h, http.MethodPost, "/action/stop", map[string]any{"project": "ghost"})
	if w.Code != http.StatusNotFound || env.Success || env.Error == "" {
		t.Fatalf("code=%d env=%+v", w.Code, env)
	}

	w, _ = doJSON(t, h, http.MethodPost, "/action/stop", map[string]any{"project": "ghost", "action": "dev"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("code = %d", w.Code)
	}
}

func TestActionDevUnknownEngine(t *testing.T) {
	r, _ := newTestRouter(t)
	w, env := doJSON(t, r.Handler(), http.MethodPost, "/action/dev", map[string]any{
		"root":   t.TempDir(),
		"config": map[string]any{"engine": map[string]any{"type": "no-such-engine"}},
	})
	if w.Code != http.StatusBadRequest || env.Success || env.Error == "" {
		t.Fatalf("code=%d env=%+v", w.Code, env)
	}
}

func TestActionDevRejectsMalformedBody(t *testing.T) {
	r, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/action/dev", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d", w.Code)
	}
}

func TestProjectRouteValidation(t *testing.T) {
	r, store := newTestRouter(t)
	store.Upsert(state.Project{ID: "app", Path: t.TempDir()})
	h := r.Handler()

	w, _ := doJSON(t, h, http.MethodPost, "/workspace/project/bad..name/dev", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("traversal id: code = %d", w.Code)
	}

	w, env := doJSON(t, h, http.MethodPost, "/workspace/project/ghost/build", nil)
	if w.Code != http.StatusNotFound || env.Success {
		t.Fatalf("unknown id: code=%d env=%+v", w.Code, env)
	}

	// known project, no live workload
	w, _ = doJSON(t, h, http.MethodPost, "/workspace/project/app/stop", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("stop idle project: code = %d", w.Code)
	}
}

func TestBasePathMounting(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	store := state.NewStore()
	hub := telemetry.NewHub(store.Snapshot)
	sup := supervisor.New(store, hub, cfg.Capture, nil)
	l := launcher.New(cfg, engine.NewRegistry(), sup, event.NewBus(), nil)
	r := NewRouter(l, store, hub, "api/")

	w, env := doJSON(t, r.Handler(), http.MethodGet, "/api/workspace/projects", nil)
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("code=%d env=%+v", w.Code, env)
	}
}

func TestSanitizeBase(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", ""},
		{"/", ""},
		{"api", "/api"},
		{"/api/", "/api"},
		{"  /api/v1/  ", "/api/v1"},
	}
	for _, tc := range cases {
		if got := sanitizeBase(tc.in); got != tc.want {
			t.Errorf("sanitizeBase(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsSafeName(t *testing.T) {
	for _, ok := range []string{"app", "my-app", "my_app.v2", "A1"} {
		if !isSafeName(ok) {
			t.Errorf("isSafeName(%q) = false", ok)
		}
	}
	for _, bad := range []string{"", "a/b", `a\b`, "..", "a..b", "a b", "app!"} {
		if isSafeName(bad) {
			t.Errorf("isSafeName(%q) = true", bad)
		}
	}
}
