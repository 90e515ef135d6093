package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingPathYieldsDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Log.Level != "info" {
		t.Fatalf("default log level = %q, want info", c.Log.Level)
	}
	if c.Watch.Debounce != 300*time.Millisecond {
		t.Fatalf("default debounce = %v", c.Watch.Debounce)
	}
	if got := c.ResolveEngineType(); got != DefaultEngineType {
		t.Fatalf("ResolveEngineType = %q, want %q", got, DefaultEngineType)
	}
}

func TestLoadTOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "devlane.toml")
	content := `
[log]
level = "debug"
color = true

[workspace]
root = "/srv/projects"

[engine]
type = "webpack"

[engines.webpack]
dev = "npx webpack serve --port {port}"

[watch]
enabled = true
debounce = "500ms"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Log.Level != "debug" || !c.Log.Color {
		t.Fatalf("log config = %+v", c.Log)
	}
	if c.Workspace.Root != "/srv/projects" {
		t.Fatalf("workspace root = %q", c.Workspace.Root)
	}
	if got := c.ResolveEngineType(); got != "webpack" {
		t.Fatalf("engine type = %q", got)
	}
	if !c.Watch.Enabled || c.Watch.Debounce != 500*time.Millisecond {
		t.Fatalf("watch = %+v", c.Watch)
	}
	cmd, err := c.CommandFor("webpack", "dev", "", 3000)
	if err != nil {
		t.Fatalf("CommandFor: %v", err)
	}
	if cmd != "npx webpack serve --port 3000" {
		t.Fatalf("command = %q", cmd)
	}
}

func TestLoadBadFileReturnsConfigLoadError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.toml")
	if err := os.WriteFile(path, []byte("[[["), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error")
	}
	var cle *ConfigLoadError
	if !errors.As(err, &cle) {
		t.Fatalf("error type = %T", err)
	}
	if cle.Path != path {
		t.Fatalf("error path = %q", cle.Path)
	}
}

func TestEngineTypePrecedence(t *testing.T) {
	cases := []struct {
		name     string
		launcher string
		engine   string
		want     string
	}{
		{"both set, launcher wins", "rsbuild", "webpack", "rsbuild"},
		{"engine only", "", "webpack", "webpack"},
		{"neither", "", "", DefaultEngineType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := &Config{}
			c.Launcher.Engine = tc.launcher
			c.Engine.Type = tc.engine
			if got := c.ResolveEngineType(); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMergeInlineOverrides(t *testing.T) {
	base, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	merged, err := base.MergeInline(map[string]any{
		"launcher": map[string]any{"engine": "rsbuild"},
		"log":      map[string]any{"level": "warn"},
	})
	if err != nil {
		t.Fatalf("MergeInline: %v", err)
	}
	if got := merged.ResolveEngineType(); got != "rsbuild" {
		t.Fatalf("engine type = %q", got)
	}
	if merged.Log.Level != "warn" {
		t.Fatalf("log level = %q", merged.Log.Level)
	}
	// base is untouched
	if base.ResolveEngineType() != DefaultEngineType {
		t.Fatalf("base mutated: %q", base.ResolveEngineType())
	}
}

func TestMergeInlineReplacesArrays(t *testing.T) {
	base, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	first, err := base.MergeInline(map[string]any{"plugins": []any{"a", "b"}})
	if err != nil {
		t.Fatal(err)
	}
	second, err := first.MergeInline(map[string]any{"plugins": []any{"c"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(second.Plugins) != 1 || second.Plugins[0] != "c" {
		t.Fatalf("plugins = %v, want [c]", second.Plugins)
	}
}

func TestCommandForPlaceholdersAndErrors(t *testing.T) {
	c := &Config{}
	cmd, err := c.CommandFor("vite", "dev", "0.0.0.0", 5173)
	if err != nil {
		t.Fatalf("CommandFor: %v", err)
	}
	want := "npx vite --host 0.0.0.0 --port 5173 --strictPort"
	if cmd != want {
		t.Fatalf("command = %q, want %q", cmd, want)
	}

	// host default applies when empty
	cmd, err = c.CommandFor("vite", "preview", "", 4173)
	if err != nil {
		t.Fatal(err)
	}
	if cmd != "npx vite preview --host "+DefaultHost+" --port 4173 --strictPort" {
		t.Fatalf("command = %q", cmd)
	}

	if _, err := c.CommandFor("vite", "lint", "", 0); err == nil {
		t.Fatal("expected unknown action error")
	}
	if _, err := c.CommandFor("esbuild", "dev", "", 0); err == nil {
		t.Fatal("expected missing command error")
	}
}
