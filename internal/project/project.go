// Package project discovers managed projects in a workspace and detects
// their framework from marker files. Detection is informational: it picks
// the plugin set injected into the engine config, nothing more.
package project

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/devlane/devlane/internal/state"
)

// frameworks in detection priority order. Dependency markers win over
// config-file markers because meta-frameworks ship their own configs.
var frameworkDeps = []struct {
	dep       string
	framework string
}{
	{"astro", "astro"},
	{"svelte", "svelte"},
	{"solid-js", "solid"},
	{"vue", "vue"},
	{"preact", "preact"},
	{"react", "react"},
}

var frameworkConfigs = map[string]string{
	"astro.config.mjs":  "astro",
	"astro.config.ts":   "astro",
	"svelte.config.js":  "svelte",
	"vue.config.js":     "vue",
	"angular.json":      "angular",
	"next.config.js":    "react",
	"next.config.mjs":   "react",
	"nuxt.config.ts":    "vue",
}

// pluginSets maps a detected framework to the plugin identifiers injected
// into the resolved engine config.
var pluginSets = map[string][]string{
	"react":  {"@vitejs/plugin-react"},
	"preact": {"@preact/preset-vite"},
	"vue":    {"@vitejs/plugin-vue"},
	"svelte": {"@sveltejs/vite-plugin-svelte"},
	"solid":  {"vite-plugin-solid"},
	"astro":  {"@astrojs/vite-plugin-astro"},
}

type packageJSON struct {
	Name            string            `json:"name"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// DetectFramework inspects a project root and names its framework.
// Returns "vanilla" when nothing matches.
func DetectFramework(root string) string {
	if pkg, err := readPackageJSON(root); err == nil {
		for _, fd := range frameworkDeps {
			if _, ok := pkg.Dependencies[fd.dep]; ok {
				return fd.framework
			}
			if _, ok := pkg.DevDependencies[fd.dep]; ok {
				return fd.framework
			}
		}
	}
	for marker, fw := range frameworkConfigs {
		if _, err := os.Stat(filepath.Join(root, marker)); err == nil {
			return fw
		}
	}
	return "vanilla"
}

// PluginsFor returns the plugin set matching a framework, nil for
// frameworks with no dedicated plugins.
func PluginsFor(framework string) []string {
	return pluginSets[framework]
}

// Scan walks one level of the workspace root and returns a project entry
// for every directory carrying a package.json. The root itself counts
// when it carries one, keyed by its base name.
func Scan(root string) ([]state.Project, error) {
	var out []state.Project
	if hasPackageJSON(root) {
		out = append(out, newProject(root))
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if len(out) > 0 {
			return out, nil
		}
		return nil, err
	}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") || e.Name() == "node_modules" {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if hasPackageJSON(dir) {
			out = append(out, newProject(dir))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func newProject(dir string) state.Project {
	id := filepath.Base(dir)
	name := id
	if pkg, err := readPackageJSON(dir); err == nil && pkg.Name != "" {
		name = pkg.Name
	}
	return state.Project{
		ID:        id,
		Name:      name,
		Path:      dir,
		Framework: DetectFramework(dir),
		Status:    state.StatusStopped,
	}
}

func hasPackageJSON(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, "package.json"))
	return err == nil
}

func readPackageJSON(dir string) (*packageJSON, error) {
	b, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return nil, err
	}
	var pkg packageJSON
	if err := json.Unmarshal(b, &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}
