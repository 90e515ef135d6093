package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Commands holds the CLI invocations for one engine type. {host} and
// {port} placeholders are expanded at spawn time.
type Commands struct {
	Dev     string `mapstructure:"dev"`
	Build   string `mapstructure:"build"`
	Preview string `mapstructure:"preview"`
}

// Built-in command templates for the engines devlane knows out of the box.
// A config [engines.<type>] table overrides individual fields.
var defaultEngineCommands = map[string]Commands{
	"vite": {
		Dev:     "npx vite --host {host} --port {port} --strictPort",
		Build:   "npx vite build",
		Preview: "npx vite preview --host {host} --port {port} --strictPort",
	},
	"rsbuild": {
		Dev:     "npx rsbuild dev --host {host} --port {port}",
		Build:   "npx rsbuild build",
		Preview: "npx rsbuild preview --host {host} --port {port}",
	},
	"webpack": {
		Dev:     "npx webpack serve --host {host} --port {port}",
		Build:   "npx webpack build",
		Preview: "npx webpack serve --host {host} --port {port} --no-hot",
	},
}

// CommandFor resolves the CLI invocation for (engineType, action) with
// placeholders expanded. Config-provided fields win over built-ins.
func (c *Config) CommandFor(engineType, action, host string, port int) (string, error) {
	base := defaultEngineCommands[engineType]
	if over, ok := c.Engines[engineType]; ok {
		if over.Dev != "" {
			base.Dev = over.Dev
		}
		if over.Build != "" {
			base.Build = over.Build
		}
		if over.Preview != "" {
			base.Preview = over.Preview
		}
	}
	var tmpl string
	switch action {
	case "dev":
		tmpl = base.Dev
	case "build":
		tmpl = base.Build
	case "preview":
		tmpl = base.Preview
	default:
		return "", fmt.Errorf("unknown action %q", action)
	}
	if tmpl == "" {
		return "", fmt.Errorf("engine %q has no %s command", engineType, action)
	}
	if host == "" {
		host = DefaultHost
	}
	tmpl = strings.ReplaceAll(tmpl, "{host}", host)
	tmpl = strings.ReplaceAll(tmpl, "{port}", strconv.Itoa(port))
	return tmpl, nil
}
