package main

import (
	"testing"
)

func TestBuildRootSubcommands(t *testing.T) {
	root := buildRoot()
	want := map[string]bool{
		"serve":   false,
		"dev":     false,
		"build":   false,
		"preview": false,
		"stop":    false,
		"status":  false,
	}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("missing subcommand %q", name)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("missing persistent --config flag")
	}
}

func TestEngineOverride(t *testing.T) {
	if got := engineOverride(""); got != nil {
		t.Fatalf("override = %v", got)
	}
	got := engineOverride("rsbuild")
	launcherCfg, ok := got["launcher"].(map[string]any)
	if !ok || launcherCfg["engine"] != "rsbuild" {
		t.Fatalf("override = %v", got)
	}
}

func TestStopRequiresProjectFlag(t *testing.T) {
	cmd := createStopCommand(&StopFlags{})
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error without --project")
	}
}
