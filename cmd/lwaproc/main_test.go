package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestSubcommandsRegistered(t *testing.T) {
	want := []string{"run", "batch", "selfcal", "realtime", "flagavg", "gaincal", "image"}
	have := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Errorf("subcommand %s not registered", name)
		}
	}
}

func TestRun_MissingArgsIsUsageError(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"run"})

	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected usage error for run without args")
	}
}

func TestUnknownRuntimeRejected(t *testing.T) {
	globalFlags.runtime = "lxc"
	defer func() { globalFlags.runtime = "podman" }()

	if _, err := newRuntime(); err == nil || !strings.Contains(err.Error(), "lxc") {
		t.Fatalf("expected unknown-runtime error, got %v", err)
	}
}
