package main

import (
	"testing"

	"github.com/smazurov/relaynode/internal/version"
)

func TestNewCLI(t *testing.T) {
	root := newCLI().Root()

	if root.Use != version.Name {
		t.Errorf("Use = %q, want %q", root.Use, version.Name)
	}
	if root.Version != version.Banner() {
		t.Errorf("Version = %q, want %q", root.Version, version.Banner())
	}

	var relay bool
	for _, c := range root.Commands() {
		if c.Name() == "relay" {
			relay = true
		}
	}
	if !relay {
		t.Fatal("relay command not registered")
	}

	for _, name := range []string{"config", "port", "worker-binary", "worker-grace-period", "auth-username", "logging-level"} {
		if root.PersistentFlags().Lookup(name) == nil && root.Flags().Lookup(name) == nil {
			t.Errorf("missing flag --%s", name)
		}
	}
}
