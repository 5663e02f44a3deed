package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/smazurov/relaynode/internal/ffmpeg"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadRelayFile(t *testing.T) {
	path := writeFile(t, `
[relay]
source = "srt://encoder:9000"
destinations = ["rtmp://a.example/live/k1", "rtmp://b.example/live/k2"]
`)

	req, err := LoadRelayFile(path)
	if err != nil {
		t.Fatalf("LoadRelayFile failed: %v", err)
	}
	if req.Source != "srt://encoder:9000" {
		t.Errorf("Source = %q", req.Source)
	}
	want := []string{"rtmp://a.example/live/k1", "rtmp://b.example/live/k2"}
	if !slices.Equal(req.Destinations, want) {
		t.Errorf("Destinations = %v, want %v", req.Destinations, want)
	}
}

func TestLoadRelayFileErrors(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantInvalid bool
	}{
		{"no relay table", "[server]\nport = \":8090\"\n", true},
		{"no destinations", "[relay]\nsource = \"rtmp://h/in\"\n", true},
		{"bad source", "[relay]\nsource = \"  \"\ndestinations = [\"rtmp://h/out\"]\n", true},
		{"invalid toml", "[relay\nsource=", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRelayFile(writeFile(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ffmpeg.ErrInvalidRequest); got != tt.wantInvalid {
				t.Errorf("errors.Is(ErrInvalidRequest) = %v, want %v (err: %v)", got, tt.wantInvalid, err)
			}
		})
	}
}

func TestLoadRelayFileMissing(t *testing.T) {
	if _, err := LoadRelayFile(filepath.Join(t.TempDir(), "missing.toml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}
