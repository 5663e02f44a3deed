package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/smazurov/relaynode/internal/api/models"
	"github.com/smazurov/relaynode/internal/events"
	"github.com/smazurov/relaynode/internal/ffmpeg"
	"github.com/smazurov/relaynode/internal/process"
	"github.com/smazurov/relaynode/internal/supervisor"
)

var authHeader = "Authorization: Basic " + base64.StdEncoding.EncodeToString([]byte("test:test"))

// stubRelay is a RelayController that returns canned results.
type stubRelay struct {
	mu           sync.Mutex
	launchErr    error
	terminateErr error
	info         supervisor.SessionInfo
	launched     []ffmpeg.Request
	terminated   int
}

func (s *stubRelay) Launch(_ context.Context, req ffmpeg.Request) (supervisor.SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.launched = append(s.launched, req)
	if err := req.Validate(); err != nil {
		return supervisor.SessionInfo{}, err
	}
	return s.info, s.launchErr
}

func (s *stubRelay) Terminate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminated++
	return s.terminateErr
}

func (s *stubRelay) Status() supervisor.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

func newTestAPI(t *testing.T, relay RelayController) humatest.TestAPI {
	t.Helper()
	server := NewServer(&Options{
		AuthUsername: "test",
		AuthPassword: "test",
		Relay:        relay,
		EventBus:     events.New(),
	})
	return humatest.Wrap(t, server.GetAPI())
}

func decodeSession(t *testing.T, body io.Reader) models.SessionData {
	t.Helper()
	var data models.SessionData
	if err := json.NewDecoder(body).Decode(&data); err != nil {
		t.Fatalf("decoding session: %v", err)
	}
	return data
}

func validBody() map[string]any {
	return map[string]any{
		"source":       "srt://encoder:9000",
		"destinations": []string{"rtmp://a.example/live/k1", "rtmp://b.example/live/k2"},
	}
}

func TestStartRelayStatusCodes(t *testing.T) {
	tests := []struct {
		name      string
		launchErr error
		body      map[string]any
		want      int
	}{
		{"accepted", nil, validBody(), http.StatusAccepted},
		{"already running", supervisor.ErrAlreadyRunning, validBody(), http.StatusConflict},
		{"spawn failed", &process.SpawnError{Binary: "ffmpeg", Reason: "executable not found"}, validBody(), http.StatusBadGateway},
		{"internal", errors.New("boom"), validBody(), http.StatusInternalServerError},
		{"no destinations", nil, map[string]any{"source": "srt://encoder:9000"}, http.StatusBadRequest},
		{"no source", nil, map[string]any{"destinations": []string{"rtmp://a.example/live"}}, http.StatusBadRequest},
		{"bad destination", nil, map[string]any{"source": "srt://encoder:9000", "destinations": []string{"nope"}}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			relay := &stubRelay{
				launchErr: tt.launchErr,
				info:      supervisor.SessionInfo{ID: "s1", State: supervisor.StateRunning, Args: []string{"-i", "x"}},
			}
			api := newTestAPI(t, relay)

			resp := api.Post("/api/relay", authHeader, tt.body)
			if resp.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", resp.Code, tt.want, resp.Body.String())
			}
		})
	}
}

func TestStartRelayPassesRequest(t *testing.T) {
	relay := &stubRelay{info: supervisor.SessionInfo{ID: "s1", State: supervisor.StateRunning}}
	api := newTestAPI(t, relay)

	resp := api.Post("/api/relay", authHeader, validBody())
	if resp.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", resp.Code, resp.Body.String())
	}

	if len(relay.launched) != 1 {
		t.Fatalf("expected one launch, got %d", len(relay.launched))
	}
	got := relay.launched[0]
	if got.Source != "srt://encoder:9000" || len(got.Destinations) != 2 || got.Destinations[1] != "rtmp://b.example/live/k2" {
		t.Errorf("launched with %+v", got)
	}

	data := decodeSession(t, resp.Body)
	if data.SessionID != "s1" || data.State != "running" {
		t.Errorf("response = %+v", data)
	}
}

func TestStopRelayIsIdempotent(t *testing.T) {
	relay := &stubRelay{terminateErr: supervisor.ErrNotRunning}
	api := newTestAPI(t, relay)

	for range 2 {
		if resp := api.Delete("/api/relay", authHeader); resp.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want 204", resp.Code)
		}
	}
	if relay.terminated != 2 {
		t.Errorf("Terminate called %d times, want 2", relay.terminated)
	}
}

func TestRelayStatus(t *testing.T) {
	code := 1
	started := time.Date(2025, 1, 9, 10, 0, 0, 0, time.UTC)
	relay := &stubRelay{info: supervisor.SessionInfo{
		ID:           "s1",
		State:        supervisor.StateExited,
		Source:       "srt://encoder:9000",
		Destinations: []string{"rtmp://a.example/live/k1"},
		Args:         []string{"-i", "srt://encoder:9000", "-c", "copy", "-f", "flv", "rtmp://a.example/live/k1"},
		StartedAt:    started,
		EndedAt:      started.Add(time.Minute),
		ExitCode:     &code,
		Lines:        12,
	}}
	api := newTestAPI(t, relay)

	resp := api.Get("/api/relay", authHeader)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}

	data := decodeSession(t, resp.Body)
	if data.State != "exited" || data.ExitCode == nil || *data.ExitCode != 1 {
		t.Errorf("unexpected session %+v", data)
	}
	if data.Command != "ffmpeg -i srt://encoder:9000 -c copy -f flv rtmp://a.example/live/k1" {
		t.Errorf("command = %q", data.Command)
	}
	if data.StartedAt == nil || !data.StartedAt.Equal(started) {
		t.Errorf("started_at = %v", data.StartedAt)
	}
	if data.Lines != 12 {
		t.Errorf("lines = %d", data.Lines)
	}
}

func TestRelayStatusIdle(t *testing.T) {
	api := newTestAPI(t, &stubRelay{info: supervisor.SessionInfo{State: supervisor.StateIdle}})

	data := decodeSession(t, api.Get("/api/relay", authHeader).Body)
	if data.State != "idle" || data.SessionID != "" || data.StartedAt != nil {
		t.Errorf("idle session = %+v", data)
	}
}

func TestAuthRequired(t *testing.T) {
	api := newTestAPI(t, &stubRelay{})
	wrong := "Authorization: Basic " + base64.StdEncoding.EncodeToString([]byte("test:nope"))

	tests := []struct {
		name string
		resp int
	}{
		{"no credentials", api.Get("/api/relay").Code},
		{"wrong password", api.Get("/api/relay", wrong).Code},
		{"bearer token", api.Get("/api/relay", "Authorization: Bearer abc").Code},
		{"delete without credentials", api.Delete("/api/relay").Code},
	}
	for _, tt := range tests {
		if tt.resp != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", tt.name, tt.resp)
		}
	}

	if resp := api.Get("/api/health"); resp.Code != http.StatusOK {
		t.Errorf("health should not require auth, got %d", resp.Code)
	}
	if resp := api.Get("/api/version"); resp.Code != http.StatusOK {
		t.Errorf("version should not require auth, got %d", resp.Code)
	}
}

func TestDecodeCredentials(t *testing.T) {
	user, pass, err := decodeCredentials(base64.StdEncoding.EncodeToString([]byte("admin:p:w")))
	if err != nil || user != "admin" || pass != "p:w" {
		t.Errorf("got %q %q %v", user, pass, err)
	}
	if _, _, err := decodeCredentials(base64.StdEncoding.EncodeToString([]byte("nocolon"))); err == nil {
		t.Error("expected error without colon")
	}
	if _, _, err := decodeCredentials("%%%"); err == nil {
		t.Error("expected error for invalid base64")
	}
}

// writeWorker creates an executable shell script standing in for ffmpeg.
func writeWorker(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("writing worker script: %v", err)
	}
	return path
}

func TestRelayLifecycleWithSupervisor(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := events.NewRecorder()
	sup := supervisor.New(supervisor.Options{
		Spawner: process.NewLauncher(writeWorker(t, "echo ready >&2\nexec sleep 30"), logger),
		Sink:    rec,
		Logger:  logger,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sup.Shutdown(ctx)
	})
	api := newTestAPI(t, sup)

	resp := api.Post("/api/relay", authHeader, validBody())
	if resp.Code != http.StatusAccepted {
		t.Fatalf("start status = %d: %s", resp.Code, resp.Body.String())
	}
	started := decodeSession(t, resp.Body)
	if started.PID == 0 {
		t.Error("expected worker pid")
	}

	if resp := api.Post("/api/relay", authHeader, validBody()); resp.Code != http.StatusConflict {
		t.Fatalf("second start status = %d, want 409", resp.Code)
	}

	if resp := api.Delete("/api/relay", authHeader); resp.Code != http.StatusNoContent {
		t.Fatalf("stop status = %d, want 204", resp.Code)
	}
	if !rec.WaitFor(events.KindExited, 1, 5*time.Second) {
		t.Fatal("timeout waiting for exited event")
	}
	if resp := api.Delete("/api/relay", authHeader); resp.Code != http.StatusNoContent {
		t.Fatalf("repeated stop status = %d, want 204", resp.Code)
	}

	final := decodeSession(t, api.Get("/api/relay", authHeader).Body)
	if final.SessionID != started.SessionID || final.State != "exited" {
		t.Errorf("final session = %+v", final)
	}
	if rec.Count(events.KindExited) != 1 {
		t.Errorf("exited events = %d, want 1", rec.Count(events.KindExited))
	}
}
