package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/relaynode/internal/events"
	"github.com/smazurov/relaynode/internal/supervisor"
)

type sseEvent struct {
	name string
	id   string
	data string
}

// readEvents parses the SSE stream into events until the body closes.
func readEvents(t *testing.T, resp *http.Response) <-chan sseEvent {
	t.Helper()
	out := make(chan sseEvent, 16)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(resp.Body)
		var cur sseEvent
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case line == "":
				if cur.data != "" {
					out <- cur
				}
				cur = sseEvent{}
			case strings.HasPrefix(line, "event: "):
				cur.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "id: "):
				cur.id = strings.TrimPrefix(line, "id: ")
			case strings.HasPrefix(line, "data: "):
				cur.data = strings.TrimPrefix(line, "data: ")
			}
		}
	}()
	return out
}

func nextEvent(t *testing.T, ch <-chan sseEvent) sseEvent {
	t.Helper()
	select {
	case e, ok := <-ch:
		if !ok {
			t.Fatal("stream closed")
		}
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for SSE event")
	}
	return sseEvent{}
}

func openStream(t *testing.T, query string) (*events.Bus, <-chan sseEvent) {
	t.Helper()
	bus := events.New()
	server := NewServer(&Options{
		AuthUsername: "test",
		AuthPassword: "test",
		Relay:        &stubRelay{info: supervisor.SessionInfo{ID: "s1", State: supervisor.StateRunning}},
		EventBus:     bus,
	})
	ts := httptest.NewServer(server.GetMux())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/relay/events?auth=dGVzdDp0ZXN0"+query, http.NoBody)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connecting to event stream: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("Content-Type = %q", ct)
	}
	return bus, readEvents(t, resp)
}

func TestRelayEventsStream(t *testing.T) {
	bus, stream := openStream(t, "")

	status := nextEvent(t, stream)
	if status.name != "status" {
		t.Fatalf("first event = %q, want status", status.name)
	}
	if !strings.Contains(status.data, `"session_id":"s1"`) || !strings.Contains(status.data, `"state":"running"`) {
		t.Errorf("status data = %s", status.data)
	}

	bus.Emit(events.RelayEvent{Kind: events.KindLog, SessionID: "s1", Seq: 2, Timestamp: time.Now(), Text: "frame=10 fps=25", Dropped: 1})
	code := 0
	bus.Emit(events.RelayEvent{Kind: events.KindExited, SessionID: "s1", Seq: 3, Timestamp: time.Now(), Code: &code})

	logEvent := nextEvent(t, stream)
	if logEvent.name != "log" || logEvent.id != "2" {
		t.Fatalf("got event %q id %q, want log id 2", logEvent.name, logEvent.id)
	}
	var msg events.LogMessage
	if err := json.Unmarshal([]byte(logEvent.data), &msg); err != nil {
		t.Fatalf("decoding log event: %v", err)
	}
	if msg.Text != "frame=10 fps=25" || msg.Dropped != 1 || msg.SessionID != "s1" {
		t.Errorf("log message = %+v", msg)
	}

	exited := nextEvent(t, stream)
	if exited.name != "exited" || !strings.Contains(exited.data, `"code":0`) {
		t.Errorf("exited event = %+v", exited)
	}
}

func TestRelayEventsSessionFilter(t *testing.T) {
	bus, stream := openStream(t, "&session_id=wanted")
	nextEvent(t, stream) // status

	bus.Emit(events.RelayEvent{Kind: events.KindLog, SessionID: "other", Seq: 1, Text: "skip me"})
	bus.Emit(events.RelayEvent{Kind: events.KindLog, SessionID: "wanted", Seq: 1, Text: "keep me"})

	e := nextEvent(t, stream)
	if !strings.Contains(e.data, "keep me") {
		t.Errorf("expected filtered stream to deliver only wanted session, got %s", e.data)
	}
}

func TestRelayEventsRequiresAuth(t *testing.T) {
	server := NewServer(&Options{
		AuthUsername: "test",
		AuthPassword: "test",
		Relay:        &stubRelay{},
		EventBus:     events.New(),
	})
	rec := httptest.NewRecorder()
	server.GetMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/relay/events", http.NoBody))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate header")
	}
}

func TestMetricsRoute(t *testing.T) {
	server := NewServer(&Options{
		Relay:    &stubRelay{},
		EventBus: events.New(),
		PrometheusHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("relaynode_relay_running 0\n"))
		}),
	})
	rec := httptest.NewRecorder()
	server.GetMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "relaynode_relay_running") {
		t.Errorf("metrics route returned %d: %s", rec.Code, rec.Body.String())
	}
}
