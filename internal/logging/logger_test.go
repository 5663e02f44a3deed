package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func resetState() {
	mutex.Lock()
	moduleLoggers = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	isInitialized = false
	globalConfig = Config{}
	mutex.Unlock()
}

func TestModuleLevelOverride(t *testing.T) {
	resetState()

	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"relay": "debug",
			"api":   "warn",
		},
	})

	tests := []struct {
		module    string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"relay", true, true, true},
		{"api", false, false, true},
		{"other", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			handler := GetLogger(tt.module).Handler()

			if got := handler.Enabled(context.Background(), slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("Debug enabled = %v, want %v", got, tt.wantDebug)
			}
			if got := handler.Enabled(context.Background(), slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("Info enabled = %v, want %v", got, tt.wantInfo)
			}
			if got := handler.Enabled(context.Background(), slog.LevelWarn); got != tt.wantWarn {
				t.Errorf("Warn enabled = %v, want %v", got, tt.wantWarn)
			}
		})
	}
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	resetState()

	handlerBefore := GetLogger("supervisor").Handler()

	if handlerBefore.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Logger created before Initialize should NOT have debug enabled")
	}

	Initialize(Config{
		Level:   "info",
		Format:  "text",
		Modules: map[string]string{"supervisor": "debug"},
	})

	if !handlerBefore.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("early logger should follow the module level set by Initialize")
	}
}

func TestSetLevelsAtRuntime(t *testing.T) {
	resetState()
	Initialize(Config{Level: "info", Format: "text"})

	handler := GetLogger("relay").Handler()
	if handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("relay should start at info")
	}

	SetLevels("warn", map[string]string{"relay": "debug"})
	if !handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("relay should be at debug after SetLevels")
	}
	if GetLogger("api").Handler().Enabled(context.Background(), slog.LevelInfo) {
		t.Error("api should follow the new global warn level")
	}

	SetLevels("info", nil)
	if handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("relay should drop back to info once the override is removed")
	}
}

func TestMultiHandlerDebugOutput(t *testing.T) {
	var buf bytes.Buffer

	debugHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	infoHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	multi := NewMultiHandler(debugHandler, infoHandler)
	logger := slog.New(multi).With("module", "test")

	logger.Debug("debug only message")

	output := buf.String()
	if count := strings.Count(output, "debug only message"); count != 1 {
		t.Errorf("Expected 1 debug message, got %d. Output: %s", count, output)
	}

	logger.Info("both")
	if count := strings.Count(buf.String(), "msg=both"); count != 2 {
		t.Errorf("Expected info message from both handlers, got %d", count)
	}
}

func TestJournalFields(t *testing.T) {
	r := slog.NewRecord(time.Now(), slog.LevelWarn, "Worker output dropped", 0)
	r.AddAttrs(slog.Int("lines", 3), slog.Group("worker", slog.String("level", "warning")))

	fields := journalFields(r, []slog.Attr{slog.String("session_id", "abc")}, nil)

	want := map[string]string{
		"MESSAGE":           "Worker output dropped",
		"SYSLOG_IDENTIFIER": Identifier,
		"SESSION_ID":        "abc",
		"LINES":             "3",
		"WORKER_LEVEL":      "warning",
		"PRIORITY":          "4",
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("%s = %q, want %q", k, fields[k], v)
		}
	}
}

func TestJournalHandlerFollowsLevelVar(t *testing.T) {
	lv := &slog.LevelVar{}
	lv.Set(slog.LevelWarn)
	h := NewJournalHandler(lv)

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn")
	}
	lv.Set(slog.LevelDebug)
	if !h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be enabled after lowering level")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input  string
		want   slog.Level
		wantOK bool
	}{
		{"debug", slog.LevelDebug, true},
		{"DEBUG", slog.LevelDebug, true},
		{"info", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{"warning", slog.LevelWarn, true},
		{" error ", slog.LevelError, true},
		{"invalid", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseLevel(tt.input)
			if ok != tt.wantOK || (ok && got != tt.want) {
				t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error {
	return errors.New("journal unavailable")
}

func (f failingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return failingHandler{f.Handler.WithAttrs(attrs)}
}

func TestMultiHandlerContinuesAfterFailure(t *testing.T) {
	var buf bytes.Buffer
	text := slog.NewTextHandler(&buf, nil)
	multi := NewMultiHandler(failingHandler{text}, text)

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "relay started", 0)
	err := multi.WithAttrs([]slog.Attr{slog.String("session_id", "s1")}).Handle(context.Background(), r)
	if err == nil || !strings.Contains(err.Error(), "journal unavailable") {
		t.Errorf("expected joined handler error, got %v", err)
	}
	if !strings.Contains(buf.String(), "session_id=s1") {
		t.Errorf("second handler did not receive the record: %q", buf.String())
	}
}
