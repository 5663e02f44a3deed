package events

import (
	"log/slog"

	"github.com/smazurov/relaynode/internal/ffmpeg"
)

// Sink receives relay events. Emit is called from one goroutine at a time per
// session, in session order, and should return promptly.
type Sink interface {
	Emit(e RelayEvent)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(e RelayEvent)

// Emit implements Sink.
func (f SinkFunc) Emit(e RelayEvent) { f(e) }

// MultiSink fans out events to several sinks in order.
type MultiSink []Sink

// NewMultiSink builds a sink from the non-nil sinks.
func NewMultiSink(sinks ...Sink) MultiSink {
	out := make(MultiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Emit implements Sink.
func (m MultiSink) Emit(e RelayEvent) {
	for _, s := range m {
		s.Emit(e)
	}
}

// LogSink writes relay events to a logger. Worker lines are logged at the
// level ffmpeg reports for them.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that logs to logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit implements Sink.
func (s *LogSink) Emit(e RelayEvent) {
	logger := s.logger.With("session_id", e.SessionID)

	switch e.Kind {
	case KindStarted:
		logger.Info("Relay started")
	case KindLog:
		if e.Dropped > 0 {
			logger.Warn("Worker output dropped", "lines", e.Dropped)
		}
		level, msg := ffmpeg.ParseLogLevel(e.Text)
		switch level {
		case "panic", "fatal", "error":
			logger.Error(msg)
		case "warning":
			logger.Warn(msg)
		case "verbose", "debug", "trace":
			logger.Debug(msg)
		default:
			logger.Info(msg)
		}
	case KindExited:
		if e.Code != nil {
			logger.Info("Relay exited", "exit_code", *e.Code)
		} else {
			logger.Info("Relay exited", "signal", e.Signal)
		}
	case KindSpawnFailed:
		logger.Error("Relay failed to start", "reason", e.Reason)
	}
}
