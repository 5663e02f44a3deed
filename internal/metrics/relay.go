// Package metrics provides Prometheus metrics for relay sessions and ffmpeg progress.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/smazurov/relaynode/internal/events"
	"github.com/smazurov/relaynode/internal/ffmpeg"
)

// Exit outcomes used as the "outcome" label.
const (
	OutcomeSuccess     = "success"
	OutcomeError       = "error"
	OutcomeSignaled    = "signaled"
	OutcomeSpawnFailed = "spawn_failed"
)

var (
	relaySessions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relaynode",
		Subsystem: "relay",
		Name:      "sessions_total",
		Help:      "Relay sessions whose worker was started",
	})

	relayExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relaynode",
		Subsystem: "relay",
		Name:      "exits_total",
		Help:      "Relay sessions that ended, by outcome",
	}, []string{"outcome"})

	relayRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "relaynode",
		Subsystem: "relay",
		Name:      "running",
		Help:      "1 while a relay worker is running",
	})

	relayLines = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relaynode",
		Subsystem: "relay",
		Name:      "log_lines_total",
		Help:      "Worker diagnostic lines delivered",
	})

	relayDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relaynode",
		Subsystem: "relay",
		Name:      "log_lines_dropped_total",
		Help:      "Worker diagnostic lines dropped under backpressure",
	})

	ffmpegFPS = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "relaynode",
		Subsystem: "ffmpeg",
		Name:      "fps",
		Help:      "Current ffmpeg FPS reported by the relay worker",
	})

	ffmpegSpeed = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "relaynode",
		Subsystem: "ffmpeg",
		Name:      "processing_speed",
		Help:      "ffmpeg processing speed multiplier",
	})

	ffmpegBitrate = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "relaynode",
		Subsystem: "ffmpeg",
		Name:      "bitrate_kbps",
		Help:      "ffmpeg output bitrate in kbit/s",
	})

	ffmpegFrames = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "relaynode",
		Subsystem: "ffmpeg",
		Name:      "frames",
		Help:      "Frames processed by the current worker",
	})

	// Local cache for API status access.
	progressCache   *ffmpeg.Progress
	progressCacheMu sync.RWMutex
)

// Sink updates relay metrics from session events.
type Sink struct{}

// NewSink returns a metrics sink.
func NewSink() *Sink {
	return &Sink{}
}

// Emit implements events.Sink.
func (s *Sink) Emit(e events.RelayEvent) {
	switch e.Kind {
	case events.KindStarted:
		relaySessions.Inc()
		relayRunning.Set(1)
		ResetProgress()
	case events.KindLog:
		relayLines.Inc()
		if e.Dropped > 0 {
			relayDropped.Add(float64(e.Dropped))
		}
		if p, ok := ffmpeg.ParseProgress(e.Text); ok {
			SetProgress(p)
		}
	case events.KindExited:
		relayRunning.Set(0)
		relayExits.WithLabelValues(exitOutcome(e)).Inc()
	case events.KindSpawnFailed:
		relayRunning.Set(0)
		relayExits.WithLabelValues(OutcomeSpawnFailed).Inc()
	}
}

func exitOutcome(e events.RelayEvent) string {
	switch {
	case e.Code == nil:
		return OutcomeSignaled
	case *e.Code == 0:
		return OutcomeSuccess
	default:
		return OutcomeError
	}
}

// SetProgress records the latest ffmpeg stats line.
func SetProgress(p ffmpeg.Progress) {
	ffmpegFPS.Set(p.FPS)
	ffmpegSpeed.Set(p.Speed)
	ffmpegBitrate.Set(p.BitrateKbps)
	ffmpegFrames.Set(float64(p.Frame))

	progressCacheMu.Lock()
	progressCache = &p
	progressCacheMu.Unlock()
}

// ResetProgress clears ffmpeg progress gauges.
func ResetProgress() {
	ffmpegFPS.Set(0)
	ffmpegSpeed.Set(0)
	ffmpegBitrate.Set(0)
	ffmpegFrames.Set(0)

	progressCacheMu.Lock()
	progressCache = nil
	progressCacheMu.Unlock()
}

// GetProgress returns the last ffmpeg progress seen for the current session.
func GetProgress() *ffmpeg.Progress {
	progressCacheMu.RLock()
	defer progressCacheMu.RUnlock()
	if progressCache == nil {
		return nil
	}
	dup := *progressCache
	return &dup
}
