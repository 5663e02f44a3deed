// Package supervisor owns relay worker sessions.
//
// A Supervisor runs at most one session at a time. Launch validates the
// request, builds the worker arguments, spawns the worker and attaches a log
// relay to its diagnostic stream. Events reach the configured Sink in the
// order started, log*, then exactly one terminal event (exited or
// spawn_failed). Terminate is idempotent: it sends SIGINT, then SIGKILL to
// the worker's process group once the grace period runs out.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/smazurov/relaynode/internal/events"
	"github.com/smazurov/relaynode/internal/ffmpeg"
	"github.com/smazurov/relaynode/internal/process"
	"github.com/smazurov/relaynode/internal/relay"
)

// Spawner starts worker processes. *process.Launcher is the production implementation.
type Spawner interface {
	Launch(args []string) (*process.Handle, error)
}

// Options configures a Supervisor.
type Options struct {
	// Spawner starts the worker (required).
	Spawner Spawner

	// Sink receives session events. If nil, events are discarded.
	Sink events.Sink

	// GracePeriod is how long a worker gets to exit after SIGINT before SIGKILL.
	GracePeriod time.Duration

	// KillTimeout bounds the wait after SIGKILL.
	KillTimeout time.Duration

	// DrainTimeout bounds how long the diagnostic stream may stay open after
	// the worker was reaped (e.g. held by a grandchild).
	DrainTimeout time.Duration

	// Relay configures the log relay queue.
	Relay relay.Options

	// Logger for supervisor operations. If nil, uses slog.Default().
	Logger *slog.Logger
}

// Supervisor manages one relay worker at a time.
type Supervisor struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	current *session
}

// session tracks one supervised run of the worker.
type session struct {
	id     string
	req    ffmpeg.Request
	args   []string
	logger *slog.Logger

	// guarded by Supervisor.mu
	state         State
	pid           int
	startedAt     time.Time
	endedAt       time.Time
	status        process.Status
	reason        string
	stopRequested bool

	// set once under Supervisor.mu when the spawn succeeds
	handle   *process.Handle
	relay    *relay.Relay
	seq      atomic.Uint64
	stopOnce sync.Once
	done     chan struct{}
}

// New creates a supervisor.
func New(opts Options) *Supervisor {
	if opts.Spawner == nil {
		panic("supervisor.Options with Spawner is required")
	}
	if opts.Sink == nil {
		opts.Sink = events.SinkFunc(func(events.RelayEvent) {})
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 5 * time.Second
	}
	if opts.KillTimeout <= 0 {
		opts.KillTimeout = 5 * time.Second
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 2 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Supervisor{
		opts:   opts,
		logger: logger,
	}
}

// Launch starts a new session for req. It returns once the worker has been
// created (or failed to be); it does not wait for the worker to finish.
func (s *Supervisor) Launch(ctx context.Context, req ffmpeg.Request) (SessionInfo, error) {
	if err := ctx.Err(); err != nil {
		return SessionInfo{}, err
	}

	args, err := ffmpeg.BuildRelayArgs(req)
	if err != nil {
		return SessionInfo{}, err
	}

	s.mu.Lock()
	if s.current != nil && s.current.state.Active() {
		s.mu.Unlock()
		return SessionInfo{}, ErrAlreadyRunning
	}
	sess := &session{
		id:        uuid.NewString(),
		req:       copyRequest(req),
		args:      args,
		state:     StateSpawning,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	sess.logger = s.logger.With("session_id", sess.id)
	s.current = sess
	s.mu.Unlock()

	sess.logger.Info("Launching relay", "source", req.Source, "destinations", len(req.Destinations))

	handle, err := s.opts.Spawner.Launch(args)
	if err != nil {
		reason := err.Error()
		var spawnErr *process.SpawnError
		if errors.As(err, &spawnErr) {
			reason = spawnErr.Reason
		}

		s.mu.Lock()
		sess.state = StateFailed
		sess.reason = reason
		sess.endedAt = time.Now()
		s.mu.Unlock()

		sess.logger.Error("Relay spawn failed", "reason", reason, "error", err)
		s.emit(sess, events.RelayEvent{Kind: events.KindSpawnFailed, Reason: reason})
		close(sess.done)
		return s.snapshot(sess), err
	}

	rl := relay.New(handle.Diagnostics(), func(l relay.Line) {
		s.emit(sess, events.RelayEvent{Kind: events.KindLog, Text: l.Text, Dropped: l.Dropped})
	}, s.opts.Relay, sess.logger)

	s.mu.Lock()
	sess.handle = handle
	sess.relay = rl
	sess.pid = handle.PID()
	stopRequested := sess.stopRequested
	if stopRequested {
		sess.state = StateStopping
	} else {
		sess.state = StateRunning
	}
	s.mu.Unlock()

	// started goes out before the relay reads a single byte
	s.emit(sess, events.RelayEvent{Kind: events.KindStarted})
	rl.Run()

	go s.track(sess)

	if stopRequested {
		s.stop(sess)
	}

	return s.snapshot(sess), nil
}

// Terminate requests the active session to stop. Calling it again while the
// worker is stopping has no further effect. The terminal event follows once
// the worker has actually exited.
func (s *Supervisor) Terminate() error {
	s.mu.Lock()
	sess := s.current
	if sess == nil || !sess.state.Active() {
		s.mu.Unlock()
		return ErrNotRunning
	}
	if sess.state == StateSpawning {
		// Launch picks this up once the handle exists.
		sess.stopRequested = true
		s.mu.Unlock()
		return nil
	}
	if sess.state == StateRunning {
		sess.state = StateStopping
	}
	s.mu.Unlock()

	s.stop(sess)
	return nil
}

// Status returns a snapshot of the current or most recent session.
func (s *Supervisor) Status() SessionInfo {
	s.mu.Lock()
	sess := s.current
	s.mu.Unlock()

	if sess == nil {
		return SessionInfo{State: StateIdle}
	}
	return s.snapshot(sess)
}

// Wait blocks until the current session has emitted its terminal event.
func (s *Supervisor) Wait(ctx context.Context) (SessionInfo, error) {
	s.mu.Lock()
	sess := s.current
	s.mu.Unlock()

	if sess == nil {
		return SessionInfo{State: StateIdle}, nil
	}

	select {
	case <-sess.done:
		return s.snapshot(sess), nil
	case <-ctx.Done():
		return s.snapshot(sess), ctx.Err()
	}
}

// Shutdown terminates the active session, if any, and waits for it to end.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	if err := s.Terminate(); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	_, err := s.Wait(ctx)
	return err
}

// stop runs the termination sequence once per session.
func (s *Supervisor) stop(sess *session) {
	sess.stopOnce.Do(func() {
		go s.terminate(sess)
	})
}

// terminate sends SIGINT, escalating to SIGKILL after the grace period.
func (s *Supervisor) terminate(sess *session) {
	h := sess.handle
	sess.logger.Info("Stopping relay", "grace_period", s.opts.GracePeriod)

	if err := h.Signal(syscall.SIGINT); err != nil {
		sess.logger.Warn("Failed to send SIGINT", "error", err)
	}

	select {
	case <-h.Done():
		return
	case <-time.After(s.opts.GracePeriod):
		sess.logger.Warn("Graceful shutdown timeout, forcing kill", "timeout", s.opts.GracePeriod)
	}

	if err := h.Kill(); err != nil {
		sess.logger.Error("Failed to kill worker", "error", err)
	}

	select {
	case <-h.Done():
	case <-time.After(s.opts.KillTimeout):
		sess.logger.Error("Worker did not exit after kill signal")
	}
}

// track waits for the worker to be reaped and its output drained, then emits
// the terminal event.
func (s *Supervisor) track(sess *session) {
	status := sess.handle.ExitStatus()

	forced := false
	select {
	case <-sess.relay.Done():
	case <-time.After(s.opts.DrainTimeout):
		sess.logger.Warn("Diagnostic stream still open after worker exit, closing", "timeout", s.opts.DrainTimeout)
		forced = true
		_ = sess.handle.Close()
		<-sess.relay.Done()
	}
	_ = sess.handle.Close()

	if err := sess.relay.Err(); err != nil && !forced {
		sess.logger.Warn("Diagnostic stream ended with error", "error", err)
	}

	s.mu.Lock()
	sess.state = StateExited
	sess.status = status
	sess.endedAt = time.Now()
	s.mu.Unlock()

	s.emit(sess, events.RelayEvent{Kind: events.KindExited, Code: status.Code, Signal: status.Signal})
	close(sess.done)

	sess.logger.Info("Relay session ended",
		"duration", sess.endedAt.Sub(sess.startedAt).Round(time.Millisecond),
		"lines", sess.relay.Delivered(),
		"dropped", sess.relay.Dropped())
}

func (s *Supervisor) emit(sess *session, e events.RelayEvent) {
	e.SessionID = sess.id
	e.Seq = sess.seq.Add(1)
	e.Timestamp = time.Now()
	s.opts.Sink.Emit(e)
}

func (s *Supervisor) snapshot(sess *session) SessionInfo {
	s.mu.Lock()
	info := SessionInfo{
		ID:           sess.id,
		State:        sess.state,
		Source:       sess.req.Source,
		Destinations: append([]string(nil), sess.req.Destinations...),
		Args:         append([]string(nil), sess.args...),
		PID:          sess.pid,
		StartedAt:    sess.startedAt,
		EndedAt:      sess.endedAt,
		ExitCode:     sess.status.Code,
		Signal:       sess.status.Signal,
		Reason:       sess.reason,
	}
	rl := sess.relay
	s.mu.Unlock()

	if rl != nil {
		info.Lines = rl.Delivered()
		info.Dropped = rl.Dropped()
	}
	return info
}

func copyRequest(req ffmpeg.Request) ffmpeg.Request {
	return ffmpeg.Request{
		Source:       req.Source,
		Destinations: append([]string(nil), req.Destinations...),
	}
}
