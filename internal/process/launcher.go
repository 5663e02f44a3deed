package process

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// SpawnError reports that the worker could not be started.
// Spawn failures are configuration problems and are never retried.
type SpawnError struct {
	Binary string
	Reason string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %s: %s", e.Binary, e.Reason)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Launcher starts worker processes from a configured executable.
type Launcher struct {
	binary    string
	waitDelay time.Duration
	logger    *slog.Logger
}

// NewLauncher creates a launcher for the given executable name or path.
func NewLauncher(binary string, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{
		binary:    binary,
		waitDelay: 2 * time.Second,
		logger:    logger,
	}
}

// Binary returns the configured executable.
func (l *Launcher) Binary() string {
	return l.binary
}

// Launch starts the worker with args and returns once the OS has created the process.
// Stdin is not connected, stdout is discarded and stderr is exposed through
// Handle.Diagnostics.
func (l *Launcher) Launch(args []string) (*Handle, error) {
	path, err := exec.LookPath(l.binary)
	if err != nil {
		l.logger.Error("Worker executable not found", "binary", l.binary, "error", err)
		return nil, &SpawnError{Binary: l.binary, Reason: "executable not found", Err: err}
	}

	diagR, diagW, err := os.Pipe()
	if err != nil {
		l.logger.Error("Failed to create diagnostic pipe", "error", err)
		return nil, &SpawnError{Binary: l.binary, Reason: "failed to create diagnostic pipe", Err: err}
	}

	cmd := exec.Command(path, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = io.Discard
	cmd.Stderr = diagW
	// bounds Wait when a grandchild keeps stdout open
	cmd.WaitDelay = l.waitDelay

	if err := cmd.Start(); err != nil {
		diagR.Close()
		diagW.Close()
		reason := classifySpawnError(err)
		l.logger.Error("Failed to start worker", "binary", path, "reason", reason, "error", err)
		return nil, &SpawnError{Binary: l.binary, Reason: reason, Err: err}
	}

	// The child holds its own copy of the write end.
	diagW.Close()

	l.logger.Info("Worker started", "pid", cmd.Process.Pid, "binary", path)

	h := &Handle{
		cmd:    cmd,
		diag:   diagR,
		done:   make(chan struct{}),
		logger: l.logger.With("pid", cmd.Process.Pid),
	}
	go h.reap()

	return h, nil
}

func classifySpawnError(err error) string {
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return "executable not found"
	case errors.Is(err, os.ErrPermission):
		return "permission denied"
	case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.ENOMEM):
		return "insufficient system resources"
	default:
		return err.Error()
	}
}
