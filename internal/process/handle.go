package process

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
)

// Status is the outcome of a reaped worker.
type Status struct {
	// Code is the exit code, nil when the worker was terminated by a signal.
	Code *int
	// Signal names the terminating signal, if any.
	Signal string
	// Err is set when the exit status could not be determined.
	Err error
}

// Handle owns a running worker. Only one goroutine should read Diagnostics.
type Handle struct {
	cmd       *exec.Cmd
	diag      *os.File
	closeOnce sync.Once
	done      chan struct{}
	status    Status
	logger    *slog.Logger
}

// PID returns the worker process id.
func (h *Handle) PID() int {
	return h.cmd.Process.Pid
}

// Diagnostics returns the read end of the worker's stderr.
func (h *Handle) Diagnostics() io.ReadCloser {
	return h.diag
}

// Done is closed once the worker has exited and been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// ExitStatus blocks until the worker has been reaped and returns its status.
func (h *Handle) ExitStatus() Status {
	<-h.done
	return h.status
}

// Signal sends sig to the worker. Signalling an exited worker is not an error.
func (h *Handle) Signal(sig os.Signal) error {
	if h.exited() {
		return nil
	}
	h.logger.Info("Sending signal to worker", "signal", sig.String())
	if err := h.cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// Kill force-kills the worker's whole process group.
func (h *Handle) Kill() error {
	if h.exited() {
		return nil
	}
	h.logger.Warn("Killing worker process group")
	if err := syscall.Kill(-h.cmd.Process.Pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		// fall back to the process itself
		if killErr := h.cmd.Process.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
			return killErr
		}
	}
	return nil
}

// Close releases the diagnostic stream. A blocked reader returns with an error.
func (h *Handle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		err = h.diag.Close()
	})
	return err
}

func (h *Handle) exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *Handle) reap() {
	err := h.cmd.Wait()
	h.status = statusFromWait(h.cmd.ProcessState, err)

	switch {
	case h.status.Signal != "":
		h.logger.Info("Worker terminated by signal", "signal", h.status.Signal)
	case h.status.Code != nil:
		h.logger.Info("Worker exited", "exit_code", *h.status.Code)
	default:
		h.logger.Error("Worker exit status unknown", "error", h.status.Err)
	}
	close(h.done)
}

// statusFromWait derives the Status from the wait result.
// ErrWaitDelay only means an output copy was cut short; the process state is still valid.
func statusFromWait(state *os.ProcessState, err error) Status {
	if state == nil {
		if err == nil {
			err = errors.New("no process state")
		}
		return Status{Err: err}
	}

	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return Status{Signal: ws.Signal().String()}
	}

	code := state.ExitCode()
	if code < 0 {
		return Status{Err: err}
	}
	return Status{Code: &code}
}
