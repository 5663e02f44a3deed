package supervisor

import (
	"errors"

	"github.com/smazurov/relaynode/internal/ffmpeg"
)

// Errors returned by the supervisor. Spawn failures are *process.SpawnError.
var (
	// ErrInvalidRequest is returned before any process is touched.
	ErrInvalidRequest = ffmpeg.ErrInvalidRequest
	// ErrAlreadyRunning guards against a second concurrent session.
	ErrAlreadyRunning = errors.New("relay already running")
	// ErrNotRunning is returned by Terminate when there is no active session.
	ErrNotRunning = errors.New("relay not running")
)
