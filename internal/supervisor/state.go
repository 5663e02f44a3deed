package supervisor

import "time"

// State represents the lifecycle state of a supervision session.
type State string

// Session states.
const (
	StateIdle     State = "idle"     // No session yet
	StateSpawning State = "spawning" // Worker being created
	StateRunning  State = "running"  // Worker alive, output relayed
	StateStopping State = "stopping" // Termination requested
	StateExited   State = "exited"   // Worker reaped, terminal
	StateFailed   State = "failed"   // Spawn failed, terminal
)

// Active reports whether a session in this state blocks a new launch.
func (s State) Active() bool {
	return s == StateSpawning || s == StateRunning || s == StateStopping
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateExited || s == StateFailed
}

// SessionInfo is a snapshot of a supervision session.
type SessionInfo struct {
	ID           string
	State        State
	Source       string
	Destinations []string
	Args         []string
	PID          int
	StartedAt    time.Time
	EndedAt      time.Time
	ExitCode     *int
	Signal       string
	Reason       string
	Lines        uint64
	Dropped      uint64
}
