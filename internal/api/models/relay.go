package models

import "time"

// Relay request models. Fields are optional in the schema so that missing
// values reach request validation and are reported as 400.
type RelayRequestData struct {
	Source       string   `json:"source,omitempty" example:"srt://encoder:9000?mode=caller" doc:"Input endpoint URL"`
	Destinations []string `json:"destinations,omitempty" example:"[\"rtmp://a.example/live/key\"]" doc:"Output endpoint URLs, in order"`
}

type RelayRequest struct {
	Body RelayRequestData
}

// ProgressData is the latest ffmpeg stats line of the running session.
type ProgressData struct {
	Frame       int64   `json:"frame" example:"1200" doc:"Frames processed"`
	FPS         float64 `json:"fps" example:"30" doc:"Current frames per second"`
	BitrateKbps float64 `json:"bitrate_kbps" example:"2500.5" doc:"Output bitrate in kbit/s"`
	Speed       float64 `json:"speed" example:"1.01" doc:"Processing speed multiplier"`
	OutTime     string  `json:"out_time,omitempty" example:"00:00:40.00" doc:"Output timestamp"`
}

// SessionData describes the current or most recent relay session.
type SessionData struct {
	SessionID    string        `json:"session_id,omitempty" example:"3f1c2a7e-8d4b-4c55-9a0e-2b6f1d7c9e11" doc:"Supervision session identifier"`
	State        string        `json:"state" enum:"idle,spawning,running,stopping,exited,failed" example:"running" doc:"Session state"`
	Source       string        `json:"source,omitempty" example:"srt://encoder:9000" doc:"Input endpoint"`
	Destinations []string      `json:"destinations,omitempty" doc:"Output endpoints"`
	Command      string        `json:"command,omitempty" example:"ffmpeg -i srt://encoder:9000 -c copy -f flv rtmp://a.example/live/key" doc:"Worker command line"`
	PID          int           `json:"pid,omitempty" example:"4242" doc:"Worker process id"`
	StartedAt    *time.Time    `json:"started_at,omitempty" doc:"When the session was launched"`
	EndedAt      *time.Time    `json:"ended_at,omitempty" doc:"When the session reached a terminal state"`
	ExitCode     *int          `json:"exit_code,omitempty" example:"0" doc:"Worker exit code"`
	Signal       string        `json:"signal,omitempty" example:"interrupt" doc:"Signal that terminated the worker"`
	Reason       string        `json:"reason,omitempty" example:"executable not found" doc:"Spawn failure reason"`
	Lines        uint64        `json:"lines" example:"120" doc:"Diagnostic lines delivered"`
	Dropped      uint64        `json:"dropped" example:"0" doc:"Diagnostic lines dropped under backpressure"`
	Progress     *ProgressData `json:"progress,omitempty" doc:"Latest ffmpeg progress"`
}

type SessionResponse struct {
	Body SessionData
}

// RelayEventsInput selects the events streamed to one SSE client.
type RelayEventsInput struct {
	SessionID string `query:"session_id" doc:"Only stream events of this session"`
}
