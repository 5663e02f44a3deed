package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/relaynode/internal/api/models"
	"github.com/smazurov/relaynode/internal/ffmpeg"
	"github.com/smazurov/relaynode/internal/metrics"
	"github.com/smazurov/relaynode/internal/supervisor"
)

// registerRelayRoutes registers the relay session endpoints
func (s *Server) registerRelayRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "start-relay",
		Method:        http.MethodPost,
		Path:          "/api/relay",
		Summary:       "Start Relay",
		Description:   "Launch an ffmpeg worker that copies the source to every destination",
		Tags:          []string{"relay"},
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{400, 401, 409, 502},
		Security:      withAuth(),
	}, func(ctx context.Context, input *models.RelayRequest) (*models.SessionResponse, error) {
		info, err := s.relay.Launch(ctx, ffmpeg.Request{
			Source:       input.Body.Source,
			Destinations: input.Body.Destinations,
		})
		if err != nil {
			return nil, mapRelayError(err)
		}
		return &models.SessionResponse{Body: s.sessionToAPI(info)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "stop-relay",
		Method:        http.MethodDelete,
		Path:          "/api/relay",
		Summary:       "Stop Relay",
		Description:   "Request termination of the running relay. Repeated calls are no-ops.",
		Tags:          []string{"relay"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{401},
		Security:      withAuth(),
	}, func(_ context.Context, _ *struct{}) (*struct{}, error) {
		if err := s.relay.Terminate(); err != nil && !errors.Is(err, supervisor.ErrNotRunning) {
			return nil, mapRelayError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-relay",
		Method:      http.MethodGet,
		Path:        "/api/relay",
		Summary:     "Relay Status",
		Description: "Get the current or most recent relay session",
		Tags:        []string{"relay"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.SessionResponse, error) {
		return &models.SessionResponse{Body: s.sessionToAPI(s.relay.Status())}, nil
	})
}

// sessionToAPI converts a supervisor snapshot to API session data
func (s *Server) sessionToAPI(info supervisor.SessionInfo) models.SessionData {
	data := models.SessionData{
		SessionID:    info.ID,
		State:        string(info.State),
		Source:       info.Source,
		Destinations: info.Destinations,
		PID:          info.PID,
		ExitCode:     info.ExitCode,
		Signal:       info.Signal,
		Reason:       info.Reason,
		Lines:        info.Lines,
		Dropped:      info.Dropped,
	}
	if len(info.Args) > 0 {
		data.Command = ffmpeg.CommandLine(s.options.WorkerBinary, info.Args)
	}
	if !info.StartedAt.IsZero() {
		started := info.StartedAt
		data.StartedAt = &started
	}
	if !info.EndedAt.IsZero() {
		ended := info.EndedAt
		data.EndedAt = &ended
	}
	if info.State == supervisor.StateRunning {
		if p := metrics.GetProgress(); p != nil {
			data.Progress = &models.ProgressData{
				Frame:       p.Frame,
				FPS:         p.FPS,
				BitrateKbps: p.BitrateKbps,
				Speed:       p.Speed,
				OutTime:     p.OutTime,
			}
		}
	}
	return data
}
