package api

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/relaynode/internal/process"
	"github.com/smazurov/relaynode/internal/supervisor"
)

var errMissingColon = errors.New("credentials must be user:password")

// mapRelayError maps supervisor errors to HTTP errors.
func mapRelayError(err error) error {
	var spawnErr *process.SpawnError
	switch {
	case errors.Is(err, supervisor.ErrInvalidRequest):
		return huma.Error400BadRequest(err.Error(), err)
	case errors.Is(err, supervisor.ErrAlreadyRunning):
		return huma.Error409Conflict("a relay session is already running", err)
	case errors.As(err, &spawnErr):
		return huma.Error502BadGateway("relay worker failed to start: "+spawnErr.Reason, err)
	default:
		return huma.Error500InternalServerError("internal server error", err)
	}
}
