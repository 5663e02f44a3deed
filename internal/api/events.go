package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/relaynode/internal/api/models"
	"github.com/smazurov/relaynode/internal/events"
)

// registerSSERoutes registers the relay event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "relay-events",
		Method:      http.MethodGet,
		Path:        "/api/relay/events",
		Summary:     "Relay Event Stream",
		Description: "Server-Sent Events for relay sessions. The stream opens with a status event; " +
			"a client that falls behind misses events and can detect the gap through seq.",
		Tags:     []string{"events"},
		Security: withAuth(),
		Errors:   []int{401},
	}, map[string]any{
		"status":                       models.SessionData{},
		string(events.KindStarted):     events.StartedMessage{},
		string(events.KindLog):         events.LogMessage{},
		string(events.KindExited):      events.ExitedMessage{},
		string(events.KindSpawnFailed): events.SpawnFailedMessage{},
	}, func(ctx context.Context, input *models.RelayEventsInput, send sse.Sender) {
		eventCh := make(chan events.RelayEvent, s.options.SSEBufferSize)
		unsub := events.SubscribeToChannel[events.RelayEvent](s.eventBus, eventCh)
		defer unsub()

		// subscribed first, so nothing after this snapshot is missed
		if err := send.Data(s.sessionToAPI(s.relay.Status())); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case e := <-eventCh:
				if input.SessionID != "" && e.SessionID != input.SessionID {
					continue
				}
				if err := send(sse.Message{ID: int(e.Seq), Data: e.Message()}); err != nil {
					return
				}
			}
		}
	})
}
