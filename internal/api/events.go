package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/devnode/internal/api/models"
	"github.com/smazurov/devnode/internal/events"
)

// EventStreamRequest selects which project's events a client receives.
type EventStreamRequest struct {
	ProjectID string `query:"project_id" doc:"Only forward events of this project"`
}

// eventBuffer bounds each connection's backlog. Events are dropped for slow clients.
const eventBuffer = 256

// eventProject returns the project an event belongs to.
func eventProject(ev any) string {
	switch e := ev.(type) {
	case events.StepOutputEvent:
		return e.ProjectID
	case events.ServerOutputEvent:
		return e.ProjectID
	case events.StepStatusEvent:
		return e.ProjectID
	case events.PipelineStateEvent:
		return e.ProjectID
	case events.ServerReadyEvent:
		return e.ProjectID
	case events.ServerExitedEvent:
		return e.ProjectID
	default:
		return ""
	}
}

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time step output, server output, step status, state transitions and server lifecycle",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"connected":      models.ConnectedEvent{},
		"step-output":    events.StepOutputEvent{},
		"server-output":  events.ServerOutputEvent{},
		"step-status":    events.StepStatusEvent{},
		"pipeline-state": events.PipelineStateEvent{},
		"server-ready":   events.ServerReadyEvent{},
		"server-exited":  events.ServerExitedEvent{},
	}, func(ctx context.Context, input *EventStreamRequest, send sse.Sender) {
		eventCh := make(chan any, eventBuffer)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.StepOutputEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ServerOutputEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.StepStatusEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.PipelineStateEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ServerReadyEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ServerExitedEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		if err := send.Data(models.ConnectedEvent{
			Message:   "SSE connection established",
			Timestamp: time.Now().Format(time.RFC3339),
		}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-eventCh:
				if input.ProjectID != "" && eventProject(ev) != input.ProjectID {
					continue
				}
				if err := send.Data(ev); err != nil {
					return
				}
			}
		}
	})
}
