package realtime

import (
	"context"

	"github.com/yungbote/craftflow-backend/internal/platform/logger"
	"github.com/yungbote/craftflow-backend/internal/realtime/bus"
	"github.com/yungbote/craftflow-backend/internal/workflow"
)

// LocalEmitter publishes straight into an in-process bus.
type LocalEmitter struct {
	Bus *ProgressBus
}

func (e LocalEmitter) Emit(_ context.Context, ev workflow.ProgressEvent) {
	e.Bus.Publish(ev)
}

// RelayEmitter publishes through a cross-instance relay. If the relay is
// unavailable the event is delivered locally instead.
type RelayEmitter struct {
	log   *logger.Logger
	relay bus.Bus
	local *ProgressBus
}

func NewRelayEmitter(log *logger.Logger, relay bus.Bus, local *ProgressBus) *RelayEmitter {
	return &RelayEmitter{log: log.With("component", "RelayEmitter"), relay: relay, local: local}
}

func (e *RelayEmitter) Emit(ctx context.Context, ev workflow.ProgressEvent) {
	if err := e.relay.Publish(context.WithoutCancel(ctx), ev); err != nil {
		e.log.Warn("Relay publish failed; delivering locally", "job_id", ev.JobID, "event", string(ev.EventType), "error", err)
		e.local.Publish(ev)
	}
}

// StartRelay forwards relayed events into the local bus. Every instance
// receives every event, so a miss here is expected and not logged.
func StartRelay(ctx context.Context, relay bus.Bus, local *ProgressBus) error {
	return relay.StartForwarder(ctx, func(ev workflow.ProgressEvent) {
		local.publish(ev, false)
	})
}
