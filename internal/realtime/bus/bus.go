package bus

import (
	"context"

	"github.com/yungbote/craftflow-backend/internal/workflow"
)

// Bus relays progress events between API instances so an event reaches the
// instance holding the subscriber's stream.
type Bus interface {
	Publish(ctx context.Context, ev workflow.ProgressEvent) error
	StartForwarder(ctx context.Context, onEvent func(ev workflow.ProgressEvent)) error
	Close() error
}
