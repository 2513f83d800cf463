package discovery

import (
	"context"

	"surfacemap-mcp-server/internal/operation"
	"surfacemap-mcp-server/internal/statepath"
)

// EventType names a traversal event.
type EventType string

const (
	EventStateVisited      EventType = "state_visited"
	EventNavigationEdge    EventType = "navigation_edge"
	EventModalInteraction  EventType = "modal_interaction"
	EventOperationRecorded EventType = "operation_recorded"
	EventEntityFailed      EventType = "entity_failed"
	EventRunFailed         EventType = "run_failed"
)

// Event is emitted to listeners as traversal progresses.
type Event struct {
	Type    EventType
	Path    statepath.Path
	Target  statepath.Path
	Locator string
	Address string
	Depth   int
	Record  *operation.Record
	Err     string
}

// Listener receives traversal events. Implementations must not block for long.
type Listener interface {
	OnEvent(ctx context.Context, ev Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, ev Event)

// OnEvent implements Listener.
func (f ListenerFunc) OnEvent(ctx context.Context, ev Event) { f(ctx, ev) }
