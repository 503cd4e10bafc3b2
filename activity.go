package provisioning

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventAdminCreated   ActivityEventType = "admin.created"
	ActivityEventAdminUpdated   ActivityEventType = "admin.updated"
	ActivityEventAdminDeleted   ActivityEventType = "admin.deleted"
	ActivityEventAdminBlocked   ActivityEventType = "admin.blocked"
	ActivityEventAdminUnblocked ActivityEventType = "admin.unblocked"
	ActivityEventAdminReinvited ActivityEventType = "admin.reinvited"
)

// ActorRef identifies who triggered an operation
type ActorRef struct {
	ID   string `json:"id"`
	Type string `json:"type,omitempty"`
}

// ActivityEvent captures audit-friendly information about a committed
// provisioning operation.
type ActivityEvent struct {
	EventType   ActivityEventType
	Actor       ActorRef
	OperationID uuid.UUID
	UserID      string
	Role        AdminRole
	ScopeID     string
	Metadata    map[string]any
	OccurredAt  time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

func activityEventFor(op OperationKind, blocked bool) ActivityEventType {
	switch op {
	case OperationCreate:
		return ActivityEventAdminCreated
	case OperationUpdate:
		return ActivityEventAdminUpdated
	case OperationDelete:
		return ActivityEventAdminDeleted
	case OperationBlock:
		if blocked {
			return ActivityEventAdminBlocked
		}
		return ActivityEventAdminUnblocked
	case OperationReinvite:
		return ActivityEventAdminReinvited
	}
	return ActivityEventType("admin." + string(op))
}
