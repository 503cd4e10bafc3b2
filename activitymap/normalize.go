package activitymap

import (
	"strings"
	"time"

	"github.com/google/uuid"

	provisioning "github.com/goliatone/go-provisioning"
)

const (
	// MetadataKeyActorType stores the actor type derived from provisioning.ActorRef.Type.
	MetadataKeyActorType = "actor_type"
	// MetadataKeyRole stores the admin role of the affected account.
	MetadataKeyRole = "admin_role"
	// MetadataKeyScopeID stores the institution, region, area or provider id.
	MetadataKeyScopeID = "scope_id"
	// MetadataKeyOperationID correlates the record with change log rows.
	MetadataKeyOperationID = "operation_id"
)

const (
	defaultChannel    = "provisioning"
	defaultObjectType = "admin"
	defaultActorID    = "system"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	objectType    string
	actorFallback string
	roleAsObject  bool
}

// Normalize converts a provisioning.ActivityEvent into the generic shape.
func Normalize(event provisioning.ActivityEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	actorID := firstNonEmpty(
		strings.TrimSpace(event.Actor.ID),
		strings.TrimSpace(options.actorFallback),
	)

	objectType := strings.TrimSpace(options.objectType)
	if options.roleAsObject && event.Role != "" {
		objectType = event.Role.String()
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		ObjectType: objectType,
		ObjectID:   strings.TrimSpace(event.UserID),
		Channel:    strings.TrimSpace(options.channel),
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt,
	}
}

// WithDefaultChannel sets the default channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the default object type for normalized records.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithRoleAsObjectType uses the admin role as object type, e.g. "employee".
func WithRoleAsObjectType() Option {
	return func(opts *normalizeOptions) {
		opts.roleAsObject = true
	}
}

// WithActorFallback sets the actor id used when the event has none.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
	}
}

func normalizeMetadata(event provisioning.ActivityEvent) map[string]any {
	metadata := cloneMap(event.Metadata)

	set := func(key string, value string, overwrite bool) {
		if value == "" {
			return
		}
		if metadata == nil {
			metadata = map[string]any{}
		}
		if _, exists := metadata[key]; exists && !overwrite {
			return
		}
		metadata[key] = value
	}

	set(MetadataKeyActorType, strings.TrimSpace(event.Actor.Type), false)
	set(MetadataKeyRole, event.Role.String(), true)
	set(MetadataKeyScopeID, strings.TrimSpace(event.ScopeID), true)
	if event.OperationID != uuid.Nil {
		set(MetadataKeyOperationID, event.OperationID.String(), true)
	}

	return metadata
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
