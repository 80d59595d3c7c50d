package activitymap

import (
	"strings"
	"time"

	accounts "github.com/prophet-studio/go-accounts"
)

const (
	// MetadataKeyOrganizationID carries the organization the event happened in
	MetadataKeyOrganizationID = "organization_id"
	// MetadataKeySubjectUserID carries the affected user when it differs from the actor
	MetadataKeySubjectUserID = "subject_user_id"
)

const (
	defaultChannel    = "accounts"
	defaultObjectType = "user"
	defaultActorID    = "system"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id" msgpack:"actor_id"`
	Verb       string         `json:"verb" msgpack:"verb"`
	ObjectType string         `json:"object_type,omitempty" msgpack:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty" msgpack:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty" msgpack:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty" msgpack:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at" msgpack:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel          string
	objectType       string
	actorFallback    string
	objectIDResolver func(accounts.ActivityEvent) string
}

// Normalize converts an accounts.ActivityEvent into a generic normalized shape.
// The object type follows the event family (organization, project, user)
// unless WithDefaultObjectType forces one.
func Normalize(event accounts.ActivityEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	actorID := firstNonEmpty(
		strings.TrimSpace(event.ActorID),
		strings.TrimSpace(event.UserID),
		strings.TrimSpace(options.actorFallback),
	)

	objectType := strings.TrimSpace(options.objectType)
	if objectType == "" {
		objectType = ObjectTypeFor(event.EventType)
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		ObjectType: objectType,
		ObjectID:   resolveObjectID(event, objectType, options.objectIDResolver),
		Channel:    strings.TrimSpace(options.channel),
		Metadata:   normalizeMetadata(event, actorID),
		OccurredAt: occurredAt,
	}
}

// ObjectTypeFor derives the object type from the event type prefix
func ObjectTypeFor(eventType accounts.ActivityEventType) string {
	family, _, _ := strings.Cut(string(eventType), ".")
	switch family {
	case "organization":
		return "organization"
	case "project":
		return "project"
	default:
		return defaultObjectType
	}
}

// WithDefaultChannel sets the default channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType forces the object type for normalized records.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithObjectIDResolver overrides object-id extraction from ActivityEvent.
func WithObjectIDResolver(resolver func(accounts.ActivityEvent) string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.objectIDResolver = resolver
	}
}

// WithActorFallback sets the final actor-id fallback when actor/user ids are empty.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		actorFallback: defaultActorID,
	}
}

func resolveObjectID(event accounts.ActivityEvent, objectType string, resolver func(accounts.ActivityEvent) string) string {
	if resolver != nil {
		return strings.TrimSpace(resolver(event))
	}
	if id := strings.TrimSpace(event.ObjectID); id != "" {
		return id
	}
	if objectType == "organization" {
		return strings.TrimSpace(event.OrganizationID)
	}
	return strings.TrimSpace(event.UserID)
}

func normalizeMetadata(event accounts.ActivityEvent, actorID string) map[string]any {
	metadata := cloneMap(event.Metadata)

	if orgID := strings.TrimSpace(event.OrganizationID); orgID != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		if _, exists := metadata[MetadataKeyOrganizationID]; !exists {
			metadata[MetadataKeyOrganizationID] = orgID
		}
	}

	if userID := strings.TrimSpace(event.UserID); userID != "" && userID != actorID {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[MetadataKeySubjectUserID] = userID
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
