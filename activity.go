package accounts

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventUserSignup            ActivityEventType = "user.signup"
	ActivityEventLoginSuccess          ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure          ActivityEventType = "auth.login.failure"
	ActivityEventLoginDenied           ActivityEventType = "auth.login.denied"
	ActivityEventLogout                ActivityEventType = "auth.logout"
	ActivityEventOrganizationCreated   ActivityEventType = "organization.created"
	ActivityEventOrganizationDeleted   ActivityEventType = "organization.deleted"
	ActivityEventMemberAdded           ActivityEventType = "organization.member.added"
	ActivityEventMemberRemoved         ActivityEventType = "organization.member.removed"
	ActivityEventProjectDeleted        ActivityEventType = "project.deleted"
	ActivityEventSAMLConfigDeleted     ActivityEventType = "organization.saml.deleted"
	ActivityEventAvatarUpdated         ActivityEventType = "user.avatar.updated"
	ActivityEventActiveOrganizationSet ActivityEventType = "user.active_organization.set"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType      ActivityEventType `json:"event_type" msgpack:"event_type"`
	ActorID        string            `json:"actor_id,omitempty" msgpack:"actor_id"`
	UserID         string            `json:"user_id,omitempty" msgpack:"user_id"`
	OrganizationID string            `json:"organization_id,omitempty" msgpack:"organization_id"`
	ObjectID       string            `json:"object_id,omitempty" msgpack:"object_id"`
	Metadata       map[string]any    `json:"metadata,omitempty" msgpack:"metadata"`
	OccurredAt     time.Time         `json:"occurred_at" msgpack:"occurred_at"`
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

// recordActivity stamps the event time and logs sink failures without
// failing the caller
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil && logger != nil {
		logger.Warn("failed to record activity", "event", event.EventType, "error", err)
	}
}
