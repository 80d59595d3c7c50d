package activitymap_test

import (
	"testing"
	"time"

	accounts "github.com/prophet-studio/go-accounts"
	"github.com/prophet-studio/go-accounts/activitymap"
)

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := accounts.ActivityEvent{
		EventType:      accounts.ActivityEventUserSignup,
		UserID:         "user-100",
		OrganizationID: "org-1",
		Metadata: map[string]any{
			"source": "signup-form",
		},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	if out.ActorID != "user-100" {
		t.Fatalf("expected actor_id user-100, got %q", out.ActorID)
	}
	if out.Verb != string(accounts.ActivityEventUserSignup) {
		t.Fatalf("expected verb %q, got %q", accounts.ActivityEventUserSignup, out.Verb)
	}
	if out.ObjectType != "user" {
		t.Fatalf("expected object_type user, got %q", out.ObjectType)
	}
	if out.ObjectID != "user-100" {
		t.Fatalf("expected object_id user-100, got %q", out.ObjectID)
	}
	if out.Channel != "accounts" {
		t.Fatalf("expected channel accounts, got %q", out.Channel)
	}
	if !out.OccurredAt.Equal(ts) {
		t.Fatalf("expected occurred_at %v, got %v", ts, out.OccurredAt)
	}
	if out.Metadata["source"] != "signup-form" {
		t.Fatalf("expected metadata source, got %#v", out.Metadata["source"])
	}
	if out.Metadata[activitymap.MetadataKeyOrganizationID] != "org-1" {
		t.Fatalf("expected organization metadata, got %#v", out.Metadata[activitymap.MetadataKeyOrganizationID])
	}
	if _, ok := out.Metadata[activitymap.MetadataKeySubjectUserID]; ok {
		t.Fatalf("subject user should be omitted when it is the actor")
	}
	if len(event.Metadata) != 1 {
		t.Fatalf("expected source metadata to remain unchanged, got %+v", event.Metadata)
	}
}

func TestNormalizeOrganizationEvents(t *testing.T) {
	t.Parallel()

	out := activitymap.Normalize(accounts.ActivityEvent{
		EventType:      accounts.ActivityEventMemberRemoved,
		ActorID:        "admin-1",
		UserID:         "user-7",
		OrganizationID: "org-9",
	})

	if out.ObjectType != "organization" {
		t.Fatalf("expected object_type organization, got %q", out.ObjectType)
	}
	if out.ObjectID != "org-9" {
		t.Fatalf("expected object_id org-9, got %q", out.ObjectID)
	}
	if out.ActorID != "admin-1" {
		t.Fatalf("expected actor_id admin-1, got %q", out.ActorID)
	}
	if out.Metadata[activitymap.MetadataKeySubjectUserID] != "user-7" {
		t.Fatalf("expected subject user user-7, got %#v", out.Metadata[activitymap.MetadataKeySubjectUserID])
	}
	if out.OccurredAt.IsZero() {
		t.Fatalf("expected occurred_at to be set when input is zero")
	}
}

func TestNormalizeOptionOverrides(t *testing.T) {
	t.Parallel()

	event := accounts.ActivityEvent{
		EventType: accounts.ActivityEventProjectDeleted,
		UserID:    "user-200",
		ObjectID:  "project-3",
		Metadata: map[string]any{
			"reason":                               "cleanup",
			activitymap.MetadataKeyOrganizationID: "existing",
		},
		OrganizationID: "org-2",
	}

	out := activitymap.Normalize(
		event,
		activitymap.WithDefaultChannel("audit"),
		activitymap.WithDefaultObjectType("resource"),
		activitymap.WithObjectIDResolver(func(e accounts.ActivityEvent) string {
			if v, ok := e.Metadata["reason"].(string); ok {
				return v
			}
			return ""
		}),
	)

	if out.Channel != "audit" {
		t.Fatalf("expected channel audit, got %q", out.Channel)
	}
	if out.ObjectType != "resource" {
		t.Fatalf("expected object_type resource, got %q", out.ObjectType)
	}
	if out.ObjectID != "cleanup" {
		t.Fatalf("expected object_id cleanup, got %q", out.ObjectID)
	}
	if out.Metadata[activitymap.MetadataKeyOrganizationID] != "existing" {
		t.Fatalf("expected existing organization_id preserved, got %#v", out.Metadata[activitymap.MetadataKeyOrganizationID])
	}
}

func TestObjectTypeFor(t *testing.T) {
	t.Parallel()

	tests := map[accounts.ActivityEventType]string{
		accounts.ActivityEventOrganizationCreated: "organization",
		accounts.ActivityEventSAMLConfigDeleted:   "organization",
		accounts.ActivityEventProjectDeleted:      "project",
		accounts.ActivityEventLoginSuccess:        "user",
		accounts.ActivityEventAvatarUpdated:       "user",
	}

	for eventType, expect := range tests {
		if got := activitymap.ObjectTypeFor(eventType); got != expect {
			t.Fatalf("expected %q for %q, got %q", expect, eventType, got)
		}
	}
}

func TestNormalizeActorFallbackChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		event  accounts.ActivityEvent
		opts   []activitymap.Option
		expect string
	}{
		{
			name:   "uses actor id when present",
			event:  accounts.ActivityEvent{ActorID: "actor-1", UserID: "user-1"},
			expect: "actor-1",
		},
		{
			name:   "uses user id when actor id missing",
			event:  accounts.ActivityEvent{UserID: "user-2"},
			expect: "user-2",
		},
		{
			name:   "uses default fallback when actor and user missing",
			event:  accounts.ActivityEvent{},
			expect: "system",
		},
		{
			name:   "uses configured fallback when actor and user missing",
			event:  accounts.ActivityEvent{},
			opts:   []activitymap.Option{activitymap.WithActorFallback("job")},
			expect: "job",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			out := activitymap.Normalize(tc.event, tc.opts...)
			if out.ActorID != tc.expect {
				t.Fatalf("expected actor_id %q, got %q", tc.expect, out.ActorID)
			}
		})
	}
}
