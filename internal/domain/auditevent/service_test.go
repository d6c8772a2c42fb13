package auditevent

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/platform/auth"
)

type mockEventRepo struct {
	events    []*Event
	createErr error
}

func (m *mockEventRepo) Create(_ context.Context, e *Event) error {
	if m.createErr != nil {
		return m.createErr
	}
	e.ID = uuid.New()
	m.events = append(m.events, e)
	return nil
}

func (m *mockEventRepo) Search(_ context.Context, params map[string]string, limit, offset int) ([]*Event, int, error) {
	var result []*Event
	for _, e := range m.events {
		if a, ok := params["action"]; ok && e.Action != a {
			continue
		}
		result = append(result, e)
	}
	return result, len(result), nil
}

func TestRecordCapturesIdentity(t *testing.T) {
	repo := &mockEventRepo{}
	svc := NewService(repo, zerolog.Nop())

	ctx := auth.WithIdentity(context.Background(), auth.Identity{Subject: "dr.smith", Role: auth.RoleDoctor})
	entityID := uuid.New()
	svc.Record(ctx, "update", "visits", &entityID, nil, map[string]string{"status": "EXAMINED"})

	if len(repo.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(repo.events))
	}
	e := repo.events[0]
	if e.Actor != "dr.smith" || e.ActorRole != auth.RoleDoctor {
		t.Errorf("actor = %s/%s, want dr.smith/doctor", e.Actor, e.ActorRole)
	}
	if e.Action != "update" || e.EntityType != "visits" {
		t.Errorf("unexpected action/entity: %s %s", e.Action, e.EntityType)
	}
	if e.EntityID == nil || *e.EntityID != entityID {
		t.Error("entity id not recorded")
	}
	if len(e.After) == 0 {
		t.Error("after snapshot not recorded")
	}
	if len(e.Before) != 0 {
		t.Error("before snapshot should be empty")
	}
	if e.RecordedAt.IsZero() {
		t.Error("recorded_at not set")
	}
}

func TestRecordSwallowsWriteFailure(t *testing.T) {
	repo := &mockEventRepo{createErr: errors.New("connection refused")}
	svc := NewService(repo, zerolog.Nop())

	// Must not panic or propagate; auditing never fails the action.
	svc.Record(context.Background(), "create", "appointments", nil, nil, nil)

	if len(repo.events) != 0 {
		t.Fatalf("expected no events, got %d", len(repo.events))
	}
}

func TestSearchFiltersByAction(t *testing.T) {
	repo := &mockEventRepo{}
	svc := NewService(repo, zerolog.Nop())

	svc.Record(context.Background(), "create", "appointments", nil, nil, nil)
	svc.Record(context.Background(), "update", "appointments", nil, nil, nil)
	svc.Record(context.Background(), "create", "medicines", nil, nil, nil)

	events, total, err := svc.Search(context.Background(), map[string]string{"action": "create"}, 50, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 2 || len(events) != 2 {
		t.Fatalf("expected 2 create events, got %d", len(events))
	}
}
