package auditevent

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is one audit row. Before and After hold entity snapshots as raw
// JSON; either may be empty for create/delete actions.
type Event struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	Actor      string          `db:"actor" json:"actor"`
	ActorRole  string          `db:"actor_role" json:"actor_role"`
	Action     string          `db:"action" json:"action"`
	EntityType string          `db:"entity_type" json:"entity_type"`
	EntityID   *uuid.UUID      `db:"entity_id" json:"entity_id,omitempty"`
	Before     json.RawMessage `db:"before" json:"before,omitempty"`
	After      json.RawMessage `db:"after" json:"after,omitempty"`
	RequestID  string          `db:"request_id" json:"request_id"`
	RecordedAt time.Time       `db:"recorded_at" json:"recorded_at"`
}
