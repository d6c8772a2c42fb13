package auditevent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/middleware"
)

type Service struct {
	repo Repository
	log  zerolog.Logger
}

func NewService(repo Repository, log zerolog.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// Record writes an audit row for a completed action. It is best effort: a
// failed write is logged and swallowed so auditing never fails the action
// it describes.
func (s *Service) Record(ctx context.Context, action, entityType string, entityID *uuid.UUID, before, after interface{}) {
	id := auth.IdentityFromContext(ctx)
	e := &Event{
		Actor:      id.Subject,
		ActorRole:  id.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		RequestID:  middleware.RequestIDFromContext(ctx),
		RecordedAt: time.Now().UTC(),
	}
	if before != nil {
		e.Before, _ = json.Marshal(before)
	}
	if after != nil {
		e.After, _ = json.Marshal(after)
	}
	if err := s.repo.Create(ctx, e); err != nil {
		s.log.Error().Err(err).
			Str("action", action).
			Str("entity_type", entityType).
			Msg("audit event write failed")
	}
}

func (s *Service) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Event, int, error) {
	return s.repo.Search(ctx, params, limit, offset)
}
