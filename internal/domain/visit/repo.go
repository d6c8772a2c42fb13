package visit

import (
	"context"

	"github.com/google/uuid"
)

type VisitRepository interface {
	Create(ctx context.Context, v *Visit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Visit, error)
	// GetByAppointment returns nil when the appointment has no visit yet.
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Visit, error)
	Update(ctx context.Context, v *Visit) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Visit, int, error)
}
