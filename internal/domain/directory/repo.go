package directory

import (
	"context"

	"github.com/google/uuid"
)

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	ListBySpecialty(ctx context.Context, specialty string, limit, offset int) ([]*Doctor, int, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Doctor, int, error)
}

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error)
}
