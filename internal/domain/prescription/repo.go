package prescription

import (
	"context"

	"github.com/google/uuid"
)

type PrescriptionRepository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Prescription, error)
	// GetByVisit returns nil when the visit has no prescription.
	GetByVisit(ctx context.Context, visitID uuid.UUID) (*Prescription, error)
	Update(ctx context.Context, p *Prescription) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Prescription, int, error)
}

type DetailRepository interface {
	Create(ctx context.Context, d *Detail) error
	ListByPrescription(ctx context.Context, prescriptionID uuid.UUID) ([]*Detail, error)
	DeleteByPrescription(ctx context.Context, prescriptionID uuid.UUID) error
}
