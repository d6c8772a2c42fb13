package inventory

import (
	"context"

	"github.com/google/uuid"
)

type MedicineRepository interface {
	Create(ctx context.Context, m *Medicine) error
	GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error)
	// GetByIDForUpdate locks the medicine row for the rest of the enclosing
	// transaction.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Medicine, error)
	Update(ctx context.Context, m *Medicine) error
	SetQuantity(ctx context.Context, id uuid.UUID, quantity int) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Medicine, int, error)
}

type StockExportRepository interface {
	Create(ctx context.Context, e *StockExport) error
	ListByReason(ctx context.Context, reason string) ([]*StockExport, error)
	DeleteByReason(ctx context.Context, reason string) error
}

type StockImportRepository interface {
	Create(ctx context.Context, i *StockImport) error
	ListByMedicine(ctx context.Context, medicineID uuid.UUID, limit, offset int) ([]*StockImport, int, error)
}
