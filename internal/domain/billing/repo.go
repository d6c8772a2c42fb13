package billing

import (
	"context"

	"github.com/google/uuid"
)

type InvoiceRepository interface {
	Create(ctx context.Context, i *Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	// GetByVisit returns the visit's invoice, or nil when none exists yet.
	GetByVisit(ctx context.Context, visitID uuid.UUID) (*Invoice, error)
	Update(ctx context.Context, i *Invoice) error
}

type InvoiceItemRepository interface {
	Create(ctx context.Context, it *InvoiceItem) error
	ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*InvoiceItem, error)
	DeleteByInvoiceAndType(ctx context.Context, invoiceID uuid.UUID, itemType string) error
}
