package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInvoiceNotFound    = errors.New("invoice not found")
	ErrInvoicePaid        = errors.New("invoice already paid")
	ErrDiscountOutOfRange = errors.New("discount out of range")
)

type Service struct {
	invoices InvoiceRepository
	items    InvoiceItemRepository
}

func NewService(invoices InvoiceRepository, items InvoiceItemRepository) *Service {
	return &Service{invoices: invoices, items: items}
}

// EnsureForVisit returns the visit's invoice, creating an unpaid one with the
// examination line when none exists yet. Callers mutating billing state run
// this inside their transaction.
func (s *Service) EnsureForVisit(ctx context.Context, visitID uuid.UUID, examinationFee int64) (*Invoice, error) {
	inv, err := s.invoices.GetByVisit(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if inv != nil {
		return inv, nil
	}

	inv = &Invoice{
		VisitID:        visitID,
		ExaminationFee: examinationFee,
		Status:         InvoiceUnpaid,
	}
	inv.Recalculate()
	if err := s.invoices.Create(ctx, inv); err != nil {
		return nil, err
	}
	if err := s.items.Create(ctx, &InvoiceItem{
		InvoiceID:   inv.ID,
		Type:        ItemExamination,
		Description: "Examination fee",
		Quantity:    1,
		UnitPrice:   examinationFee,
		Amount:      examinationFee,
	}); err != nil {
		return nil, err
	}
	return inv, nil
}

// SyncMedicineItems replaces the invoice's medicine lines with the given set
// and recomputes the totals. A paid invoice can no longer be changed.
func (s *Service) SyncMedicineItems(ctx context.Context, visitID uuid.UUID, examinationFee int64, lines []MedicineLine) (*Invoice, error) {
	inv, err := s.EnsureForVisit(ctx, visitID, examinationFee)
	if err != nil {
		return nil, err
	}
	if inv.Status == InvoicePaid {
		return nil, ErrInvoicePaid
	}

	if err := s.items.DeleteByInvoiceAndType(ctx, inv.ID, ItemMedicine); err != nil {
		return nil, err
	}

	var medicineTotal int64
	for _, line := range lines {
		amount := int64(line.Quantity) * line.UnitPrice
		medicineTotal += amount
		if err := s.items.Create(ctx, &InvoiceItem{
			InvoiceID:   inv.ID,
			Type:        ItemMedicine,
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Amount:      amount,
		}); err != nil {
			return nil, err
		}
	}

	inv.MedicineTotal = medicineTotal
	inv.Recalculate()
	if err := s.invoices.Update(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// ApplyDiscount sets the invoice discount and recomputes the total.
func (s *Service) ApplyDiscount(ctx context.Context, invoiceID uuid.UUID, discount int64) (*Invoice, error) {
	inv, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, ErrInvoiceNotFound
	}
	if inv.Status == InvoicePaid {
		return nil, ErrInvoicePaid
	}
	if discount < 0 || discount > inv.ExaminationFee+inv.MedicineTotal {
		return nil, ErrDiscountOutOfRange
	}
	inv.Discount = discount
	inv.Recalculate()
	if err := s.invoices.Update(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// MarkPaid settles the invoice.
func (s *Service) MarkPaid(ctx context.Context, invoiceID uuid.UUID) (*Invoice, error) {
	inv, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, ErrInvoiceNotFound
	}
	if inv.Status == InvoicePaid {
		return nil, ErrInvoicePaid
	}
	inv.Status = InvoicePaid
	if err := s.invoices.Update(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Service) GetByVisit(ctx context.Context, visitID uuid.UUID) (*Invoice, []*InvoiceItem, error) {
	inv, err := s.invoices.GetByVisit(ctx, visitID)
	if err != nil {
		return nil, nil, err
	}
	if inv == nil {
		return nil, nil, ErrInvoiceNotFound
	}
	items, err := s.items.ListByInvoice(ctx, inv.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list invoice items: %w", err)
	}
	return inv, items, nil
}
