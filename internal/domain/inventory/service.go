package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/platform/db"
)

var (
	ErrMedicineNotFound  = errors.New("medicine not found")
	ErrMedicineNotActive = errors.New("medicine is not active")
)

// InsufficientStockError is returned when a deduction asks for more units
// than are on hand.
type InsufficientStockError struct {
	Medicine  string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: %d available, %d requested",
		e.Medicine, e.Available, e.Requested)
}

// CodeIssuer mints medicine codes. Satisfied by codes.Generator.
type CodeIssuer interface {
	NextGlobal(ctx context.Context, prefix string) (string, error)
}

type Service struct {
	medicines MedicineRepository
	exports   StockExportRepository
	imports   StockImportRepository
	codes     CodeIssuer
	runTx     db.Runner
}

func NewService(medicines MedicineRepository, exports StockExportRepository, imports StockImportRepository, codes CodeIssuer, runTx db.Runner) *Service {
	return &Service{medicines: medicines, exports: exports, imports: imports, codes: codes, runTx: runTx}
}

func (s *Service) CreateMedicine(ctx context.Context, m *Medicine) error {
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if m.Unit == "" {
		return fmt.Errorf("unit is required")
	}
	if m.SalePrice < 0 {
		return fmt.Errorf("sale_price must not be negative")
	}
	if m.Quantity < 0 {
		return fmt.Errorf("quantity must not be negative")
	}
	return s.runTx(ctx, func(ctx context.Context) error {
		code, err := s.codes.NextGlobal(ctx, "MED")
		if err != nil {
			return err
		}
		m.Code = code
		return s.medicines.Create(ctx, m)
	})
}

func (s *Service) GetMedicine(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	m, err := s.medicines.GetByID(ctx, id)
	if err != nil {
		return nil, ErrMedicineNotFound
	}
	return m, nil
}

func (s *Service) SearchMedicines(ctx context.Context, params map[string]string, limit, offset int) ([]*Medicine, int, error) {
	return s.medicines.Search(ctx, params, limit, offset)
}

func (s *Service) UpdateMedicine(ctx context.Context, m *Medicine) error {
	switch m.Status {
	case "", MedicineActive, MedicineExpired, MedicineRemoved:
	default:
		return fmt.Errorf("invalid medicine status: %s", m.Status)
	}
	return s.medicines.Update(ctx, m)
}

// RemoveMedicine soft-deletes the medicine. The row and its stock history
// stay; it just stops being dispensable.
func (s *Service) RemoveMedicine(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	m, err := s.medicines.GetByID(ctx, id)
	if err != nil {
		return nil, ErrMedicineNotFound
	}
	m.Status = MedicineRemoved
	if err := s.medicines.Update(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Restock adds stock and records the import, atomically.
func (s *Service) Restock(ctx context.Context, id uuid.UUID, quantity int, note *string) (*Medicine, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("restock quantity must be positive")
	}
	var out *Medicine
	err := s.runTx(ctx, func(ctx context.Context) error {
		m, err := s.medicines.GetByIDForUpdate(ctx, id)
		if err != nil {
			return ErrMedicineNotFound
		}
		m.Quantity += quantity
		if err := s.medicines.SetQuantity(ctx, m.ID, m.Quantity); err != nil {
			return err
		}
		if err := s.imports.Create(ctx, &StockImport{MedicineID: m.ID, Quantity: quantity, Note: note}); err != nil {
			return err
		}
		out = m
		return nil
	})
	return out, err
}

// Dispense deducts stock under a row lock and records the export. The caller
// must already be inside a transaction; a failed later step rolls the
// deduction back with everything else.
func (s *Service) Dispense(ctx context.Context, id uuid.UUID, quantity int, reason string) (*Medicine, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("dispense quantity must be positive")
	}
	m, err := s.medicines.GetByIDForUpdate(ctx, id)
	if err != nil {
		return nil, ErrMedicineNotFound
	}
	if !m.IsActive() {
		return nil, ErrMedicineNotActive
	}
	if m.Quantity < quantity {
		return nil, &InsufficientStockError{Medicine: m.Name, Available: m.Quantity, Requested: quantity}
	}
	m.Quantity -= quantity
	if err := s.medicines.SetQuantity(ctx, m.ID, m.Quantity); err != nil {
		return nil, err
	}
	if err := s.exports.Create(ctx, &StockExport{MedicineID: m.ID, Quantity: quantity, Reason: reason}); err != nil {
		return nil, err
	}
	return m, nil
}

// Return puts previously dispensed stock back. Expired and removed
// medicines still accept returns so a cancellation never strands stock.
func (s *Service) Return(ctx context.Context, id uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("return quantity must be positive")
	}
	m, err := s.medicines.GetByIDForUpdate(ctx, id)
	if err != nil {
		return ErrMedicineNotFound
	}
	return s.medicines.SetQuantity(ctx, m.ID, m.Quantity+quantity)
}

// DeleteExportsByReason clears the export rows tied to one operation, used
// when a prescription is rewritten or cancelled.
func (s *Service) DeleteExportsByReason(ctx context.Context, reason string) error {
	return s.exports.DeleteByReason(ctx, reason)
}

func (s *Service) ListImports(ctx context.Context, medicineID uuid.UUID, limit, offset int) ([]*StockImport, int, error) {
	return s.imports.ListByMedicine(ctx, medicineID, limit, offset)
}
