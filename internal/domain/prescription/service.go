package prescription

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/domain/billing"
	"github.com/clinicore/clinicore/internal/domain/inventory"
	"github.com/clinicore/clinicore/internal/domain/visit"
	"github.com/clinicore/clinicore/internal/platform/db"
)

var (
	ErrPrescriptionNotFound      = errors.New("prescription not found")
	ErrUnauthorizedVisit         = errors.New("visit belongs to another doctor")
	ErrUnauthorizedPrescription  = errors.New("prescription belongs to another doctor")
	ErrVisitNotExamined          = errors.New("visit is not under or past examination")
	ErrPrescriptionExists        = errors.New("visit already has a prescription")
	ErrPrescriptionLocked        = errors.New("prescription is locked")
	ErrPrescriptionCancelled     = errors.New("prescription is cancelled")
	ErrPrescriptionAlreadyLocked = errors.New("prescription is already locked")
	ErrNoLines                   = errors.New("prescription needs at least one line")
)

// visitConstraint is the unique index allowing one non-cancelled
// prescription per visit. It backstops the GetByVisit pre-check under
// concurrency.
const visitConstraint = "prescriptions_visit_unique"

// VisitSource resolves visits for ownership and state checks. Satisfied by
// visit.Service.
type VisitSource interface {
	GetVisit(ctx context.Context, id uuid.UUID) (*visit.Visit, error)
}

// StockController reserves and releases medicine stock. Satisfied by
// inventory.Service.
type StockController interface {
	Dispense(ctx context.Context, id uuid.UUID, quantity int, reason string) (*inventory.Medicine, error)
	Return(ctx context.Context, id uuid.UUID, quantity int) error
	DeleteExportsByReason(ctx context.Context, reason string) error
}

// InvoiceSyncer keeps the visit invoice's medicine lines consistent with the
// prescription. Satisfied by billing.Service.
type InvoiceSyncer interface {
	SyncMedicineItems(ctx context.Context, visitID uuid.UUID, examinationFee int64, lines []billing.MedicineLine) (*billing.Invoice, error)
}

// CodeIssuer mints prescription codes. Satisfied by codes.Generator.
type CodeIssuer interface {
	NextDated(ctx context.Context, prefix string, date time.Time) (string, error)
}

// Clock narrows clock.Clock for code dating.
type Clock interface {
	Now() time.Time
}

type Service struct {
	prescriptions PrescriptionRepository
	details       DetailRepository
	visits        VisitSource
	stock         StockController
	invoices      InvoiceSyncer
	codes         CodeIssuer
	clk           Clock
	examFee       int64
	runTx         db.Runner
	log           zerolog.Logger
}

func NewService(prescriptions PrescriptionRepository, details DetailRepository,
	visits VisitSource, stock StockController, invoices InvoiceSyncer, codes CodeIssuer,
	clk Clock, examFee int64, runTx db.Runner, log zerolog.Logger) *Service {
	return &Service{
		prescriptions: prescriptions,
		details:       details,
		visits:        visits,
		stock:         stock,
		invoices:      invoices,
		codes:         codes,
		clk:           clk,
		examFee:       examFee,
		runTx:         runTx,
		log:           log,
	}
}

// LineInput is one requested medicine line.
type LineInput struct {
	MedicineID   uuid.UUID `json:"medicine_id"`
	Quantity     int       `json:"quantity"`
	Instructions *string   `json:"instructions,omitempty"`
}

type CreateInput struct {
	VisitID uuid.UUID
	Doctor  uuid.UUID
	Lines   []LineInput
	Notes   *string
}

// Create writes a DRAFT prescription and deducts stock for every line in
// the same transaction. Any line failing leaves no deduction behind.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Prescription, []*Detail, error) {
	if len(in.Lines) == 0 {
		return nil, nil, ErrNoLines
	}
	var (
		p    *Prescription
		dets []*Detail
	)
	err := s.runTx(ctx, func(ctx context.Context) error {
		v, err := s.visits.GetVisit(ctx, in.VisitID)
		if err != nil {
			return err
		}
		if in.Doctor != uuid.Nil && v.DoctorID != in.Doctor {
			return ErrUnauthorizedVisit
		}
		if !v.Examinable() {
			return ErrVisitNotExamined
		}
		existing, err := s.prescriptions.GetByVisit(ctx, in.VisitID)
		if err != nil {
			return err
		}
		if existing != nil && existing.Status != StatusCancelled {
			return ErrPrescriptionExists
		}

		code, err := s.codes.NextDated(ctx, "RX", s.clk.Now())
		if err != nil {
			return err
		}
		p = &Prescription{
			Code:      code,
			VisitID:   v.ID,
			PatientID: v.PatientID,
			DoctorID:  v.DoctorID,
			Status:    StatusDraft,
			Notes:     in.Notes,
		}
		if err := s.prescriptions.Create(ctx, p); err != nil {
			if db.IsUniqueViolation(err, visitConstraint) {
				// A concurrent create for the same visit committed first.
				return ErrPrescriptionExists
			}
			return err
		}

		dets, err = s.dispenseLines(ctx, p, in.Lines)
		if err != nil {
			return err
		}
		p.Total = sumDetails(dets)
		if err := s.prescriptions.Update(ctx, p); err != nil {
			return err
		}
		return s.syncInvoice(ctx, p, dets)
	})
	if err != nil {
		return nil, nil, err
	}
	return p, dets, nil
}

// Update replaces the lines of a DRAFT prescription: old stock is returned,
// the export ledger rows are dropped and the new lines are dispensed fresh.
func (s *Service) Update(ctx context.Context, id uuid.UUID, doctor uuid.UUID, lines []LineInput, notes *string) (*Prescription, []*Detail, error) {
	if len(lines) == 0 {
		return nil, nil, ErrNoLines
	}
	var (
		p    *Prescription
		dets []*Detail
	)
	err := s.runTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.lockDraft(ctx, id, doctor)
		if err != nil {
			return err
		}
		if err := s.releaseLines(ctx, p); err != nil {
			return err
		}
		if err := s.details.DeleteByPrescription(ctx, p.ID); err != nil {
			return err
		}

		dets, err = s.dispenseLines(ctx, p, lines)
		if err != nil {
			return err
		}
		p.Total = sumDetails(dets)
		p.Notes = notes
		if err := s.prescriptions.Update(ctx, p); err != nil {
			return err
		}
		return s.syncInvoice(ctx, p, dets)
	})
	if err != nil {
		return nil, nil, err
	}
	return p, dets, nil
}

// Cancel voids a DRAFT prescription and restores its stock. The invoice's
// medicine lines are cleared.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, doctor uuid.UUID) (*Prescription, error) {
	var p *Prescription
	err := s.runTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.lockDraft(ctx, id, doctor)
		if err != nil {
			return err
		}
		if err := s.releaseLines(ctx, p); err != nil {
			return err
		}
		if err := Machine.Transition(p.Status, StatusCancelled); err != nil {
			return err
		}
		p.Status = StatusCancelled
		p.Total = 0
		if err := s.prescriptions.Update(ctx, p); err != nil {
			return err
		}
		return s.syncInvoice(ctx, p, nil)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Lock freezes the prescription for pharmacy handover and materializes the
// invoice with its lines.
func (s *Service) Lock(ctx context.Context, id uuid.UUID, doctor uuid.UUID) (*Prescription, error) {
	var p *Prescription
	err := s.runTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.prescriptions.GetByIDForUpdate(ctx, id)
		if err != nil {
			return ErrPrescriptionNotFound
		}
		if doctor != uuid.Nil && p.DoctorID != doctor {
			return ErrUnauthorizedPrescription
		}
		if p.Status == StatusLocked {
			return ErrPrescriptionAlreadyLocked
		}
		if err := Machine.Transition(p.Status, StatusLocked); err != nil {
			return err
		}
		p.Status = StatusLocked
		if err := s.prescriptions.Update(ctx, p); err != nil {
			return err
		}
		dets, err := s.details.ListByPrescription(ctx, p.ID)
		if err != nil {
			return err
		}
		return s.syncInvoice(ctx, p, dets)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// MarkDispensed records the pharmacy handover of a LOCKED prescription.
func (s *Service) MarkDispensed(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	var p *Prescription
	err := s.runTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.prescriptions.GetByIDForUpdate(ctx, id)
		if err != nil {
			return ErrPrescriptionNotFound
		}
		if err := Machine.Transition(p.Status, StatusDispensed); err != nil {
			return err
		}
		p.Status = StatusDispensed
		return s.prescriptions.Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Prescription, []*Detail, error) {
	p, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return nil, nil, ErrPrescriptionNotFound
	}
	dets, err := s.details.ListByPrescription(ctx, p.ID)
	if err != nil {
		return nil, nil, err
	}
	return p, dets, nil
}

func (s *Service) GetByVisit(ctx context.Context, visitID uuid.UUID) (*Prescription, []*Detail, error) {
	p, err := s.prescriptions.GetByVisit(ctx, visitID)
	if err != nil {
		return nil, nil, err
	}
	if p == nil {
		return nil, nil, ErrPrescriptionNotFound
	}
	dets, err := s.details.ListByPrescription(ctx, p.ID)
	if err != nil {
		return nil, nil, err
	}
	return p, dets, nil
}

func (s *Service) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Prescription, int, error) {
	return s.prescriptions.Search(ctx, params, limit, offset)
}

// lockDraft fetches the prescription with a row lock and verifies it is
// still editable by the given doctor.
func (s *Service) lockDraft(ctx context.Context, id uuid.UUID, doctor uuid.UUID) (*Prescription, error) {
	p, err := s.prescriptions.GetByIDForUpdate(ctx, id)
	if err != nil {
		return nil, ErrPrescriptionNotFound
	}
	if doctor != uuid.Nil && p.DoctorID != doctor {
		return nil, ErrUnauthorizedPrescription
	}
	switch p.Status {
	case StatusLocked, StatusDispensed:
		return nil, ErrPrescriptionLocked
	case StatusCancelled:
		return nil, ErrPrescriptionCancelled
	}
	return p, nil
}

// dispenseLines deducts stock per line and writes the detail snapshots.
// Lines are applied sequentially in ascending medicine id so every
// prescription locks medicine rows in the same order and two concurrent
// prescriptions cannot deadlock on each other.
func (s *Service) dispenseLines(ctx context.Context, p *Prescription, lines []LineInput) ([]*Detail, error) {
	ordered := make([]LineInput, len(lines))
	copy(ordered, lines)
	sort.Slice(ordered, func(i, j int) bool {
		return bytes.Compare(ordered[i].MedicineID[:], ordered[j].MedicineID[:]) < 0
	})

	reason := p.StockReason()
	dets := make([]*Detail, 0, len(ordered))
	for _, line := range ordered {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("quantity for medicine %s must be positive", line.MedicineID)
		}
		med, err := s.stock.Dispense(ctx, line.MedicineID, line.Quantity, reason)
		if err != nil {
			return nil, err
		}
		d := &Detail{
			PrescriptionID: p.ID,
			MedicineID:     med.ID,
			MedicineName:   med.Name,
			Unit:           med.Unit,
			UnitPrice:      med.SalePrice,
			Quantity:       line.Quantity,
			Amount:         int64(line.Quantity) * med.SalePrice,
			Instructions:   line.Instructions,
		}
		if err := s.details.Create(ctx, d); err != nil {
			return nil, err
		}
		dets = append(dets, d)
	}
	return dets, nil
}

// releaseLines returns the stock held by the prescription's current lines
// and drops their export ledger rows.
func (s *Service) releaseLines(ctx context.Context, p *Prescription) error {
	dets, err := s.details.ListByPrescription(ctx, p.ID)
	if err != nil {
		return err
	}
	for _, d := range dets {
		if err := s.stock.Return(ctx, d.MedicineID, d.Quantity); err != nil {
			return err
		}
	}
	return s.stock.DeleteExportsByReason(ctx, p.StockReason())
}

func (s *Service) syncInvoice(ctx context.Context, p *Prescription, dets []*Detail) error {
	lines := make([]billing.MedicineLine, 0, len(dets))
	for _, d := range dets {
		lines = append(lines, billing.MedicineLine{
			Description: d.MedicineName,
			Quantity:    d.Quantity,
			UnitPrice:   d.UnitPrice,
		})
	}
	_, err := s.invoices.SyncMedicineItems(ctx, p.VisitID, s.examFee, lines)
	return err
}

func sumDetails(dets []*Detail) int64 {
	var total int64
	for _, d := range dets {
		total += d.Amount
	}
	return total
}
