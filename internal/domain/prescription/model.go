package prescription

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/pkg/lifecycle"
)

// PrescriptionStatus is the prescription lifecycle state.
type PrescriptionStatus string

const (
	StatusDraft     PrescriptionStatus = "DRAFT"
	StatusLocked    PrescriptionStatus = "LOCKED"
	StatusDispensed PrescriptionStatus = "DISPENSED"
	StatusCancelled PrescriptionStatus = "CANCELLED"
)

// Machine is the legal prescription transition table. Only DRAFT
// prescriptions may still be edited or cancelled; LOCKED ones await pharmacy
// handover.
var Machine = lifecycle.New("prescription", map[PrescriptionStatus][]PrescriptionStatus{
	StatusDraft:  {StatusLocked, StatusCancelled},
	StatusLocked: {StatusDispensed},
})

// Prescription maps to the prescriptions table. Stock for its lines is
// deducted the moment the row is created and restored when it is cancelled,
// so Total always reflects stock actually reserved.
type Prescription struct {
	ID        uuid.UUID          `db:"id" json:"id"`
	Code      string             `db:"code" json:"code"`
	VisitID   uuid.UUID          `db:"visit_id" json:"visit_id"`
	PatientID uuid.UUID          `db:"patient_id" json:"patient_id"`
	DoctorID  uuid.UUID          `db:"doctor_id" json:"doctor_id"`
	Status    PrescriptionStatus `db:"status" json:"status"`
	Notes     *string            `db:"notes" json:"notes,omitempty"`
	Total     int64              `db:"total" json:"total"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt time.Time          `db:"updated_at" json:"updated_at"`
}

// StockReason is the ledger tag tying stock exports to this prescription.
func (p *Prescription) StockReason() string {
	return "PRESCRIPTION_" + p.Code
}

// Detail is one prescribed medicine line. Name, unit and price are
// snapshotted at prescription time so later catalog edits do not rewrite
// clinical history.
type Detail struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PrescriptionID uuid.UUID `db:"prescription_id" json:"prescription_id"`
	MedicineID     uuid.UUID `db:"medicine_id" json:"medicine_id"`
	MedicineName   string    `db:"medicine_name" json:"medicine_name"`
	Unit           string    `db:"unit" json:"unit"`
	UnitPrice      int64     `db:"unit_price" json:"unit_price"`
	Quantity       int       `db:"quantity" json:"quantity"`
	Amount         int64     `db:"amount" json:"amount"`
	Instructions   *string   `db:"instructions" json:"instructions,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
