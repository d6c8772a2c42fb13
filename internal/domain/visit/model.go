package visit

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/pkg/lifecycle"
)

// VisitStatus is the visit lifecycle state.
type VisitStatus string

const (
	VisitWaiting   VisitStatus = "WAITING"
	VisitExamining VisitStatus = "EXAMINING"
	VisitExamined  VisitStatus = "EXAMINED"
	VisitCompleted VisitStatus = "COMPLETED"
	VisitCancelled VisitStatus = "CANCELLED"
)

// Machine is the legal visit transition table. COMPLETED and CANCELLED are
// terminal; once a diagnosis is recorded (EXAMINED) the visit can no longer
// be cancelled.
var Machine = lifecycle.New("visit", map[VisitStatus][]VisitStatus{
	VisitWaiting:   {VisitExamining, VisitCancelled},
	VisitExamining: {VisitExamined, VisitCancelled},
	VisitExamined:  {VisitCompleted},
})

// Visit maps to the visits table: one check-in against one appointment.
// SignatureHash and SignedAt are set once when the doctor records the
// diagnosis and never change afterwards.
type Visit struct {
	ID            uuid.UUID   `db:"id" json:"id"`
	Code          string      `db:"code" json:"code"`
	AppointmentID uuid.UUID   `db:"appointment_id" json:"appointment_id"`
	PatientID     uuid.UUID   `db:"patient_id" json:"patient_id"`
	DoctorID      uuid.UUID   `db:"doctor_id" json:"doctor_id"`
	Status        VisitStatus `db:"status" json:"status"`
	CheckedInAt   time.Time   `db:"checked_in_at" json:"checked_in_at"`
	Symptoms      *string     `db:"symptoms" json:"symptoms,omitempty"`
	Diagnosis     *string     `db:"diagnosis" json:"diagnosis,omitempty"`
	Notes         *string     `db:"notes" json:"notes,omitempty"`
	SignatureHash *string     `db:"signature_hash" json:"signature_hash,omitempty"`
	SignedAt      *time.Time  `db:"signed_at" json:"signed_at,omitempty"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`
}

// Examinable reports whether clinical artifacts (prescriptions) may still be
// attached to the visit. Both states are only reachable through
// StartExamination, which has already moved the appointment to IN_PROGRESS.
func (v *Visit) Examinable() bool {
	return v.Status == VisitExamining || v.Status == VisitExamined
}

// Closed reports whether the visit has reached a terminal state. Closed
// visits reject every mutation, including no-op self transitions.
func (v *Visit) Closed() bool {
	return v.Status == VisitCompleted || v.Status == VisitCancelled
}
