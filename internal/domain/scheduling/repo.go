package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ShiftRepository interface {
	Create(ctx context.Context, s *Shift) error
	GetByID(ctx context.Context, id uuid.UUID) (*Shift, error)
	List(ctx context.Context) ([]*Shift, error)
}

// ReplacementCandidate is a doctor able to absorb a cancelled duty's
// appointments: an ACTIVE duty on the same shift and date, ranked by current
// workload.
type ReplacementCandidate struct {
	DutyID   uuid.UUID
	DoctorID uuid.UUID
	Workload int
}

type DutyRepository interface {
	Create(ctx context.Context, d *Duty) error
	GetByID(ctx context.Context, id uuid.UUID) (*Duty, error)
	// GetForUpdate locks the duty row for the enclosing transaction. Returns
	// nil when no duty exists for the key.
	GetForUpdate(ctx context.Context, doctorID, shiftID uuid.UUID, date time.Time) (*Duty, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Duty, error)
	Update(ctx context.Context, d *Duty) error
	ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Duty, error)
	ListByDate(ctx context.Context, date time.Time) ([]*Duty, error)
	// ListReplacementCandidates returns doctors of the given specialty with an
	// ACTIVE duty on the same shift and date, least loaded first.
	ListReplacementCandidates(ctx context.Context, specialty string, shiftID uuid.UUID, date time.Time, excludeDoctor uuid.UUID) ([]*ReplacementCandidate, error)
}

type AppointmentRepository interface {
	// Create inserts the appointment. Slot collisions surface as the raw
	// unique violation so the caller can retry.
	Create(ctx context.Context, a *Appointment) error
	// LockDoctorDay serializes bookings for one doctor and date across
	// shifts, so concurrent transactions cannot jointly exceed the per-day
	// cap. Released with the enclosing transaction.
	LockDoctorDay(ctx context.Context, doctorID uuid.UUID, date time.Time) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	// MaxSlot returns the highest allocated slot number for the duty, locking
	// the matching rows.
	MaxSlot(ctx context.Context, doctorID, shiftID uuid.UUID, date time.Time) (int, error)
	MaxQueue(ctx context.Context, doctorID, shiftID uuid.UUID, date time.Time) (int, error)
	CountActiveForDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error)
	ListActiveByPatientDate(ctx context.Context, patientID uuid.UUID, date time.Time) ([]*Appointment, error)
	ListActiveByDuty(ctx context.Context, doctorID, shiftID uuid.UUID, date time.Time) ([]*Appointment, error)
	// DecrementQueuesAfter shifts queue numbers down by one for active
	// appointments behind the vacated position.
	DecrementQueuesAfter(ctx context.Context, doctorID, shiftID uuid.UUID, date time.Time, after int) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Appointment, int, error)
}
