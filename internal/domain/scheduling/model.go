package scheduling

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/pkg/lifecycle"
)

// AppointmentStatus is the appointment lifecycle state.
type AppointmentStatus string

const (
	ApptWaiting    AppointmentStatus = "WAITING"
	ApptCheckedIn  AppointmentStatus = "CHECKED_IN"
	ApptInProgress AppointmentStatus = "IN_PROGRESS"
	ApptCompleted  AppointmentStatus = "COMPLETED"
	ApptCancelled  AppointmentStatus = "CANCELLED"
	ApptNoShow     AppointmentStatus = "NO_SHOW"
)

// ApptMachine is the legal appointment transition table. Terminal states are
// COMPLETED, CANCELLED and NO_SHOW.
var ApptMachine = lifecycle.New("appointment", map[AppointmentStatus][]AppointmentStatus{
	ApptWaiting:    {ApptCheckedIn, ApptCancelled, ApptNoShow},
	ApptCheckedIn:  {ApptInProgress, ApptNoShow},
	ApptInProgress: {ApptCompleted},
})

const (
	DutyActive    = "ACTIVE"
	DutyCancelled = "CANCELLED"
	DutyReplaced  = "REPLACED"
)

// BookingType records the channel the appointment arrived through.
type BookingType string

const (
	BookingOnline  BookingType = "ONLINE"
	BookingOffline BookingType = "OFFLINE"
)

// BookedBy records who placed the booking.
type BookedBy string

const (
	BookedByPatient      BookedBy = "PATIENT"
	BookedByReceptionist BookedBy = "RECEPTIONIST"
)

// Shift is an immutable template of a working window, e.g. morning 08:00-12:00.
type Shift struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	StartTime string    `db:"start_time" json:"start_time"`
	EndTime   string    `db:"end_time" json:"end_time"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Duty maps to the duties table: one doctor working one shift on one date.
type Duty struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	DoctorID     uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	ShiftID      uuid.UUID  `db:"shift_id" json:"shift_id"`
	Date         time.Time  `db:"date" json:"date"`
	MaxSlots     *int       `db:"max_slots" json:"max_slots,omitempty"`
	Status       string     `db:"status" json:"status"`
	ReplacedBy   *uuid.UUID `db:"replaced_by" json:"replaced_by,omitempty"`
	CancelReason *string    `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Capacity resolves the duty's effective slot ceiling.
func (d *Duty) Capacity(defaultMax int) int {
	if d.MaxSlots != nil && *d.MaxSlots > 0 {
		return *d.MaxSlots
	}
	return defaultMax
}

// Appointment maps to the appointments table. SlotNumber is unique per
// doctor/shift/date; the database index is the final arbiter under
// concurrency. QueueNumber orders patients within the duty and is cleared on
// cancellation.
type Appointment struct {
	ID          uuid.UUID         `db:"id" json:"id"`
	Code        string            `db:"code" json:"code"`
	PatientID   uuid.UUID         `db:"patient_id" json:"patient_id"`
	DoctorID    uuid.UUID         `db:"doctor_id" json:"doctor_id"`
	ShiftID     uuid.UUID         `db:"shift_id" json:"shift_id"`
	Date        time.Time         `db:"date" json:"date"`
	SlotNumber  int               `db:"slot_number" json:"slot_number"`
	QueueNumber *int              `db:"queue_number" json:"queue_number,omitempty"`
	BookingType BookingType       `db:"booking_type" json:"booking_type"`
	BookedBy    BookedBy          `db:"booked_by" json:"booked_by"`
	Status      AppointmentStatus `db:"status" json:"status"`
	Reason      *string           `db:"reason" json:"reason,omitempty"`
	WalkInName  *string           `db:"walk_in_name" json:"walk_in_name,omitempty"`
	StartsAt    time.Time         `db:"starts_at" json:"starts_at"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updated_at"`
}

// IsActive reports whether the appointment still holds its slot.
func (a *Appointment) IsActive() bool {
	return a.Status != ApptCancelled && a.Status != ApptNoShow
}

// NormalizeName collapses whitespace and case for walk-in name comparison.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
