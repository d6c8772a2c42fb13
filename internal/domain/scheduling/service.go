package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/domain/directory"
	"github.com/clinicore/clinicore/internal/platform/clock"
	"github.com/clinicore/clinicore/internal/platform/db"
)

var (
	ErrDoctorNotOnDuty        = errors.New("doctor is not on duty for this shift and date")
	ErrDayFull                = errors.New("doctor has reached the daily appointment limit")
	ErrShiftFull              = errors.New("shift has no free slots")
	ErrShiftAlreadyEnded      = errors.New("shift has already ended")
	ErrOverlappingAppointment = errors.New("patient already has an appointment in an overlapping shift")
	ErrCannotBookPastDate     = errors.New("cannot book an appointment for a past date")
	ErrExceedsShiftTime       = errors.New("appointment would run past the end of the shift")
	ErrDoctorNotAvailable     = errors.New("doctor is not available")
	ErrDutyOverlap            = errors.New("doctor already has an overlapping duty on this date")
	ErrAppointmentNotFound    = errors.New("appointment not found")
	ErrForbidden              = errors.New("requester may not act on this appointment")
	ErrCancelTooLate          = errors.New("cancellation deadline has passed")
	ErrDutyNotFound           = errors.New("duty not found")
	ErrDutyNotActive          = errors.New("duty is not active")
	ErrShiftNotFound          = errors.New("shift not found")
	ErrAppointmentTooOld      = errors.New("appointment date is too far in the past")
)

// slotConstraint is the unique index over (doctor_id, shift_id, date,
// slot_number). It is the final arbiter for slot allocation under
// concurrency.
const slotConstraint = "appointments_slot_unique"

// Policy carries the booking limits from configuration.
type Policy struct {
	SlotMinutes       int
	ConsultMinutes    int
	MaxSlotsPerShift  int
	MaxPerDay         int
	CancelBeforeHours int
}

// DoctorSource resolves doctors from the directory. Satisfied by
// directory.Service.
type DoctorSource interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*directory.Doctor, error)
}

// CodeIssuer mints appointment codes. Satisfied by codes.Generator.
type CodeIssuer interface {
	NextDated(ctx context.Context, prefix string, date time.Time) (string, error)
}

// Actor identifies the requester for ownership and deadline checks.
type Actor struct {
	Role      string
	PatientID uuid.UUID
}

func (a Actor) isPatient() bool { return a.Role == "patient" }

type Service struct {
	shifts  ShiftRepository
	duties  DutyRepository
	appts   AppointmentRepository
	doctors DoctorSource
	codes   CodeIssuer
	clk     clock.Clock
	policy  Policy
	runTx   db.Runner
	log     zerolog.Logger
}

func NewService(shifts ShiftRepository, duties DutyRepository, appts AppointmentRepository,
	doctors DoctorSource, codes CodeIssuer, clk clock.Clock, policy Policy,
	runTx db.Runner, log zerolog.Logger) *Service {
	return &Service{
		shifts:  shifts,
		duties:  duties,
		appts:   appts,
		doctors: doctors,
		codes:   codes,
		clk:     clk,
		policy:  policy,
		runTx:   runTx,
		log:     log,
	}
}

// =========== Shifts ===========

func (s *Service) CreateShift(ctx context.Context, sh *Shift) error {
	if sh.Name == "" {
		return fmt.Errorf("name is required")
	}
	start, err := clock.ParseTimeOfDay(sh.StartTime)
	if err != nil {
		return err
	}
	end, err := clock.ParseTimeOfDay(sh.EndTime)
	if err != nil {
		return err
	}
	if start >= end {
		return fmt.Errorf("shift start %s must be before end %s", sh.StartTime, sh.EndTime)
	}
	return s.shifts.Create(ctx, sh)
}

func (s *Service) GetShift(ctx context.Context, id uuid.UUID) (*Shift, error) {
	sh, err := s.shifts.GetByID(ctx, id)
	if err != nil {
		return nil, ErrShiftNotFound
	}
	return sh, nil
}

func (s *Service) ListShifts(ctx context.Context) ([]*Shift, error) {
	return s.shifts.List(ctx)
}

// =========== Duties ===========

type AssignDutyInput struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	ShiftID  uuid.UUID `json:"shift_id"`
	Date     time.Time `json:"date"`
	MaxSlots *int      `json:"max_slots,omitempty"`
}

// AssignDuty puts a doctor on a shift for a date. Rejects inactive doctors
// and assignments whose shift window overlaps an ACTIVE duty the doctor
// already holds that day.
func (s *Service) AssignDuty(ctx context.Context, in AssignDutyInput) (*Duty, error) {
	doc, err := s.doctors.GetDoctor(ctx, in.DoctorID)
	if err != nil || !doc.IsActive() {
		return nil, ErrDoctorNotAvailable
	}
	shift, err := s.shifts.GetByID(ctx, in.ShiftID)
	if err != nil {
		return nil, ErrShiftNotFound
	}

	date := clock.StartOfDay(in.Date)
	duty := &Duty{
		DoctorID: in.DoctorID,
		ShiftID:  in.ShiftID,
		Date:     date,
		MaxSlots: in.MaxSlots,
		Status:   DutyActive,
	}
	err = s.runTx(ctx, func(ctx context.Context) error {
		existing, err := s.duties.ListByDoctorDate(ctx, in.DoctorID, date)
		if err != nil {
			return err
		}
		for _, other := range existing {
			if other.Status != DutyActive {
				continue
			}
			if other.ShiftID == in.ShiftID {
				return ErrDutyOverlap
			}
			otherShift, err := s.shifts.GetByID(ctx, other.ShiftID)
			if err != nil {
				return err
			}
			over, err := clock.Overlaps(shift.StartTime, shift.EndTime, otherShift.StartTime, otherShift.EndTime)
			if err != nil {
				return err
			}
			if over {
				return ErrDutyOverlap
			}
		}
		return s.duties.Create(ctx, duty)
	})
	if err != nil {
		return nil, err
	}
	return duty, nil
}

func (s *Service) GetDuty(ctx context.Context, id uuid.UUID) (*Duty, error) {
	d, err := s.duties.GetByID(ctx, id)
	if err != nil {
		return nil, ErrDutyNotFound
	}
	return d, nil
}

func (s *Service) ListDutiesByDate(ctx context.Context, date time.Time) ([]*Duty, error) {
	return s.duties.ListByDate(ctx, clock.StartOfDay(date))
}

// RestoreDuty returns a CANCELLED or REPLACED duty to ACTIVE, re-checking
// the overlap rule against duties assigned in the meantime.
func (s *Service) RestoreDuty(ctx context.Context, dutyID uuid.UUID) (*Duty, error) {
	var duty *Duty
	err := s.runTx(ctx, func(ctx context.Context) error {
		var err error
		duty, err = s.duties.GetByIDForUpdate(ctx, dutyID)
		if err != nil {
			return ErrDutyNotFound
		}
		if duty.Status == DutyActive {
			return nil
		}
		shift, err := s.shifts.GetByID(ctx, duty.ShiftID)
		if err != nil {
			return ErrShiftNotFound
		}
		others, err := s.duties.ListByDoctorDate(ctx, duty.DoctorID, duty.Date)
		if err != nil {
			return err
		}
		for _, other := range others {
			if other.ID == duty.ID || other.Status != DutyActive {
				continue
			}
			otherShift, err := s.shifts.GetByID(ctx, other.ShiftID)
			if err != nil {
				return err
			}
			over, err := clock.Overlaps(shift.StartTime, shift.EndTime, otherShift.StartTime, otherShift.EndTime)
			if err != nil {
				return err
			}
			if over {
				return ErrDutyOverlap
			}
		}
		duty.Status = DutyActive
		duty.ReplacedBy = nil
		duty.CancelReason = nil
		return s.duties.Update(ctx, duty)
	})
	if err != nil {
		return nil, err
	}
	return duty, nil
}

// =========== Booking ===========

type BookInput struct {
	PatientID   uuid.UUID   `json:"patient_id"`
	DoctorID    uuid.UUID   `json:"doctor_id"`
	ShiftID     uuid.UUID   `json:"shift_id"`
	Date        time.Time   `json:"date"`
	BookingType BookingType `json:"booking_type"`
	BookedBy    BookedBy    `json:"booked_by"`
	Reason      *string     `json:"reason,omitempty"`
	WalkInName  *string     `json:"walk_in_name,omitempty"`
}

// Book creates an appointment inside one transaction. The duty row lock
// serializes slot selection; the unique slot index plus the bounded
// insert-and-retry loop close the remaining race window.
func (s *Service) Book(ctx context.Context, in BookInput) (*Appointment, error) {
	now := s.clk.Now()
	date := clock.StartOfDay(in.Date)
	if date.Before(clock.StartOfDay(now)) {
		return nil, ErrCannotBookPastDate
	}
	doc, err := s.doctors.GetDoctor(ctx, in.DoctorID)
	if err != nil || !doc.IsActive() {
		return nil, ErrDoctorNotAvailable
	}
	if in.BookingType == "" {
		in.BookingType = BookingOffline
	}
	if in.BookedBy == "" {
		in.BookedBy = BookedByReceptionist
	}

	var appt *Appointment
	err = s.runTx(ctx, func(ctx context.Context) error {
		duty, err := s.duties.GetForUpdate(ctx, in.DoctorID, in.ShiftID, date)
		if err != nil {
			return err
		}
		if duty == nil || duty.Status != DutyActive {
			return ErrDoctorNotOnDuty
		}
		shift, err := s.shifts.GetByID(ctx, in.ShiftID)
		if err != nil {
			return ErrShiftNotFound
		}

		if clock.SameDay(date, now) {
			endAt, err := clock.At(date, shift.EndTime)
			if err != nil {
				return err
			}
			if !now.Before(endAt) {
				return ErrShiftAlreadyEnded
			}
		}

		if err := s.checkPatientOverlap(ctx, in, shift, date); err != nil {
			return err
		}

		// The duty lock only covers this shift; the day cap spans all of the
		// doctor's shifts, so take the doctor/day lock before counting.
		if err := s.appts.LockDoctorDay(ctx, in.DoctorID, date); err != nil {
			return err
		}
		count, err := s.appts.CountActiveForDoctorDate(ctx, in.DoctorID, date)
		if err != nil {
			return err
		}
		if count >= s.policy.MaxPerDay {
			return ErrDayFull
		}

		capacity := duty.Capacity(s.policy.MaxSlotsPerShift)
		maxSlot, err := s.appts.MaxSlot(ctx, in.DoctorID, in.ShiftID, date)
		if err != nil {
			return err
		}
		maxQueue, err := s.appts.MaxQueue(ctx, in.DoctorID, in.ShiftID, date)
		if err != nil {
			return err
		}
		code, err := s.codes.NextDated(ctx, "APT", date)
		if err != nil {
			return err
		}
		queue := maxQueue + 1

		for candidate := maxSlot + 1; candidate <= capacity; candidate++ {
			fits, err := clock.FitsShift(shift.StartTime, shift.EndTime,
				candidate, s.policy.SlotMinutes, s.policy.ConsultMinutes)
			if err != nil {
				return err
			}
			if !fits {
				return ErrExceedsShiftTime
			}
			startsAt, err := clock.SlotStart(date, shift.StartTime, candidate, s.policy.SlotMinutes)
			if err != nil {
				return err
			}
			a := &Appointment{
				Code:        code,
				PatientID:   in.PatientID,
				DoctorID:    in.DoctorID,
				ShiftID:     in.ShiftID,
				Date:        date,
				SlotNumber:  candidate,
				QueueNumber: &queue,
				BookingType: in.BookingType,
				BookedBy:    in.BookedBy,
				Status:      ApptWaiting,
				Reason:      in.Reason,
				WalkInName:  in.WalkInName,
				StartsAt:    startsAt,
			}
			err = s.appts.Create(ctx, a)
			if err == nil {
				appt = a
				return nil
			}
			if db.IsUniqueViolation(err, slotConstraint) {
				// A concurrent booker won this slot; try the next one.
				continue
			}
			return err
		}
		return ErrShiftFull
	})
	if err != nil {
		return nil, err
	}
	return appt, nil
}

// checkPatientOverlap rejects a booking when the patient already holds an
// active appointment in a shift whose window intersects the requested one.
// When both bookings declare walk-in names that differ after normalization,
// they are treated as different people sharing a patient record and the
// check is skipped for that pair.
func (s *Service) checkPatientOverlap(ctx context.Context, in BookInput, shift *Shift, date time.Time) error {
	existing, err := s.appts.ListActiveByPatientDate(ctx, in.PatientID, date)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if in.WalkInName != nil && other.WalkInName != nil &&
			NormalizeName(*in.WalkInName) != NormalizeName(*other.WalkInName) {
			continue
		}
		otherShift, err := s.shifts.GetByID(ctx, other.ShiftID)
		if err != nil {
			return err
		}
		over, err := clock.Overlaps(shift.StartTime, shift.EndTime, otherShift.StartTime, otherShift.EndTime)
		if err != nil {
			return err
		}
		if over {
			return ErrOverlappingAppointment
		}
	}
	return nil
}

// =========== Appointment mutations ===========

// Cancel cancels a WAITING appointment. Patients may only cancel their own
// appointments; every requester must cancel at least CancelBeforeHours
// before the slot starts. The vacated queue position is compacted.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor Actor, reason *string) (*Appointment, error) {
	var appt *Appointment
	err := s.runTx(ctx, func(ctx context.Context) error {
		var err error
		appt, err = s.appts.GetByIDForUpdate(ctx, id)
		if err != nil {
			return ErrAppointmentNotFound
		}
		if actor.isPatient() && actor.PatientID != appt.PatientID {
			return ErrForbidden
		}
		deadline := appt.StartsAt.Add(-time.Duration(s.policy.CancelBeforeHours) * time.Hour)
		if !s.clk.Now().Before(deadline) {
			return ErrCancelTooLate
		}
		if err := ApptMachine.Transition(appt.Status, ApptCancelled); err != nil {
			return err
		}
		appt.Status = ApptCancelled
		if reason != nil {
			appt.Reason = reason
		}
		vacated := appt.QueueNumber
		appt.QueueNumber = nil
		if err := s.appts.Update(ctx, appt); err != nil {
			return err
		}
		if vacated != nil {
			return s.appts.DecrementQueuesAfter(ctx, appt.DoctorID, appt.ShiftID, appt.Date, *vacated)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return appt, nil
}

// MarkNoShow moves a WAITING or CHECKED_IN appointment to NO_SHOW and
// compacts the queue behind it.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var appt *Appointment
	err := s.runTx(ctx, func(ctx context.Context) error {
		var err error
		appt, err = s.appts.GetByIDForUpdate(ctx, id)
		if err != nil {
			return ErrAppointmentNotFound
		}
		if err := ApptMachine.Transition(appt.Status, ApptNoShow); err != nil {
			return err
		}
		appt.Status = ApptNoShow
		vacated := appt.QueueNumber
		appt.QueueNumber = nil
		if err := s.appts.Update(ctx, appt); err != nil {
			return err
		}
		if vacated != nil {
			return s.appts.DecrementQueuesAfter(ctx, appt.DoctorID, appt.ShiftID, appt.Date, *vacated)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return appt, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, ErrAppointmentNotFound
	}
	return a, nil
}

func (s *Service) SearchAppointments(ctx context.Context, params map[string]string, limit, offset int) ([]*Appointment, int, error) {
	return s.appts.Search(ctx, params, limit, offset)
}

// =========== Duty cancellation and reschedule ===========

type RescheduleDetail struct {
	AppointmentID uuid.UUID  `json:"appointment_id"`
	Outcome       string     `json:"outcome"`
	NewDoctorID   *uuid.UUID `json:"new_doctor_id,omitempty"`
	Error         string     `json:"error,omitempty"`
}

const (
	OutcomeRescheduled = "RESCHEDULED"
	OutcomeCancelled   = "CANCELLED"
	OutcomeFailed      = "FAILED"
)

// RescheduleReport accounts for every appointment touched by a duty
// cancellation.
type RescheduleReport struct {
	TotalAppointments int                 `json:"total_appointments"`
	RescheduledCount  int                 `json:"rescheduled_count"`
	CancelledCount    int                 `json:"cancelled_count"`
	FailedCount       int                 `json:"failed_count"`
	Details           []*RescheduleDetail `json:"details"`
}

// CancelDutyAndReschedule cancels a duty and moves its active appointments
// to the least-loaded doctor of the same specialty on the same shift and
// date. Appointments with no available replacement are cancelled. The whole
// operation is one transaction.
func (s *Service) CancelDutyAndReschedule(ctx context.Context, dutyID uuid.UUID, reason string) (*RescheduleReport, error) {
	report := &RescheduleReport{Details: []*RescheduleDetail{}}
	err := s.runTx(ctx, func(ctx context.Context) error {
		duty, err := s.duties.GetByIDForUpdate(ctx, dutyID)
		if err != nil {
			return ErrDutyNotFound
		}
		if duty.Status != DutyActive {
			return ErrDutyNotActive
		}
		doc, err := s.doctors.GetDoctor(ctx, duty.DoctorID)
		if err != nil {
			return err
		}
		active, err := s.appts.ListActiveByDuty(ctx, duty.DoctorID, duty.ShiftID, duty.Date)
		if err != nil {
			return err
		}
		report.TotalAppointments = len(active)

		candidates, err := s.duties.ListReplacementCandidates(ctx, doc.Specialty, duty.ShiftID, duty.Date, duty.DoctorID)
		if err != nil {
			return err
		}

		var replacement *uuid.UUID
		for _, a := range active {
			detail := &RescheduleDetail{AppointmentID: a.ID}
			newDoctor, err := s.moveAppointment(ctx, a, candidates)
			switch {
			case err == nil && newDoctor != nil:
				report.RescheduledCount++
				detail.Outcome = OutcomeRescheduled
				detail.NewDoctorID = newDoctor
				if replacement == nil {
					replacement = newDoctor
				}
			case err == nil:
				if cErr := s.cancelForReschedule(ctx, a); cErr != nil {
					report.FailedCount++
					detail.Outcome = OutcomeFailed
					detail.Error = cErr.Error()
				} else {
					report.CancelledCount++
					detail.Outcome = OutcomeCancelled
				}
			default:
				report.FailedCount++
				detail.Outcome = OutcomeFailed
				detail.Error = err.Error()
			}
			report.Details = append(report.Details, detail)
		}

		r := reason
		duty.CancelReason = &r
		duty.ReplacedBy = replacement
		if replacement != nil {
			duty.Status = DutyReplaced
		} else {
			duty.Status = DutyCancelled
		}
		return s.duties.Update(ctx, duty)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("duty_id", dutyID.String()).
		Int("total", report.TotalAppointments).
		Int("rescheduled", report.RescheduledCount).
		Int("cancelled", report.CancelledCount).
		Int("failed", report.FailedCount).
		Msg("duty cancelled and appointments rescheduled")
	return report, nil
}

// moveAppointment tries each candidate in workload order and reassigns the
// appointment to the first with a free, time-fitting slot. Returns the new
// doctor id, or nil when no candidate could absorb it.
func (s *Service) moveAppointment(ctx context.Context, a *Appointment, candidates []*ReplacementCandidate) (*uuid.UUID, error) {
	orig := *a
	for _, cand := range candidates {
		target, err := s.duties.GetByIDForUpdate(ctx, cand.DutyID)
		if err != nil {
			return nil, err
		}
		if target.Status != DutyActive {
			continue
		}
		shift, err := s.shifts.GetByID(ctx, target.ShiftID)
		if err != nil {
			return nil, err
		}
		capacity := target.Capacity(s.policy.MaxSlotsPerShift)
		maxSlot, err := s.appts.MaxSlot(ctx, target.DoctorID, target.ShiftID, target.Date)
		if err != nil {
			return nil, err
		}
		maxQueue, err := s.appts.MaxQueue(ctx, target.DoctorID, target.ShiftID, target.Date)
		if err != nil {
			return nil, err
		}
		for candidateSlot := maxSlot + 1; candidateSlot <= capacity; candidateSlot++ {
			fits, err := clock.FitsShift(shift.StartTime, shift.EndTime,
				candidateSlot, s.policy.SlotMinutes, s.policy.ConsultMinutes)
			if err != nil {
				return nil, err
			}
			if !fits {
				break
			}
			startsAt, err := clock.SlotStart(target.Date, shift.StartTime, candidateSlot, s.policy.SlotMinutes)
			if err != nil {
				return nil, err
			}
			queue := maxQueue + 1
			a.DoctorID = target.DoctorID
			a.ShiftID = target.ShiftID
			a.SlotNumber = candidateSlot
			a.QueueNumber = &queue
			a.StartsAt = startsAt
			err = s.appts.Update(ctx, a)
			if err == nil {
				return &target.DoctorID, nil
			}
			if db.IsUniqueViolation(err, slotConstraint) {
				continue
			}
			return nil, err
		}
		// This candidate is full; restore the original keys before trying
		// the next one.
		*a = orig
	}
	return nil, nil
}

func (s *Service) cancelForReschedule(ctx context.Context, a *Appointment) error {
	if err := ApptMachine.Transition(a.Status, ApptCancelled); err != nil {
		return err
	}
	a.Status = ApptCancelled
	a.QueueNumber = nil
	return s.appts.Update(ctx, a)
}
