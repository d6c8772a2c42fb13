package visit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/domain/billing"
	"github.com/clinicore/clinicore/internal/domain/scheduling"
	"github.com/clinicore/clinicore/internal/platform/clock"
	"github.com/clinicore/clinicore/internal/platform/db"
)

var (
	ErrVisitNotFound      = errors.New("visit not found")
	ErrVisitAlreadyExists = errors.New("appointment already has a visit")
	ErrVisitClosed        = errors.New("visit is closed")
	ErrDiagnosisMissing   = errors.New("diagnosis is required")
)

// AppointmentStore is the slice of the scheduling repository the visit flow
// needs to reconcile appointment state.
type AppointmentStore interface {
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*scheduling.Appointment, error)
	Update(ctx context.Context, a *scheduling.Appointment) error
}

// CodeIssuer mints visit codes. Satisfied by codes.Generator.
type CodeIssuer interface {
	NextDated(ctx context.Context, prefix string, date time.Time) (string, error)
}

// InvoiceWriter creates the invoice draft when an examination finishes.
// Satisfied by billing.Service.
type InvoiceWriter interface {
	EnsureForVisit(ctx context.Context, visitID uuid.UUID, examinationFee int64) (*billing.Invoice, error)
}

type Service struct {
	visits   VisitRepository
	appts    AppointmentStore
	codes    CodeIssuer
	invoices InvoiceWriter
	clk      clock.Clock
	examFee  int64
	runTx    db.Runner
	log      zerolog.Logger
}

func NewService(visits VisitRepository, appts AppointmentStore, codes CodeIssuer,
	invoices InvoiceWriter, clk clock.Clock, examFee int64, runTx db.Runner, log zerolog.Logger) *Service {
	return &Service{
		visits:   visits,
		appts:    appts,
		codes:    codes,
		invoices: invoices,
		clk:      clk,
		examFee:  examFee,
		runTx:    runTx,
		log:      log,
	}
}

// CheckIn opens a visit for a WAITING appointment. Appointments dated before
// yesterday can no longer be checked in.
func (s *Service) CheckIn(ctx context.Context, appointmentID uuid.UUID, symptoms *string) (*Visit, error) {
	now := s.clk.Now()
	var v *Visit
	err := s.runTx(ctx, func(ctx context.Context) error {
		appt, err := s.appts.GetByIDForUpdate(ctx, appointmentID)
		if err != nil {
			return scheduling.ErrAppointmentNotFound
		}
		yesterday := clock.StartOfDay(now).AddDate(0, 0, -1)
		if appt.Date.Before(yesterday) {
			return scheduling.ErrAppointmentTooOld
		}
		existing, err := s.visits.GetByAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrVisitAlreadyExists
		}
		if err := scheduling.ApptMachine.Transition(appt.Status, scheduling.ApptCheckedIn); err != nil {
			return err
		}
		appt.Status = scheduling.ApptCheckedIn
		if err := s.appts.Update(ctx, appt); err != nil {
			return err
		}

		code, err := s.codes.NextDated(ctx, "VST", now)
		if err != nil {
			return err
		}
		v = &Visit{
			Code:          code,
			AppointmentID: appt.ID,
			PatientID:     appt.PatientID,
			DoctorID:      appt.DoctorID,
			Status:        VisitWaiting,
			CheckedInAt:   now,
			Symptoms:      symptoms,
		}
		return s.visits.Create(ctx, v)
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// StartExamination moves the visit to EXAMINING and the appointment to
// IN_PROGRESS.
func (s *Service) StartExamination(ctx context.Context, visitID uuid.UUID) (*Visit, error) {
	var v *Visit
	err := s.runTx(ctx, func(ctx context.Context) error {
		var err error
		v, err = s.visits.GetByIDForUpdate(ctx, visitID)
		if err != nil {
			return ErrVisitNotFound
		}
		if v.Closed() {
			return ErrVisitClosed
		}
		if err := Machine.Transition(v.Status, VisitExamining); err != nil {
			return err
		}
		if err := s.reconcileAppointment(ctx, v.AppointmentID, scheduling.ApptInProgress); err != nil {
			return err
		}
		v.Status = VisitExamining
		return s.visits.Update(ctx, v)
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Complete records the diagnosis, signs it and moves the visit to EXAMINED.
// The invoice draft is created after commit; its failure is logged, not
// propagated, so a billing outage never unwinds a recorded examination.
func (s *Service) Complete(ctx context.Context, visitID uuid.UUID, diagnosis string, notes *string) (*Visit, error) {
	if diagnosis == "" {
		return nil, ErrDiagnosisMissing
	}
	now := s.clk.Now()
	var v *Visit
	err := s.runTx(ctx, func(ctx context.Context) error {
		var err error
		v, err = s.visits.GetByIDForUpdate(ctx, visitID)
		if err != nil {
			return ErrVisitNotFound
		}
		if v.Closed() {
			return ErrVisitClosed
		}
		if err := Machine.Transition(v.Status, VisitExamined); err != nil {
			return err
		}
		if err := s.reconcileAppointment(ctx, v.AppointmentID, scheduling.ApptInProgress); err != nil {
			return err
		}
		sig := signDiagnosis(v, diagnosis, now)
		v.Status = VisitExamined
		v.Diagnosis = &diagnosis
		v.Notes = notes
		v.SignatureHash = &sig
		v.SignedAt = &now
		return s.visits.Update(ctx, v)
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.invoices.EnsureForVisit(ctx, v.ID, s.examFee); err != nil {
		s.log.Error().Err(err).
			Str("visit_id", v.ID.String()).
			Msg("invoice draft creation failed after examination")
	}
	return v, nil
}

// Close finishes the visit and its appointment.
func (s *Service) Close(ctx context.Context, visitID uuid.UUID) (*Visit, error) {
	var v *Visit
	err := s.runTx(ctx, func(ctx context.Context) error {
		var err error
		v, err = s.visits.GetByIDForUpdate(ctx, visitID)
		if err != nil {
			return ErrVisitNotFound
		}
		if v.Closed() {
			return ErrVisitClosed
		}
		if err := Machine.Transition(v.Status, VisitCompleted); err != nil {
			return err
		}
		if err := s.reconcileAppointment(ctx, v.AppointmentID, scheduling.ApptCompleted); err != nil {
			return err
		}
		v.Status = VisitCompleted
		return s.visits.Update(ctx, v)
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Cancel voids a visit that never reached a diagnosis. An appointment still
// at CHECKED_IN is marked NO_SHOW; one already IN_PROGRESS is left for the
// doctor to resolve.
func (s *Service) Cancel(ctx context.Context, visitID uuid.UUID) (*Visit, error) {
	var v *Visit
	err := s.runTx(ctx, func(ctx context.Context) error {
		var err error
		v, err = s.visits.GetByIDForUpdate(ctx, visitID)
		if err != nil {
			return ErrVisitNotFound
		}
		if v.Closed() {
			return ErrVisitClosed
		}
		if err := Machine.Transition(v.Status, VisitCancelled); err != nil {
			return err
		}
		appt, err := s.appts.GetByIDForUpdate(ctx, v.AppointmentID)
		if err != nil {
			return scheduling.ErrAppointmentNotFound
		}
		if appt.Status == scheduling.ApptCheckedIn {
			appt.Status = scheduling.ApptNoShow
			if err := s.appts.Update(ctx, appt); err != nil {
				return err
			}
		}
		v.Status = VisitCancelled
		return s.visits.Update(ctx, v)
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Service) GetVisit(ctx context.Context, id uuid.UUID) (*Visit, error) {
	v, err := s.visits.GetByID(ctx, id)
	if err != nil {
		return nil, ErrVisitNotFound
	}
	return v, nil
}

func (s *Service) SearchVisits(ctx context.Context, params map[string]string, limit, offset int) ([]*Visit, int, error) {
	return s.visits.Search(ctx, params, limit, offset)
}

// reconcileAppointment advances the backing appointment to the target state.
// Already being there is fine; any other illegal move aborts the visit
// transition.
func (s *Service) reconcileAppointment(ctx context.Context, appointmentID uuid.UUID, target scheduling.AppointmentStatus) error {
	appt, err := s.appts.GetByIDForUpdate(ctx, appointmentID)
	if err != nil {
		return scheduling.ErrAppointmentNotFound
	}
	if appt.Status == target {
		return nil
	}
	if err := scheduling.ApptMachine.Transition(appt.Status, target); err != nil {
		return err
	}
	appt.Status = target
	return s.appts.Update(ctx, appt)
}

// signDiagnosis hashes the clinical facts of the examination so later edits
// to the row are detectable.
func signDiagnosis(v *Visit, diagnosis string, at time.Time) string {
	payload := fmt.Sprintf("%s|%s|%s|%s|%s",
		v.ID, v.DoctorID, v.PatientID, diagnosis, at.UTC().Format(time.RFC3339Nano))
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
