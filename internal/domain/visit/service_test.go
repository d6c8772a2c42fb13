package visit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/domain/billing"
	"github.com/clinicore/clinicore/internal/domain/scheduling"
	"github.com/clinicore/clinicore/internal/platform/clock"
	"github.com/clinicore/clinicore/pkg/lifecycle"
)

// -- Mocks --

type mockVisitRepo struct {
	visits map[uuid.UUID]*Visit
}

func newMockVisitRepo() *mockVisitRepo {
	return &mockVisitRepo{visits: make(map[uuid.UUID]*Visit)}
}

func (m *mockVisitRepo) Create(_ context.Context, v *Visit) error {
	v.ID = uuid.New()
	cp := *v
	m.visits[v.ID] = &cp
	return nil
}

func (m *mockVisitRepo) GetByID(_ context.Context, id uuid.UUID) (*Visit, error) {
	v, ok := m.visits[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *v
	return &cp, nil
}

func (m *mockVisitRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return m.GetByID(ctx, id)
}

func (m *mockVisitRepo) GetByAppointment(_ context.Context, appointmentID uuid.UUID) (*Visit, error) {
	for _, v := range m.visits {
		if v.AppointmentID == appointmentID {
			cp := *v
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockVisitRepo) Update(_ context.Context, v *Visit) error {
	if _, ok := m.visits[v.ID]; !ok {
		return fmt.Errorf("not found")
	}
	cp := *v
	m.visits[v.ID] = &cp
	return nil
}

func (m *mockVisitRepo) Search(_ context.Context, _ map[string]string, _, _ int) ([]*Visit, int, error) {
	var out []*Visit
	for _, v := range m.visits {
		out = append(out, v)
	}
	return out, len(out), nil
}

type mockApptStore struct {
	appts map[uuid.UUID]*scheduling.Appointment
}

func (m *mockApptStore) GetByIDForUpdate(_ context.Context, id uuid.UUID) (*scheduling.Appointment, error) {
	a, ok := m.appts[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *a
	return &cp, nil
}

func (m *mockApptStore) Update(_ context.Context, a *scheduling.Appointment) error {
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

type mockCodeIssuer struct{ n int }

func (m *mockCodeIssuer) NextDated(_ context.Context, prefix string, date time.Time) (string, error) {
	m.n++
	return fmt.Sprintf("%s-%s-%05d", prefix, date.Format("20060102"), m.n), nil
}

type mockInvoiceWriter struct {
	calls []uuid.UUID
	fail  bool
}

func (m *mockInvoiceWriter) EnsureForVisit(_ context.Context, visitID uuid.UUID, fee int64) (*billing.Invoice, error) {
	if m.fail {
		return nil, fmt.Errorf("billing unavailable")
	}
	m.calls = append(m.calls, visitID)
	return &billing.Invoice{ID: uuid.New(), VisitID: visitID, ExaminationFee: fee}, nil
}

func passthroughTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// -- Fixture --

type fixture struct {
	svc      *Service
	visits   *mockVisitRepo
	appts    *mockApptStore
	invoices *mockInvoiceWriter
	now      time.Time
	apptID   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		visits:   newMockVisitRepo(),
		appts:    &mockApptStore{appts: make(map[uuid.UUID]*scheduling.Appointment)},
		invoices: &mockInvoiceWriter{},
	}
	f.now = time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC)

	appt := &scheduling.Appointment{
		ID:        uuid.New(),
		PatientID: uuid.New(),
		DoctorID:  uuid.New(),
		Date:      time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Status:    scheduling.ApptWaiting,
	}
	f.appts.appts[appt.ID] = appt
	f.apptID = appt.ID

	f.svc = NewService(f.visits, f.appts, &mockCodeIssuer{}, f.invoices,
		clock.Fixed{T: f.now}, 100000, passthroughTx, zerolog.Nop())
	return f
}

func (f *fixture) checkIn(t *testing.T) *Visit {
	t.Helper()
	v, err := f.svc.CheckIn(context.Background(), f.apptID, nil)
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	return v
}

// -- CheckIn --

func TestCheckIn(t *testing.T) {
	f := newFixture(t)
	v := f.checkIn(t)

	if v.Status != VisitWaiting {
		t.Errorf("status = %s, want WAITING", v.Status)
	}
	if v.Code != "VST-20260310-00001" {
		t.Errorf("code = %s", v.Code)
	}
	if !v.CheckedInAt.Equal(f.now) {
		t.Errorf("checked in at %v, want %v", v.CheckedInAt, f.now)
	}
	appt := f.appts.appts[f.apptID]
	if appt.Status != scheduling.ApptCheckedIn {
		t.Errorf("appointment status = %s, want CHECKED_IN", appt.Status)
	}
	if v.PatientID != appt.PatientID || v.DoctorID != appt.DoctorID {
		t.Error("visit should copy patient and doctor from the appointment")
	}
}

func TestCheckInDuplicate(t *testing.T) {
	f := newFixture(t)
	f.checkIn(t)
	// A second check-in would need the appointment back in WAITING; force it
	// to isolate the duplicate-visit guard.
	f.appts.appts[f.apptID].Status = scheduling.ApptWaiting

	_, err := f.svc.CheckIn(context.Background(), f.apptID, nil)
	if !errors.Is(err, ErrVisitAlreadyExists) {
		t.Fatalf("err = %v, want ErrVisitAlreadyExists", err)
	}
}

func TestCheckInTooOld(t *testing.T) {
	f := newFixture(t)
	// Yesterday is still allowed; two days ago is not.
	f.appts.appts[f.apptID].Date = time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	f.checkIn(t)

	stale := &scheduling.Appointment{
		ID:     uuid.New(),
		Date:   time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC),
		Status: scheduling.ApptWaiting,
	}
	f.appts.appts[stale.ID] = stale
	_, err := f.svc.CheckIn(context.Background(), stale.ID, nil)
	if !errors.Is(err, scheduling.ErrAppointmentTooOld) {
		t.Fatalf("err = %v, want ErrAppointmentTooOld", err)
	}
}

func TestCheckInCancelledAppointment(t *testing.T) {
	f := newFixture(t)
	f.appts.appts[f.apptID].Status = scheduling.ApptCancelled

	_, err := f.svc.CheckIn(context.Background(), f.apptID, nil)
	var tErr *lifecycle.TransitionError
	if !errors.As(err, &tErr) {
		t.Fatalf("err = %v, want TransitionError", err)
	}
}

// -- Examination flow --

func TestExaminationFlow(t *testing.T) {
	f := newFixture(t)
	v := f.checkIn(t)

	v, err := f.svc.StartExamination(context.Background(), v.ID)
	if err != nil {
		t.Fatalf("StartExamination: %v", err)
	}
	if v.Status != VisitExamining {
		t.Errorf("status = %s, want EXAMINING", v.Status)
	}
	if got := f.appts.appts[f.apptID].Status; got != scheduling.ApptInProgress {
		t.Errorf("appointment status = %s, want IN_PROGRESS", got)
	}

	v, err = f.svc.Complete(context.Background(), v.ID, "acute bronchitis", nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if v.Status != VisitExamined {
		t.Errorf("status = %s, want EXAMINED", v.Status)
	}
	if v.Diagnosis == nil || *v.Diagnosis != "acute bronchitis" {
		t.Errorf("diagnosis = %v", v.Diagnosis)
	}
	if v.SignatureHash == nil || len(*v.SignatureHash) != 64 {
		t.Errorf("signature = %v, want 64 hex chars", v.SignatureHash)
	}
	if v.SignedAt == nil || !v.SignedAt.Equal(f.now) {
		t.Errorf("signed at = %v", v.SignedAt)
	}
	if len(f.invoices.calls) != 1 || f.invoices.calls[0] != v.ID {
		t.Errorf("invoice calls = %v, want one for the visit", f.invoices.calls)
	}

	v, err = f.svc.Close(context.Background(), v.ID)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if v.Status != VisitCompleted {
		t.Errorf("status = %s, want COMPLETED", v.Status)
	}
	if got := f.appts.appts[f.apptID].Status; got != scheduling.ApptCompleted {
		t.Errorf("appointment status = %s, want COMPLETED", got)
	}
}

func TestCompleteRequiresDiagnosis(t *testing.T) {
	f := newFixture(t)
	v := f.checkIn(t)
	if _, err := f.svc.StartExamination(context.Background(), v.ID); err != nil {
		t.Fatal(err)
	}
	_, err := f.svc.Complete(context.Background(), v.ID, "", nil)
	if !errors.Is(err, ErrDiagnosisMissing) {
		t.Fatalf("err = %v, want ErrDiagnosisMissing", err)
	}
}

func TestCompleteSkipsIllegalStates(t *testing.T) {
	f := newFixture(t)
	v := f.checkIn(t)

	// EXAMINED straight from WAITING is illegal.
	_, err := f.svc.Complete(context.Background(), v.ID, "flu", nil)
	var tErr *lifecycle.TransitionError
	if !errors.As(err, &tErr) {
		t.Fatalf("err = %v, want TransitionError", err)
	}
	if tErr.From != string(VisitWaiting) || tErr.To != string(VisitExamined) {
		t.Errorf("transition error %s -> %s", tErr.From, tErr.To)
	}
}

func TestCloseBeforeExamined(t *testing.T) {
	f := newFixture(t)
	v := f.checkIn(t)
	_, err := f.svc.Close(context.Background(), v.ID)
	var tErr *lifecycle.TransitionError
	if !errors.As(err, &tErr) {
		t.Fatalf("err = %v, want TransitionError", err)
	}
}

func TestCancelWaitingVisit(t *testing.T) {
	f := newFixture(t)
	v := f.checkIn(t)

	v, err := f.svc.Cancel(context.Background(), v.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if v.Status != VisitCancelled {
		t.Errorf("status = %s, want CANCELLED", v.Status)
	}
	if got := f.appts.appts[f.apptID].Status; got != scheduling.ApptNoShow {
		t.Errorf("appointment status = %s, want NO_SHOW", got)
	}
}

func TestCancelExaminingVisitKeepsAppointment(t *testing.T) {
	f := newFixture(t)
	v := f.checkIn(t)
	if _, err := f.svc.StartExamination(context.Background(), v.ID); err != nil {
		t.Fatal(err)
	}

	v, err := f.svc.Cancel(context.Background(), v.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if v.Status != VisitCancelled {
		t.Errorf("status = %s, want CANCELLED", v.Status)
	}
	// The examination had started, so the appointment stays IN_PROGRESS.
	if got := f.appts.appts[f.apptID].Status; got != scheduling.ApptInProgress {
		t.Errorf("appointment status = %s, want IN_PROGRESS", got)
	}
}

func TestCancelExaminedVisit(t *testing.T) {
	f := newFixture(t)
	v := f.checkIn(t)
	if _, err := f.svc.StartExamination(context.Background(), v.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Complete(context.Background(), v.ID, "flu", nil); err != nil {
		t.Fatal(err)
	}

	_, err := f.svc.Cancel(context.Background(), v.ID)
	var tErr *lifecycle.TransitionError
	if !errors.As(err, &tErr) {
		t.Fatalf("err = %v, want TransitionError", err)
	}
}

func TestClosedVisitRejectsAllMutations(t *testing.T) {
	f := newFixture(t)
	v := f.checkIn(t)
	if _, err := f.svc.StartExamination(context.Background(), v.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Complete(context.Background(), v.ID, "flu", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Close(context.Background(), v.ID); err != nil {
		t.Fatal(err)
	}

	// Close again would be a legal self transition; the closed guard still
	// rejects it.
	if _, err := f.svc.Close(context.Background(), v.ID); !errors.Is(err, ErrVisitClosed) {
		t.Errorf("Close on closed visit: err = %v, want ErrVisitClosed", err)
	}
	if _, err := f.svc.StartExamination(context.Background(), v.ID); !errors.Is(err, ErrVisitClosed) {
		t.Errorf("StartExamination on closed visit: err = %v, want ErrVisitClosed", err)
	}
	if _, err := f.svc.Cancel(context.Background(), v.ID); !errors.Is(err, ErrVisitClosed) {
		t.Errorf("Cancel on closed visit: err = %v, want ErrVisitClosed", err)
	}
}

func TestInvoiceFailureDoesNotFailComplete(t *testing.T) {
	f := newFixture(t)
	v := f.checkIn(t)
	if _, err := f.svc.StartExamination(context.Background(), v.ID); err != nil {
		t.Fatal(err)
	}
	f.invoices.fail = true

	v, err := f.svc.Complete(context.Background(), v.ID, "flu", nil)
	if err != nil {
		t.Fatalf("Complete should succeed despite invoice failure: %v", err)
	}
	if v.Status != VisitExamined {
		t.Errorf("status = %s, want EXAMINED", v.Status)
	}
	stored, _ := f.visits.GetByID(context.Background(), v.ID)
	if stored.Status != VisitExamined {
		t.Errorf("persisted status = %s, want EXAMINED", stored.Status)
	}
}

func TestSignatureTiesToDiagnosis(t *testing.T) {
	v := &Visit{ID: uuid.New(), DoctorID: uuid.New(), PatientID: uuid.New()}
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	a := signDiagnosis(v, "flu", at)
	b := signDiagnosis(v, "cold", at)
	if a == b {
		t.Error("different diagnoses must produce different signatures")
	}
	if a != signDiagnosis(v, "flu", at) {
		t.Error("signature must be deterministic")
	}
}
