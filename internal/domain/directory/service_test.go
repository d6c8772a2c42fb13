package directory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

// -- Mock Repositories --

type mockDoctorRepo struct {
	doctors map[uuid.UUID]*Doctor
}

func newMockDoctorRepo() *mockDoctorRepo {
	return &mockDoctorRepo{doctors: make(map[uuid.UUID]*Doctor)}
}

func (m *mockDoctorRepo) Create(_ context.Context, d *Doctor) error {
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	d.UpdatedAt = time.Now()
	m.doctors[d.ID] = d
	return nil
}

func (m *mockDoctorRepo) GetByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	d, ok := m.doctors[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return d, nil
}

func (m *mockDoctorRepo) Update(_ context.Context, d *Doctor) error {
	m.doctors[d.ID] = d
	return nil
}

func (m *mockDoctorRepo) ListBySpecialty(_ context.Context, specialty string, limit, offset int) ([]*Doctor, int, error) {
	var result []*Doctor
	for _, d := range m.doctors {
		if d.Specialty == specialty {
			result = append(result, d)
		}
	}
	return result, len(result), nil
}

func (m *mockDoctorRepo) Search(_ context.Context, _ map[string]string, limit, offset int) ([]*Doctor, int, error) {
	var result []*Doctor
	for _, d := range m.doctors {
		result = append(result, d)
	}
	return result, len(result), nil
}

type mockPatientRepo struct {
	patients map[uuid.UUID]*Patient
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = time.Now()
	m.patients[p.ID] = p
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return p, nil
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	m.patients[p.ID] = p
	return nil
}

func (m *mockPatientRepo) Search(_ context.Context, _ map[string]string, limit, offset int) ([]*Patient, int, error) {
	var result []*Patient
	for _, p := range m.patients {
		result = append(result, p)
	}
	return result, len(result), nil
}

func newTestService() (*Service, *mockDoctorRepo, *mockPatientRepo) {
	doctors := newMockDoctorRepo()
	patients := newMockPatientRepo()
	return NewService(doctors, patients), doctors, patients
}

// -- Tests --

func TestCreateDoctor(t *testing.T) {
	svc, _, _ := newTestService()

	d := &Doctor{FullName: "Dr. Lam", Specialty: "cardiology"}
	if err := svc.CreateDoctor(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ID == uuid.Nil {
		t.Error("expected assigned id")
	}
	if d.Status != DoctorActive {
		t.Errorf("expected default status ACTIVE, got %s", d.Status)
	}
}

func TestCreateDoctor_Validation(t *testing.T) {
	svc, _, _ := newTestService()

	if err := svc.CreateDoctor(context.Background(), &Doctor{Specialty: "cardiology"}); err == nil {
		t.Error("expected error for missing name")
	}
	if err := svc.CreateDoctor(context.Background(), &Doctor{FullName: "Dr. Lam"}); err == nil {
		t.Error("expected error for missing specialty")
	}
	if err := svc.CreateDoctor(context.Background(), &Doctor{FullName: "Dr. Lam", Specialty: "cardiology", Status: "RETIRED"}); err == nil {
		t.Error("expected error for invalid status")
	}
}

func TestDeactivateDoctor(t *testing.T) {
	svc, _, _ := newTestService()

	d := &Doctor{FullName: "Dr. Lam", Specialty: "cardiology"}
	if err := svc.CreateDoctor(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := svc.DeactivateDoctor(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != DoctorInactive {
		t.Errorf("expected INACTIVE, got %s", got.Status)
	}
}

func TestDeactivateDoctor_NotFound(t *testing.T) {
	svc, _, _ := newTestService()

	if _, err := svc.DeactivateDoctor(context.Background(), uuid.New()); err != ErrDoctorNotFound {
		t.Errorf("expected ErrDoctorNotFound, got %v", err)
	}
}

func TestCreatePatient(t *testing.T) {
	svc, _, _ := newTestService()

	p := &Patient{FullName: "Tran Van A"}
	if err := svc.CreatePatient(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID == uuid.Nil {
		t.Error("expected assigned id")
	}

	if err := svc.CreatePatient(context.Background(), &Patient{}); err == nil {
		t.Error("expected error for missing name")
	}
}

func TestGetPatient_NotFound(t *testing.T) {
	svc, _, _ := newTestService()

	if _, err := svc.GetPatient(context.Background(), uuid.New()); err != ErrPatientNotFound {
		t.Errorf("expected ErrPatientNotFound, got %v", err)
	}
}
