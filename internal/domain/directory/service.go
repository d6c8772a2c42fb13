package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound  = errors.New("doctor not found")
	ErrPatientNotFound = errors.New("patient not found")
)

type Service struct {
	doctors  DoctorRepository
	patients PatientRepository
}

func NewService(doctors DoctorRepository, patients PatientRepository) *Service {
	return &Service{doctors: doctors, patients: patients}
}

// -- Doctor --

func (s *Service) CreateDoctor(ctx context.Context, d *Doctor) error {
	if d.FullName == "" {
		return fmt.Errorf("full_name is required")
	}
	if d.Specialty == "" {
		return fmt.Errorf("specialty is required")
	}
	if d.Status == "" {
		d.Status = DoctorActive
	}
	if d.Status != DoctorActive && d.Status != DoctorInactive {
		return fmt.Errorf("invalid doctor status: %s", d.Status)
	}
	return s.doctors.Create(ctx, d)
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return nil, ErrDoctorNotFound
	}
	return d, nil
}

func (s *Service) UpdateDoctor(ctx context.Context, d *Doctor) error {
	if d.Status != "" && d.Status != DoctorActive && d.Status != DoctorInactive {
		return fmt.Errorf("invalid doctor status: %s", d.Status)
	}
	return s.doctors.Update(ctx, d)
}

// DeactivateDoctor flips the doctor to INACTIVE so no new appointments can be
// booked with them. Existing appointments are untouched.
func (s *Service) DeactivateDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return nil, ErrDoctorNotFound
	}
	d.Status = DoctorInactive
	if err := s.doctors.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) SearchDoctors(ctx context.Context, params map[string]string, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.Search(ctx, params, limit, offset)
}

// -- Patient --

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if p.FullName == "" {
		return fmt.Errorf("full_name is required")
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, ErrPatientNotFound
	}
	return p, nil
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	return s.patients.Update(ctx, p)
}

func (s *Service) SearchPatients(ctx context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error) {
	return s.patients.Search(ctx, params, limit, offset)
}
