package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ads/dental/internal/domain/billing"
	"github.com/ads/dental/internal/domain/directory"
)

// Filter narrows ListAppointments. Zero fields are ignored.
type Filter struct {
	Date           *time.Time
	Status         Status
	PatientEmail   string
	DentistEmail   string
	SurgeryCity    string
	SurgeryCountry string
	PaymentStatus  billing.PaymentStatus

	// set by the service from Date in the clinic location
	from, to time.Time
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	// Update stores the appointment together with its bill and any new payments.
	Update(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
	ListByDentist(ctx context.Context, dentistID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
	ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Appointment, int, error)
	Search(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error)
	// AllForPatient returns every appointment of the patient with bills loaded.
	AllForPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error)
	// CountForDentistInRange counts appointments with start <= date_time <= end,
	// skipping excludeID when it is not uuid.Nil.
	CountForDentistInRange(ctx context.Context, dentistID uuid.UUID, start, end time.Time, excludeID uuid.UUID) (int, error)
	ListWithOverdueBills(ctx context.Context, today time.Time) ([]*Appointment, error)
}

type PatientLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*directory.Patient, error)
}

type DentistLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*directory.Dentist, error)
}

type SurgeryLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*directory.Surgery, error)
}

// TxRunner runs fn as one atomic unit of work.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
