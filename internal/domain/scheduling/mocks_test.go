package scheduling

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ads/dental/internal/domain/directory"
	"github.com/ads/dental/internal/platform/db"
)

// -- Mock Repositories --

type mockAppointmentRepo struct {
	appts map[uuid.UUID]*Appointment
	// last filter passed to Search
	lastFilter Filter
}

func newMockAppointmentRepo() *mockAppointmentRepo {
	return &mockAppointmentRepo{appts: make(map[uuid.UUID]*Appointment)}
}

func (m *mockAppointmentRepo) Create(_ context.Context, a *Appointment) error {
	if _, ok := m.appts[a.ID()]; ok {
		return fmt.Errorf("duplicate appointment %s", a.ID())
	}
	m.appts[a.ID()] = a
	return nil
}

func (m *mockAppointmentRepo) Update(_ context.Context, a *Appointment) error {
	if _, ok := m.appts[a.ID()]; !ok {
		return fmt.Errorf("update appointment %s: %w", a.ID(), db.ErrNotFound)
	}
	m.appts[a.ID()] = a
	return nil
}

func (m *mockAppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := m.appts[id]
	if !ok {
		return nil, fmt.Errorf("get appointment %s: %w", id, db.ErrNotFound)
	}
	return a, nil
}

func (m *mockAppointmentRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.appts[id]; !ok {
		return fmt.Errorf("delete appointment %s: %w", id, db.ErrNotFound)
	}
	delete(m.appts, id)
	return nil
}

func (m *mockAppointmentRepo) where(keep func(*Appointment) bool) []*Appointment {
	var result []*Appointment
	for _, a := range m.appts {
		if keep(a) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DateTime().Before(result[j].DateTime()) })
	return result
}

func page(items []*Appointment, limit, offset int) ([]*Appointment, int, error) {
	total := len(items)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return items[offset:end], total, nil
}

func (m *mockAppointmentRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return page(m.where(func(a *Appointment) bool { return a.PatientID() == patientID }), limit, offset)
}

func (m *mockAppointmentRepo) ListByDentist(_ context.Context, dentistID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return page(m.where(func(a *Appointment) bool { return a.IsAssignedTo(dentistID) }), limit, offset)
}

func (m *mockAppointmentRepo) ListByStatus(_ context.Context, status Status, limit, offset int) ([]*Appointment, int, error) {
	return page(m.where(func(a *Appointment) bool { return a.Status() == status }), limit, offset)
}

func (m *mockAppointmentRepo) Search(_ context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	m.lastFilter = f
	return page(m.where(func(a *Appointment) bool {
		if f.Status != "" && a.Status() != f.Status {
			return false
		}
		if !f.from.IsZero() && (a.DateTime().Before(f.from) || !a.DateTime().Before(f.to)) {
			return false
		}
		if f.PaymentStatus != "" && (a.Bill() == nil || a.Bill().Status() != f.PaymentStatus) {
			return false
		}
		return true
	}), limit, offset)
}

func (m *mockAppointmentRepo) AllForPatient(_ context.Context, patientID uuid.UUID) ([]*Appointment, error) {
	return m.where(func(a *Appointment) bool { return a.PatientID() == patientID }), nil
}

func (m *mockAppointmentRepo) CountForDentistInRange(_ context.Context, dentistID uuid.UUID, start, end time.Time, excludeID uuid.UUID) (int, error) {
	return len(m.where(func(a *Appointment) bool {
		return a.IsAssignedTo(dentistID) && a.ID() != excludeID &&
			!a.DateTime().Before(start) && !a.DateTime().After(end)
	})), nil
}

func (m *mockAppointmentRepo) ListWithOverdueBills(_ context.Context, today time.Time) ([]*Appointment, error) {
	return m.where(func(a *Appointment) bool { return a.Bill() != nil && a.Bill().IsOverdue(today) }), nil
}

type mockPatientRepo struct {
	patients map[uuid.UUID]*directory.Patient
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*directory.Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, fmt.Errorf("get patient %s: %w", id, db.ErrNotFound)
	}
	return p, nil
}

type mockDentistRepo struct {
	dentists map[uuid.UUID]*directory.Dentist
}

func (m *mockDentistRepo) GetByID(_ context.Context, id uuid.UUID) (*directory.Dentist, error) {
	d, ok := m.dentists[id]
	if !ok {
		return nil, fmt.Errorf("get dentist %s: %w", id, db.ErrNotFound)
	}
	return d, nil
}

type mockSurgeryRepo struct {
	surgeries map[uuid.UUID]*directory.Surgery
}

func (m *mockSurgeryRepo) GetByID(_ context.Context, id uuid.UUID) (*directory.Surgery, error) {
	s, ok := m.surgeries[id]
	if !ok {
		return nil, fmt.Errorf("get surgery %s: %w", id, db.ErrNotFound)
	}
	return s, nil
}

// fakeTx runs fn directly and counts the units of work.
type fakeTx struct {
	calls int
}

func (f *fakeTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

// -- Fixture --

// Wednesday of the ISO week starting Monday 2026-03-02.
var testNow = time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	appts    *mockAppointmentRepo
	tx       *fakeTx
	patient  *directory.Patient
	other    *directory.Patient
	dentist  *directory.Dentist
	dentist2 *directory.Dentist
	surgery  *directory.Surgery
	now      time.Time
}

func newFixture() *fixture {
	f := &fixture{
		appts:    newMockAppointmentRepo(),
		tx:       &fakeTx{},
		patient:  &directory.Patient{ID: uuid.New(), FirstName: "Gillian", LastName: "White", Email: "gillian.white@example.com"},
		other:    &directory.Patient{ID: uuid.New(), FirstName: "Jill", LastName: "Bell", Email: "jill.bell@example.com"},
		dentist:  &directory.Dentist{ID: uuid.New(), FirstName: "Tony", LastName: "Smith", Email: "tony.smith@example.com"},
		dentist2: &directory.Dentist{ID: uuid.New(), FirstName: "Helen", LastName: "Pearson", Email: "helen.pearson@example.com"},
		surgery:  &directory.Surgery{ID: uuid.New(), Name: "S15"},
		now:      testNow,
	}
	patients := &mockPatientRepo{patients: map[uuid.UUID]*directory.Patient{f.patient.ID: f.patient, f.other.ID: f.other}}
	dentists := &mockDentistRepo{dentists: map[uuid.UUID]*directory.Dentist{f.dentist.ID: f.dentist, f.dentist2.ID: f.dentist2}}
	surgeries := &mockSurgeryRepo{surgeries: map[uuid.UUID]*directory.Surgery{f.surgery.ID: f.surgery}}

	f.svc = NewService(f.appts, patients, dentists, surgeries, f.tx, DefaultPolicy(), zerolog.Nop())
	f.svc.SetClock(func() time.Time { return f.now })
	return f
}

func newTestService() *Service {
	return newFixture().svc
}

func operator() Caller { return OfficeManager("office-1") }

func patientCaller(p *directory.Patient) Caller {
	return Caller{ID: p.ID.String(), Email: p.Email, Role: RolePatient}
}

func dentistCaller(d *directory.Dentist) Caller {
	return Caller{ID: d.ID.String(), Email: d.Email, Role: RoleDentist}
}

func (f *fixture) request(at time.Time, dentist *directory.Dentist) CreateRequest {
	req := CreateRequest{DateTime: at, PatientID: f.patient.ID, SurgeryID: f.surgery.ID}
	if dentist != nil {
		id := dentist.ID
		req.DentistID = &id
	}
	return req
}
