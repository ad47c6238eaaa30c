package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ads/dental/internal/domain/billing"
	"github.com/ads/dental/internal/domain/directory"
	"github.com/ads/dental/internal/domain/scheduling"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type memPatients struct {
	rows map[uuid.UUID]*directory.Patient
}

func (m *memPatients) Create(_ context.Context, p *directory.Patient) error {
	if _, ok := m.rows[p.ID]; !ok {
		m.rows[p.ID] = p
	}
	return nil
}

func (m *memPatients) GetByID(_ context.Context, id uuid.UUID) (*directory.Patient, error) {
	if p, ok := m.rows[id]; ok {
		return p, nil
	}
	return nil, errors.New("not found")
}

type memDentists struct {
	rows map[uuid.UUID]*directory.Dentist
}

func (m *memDentists) Create(_ context.Context, d *directory.Dentist) error {
	if _, ok := m.rows[d.ID]; !ok {
		m.rows[d.ID] = d
	}
	return nil
}

func (m *memDentists) GetByID(_ context.Context, id uuid.UUID) (*directory.Dentist, error) {
	if d, ok := m.rows[id]; ok {
		return d, nil
	}
	return nil, errors.New("not found")
}

type memSurgeries struct {
	rows map[uuid.UUID]*directory.Surgery
	err  error
}

func (m *memSurgeries) Create(_ context.Context, s *directory.Surgery) error {
	if m.err != nil {
		return m.err
	}
	if _, ok := m.rows[s.ID]; !ok {
		m.rows[s.ID] = s
	}
	return nil
}

func (m *memSurgeries) GetByID(_ context.Context, id uuid.UUID) (*directory.Surgery, error) {
	if s, ok := m.rows[id]; ok {
		return s, nil
	}
	return nil, errors.New("not found")
}

type fakeBooker struct {
	booked     []scheduling.CreateRequest
	byPatient  map[uuid.UUID]int
	bills      []scheduling.BillRequest
	payments   []decimal.Decimal
	rejectFrom int // reject bookings after this many, 0 disables
}

func newFakeBooker() *fakeBooker {
	return &fakeBooker{byPatient: map[uuid.UUID]int{}}
}

func (f *fakeBooker) CreateAppointment(_ context.Context, caller scheduling.Caller, req scheduling.CreateRequest) (*scheduling.Appointment, error) {
	if !caller.IsOperator() {
		return nil, scheduling.ErrForbidden
	}
	if f.rejectFrom > 0 && len(f.booked) >= f.rejectFrom {
		return nil, &scheduling.CapacityExceededError{DentistID: *req.DentistID, Limit: f.rejectFrom}
	}
	a, err := scheduling.NewAppointment(req.DateTime, req.PatientID, req.DentistID, req.SurgeryID,
		scheduling.StatusScheduled, time.Now())
	if err != nil {
		return nil, err
	}
	f.booked = append(f.booked, req)
	f.byPatient[req.PatientID]++
	return a, nil
}

func (f *fakeBooker) GenerateBill(_ context.Context, _ scheduling.Caller, _ uuid.UUID, req scheduling.BillRequest) (*billing.Bill, error) {
	f.bills = append(f.bills, req)
	return nil, nil
}

func (f *fakeBooker) MakePayment(_ context.Context, _ scheduling.Caller, _ uuid.UUID, amount decimal.Decimal) (billing.Payment, error) {
	f.payments = append(f.payments, amount)
	return billing.Payment{}, nil
}

func (f *fakeBooker) ListByPatient(_ context.Context, _ scheduling.Caller, patientID uuid.UUID, _, _ int) ([]*scheduling.Appointment, int, error) {
	return nil, f.byPatient[patientID], nil
}

type seedFixture struct {
	seeder    *Seeder
	patients  *memPatients
	dentists  *memDentists
	surgeries *memSurgeries
	booker    *fakeBooker
}

func newSeedFixture() *seedFixture {
	f := &seedFixture{
		patients:  &memPatients{rows: map[uuid.UUID]*directory.Patient{}},
		dentists:  &memDentists{rows: map[uuid.UUID]*directory.Dentist{}},
		surgeries: &memSurgeries{rows: map[uuid.UUID]*directory.Surgery{}},
		booker:    newFakeBooker(),
	}
	f.seeder = NewSeeder(f.patients, f.dentists, f.surgeries, f.booker, zerolog.Nop())
	f.seeder.now = func() time.Time { return time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC) }
	return f
}

// ---------------------------------------------------------------------------
// Seeder tests
// ---------------------------------------------------------------------------

func TestSeeder_Seed(t *testing.T) {
	f := newSeedFixture()

	result, err := f.seeder.Seed(context.Background(), DefaultSeedConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Surgeries != 3 || result.Dentists != 3 || result.Patients != 4 {
		t.Fatalf("unexpected directory counts: %+v", result)
	}
	if result.Appointments != len(demoVisits) {
		t.Fatalf("expected %d appointments, got %d", len(demoVisits), result.Appointments)
	}
	if result.Bills != 1 || result.Payments != 1 {
		t.Fatalf("expected one bill and one payment, got %+v", result)
	}
	if len(f.patients.rows) != 4 || len(f.dentists.rows) != 3 || len(f.surgeries.rows) != 3 {
		t.Fatal("expected directory rows to be stored")
	}

	bill := f.booker.bills[0]
	if !bill.Amount.Equal(decimal.RequireFromString("234.85")) || bill.CurrencyCode != "USD" || bill.CurrencySymbol != "$" {
		t.Fatalf("unexpected bill request: %+v", bill)
	}
	if !f.booker.payments[0].Equal(decimal.RequireFromString("104.85")) {
		t.Fatalf("unexpected payment: %s", f.booker.payments[0])
	}
}

func TestSeeder_Seed_AppointmentsFallInFollowingWeek(t *testing.T) {
	f := newSeedFixture()

	if _, err := f.seeder.Seed(context.Background(), DefaultSeedConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	weekStart := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	weekEnd := weekStart.AddDate(0, 0, 7)
	for _, req := range f.booker.booked {
		if req.DateTime.Before(weekStart) || !req.DateTime.Before(weekEnd) {
			t.Fatalf("appointment %s outside week of %s", req.DateTime, weekStart)
		}
	}
	first := f.booker.booked[0]
	if want := time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC); !first.DateTime.Equal(want) {
		t.Fatalf("expected first appointment at %s, got %s", want, first.DateTime)
	}
	if first.PatientID != seedID("patient", "gillian@clinic.com") {
		t.Fatal("expected first appointment for the first demo patient")
	}
}

func TestSeeder_Seed_DentistWithinCapacity(t *testing.T) {
	f := newSeedFixture()
	if _, err := f.seeder.Seed(context.Background(), DefaultSeedConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	perDentist := map[uuid.UUID]int{}
	for _, req := range f.booker.booked {
		perDentist[*req.DentistID]++
	}
	for id, n := range perDentist {
		if n > scheduling.WeeklyDentistCapacity {
			t.Fatalf("dentist %s booked %d times", id, n)
		}
	}
}

func TestSeeder_Seed_Idempotent(t *testing.T) {
	f := newSeedFixture()
	ctx := context.Background()

	if _, err := f.seeder.Seed(ctx, DefaultSeedConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := f.seeder.Seed(ctx, DefaultSeedConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Appointments != 0 || result.Bills != 0 {
		t.Fatalf("expected second run to skip appointments, got %+v", result)
	}
	if len(result.Skipped) != 1 {
		t.Fatalf("expected one skip note, got %v", result.Skipped)
	}
	if len(f.booker.booked) != len(demoVisits) {
		t.Fatalf("expected %d bookings in total, got %d", len(demoVisits), len(f.booker.booked))
	}
	if len(f.patients.rows) != 4 {
		t.Fatalf("expected 4 patients after re-seed, got %d", len(f.patients.rows))
	}
}

func TestSeeder_Seed_DirectoryOnly(t *testing.T) {
	f := newSeedFixture()

	result, err := f.seeder.Seed(context.Background(), SeedConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Appointments != 0 || len(f.booker.booked) != 0 {
		t.Fatal("expected no appointments")
	}
	if result.Patients != 4 {
		t.Fatalf("expected 4 patients, got %d", result.Patients)
	}
}

func TestSeeder_Seed_SkipsRejectedBookings(t *testing.T) {
	f := newSeedFixture()
	f.booker.rejectFrom = 3

	result, err := f.seeder.Seed(context.Background(), DefaultSeedConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Appointments != 3 {
		t.Fatalf("expected 3 appointments, got %d", result.Appointments)
	}
	if len(result.Skipped) != len(demoVisits)-3 {
		t.Fatalf("expected %d skipped, got %d", len(demoVisits)-3, len(result.Skipped))
	}
}

func TestSeeder_Seed_DirectoryError(t *testing.T) {
	f := newSeedFixture()
	f.surgeries.err = errors.New("connection refused")

	if _, err := f.seeder.Seed(context.Background(), DefaultSeedConfig()); err == nil {
		t.Fatal("expected error")
	} else if !strings.Contains(err.Error(), "seed surgery S10") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSeedID_Deterministic(t *testing.T) {
	if seedID("patient", "a@b.c") != seedID("patient", "a@b.c") {
		t.Fatal("expected equal ids")
	}
	if seedID("patient", "a@b.c") == seedID("dentist", "a@b.c") {
		t.Fatal("expected kind to change the id")
	}
}

// ---------------------------------------------------------------------------
// SeedHandler tests
// ---------------------------------------------------------------------------

func TestSeedHandler_Seed(t *testing.T) {
	f := newSeedFixture()
	h := NewSeedHandler(f.seeder)
	e := echo.New()
	h.RegisterRoutes(e.Group("/sandbox"))

	req := httptest.NewRequest(http.MethodPost, "/sandbox/seed", strings.NewReader(`{"appointments":false}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result SeedResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Patients != 4 || result.Appointments != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestSeedHandler_Seed_Error(t *testing.T) {
	f := newSeedFixture()
	f.surgeries.err = errors.New("boom")
	h := NewSeedHandler(f.seeder)
	e := echo.New()
	h.RegisterRoutes(e.Group("/sandbox"))

	req := httptest.NewRequest(http.MethodPost, "/sandbox/seed", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
