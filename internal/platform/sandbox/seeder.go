// Package sandbox seeds a demo clinic: surgeries, dentists, patients and a
// week of appointments with one partly paid bill.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ads/dental/internal/domain/billing"
	"github.com/ads/dental/internal/domain/directory"
	"github.com/ads/dental/internal/domain/scheduling"
)

// seedNamespace derives stable ids so seeding twice leaves one copy of each row.
var seedNamespace = uuid.MustParse("5b0c7a52-6f0e-4b8e-9d55-3c1f3f8e2a10")

func seedID(kind, key string) uuid.UUID {
	return uuid.NewSHA1(seedNamespace, []byte(kind+":"+key))
}

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// SeedConfig controls what is generated.
type SeedConfig struct {
	Appointments bool `json:"appointments"`
	// Anchor picks the week the demo appointments fall in: the Monday after it.
	Anchor time.Time `json:"anchor"`
}

func DefaultSeedConfig() SeedConfig {
	return SeedConfig{Appointments: true}
}

// SeedResult summarizes the output of a seed operation.
type SeedResult struct {
	Surgeries    int           `json:"surgeries"`
	Dentists     int           `json:"dentists"`
	Patients     int           `json:"patients"`
	Appointments int           `json:"appointments"`
	Bills        int           `json:"bills"`
	Payments     int           `json:"payments"`
	Skipped      []string      `json:"skipped,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// ---------------------------------------------------------------------------
// Demo data
// ---------------------------------------------------------------------------

func strPtr(s string) *string { return &s }

func address(country, city, zip, street string) directory.Address {
	return directory.Address{Country: strPtr(country), City: strPtr(city), ZipCode: strPtr(zip), Street: strPtr(street)}
}

func demoSurgeries() []*directory.Surgery {
	mk := func(name, phone string, addr directory.Address) *directory.Surgery {
		return &directory.Surgery{ID: seedID("surgery", name), Name: name, Phone: strPtr(phone), Address: addr}
	}
	return []*directory.Surgery{
		mk("S10", "1234567890", address("United States", "New York", "54332", "New York ST")),
		mk("S13", "1234567891", address("United States", "Fairfield", "5555", "fairfield ST")),
		mk("S15", "1234567892", address("Germany", "Munich", "12345", "Munich St")),
	}
}

func demoDentists() []*directory.Dentist {
	mk := func(first, last, phone, email, spec string) *directory.Dentist {
		return &directory.Dentist{
			ID: seedID("dentist", email), FirstName: first, LastName: last,
			Email: email, Phone: strPtr(phone), Specialization: strPtr(spec),
		}
	}
	return []*directory.Dentist{
		mk("Tony", "Smith", "1111", "tony@clinic.com", "Oral Health"),
		mk("Helen", "Pearson", "1112", "helen@clinic.com", "Orthodontics"),
		mk("Robin", "Plevin", "1113", "robin@clinic.com", "Cosmetic Dentistry"),
	}
}

func demoPatients() []*directory.Patient {
	mk := func(first, last, phone, email string, y int, m time.Month, d int) *directory.Patient {
		dob := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		return &directory.Patient{
			ID: seedID("patient", email), FirstName: first, LastName: last,
			Email: email, Phone: strPtr(phone), DateOfBirth: &dob,
		}
	}
	return []*directory.Patient{
		mk("Gillian", "White", "2221", "gillian@clinic.com", 1990, time.May, 10),
		mk("Jill", "Bell", "2222", "jill@clinic.com", 1985, time.February, 12),
		mk("Ian", "MacKay", "2223", "ian@clinic.com", 1978, time.August, 19),
		mk("John", "Walker", "2224", "john@clinic.com", 1992, time.January, 25),
	}
}

// demoVisit is one booking: day offset from Monday, hour and minute, and
// indexes into the demo patients, dentists and surgeries.
type demoVisit struct {
	day, hour, minute         int
	patient, dentist, surgery int
}

var demoVisits = []demoVisit{
	{3, 10, 0, 0, 0, 2},  // Gillian, Tony, S15
	{3, 12, 0, 1, 0, 2},  // Jill, Tony, S15
	{3, 10, 0, 2, 1, 0},  // Ian, Helen, S10
	{5, 14, 0, 2, 1, 0},  // Ian, Helen, S10
	{1, 16, 30, 1, 2, 2}, // Jill, Robin, S15
	{6, 18, 0, 3, 2, 1},  // John, Robin, S13
	{3, 10, 0, 2, 2, 1},  // Ian, Robin, S13
	{4, 19, 0, 3, 2, 1},  // John, Robin, S13
	{5, 18, 0, 1, 2, 1},  // Jill, Robin, S13
}

// ---------------------------------------------------------------------------
// Seeder
// ---------------------------------------------------------------------------

// Booker is the part of the scheduling service the seeder drives.
type Booker interface {
	CreateAppointment(ctx context.Context, caller scheduling.Caller, req scheduling.CreateRequest) (*scheduling.Appointment, error)
	GenerateBill(ctx context.Context, caller scheduling.Caller, appointmentID uuid.UUID, req scheduling.BillRequest) (*billing.Bill, error)
	MakePayment(ctx context.Context, caller scheduling.Caller, appointmentID uuid.UUID, amount decimal.Decimal) (billing.Payment, error)
	ListByPatient(ctx context.Context, caller scheduling.Caller, patientID uuid.UUID, limit, offset int) ([]*scheduling.Appointment, int, error)
}

// Seeder writes the demo clinic through the repositories and the scheduling
// service, so every booking passes the same rules as a live one.
type Seeder struct {
	patients  directory.PatientRepository
	dentists  directory.DentistRepository
	surgeries directory.SurgeryRepository
	booker    Booker
	logger    zerolog.Logger
	now       func() time.Time
}

func NewSeeder(patients directory.PatientRepository, dentists directory.DentistRepository,
	surgeries directory.SurgeryRepository, booker Booker, logger zerolog.Logger) *Seeder {
	return &Seeder{
		patients:  patients,
		dentists:  dentists,
		surgeries: surgeries,
		booker:    booker,
		logger:    logger.With().Str("component", "sandbox").Logger(),
		now:       time.Now,
	}
}

var seedOperator = scheduling.OfficeManager("sandbox-seeder")

// Seed creates the demo data. Directory rows are idempotent; appointments are
// only booked when the first demo patient has none yet.
func (s *Seeder) Seed(ctx context.Context, cfg SeedConfig) (*SeedResult, error) {
	start := s.now()
	result := &SeedResult{}

	surgeries := demoSurgeries()
	for _, sg := range surgeries {
		if err := s.surgeries.Create(ctx, sg); err != nil {
			return nil, fmt.Errorf("seed surgery %s: %w", sg.Name, err)
		}
		result.Surgeries++
	}
	dentists := demoDentists()
	for _, d := range dentists {
		if err := s.dentists.Create(ctx, d); err != nil {
			return nil, fmt.Errorf("seed dentist %s: %w", d.Email, err)
		}
		result.Dentists++
	}
	patients := demoPatients()
	for _, p := range patients {
		if err := s.patients.Create(ctx, p); err != nil {
			return nil, fmt.Errorf("seed patient %s: %w", p.Email, err)
		}
		result.Patients++
	}

	if cfg.Appointments {
		if err := s.seedAppointments(ctx, cfg, result, patients, dentists, surgeries); err != nil {
			return nil, err
		}
	}

	result.Duration = time.Since(start)
	s.logger.Info().
		Int("surgeries", result.Surgeries).
		Int("dentists", result.Dentists).
		Int("patients", result.Patients).
		Int("appointments", result.Appointments).
		Int("skipped", len(result.Skipped)).
		Msg("sandbox seeded")
	return result, nil
}

func (s *Seeder) seedAppointments(ctx context.Context, cfg SeedConfig, result *SeedResult,
	patients []*directory.Patient, dentists []*directory.Dentist, surgeries []*directory.Surgery) error {
	_, existing, err := s.booker.ListByPatient(ctx, seedOperator, patients[0].ID, 1, 0)
	if err != nil {
		return fmt.Errorf("check existing appointments: %w", err)
	}
	if existing > 0 {
		result.Skipped = append(result.Skipped, "appointments already seeded")
		return nil
	}

	anchor := cfg.Anchor
	if anchor.IsZero() {
		anchor = s.now()
	}
	weekStart, _ := scheduling.WeekBounds(anchor.UTC())
	monday := weekStart.AddDate(0, 0, 7)

	var first *scheduling.Appointment
	for _, v := range demoVisits {
		dentistID := dentists[v.dentist].ID
		at := monday.AddDate(0, 0, v.day).Add(time.Duration(v.hour)*time.Hour + time.Duration(v.minute)*time.Minute)
		a, err := s.booker.CreateAppointment(ctx, seedOperator, scheduling.CreateRequest{
			DateTime:  at,
			PatientID: patients[v.patient].ID,
			DentistID: &dentistID,
			SurgeryID: surgeries[v.surgery].ID,
		})
		if err != nil {
			if errors.Is(err, scheduling.ErrCapacityExceeded) || errors.Is(err, scheduling.ErrOverdueBills) {
				result.Skipped = append(result.Skipped, err.Error())
				continue
			}
			return fmt.Errorf("seed appointment: %w", err)
		}
		result.Appointments++
		if first == nil {
			first = a
		}
	}
	if first == nil {
		return nil
	}

	if _, err := s.booker.GenerateBill(ctx, seedOperator, first.ID(), scheduling.BillRequest{
		Amount:         decimal.RequireFromString("234.85"),
		CurrencyCode:   "USD",
		CurrencySymbol: "$",
		DueDate:        s.now().AddDate(0, 0, 30),
	}); err != nil {
		return fmt.Errorf("seed bill: %w", err)
	}
	result.Bills++

	if _, err := s.booker.MakePayment(ctx, seedOperator, first.ID(), decimal.RequireFromString("104.85")); err != nil {
		return fmt.Errorf("seed payment: %w", err)
	}
	result.Payments++
	return nil
}

// ---------------------------------------------------------------------------
// SeedHandler: Echo HTTP handlers
// ---------------------------------------------------------------------------

// SeedHandler exposes seeding over HTTP in development.
type SeedHandler struct {
	seeder *Seeder
	mu     sync.Mutex
}

func NewSeedHandler(seeder *Seeder) *SeedHandler {
	return &SeedHandler{seeder: seeder}
}

// RegisterRoutes registers sandbox routes on the given Echo group.
func (h *SeedHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/seed", h.handleSeed)
}

func (h *SeedHandler) handleSeed(c echo.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	cfg := DefaultSeedConfig()
	if err := c.Bind(&cfg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.seeder.Seed(c.Request().Context(), cfg)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "seed failed").SetInternal(err)
	}
	return c.JSON(http.StatusOK, result)
}
