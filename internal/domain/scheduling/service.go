package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ads/dental/internal/domain/billing"
	"github.com/ads/dental/internal/domain/directory"
	"github.com/ads/dental/internal/platform/db"
)

type CreateRequest struct {
	DateTime  time.Time  `json:"date_time"`
	PatientID uuid.UUID  `json:"patient_id"`
	DentistID *uuid.UUID `json:"dentist_id,omitempty"`
	SurgeryID uuid.UUID  `json:"surgery_id"`
}

type UpdateRequest struct {
	DateTime  time.Time  `json:"date_time"`
	PatientID uuid.UUID  `json:"patient_id"`
	DentistID *uuid.UUID `json:"dentist_id,omitempty"`
	SurgeryID uuid.UUID  `json:"surgery_id"`
	Status    Status     `json:"status"`
}

type BillRequest struct {
	Amount         decimal.Decimal
	CurrencyCode   string
	CurrencySymbol string
	DueDate        time.Time
}

type CancelResult struct {
	Appointment *Appointment `json:"appointment"`
	Message     string       `json:"message"`
}

// OverdueBill summarises one appointment whose bill is past due.
type OverdueBill struct {
	AppointmentID uuid.UUID             `json:"appointment_id"`
	PatientID     uuid.UUID             `json:"patient_id"`
	BillID        uuid.UUID             `json:"bill_id"`
	DueDate       string                `json:"due_date"`
	Balance       billing.Money         `json:"balance"`
	Status        billing.PaymentStatus `json:"payment_status"`
}

type Service struct {
	appointments AppointmentRepository
	patients     PatientLookup
	dentists     DentistLookup
	surgeries    SurgeryLookup
	tx           TxRunner
	policy       Policy
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(appts AppointmentRepository, patients PatientLookup, dentists DentistLookup, surgeries SurgeryLookup,
	tx TxRunner, policy Policy, logger zerolog.Logger) *Service {
	return &Service{
		appointments: appts,
		patients:     patients,
		dentists:     dentists,
		surgeries:    surgeries,
		tx:           tx,
		policy:       policy,
		logger:       logger.With().Str("component", "scheduling").Logger(),
		now:          time.Now,
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// -- lookups --

func notFound(entity string, id uuid.UUID, err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return &NotFoundError{Entity: entity, ID: id}
	}
	return fmt.Errorf("load %s %s: %w", entity, id, err)
}

func (s *Service) patient(ctx context.Context, id uuid.UUID) (*directory.Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, notFound("patient", id, err)
	}
	return p, nil
}

func (s *Service) dentist(ctx context.Context, id uuid.UUID) (*directory.Dentist, error) {
	d, err := s.dentists.GetByID(ctx, id)
	if err != nil {
		return nil, notFound("dentist", id, err)
	}
	return d, nil
}

func (s *Service) surgery(ctx context.Context, id uuid.UUID) (*directory.Surgery, error) {
	sg, err := s.surgeries.GetByID(ctx, id)
	if err != nil {
		return nil, notFound("surgery", id, err)
	}
	return sg, nil
}

func (s *Service) appointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, notFound("appointment", id, err)
	}
	return a, nil
}

// checkCapacity counts the dentist's appointments in the week of at, leaving
// out exclude.
func (s *Service) checkCapacity(ctx context.Context, dentistID uuid.UUID, at time.Time, exclude uuid.UUID) error {
	start, end := s.policy.Week(at)
	n, err := s.appointments.CountForDentistInRange(ctx, dentistID, start, end, exclude)
	if err != nil {
		return err
	}
	if err := s.policy.CheckCapacity(dentistID, start, n); err != nil {
		s.logger.Info().Str("dentist_id", dentistID.String()).Int("count", n).
			Time("week_start", start).Msg("dentist weekly capacity reached")
		return err
	}
	return nil
}

// -- Appointment lifecycle --

// CreateAppointment books a new appointment. The operator's bookings are
// SCHEDULED straight away; a patient's are REQUESTED.
func (s *Service) CreateAppointment(ctx context.Context, caller Caller, req CreateRequest) (*Appointment, error) {
	if !caller.IsOperator() && caller.Role != RolePatient {
		return nil, ErrForbidden
	}
	if req.DateTime.IsZero() {
		return nil, invalid("date_time", "is required")
	}

	var created *Appointment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		patient, err := s.patient(ctx, req.PatientID)
		if err != nil {
			return err
		}
		if err := authorizeBooking(caller, patient); err != nil {
			return err
		}

		history, err := s.appointments.AllForPatient(ctx, patient.ID)
		if err != nil {
			return err
		}
		if err := s.policy.CheckOverdue(patient.ID, history, s.now()); err != nil {
			s.logger.Info().Str("patient_id", patient.ID.String()).Msg("booking blocked by overdue bills")
			return err
		}

		if req.DentistID != nil && *req.DentistID != uuid.Nil {
			dentist, err := s.dentist(ctx, *req.DentistID)
			if err != nil {
				return err
			}
			if err := s.checkCapacity(ctx, dentist.ID, req.DateTime, uuid.Nil); err != nil {
				return err
			}
		}

		if _, err := s.surgery(ctx, req.SurgeryID); err != nil {
			return err
		}

		status := StatusRequested
		if caller.IsOperator() {
			status = StatusScheduled
		}
		a, err := NewAppointment(req.DateTime, req.PatientID, req.DentistID, req.SurgeryID, status, s.now())
		if err != nil {
			return err
		}
		if err := s.appointments.Create(ctx, a); err != nil {
			return err
		}
		created = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("appointment_id", created.ID().String()).Str("status", string(created.Status())).
		Msg("appointment created")
	return created, nil
}

// UpdateAppointment is the operator's full replace. The capacity check leaves
// the appointment itself out of the count.
func (s *Service) UpdateAppointment(ctx context.Context, caller Caller, id uuid.UUID, req UpdateRequest) (*Appointment, error) {
	if err := authorizeOperator(caller); err != nil {
		return nil, err
	}
	if !req.Status.Valid() {
		return nil, invalid("status", fmt.Sprintf("unknown appointment status %q", req.Status))
	}

	var updated *Appointment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.appointment(ctx, id)
		if err != nil {
			return err
		}

		if req.PatientID != a.PatientID() {
			if _, err := s.patient(ctx, req.PatientID); err != nil {
				return err
			}
		}
		if req.DentistID != nil && *req.DentistID != uuid.Nil {
			dentist, err := s.dentist(ctx, *req.DentistID)
			if err != nil {
				return err
			}
			if err := s.checkCapacity(ctx, dentist.ID, req.DateTime, a.ID()); err != nil {
				return err
			}
		}
		if req.SurgeryID != a.SurgeryID() {
			if _, err := s.surgery(ctx, req.SurgeryID); err != nil {
				return err
			}
		}

		if err := a.Replace(req.DateTime, req.PatientID, req.DentistID, req.SurgeryID, req.Status, s.now()); err != nil {
			return err
		}
		if err := s.appointments.Update(ctx, a); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("appointment_id", id.String()).Msg("appointment updated")
	return updated, nil
}

// RescheduleAppointment moves an appointment. The operator reschedules
// directly after a capacity check for the new week; the owning patient files
// a request.
func (s *Service) RescheduleAppointment(ctx context.Context, caller Caller, id uuid.UUID, newDateTime time.Time) (*Appointment, error) {
	if newDateTime.IsZero() {
		return nil, invalid("new_date_time", "is required")
	}

	var result *Appointment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.appointment(ctx, id)
		if err != nil {
			return err
		}
		if err := s.authorizeOwner(ctx, caller, a); err != nil {
			return err
		}

		target := StatusRescheduleRequested
		if caller.IsOperator() {
			target = StatusRescheduled
			if !a.CanReschedule() {
				return &InvalidStatusError{Op: OpReschedule, AppointmentID: a.ID(), Current: a.Status()}
			}
			if dentistID := a.DentistID(); dentistID != nil {
				if err := s.checkCapacity(ctx, *dentistID, newDateTime, a.ID()); err != nil {
					return err
				}
			}
		}

		if err := a.Reschedule(newDateTime, target, s.now()); err != nil {
			return err
		}
		if err := s.appointments.Update(ctx, a); err != nil {
			return err
		}
		result = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("appointment_id", id.String()).Str("status", string(result.Status())).
		Msg("appointment rescheduled")
	return result, nil
}

// CancelAppointment cancels outright for the operator and records a
// cancellation request for the owning patient.
func (s *Service) CancelAppointment(ctx context.Context, caller Caller, id uuid.UUID) (*CancelResult, error) {
	var result *CancelResult
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.appointment(ctx, id)
		if err != nil {
			return err
		}
		if err := s.authorizeOwner(ctx, caller, a); err != nil {
			return err
		}

		target := StatusCancellationRequested
		msg := fmt.Sprintf("Cancellation request for Appointment: %s succeeded", id)
		if caller.IsOperator() {
			target = StatusCancelled
			msg = fmt.Sprintf("Appointment: %s has been cancelled", id)
		}

		if err := a.Cancel(target, s.now()); err != nil {
			return err
		}
		if err := s.appointments.Update(ctx, a); err != nil {
			return err
		}
		result = &CancelResult{Appointment: a, Message: msg}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("appointment_id", id.String()).Str("status", string(result.Appointment.Status())).
		Msg("appointment cancelled")
	return result, nil
}

func (s *Service) authorizeOwner(ctx context.Context, caller Caller, a *Appointment) error {
	if caller.IsOperator() {
		return nil
	}
	if caller.Role != RolePatient {
		return ErrForbidden
	}
	patient, err := s.patient(ctx, a.PatientID())
	if err != nil {
		return err
	}
	return authorizeOwnerAction(caller, patient)
}

// -- Billing --

// GenerateBill attaches a new bill to the appointment, replacing any earlier one.
func (s *Service) GenerateBill(ctx context.Context, caller Caller, appointmentID uuid.UUID, req BillRequest) (*billing.Bill, error) {
	if err := authorizeOperator(caller); err != nil {
		return nil, err
	}
	total, err := billing.NewMoney(req.Amount, req.CurrencyCode, req.CurrencySymbol)
	if err != nil {
		return nil, err
	}
	if req.DueDate.IsZero() {
		return nil, invalid("due_date", "is required")
	}

	var bill *billing.Bill
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.appointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		b, err := a.GenerateBill(total, req.DueDate, s.now().In(s.policy.Location()))
		if err != nil {
			return err
		}
		if err := s.appointments.Update(ctx, a); err != nil {
			return err
		}
		bill = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("appointment_id", appointmentID.String()).Str("bill_id", bill.ID().String()).
		Str("total", total.String()).Msg("bill generated")
	return bill, nil
}

// MakePayment applies amount, in the bill's currency, to the appointment's bill.
func (s *Service) MakePayment(ctx context.Context, caller Caller, appointmentID uuid.UUID, amount decimal.Decimal) (billing.Payment, error) {
	if err := authorizeOperator(caller); err != nil {
		return billing.Payment{}, err
	}

	var payment billing.Payment
	var status billing.PaymentStatus
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.appointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		p, err := a.Pay(amount, s.now())
		if err != nil {
			return err
		}
		if err := s.appointments.Update(ctx, a); err != nil {
			return err
		}
		payment, status = p, a.Bill().Status()
		return nil
	})
	if err != nil {
		return billing.Payment{}, err
	}

	s.logger.Info().Str("appointment_id", appointmentID.String()).Str("payment_id", payment.ID().String()).
		Str("amount", payment.Amount().String()).Str("payment_status", string(status)).Msg("payment registered")
	return payment, nil
}

// -- Queries --

func (s *Service) GetAppointment(ctx context.Context, caller Caller, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeView(ctx, caller, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) authorizeView(ctx context.Context, caller Caller, a *Appointment) error {
	switch caller.Role {
	case RoleOfficeManager:
		return nil
	case RolePatient:
		p, err := s.patient(ctx, a.PatientID())
		if err != nil {
			return err
		}
		return authorizeView(caller, p, nil)
	case RoleDentist:
		dentistID := a.DentistID()
		if dentistID == nil {
			return ErrForbidden
		}
		d, err := s.dentist(ctx, *dentistID)
		if err != nil {
			return err
		}
		return authorizeView(caller, nil, d)
	}
	return ErrForbidden
}

// GetBill returns the appointment's bill, visible to the same callers as the
// appointment.
func (s *Service) GetBill(ctx context.Context, caller Caller, appointmentID uuid.UUID) (*billing.Bill, error) {
	a, err := s.GetAppointment(ctx, caller, appointmentID)
	if err != nil {
		return nil, err
	}
	if a.Bill() == nil {
		return nil, fmt.Errorf("appointment %s: %w", appointmentID, ErrNoBillAssociated)
	}
	return a.Bill(), nil
}

// DeleteAppointment removes the appointment and its bill without going
// through the state machine.
func (s *Service) DeleteAppointment(ctx context.Context, caller Caller, id uuid.UUID) error {
	if err := authorizeOperator(caller); err != nil {
		return err
	}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.appointments.Delete(ctx, id); err != nil {
			return notFound("appointment", id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info().Str("appointment_id", id.String()).Msg("appointment deleted")
	return nil
}

func (s *Service) ListAppointments(ctx context.Context, caller Caller, f Filter, limit, offset int) ([]*Appointment, int, error) {
	if err := authorizeOperator(caller); err != nil {
		return nil, 0, err
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, invalid("status", fmt.Sprintf("unknown appointment status %q", f.Status))
	}
	if f.PaymentStatus != "" && !f.PaymentStatus.Valid() {
		return nil, 0, invalid("payment_status", fmt.Sprintf("unknown payment status %q", f.PaymentStatus))
	}
	if f.Date != nil {
		f.from, f.to = s.policy.Day(*f.Date)
	}
	return s.appointments.Search(ctx, f, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, caller Caller, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	if !caller.IsOperator() {
		p, err := s.patient(ctx, patientID)
		if err != nil {
			return nil, 0, err
		}
		if !caller.ownsPatient(p) {
			return nil, 0, ErrForbidden
		}
	}
	return s.appointments.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListByDentist(ctx context.Context, caller Caller, dentistID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	if !caller.IsOperator() {
		d, err := s.dentist(ctx, dentistID)
		if err != nil {
			return nil, 0, err
		}
		if !caller.isDentist(d) {
			return nil, 0, ErrForbidden
		}
	}
	return s.appointments.ListByDentist(ctx, dentistID, limit, offset)
}

func (s *Service) ListByStatus(ctx context.Context, caller Caller, status Status, limit, offset int) ([]*Appointment, int, error) {
	if err := authorizeOperator(caller); err != nil {
		return nil, 0, err
	}
	if !status.Valid() {
		return nil, 0, invalid("status", fmt.Sprintf("unknown appointment status %q", status))
	}
	return s.appointments.ListByStatus(ctx, status, limit, offset)
}

// OverdueBills lists every bill that is not fully paid and was due before
// the clinic-local date of now. It is used by the sweep job and the operator
// report.
func (s *Service) OverdueBills(ctx context.Context, now time.Time) ([]OverdueBill, error) {
	today := s.policy.Today(now)
	appts, err := s.appointments.ListWithOverdueBills(ctx, today)
	if err != nil {
		return nil, err
	}
	out := make([]OverdueBill, 0, len(appts))
	for _, a := range appts {
		b := a.Bill()
		if b == nil || !b.IsOverdue(today) {
			continue
		}
		out = append(out, OverdueBill{
			AppointmentID: a.ID(),
			PatientID:     a.PatientID(),
			BillID:        b.ID(),
			DueDate:       b.DueDate().Format("2006-01-02"),
			Balance:       b.Balance(),
			Status:        b.Status(),
		})
	}
	return out, nil
}

// OverdueBillsReport is OverdueBills for an operator at the current time.
func (s *Service) OverdueBillsReport(ctx context.Context, caller Caller) ([]OverdueBill, error) {
	if err := authorizeOperator(caller); err != nil {
		return nil, err
	}
	return s.OverdueBills(ctx, s.now())
}
