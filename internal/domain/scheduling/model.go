package scheduling

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ads/dental/internal/domain/billing"
)

type Status string

const (
	StatusRequested             Status = "REQUESTED"
	StatusScheduled             Status = "SCHEDULED"
	StatusRescheduleRequested   Status = "RESCHEDULE_REQUESTED"
	StatusRescheduled           Status = "RESCHEDULED"
	StatusCancellationRequested Status = "CANCELLATION_REQUESTED"
	StatusCancelled             Status = "CANCELLED"
	StatusCompleted             Status = "COMPLETED"
	StatusNoShow                Status = "NO_SHOW"
)

var validStatuses = map[Status]bool{
	StatusRequested: true, StatusScheduled: true, StatusRescheduleRequested: true,
	StatusRescheduled: true, StatusCancellationRequested: true, StatusCancelled: true,
	StatusCompleted: true, StatusNoShow: true,
}

var cancellableFrom = map[Status]bool{
	StatusRequested: true, StatusScheduled: true,
	StatusRescheduleRequested: true, StatusRescheduled: true,
}

var reschedulableFrom = map[Status]bool{
	StatusRequested: true, StatusScheduled: true,
	StatusCancellationRequested: true, StatusRescheduleRequested: true,
}

func (s Status) Valid() bool { return validStatuses[s] }

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", invalid("status", fmt.Sprintf("unknown appointment status %q", s))
	}
	return st, nil
}

// Appointment is the aggregate root for a booked visit and its bill. State
// changes go through its methods only.
type Appointment struct {
	id        uuid.UUID
	dateTime  time.Time
	status    Status
	patientID uuid.UUID
	dentistID *uuid.UUID
	surgeryID uuid.UUID
	bill      *billing.Bill
	createdAt time.Time
	updatedAt time.Time
}

func validateRefs(dateTime time.Time, patientID, surgeryID uuid.UUID, status Status) error {
	if dateTime.IsZero() {
		return invalid("date_time", "is required")
	}
	if patientID == uuid.Nil {
		return invalid("patient_id", "is required")
	}
	if surgeryID == uuid.Nil {
		return invalid("surgery_id", "is required")
	}
	if !status.Valid() {
		return invalid("status", fmt.Sprintf("unknown appointment status %q", status))
	}
	return nil
}

func NewAppointment(dateTime time.Time, patientID uuid.UUID, dentistID *uuid.UUID, surgeryID uuid.UUID, status Status, now time.Time) (*Appointment, error) {
	if err := validateRefs(dateTime, patientID, surgeryID, status); err != nil {
		return nil, err
	}
	return &Appointment{
		id:        uuid.New(),
		dateTime:  dateTime,
		status:    status,
		patientID: patientID,
		dentistID: copyID(dentistID),
		surgeryID: surgeryID,
		createdAt: now,
		updatedAt: now,
	}, nil
}

func copyID(id *uuid.UUID) *uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	v := *id
	return &v
}

func (a *Appointment) ID() uuid.UUID         { return a.id }
func (a *Appointment) DateTime() time.Time   { return a.dateTime }
func (a *Appointment) Status() Status        { return a.status }
func (a *Appointment) PatientID() uuid.UUID  { return a.patientID }
func (a *Appointment) DentistID() *uuid.UUID { return copyID(a.dentistID) }
func (a *Appointment) SurgeryID() uuid.UUID  { return a.surgeryID }
func (a *Appointment) Bill() *billing.Bill   { return a.bill }
func (a *Appointment) CreatedAt() time.Time  { return a.createdAt }
func (a *Appointment) UpdatedAt() time.Time  { return a.updatedAt }
func (a *Appointment) HasDentist() bool      { return a.dentistID != nil }
func (a *Appointment) CanCancel() bool       { return cancellableFrom[a.status] }
func (a *Appointment) CanReschedule() bool   { return reschedulableFrom[a.status] }

// IsAssignedTo reports whether dentistID is the assigned dentist.
func (a *Appointment) IsAssignedTo(dentistID uuid.UUID) bool {
	return a.dentistID != nil && *a.dentistID == dentistID
}

// Cancel moves the appointment to target, which must be CANCELLED or
// CANCELLATION_REQUESTED.
func (a *Appointment) Cancel(target Status, now time.Time) error {
	if target != StatusCancelled && target != StatusCancellationRequested {
		return invalid("status", fmt.Sprintf("%s is not a cancellation status", target))
	}
	if !a.CanCancel() {
		return &InvalidStatusError{Op: OpCancel, AppointmentID: a.id, Current: a.status}
	}
	a.status = target
	a.updatedAt = now
	return nil
}

// Reschedule moves the appointment to newDateTime with status target, which
// must be RESCHEDULED or RESCHEDULE_REQUESTED.
func (a *Appointment) Reschedule(newDateTime time.Time, target Status, now time.Time) error {
	if target != StatusRescheduled && target != StatusRescheduleRequested {
		return invalid("status", fmt.Sprintf("%s is not a reschedule status", target))
	}
	if newDateTime.IsZero() {
		return invalid("new_date_time", "is required")
	}
	if !a.CanReschedule() {
		return &InvalidStatusError{Op: OpReschedule, AppointmentID: a.id, Current: a.status}
	}
	a.dateTime = newDateTime
	a.status = target
	a.updatedAt = now
	return nil
}

// GenerateBill attaches a new unpaid bill, replacing any earlier one.
func (a *Appointment) GenerateBill(total billing.Money, dueDate, now time.Time) (*billing.Bill, error) {
	b, err := billing.NewBill(total, dueDate, now)
	if err != nil {
		return nil, err
	}
	a.bill = b
	a.updatedAt = now
	return b, nil
}

// Pay applies amount to the bill in the bill's own currency.
func (a *Appointment) Pay(amount decimal.Decimal, now time.Time) (billing.Payment, error) {
	if a.bill == nil {
		return billing.Payment{}, fmt.Errorf("appointment %s: %w", a.id, ErrNoBillAssociated)
	}
	m, err := billing.NewMoney(amount, a.bill.CurrencyCode(), a.bill.CurrencySymbol())
	if err != nil {
		return billing.Payment{}, err
	}
	p, err := a.bill.ApplyPayment(m, now)
	if err != nil {
		return billing.Payment{}, err
	}
	a.updatedAt = now
	return p, nil
}

// Replace overwrites every editable field. It is the administrative escape
// hatch and does not consult the state machine.
func (a *Appointment) Replace(dateTime time.Time, patientID uuid.UUID, dentistID *uuid.UUID, surgeryID uuid.UUID, status Status, now time.Time) error {
	if err := validateRefs(dateTime, patientID, surgeryID, status); err != nil {
		return err
	}
	a.dateTime = dateTime
	a.patientID = patientID
	a.dentistID = copyID(dentistID)
	a.surgeryID = surgeryID
	a.status = status
	a.updatedAt = now
	return nil
}

// AppointmentRecord is the flat form used by storage.
type AppointmentRecord struct {
	ID        uuid.UUID
	DateTime  time.Time
	Status    Status
	PatientID uuid.UUID
	DentistID *uuid.UUID
	SurgeryID uuid.UUID
	Bill      *billing.Bill
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a *Appointment) Record() AppointmentRecord {
	return AppointmentRecord{
		ID:        a.id,
		DateTime:  a.dateTime,
		Status:    a.status,
		PatientID: a.patientID,
		DentistID: copyID(a.dentistID),
		SurgeryID: a.surgeryID,
		Bill:      a.bill,
		CreatedAt: a.createdAt,
		UpdatedAt: a.updatedAt,
	}
}

func RestoreAppointment(rec AppointmentRecord) (*Appointment, error) {
	if rec.ID == uuid.Nil {
		return nil, invalid("id", "is required")
	}
	if err := validateRefs(rec.DateTime, rec.PatientID, rec.SurgeryID, rec.Status); err != nil {
		return nil, fmt.Errorf("restore appointment %s: %w", rec.ID, err)
	}
	return &Appointment{
		id:        rec.ID,
		dateTime:  rec.DateTime,
		status:    rec.Status,
		patientID: rec.PatientID,
		dentistID: copyID(rec.DentistID),
		surgeryID: rec.SurgeryID,
		bill:      rec.Bill,
		createdAt: rec.CreatedAt,
		updatedAt: rec.UpdatedAt,
	}, nil
}

type appointmentJSON struct {
	ID        uuid.UUID     `json:"id"`
	DateTime  time.Time     `json:"date_time"`
	Status    Status        `json:"status"`
	PatientID uuid.UUID     `json:"patient_id"`
	DentistID *uuid.UUID    `json:"dentist_id,omitempty"`
	SurgeryID uuid.UUID     `json:"surgery_id"`
	Bill      *billing.Bill `json:"bill,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (a *Appointment) MarshalJSON() ([]byte, error) {
	return json.Marshal(appointmentJSON{
		ID:        a.id,
		DateTime:  a.dateTime,
		Status:    a.status,
		PatientID: a.patientID,
		DentistID: a.dentistID,
		SurgeryID: a.surgeryID,
		Bill:      a.bill,
		CreatedAt: a.createdAt,
		UpdatedAt: a.updatedAt,
	})
}
