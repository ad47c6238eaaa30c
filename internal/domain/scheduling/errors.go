package scheduling

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound                  = errors.New("not found")
	ErrCapacityExceeded          = errors.New("dentist weekly capacity exceeded")
	ErrOverdueBills              = errors.New("patient has overdue unpaid bills")
	ErrInvalidCancellationStatus = errors.New("appointment cannot be cancelled in its current status")
	ErrInvalidRescheduleStatus   = errors.New("appointment cannot be rescheduled in its current status")
	ErrNoBillAssociated          = errors.New("no bill associated with appointment")
	ErrForbidden                 = errors.New("forbidden")
	ErrValidation                = errors.New("validation failed")
)

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with id %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

type CapacityExceededError struct {
	DentistID uuid.UUID
	WeekStart time.Time
	Count     int
	Limit     int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("dentist %s already has %d appointments in the week of %s (limit %d)",
		e.DentistID, e.Count, e.WeekStart.Format("2006-01-02"), e.Limit)
}

func (e *CapacityExceededError) Unwrap() error { return ErrCapacityExceeded }

// OverdueBillsError lists the appointments whose bills block a new booking.
type OverdueBillsError struct {
	PatientID      uuid.UUID
	AppointmentIDs []uuid.UUID
}

func (e *OverdueBillsError) Error() string {
	ids := make([]string, len(e.AppointmentIDs))
	for i, id := range e.AppointmentIDs {
		ids[i] = id.String()
	}
	return fmt.Sprintf("patient %s has overdue unpaid bills for appointments: [%s]",
		e.PatientID, strings.Join(ids, ", "))
}

func (e *OverdueBillsError) Unwrap() error { return ErrOverdueBills }

type Operation string

const (
	OpCancel     Operation = "cancel"
	OpReschedule Operation = "reschedule"
)

// InvalidStatusError reports a state-machine transition that is not allowed
// from the appointment's current status.
type InvalidStatusError struct {
	Op            Operation
	AppointmentID uuid.UUID
	Current       Status
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("cannot %s appointment %s in status %s", e.Op, e.AppointmentID, e.Current)
}

func (e *InvalidStatusError) Unwrap() error {
	if e.Op == OpCancel {
		return ErrInvalidCancellationStatus
	}
	return ErrInvalidRescheduleStatus
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}
