package scheduling

import (
	"time"

	"github.com/google/uuid"

	"github.com/ads/dental/internal/domain/billing"
)

// WeeklyDentistCapacity is the default number of appointments a dentist may
// hold in one ISO week.
const WeeklyDentistCapacity = 5

// WeekBounds returns Monday 00:00:00.000 and Sunday 23:59:59.999 of the ISO
// week containing t, in t's location.
func WeekBounds(t time.Time) (start, end time.Time) {
	offset := (int(t.Weekday()) + 6) % 7 // days since Monday
	y, m, d := t.Date()
	start = time.Date(y, m, d-offset, 0, 0, 0, 0, t.Location())
	end = time.Date(y, m, d-offset+7, 0, 0, 0, 0, t.Location()).Add(-time.Millisecond)
	return start, end
}

// Policy holds the booking rules: the weekly dentist capacity and the
// overdue-bill gate. Week and day boundaries are taken in the clinic's
// location.
type Policy struct {
	capacity int
	loc      *time.Location
}

func NewPolicy(capacity int, loc *time.Location) Policy {
	if capacity <= 0 {
		capacity = WeeklyDentistCapacity
	}
	if loc == nil {
		loc = time.UTC
	}
	return Policy{capacity: capacity, loc: loc}
}

func DefaultPolicy() Policy { return NewPolicy(WeeklyDentistCapacity, time.UTC) }

func (p Policy) Capacity() int            { return p.capacity }
func (p Policy) Location() *time.Location { return p.loc }

// Week returns the bounds of the clinic-local ISO week containing t.
func (p Policy) Week(t time.Time) (start, end time.Time) {
	return WeekBounds(t.In(p.loc))
}

// Today is the clinic-local calendar date of now.
func (p Policy) Today(now time.Time) time.Time {
	return billing.DateOf(now.In(p.loc))
}

// Day returns [start, next start) in the clinic location for the calendar
// date of t as read in t's own location.
func (p Policy) Day(t time.Time) (start, next time.Time) {
	y, m, d := t.Date()
	start = time.Date(y, m, d, 0, 0, 0, 0, p.loc)
	return start, time.Date(y, m, d+1, 0, 0, 0, 0, p.loc)
}

// CheckCapacity fails when the dentist already holds count appointments and
// count has reached the limit.
func (p Policy) CheckCapacity(dentistID uuid.UUID, weekStart time.Time, count int) error {
	if count >= p.capacity {
		return &CapacityExceededError{DentistID: dentistID, WeekStart: weekStart, Count: count, Limit: p.capacity}
	}
	return nil
}

// OverdueAppointmentIDs returns the ids of appointments whose bill is unpaid
// or partially paid and due before today.
func OverdueAppointmentIDs(appts []*Appointment, today time.Time) []uuid.UUID {
	var ids []uuid.UUID
	for _, a := range appts {
		if b := a.Bill(); b != nil && b.IsOverdue(today) {
			ids = append(ids, a.ID())
		}
	}
	return ids
}

// CheckOverdue blocks a booking when any of the patient's appointments
// carries an overdue bill.
func (p Policy) CheckOverdue(patientID uuid.UUID, appts []*Appointment, now time.Time) error {
	if ids := OverdueAppointmentIDs(appts, p.Today(now)); len(ids) > 0 {
		return &OverdueBillsError{PatientID: patientID, AppointmentIDs: ids}
	}
	return nil
}
