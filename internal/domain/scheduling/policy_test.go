package scheduling

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ads/dental/internal/domain/billing"
)

func TestWeekBounds(t *testing.T) {
	wantStart := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2026, 3, 8, 23, 59, 59, int(999*time.Millisecond), time.UTC)

	for _, at := range []time.Time{
		time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 8, 23, 59, 59, 0, time.UTC),
	} {
		start, end := WeekBounds(at)
		assert.Equal(t, wantStart, start, at.String())
		assert.Equal(t, wantEnd, end, at.String())
	}

	start, _ := WeekBounds(time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), start)
}

func TestWeekBounds_AcrossYear(t *testing.T) {
	// 2027-01-01 is a Friday; its ISO week starts on Monday 2026-12-28.
	start, end := WeekBounds(time.Date(2027, 1, 1, 10, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 12, 28, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, 2027, end.Year())
	assert.Equal(t, time.January, end.Month())
	assert.Equal(t, 3, end.Day())
}

func TestPolicy_WeekUsesClinicLocation(t *testing.T) {
	clinic := time.FixedZone("CST", -6*3600)
	p := NewPolicy(5, clinic)

	// Monday 03:00 UTC is still Sunday evening at the clinic.
	start, _ := p.Week(time.Date(2026, 3, 9, 3, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, clinic), start)
}

func TestPolicy_Defaults(t *testing.T) {
	p := NewPolicy(0, nil)
	assert.Equal(t, WeeklyDentistCapacity, p.Capacity())
	assert.Equal(t, time.UTC, p.Location())
}

func TestPolicy_CheckCapacity(t *testing.T) {
	p := DefaultPolicy()
	id := uuid.New()
	weekStart := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	for n := 0; n < 5; n++ {
		assert.NoError(t, p.CheckCapacity(id, weekStart, n))
	}
	assert.ErrorIs(t, p.CheckCapacity(id, weekStart, 5), ErrCapacityExceeded)
	assert.ErrorIs(t, p.CheckCapacity(id, weekStart, 7), ErrCapacityExceeded)
}

func TestPolicy_Day(t *testing.T) {
	clinic := time.FixedZone("EST", -5*3600)
	p := NewPolicy(5, clinic)

	start, next := p.Day(time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, clinic), start)
	assert.Equal(t, time.Date(2026, 3, 5, 0, 0, 0, 0, clinic), next)
}

func TestPolicy_CheckOverdue(t *testing.T) {
	p := DefaultPolicy()
	patientID := uuid.New()

	billed := func(due time.Time, paid string) *Appointment {
		a, err := NewAppointment(testNow, patientID, nil, uuid.New(), StatusScheduled, testNow)
		require.NoError(t, err)
		total, err := billing.NewMoney(decimal.RequireFromString("100"), "USD", "$")
		require.NoError(t, err)
		_, err = a.GenerateBill(total, due, due.AddDate(0, 0, -10))
		require.NoError(t, err)
		if paid != "" {
			_, err = a.Pay(decimal.RequireFromString(paid), due)
			require.NoError(t, err)
		}
		return a
	}

	yesterday := testNow.AddDate(0, 0, -1)
	unpaid := billed(yesterday, "")
	partial := billed(yesterday, "40")
	paid := billed(yesterday, "100")
	dueToday := billed(testNow, "")
	noBill, err := NewAppointment(testNow, patientID, nil, uuid.New(), StatusScheduled, testNow)
	require.NoError(t, err)

	assert.NoError(t, p.CheckOverdue(patientID, []*Appointment{paid, dueToday, noBill}, testNow))

	err = p.CheckOverdue(patientID, []*Appointment{unpaid, paid, partial, dueToday}, testNow)
	var oe *OverdueBillsError
	require.ErrorAs(t, err, &oe)
	assert.ElementsMatch(t, []uuid.UUID{unpaid.ID(), partial.ID()}, oe.AppointmentIDs)
	assert.Contains(t, err.Error(), unpaid.ID().String())
}
