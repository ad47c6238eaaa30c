package billing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus is derived from the payments applied to a bill.
type PaymentStatus string

const (
	StatusUnpaid        PaymentStatus = "UNPAID"
	StatusPartiallyPaid PaymentStatus = "PARTIALLY_PAID"
	StatusPaid          PaymentStatus = "PAID"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusUnpaid, StatusPartiallyPaid, StatusPaid:
		return true
	}
	return false
}

const dateLayout = "2006-01-02"

// DateOf returns t's calendar date (in t's own location) as midnight UTC, the
// representation used for billing and due dates.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Payment is a single amount applied to a bill. Only Bill.ApplyPayment
// creates payments.
type Payment struct {
	id     uuid.UUID
	billID uuid.UUID
	amount Money
	paidAt time.Time
}

func (p Payment) ID() uuid.UUID     { return p.id }
func (p Payment) BillID() uuid.UUID { return p.billID }
func (p Payment) Amount() Money     { return p.amount }
func (p Payment) PaidAt() time.Time { return p.paidAt }

// PaymentRecord is the flat form of a Payment used for storage and JSON.
type PaymentRecord struct {
	ID     uuid.UUID `json:"id"`
	BillID uuid.UUID `json:"bill_id"`
	Amount Money     `json:"amount"`
	PaidAt time.Time `json:"paid_at"`
}

func (p Payment) Record() PaymentRecord {
	return PaymentRecord{ID: p.id, BillID: p.billID, Amount: p.amount, PaidAt: p.paidAt}
}

func (p Payment) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Record())
}

// Bill is the amount owed for one appointment together with the payments
// made against it.
type Bill struct {
	id          uuid.UUID
	total       Money
	billingDate time.Time
	dueDate     time.Time
	payments    []Payment
	status      PaymentStatus
}

// NewBill creates an unpaid bill dated today. The total must be positive and
// the due date may not fall before the billing date.
func NewBill(total Money, dueDate, now time.Time) (*Bill, error) {
	if !total.IsPositive() {
		return nil, fmt.Errorf("bill total: %w", ErrNonPositiveAmount)
	}
	billingDate := DateOf(now)
	due := DateOf(dueDate)
	if due.Before(billingDate) {
		return nil, fmt.Errorf("%w: due %s, billed %s", ErrDueDateBeforeBilling,
			due.Format(dateLayout), billingDate.Format(dateLayout))
	}
	return &Bill{
		id:          uuid.New(),
		total:       total,
		billingDate: billingDate,
		dueDate:     due,
		status:      StatusUnpaid,
	}, nil
}

func (b *Bill) ID() uuid.UUID          { return b.id }
func (b *Bill) TotalAmount() Money     { return b.total }
func (b *Bill) BillingDate() time.Time { return b.billingDate }
func (b *Bill) DueDate() time.Time     { return b.dueDate }
func (b *Bill) Status() PaymentStatus  { return b.status }
func (b *Bill) CurrencyCode() string   { return b.total.CurrencyCode() }
func (b *Bill) CurrencySymbol() string { return b.total.CurrencySymbol() }

// Payments returns a copy of the payments in the order they were applied.
func (b *Bill) Payments() []Payment {
	out := make([]Payment, len(b.payments))
	copy(out, b.payments)
	return out
}

// TotalPaid is the exact sum of all payments, in the bill's currency.
func (b *Bill) TotalPaid() Money {
	sum := decimal.Zero
	for _, p := range b.payments {
		sum = sum.Add(p.amount.Amount())
	}
	return b.total.withAmount(sum)
}

// Balance is what remains owed.
func (b *Bill) Balance() Money {
	return b.total.withAmount(b.total.Amount().Sub(b.TotalPaid().Amount()))
}

// IsOverdue reports whether the bill is not fully paid and its due date is
// strictly before today's date.
func (b *Bill) IsOverdue(today time.Time) bool {
	return b.status != StatusPaid && b.dueDate.Before(DateOf(today))
}

// ApplyPayment records a payment and recomputes the status. The payment must
// be positive, in the bill's currency, and must not take the paid total past
// the bill total.
func (b *Bill) ApplyPayment(amount Money, now time.Time) (Payment, error) {
	if !amount.IsPositive() {
		return Payment{}, fmt.Errorf("payment: %w", ErrNonPositiveAmount)
	}
	if err := b.total.sameCurrency(amount); err != nil {
		return Payment{}, err
	}

	paid := b.TotalPaid().Amount().Add(amount.Amount())
	if paid.GreaterThan(b.total.Amount()) {
		return Payment{}, &ExceedsBalanceError{Attempted: amount, Balance: b.Balance()}
	}

	p := Payment{id: uuid.New(), billID: b.id, amount: amount, paidAt: now}
	b.payments = append(b.payments, p)
	b.status = deriveStatus(paid, b.total.Amount())
	return p, nil
}

func deriveStatus(paid, total decimal.Decimal) PaymentStatus {
	switch {
	case paid.Equal(total):
		return StatusPaid
	case paid.IsZero():
		return StatusUnpaid
	default:
		return StatusPartiallyPaid
	}
}

// BillRecord is the flat form of a Bill used for storage.
type BillRecord struct {
	ID            uuid.UUID
	TotalAmount   Money
	BillingDate   time.Time
	DueDate       time.Time
	PaymentStatus PaymentStatus
	Payments      []PaymentRecord
}

func (b *Bill) Record() BillRecord {
	rec := BillRecord{
		ID:            b.id,
		TotalAmount:   b.total,
		BillingDate:   b.billingDate,
		DueDate:       b.dueDate,
		PaymentStatus: b.status,
		Payments:      make([]PaymentRecord, 0, len(b.payments)),
	}
	for _, p := range b.payments {
		rec.Payments = append(rec.Payments, p.Record())
	}
	return rec
}

// RestoreBill rebuilds a Bill from storage. The status is recomputed from the
// payments rather than trusted, and the paid-not-above-total invariant is
// checked.
func RestoreBill(rec BillRecord) (*Bill, error) {
	b := &Bill{
		id:          rec.ID,
		total:       rec.TotalAmount,
		billingDate: DateOf(rec.BillingDate),
		dueDate:     DateOf(rec.DueDate),
		payments:    make([]Payment, 0, len(rec.Payments)),
	}
	paid := decimal.Zero
	for _, p := range rec.Payments {
		if err := b.total.sameCurrency(p.Amount); err != nil {
			return nil, fmt.Errorf("restore bill %s: %w", rec.ID, err)
		}
		paid = paid.Add(p.Amount.Amount())
		b.payments = append(b.payments, Payment{id: p.ID, billID: rec.ID, amount: p.Amount, paidAt: p.PaidAt})
	}
	if paid.GreaterThan(b.total.Amount()) {
		return nil, fmt.Errorf("restore bill %s: %w", rec.ID, ErrExceedsBalance)
	}
	b.status = deriveStatus(paid, b.total.Amount())
	return b, nil
}

type billJSON struct {
	ID            uuid.UUID     `json:"id"`
	TotalAmount   Money         `json:"total_amount"`
	TotalPaid     Money         `json:"total_paid"`
	Balance       Money         `json:"balance"`
	BillingDate   string        `json:"billing_date"`
	DueDate       string        `json:"due_date"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Payments      []Payment     `json:"payments"`
}

func (b *Bill) MarshalJSON() ([]byte, error) {
	return json.Marshal(billJSON{
		ID:            b.id,
		TotalAmount:   b.total,
		TotalPaid:     b.TotalPaid(),
		Balance:       b.Balance(),
		BillingDate:   b.billingDate.Format(dateLayout),
		DueDate:       b.dueDate.Format(dateLayout),
		PaymentStatus: b.status,
		Payments:      b.Payments(),
	})
}
