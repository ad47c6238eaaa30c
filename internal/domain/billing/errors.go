package billing

import (
	"errors"
	"fmt"
)

var (
	ErrNegativeAmount       = errors.New("amount must not be negative")
	ErrNonPositiveAmount    = errors.New("amount must be greater than zero")
	ErrInvalidCurrency      = errors.New("invalid ISO 4217 currency code")
	ErrInvalidSymbol        = errors.New("currency symbol must be 1 to 3 characters")
	ErrAmountPrecision      = errors.New("amount has more decimal places than the currency allows")
	ErrCurrencyMismatch     = errors.New("currency mismatch")
	ErrDueDateBeforeBilling = errors.New("due date must not precede the billing date")
	ErrExceedsBalance       = errors.New("payment exceeds outstanding balance")
)

// ExceedsBalanceError reports a payment larger than what is still owed on a bill.
type ExceedsBalanceError struct {
	Attempted Money
	Balance   Money
}

func (e *ExceedsBalanceError) Error() string {
	return fmt.Sprintf("payment of %s exceeds outstanding balance of %s", e.Attempted, e.Balance)
}

func (e *ExceedsBalanceError) Unwrap() error { return ErrExceedsBalance }
