package billing

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Money is an exact decimal amount in a single ISO 4217 currency. The zero
// value has no currency and is only useful as a placeholder.
type Money struct {
	amount decimal.Decimal
	code   string
	symbol string
}

// NewMoney validates and builds a Money value. The currency code is
// normalised to upper case. The amount may not be finer than the currency's
// minor unit: 0.01 for USD, 1 for JPY. Trailing zeros are fine, so 100.0000
// is accepted as USD.
func NewMoney(amount decimal.Decimal, code, symbol string) (Money, error) {
	if amount.IsNegative() {
		return Money{}, fmt.Errorf("%w: %s", ErrNegativeAmount, amount)
	}
	unit, err := parseCurrency(code)
	if err != nil {
		return Money{}, err
	}
	if scale := MinorUnits(unit); !amount.Equal(amount.Truncate(scale)) {
		return Money{}, fmt.Errorf("%w: %s allows %d, got %s", ErrAmountPrecision, unit, scale, amount)
	}
	symbol = strings.TrimSpace(symbol)
	if n := utf8.RuneCountInString(symbol); n < 1 || n > 3 {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	return Money{amount: amount, code: unit.String(), symbol: symbol}, nil
}

// ParseMoney is NewMoney with the amount given as a decimal string.
func ParseMoney(amount, code, symbol string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	return NewMoney(d, code, symbol)
}

func parseCurrency(code string) (currency.Unit, error) {
	code = strings.TrimSpace(code)
	if len(code) != 3 {
		return currency.Unit{}, fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return currency.Unit{}, fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	return unit, nil
}

// MinorUnits is the number of decimal places the currency allows.
func MinorUnits(unit currency.Unit) int32 {
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}

func (m Money) Amount() decimal.Decimal { return m.amount }
func (m Money) CurrencyCode() string    { return m.code }
func (m Money) CurrencySymbol() string  { return m.symbol }
func (m Money) IsZero() bool            { return m.amount.IsZero() }
func (m Money) IsPositive() bool        { return m.amount.IsPositive() }

// withAmount keeps the currency and replaces the amount.
func (m Money) withAmount(d decimal.Decimal) Money {
	return Money{amount: d, code: m.code, symbol: m.symbol}
}

func (m Money) sameCurrency(o Money) error {
	if m.code != o.code {
		return fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, m.code, o.code)
	}
	return nil
}

func (m Money) Add(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return m.withAmount(m.amount.Add(o.amount)), nil
}

func (m Money) Sub(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return m.withAmount(m.amount.Sub(o.amount)), nil
}

// Cmp compares amounts: -1 if m < o, 0 if equal, +1 if m > o.
func (m Money) Cmp(o Money) (int, error) {
	if err := m.sameCurrency(o); err != nil {
		return 0, err
	}
	return m.amount.Cmp(o.amount), nil
}

// Equal reports whether both currency and amount match. 1.5 and 1.50 are equal.
func (m Money) Equal(o Money) bool {
	return m.code == o.code && m.amount.Equal(o.amount)
}

func (m Money) String() string {
	return fmt.Sprintf("%s%s %s", m.symbol, m.amount.StringFixed(2), m.code)
}

type moneyJSON struct {
	Amount         decimal.Decimal `json:"amount"`
	CurrencyCode   string          `json:"currency_code"`
	CurrencySymbol string          `json:"currency_symbol"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.amount, CurrencyCode: m.code, CurrencySymbol: m.symbol})
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := NewMoney(raw.Amount, raw.CurrencyCode, raw.CurrencySymbol)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
