package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LoanKind selects the repayment model for a loan record.
type LoanKind string

const (
	KindAnnuity    LoanKind = "annuity"
	KindCreditCard LoanKind = "credit_card"
)

// MaxTermMonths caps schedule length so a bad record cannot ask for an
// unbounded amount of work. 50 years of monthly periods is beyond any
// consumer loan handled here.
const MaxTermMonths = 600

type (
	// Date is a calendar day; the time-of-day component is always
	// midnight UTC.
	Date struct {
		time.Time
	}

	// Loan is an immutable installment-loan record as supplied by the
	// persistence layer. The engine never mutates it.
	Loan struct {
		ID         int64
		Name       string
		Kind       LoanKind
		Principal  Money
		AnnualRate decimal.Decimal // percent, e.g. 12.5 for 12.5% p.a.
		TermMonths int
		Start      Date
	}

	// RecordedPayment is an actual payment registered against a loan.
	RecordedPayment struct {
		ID     int64
		LoanID int64
		Date   Date
		Amount Money
	}

	// CreditAccount is a revolving credit-card account.
	CreditAccount struct {
		ID           int64
		Name         string
		CreditLimit  Money
		Debt         Money
		AnnualRate   decimal.Decimal // percent p.a.
		StatementDay int             // 1..31, clamped in short months
		GraceDays    int             // 0 means: use the configured default
	}

	// TxKind distinguishes card ledger entries.
	TxKind string

	// CardTransaction is one entry in a credit account's ledger.
	CardTransaction struct {
		ID        int64
		AccountID int64
		Date      Date
		Amount    Money
		Kind      TxKind
	}

	// ScheduleEntry is one period of a computed amortization schedule.
	// Entries are ephemeral: recomputed on demand, never persisted.
	ScheduleEntry struct {
		Period         int // 1..term
		DueDate        Date
		OpeningBalance Money
		Payment        Money
		Interest       Money
		Principal      Money
		ClosingBalance Money
	}
)

const (
	TxPurchase TxKind = "purchase"
	TxPayment  TxKind = "payment"
)

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrAmountTooLarge = errors.New("amount exceeds representable precision")
	ErrNotFound       = errors.New("record not found")
)

// ValidationError rejects one offending input field. It is a distinct error
// kind so callers can separate bad input from computation failures.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateFrom truncates an arbitrary time to its calendar day in UTC.
func DateFrom(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// IsEmpty reports whether the date is the zero value (used for optional dates).
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// SameMonth reports whether two dates fall in the same calendar month and year.
func (d Date) SameMonth(o Date) bool {
	return d.Year() == o.Year() && d.Month() == o.Month()
}

// String renders the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format("2006-01-02")
}

// Validate checks the loan record field by field. The first offending field
// is reported as a *ValidationError.
func (l Loan) Validate() error {
	if !l.Principal.IsPositive() {
		return &ValidationError{Field: "principal", Msg: "must be positive"}
	}
	if l.AnnualRate.IsNegative() {
		return &ValidationError{Field: "annual_rate", Msg: "must not be negative"}
	}
	if l.TermMonths <= 0 {
		return &ValidationError{Field: "term_months", Msg: "must be positive"}
	}
	if l.TermMonths > MaxTermMonths {
		return &ValidationError{Field: "term_months", Msg: fmt.Sprintf("must not exceed %d", MaxTermMonths)}
	}
	if l.Start.IsZero() {
		return &ValidationError{Field: "start_date", Msg: "must be set"}
	}
	switch l.Kind {
	case KindAnnuity, KindCreditCard:
	default:
		return &ValidationError{Field: "kind", Msg: fmt.Sprintf("unknown loan kind %q", l.Kind)}
	}
	return nil
}

// Validate checks a payment record.
func (p RecordedPayment) Validate() error {
	if p.Date.IsZero() {
		return &ValidationError{Field: "payment_date", Msg: "must be set"}
	}
	if !p.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Msg: "must be positive"}
	}
	return nil
}

// Validate checks a credit account record.
func (a CreditAccount) Validate() error {
	if a.CreditLimit.IsNegative() {
		return &ValidationError{Field: "credit_limit", Msg: "must not be negative"}
	}
	if a.Debt.IsNegative() {
		return &ValidationError{Field: "debt", Msg: "must not be negative"}
	}
	if a.AnnualRate.IsNegative() {
		return &ValidationError{Field: "annual_rate", Msg: "must not be negative"}
	}
	if a.StatementDay < 1 || a.StatementDay > 31 {
		return &ValidationError{Field: "statement_day", Msg: "must be between 1 and 31"}
	}
	if a.GraceDays < 0 {
		return &ValidationError{Field: "grace_days", Msg: "must not be negative"}
	}
	return nil
}

// Validate checks a card ledger entry.
func (t CardTransaction) Validate() error {
	if t.Date.IsZero() {
		return &ValidationError{Field: "date", Msg: "must be set"}
	}
	if !t.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Msg: "must be positive"}
	}
	switch t.Kind {
	case TxPurchase, TxPayment:
	default:
		return &ValidationError{Field: "kind", Msg: fmt.Sprintf("unknown transaction kind %q", t.Kind)}
	}
	return nil
}
