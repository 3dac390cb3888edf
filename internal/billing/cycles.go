// Package billing computes statement cycles, minimum payments and
// grace-period applicability for revolving credit-card accounts.
//
// Everything is a pure function over an account record, an explicit Policy
// and the account's transaction ledger; no hidden constants, no state.
package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"prestiti/internal/core"
)

// Policy carries the bank-specific billing parameters. They are passed in
// explicitly so behavior is reproducible and testable per bank.
type Policy struct {
	// MinPaymentRate is the fraction of the closing debt due as minimum
	// payment, e.g. 0.03 for 3%.
	MinPaymentRate decimal.Decimal
	// MinPaymentFloor is the smallest non-zero minimum payment.
	MinPaymentFloor core.Money
	// GraceDays is the default grace-period length, used when the account
	// does not carry its own.
	GraceDays int
}

// Validate checks the policy parameters.
func (p Policy) Validate() error {
	if p.MinPaymentRate.IsNegative() {
		return &core.ValidationError{Field: "min_payment_rate", Msg: "must not be negative"}
	}
	if p.MinPaymentFloor.IsNegative() {
		return &core.ValidationError{Field: "min_payment_floor", Msg: "must not be negative"}
	}
	if p.GraceDays < 0 {
		return &core.ValidationError{Field: "grace_days", Msg: "must not be negative"}
	}
	return nil
}

// StatementCycle is one billing window on a revolving account. Start is
// inclusive, End (the statement date) exclusive; Due is End plus the grace
// period.
type StatementCycle struct {
	Start          core.Date
	End            core.Date
	Due            core.Date
	ClosingDebt    core.Money
	MinimumPayment core.Money
}

// Contains reports whether a posting date falls inside the cycle.
func (c StatementCycle) Contains(d core.Date) bool {
	return !d.Before(c.Start.Time) && d.Before(c.End.Time)
}

// Cycles returns the ordered statement cycles whose windows intersect
// [from, to]. Closing debt comes from the transaction ledger; the minimum
// payment follows the policy: zero on zero debt, otherwise
// max(rate*debt, floor) capped at the debt itself.
func Cycles(acct core.CreditAccount, pol Policy, from, to core.Date, txns []core.CardTransaction) ([]StatementCycle, error) {
	if err := acct.Validate(); err != nil {
		return nil, err
	}
	if err := pol.Validate(); err != nil {
		return nil, err
	}
	if from.IsZero() || to.IsZero() {
		return nil, &core.ValidationError{Field: "date_range", Msg: "both bounds must be set"}
	}
	if to.Before(from.Time) {
		return nil, &core.ValidationError{Field: "date_range", Msg: "end precedes start"}
	}

	grace := graceDays(acct, pol)

	var cycles []StatementCycle
	for c := cycleContaining(acct, from); !c.Start.After(to.Time); c = cycleContaining(acct, core.DateFrom(c.End.Time)) {
		c.Due = core.DateFrom(c.End.AddDate(0, 0, grace))
		c.ClosingDebt = balanceBefore(acct.ID, txns, c.End)
		c.MinimumPayment = minimumPayment(c.ClosingDebt, pol)
		cycles = append(cycles, c)
	}
	return cycles, nil
}

// minimumPayment applies the policy to a closing debt.
func minimumPayment(debt core.Money, pol Policy) core.Money {
	if !debt.IsPositive() {
		return core.Money{}
	}
	p := debt.MulRate(pol.MinPaymentRate)
	if p.Cmp(pol.MinPaymentFloor) < 0 {
		p = pol.MinPaymentFloor
	}
	if p.Cmp(debt) > 0 {
		p = debt
	}
	return p
}

// graceDays resolves the effective grace length for an account.
func graceDays(acct core.CreditAccount, pol Policy) int {
	if acct.GraceDays > 0 {
		return acct.GraceDays
	}
	return pol.GraceDays
}

// statementDate returns the statement day of the given month, clamped to
// the month's last day (statement day 31 falls on Feb 28/29).
func statementDate(year int, month time.Month, statementDay int) core.Date {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	day := statementDay
	if last := first.AddDate(0, 1, -1).Day(); day > last {
		day = last
	}
	return core.NewDate(first.Year(), int(first.Month()), day)
}

// cycleContaining finds the statement window holding d: the cycle runs from
// the latest statement date <= d to the next one, end exclusive.
func cycleContaining(acct core.CreditAccount, d core.Date) StatementCycle {
	start := statementDate(d.Year(), d.Month(), acct.StatementDay)
	if start.After(d.Time) {
		// Month arithmetic goes through the first of the month so that
		// clamped statement days cannot skid into a neighboring month.
		prev := time.Date(d.Year(), d.Month()-1, 1, 0, 0, 0, 0, time.UTC)
		start = statementDate(prev.Year(), prev.Month(), acct.StatementDay)
	}
	next := time.Date(start.Year(), start.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	end := statementDate(next.Year(), next.Month(), acct.StatementDay)
	return StatementCycle{Start: start, End: end}
}

// balanceBefore replays the ledger strictly before a date: purchases add to
// the debt, payments reduce it, and a credit balance is clamped to zero.
func balanceBefore(accountID int64, txns []core.CardTransaction, before core.Date) core.Money {
	var debt core.Money
	for _, tx := range txns {
		if accountID != 0 && tx.AccountID != 0 && tx.AccountID != accountID {
			continue
		}
		if !tx.Date.Before(before.Time) {
			continue
		}
		switch tx.Kind {
		case core.TxPurchase:
			debt = debt.Add(tx.Amount)
		case core.TxPayment:
			debt = debt.Sub(tx.Amount)
		}
		if debt.IsNegative() {
			debt = core.Money{}
		}
	}
	return debt
}
