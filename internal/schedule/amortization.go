// Package schedule computes annuity amortization schedules and overlays
// recorded payments onto them. Everything here is a pure function over
// immutable inputs; safe to call concurrently.
package schedule

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"prestiti/internal/core"
)

// percentPerMonth converts a percent annual rate to a monthly fraction:
// rate / 100 / 12.
var percentPerMonth = decimal.NewFromInt(1200)

// Compute produces the fixed-payment schedule for an annuity loan.
//
// The monthly payment is derived from the standard annuity coefficient
// k = i*(1+i)^n / ((1+i)^n - 1). The power term is evaluated in float64
// (it is a pure rate, not money); every monetary step is exact decimal
// arithmetic rounded half-up to the cent once per period.
//
// The final period absorbs the rounding residue accumulated over the term:
// its principal portion is forced to the remaining balance so the closing
// balance is exactly zero and the principal portions sum exactly to the
// loan principal.
func Compute(loan core.Loan) ([]core.ScheduleEntry, error) {
	if err := loan.Validate(); err != nil {
		return nil, err
	}
	if loan.Kind != core.KindAnnuity {
		return nil, &core.ValidationError{Field: "kind", Msg: "schedule requires an annuity loan"}
	}

	monthlyRate := loan.AnnualRate.Div(percentPerMonth)
	payment := annuityPayment(loan.Principal, monthlyRate, loan.TermMonths)

	entries := make([]core.ScheduleEntry, 0, loan.TermMonths)
	opening := loan.Principal

	for t := 1; t <= loan.TermMonths; t++ {
		interest := opening.MulRate(monthlyRate)
		principal := payment.Sub(interest)
		due := payment

		if t == loan.TermMonths {
			// Absorb the accumulated rounding residue.
			principal = opening
			due = principal.Add(interest)
		} else if principal.Cmp(opening) > 0 {
			// Rounding pushed the regular payment past the remaining
			// balance before the last period; cap it so no entry ever
			// closes negative.
			principal = opening
			due = principal.Add(interest)
		}

		closing := opening.Sub(principal)
		entries = append(entries, core.ScheduleEntry{
			Period:         t,
			DueDate:        addMonthsClamped(loan.Start, t),
			OpeningBalance: opening,
			Payment:        due,
			Interest:       interest,
			Principal:      principal,
			ClosingBalance: closing,
		})
		opening = closing
	}

	return entries, nil
}

// annuityPayment returns the regular monthly payment, rounded half-up to
// the cent. A zero rate degenerates to an equal principal split.
func annuityPayment(principal core.Money, monthlyRate decimal.Decimal, term int) core.Money {
	if monthlyRate.IsZero() {
		return principal.DivInt(int64(term))
	}
	i := monthlyRate.InexactFloat64()
	factor := math.Pow(1+i, float64(term))
	coefficient := i * factor / (factor - 1)
	return principal.MulRate(decimal.NewFromFloat(coefficient))
}

// addMonthsClamped moves a date forward by whole calendar months,
// preserving the day-of-month where it exists and clamping to the last day
// of shorter target months (a loan started on the 31st is due on Feb 28,
// or 29 in a leap year).
func addMonthsClamped(d core.Date, months int) core.Date {
	first := time.Date(d.Year(), d.Month()+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	day := d.Day()
	if last := first.AddDate(0, 1, -1).Day(); day > last {
		day = last
	}
	return core.NewDate(first.Year(), int(first.Month()), day)
}
