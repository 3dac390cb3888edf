package schedule

import (
	"prestiti/internal/core"
)

// UnmatchReason explains why a recorded payment could not be associated
// with any schedule period.
type UnmatchReason string

const (
	// UnmatchedBeforeStart: the payment predates the loan start date.
	UnmatchedBeforeStart UnmatchReason = "before_loan_start"
	// UnmatchedAfterEnd: the payment falls after the final due date's month.
	UnmatchedAfterEnd UnmatchReason = "after_final_period"
	// UnmatchedNoPeriod: the payment is inside the loan's lifetime but its
	// month carries no due date (a payment in the start month, before the
	// first period is due).
	UnmatchedNoPeriod UnmatchReason = "no_matching_period"
)

// PeriodMatch is the derived payment state of one schedule period.
type PeriodMatch struct {
	Period    int
	Scheduled core.Money
	Paid      core.Money // cumulative recorded amount for the period
	Settled   bool       // Paid >= Scheduled
}

// UnmatchedPayment is a payment reported back to the caller instead of
// being silently dropped or snapped to the nearest period.
type UnmatchedPayment struct {
	Payment core.RecordedPayment
	Reason  UnmatchReason
}

// MatchResult is a derived view over a schedule; neither the schedule nor
// the payments are mutated.
type MatchResult struct {
	Periods   []PeriodMatch // one per schedule entry, in period order
	Unmatched []UnmatchedPayment
}

// SettledCount returns how many periods are fully settled.
func (r MatchResult) SettledCount() int {
	n := 0
	for _, p := range r.Periods {
		if p.Settled {
			n++
		}
	}
	return n
}

// MatchPayments overlays recorded payments onto a computed schedule.
//
// A payment belongs to the unique period whose due date falls in the same
// calendar month and year as the payment date. Multiple payments in one
// period accumulate; the period is settled once the cumulative amount
// reaches the scheduled payment. Partial payments leave the period pending.
func MatchPayments(loan core.Loan, entries []core.ScheduleEntry, payments []core.RecordedPayment) MatchResult {
	result := MatchResult{Periods: make([]PeriodMatch, len(entries))}

	// Due months are consecutive, so (year, month) identifies a period.
	byMonth := make(map[[2]int]int, len(entries))
	for i, e := range entries {
		result.Periods[i] = PeriodMatch{Period: e.Period, Scheduled: e.Payment}
		byMonth[[2]int{e.DueDate.Year(), int(e.DueDate.Month())}] = i
	}

	var finalDue core.Date
	if len(entries) > 0 {
		finalDue = entries[len(entries)-1].DueDate
	}

	for _, p := range payments {
		if p.Date.Before(loan.Start.Time) {
			result.Unmatched = append(result.Unmatched, UnmatchedPayment{Payment: p, Reason: UnmatchedBeforeStart})
			continue
		}
		idx, ok := byMonth[[2]int{p.Date.Year(), int(p.Date.Month())}]
		if !ok {
			reason := UnmatchedNoPeriod
			if !finalDue.IsEmpty() && p.Date.After(endOfMonth(finalDue).Time) {
				reason = UnmatchedAfterEnd
			}
			result.Unmatched = append(result.Unmatched, UnmatchedPayment{Payment: p, Reason: reason})
			continue
		}
		result.Periods[idx].Paid = result.Periods[idx].Paid.Add(p.Amount)
	}

	for i := range result.Periods {
		result.Periods[i].Settled = result.Periods[i].Paid.Cmp(result.Periods[i].Scheduled) >= 0 &&
			result.Periods[i].Scheduled.IsPositive()
	}

	return result
}

func endOfMonth(d core.Date) core.Date {
	first := core.NewDate(d.Year(), int(d.Month()), 1)
	return core.Date{Time: first.AddDate(0, 1, -1)}
}
