package services

import (
	"prestiti/internal/billing"
	"prestiti/internal/core"
	"prestiti/internal/schedule"
)

// LoanView bundles a loan with its computed schedule and payment overlay.
type LoanView struct {
	Loan     core.Loan
	Schedule []core.ScheduleEntry
	Match    schedule.MatchResult
}

// CardView bundles a credit account with its statement cycles.
type CardView struct {
	Account core.CreditAccount
	Cycles  []billing.StatementCycle
}

// LoanFiguresFor derives the per-loan rollup figures. Outstanding is the
// principal of every period not yet settled; Overpayment is the total
// scheduled interest over the full term; NextDue is the earliest unsettled
// due date on or after asOf.
func LoanFiguresFor(v LoanView, asOf core.Date) core.LoanFigures {
	fig := core.LoanFigures{LoanID: v.Loan.ID}

	for i, entry := range v.Schedule {
		fig.Overpayment = fig.Overpayment.Add(entry.Interest)

		settled := i < len(v.Match.Periods) && v.Match.Periods[i].Settled
		if settled {
			continue
		}
		fig.Outstanding = fig.Outstanding.Add(entry.Principal)
		if fig.NextDue.IsEmpty() && !entry.DueDate.Before(asOf.Time) {
			fig.NextDue = entry.DueDate
		}
	}

	return fig
}

// Aggregate rolls loan and card views up into one portfolio summary.
//
// Total debt is the unsettled loan principal plus every card's current
// debt. Total interest covers the full scheduled loan terms. The next due
// date is the earliest upcoming obligation across both kinds.
func Aggregate(asOf core.Date, loans []LoanView, cards []CardView) core.Summary {
	var sum core.Summary

	for _, v := range loans {
		fig := LoanFiguresFor(v, asOf)
		sum.TotalDebt = sum.TotalDebt.Add(fig.Outstanding)
		sum.TotalInterest = sum.TotalInterest.Add(fig.Overpayment)
		sum.NextDueDate = earlierDue(sum.NextDueDate, fig.NextDue)
	}

	for _, v := range cards {
		sum.TotalDebt = sum.TotalDebt.Add(v.Account.Debt)
		for _, cycle := range v.Cycles {
			if cycle.Due.Before(asOf.Time) || cycle.MinimumPayment.IsZero() {
				continue
			}
			sum.NextDueDate = earlierDue(sum.NextDueDate, cycle.Due)
			break
		}
	}

	return sum
}

func earlierDue(current, candidate core.Date) core.Date {
	if candidate.IsEmpty() {
		return current
	}
	if current.IsEmpty() || candidate.Before(current.Time) {
		return candidate
	}
	return current
}
