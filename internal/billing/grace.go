package billing

import (
	"prestiti/internal/core"
)

// GraceApplicable decides whether a purchase posted on purchaseDate enjoys
// the interest-free grace window.
//
// The rule is the retroactive one real issuers apply: a purchase in cycle C
// is interest-free only if the entire statement balance of cycle C is paid
// in full by C's due date. Payments posted during the cycle already reduce
// the statement balance; payments posted in [statement date, due date]
// count toward covering it. If the balance is not fully covered, interest
// accrues retroactively from the purchase date — so the answer is a flat no
// for every purchase in that cycle.
//
// Note: this is the documented approximation of the engine. Issuers differ
// in their own rounding and posting-order conventions, so per-statement
// divergence from a particular bank is expected.
func GraceApplicable(acct core.CreditAccount, pol Policy, purchaseDate core.Date, txns []core.CardTransaction) (bool, error) {
	if err := acct.Validate(); err != nil {
		return false, err
	}
	if err := pol.Validate(); err != nil {
		return false, err
	}
	if purchaseDate.IsZero() {
		return false, &core.ValidationError{Field: "purchase_date", Msg: "must be set"}
	}

	cycle := cycleContaining(acct, purchaseDate)
	due := core.DateFrom(cycle.End.AddDate(0, 0, graceDays(acct, pol)))

	statementBalance := balanceBefore(acct.ID, txns, cycle.End)
	if !statementBalance.IsPositive() {
		// Nothing was owed at statement time, so nothing can revoke grace.
		return true, nil
	}

	var paid core.Money
	for _, tx := range txns {
		if acct.ID != 0 && tx.AccountID != 0 && tx.AccountID != acct.ID {
			continue
		}
		if tx.Kind != core.TxPayment {
			continue
		}
		if tx.Date.Before(cycle.End.Time) || tx.Date.After(due.Time) {
			continue
		}
		paid = paid.Add(tx.Amount)
	}

	return paid.Cmp(statementBalance) >= 0, nil
}
