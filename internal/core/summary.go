package core

// LoanFigures is the per-loan contribution to a portfolio summary.
type LoanFigures struct {
	LoanID      int64
	Outstanding Money // principal not yet settled
	Overpayment Money // total scheduled interest over the full term
	NextDue     Date  // zero when nothing is left to pay
}

// Summary is the portfolio rollup handed to the presentation layer.
type Summary struct {
	TotalDebt     Money
	TotalInterest Money
	NextDueDate   Date // zero when no payment is upcoming
}
