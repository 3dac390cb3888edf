package http

import (
	"context"

	"prestiti/internal/billing"
	"prestiti/internal/core"
	"prestiti/internal/schedule"
)

// PortfolioAPI is the service surface the handlers are written against.
// *services.PortfolioService satisfies it; tests use a fake.
type PortfolioAPI interface {
	CreateLoan(ctx context.Context, loan core.Loan) (core.Loan, error)
	GetLoan(ctx context.Context, id int64) (core.Loan, error)
	ListLoans(ctx context.Context) ([]core.Loan, error)
	DeleteLoan(ctx context.Context, id int64) error

	RecordPayment(ctx context.Context, p core.RecordedPayment) (core.RecordedPayment, error)
	PaymentsForLoan(ctx context.Context, loanID int64) ([]core.RecordedPayment, error)
	ScheduleForLoan(ctx context.Context, loanID int64) ([]core.ScheduleEntry, error)
	MatchesForLoan(ctx context.Context, loanID int64) (schedule.MatchResult, error)

	CreateAccount(ctx context.Context, a core.CreditAccount) (core.CreditAccount, error)
	GetAccount(ctx context.Context, id int64) (core.CreditAccount, error)
	ListAccounts(ctx context.Context) ([]core.CreditAccount, error)
	DeleteAccount(ctx context.Context, id int64) error

	RecordTransaction(ctx context.Context, t core.CardTransaction) (core.CardTransaction, error)
	TransactionsForAccount(ctx context.Context, accountID int64) ([]core.CardTransaction, error)
	CyclesForAccount(ctx context.Context, accountID int64, from, to core.Date) ([]billing.StatementCycle, error)
	GraceForAccount(ctx context.Context, accountID int64, purchaseDate core.Date) (bool, error)

	Summary(ctx context.Context, asOf core.Date) (core.Summary, error)
	LatestSnapshot(ctx context.Context) (core.Summary, error)
}
