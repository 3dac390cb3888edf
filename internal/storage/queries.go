package storage

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is the subset of *sql.DB / *sql.Tx the queries need.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

// Loan is a row in the loans table. Monetary values are stored as cents
// and rates as decimal strings so no precision is lost at the SQL layer.
type Loan struct {
	ID             int64
	Name           string
	Kind           string
	PrincipalCents int64
	AnnualRate     string
	TermMonths     int64
	StartDate      string
	CreatedAt      time.Time
	DeletedAt      sql.NullTime
}

type RecordedPayment struct {
	ID          int64
	LoanID      int64
	PaidOn      string
	AmountCents int64
	CreatedAt   time.Time
}

type CreditAccount struct {
	ID               int64
	Name             string
	CreditLimitCents int64
	DebtCents        int64
	AnnualRate       string
	StatementDay     int64
	GraceDays        int64
	CreatedAt        time.Time
	DeletedAt        sql.NullTime
}

type CardTransaction struct {
	ID          int64
	AccountID   int64
	PostedOn    string
	AmountCents int64
	Kind        string
	CreatedAt   time.Time
}

type PortfolioSnapshot struct {
	ID                 int64
	ComputedAt         time.Time
	TotalDebtCents     int64
	TotalInterestCents int64
	NextDueDate        sql.NullString
}

const createLoan = `
INSERT INTO loans (name, kind, principal_cents, annual_rate, term_months, start_date)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING id, name, kind, principal_cents, annual_rate, term_months, start_date, created_at, deleted_at
`

type CreateLoanParams struct {
	Name           string
	Kind           string
	PrincipalCents int64
	AnnualRate     string
	TermMonths     int64
	StartDate      string
}

func (q *Queries) CreateLoan(ctx context.Context, arg CreateLoanParams) (Loan, error) {
	row := q.db.QueryRowContext(ctx, createLoan,
		arg.Name,
		arg.Kind,
		arg.PrincipalCents,
		arg.AnnualRate,
		arg.TermMonths,
		arg.StartDate,
	)
	var i Loan
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Kind,
		&i.PrincipalCents,
		&i.AnnualRate,
		&i.TermMonths,
		&i.StartDate,
		&i.CreatedAt,
		&i.DeletedAt,
	)
	return i, err
}

const getLoan = `
SELECT id, name, kind, principal_cents, annual_rate, term_months, start_date, created_at, deleted_at
FROM loans
WHERE id = ? AND deleted_at IS NULL
`

func (q *Queries) GetLoan(ctx context.Context, id int64) (Loan, error) {
	row := q.db.QueryRowContext(ctx, getLoan, id)
	var i Loan
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Kind,
		&i.PrincipalCents,
		&i.AnnualRate,
		&i.TermMonths,
		&i.StartDate,
		&i.CreatedAt,
		&i.DeletedAt,
	)
	return i, err
}

const listLoans = `
SELECT id, name, kind, principal_cents, annual_rate, term_months, start_date, created_at, deleted_at
FROM loans
WHERE deleted_at IS NULL
ORDER BY id
`

func (q *Queries) ListLoans(ctx context.Context) ([]Loan, error) {
	rows, err := q.db.QueryContext(ctx, listLoans)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Loan
	for rows.Next() {
		var i Loan
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.Kind,
			&i.PrincipalCents,
			&i.AnnualRate,
			&i.TermMonths,
			&i.StartDate,
			&i.CreatedAt,
			&i.DeletedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const softDeleteLoan = `
UPDATE loans SET deleted_at = CURRENT_TIMESTAMP
WHERE id = ? AND deleted_at IS NULL
`

func (q *Queries) SoftDeleteLoan(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, softDeleteLoan, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const createPayment = `
INSERT INTO recorded_payments (loan_id, paid_on, amount_cents)
VALUES (?, ?, ?)
RETURNING id, loan_id, paid_on, amount_cents, created_at
`

type CreatePaymentParams struct {
	LoanID      int64
	PaidOn      string
	AmountCents int64
}

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (RecordedPayment, error) {
	row := q.db.QueryRowContext(ctx, createPayment, arg.LoanID, arg.PaidOn, arg.AmountCents)
	var i RecordedPayment
	err := row.Scan(&i.ID, &i.LoanID, &i.PaidOn, &i.AmountCents, &i.CreatedAt)
	return i, err
}

const listPaymentsByLoan = `
SELECT id, loan_id, paid_on, amount_cents, created_at
FROM recorded_payments
WHERE loan_id = ?
ORDER BY paid_on, id
`

func (q *Queries) ListPaymentsByLoan(ctx context.Context, loanID int64) ([]RecordedPayment, error) {
	rows, err := q.db.QueryContext(ctx, listPaymentsByLoan, loanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RecordedPayment
	for rows.Next() {
		var i RecordedPayment
		if err := rows.Scan(&i.ID, &i.LoanID, &i.PaidOn, &i.AmountCents, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const createAccount = `
INSERT INTO credit_accounts (name, credit_limit_cents, debt_cents, annual_rate, statement_day, grace_days)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING id, name, credit_limit_cents, debt_cents, annual_rate, statement_day, grace_days, created_at, deleted_at
`

type CreateAccountParams struct {
	Name             string
	CreditLimitCents int64
	DebtCents        int64
	AnnualRate       string
	StatementDay     int64
	GraceDays        int64
}

func (q *Queries) CreateAccount(ctx context.Context, arg CreateAccountParams) (CreditAccount, error) {
	row := q.db.QueryRowContext(ctx, createAccount,
		arg.Name,
		arg.CreditLimitCents,
		arg.DebtCents,
		arg.AnnualRate,
		arg.StatementDay,
		arg.GraceDays,
	)
	var i CreditAccount
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.CreditLimitCents,
		&i.DebtCents,
		&i.AnnualRate,
		&i.StatementDay,
		&i.GraceDays,
		&i.CreatedAt,
		&i.DeletedAt,
	)
	return i, err
}

const getAccount = `
SELECT id, name, credit_limit_cents, debt_cents, annual_rate, statement_day, grace_days, created_at, deleted_at
FROM credit_accounts
WHERE id = ? AND deleted_at IS NULL
`

func (q *Queries) GetAccount(ctx context.Context, id int64) (CreditAccount, error) {
	row := q.db.QueryRowContext(ctx, getAccount, id)
	var i CreditAccount
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.CreditLimitCents,
		&i.DebtCents,
		&i.AnnualRate,
		&i.StatementDay,
		&i.GraceDays,
		&i.CreatedAt,
		&i.DeletedAt,
	)
	return i, err
}

const listAccounts = `
SELECT id, name, credit_limit_cents, debt_cents, annual_rate, statement_day, grace_days, created_at, deleted_at
FROM credit_accounts
WHERE deleted_at IS NULL
ORDER BY id
`

func (q *Queries) ListAccounts(ctx context.Context) ([]CreditAccount, error) {
	rows, err := q.db.QueryContext(ctx, listAccounts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CreditAccount
	for rows.Next() {
		var i CreditAccount
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.CreditLimitCents,
			&i.DebtCents,
			&i.AnnualRate,
			&i.StatementDay,
			&i.GraceDays,
			&i.CreatedAt,
			&i.DeletedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const softDeleteAccount = `
UPDATE credit_accounts SET deleted_at = CURRENT_TIMESTAMP
WHERE id = ? AND deleted_at IS NULL
`

func (q *Queries) SoftDeleteAccount(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, softDeleteAccount, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const updateAccountDebt = `
UPDATE credit_accounts SET debt_cents = ?
WHERE id = ? AND deleted_at IS NULL
`

func (q *Queries) UpdateAccountDebt(ctx context.Context, debtCents, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateAccountDebt, debtCents, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const createTransaction = `
INSERT INTO card_transactions (account_id, posted_on, amount_cents, kind)
VALUES (?, ?, ?, ?)
RETURNING id, account_id, posted_on, amount_cents, kind, created_at
`

type CreateTransactionParams struct {
	AccountID   int64
	PostedOn    string
	AmountCents int64
	Kind        string
}

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (CardTransaction, error) {
	row := q.db.QueryRowContext(ctx, createTransaction,
		arg.AccountID,
		arg.PostedOn,
		arg.AmountCents,
		arg.Kind,
	)
	var i CardTransaction
	err := row.Scan(&i.ID, &i.AccountID, &i.PostedOn, &i.AmountCents, &i.Kind, &i.CreatedAt)
	return i, err
}

const listTransactionsByAccount = `
SELECT id, account_id, posted_on, amount_cents, kind, created_at
FROM card_transactions
WHERE account_id = ?
ORDER BY posted_on, id
`

func (q *Queries) ListTransactionsByAccount(ctx context.Context, accountID int64) ([]CardTransaction, error) {
	rows, err := q.db.QueryContext(ctx, listTransactionsByAccount, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CardTransaction
	for rows.Next() {
		var i CardTransaction
		if err := rows.Scan(&i.ID, &i.AccountID, &i.PostedOn, &i.AmountCents, &i.Kind, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const insertSnapshot = `
INSERT INTO portfolio_snapshots (total_debt_cents, total_interest_cents, next_due_date)
VALUES (?, ?, ?)
RETURNING id, computed_at, total_debt_cents, total_interest_cents, next_due_date
`

type InsertSnapshotParams struct {
	TotalDebtCents     int64
	TotalInterestCents int64
	NextDueDate        sql.NullString
}

func (q *Queries) InsertSnapshot(ctx context.Context, arg InsertSnapshotParams) (PortfolioSnapshot, error) {
	row := q.db.QueryRowContext(ctx, insertSnapshot,
		arg.TotalDebtCents,
		arg.TotalInterestCents,
		arg.NextDueDate,
	)
	var i PortfolioSnapshot
	err := row.Scan(&i.ID, &i.ComputedAt, &i.TotalDebtCents, &i.TotalInterestCents, &i.NextDueDate)
	return i, err
}

const latestSnapshot = `
SELECT id, computed_at, total_debt_cents, total_interest_cents, next_due_date
FROM portfolio_snapshots
ORDER BY computed_at DESC, id DESC
LIMIT 1
`

func (q *Queries) LatestSnapshot(ctx context.Context) (PortfolioSnapshot, error) {
	row := q.db.QueryRowContext(ctx, latestSnapshot)
	var i PortfolioSnapshot
	err := row.Scan(&i.ID, &i.ComputedAt, &i.TotalDebtCents, &i.TotalInterestCents, &i.NextDueDate)
	return i, err
}
