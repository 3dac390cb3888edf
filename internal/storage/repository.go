package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"prestiti/internal/core"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// SQLiteRepository persists loans, payments, credit accounts and card
// transactions and exposes them as core domain values.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) CreateLoan(ctx context.Context, loan core.Loan) (core.Loan, error) {
	if err := loan.Validate(); err != nil {
		return core.Loan{}, err
	}

	row, err := r.queries.CreateLoan(ctx, CreateLoanParams{
		Name:           loan.Name,
		Kind:           string(loan.Kind),
		PrincipalCents: loan.Principal.Cents(),
		AnnualRate:     loan.AnnualRate.String(),
		TermMonths:     int64(loan.TermMonths),
		StartDate:      loan.Start.String(),
	})
	if err != nil {
		return core.Loan{}, fmt.Errorf("create loan: %w", err)
	}

	slog.InfoContext(ctx, "Loan saved",
		"loan_id", row.ID,
		"name", row.Name,
		"principal_cents", row.PrincipalCents,
		"term_months", row.TermMonths)

	return loanFromRow(row)
}

func (r *SQLiteRepository) GetLoan(ctx context.Context, id int64) (core.Loan, error) {
	row, err := r.queries.GetLoan(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Loan{}, fmt.Errorf("loan %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Loan{}, fmt.Errorf("get loan: %w", err)
	}
	return loanFromRow(row)
}

func (r *SQLiteRepository) ListLoans(ctx context.Context) ([]core.Loan, error) {
	rows, err := r.queries.ListLoans(ctx)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}

	loans := make([]core.Loan, 0, len(rows))
	for _, row := range rows {
		loan, err := loanFromRow(row)
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	return loans, nil
}

func (r *SQLiteRepository) DeleteLoan(ctx context.Context, id int64) error {
	affected, err := r.queries.SoftDeleteLoan(ctx, id)
	if err != nil {
		return fmt.Errorf("delete loan: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("loan %d: %w", id, core.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) CreatePayment(ctx context.Context, p core.RecordedPayment) (core.RecordedPayment, error) {
	if err := p.Validate(); err != nil {
		return core.RecordedPayment{}, err
	}
	if _, err := r.GetLoan(ctx, p.LoanID); err != nil {
		return core.RecordedPayment{}, err
	}

	row, err := r.queries.CreatePayment(ctx, CreatePaymentParams{
		LoanID:      p.LoanID,
		PaidOn:      p.Date.String(),
		AmountCents: p.Amount.Cents(),
	})
	if err != nil {
		return core.RecordedPayment{}, fmt.Errorf("create payment: %w", err)
	}

	slog.InfoContext(ctx, "Payment recorded",
		"payment_id", row.ID,
		"loan_id", row.LoanID,
		"amount_cents", row.AmountCents,
		"paid_on", row.PaidOn)

	return paymentFromRow(row)
}

func (r *SQLiteRepository) ListPaymentsByLoan(ctx context.Context, loanID int64) ([]core.RecordedPayment, error) {
	rows, err := r.queries.ListPaymentsByLoan(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	payments := make([]core.RecordedPayment, 0, len(rows))
	for _, row := range rows {
		p, err := paymentFromRow(row)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, nil
}

func (r *SQLiteRepository) CreateAccount(ctx context.Context, a core.CreditAccount) (core.CreditAccount, error) {
	if err := a.Validate(); err != nil {
		return core.CreditAccount{}, err
	}

	row, err := r.queries.CreateAccount(ctx, CreateAccountParams{
		Name:             a.Name,
		CreditLimitCents: a.CreditLimit.Cents(),
		DebtCents:        a.Debt.Cents(),
		AnnualRate:       a.AnnualRate.String(),
		StatementDay:     int64(a.StatementDay),
		GraceDays:        int64(a.GraceDays),
	})
	if err != nil {
		return core.CreditAccount{}, fmt.Errorf("create account: %w", err)
	}

	slog.InfoContext(ctx, "Credit account saved",
		"account_id", row.ID,
		"name", row.Name,
		"statement_day", row.StatementDay)

	return accountFromRow(row)
}

func (r *SQLiteRepository) GetAccount(ctx context.Context, id int64) (core.CreditAccount, error) {
	row, err := r.queries.GetAccount(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.CreditAccount{}, fmt.Errorf("account %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.CreditAccount{}, fmt.Errorf("get account: %w", err)
	}
	return accountFromRow(row)
}

func (r *SQLiteRepository) ListAccounts(ctx context.Context) ([]core.CreditAccount, error) {
	rows, err := r.queries.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	accounts := make([]core.CreditAccount, 0, len(rows))
	for _, row := range rows {
		a, err := accountFromRow(row)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, nil
}

func (r *SQLiteRepository) DeleteAccount(ctx context.Context, id int64) error {
	affected, err := r.queries.SoftDeleteAccount(ctx, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("account %d: %w", id, core.ErrNotFound)
	}
	return nil
}

// CreateTransaction appends a ledger entry and keeps the account's running
// debt in step: purchases increase it, payments decrease it (floored at zero).
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.CardTransaction) (core.CardTransaction, error) {
	if err := t.Validate(); err != nil {
		return core.CardTransaction{}, err
	}
	acct, err := r.GetAccount(ctx, t.AccountID)
	if err != nil {
		return core.CardTransaction{}, err
	}

	row, err := r.queries.CreateTransaction(ctx, CreateTransactionParams{
		AccountID:   t.AccountID,
		PostedOn:    t.Date.String(),
		AmountCents: t.Amount.Cents(),
		Kind:        string(t.Kind),
	})
	if err != nil {
		return core.CardTransaction{}, fmt.Errorf("create transaction: %w", err)
	}

	debt := acct.Debt.Cents()
	if t.Kind == core.TxPurchase {
		debt += t.Amount.Cents()
	} else {
		debt -= t.Amount.Cents()
		if debt < 0 {
			debt = 0
		}
	}
	if _, err := r.queries.UpdateAccountDebt(ctx, debt, t.AccountID); err != nil {
		return core.CardTransaction{}, fmt.Errorf("update account debt: %w", err)
	}

	slog.InfoContext(ctx, "Card transaction recorded",
		"transaction_id", row.ID,
		"account_id", row.AccountID,
		"kind", row.Kind,
		"amount_cents", row.AmountCents,
		"debt_cents", debt)

	return transactionFromRow(row)
}

func (r *SQLiteRepository) ListTransactionsByAccount(ctx context.Context, accountID int64) ([]core.CardTransaction, error) {
	rows, err := r.queries.ListTransactionsByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	txns := make([]core.CardTransaction, 0, len(rows))
	for _, row := range rows {
		t, err := transactionFromRow(row)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, nil
}

func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, s core.Summary) error {
	var nextDue sql.NullString
	if !s.NextDueDate.IsEmpty() {
		nextDue = sql.NullString{String: s.NextDueDate.String(), Valid: true}
	}

	row, err := r.queries.InsertSnapshot(ctx, InsertSnapshotParams{
		TotalDebtCents:     s.TotalDebt.Cents(),
		TotalInterestCents: s.TotalInterest.Cents(),
		NextDueDate:        nextDue,
	})
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	slog.InfoContext(ctx, "Portfolio snapshot stored",
		"snapshot_id", row.ID,
		"total_debt_cents", row.TotalDebtCents,
		"total_interest_cents", row.TotalInterestCents)

	return nil
}

func (r *SQLiteRepository) LatestSnapshot(ctx context.Context) (core.Summary, error) {
	row, err := r.queries.LatestSnapshot(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Summary{}, fmt.Errorf("snapshot: %w", core.ErrNotFound)
	}
	if err != nil {
		return core.Summary{}, fmt.Errorf("latest snapshot: %w", err)
	}

	s := core.Summary{
		TotalDebt:     core.MoneyFromCents(row.TotalDebtCents),
		TotalInterest: core.MoneyFromCents(row.TotalInterestCents),
	}
	if row.NextDueDate.Valid {
		d, err := core.ParseDate(row.NextDueDate.String)
		if err != nil {
			return core.Summary{}, fmt.Errorf("parse snapshot due date: %w", err)
		}
		s.NextDueDate = d
	}
	return s, nil
}

func loanFromRow(row Loan) (core.Loan, error) {
	rate, err := decimal.NewFromString(row.AnnualRate)
	if err != nil {
		return core.Loan{}, fmt.Errorf("parse loan %d rate: %w", row.ID, err)
	}
	start, err := core.ParseDate(row.StartDate)
	if err != nil {
		return core.Loan{}, fmt.Errorf("parse loan %d start date: %w", row.ID, err)
	}
	return core.Loan{
		ID:         row.ID,
		Name:       row.Name,
		Kind:       core.LoanKind(row.Kind),
		Principal:  core.MoneyFromCents(row.PrincipalCents),
		AnnualRate: rate,
		TermMonths: int(row.TermMonths),
		Start:      start,
	}, nil
}

func paymentFromRow(row RecordedPayment) (core.RecordedPayment, error) {
	paidOn, err := core.ParseDate(row.PaidOn)
	if err != nil {
		return core.RecordedPayment{}, fmt.Errorf("parse payment %d date: %w", row.ID, err)
	}
	return core.RecordedPayment{
		ID:     row.ID,
		LoanID: row.LoanID,
		Date:   paidOn,
		Amount: core.MoneyFromCents(row.AmountCents),
	}, nil
}

func accountFromRow(row CreditAccount) (core.CreditAccount, error) {
	rate, err := decimal.NewFromString(row.AnnualRate)
	if err != nil {
		return core.CreditAccount{}, fmt.Errorf("parse account %d rate: %w", row.ID, err)
	}
	return core.CreditAccount{
		ID:           row.ID,
		Name:         row.Name,
		CreditLimit:  core.MoneyFromCents(row.CreditLimitCents),
		Debt:         core.MoneyFromCents(row.DebtCents),
		AnnualRate:   rate,
		StatementDay: int(row.StatementDay),
		GraceDays:    int(row.GraceDays),
	}, nil
}

func transactionFromRow(row CardTransaction) (core.CardTransaction, error) {
	postedOn, err := core.ParseDate(row.PostedOn)
	if err != nil {
		return core.CardTransaction{}, fmt.Errorf("parse transaction %d date: %w", row.ID, err)
	}
	return core.CardTransaction{
		ID:        row.ID,
		AccountID: row.AccountID,
		Date:      postedOn,
		Amount:    core.MoneyFromCents(row.AmountCents),
		Kind:      core.TxKind(row.Kind),
	}, nil
}
