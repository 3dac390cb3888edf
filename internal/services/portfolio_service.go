package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"prestiti/internal/amqp"
	"prestiti/internal/billing"
	"prestiti/internal/cache"
	"prestiti/internal/config"
	"prestiti/internal/core"
	"prestiti/internal/schedule"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Store is the persistence surface the portfolio service needs.
// *storage.SQLiteRepository satisfies it.
type Store interface {
	CreateLoan(ctx context.Context, loan core.Loan) (core.Loan, error)
	GetLoan(ctx context.Context, id int64) (core.Loan, error)
	ListLoans(ctx context.Context) ([]core.Loan, error)
	DeleteLoan(ctx context.Context, id int64) error
	CreatePayment(ctx context.Context, p core.RecordedPayment) (core.RecordedPayment, error)
	ListPaymentsByLoan(ctx context.Context, loanID int64) ([]core.RecordedPayment, error)
	CreateAccount(ctx context.Context, a core.CreditAccount) (core.CreditAccount, error)
	GetAccount(ctx context.Context, id int64) (core.CreditAccount, error)
	ListAccounts(ctx context.Context) ([]core.CreditAccount, error)
	DeleteAccount(ctx context.Context, id int64) error
	CreateTransaction(ctx context.Context, t core.CardTransaction) (core.CardTransaction, error)
	ListTransactionsByAccount(ctx context.Context, accountID int64) ([]core.CardTransaction, error)
	SaveSnapshot(ctx context.Context, s core.Summary) error
	LatestSnapshot(ctx context.Context) (core.Summary, error)
}

// Publisher pushes recompute requests onto the message queue.
// *amqp.Client satisfies it; a nil Publisher disables publishing.
type Publisher interface {
	PublishRecompute(ctx context.Context, loanID int64, reason string) error
}

// PortfolioService orchestrates loan and card operations across SQLite,
// the schedule cache and AMQP.
type PortfolioService struct {
	store     Store
	cache     cache.Cache[string]
	publisher Publisher
	policy    billing.Policy
}

func NewPortfolioService(store Store, c cache.Cache[string], publisher Publisher, policy billing.Policy) *PortfolioService {
	return &PortfolioService{
		store:     store,
		cache:     c,
		publisher: publisher,
		policy:    policy,
	}
}

// PolicyFromConfig builds the billing policy from validated configuration.
func PolicyFromConfig(cfg *config.Config) (billing.Policy, error) {
	rate, err := decimal.NewFromString(cfg.MinPaymentRate)
	if err != nil {
		return billing.Policy{}, fmt.Errorf("parse MIN_PAYMENT_RATE: %w", err)
	}
	floor, err := core.ParseMoney(cfg.MinPaymentFloor)
	if err != nil {
		return billing.Policy{}, fmt.Errorf("parse MIN_PAYMENT_FLOOR: %w", err)
	}
	pol := billing.Policy{
		MinPaymentRate:  rate,
		MinPaymentFloor: floor,
		GraceDays:       cfg.DefaultGraceDays,
	}
	if err := pol.Validate(); err != nil {
		return billing.Policy{}, err
	}
	return pol, nil
}

// Policy exposes the configured billing policy.
func (s *PortfolioService) Policy() billing.Policy {
	return s.policy
}

// CreateLoan stores a loan and requests an async schedule recompute.
func (s *PortfolioService) CreateLoan(ctx context.Context, loan core.Loan) (core.Loan, error) {
	created, err := s.store.CreateLoan(ctx, loan)
	if err != nil {
		return core.Loan{}, fmt.Errorf("save loan: %w", err)
	}

	s.publish(ctx, created.ID, amqp.ReasonLoanCreated)
	return created, nil
}

func (s *PortfolioService) GetLoan(ctx context.Context, id int64) (core.Loan, error) {
	return s.store.GetLoan(ctx, id)
}

func (s *PortfolioService) ListLoans(ctx context.Context) ([]core.Loan, error) {
	return s.store.ListLoans(ctx)
}

// DeleteLoan soft-deletes a loan and drops its cached schedule.
func (s *PortfolioService) DeleteLoan(ctx context.Context, id int64) error {
	if err := s.store.DeleteLoan(ctx, id); err != nil {
		return err
	}
	s.invalidateSchedule(id)
	return nil
}

// RecordPayment registers a payment against a loan's ledger. The cached
// schedule stays valid (payments never alter scheduled amounts) but the
// worker is told so it can refresh exports and the portfolio snapshot.
func (s *PortfolioService) RecordPayment(ctx context.Context, p core.RecordedPayment) (core.RecordedPayment, error) {
	created, err := s.store.CreatePayment(ctx, p)
	if err != nil {
		return core.RecordedPayment{}, fmt.Errorf("save payment: %w", err)
	}

	s.publish(ctx, created.LoanID, amqp.ReasonPaymentRecorded)
	return created, nil
}

// ScheduleForLoan computes a loan's amortization schedule, serving it from
// cache when possible. Entries are ephemeral; the cache is the only place
// they outlive a request.
func (s *PortfolioService) ScheduleForLoan(ctx context.Context, loanID int64) ([]core.ScheduleEntry, error) {
	key := scheduleKey(loanID)
	if s.cache != nil {
		if raw, ok := s.cache.Get(key); ok {
			var entries []core.ScheduleEntry
			if err := json.Unmarshal([]byte(raw), &entries); err == nil {
				return entries, nil
			}
			// Corrupt entry: drop it and recompute.
			s.cache.Delete(key)
		}
	}

	loan, err := s.store.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	entries, err := schedule.Compute(loan)
	if err != nil {
		return nil, fmt.Errorf("compute schedule: %w", err)
	}

	if s.cache != nil {
		if raw, err := json.Marshal(entries); err == nil {
			s.cache.Set(key, string(raw))
		}
	}
	return entries, nil
}

// MatchesForLoan overlays recorded payments onto the loan's schedule.
func (s *PortfolioService) MatchesForLoan(ctx context.Context, loanID int64) (schedule.MatchResult, error) {
	loan, err := s.store.GetLoan(ctx, loanID)
	if err != nil {
		return schedule.MatchResult{}, err
	}
	entries, err := s.ScheduleForLoan(ctx, loanID)
	if err != nil {
		return schedule.MatchResult{}, err
	}
	payments, err := s.store.ListPaymentsByLoan(ctx, loanID)
	if err != nil {
		return schedule.MatchResult{}, err
	}
	return schedule.MatchPayments(loan, entries, payments), nil
}

func (s *PortfolioService) PaymentsForLoan(ctx context.Context, loanID int64) ([]core.RecordedPayment, error) {
	if _, err := s.store.GetLoan(ctx, loanID); err != nil {
		return nil, err
	}
	return s.store.ListPaymentsByLoan(ctx, loanID)
}

func (s *PortfolioService) CreateAccount(ctx context.Context, a core.CreditAccount) (core.CreditAccount, error) {
	return s.store.CreateAccount(ctx, a)
}

func (s *PortfolioService) GetAccount(ctx context.Context, id int64) (core.CreditAccount, error) {
	return s.store.GetAccount(ctx, id)
}

func (s *PortfolioService) ListAccounts(ctx context.Context) ([]core.CreditAccount, error) {
	return s.store.ListAccounts(ctx)
}

func (s *PortfolioService) DeleteAccount(ctx context.Context, id int64) error {
	return s.store.DeleteAccount(ctx, id)
}

func (s *PortfolioService) RecordTransaction(ctx context.Context, t core.CardTransaction) (core.CardTransaction, error) {
	return s.store.CreateTransaction(ctx, t)
}

func (s *PortfolioService) TransactionsForAccount(ctx context.Context, accountID int64) ([]core.CardTransaction, error) {
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.ListTransactionsByAccount(ctx, accountID)
}

// CyclesForAccount returns the account's statement cycles over [from, to].
func (s *PortfolioService) CyclesForAccount(ctx context.Context, accountID int64, from, to core.Date) ([]billing.StatementCycle, error) {
	acct, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	txns, err := s.store.ListTransactionsByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	cycles, err := billing.Cycles(acct, s.policy, from, to, txns)
	if err != nil {
		return nil, fmt.Errorf("compute cycles: %w", err)
	}
	return cycles, nil
}

// GraceForAccount reports whether interest-free repayment applies to a
// purchase made on purchaseDate.
func (s *PortfolioService) GraceForAccount(ctx context.Context, accountID int64, purchaseDate core.Date) (bool, error) {
	acct, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return false, err
	}
	txns, err := s.store.ListTransactionsByAccount(ctx, accountID)
	if err != nil {
		return false, err
	}
	applicable, err := billing.GraceApplicable(acct, s.policy, purchaseDate, txns)
	if err != nil {
		return false, fmt.Errorf("evaluate grace: %w", err)
	}
	return applicable, nil
}

// Summary computes the portfolio rollup as of the given date, fanning the
// per-loan and per-card work out across goroutines, and stores the result
// as the latest snapshot.
func (s *PortfolioService) Summary(ctx context.Context, asOf core.Date) (core.Summary, error) {
	loans, err := s.store.ListLoans(ctx)
	if err != nil {
		return core.Summary{}, err
	}
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return core.Summary{}, err
	}

	loanViews := make([]LoanView, len(loans))
	cardViews := make([]CardView, len(accounts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for i, loan := range loans {
		g.Go(func() error {
			entries, err := s.ScheduleForLoan(gctx, loan.ID)
			if err != nil {
				return fmt.Errorf("loan %d schedule: %w", loan.ID, err)
			}
			payments, err := s.store.ListPaymentsByLoan(gctx, loan.ID)
			if err != nil {
				return fmt.Errorf("loan %d payments: %w", loan.ID, err)
			}
			loanViews[i] = LoanView{
				Loan:     loan,
				Schedule: entries,
				Match:    schedule.MatchPayments(loan, entries, payments),
			}
			return nil
		})
	}

	// One year of upcoming cycles is enough to find the next due date.
	cycleFrom := asOf
	cycleTo := core.DateFrom(asOf.AddDate(1, 0, 0))
	for i, acct := range accounts {
		g.Go(func() error {
			txns, err := s.store.ListTransactionsByAccount(gctx, acct.ID)
			if err != nil {
				return fmt.Errorf("account %d transactions: %w", acct.ID, err)
			}
			cycles, err := billing.Cycles(acct, s.policy, cycleFrom, cycleTo, txns)
			if err != nil {
				return fmt.Errorf("account %d cycles: %w", acct.ID, err)
			}
			cardViews[i] = CardView{Account: acct, Cycles: cycles}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return core.Summary{}, err
	}

	summary := Aggregate(asOf, loanViews, cardViews)

	if err := s.store.SaveSnapshot(ctx, summary); err != nil {
		slog.ErrorContext(ctx, "Failed to store portfolio snapshot", "error", err)
		// The computed summary is still good; snapshot is best effort.
	}

	return summary, nil
}

// LatestSnapshot returns the most recently stored portfolio rollup.
func (s *PortfolioService) LatestSnapshot(ctx context.Context) (core.Summary, error) {
	return s.store.LatestSnapshot(ctx)
}

// InvalidateSchedule drops the cached schedule for a loan. The worker
// calls this when a recompute message arrives.
func (s *PortfolioService) InvalidateSchedule(loanID int64) {
	s.invalidateSchedule(loanID)
}

func (s *PortfolioService) invalidateSchedule(loanID int64) {
	if s.cache != nil {
		s.cache.Delete(scheduleKey(loanID))
	}
}

func (s *PortfolioService) publish(ctx context.Context, loanID int64, reason string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishRecompute(ctx, loanID, reason); err != nil {
		slog.ErrorContext(ctx, "Failed to publish recompute message",
			"loan_id", loanID,
			"reason", reason,
			"error", err)
		// Don't fail the request - the write already succeeded locally.
	}
}

func scheduleKey(loanID int64) string {
	return fmt.Sprintf("schedule:%d", loanID)
}
