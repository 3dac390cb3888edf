package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"prestiti/internal/billing"
	"prestiti/internal/cache"
	"prestiti/internal/config"
	"prestiti/internal/core"

	"github.com/shopspring/decimal"
)

// fakeStore is an in-memory Store for service tests.
type fakeStore struct {
	mu       sync.Mutex
	loans    map[int64]core.Loan
	payments map[int64][]core.RecordedPayment
	accounts map[int64]core.CreditAccount
	txns     map[int64][]core.CardTransaction
	snapshot *core.Summary
	nextID   int64

	failSnapshot bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		loans:    make(map[int64]core.Loan),
		payments: make(map[int64][]core.RecordedPayment),
		accounts: make(map[int64]core.CreditAccount),
		txns:     make(map[int64][]core.CardTransaction),
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) CreateLoan(ctx context.Context, loan core.Loan) (core.Loan, error) {
	if err := loan.Validate(); err != nil {
		return core.Loan{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	loan.ID = f.id()
	f.loans[loan.ID] = loan
	return loan, nil
}

func (f *fakeStore) GetLoan(ctx context.Context, id int64) (core.Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	loan, ok := f.loans[id]
	if !ok {
		return core.Loan{}, fmt.Errorf("loan %d: %w", id, core.ErrNotFound)
	}
	return loan, nil
}

func (f *fakeStore) ListLoans(ctx context.Context) ([]core.Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var loans []core.Loan
	for id := int64(1); id <= f.nextID; id++ {
		if loan, ok := f.loans[id]; ok {
			loans = append(loans, loan)
		}
	}
	return loans, nil
}

func (f *fakeStore) DeleteLoan(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.loans[id]; !ok {
		return fmt.Errorf("loan %d: %w", id, core.ErrNotFound)
	}
	delete(f.loans, id)
	return nil
}

func (f *fakeStore) CreatePayment(ctx context.Context, p core.RecordedPayment) (core.RecordedPayment, error) {
	if err := p.Validate(); err != nil {
		return core.RecordedPayment{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.loans[p.LoanID]; !ok {
		return core.RecordedPayment{}, fmt.Errorf("loan %d: %w", p.LoanID, core.ErrNotFound)
	}
	p.ID = f.id()
	f.payments[p.LoanID] = append(f.payments[p.LoanID], p)
	return p, nil
}

func (f *fakeStore) ListPaymentsByLoan(ctx context.Context, loanID int64) ([]core.RecordedPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.RecordedPayment(nil), f.payments[loanID]...), nil
}

func (f *fakeStore) CreateAccount(ctx context.Context, a core.CreditAccount) (core.CreditAccount, error) {
	if err := a.Validate(); err != nil {
		return core.CreditAccount{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	a.ID = f.id()
	f.accounts[a.ID] = a
	return a, nil
}

func (f *fakeStore) GetAccount(ctx context.Context, id int64) (core.CreditAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return core.CreditAccount{}, fmt.Errorf("account %d: %w", id, core.ErrNotFound)
	}
	return a, nil
}

func (f *fakeStore) ListAccounts(ctx context.Context) ([]core.CreditAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var accounts []core.CreditAccount
	for id := int64(1); id <= f.nextID; id++ {
		if a, ok := f.accounts[id]; ok {
			accounts = append(accounts, a)
		}
	}
	return accounts, nil
}

func (f *fakeStore) DeleteAccount(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[id]; !ok {
		return fmt.Errorf("account %d: %w", id, core.ErrNotFound)
	}
	delete(f.accounts, id)
	return nil
}

func (f *fakeStore) CreateTransaction(ctx context.Context, t core.CardTransaction) (core.CardTransaction, error) {
	if err := t.Validate(); err != nil {
		return core.CardTransaction{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[t.AccountID]; !ok {
		return core.CardTransaction{}, fmt.Errorf("account %d: %w", t.AccountID, core.ErrNotFound)
	}
	t.ID = f.id()
	f.txns[t.AccountID] = append(f.txns[t.AccountID], t)
	return t, nil
}

func (f *fakeStore) ListTransactionsByAccount(ctx context.Context, accountID int64) ([]core.CardTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.CardTransaction(nil), f.txns[accountID]...), nil
}

func (f *fakeStore) SaveSnapshot(ctx context.Context, s core.Summary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSnapshot {
		return errors.New("disk full")
	}
	f.snapshot = &s
	return nil
}

func (f *fakeStore) LatestSnapshot(ctx context.Context) (core.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapshot == nil {
		return core.Summary{}, fmt.Errorf("snapshot: %w", core.ErrNotFound)
	}
	return *f.snapshot, nil
}

// fakePublisher records published recompute requests.
type fakePublisher struct {
	mu        sync.Mutex
	published []string
	fail      bool
}

func (p *fakePublisher) PublishRecompute(ctx context.Context, loanID int64, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, fmt.Sprintf("%d:%s", loanID, reason))
	return nil
}

func testPolicy() billing.Policy {
	return billing.Policy{
		MinPaymentRate:  decimal.RequireFromString("0.03"),
		MinPaymentFloor: core.MoneyFromCents(50000),
		GraceDays:       21,
	}
}

func newTestService(store *fakeStore, pub Publisher) *PortfolioService {
	c := cache.NewLRUCache[string](100, time.Minute)
	return NewPortfolioService(store, c, pub, testPolicy())
}

func testLoan() core.Loan {
	return core.Loan{
		Name:       "car",
		Kind:       core.KindAnnuity,
		Principal:  core.MoneyFromCents(12000000),
		AnnualRate: decimal.RequireFromString("12"),
		TermMonths: 12,
		Start:      core.NewDate(2024, 1, 15),
	}
}

func TestPortfolioService_CreateLoanPublishesRecompute(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	svc := newTestService(store, pub)

	loan, err := svc.CreateLoan(context.Background(), testLoan())
	if err != nil {
		t.Fatalf("CreateLoan() error = %v", err)
	}
	if loan.ID == 0 {
		t.Error("CreateLoan() should assign an ID")
	}

	want := fmt.Sprintf("%d:loan_created", loan.ID)
	if len(pub.published) != 1 || pub.published[0] != want {
		t.Errorf("published = %v, want [%s]", pub.published, want)
	}
}

func TestPortfolioService_CreateLoanSurvivesBrokerOutage(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{fail: true}
	svc := newTestService(store, pub)

	loan, err := svc.CreateLoan(context.Background(), testLoan())
	if err != nil {
		t.Fatalf("CreateLoan() error = %v, want nil despite publish failure", err)
	}
	if _, err := store.GetLoan(context.Background(), loan.ID); err != nil {
		t.Errorf("loan should be persisted even when publish fails: %v", err)
	}
}

func TestPortfolioService_ScheduleForLoanCaches(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	loan, err := svc.CreateLoan(ctx, testLoan())
	if err != nil {
		t.Fatalf("CreateLoan() error = %v", err)
	}

	first, err := svc.ScheduleForLoan(ctx, loan.ID)
	if err != nil {
		t.Fatalf("ScheduleForLoan() error = %v", err)
	}
	if len(first) != 12 {
		t.Fatalf("len(schedule) = %d, want 12", len(first))
	}

	// The second read must come from cache and be identical.
	second, err := svc.ScheduleForLoan(ctx, loan.ID)
	if err != nil {
		t.Fatalf("ScheduleForLoan() second call error = %v", err)
	}
	if len(second) != len(first) {
		t.Fatalf("cached schedule length = %d, want %d", len(second), len(first))
	}
	for i := range first {
		if !second[i].Payment.Equal(first[i].Payment) || !second[i].DueDate.Equal(first[i].DueDate.Time) {
			t.Errorf("period %d: cached entry differs: got %+v, want %+v", i+1, second[i], first[i])
		}
	}
}

func TestPortfolioService_ScheduleForLoanNotFound(t *testing.T) {
	svc := newTestService(newFakeStore(), nil)

	_, err := svc.ScheduleForLoan(context.Background(), 42)
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("ScheduleForLoan(missing) error = %v, want ErrNotFound", err)
	}
}

func TestPortfolioService_MatchesForLoan(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakePublisher{})
	ctx := context.Background()

	loan, err := svc.CreateLoan(ctx, testLoan())
	if err != nil {
		t.Fatalf("CreateLoan() error = %v", err)
	}

	entries, err := svc.ScheduleForLoan(ctx, loan.ID)
	if err != nil {
		t.Fatalf("ScheduleForLoan() error = %v", err)
	}

	// Settle the first period exactly.
	_, err = svc.RecordPayment(ctx, core.RecordedPayment{
		LoanID: loan.ID,
		Date:   core.NewDate(2024, 2, 10),
		Amount: entries[0].Payment,
	})
	if err != nil {
		t.Fatalf("RecordPayment() error = %v", err)
	}

	result, err := svc.MatchesForLoan(ctx, loan.ID)
	if err != nil {
		t.Fatalf("MatchesForLoan() error = %v", err)
	}
	if got := result.SettledCount(); got != 1 {
		t.Errorf("SettledCount() = %d, want 1", got)
	}
	if len(result.Unmatched) != 0 {
		t.Errorf("Unmatched = %v, want none", result.Unmatched)
	}
}

func TestPortfolioService_SummaryAggregatesLoansAndCards(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakePublisher{})
	ctx := context.Background()

	if _, err := svc.CreateLoan(ctx, testLoan()); err != nil {
		t.Fatalf("CreateLoan() error = %v", err)
	}

	_, err := svc.CreateAccount(ctx, core.CreditAccount{
		Name:         "visa",
		CreditLimit:  core.MoneyFromCents(300000),
		Debt:         core.MoneyFromCents(5000),
		AnnualRate:   decimal.RequireFromString("24"),
		StatementDay: 25,
		GraceDays:    20,
	})
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	asOf := core.NewDate(2024, 1, 20)
	summary, err := svc.Summary(ctx, asOf)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}

	// Nothing is settled: total debt = full loan principal + card debt.
	wantDebt := core.MoneyFromCents(12000000 + 5000)
	if !summary.TotalDebt.Equal(wantDebt) {
		t.Errorf("TotalDebt = %s, want %s", summary.TotalDebt, wantDebt)
	}
	if !summary.TotalInterest.Equal(core.MoneyFromCents(794226)) {
		t.Errorf("TotalInterest = %s, want 7942.26", summary.TotalInterest)
	}
	if summary.NextDueDate.IsEmpty() {
		t.Error("NextDueDate should be set")
	}

	// The summary is persisted as the latest snapshot.
	stored, err := svc.LatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("LatestSnapshot() error = %v", err)
	}
	if !stored.TotalDebt.Equal(summary.TotalDebt) {
		t.Errorf("snapshot TotalDebt = %s, want %s", stored.TotalDebt, summary.TotalDebt)
	}
}

func TestPortfolioService_SummarySurvivesSnapshotFailure(t *testing.T) {
	store := newFakeStore()
	store.failSnapshot = true
	svc := newTestService(store, nil)
	ctx := context.Background()

	if _, err := svc.CreateLoan(ctx, testLoan()); err != nil {
		t.Fatalf("CreateLoan() error = %v", err)
	}

	summary, err := svc.Summary(ctx, core.NewDate(2024, 1, 20))
	if err != nil {
		t.Fatalf("Summary() error = %v, want nil when only the snapshot write fails", err)
	}
	if summary.TotalDebt.IsZero() {
		t.Error("Summary() should still return computed figures")
	}
}

func TestPortfolioService_DeleteLoanInvalidatesCache(t *testing.T) {
	store := newFakeStore()
	c := cache.NewLRUCache[string](100, time.Minute)
	svc := NewPortfolioService(store, c, nil, testPolicy())
	ctx := context.Background()

	loan, err := svc.CreateLoan(ctx, testLoan())
	if err != nil {
		t.Fatalf("CreateLoan() error = %v", err)
	}
	if _, err := svc.ScheduleForLoan(ctx, loan.ID); err != nil {
		t.Fatalf("ScheduleForLoan() error = %v", err)
	}
	if c.Size() != 1 {
		t.Fatalf("cache size = %d, want 1", c.Size())
	}

	if err := svc.DeleteLoan(ctx, loan.ID); err != nil {
		t.Fatalf("DeleteLoan() error = %v", err)
	}
	if c.Size() != 0 {
		t.Errorf("cache size after delete = %d, want 0", c.Size())
	}
}

func TestPortfolioService_GraceForAccount(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	acct, err := svc.CreateAccount(ctx, core.CreditAccount{
		Name:         "visa",
		CreditLimit:  core.MoneyFromCents(300000),
		AnnualRate:   decimal.RequireFromString("24"),
		StatementDay: 25,
		GraceDays:    20,
	})
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	// No prior balance: the purchase qualifies for grace.
	ok, err := svc.GraceForAccount(ctx, acct.ID, core.NewDate(2024, 3, 10))
	if err != nil {
		t.Fatalf("GraceForAccount() error = %v", err)
	}
	if !ok {
		t.Error("GraceForAccount() = false, want true with no prior balance")
	}
}

func TestPolicyFromConfig(t *testing.T) {
	cfg := &config.Config{
		MinPaymentRate:   "0.05",
		MinPaymentFloor:  "250.00",
		DefaultGraceDays: 30,
	}

	pol, err := PolicyFromConfig(cfg)
	if err != nil {
		t.Fatalf("PolicyFromConfig() error = %v", err)
	}
	if !pol.MinPaymentRate.Equal(decimal.RequireFromString("0.05")) {
		t.Errorf("MinPaymentRate = %s, want 0.05", pol.MinPaymentRate)
	}
	if !pol.MinPaymentFloor.Equal(core.MoneyFromCents(25000)) {
		t.Errorf("MinPaymentFloor = %s, want 250.00", pol.MinPaymentFloor)
	}
	if pol.GraceDays != 30 {
		t.Errorf("GraceDays = %d, want 30", pol.GraceDays)
	}
}

func TestPolicyFromConfig_BadRate(t *testing.T) {
	cfg := &config.Config{
		MinPaymentRate:  "lots",
		MinPaymentFloor: "250.00",
	}

	if _, err := PolicyFromConfig(cfg); err == nil {
		t.Error("PolicyFromConfig() should reject a non-numeric rate")
	}
}
