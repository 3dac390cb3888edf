package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"prestiti/internal/billing"
	"prestiti/internal/core"
	"prestiti/internal/schedule"

	"github.com/shopspring/decimal"
)

// fakeAPI is a scripted PortfolioAPI for handler tests.
type fakeAPI struct {
	loans    map[int64]core.Loan
	accounts map[int64]core.CreditAccount
	payments map[int64][]core.RecordedPayment
	txns     map[int64][]core.CardTransaction
	nextID   int64

	snapshotErr error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		loans:    make(map[int64]core.Loan),
		accounts: make(map[int64]core.CreditAccount),
		payments: make(map[int64][]core.RecordedPayment),
		txns:     make(map[int64][]core.CardTransaction),
	}
}

func (f *fakeAPI) CreateLoan(ctx context.Context, loan core.Loan) (core.Loan, error) {
	f.nextID++
	loan.ID = f.nextID
	f.loans[loan.ID] = loan
	return loan, nil
}

func (f *fakeAPI) GetLoan(ctx context.Context, id int64) (core.Loan, error) {
	loan, ok := f.loans[id]
	if !ok {
		return core.Loan{}, fmt.Errorf("loan %d: %w", id, core.ErrNotFound)
	}
	return loan, nil
}

func (f *fakeAPI) ListLoans(ctx context.Context) ([]core.Loan, error) {
	var out []core.Loan
	for id := int64(1); id <= f.nextID; id++ {
		if l, ok := f.loans[id]; ok {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeAPI) DeleteLoan(ctx context.Context, id int64) error {
	if _, ok := f.loans[id]; !ok {
		return fmt.Errorf("loan %d: %w", id, core.ErrNotFound)
	}
	delete(f.loans, id)
	return nil
}

func (f *fakeAPI) RecordPayment(ctx context.Context, p core.RecordedPayment) (core.RecordedPayment, error) {
	if _, ok := f.loans[p.LoanID]; !ok {
		return core.RecordedPayment{}, fmt.Errorf("loan %d: %w", p.LoanID, core.ErrNotFound)
	}
	f.nextID++
	p.ID = f.nextID
	f.payments[p.LoanID] = append(f.payments[p.LoanID], p)
	return p, nil
}

func (f *fakeAPI) PaymentsForLoan(ctx context.Context, loanID int64) ([]core.RecordedPayment, error) {
	if _, ok := f.loans[loanID]; !ok {
		return nil, fmt.Errorf("loan %d: %w", loanID, core.ErrNotFound)
	}
	return f.payments[loanID], nil
}

func (f *fakeAPI) ScheduleForLoan(ctx context.Context, loanID int64) ([]core.ScheduleEntry, error) {
	loan, ok := f.loans[loanID]
	if !ok {
		return nil, fmt.Errorf("loan %d: %w", loanID, core.ErrNotFound)
	}
	return schedule.Compute(loan)
}

func (f *fakeAPI) MatchesForLoan(ctx context.Context, loanID int64) (schedule.MatchResult, error) {
	loan, ok := f.loans[loanID]
	if !ok {
		return schedule.MatchResult{}, fmt.Errorf("loan %d: %w", loanID, core.ErrNotFound)
	}
	entries, err := schedule.Compute(loan)
	if err != nil {
		return schedule.MatchResult{}, err
	}
	return schedule.MatchPayments(loan, entries, f.payments[loanID]), nil
}

func (f *fakeAPI) CreateAccount(ctx context.Context, a core.CreditAccount) (core.CreditAccount, error) {
	f.nextID++
	a.ID = f.nextID
	f.accounts[a.ID] = a
	return a, nil
}

func (f *fakeAPI) GetAccount(ctx context.Context, id int64) (core.CreditAccount, error) {
	a, ok := f.accounts[id]
	if !ok {
		return core.CreditAccount{}, fmt.Errorf("account %d: %w", id, core.ErrNotFound)
	}
	return a, nil
}

func (f *fakeAPI) ListAccounts(ctx context.Context) ([]core.CreditAccount, error) {
	var out []core.CreditAccount
	for id := int64(1); id <= f.nextID; id++ {
		if a, ok := f.accounts[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAPI) DeleteAccount(ctx context.Context, id int64) error {
	if _, ok := f.accounts[id]; !ok {
		return fmt.Errorf("account %d: %w", id, core.ErrNotFound)
	}
	delete(f.accounts, id)
	return nil
}

func (f *fakeAPI) RecordTransaction(ctx context.Context, t core.CardTransaction) (core.CardTransaction, error) {
	if _, ok := f.accounts[t.AccountID]; !ok {
		return core.CardTransaction{}, fmt.Errorf("account %d: %w", t.AccountID, core.ErrNotFound)
	}
	f.nextID++
	t.ID = f.nextID
	f.txns[t.AccountID] = append(f.txns[t.AccountID], t)
	return t, nil
}

func (f *fakeAPI) TransactionsForAccount(ctx context.Context, accountID int64) ([]core.CardTransaction, error) {
	if _, ok := f.accounts[accountID]; !ok {
		return nil, fmt.Errorf("account %d: %w", accountID, core.ErrNotFound)
	}
	return f.txns[accountID], nil
}

func (f *fakeAPI) CyclesForAccount(ctx context.Context, accountID int64, from, to core.Date) ([]billing.StatementCycle, error) {
	acct, ok := f.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account %d: %w", accountID, core.ErrNotFound)
	}
	pol := billing.Policy{
		MinPaymentRate:  decimal.RequireFromString("0.03"),
		MinPaymentFloor: core.MoneyFromCents(50000),
		GraceDays:       21,
	}
	return billing.Cycles(acct, pol, from, to, f.txns[accountID])
}

func (f *fakeAPI) GraceForAccount(ctx context.Context, accountID int64, purchaseDate core.Date) (bool, error) {
	if _, ok := f.accounts[accountID]; !ok {
		return false, fmt.Errorf("account %d: %w", accountID, core.ErrNotFound)
	}
	return true, nil
}

func (f *fakeAPI) Summary(ctx context.Context, asOf core.Date) (core.Summary, error) {
	return core.Summary{
		TotalDebt:     core.MoneyFromCents(12005000),
		TotalInterest: core.MoneyFromCents(794226),
		NextDueDate:   core.NewDate(2024, 2, 15),
	}, nil
}

func (f *fakeAPI) LatestSnapshot(ctx context.Context) (core.Summary, error) {
	if f.snapshotErr != nil {
		return core.Summary{}, f.snapshotErr
	}
	return core.Summary{
		TotalDebt:     core.MoneyFromCents(12005000),
		TotalInterest: core.MoneyFromCents(794226),
		NextDueDate:   core.NewDate(2024, 2, 15),
	}, nil
}

func newTestServer(api PortfolioAPI) *Server {
	return NewServer(":0", api)
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func seedLoan(t *testing.T, api *fakeAPI) core.Loan {
	t.Helper()
	loan, err := api.CreateLoan(context.Background(), core.Loan{
		Name:       "car",
		Kind:       core.KindAnnuity,
		Principal:  core.MoneyFromCents(12000000),
		AnnualRate: decimal.RequireFromString("12"),
		TermMonths: 12,
		Start:      core.NewDate(2024, 1, 15),
	})
	if err != nil {
		t.Fatalf("seed loan: %v", err)
	}
	return loan
}

func TestCreateLoan(t *testing.T) {
	api := newFakeAPI()
	s := newTestServer(api)

	body := `{"name":"car","kind":"annuity","principal":"120000.00","annual_rate":"12","term_months":12,"start_date":"2024-01-15"}`
	rec := doRequest(t, s, http.MethodPost, "/api/loans", body)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		ID         int64  `json:"id"`
		Principal  string `json:"principal"`
		AnnualRate string `json:"annual_rate"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.ID == 0 {
		t.Error("response should carry the assigned ID")
	}
	if resp.Principal != "120000.00" {
		t.Errorf("principal = %q, want \"120000.00\"", resp.Principal)
	}
}

func TestCreateLoan_ValidationError(t *testing.T) {
	s := newTestServer(newFakeAPI())

	tests := []struct {
		name      string
		body      string
		wantCode  int
		wantField string
	}{
		{
			name:      "negative principal",
			body:      `{"name":"car","principal":"-5","annual_rate":"12","term_months":12,"start_date":"2024-01-15"}`,
			wantCode:  http.StatusUnprocessableEntity,
			wantField: "principal",
		},
		{
			name:      "zero term",
			body:      `{"name":"car","principal":"1000.00","annual_rate":"12","term_months":0,"start_date":"2024-01-15"}`,
			wantCode:  http.StatusUnprocessableEntity,
			wantField: "term_months",
		},
		{
			name:      "bad start date",
			body:      `{"name":"car","principal":"1000.00","annual_rate":"12","term_months":12,"start_date":"yesterday"}`,
			wantCode:  http.StatusUnprocessableEntity,
			wantField: "start_date",
		},
		{
			name:     "malformed JSON",
			body:     `{"name":`,
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodPost, "/api/loans", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d; body: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantField != "" {
				var resp errorEnvelope
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatalf("unmarshal error body: %v", err)
				}
				if resp.Error.Field != tt.wantField {
					t.Errorf("error field = %q, want %q", resp.Error.Field, tt.wantField)
				}
			}
		})
	}
}

func TestGetLoan_NotFound(t *testing.T) {
	s := newTestServer(newFakeAPI())

	rec := doRequest(t, s, http.MethodGet, "/api/loans/42", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGetLoan_BadID(t *testing.T) {
	s := newTestServer(newFakeAPI())

	rec := doRequest(t, s, http.MethodGet, "/api/loans/abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestLoanSchedule(t *testing.T) {
	api := newFakeAPI()
	loan := seedLoan(t, api)
	s := newTestServer(api)

	rec := doRequest(t, s, http.MethodGet, fmt.Sprintf("/api/loans/%d/schedule", loan.ID), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}

	var entries []struct {
		Period  int    `json:"period"`
		DueDate string `json:"due_date"`
		Payment string `json:"payment"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(entries) != 12 {
		t.Fatalf("len(entries) = %d, want 12", len(entries))
	}
	if entries[0].DueDate != "2024-02-15" {
		t.Errorf("first due date = %q, want \"2024-02-15\"", entries[0].DueDate)
	}
	if entries[0].Payment != "10661.85" {
		t.Errorf("first payment = %q, want \"10661.85\"", entries[0].Payment)
	}
}

func TestRecordPaymentAndMatches(t *testing.T) {
	api := newFakeAPI()
	loan := seedLoan(t, api)
	s := newTestServer(api)

	body := `{"paid_on":"2024-02-10","amount":"10661.85"}`
	rec := doRequest(t, s, http.MethodPost, fmt.Sprintf("/api/loans/%d/payments", loan.ID), body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("payment status = %d, want 201; body: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodGet, fmt.Sprintf("/api/loans/%d/matches", loan.ID), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("matches status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Settled int `json:"settled_count"`
		Periods []struct {
			Settled bool `json:"settled"`
		} `json:"periods"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Settled != 1 {
		t.Errorf("settled_count = %d, want 1", resp.Settled)
	}
	if len(resp.Periods) != 12 || !resp.Periods[0].Settled {
		t.Errorf("first period should be settled")
	}
}

func TestDeleteLoan(t *testing.T) {
	api := newFakeAPI()
	loan := seedLoan(t, api)
	s := newTestServer(api)

	rec := doRequest(t, s, http.MethodDelete, fmt.Sprintf("/api/loans/%d", loan.ID), "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, fmt.Sprintf("/api/loans/%d", loan.ID), "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status after delete = %d, want 404", rec.Code)
	}
}

func TestCreateAccountAndCycles(t *testing.T) {
	api := newFakeAPI()
	s := newTestServer(api)

	body := `{"name":"visa","credit_limit":"3000.00","debt":"50.00","annual_rate":"24","statement_day":25,"grace_days":20}`
	rec := doRequest(t, s, http.MethodPost, "/api/cards", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body: %s", rec.Code, rec.Body.String())
	}

	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}

	rec = doRequest(t, s, http.MethodGet,
		fmt.Sprintf("/api/cards/%d/cycles?from=2024-03-01&to=2024-05-31", created.ID), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("cycles status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}

	var cycles []struct {
		Start string `json:"start"`
		End   string `json:"end"`
		Due   string `json:"due"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &cycles); err != nil {
		t.Fatalf("unmarshal cycles: %v", err)
	}
	if len(cycles) == 0 {
		t.Fatal("expected at least one cycle")
	}
	if cycles[0].Start != "2024-02-25" || cycles[0].End != "2024-03-25" {
		t.Errorf("first cycle = %s..%s, want 2024-02-25..2024-03-25", cycles[0].Start, cycles[0].End)
	}
}

func TestAccountCycles_BadRange(t *testing.T) {
	api := newFakeAPI()
	s := newTestServer(api)

	body := `{"name":"visa","credit_limit":"3000.00","annual_rate":"24","statement_day":25}`
	rec := doRequest(t, s, http.MethodPost, "/api/cards", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}

	rec = doRequest(t, s, http.MethodGet,
		fmt.Sprintf("/api/cards/%d/cycles?from=banana", created.ID), "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestAccountGrace(t *testing.T) {
	api := newFakeAPI()
	s := newTestServer(api)

	body := `{"name":"visa","credit_limit":"3000.00","annual_rate":"24","statement_day":25,"grace_days":20}`
	rec := doRequest(t, s, http.MethodPost, "/api/cards", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}

	rec = doRequest(t, s, http.MethodGet,
		fmt.Sprintf("/api/cards/%d/grace?date=2024-03-10", created.ID), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		GraceApplicable bool   `json:"grace_applicable"`
		PurchaseDate    string `json:"purchase_date"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.GraceApplicable {
		t.Error("grace_applicable = false, want true")
	}
	if resp.PurchaseDate != "2024-03-10" {
		t.Errorf("purchase_date = %q, want \"2024-03-10\"", resp.PurchaseDate)
	}
}

func TestSummary(t *testing.T) {
	s := newTestServer(newFakeAPI())

	rec := doRequest(t, s, http.MethodGet, "/api/summary?as_of=2024-01-20", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		TotalDebt     string `json:"total_debt"`
		TotalInterest string `json:"total_interest"`
		NextDueDate   string `json:"next_due_date"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.TotalDebt != "120050.00" {
		t.Errorf("total_debt = %q, want \"120050.00\"", resp.TotalDebt)
	}
	if resp.NextDueDate != "2024-02-15" {
		t.Errorf("next_due_date = %q, want \"2024-02-15\"", resp.NextDueDate)
	}
}

func TestLatestSnapshot(t *testing.T) {
	s := newTestServer(newFakeAPI())

	rec := doRequest(t, s, http.MethodGet, "/api/summary/latest", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		TotalDebt     string `json:"total_debt"`
		TotalInterest string `json:"total_interest"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.TotalInterest != "7942.26" {
		t.Errorf("total_interest = %q, want \"7942.26\"", resp.TotalInterest)
	}
}

func TestLatestSnapshot_NoneYet(t *testing.T) {
	api := newFakeAPI()
	api.snapshotErr = fmt.Errorf("snapshot: %w", core.ErrNotFound)
	s := newTestServer(api)

	rec := doRequest(t, s, http.MethodGet, "/api/summary/latest", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404; body: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(newFakeAPI())

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doRequest(t, s, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rec.Code)
		}
	}
}

func TestRateLimitOnWrites(t *testing.T) {
	api := newFakeAPI()
	s := newTestServer(api)
	defer s.rateLimiter.stop()

	body := `{"name":"car","principal":"1000.00","annual_rate":"12","term_months":12,"start_date":"2024-01-15"}`

	var limited bool
	for i := 0; i < 70; i++ {
		rec := doRequest(t, s, http.MethodPost, "/api/loans", body)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("expected a 429 after exceeding the per-minute write budget")
	}
}
