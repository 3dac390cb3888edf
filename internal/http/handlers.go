package http

import (
	"net/http"

	"prestiti/internal/billing"
	"prestiti/internal/core"
	"prestiti/internal/schedule"
)

type loanResponse struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Kind       string     `json:"kind"`
	Principal  core.Money `json:"principal"`
	AnnualRate string     `json:"annual_rate"`
	TermMonths int        `json:"term_months"`
	StartDate  core.Date  `json:"start_date"`
}

func toLoanResponse(l core.Loan) loanResponse {
	return loanResponse{
		ID:         l.ID,
		Name:       l.Name,
		Kind:       string(l.Kind),
		Principal:  l.Principal,
		AnnualRate: l.AnnualRate.String(),
		TermMonths: l.TermMonths,
		StartDate:  l.Start,
	}
}

type paymentResponse struct {
	ID     int64      `json:"id"`
	LoanID int64      `json:"loan_id"`
	PaidOn core.Date  `json:"paid_on"`
	Amount core.Money `json:"amount"`
}

func toPaymentResponse(p core.RecordedPayment) paymentResponse {
	return paymentResponse{ID: p.ID, LoanID: p.LoanID, PaidOn: p.Date, Amount: p.Amount}
}

type scheduleEntryResponse struct {
	Period         int        `json:"period"`
	DueDate        core.Date  `json:"due_date"`
	OpeningBalance core.Money `json:"opening_balance"`
	Payment        core.Money `json:"payment"`
	Interest       core.Money `json:"interest"`
	Principal      core.Money `json:"principal"`
	ClosingBalance core.Money `json:"closing_balance"`
}

func toScheduleResponse(entries []core.ScheduleEntry) []scheduleEntryResponse {
	out := make([]scheduleEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = scheduleEntryResponse{
			Period:         e.Period,
			DueDate:        e.DueDate,
			OpeningBalance: e.OpeningBalance,
			Payment:        e.Payment,
			Interest:       e.Interest,
			Principal:      e.Principal,
			ClosingBalance: e.ClosingBalance,
		}
	}
	return out
}

type periodMatchResponse struct {
	Period    int        `json:"period"`
	Scheduled core.Money `json:"scheduled"`
	Paid      core.Money `json:"paid"`
	Settled   bool       `json:"settled"`
}

type unmatchedResponse struct {
	Payment paymentResponse `json:"payment"`
	Reason  string          `json:"reason"`
}

type matchResponse struct {
	Periods   []periodMatchResponse `json:"periods"`
	Unmatched []unmatchedResponse   `json:"unmatched"`
	Settled   int                   `json:"settled_count"`
}

func toMatchResponse(r schedule.MatchResult) matchResponse {
	resp := matchResponse{
		Periods:   make([]periodMatchResponse, len(r.Periods)),
		Unmatched: make([]unmatchedResponse, len(r.Unmatched)),
		Settled:   r.SettledCount(),
	}
	for i, p := range r.Periods {
		resp.Periods[i] = periodMatchResponse{
			Period:    p.Period,
			Scheduled: p.Scheduled,
			Paid:      p.Paid,
			Settled:   p.Settled,
		}
	}
	for i, u := range r.Unmatched {
		resp.Unmatched[i] = unmatchedResponse{
			Payment: toPaymentResponse(u.Payment),
			Reason:  string(u.Reason),
		}
	}
	return resp
}

type accountResponse struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	CreditLimit  core.Money `json:"credit_limit"`
	Debt         core.Money `json:"debt"`
	AnnualRate   string     `json:"annual_rate"`
	StatementDay int        `json:"statement_day"`
	GraceDays    int        `json:"grace_days"`
}

func toAccountResponse(a core.CreditAccount) accountResponse {
	return accountResponse{
		ID:           a.ID,
		Name:         a.Name,
		CreditLimit:  a.CreditLimit,
		Debt:         a.Debt,
		AnnualRate:   a.AnnualRate.String(),
		StatementDay: a.StatementDay,
		GraceDays:    a.GraceDays,
	}
}

type transactionResponse struct {
	ID        int64      `json:"id"`
	AccountID int64      `json:"account_id"`
	PostedOn  core.Date  `json:"posted_on"`
	Amount    core.Money `json:"amount"`
	Kind      string     `json:"kind"`
}

func toTransactionResponse(t core.CardTransaction) transactionResponse {
	return transactionResponse{
		ID:        t.ID,
		AccountID: t.AccountID,
		PostedOn:  t.Date,
		Amount:    t.Amount,
		Kind:      string(t.Kind),
	}
}

type cycleResponse struct {
	Start          core.Date  `json:"start"`
	End            core.Date  `json:"end"`
	Due            core.Date  `json:"due"`
	ClosingDebt    core.Money `json:"closing_debt"`
	MinimumPayment core.Money `json:"minimum_payment"`
}

func toCycleResponses(cycles []billing.StatementCycle) []cycleResponse {
	out := make([]cycleResponse, len(cycles))
	for i, c := range cycles {
		out[i] = cycleResponse{
			Start:          c.Start,
			End:            c.End,
			Due:            c.Due,
			ClosingDebt:    c.ClosingDebt,
			MinimumPayment: c.MinimumPayment,
		}
	}
	return out
}

type graceResponse struct {
	AccountID       int64     `json:"account_id"`
	PurchaseDate    core.Date `json:"purchase_date"`
	GraceApplicable bool      `json:"grace_applicable"`
}

type summaryResponse struct {
	TotalDebt     core.Money `json:"total_debt"`
	TotalInterest core.Money `json:"total_interest"`
	NextDueDate   core.Date  `json:"next_due_date"`
}

func (s *Server) handleCreateLoan(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "malformed JSON body")
		return
	}
	loan, err := req.toCore()
	if err != nil {
		writeError(w, err)
		return
	}

	created, err := s.api.CreateLoan(r.Context(), loan)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLoanResponse(created))
}

func (s *Server) handleListLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := s.api.ListLoans(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]loanResponse, len(loans))
	for i, l := range loans {
		out[i] = toLoanResponse(l)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	loan, err := s.api.GetLoan(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanResponse(loan))
}

func (s *Server) handleDeleteLoan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if err := s.api.DeleteLoan(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleLoanSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	entries, err := s.api.ScheduleForLoan(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleResponse(entries))
}

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "malformed JSON body")
		return
	}
	payment, err := req.toCore(id)
	if err != nil {
		writeError(w, err)
		return
	}

	created, err := s.api.RecordPayment(r.Context(), payment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentResponse(created))
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	payments, err := s.api.PaymentsForLoan(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]paymentResponse, len(payments))
	for i, p := range payments {
		out[i] = toPaymentResponse(p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLoanMatches(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	result, err := s.api.MatchesForLoan(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMatchResponse(result))
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "malformed JSON body")
		return
	}
	acct, err := req.toCore()
	if err != nil {
		writeError(w, err)
		return
	}

	created, err := s.api.CreateAccount(r.Context(), acct)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountResponse(created))
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.api.ListAccounts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]accountResponse, len(accounts))
	for i, a := range accounts {
		out[i] = toAccountResponse(a)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	acct, err := s.api.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(acct))
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if err := s.api.DeleteAccount(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "malformed JSON body")
		return
	}
	txn, err := req.toCore(id)
	if err != nil {
		writeError(w, err)
		return
	}

	created, err := s.api.RecordTransaction(r.Context(), txn)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionResponse(created))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	txns, err := s.api.TransactionsForAccount(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]transactionResponse, len(txns))
	for i, t := range txns {
		out[i] = toTransactionResponse(t)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAccountCycles(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	from, to, err := dateRangeQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	cycles, err := s.api.CyclesForAccount(r.Context(), id, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCycleResponses(cycles))
}

func (s *Server) handleAccountGrace(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	date, err := dateQuery(r, "date")
	if err != nil {
		writeError(w, err)
		return
	}
	applicable, err := s.api.GraceForAccount(r.Context(), id, date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, graceResponse{
		AccountID:       id,
		PurchaseDate:    date,
		GraceApplicable: applicable,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	asOf, err := dateQuery(r, "as_of")
	if err != nil {
		writeError(w, err)
		return
	}
	summary, err := s.api.Summary(r.Context(), asOf)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{
		TotalDebt:     summary.TotalDebt,
		TotalInterest: summary.TotalInterest,
		NextDueDate:   summary.NextDueDate,
	})
}

// handleLatestSnapshot serves the last persisted rollup without recomputing.
func (s *Server) handleLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	summary, err := s.api.LatestSnapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{
		TotalDebt:     summary.TotalDebt,
		TotalInterest: summary.TotalInterest,
		NextDueDate:   summary.NextDueDate,
	})
}
