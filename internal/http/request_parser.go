// This file converts JSON request bodies and query parameters into domain
// values. Field-level problems come back as *core.ValidationError so the
// response layer can map them to 422 with the offending field named.
package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"prestiti/internal/core"

	"github.com/shopspring/decimal"
)

// maxBodySize bounds request bodies at 64 KiB; nothing this API accepts
// is legitimately larger.
const maxBodySize = 64 << 10

// decodeJSON parses the request body into dst, rejecting trailing garbage.
func decodeJSON(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodySize)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("decode request body: unexpected trailing data")
	}
	_, _ = io.Copy(io.Discard, body)
	return nil
}

// pathID extracts a positive integer ID from a route wildcard.
func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

type loanRequest struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Principal  string `json:"principal"`
	AnnualRate string `json:"annual_rate"`
	TermMonths int    `json:"term_months"`
	StartDate  string `json:"start_date"`
}

func (req loanRequest) toCore() (core.Loan, error) {
	principal, err := core.ParseMoney(req.Principal)
	if err != nil {
		return core.Loan{}, &core.ValidationError{Field: "principal", Msg: "must be a positive amount"}
	}
	rate, err := parseRate(req.AnnualRate)
	if err != nil {
		return core.Loan{}, &core.ValidationError{Field: "annual_rate", Msg: "must be a decimal percentage"}
	}
	start, err := core.ParseDate(req.StartDate)
	if err != nil {
		return core.Loan{}, &core.ValidationError{Field: "start_date", Msg: "must be YYYY-MM-DD"}
	}

	kind := core.LoanKind(req.Kind)
	if req.Kind == "" {
		kind = core.KindAnnuity
	}

	loan := core.Loan{
		Name:       strings.TrimSpace(req.Name),
		Kind:       kind,
		Principal:  principal,
		AnnualRate: rate,
		TermMonths: req.TermMonths,
		Start:      start,
	}
	if err := loan.Validate(); err != nil {
		return core.Loan{}, err
	}
	return loan, nil
}

type paymentRequest struct {
	PaidOn string `json:"paid_on"`
	Amount string `json:"amount"`
}

func (req paymentRequest) toCore(loanID int64) (core.RecordedPayment, error) {
	amount, err := core.ParseMoney(req.Amount)
	if err != nil {
		return core.RecordedPayment{}, &core.ValidationError{Field: "amount", Msg: "must be a positive amount"}
	}
	paidOn, err := core.ParseDate(req.PaidOn)
	if err != nil {
		return core.RecordedPayment{}, &core.ValidationError{Field: "paid_on", Msg: "must be YYYY-MM-DD"}
	}

	p := core.RecordedPayment{
		LoanID: loanID,
		Date:   paidOn,
		Amount: amount,
	}
	if err := p.Validate(); err != nil {
		return core.RecordedPayment{}, err
	}
	return p, nil
}

type accountRequest struct {
	Name         string `json:"name"`
	CreditLimit  string `json:"credit_limit"`
	Debt         string `json:"debt"`
	AnnualRate   string `json:"annual_rate"`
	StatementDay int    `json:"statement_day"`
	GraceDays    int    `json:"grace_days"`
}

func (req accountRequest) toCore() (core.CreditAccount, error) {
	limit, err := core.ParseMoney(req.CreditLimit)
	if err != nil {
		return core.CreditAccount{}, &core.ValidationError{Field: "credit_limit", Msg: "must be a positive amount"}
	}

	var debt core.Money
	if strings.TrimSpace(req.Debt) != "" {
		debt, err = core.ParseMoney(req.Debt)
		if err != nil {
			return core.CreditAccount{}, &core.ValidationError{Field: "debt", Msg: "must be a positive amount"}
		}
	}

	rate, err := parseRate(req.AnnualRate)
	if err != nil {
		return core.CreditAccount{}, &core.ValidationError{Field: "annual_rate", Msg: "must be a decimal percentage"}
	}

	acct := core.CreditAccount{
		Name:         strings.TrimSpace(req.Name),
		CreditLimit:  limit,
		Debt:         debt,
		AnnualRate:   rate,
		StatementDay: req.StatementDay,
		GraceDays:    req.GraceDays,
	}
	if err := acct.Validate(); err != nil {
		return core.CreditAccount{}, err
	}
	return acct, nil
}

type transactionRequest struct {
	PostedOn string `json:"posted_on"`
	Amount   string `json:"amount"`
	Kind     string `json:"kind"`
}

func (req transactionRequest) toCore(accountID int64) (core.CardTransaction, error) {
	amount, err := core.ParseMoney(req.Amount)
	if err != nil {
		return core.CardTransaction{}, &core.ValidationError{Field: "amount", Msg: "must be a positive amount"}
	}
	postedOn, err := core.ParseDate(req.PostedOn)
	if err != nil {
		return core.CardTransaction{}, &core.ValidationError{Field: "posted_on", Msg: "must be YYYY-MM-DD"}
	}

	t := core.CardTransaction{
		AccountID: accountID,
		Date:      postedOn,
		Amount:    amount,
		Kind:      core.TxKind(req.Kind),
	}
	if err := t.Validate(); err != nil {
		return core.CardTransaction{}, err
	}
	return t, nil
}

// dateRangeQuery reads from/to query parameters. When absent, the range
// defaults to today through one year ahead.
func dateRangeQuery(r *http.Request) (from, to core.Date, err error) {
	now := core.DateFrom(time.Now())
	from = now
	to = core.DateFrom(now.AddDate(1, 0, 0))

	if v := strings.TrimSpace(r.URL.Query().Get("from")); v != "" {
		from, err = core.ParseDate(v)
		if err != nil {
			return from, to, &core.ValidationError{Field: "from", Msg: "must be YYYY-MM-DD"}
		}
		// Shift the default end with an explicit start.
		if strings.TrimSpace(r.URL.Query().Get("to")) == "" {
			to = core.DateFrom(from.AddDate(1, 0, 0))
		}
	}
	if v := strings.TrimSpace(r.URL.Query().Get("to")); v != "" {
		to, err = core.ParseDate(v)
		if err != nil {
			return from, to, &core.ValidationError{Field: "to", Msg: "must be YYYY-MM-DD"}
		}
	}
	return from, to, nil
}

// dateQuery reads a single date query parameter, defaulting to today.
func dateQuery(r *http.Request, name string) (core.Date, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return core.DateFrom(time.Now()), nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, &core.ValidationError{Field: name, Msg: "must be YYYY-MM-DD"}
	}
	return d, nil
}

func parseRate(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	return decimal.NewFromString(s)
}
