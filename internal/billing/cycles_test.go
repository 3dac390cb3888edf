package billing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"prestiti/internal/core"
)

func testAccount() core.CreditAccount {
	return core.CreditAccount{
		ID:           7,
		Name:         "visa",
		CreditLimit:  core.MoneyFromCents(30000000),
		Debt:         core.MoneyFromCents(500000),
		AnnualRate:   decimal.NewFromInt(24),
		StatementDay: 25,
		GraceDays:    20,
	}
}

func testPolicy() Policy {
	return Policy{
		MinPaymentRate:  decimal.NewFromFloat(0.03),
		MinPaymentFloor: core.MoneyFromCents(50000),
		GraceDays:       21,
	}
}

func purchase(accountID int64, date core.Date, cents int64) core.CardTransaction {
	return core.CardTransaction{AccountID: accountID, Date: date, Amount: core.MoneyFromCents(cents), Kind: core.TxPurchase}
}

func cardPayment(accountID int64, date core.Date, cents int64) core.CardTransaction {
	return core.CardTransaction{AccountID: accountID, Date: date, Amount: core.MoneyFromCents(cents), Kind: core.TxPayment}
}

func TestCycles_WindowsAndDueDates(t *testing.T) {
	acct := testAccount()

	cycles, err := Cycles(acct, testPolicy(), core.NewDate(2024, 3, 1), core.NewDate(2024, 5, 31), nil)
	if err != nil {
		t.Fatalf("Cycles() error: %v", err)
	}
	if len(cycles) != 4 {
		t.Fatalf("Cycles() returned %d cycles, want 4", len(cycles))
	}

	first := cycles[0]
	if got, want := first.Start, core.NewDate(2024, 2, 25); !got.Equal(want.Time) {
		t.Errorf("first cycle start = %s, want %s", got, want)
	}
	if got, want := first.End, core.NewDate(2024, 3, 25); !got.Equal(want.Time) {
		t.Errorf("first cycle end = %s, want %s", got, want)
	}
	// Account grace (20 days) wins over the policy default.
	if got, want := first.Due, core.NewDate(2024, 4, 14); !got.Equal(want.Time) {
		t.Errorf("first cycle due = %s, want %s", got, want)
	}

	// Cycles tile the range with no gaps.
	for i := 1; i < len(cycles); i++ {
		if !cycles[i].Start.Equal(cycles[i-1].End.Time) {
			t.Errorf("cycle %d start %s != cycle %d end %s", i, cycles[i].Start, i-1, cycles[i-1].End)
		}
	}
}

func TestCycles_StatementDayClampsInShortMonths(t *testing.T) {
	acct := testAccount()
	acct.StatementDay = 31

	cycles, err := Cycles(acct, testPolicy(), core.NewDate(2023, 2, 1), core.NewDate(2023, 3, 15), nil)
	if err != nil {
		t.Fatalf("Cycles() error: %v", err)
	}

	first := cycles[0]
	if got, want := first.Start, core.NewDate(2023, 1, 31); !got.Equal(want.Time) {
		t.Errorf("cycle start = %s, want %s", got, want)
	}
	if got, want := first.End, core.NewDate(2023, 2, 28); !got.Equal(want.Time) {
		t.Errorf("cycle end = %s, want %s (clamped)", got, want)
	}
	second := cycles[1]
	if got, want := second.End, core.NewDate(2023, 3, 31); !got.Equal(want.Time) {
		t.Errorf("next cycle end = %s, want %s (back on the 31st)", got, want)
	}
}

func TestCycles_ClosingDebtFromLedger(t *testing.T) {
	acct := testAccount()
	txns := []core.CardTransaction{
		purchase(7, core.NewDate(2024, 3, 1), 300000),
		purchase(7, core.NewDate(2024, 3, 20), 200000),
		cardPayment(7, core.NewDate(2024, 4, 2), 100000),
		purchase(99, core.NewDate(2024, 3, 5), 999999), // someone else's card
	}

	cycles, err := Cycles(acct, testPolicy(), core.NewDate(2024, 3, 1), core.NewDate(2024, 4, 30), txns)
	if err != nil {
		t.Fatalf("Cycles() error: %v", err)
	}

	// Cycle ending Mar 25: both purchases, no payment yet.
	if got := cycles[0].ClosingDebt.String(); got != "5000.00" {
		t.Errorf("first cycle closing debt = %s, want 5000.00", got)
	}
	// Cycle ending Apr 25: payment of 1000 applied.
	if got := cycles[1].ClosingDebt.String(); got != "4000.00" {
		t.Errorf("second cycle closing debt = %s, want 4000.00", got)
	}
}

func TestMinimumPayment(t *testing.T) {
	pol := testPolicy()

	tests := []struct {
		name      string
		debtCents int64
		want      string
	}{
		{name: "floor wins over three percent", debtCents: 500000, want: "500.00"}, // 3% = 150 < 500
		{name: "rate wins on large debt", debtCents: 5000000, want: "1500.00"},
		{name: "capped at the debt itself", debtCents: 10000, want: "100.00"},
		{name: "zero debt pays nothing", debtCents: 0, want: "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := minimumPayment(core.MoneyFromCents(tt.debtCents), pol)
			if got.String() != tt.want {
				t.Errorf("minimumPayment(%d cents) = %s, want %s", tt.debtCents, got, tt.want)
			}
		})
	}
}

func TestCycles_RejectsBadInput(t *testing.T) {
	acct := testAccount()
	pol := testPolicy()

	_, err := Cycles(acct, pol, core.NewDate(2024, 5, 1), core.NewDate(2024, 4, 1), nil)
	var verr *core.ValidationError
	if !errors.As(err, &verr) || verr.Field != "date_range" {
		t.Errorf("inverted range error = %v, want date_range validation error", err)
	}

	bad := acct
	bad.StatementDay = 0
	if _, err := Cycles(bad, pol, core.NewDate(2024, 1, 1), core.NewDate(2024, 2, 1), nil); !errors.As(err, &verr) || verr.Field != "statement_day" {
		t.Errorf("statement day error = %v, want statement_day validation error", err)
	}

	badPol := pol
	badPol.MinPaymentRate = decimal.NewFromFloat(-0.01)
	if _, err := Cycles(acct, badPol, core.NewDate(2024, 1, 1), core.NewDate(2024, 2, 1), nil); !errors.As(err, &verr) || verr.Field != "min_payment_rate" {
		t.Errorf("policy rate error = %v, want min_payment_rate validation error", err)
	}
}
