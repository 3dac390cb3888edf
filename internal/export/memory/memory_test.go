package memory

import (
	"context"
	"testing"

	"prestiti/internal/core"
	"prestiti/internal/schedule"

	"github.com/shopspring/decimal"
)

func testLoan(t *testing.T) core.Loan {
	t.Helper()
	return core.Loan{
		ID:         1,
		Name:       "car loan",
		Kind:       core.KindAnnuity,
		Principal:  core.MoneyFromCents(12000000),
		AnnualRate: decimal.NewFromInt(12),
		TermMonths: 12,
		Start:      core.NewDate(2024, 1, 15),
	}
}

func TestRecorder_ReplacesEarlierExport(t *testing.T) {
	rec := NewRecorder()
	loan := testLoan(t)

	entries, err := schedule.Compute(loan)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if err := rec.ExportSchedule(context.Background(), loan, entries[:6]); err != nil {
		t.Fatalf("ExportSchedule: %v", err)
	}
	if err := rec.ExportSchedule(context.Background(), loan, entries); err != nil {
		t.Fatalf("ExportSchedule: %v", err)
	}

	got, ok := rec.Exported(loan.ID)
	if !ok {
		t.Fatal("expected an export on record")
	}
	if len(got) != 12 {
		t.Errorf("exported periods = %d, want 12", len(got))
	}
	if rec.Count() != 1 {
		t.Errorf("Count() = %d, want 1", rec.Count())
	}
}

func TestRecorder_UnknownLoan(t *testing.T) {
	rec := NewRecorder()
	if _, ok := rec.Exported(42); ok {
		t.Error("expected no export for unknown loan")
	}
}

func TestRecorder_CopiesEntries(t *testing.T) {
	rec := NewRecorder()
	loan := testLoan(t)

	entries, err := schedule.Compute(loan)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if err := rec.ExportSchedule(context.Background(), loan, entries); err != nil {
		t.Fatalf("ExportSchedule: %v", err)
	}

	entries[0].Period = 99

	got, _ := rec.Exported(loan.ID)
	if got[0].Period != 1 {
		t.Errorf("stored export mutated: first period = %d, want 1", got[0].Period)
	}
}
