package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"prestiti/internal/amqp"
	"prestiti/internal/core"
	"prestiti/internal/export"
)

// Portfolio is the slice of the portfolio service the worker needs.
type Portfolio interface {
	GetLoan(ctx context.Context, id int64) (core.Loan, error)
	ScheduleForLoan(ctx context.Context, loanID int64) ([]core.ScheduleEntry, error)
	Summary(ctx context.Context, asOf core.Date) (core.Summary, error)
	InvalidateSchedule(loanID int64)
}

// RecomputeWorker reacts to recompute messages: it drops the cached schedule
// for the loan, rebuilds it, exports it, and refreshes the portfolio
// snapshot. It also refreshes the snapshot on a fixed interval so balances
// stay current even when no messages arrive.
type RecomputeWorker struct {
	portfolio Portfolio
	exporter  export.ScheduleExporter
	interval  time.Duration
}

// NewRecomputeWorker creates a worker. The exporter may be nil, in which case
// schedules are recomputed but not exported anywhere.
func NewRecomputeWorker(portfolio Portfolio, exporter export.ScheduleExporter, snapshotInterval time.Duration) *RecomputeWorker {
	return &RecomputeWorker{
		portfolio: portfolio,
		exporter:  exporter,
		interval:  snapshotInterval,
	}
}

// HandleRecomputeMessage processes a single recompute message from AMQP.
func (w *RecomputeWorker) HandleRecomputeMessage(ctx context.Context, msg *amqp.RecomputeMessage) error {
	slog.InfoContext(ctx, "Processing recompute message",
		"loan_id", msg.LoanID,
		"reason", msg.Reason)

	w.portfolio.InvalidateSchedule(msg.LoanID)

	loan, err := w.portfolio.GetLoan(ctx, msg.LoanID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			// Deleted before the message was consumed. Nothing left to do.
			slog.WarnContext(ctx, "Loan gone before recompute, skipping",
				"loan_id", msg.LoanID)
			return nil
		}
		return fmt.Errorf("get loan: %w", err)
	}

	entries, err := w.portfolio.ScheduleForLoan(ctx, msg.LoanID)
	if err != nil {
		return fmt.Errorf("recompute schedule: %w", err)
	}

	if w.exporter != nil {
		if err := w.exporter.ExportSchedule(ctx, loan, entries); err != nil {
			return fmt.Errorf("export schedule: %w", err)
		}
	}

	if err := w.refreshSnapshot(ctx); err != nil {
		slog.ErrorContext(ctx, "Failed to refresh snapshot after recompute",
			"loan_id", msg.LoanID,
			"error", err)
	}

	slog.InfoContext(ctx, "Recompute completed",
		"loan_id", msg.LoanID,
		"periods", len(entries))

	return nil
}

// RunSnapshotLoop refreshes the portfolio snapshot on the configured interval
// until the context is cancelled.
func (w *RecomputeWorker) RunSnapshotLoop(ctx context.Context) {
	if w.interval <= 0 {
		slog.InfoContext(ctx, "Snapshot loop disabled")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "Snapshot loop started", "interval", w.interval)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Snapshot loop stopped")
			return
		case <-ticker.C:
			if err := w.refreshSnapshot(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic snapshot failed", "error", err)
			}
		}
	}
}

func (w *RecomputeWorker) refreshSnapshot(ctx context.Context) error {
	summary, err := w.portfolio.Summary(ctx, core.DateFrom(time.Now()))
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Portfolio snapshot refreshed",
		"total_debt_cents", summary.TotalDebt.Cents(),
		"total_interest_cents", summary.TotalInterest.Cents())

	return nil
}
