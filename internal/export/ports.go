// Package export defines the outbound port for publishing computed
// amortization schedules to external destinations.
package export

import (
	"context"

	"prestiti/internal/core"
)

// ScheduleExporter writes a loan's full schedule to some destination.
// Implementations must tolerate being called repeatedly with the same
// loan: an export replaces whatever was previously written for it.
type ScheduleExporter interface {
	ExportSchedule(ctx context.Context, loan core.Loan, entries []core.ScheduleEntry) error
}
