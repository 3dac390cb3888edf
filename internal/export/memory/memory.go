// Package memory provides an in-memory schedule exporter for tests and
// local development without Google Sheets credentials.
package memory

import (
	"context"
	"sync"

	"prestiti/internal/core"

	ports "prestiti/internal/export"
)

type Recorder struct {
	mu      sync.Mutex
	exports map[int64][]core.ScheduleEntry
	names   map[int64]string
}

var _ ports.ScheduleExporter = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{
		exports: make(map[int64][]core.ScheduleEntry),
		names:   make(map[int64]string),
	}
}

// ExportSchedule stores the latest export per loan, replacing any earlier one.
func (r *Recorder) ExportSchedule(_ context.Context, loan core.Loan, entries []core.ScheduleEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := make([]core.ScheduleEntry, len(entries))
	copy(copied, entries)
	r.exports[loan.ID] = copied
	r.names[loan.ID] = loan.Name

	return nil
}

// Exported returns the last exported schedule for a loan, or false when the
// loan was never exported.
func (r *Recorder) Exported(loanID int64) ([]core.ScheduleEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, ok := r.exports[loanID]
	if !ok {
		return nil, false
	}
	copied := make([]core.ScheduleEntry, len(entries))
	copy(copied, entries)
	return copied, true
}

// Count reports how many loans have an export on record.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.exports)
}
