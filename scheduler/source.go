package scheduler

import (
	"context"
	"slices"
	"time"
)

// Source is one kind of recurring work.
type Source interface {
	// Name keys the source in a Report.
	Name() string

	// CleanupStale reconciles executions that outlived their timeout and
	// returns how many it changed.
	CleanupStale(ctx context.Context, now time.Time) (int, error)

	// EnqueueDue enqueues up to limit due descriptors and advances their
	// schedules.
	EnqueueDue(ctx context.Context, now time.Time, limit int) (SourceReport, error)
}

// SourceReport counts what one source did in a tick.
type SourceReport struct {
	Due          int
	Enqueued     int
	Skipped      int // Due descriptors or targets with work already in flight
	NoUsers      int // Experiences that fired with no active users
	StaleCleaned int
	Errors       int
}

func (r *SourceReport) add(o SourceReport) {
	r.Due += o.Due
	r.Enqueued += o.Enqueued
	r.Skipped += o.Skipped
	r.NoUsers += o.NoUsers
	r.StaleCleaned += o.StaleCleaned
	r.Errors += o.Errors
}

// Report maps source names to their counts for one tick.
type Report map[string]SourceReport

// Total sums every source's counts.
func (r Report) Total() SourceReport {
	var total SourceReport
	for _, sr := range r {
		total.add(sr)
	}
	return total
}

// Names returns the source names in sorted order.
func (r Report) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
