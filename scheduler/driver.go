// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultInterval = 30 * time.Second
	DefaultLimit    = 100
)

var (
	// ErrNoSources is returned when a Driver is created without sources.
	ErrNoSources = errors.New("at least one source required")

	// ErrDuplicateSource is returned when two sources share a name.
	ErrDuplicateSource = errors.New("duplicate source name")
)

// Option configures a Driver.
type Option func(*Driver) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) error {
		if logger == nil {
			logger = slog.Default()
		}
		d.logger = logger
		return nil
	}
}

// WithInterval sets the time between ticks.
func WithInterval(interval time.Duration) Option {
	return func(d *Driver) error {
		if interval <= 0 {
			return fmt.Errorf("interval must be positive, got %s", interval)
		}
		d.interval = interval
		return nil
	}
}

// WithLimit caps how many descriptors each source enqueues per tick.
func WithLimit(limit int) Option {
	return func(d *Driver) error {
		if limit < 1 {
			return fmt.Errorf("limit must be at least 1, got %d", limit)
		}
		d.limit = limit
		return nil
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		d.now = now
		return nil
	}
}

// Driver ticks every source on an interval.
type Driver struct {
	sources  []Source
	interval time.Duration
	limit    int
	now      func() time.Time
	logger   *slog.Logger
}

func NewDriver(sources []Source, opts ...Option) (*Driver, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	seen := make(map[string]bool, len(sources))
	for _, src := range sources {
		if seen[src.Name()] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSource, src.Name())
		}
		seen[src.Name()] = true
	}

	d := &Driver{
		sources:  sources,
		interval: DefaultInterval,
		limit:    DefaultLimit,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	d.logger = d.logger.With("component", "scheduler")
	return d, nil
}

// Run ticks immediately and then on every interval until ctx is done.
func (d *Driver) Run(ctx context.Context) error {
	d.logger.Info("scheduler started", "interval", d.interval, "sources", len(d.sources))
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		d.logTick(d.Tick(ctx))
		select {
		case <-ctx.Done():
			d.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (d *Driver) logTick(report Report) {
	total := report.Total()
	if total.Due == 0 && total.StaleCleaned == 0 && total.Errors == 0 {
		return
	}
	level := slog.LevelInfo
	if total.Errors > 0 {
		level = slog.LevelWarn
	}
	d.logger.Log(context.Background(), level, "scheduler tick",
		"due", total.Due, "enqueued", total.Enqueued, "skipped", total.Skipped,
		"no_users", total.NoUsers, "stale_cleaned", total.StaleCleaned, "errors", total.Errors)
}

// Tick runs CleanupStale then EnqueueDue on every source once.
func (d *Driver) Tick(ctx context.Context) Report {
	now := d.now()
	report := make(Report, len(d.sources))
	for _, src := range d.sources {
		if ctx.Err() != nil {
			break
		}
		report[src.Name()] = d.tickSource(ctx, src, now)
	}
	return report
}

func (d *Driver) tickSource(ctx context.Context, src Source, now time.Time) (sr SourceReport) {
	logger := d.logger.With("source", src.Name())
	defer func() {
		if p := recover(); p != nil {
			logger.Error("source panicked", "panic", p)
			sr.Errors++
		}
	}()

	cleaned, err := src.CleanupStale(ctx, now)
	sr.StaleCleaned = cleaned
	if err != nil {
		logger.Error("stale cleanup failed", "err", err)
		sr.Errors++
	}

	enqueued, err := src.EnqueueDue(ctx, now, d.limit)
	enqueued.StaleCleaned = 0
	sr.add(enqueued)
	if err != nil {
		logger.Error("enqueue due failed", "err", err)
		sr.Errors++
	}
	return sr
}
