package reembed

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Progress counts documents as a run visits them and periodically writes a
// single status line to its writer.
type Progress struct {
	writer io.Writer
	total  int
	every  int
	now    func() time.Time

	mu       sync.Mutex
	started  time.Time
	running  bool
	queued   int
	skipped  int
	failed   int
	reported int
}

// NewProgress creates a Progress over total documents that reports every
// every documents. A nil writer discards output.
func NewProgress(w io.Writer, total, every int) *Progress {
	if w == nil {
		w = io.Discard
	}
	if every <= 0 {
		every = 1
	}
	return &Progress{writer: w, total: total, every: every, now: time.Now}
}

// Start resets the counters and the clock.
func (p *Progress) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = p.now()
	p.running = true
	p.queued, p.skipped, p.failed, p.reported = 0, 0, 0, 0
}

func (p *Progress) Queued()  { p.bump(&p.queued) }
func (p *Progress) Skipped() { p.bump(&p.skipped) }
func (p *Progress) Failed()  { p.bump(&p.failed) }

func (p *Progress) bump(counter *int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	*counter++
	if seen := p.seen(); seen-p.reported >= p.every {
		p.report()
		p.reported = seen
	}
}

// Finish writes the final status line.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.report()
	fmt.Fprintln(p.writer)
	p.running = false
}

// Elapsed returns the time since Start.
func (p *Progress) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started.IsZero() {
		return 0
	}
	return p.now().Sub(p.started)
}

func (p *Progress) seen() int {
	return p.queued + p.skipped + p.failed
}

// report must be called with mu held.
func (p *Progress) report() {
	seen := min(p.seen(), p.total)
	pct := 0.0
	if p.total > 0 {
		pct = float64(seen) / float64(p.total) * 100
	}
	rate := 0.0
	if secs := p.now().Sub(p.started).Seconds(); secs > 0 {
		rate = float64(seen) / secs
	}
	fmt.Fprintf(p.writer, "\r%d/%d (%.1f%%) queued=%d skipped=%d failed=%d - %.1f documents/s",
		seen, p.total, pct, p.queued, p.skipped, p.failed, rate)
}
