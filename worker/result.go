package worker

import (
	"context"

	"github.com/poiesic/docflow/queue"
)

// Outcome tags how a handler finished without error.
type Outcome int

const (
	// OutcomeSuccess means the stage's work was done.
	OutcomeSuccess Outcome = iota + 1
	// OutcomeCancelled means the job was discarded on purpose, for example
	// because its knowledge base was deleted.
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Result is what a handler returns when it does not fail.
type Result struct {
	Outcome Outcome
	Next    *queue.Job // Follow-up job enqueued by the stage, if any
	Reason  string     // Why the job was cancelled
}

// Success reports completed work and the follow-up job, which may be nil.
func Success(next *queue.Job) Result {
	return Result{Outcome: OutcomeSuccess, Next: next}
}

// Cancelled reports an intentional discard.
func Cancelled(reason string) Result {
	return Result{Outcome: OutcomeCancelled, Reason: reason}
}

// Handler processes a single job.
type Handler interface {
	Handle(ctx context.Context, job *queue.Job) (Result, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *queue.Job) (Result, error)

func (f HandlerFunc) Handle(ctx context.Context, job *queue.Job) (Result, error) {
	return f(ctx, job)
}
