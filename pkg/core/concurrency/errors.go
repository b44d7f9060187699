package concurrency

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPoolShutdown is returned by Run and Shutdown once the pool has been shut down.
	ErrPoolShutdown = errors.New("roundpool: pool is shut down")

	// ErrNilTask is returned when a round is dispatched without work.
	ErrNilTask = errors.New("roundpool: task cannot be nil")

	// ErrInvalidWorkerCount is returned by NewRoundPool when Workers < 1.
	ErrInvalidWorkerCount = errors.New("roundpool: worker count must be at least 1")
)

// PanicError wraps a value recovered from a panicking round callback.
type PanicError struct {
	Worker WorkerID
	Value  interface{}
	Stack  string
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("worker %d panicked: %v\n%s", p.Worker, p.Value, p.Stack)
}

// WorkerError records the failure of one worker during a round.
type WorkerError struct {
	Worker WorkerID
	Err    error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %d: %v", e.Worker, e.Err)
}

func (e *WorkerError) Unwrap() error {
	return e.Err
}

// RoundError aggregates every worker failure of a single round. The round still
// completed: each worker returned and the pool is ready for the next round.
type RoundError struct {
	RoundID  string
	Task     string
	Failures []*WorkerError
}

func (e *RoundError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "round %s (%s): %d worker(s) failed", e.RoundID, e.Task, len(e.Failures))
	for _, f := range e.Failures {
		sb.WriteString("; ")
		// keep the summary on one line, stacks are on the PanicError itself
		var pe *PanicError
		if errors.As(f.Err, &pe) {
			fmt.Fprintf(&sb, "worker %d panicked: %v", pe.Worker, pe.Value)
			continue
		}
		sb.WriteString(f.Error())
	}
	return sb.String()
}

// Unwrap exposes the individual worker failures to errors.Is and errors.As.
func (e *RoundError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}
