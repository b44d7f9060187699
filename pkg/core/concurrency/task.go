package concurrency

import (
	"context"

	"github.com/fluxorio/roundpool/pkg/core/failfast"
)

// WorkerID identifies one persistent worker of a RoundPool.
// IDs are dense in [0, Workers()) and never reassigned.
type WorkerID int

// RoundTask is the unit of work every worker executes once per round.
// Execute is called concurrently from all workers with the same receiver, so any
// state reachable from the task must be safe for concurrent reads.
type RoundTask interface {
	// Execute performs this worker's share of the round
	// ctx is the context given to RunContext (Background for Run)
	Execute(ctx context.Context, id WorkerID) error

	// Name returns a human-readable name for the round (for logging/tracing)
	Name() string
}

// RoundFunc is a function type that implements RoundTask
type RoundFunc func(ctx context.Context, id WorkerID) error

// Execute implements RoundTask interface for RoundFunc
func (f RoundFunc) Execute(ctx context.Context, id WorkerID) error {
	return f(ctx, id)
}

// Name returns a default name for RoundFunc
func (f RoundFunc) Name() string {
	return "RoundFunc"
}

// NamedRound wraps a RoundFunc with a custom name
type NamedRound struct {
	name string
	fn   RoundFunc
}

// NewNamedRound creates a new NamedRound. It returns nil if fn is nil.
func NewNamedRound(name string, fn RoundFunc) *NamedRound {
	if fn == nil {
		return nil
	}
	return &NamedRound{
		name: name,
		fn:   fn,
	}
}

// Execute implements RoundTask interface
func (nr *NamedRound) Execute(ctx context.Context, id WorkerID) error {
	return nr.fn(ctx, id)
}

// Name returns the round name
func (nr *NamedRound) Name() string {
	return nr.name
}

// boundRound carries a typed parameter shared read-only by every worker.
type boundRound[P any] struct {
	name  string
	fn    func(ctx context.Context, id WorkerID, param P) error
	param P
}

func (b *boundRound[P]) Execute(ctx context.Context, id WorkerID) error {
	return b.fn(ctx, id, b.param)
}

func (b *boundRound[P]) Name() string {
	return b.name
}

// Bind packages fn and its parameter into a RoundTask.
//
// param is handed to every worker of the round. The caller must not mutate the
// data it references until Run returns; callbacks that write through it must
// synchronize among themselves.
func Bind[P any](name string, fn func(ctx context.Context, id WorkerID, param P) error, param P) RoundTask {
	if fn == nil {
		return nil
	}
	if name == "" {
		name = "BoundRound"
	}
	return &boundRound[P]{name: name, fn: fn, param: param}
}

// Dispatch runs fn(id, param) once on every worker of pool and blocks until all
// of them have returned. It is the plain callback form of RoundPool.Run.
func Dispatch[P any](pool RoundPool, fn func(id WorkerID, param P), param P) error {
	if fn == nil {
		return ErrNilTask
	}
	return pool.Run(Bind("Dispatch", func(_ context.Context, id WorkerID, p P) error {
		fn(id, p)
		return nil
	}, param))
}

// isNilTask reports whether task has no callback to run: a nil interface, a
// typed nil, or a NamedRound without a function.
func isNilTask(task RoundTask) bool {
	if failfast.IsNil(task) {
		return true
	}
	if nr, ok := task.(*NamedRound); ok {
		return nr.fn == nil
	}
	return false
}
