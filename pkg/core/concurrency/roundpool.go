package concurrency

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// RoundPool runs one RoundTask on every worker per round.
//
// A round starts only once every worker is parked and Run returns only once
// every worker has returned from the task, so consecutive rounds never overlap
// and workers are reused instead of recreated.
type RoundPool interface {
	// Run executes task once on every worker and blocks until all are done
	// Returns a *RoundError if any worker failed, ErrPoolShutdown after Shutdown
	Run(task RoundTask) error

	// RunContext is Run with ctx handed to every Execute call
	// ctx is advisory: the pool still waits for every worker to return
	RunContext(ctx context.Context, task RoundTask) error

	// Shutdown waits for any in-flight round, stops and joins every worker
	// The pool is unusable afterwards
	Shutdown() error

	// Workers returns the fixed number of workers
	Workers() int

	// State returns the current round state
	State() RoundState

	// IsRunning returns true until Shutdown has been called
	IsRunning() bool

	// Stats returns a snapshot of pool counters
	Stats() RoundPoolStats
}

// RoundState is the coordinator-visible state of a RoundPool.
type RoundState int32

const (
	// StateIdle means no round is in flight; workers are parked or about to park.
	StateIdle RoundState = iota
	// StateRun means a round has been published and workers are executing it.
	StateRun
	// StateStop is terminal: workers exit instead of executing.
	StateStop
)

func (s RoundState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRun:
		return "run"
	case StateStop:
		return "stop"
	default:
		return fmt.Sprintf("RoundState(%d)", int32(s))
	}
}

// RoundPoolStats is a point-in-time view of a RoundPool.
type RoundPoolStats struct {
	Workers         int        // fixed worker count
	State           RoundState // current state
	Waiting         int        // workers parked for the next round
	Complete        int        // workers done with the in-flight round
	RoundsCompleted uint64     // rounds that passed the completion barrier
	RoundsFailed    uint64     // completed rounds in which at least one worker failed
	WorkerFailures  uint64     // total failed callback invocations
	Stalls          uint64     // rounds that exceeded StallThreshold
}

// RoundPoolConfig configures a RoundPool
type RoundPoolConfig struct {
	// Name labels logs, metrics and spans
	Name string

	// Workers is the number of persistent worker goroutines, must be >= 1
	Workers int

	// StallThreshold, when > 0, makes the coordinator report rounds that have not
	// completed after this long. The round keeps running.
	StallThreshold time.Duration

	// Logger defaults to NewDefaultLogger()
	Logger Logger

	// Observer receives round lifecycle events, may be nil
	Observer Observer

	// OnWorkerStart runs on the worker goroutine before it parks for the first time
	OnWorkerStart func(id WorkerID)

	// OnWorkerStop runs on the worker goroutine after it received the stop command
	OnWorkerStop func(id WorkerID)
}

// DefaultRoundPoolConfig returns default round pool configuration
func DefaultRoundPoolConfig() RoundPoolConfig {
	return RoundPoolConfig{
		Name:    "roundpool",
		Workers: runtime.NumCPU(),
	}
}

// Validate checks the configuration
func (c RoundPoolConfig) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidWorkerCount, c.Workers)
	}
	if c.StallThreshold < 0 {
		return fmt.Errorf("roundpool: stall threshold must be >= 0, got %s", c.StallThreshold)
	}
	return nil
}
