package concurrency

import (
	"context"
	"time"
)

// RoundInfo describes the round an Observer callback refers to.
type RoundInfo struct {
	ID      string          // unique per round
	Seq     uint64          // 1 for the first round of a pool
	Task    string          // RoundTask.Name()
	Pool    string          // RoundPoolConfig.Name
	Workers int             // number of participating workers
	Context context.Context // context the round was dispatched with
}

// Observer receives round lifecycle notifications.
//
// RoundStarted and RoundFinished are called on the coordinator goroutine,
// WorkerFinished on the worker goroutine right after its callback returned
// and before it reports completion. RoundStalled is called from a timer
// goroutine. Implementations must not block and must not call back into the pool.
// A panic in WorkerFinished or RoundStalled is logged and dropped; one in
// RoundStarted or RoundFinished propagates to the caller of Run, leaving the
// pool idle and usable.
type Observer interface {
	RoundStarted(info RoundInfo)
	WorkerFinished(info RoundInfo, id WorkerID, elapsed time.Duration, err error)
	RoundFinished(info RoundInfo, elapsed time.Duration, err error)
	RoundStalled(info RoundInfo, complete int)
}

type nopObserver struct{}

func (nopObserver) RoundStarted(RoundInfo)                                   {}
func (nopObserver) WorkerFinished(RoundInfo, WorkerID, time.Duration, error) {}
func (nopObserver) RoundFinished(RoundInfo, time.Duration, error)            {}
func (nopObserver) RoundStalled(RoundInfo, int)                              {}

type multiObserver []Observer

// Observers fans notifications out to every non-nil observer in order.
func Observers(observers ...Observer) Observer {
	var m multiObserver
	for _, o := range observers {
		if o != nil {
			m = append(m, o)
		}
	}
	switch len(m) {
	case 0:
		return nopObserver{}
	case 1:
		return m[0]
	}
	return m
}

func (m multiObserver) RoundStarted(info RoundInfo) {
	for _, o := range m {
		o.RoundStarted(info)
	}
}

func (m multiObserver) WorkerFinished(info RoundInfo, id WorkerID, elapsed time.Duration, err error) {
	for _, o := range m {
		o.WorkerFinished(info, id, elapsed, err)
	}
}

func (m multiObserver) RoundFinished(info RoundInfo, elapsed time.Duration, err error) {
	for _, o := range m {
		o.RoundFinished(info, elapsed, err)
	}
}

func (m multiObserver) RoundStalled(info RoundInfo, complete int) {
	for _, o := range m {
		o.RoundStalled(info, complete)
	}
}
