package concurrency

import (
	"context"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// roundPool implements RoundPool
//
// Locking: mu is the only lock workers ever take. It guards state, task, info
// and failures; readyCond, roundCond and doneCond all wait on it. waiting and
// complete are atomics so Stats can read them without mu, but they are only
// modified with mu held. No goroutine ever holds a second lock while waiting on
// a condition, so coordinator and workers cannot deadlock on lock order.
// coord serializes coordinators and is never taken by workers.
type roundPool struct {
	name           string
	workers        int
	stallThreshold time.Duration
	logger         Logger
	observer       Observer
	onWorkerStart  func(id WorkerID)
	onWorkerStop   func(id WorkerID)

	coord sync.Mutex
	seq   uint64 // guarded by coord

	mu        sync.Mutex
	readyCond *sync.Cond // waiting == workers
	roundCond *sync.Cond // state changed
	doneCond  *sync.Cond // complete == workers

	state    RoundState
	task     RoundTask
	info     RoundInfo
	failures []*WorkerError

	stateView atomic.Int32
	waiting   atomic.Int32
	complete  atomic.Int32
	stopped   atomic.Bool

	roundsCompleted atomic.Uint64
	roundsFailed    atomic.Uint64
	workerFailures  atomic.Uint64
	stalls          atomic.Uint64

	wg sync.WaitGroup
}

// NewRoundPool creates a RoundPool and starts its workers.
// The workers are parked and ready for the first round when NewRoundPool returns
// or shortly after; Run waits for them either way.
func NewRoundPool(config RoundPoolConfig) (RoundPool, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Name == "" {
		config.Name = DefaultRoundPoolConfig().Name
	}
	if config.Logger == nil {
		config.Logger = NewDefaultLogger()
	}

	p := &roundPool{
		name:           config.Name,
		workers:        config.Workers,
		stallThreshold: config.StallThreshold,
		logger:         config.Logger,
		observer:       Observers(config.Observer),
		onWorkerStart:  config.OnWorkerStart,
		onWorkerStop:   config.OnWorkerStop,
		state:          StateIdle,
	}
	p.readyCond = sync.NewCond(&p.mu)
	p.roundCond = sync.NewCond(&p.mu)
	p.doneCond = sync.NewCond(&p.mu)

	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go p.worker(WorkerID(i))
	}

	p.logger.Debugf("pool %s: started %d workers", p.name, p.workers)
	return p, nil
}

// Run implements RoundPool interface
func (p *roundPool) Run(task RoundTask) error {
	return p.RunContext(context.Background(), task)
}

// RunContext implements RoundPool interface
func (p *roundPool) RunContext(ctx context.Context, task RoundTask) error {
	if isNilTask(task) {
		return ErrNilTask
	}
	if ctx == nil {
		ctx = context.Background()
	}

	p.coord.Lock()
	defer p.coord.Unlock()

	if p.stopped.Load() {
		return ErrPoolShutdown
	}
	// A round cannot be cancelled once published, so refuse to start a dead one.
	if err := ctx.Err(); err != nil {
		return err
	}

	p.seq++
	info := RoundInfo{
		ID:      uuid.NewString(),
		Seq:     p.seq,
		Task:    task.Name(),
		Pool:    p.name,
		Workers: p.workers,
		Context: ctx,
	}

	// Ready barrier. Every worker is parked on roundCond once this passes, and
	// none can leave while state stays idle.
	p.mu.Lock()
	p.awaitReady()
	p.mu.Unlock()

	p.observer.RoundStarted(info)
	start := time.Now()

	// Publish. The payload is written before the state flips to run and the
	// broadcast happens after both, all under mu.
	p.mu.Lock()
	p.task = task
	p.info = info
	p.failures = nil
	p.waiting.Store(0)
	p.setState(StateRun)
	p.roundCond.Broadcast()
	p.logger.Debugf("pool %s: round %d %s (%s) published", p.name, info.Seq, info.ID, info.Task)

	var stall *time.Timer
	if p.stallThreshold > 0 {
		stall = time.AfterFunc(p.stallThreshold, func() { p.reportStall(info) })
	}

	// Completion barrier.
	for int(p.complete.Load()) != p.workers {
		p.doneCond.Wait()
	}
	if stall != nil {
		stall.Stop()
	}

	failures := p.failures

	// Reset. Workers waiting for idle wake up and park again.
	p.failures = nil
	p.task = nil
	p.info = RoundInfo{}
	p.complete.Store(0)
	p.waiting.Store(0)
	p.setState(StateIdle)
	p.roundCond.Broadcast()
	p.mu.Unlock()

	elapsed := time.Since(start)
	p.roundsCompleted.Add(1)

	var err error
	if len(failures) > 0 {
		sort.Slice(failures, func(i, j int) bool { return failures[i].Worker < failures[j].Worker })
		p.roundsFailed.Add(1)
		err = &RoundError{RoundID: info.ID, Task: info.Task, Failures: failures}
	}
	p.logger.Debugf("pool %s: round %d %s completed in %s (%d failures)", p.name, info.Seq, info.ID, elapsed, len(failures))
	p.observer.RoundFinished(info, elapsed, err)
	return err
}

// Shutdown implements RoundPool interface
func (p *roundPool) Shutdown() error {
	p.coord.Lock()
	defer p.coord.Unlock()

	if p.stopped.Load() {
		return ErrPoolShutdown
	}

	p.mu.Lock()
	p.awaitReady()
	p.stopped.Store(true)
	p.setState(StateStop)
	p.roundCond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
	p.waiting.Store(0)

	p.logger.Infof("pool %s: shut down after %d rounds", p.name, p.roundsCompleted.Load())
	return nil
}

// Workers implements RoundPool interface
func (p *roundPool) Workers() int {
	return p.workers
}

// State implements RoundPool interface
func (p *roundPool) State() RoundState {
	return RoundState(p.stateView.Load())
}

// IsRunning implements RoundPool interface
func (p *roundPool) IsRunning() bool {
	return !p.stopped.Load()
}

// Stats implements RoundPool interface
func (p *roundPool) Stats() RoundPoolStats {
	return RoundPoolStats{
		Workers:         p.workers,
		State:           p.State(),
		Waiting:         int(p.waiting.Load()),
		Complete:        int(p.complete.Load()),
		RoundsCompleted: p.roundsCompleted.Load(),
		RoundsFailed:    p.roundsFailed.Load(),
		WorkerFailures:  p.workerFailures.Load(),
		Stalls:          p.stalls.Load(),
	}
}

// awaitReady blocks until every worker is parked. mu must be held.
func (p *roundPool) awaitReady() {
	for int(p.waiting.Load()) != p.workers {
		p.readyCond.Wait()
	}
}

// setState must be called with mu held.
func (p *roundPool) setState(s RoundState) {
	p.state = s
	p.stateView.Store(int32(s))
}

func (p *roundPool) reportStall(info RoundInfo) {
	// The timer may fire after the round was reset; only report the same round.
	p.mu.Lock()
	current := p.state == StateRun && p.info.ID == info.ID
	complete := int(p.complete.Load())
	p.mu.Unlock()
	if !current || complete == p.workers {
		return
	}
	p.stalls.Add(1)
	p.logger.Warnf("pool %s: round %d %s (%s) still running after %s, %d/%d workers complete",
		p.name, info.Seq, info.ID, info.Task, p.stallThreshold, complete, p.workers)
	p.notify("RoundStalled", func() { p.observer.RoundStalled(info, complete) })
}

// notify runs an observer callback off the coordinator goroutine. A panic is
// logged and dropped so it cannot take down a worker or the stall timer.
func (p *roundPool) notify(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("pool %s: observer %s panicked: %v", p.name, event, r)
		}
	}()
	fn()
}

// worker is the loop run by every worker goroutine:
// parked -> executing -> waiting for idle -> parked, until the stop command.
func (p *roundPool) worker(id WorkerID) {
	defer p.wg.Done()

	p.logger.Debugf("pool %s: worker %d started", p.name, id)
	if p.onWorkerStart != nil {
		p.onWorkerStart(id)
	}

	p.mu.Lock()
	for {
		p.waiting.Add(1)
		p.readyCond.Signal()

		for p.state == StateIdle {
			p.roundCond.Wait()
		}
		if p.state == StateStop {
			break
		}

		task, info := p.task, p.info
		p.mu.Unlock()

		err := p.execute(task, info, id)

		p.mu.Lock()
		if err != nil {
			p.failures = append(p.failures, &WorkerError{Worker: id, Err: err})
		}
		p.complete.Add(1)
		p.doneCond.Signal()

		for p.state == StateRun {
			p.roundCond.Wait()
		}
	}
	p.mu.Unlock()

	p.logger.Debugf("pool %s: worker %d received stop command", p.name, id)
	if p.onWorkerStop != nil {
		p.onWorkerStop(id)
	}
}

// execute runs the task for one worker without holding any pool lock.
// A panic is recovered and returned as *PanicError so the worker keeps serving.
func (p *roundPool) execute(task RoundTask, info RoundInfo, id WorkerID) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Worker: id, Value: r, Stack: string(debug.Stack())}
		}
		if err != nil {
			p.workerFailures.Add(1)
			p.logger.Errorf("pool %s: worker %d: round %d %s (%s) failed: %v", p.name, id, info.Seq, info.ID, info.Task, err)
		}
		elapsed := time.Since(start)
		p.notify("WorkerFinished", func() { p.observer.WorkerFinished(info, id, elapsed, err) })
	}()

	return task.Execute(info.Context, id)
}
