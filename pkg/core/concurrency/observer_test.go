package concurrency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingObserver struct {
	mu       sync.Mutex
	started  []RoundInfo
	finished []RoundInfo
	workers  map[string][]WorkerID
	errs     []error
	stalled  []int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{workers: make(map[string][]WorkerID)}
}

func (o *recordingObserver) RoundStarted(info RoundInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, info)
}

func (o *recordingObserver) WorkerFinished(info RoundInfo, id WorkerID, elapsed time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.workers[info.ID] = append(o.workers[info.ID], id)
}

func (o *recordingObserver) RoundFinished(info RoundInfo, elapsed time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, info)
	o.errs = append(o.errs, err)
}

func (o *recordingObserver) RoundStalled(info RoundInfo, complete int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stalled = append(o.stalled, complete)
}

func TestRoundPool_Observer(t *testing.T) {
	obs := newRecordingObserver()
	config := DefaultRoundPoolConfig()
	config.Name = "observed"
	config.Workers = 3
	config.Logger = NewNopLogger()
	config.Observer = obs

	pool, err := NewRoundPool(config)
	if err != nil {
		t.Fatalf("NewRoundPool() error = %v", err)
	}
	defer pool.Shutdown()

	fail := errors.New("fail")
	tasks := []RoundTask{
		NewNamedRound("first", func(context.Context, WorkerID) error { return nil }),
		NewNamedRound("second", func(_ context.Context, id WorkerID) error {
			if id == 0 {
				return fail
			}
			return nil
		}),
	}
	for _, task := range tasks {
		pool.Run(task)
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()

	if len(obs.started) != 2 || len(obs.finished) != 2 {
		t.Fatalf("started %d finished %d, want 2 and 2", len(obs.started), len(obs.finished))
	}
	for i, info := range obs.started {
		if info.Seq != uint64(i+1) {
			t.Errorf("round %d Seq = %d", i, info.Seq)
		}
		if info.Pool != "observed" || info.Workers != 3 {
			t.Errorf("round %d info = %+v", i, info)
		}
		if info.ID == "" || info.ID != obs.finished[i].ID {
			t.Errorf("round %d id mismatch: %q vs %q", i, info.ID, obs.finished[i].ID)
		}
		if got := len(obs.workers[info.ID]); got != 3 {
			t.Errorf("round %d: %d WorkerFinished calls, want 3", i, got)
		}
	}
	if obs.started[0].ID == obs.started[1].ID {
		t.Error("round ids should be unique")
	}
	if obs.started[1].Task != "second" {
		t.Errorf("Task = %q, want second", obs.started[1].Task)
	}
	if obs.errs[0] != nil || !errors.Is(obs.errs[1], fail) {
		t.Errorf("round errors = %v", obs.errs)
	}
}

func TestRoundPool_StallIsReported(t *testing.T) {
	obs := newRecordingObserver()
	config := DefaultRoundPoolConfig()
	config.Workers = 2
	config.Logger = NewNopLogger()
	config.Observer = obs
	config.StallThreshold = 10 * time.Millisecond

	pool, err := NewRoundPool(config)
	if err != nil {
		t.Fatalf("NewRoundPool() error = %v", err)
	}
	defer pool.Shutdown()

	err = pool.Run(RoundFunc(func(_ context.Context, id WorkerID) error {
		if id == 1 {
			time.Sleep(80 * time.Millisecond)
		}
		return nil
	}))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := pool.Stats().Stalls; got != 1 {
		t.Errorf("Stalls = %d, want 1", got)
	}
	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.stalled) != 1 || obs.stalled[0] > 1 {
		t.Errorf("stalled = %v, want one report with at most 1 worker complete", obs.stalled)
	}
}

func TestObservers(t *testing.T) {
	if _, ok := Observers().(nopObserver); !ok {
		t.Error("Observers() with no observers should be a no-op")
	}
	if _, ok := Observers(nil, nil).(nopObserver); !ok {
		t.Error("Observers(nil, nil) should be a no-op")
	}

	a, b := newRecordingObserver(), newRecordingObserver()
	if got := Observers(nil, a); got != Observer(a) {
		t.Error("a single observer should be returned as is")
	}

	m := Observers(a, b)
	info := RoundInfo{ID: "r1"}
	m.RoundStarted(info)
	m.WorkerFinished(info, 0, time.Millisecond, nil)
	m.RoundFinished(info, time.Millisecond, nil)
	m.RoundStalled(info, 0)

	for name, o := range map[string]*recordingObserver{"a": a, "b": b} {
		if len(o.started) != 1 || len(o.workers["r1"]) != 1 || len(o.finished) != 1 || len(o.stalled) != 1 {
			t.Errorf("observer %s missed notifications", name)
		}
	}
}

// panickingObserver panics from the callbacks that run off the coordinator goroutine
type panickingObserver struct {
	nopObserver
}

func (panickingObserver) WorkerFinished(RoundInfo, WorkerID, time.Duration, error) {
	panic("worker observer")
}

func (panickingObserver) RoundStalled(RoundInfo, int) {
	panic("stall observer")
}

func TestRoundPool_PanickingObserverIsContained(t *testing.T) {
	config := DefaultRoundPoolConfig()
	config.Workers = 2
	config.Logger = NewNopLogger()
	config.Observer = panickingObserver{}
	config.StallThreshold = 10 * time.Millisecond

	pool, err := NewRoundPool(config)
	if err != nil {
		t.Fatalf("NewRoundPool() error = %v", err)
	}
	defer pool.Shutdown()

	for round := 0; round < 3; round++ {
		err := pool.Run(RoundFunc(func(_ context.Context, id WorkerID) error {
			if round == 0 && id == 1 {
				time.Sleep(50 * time.Millisecond)
			}
			return nil
		}))
		if err != nil {
			t.Fatalf("round %d: Run() error = %v", round, err)
		}
	}

	stats := pool.Stats()
	if stats.RoundsCompleted != 3 || stats.Stalls != 1 {
		t.Errorf("Stats() = %+v, want 3 rounds and 1 stall", stats)
	}
}
