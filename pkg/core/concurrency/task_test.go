package concurrency

import (
	"context"
	"errors"
	"testing"
)

func TestRoundFunc(t *testing.T) {
	var got WorkerID = -1
	f := RoundFunc(func(ctx context.Context, id WorkerID) error {
		got = id
		return nil
	})

	if f.Name() != "RoundFunc" {
		t.Errorf("Name() = %q, want RoundFunc", f.Name())
	}
	if err := f.Execute(context.Background(), 7); err != nil {
		t.Errorf("Execute() error = %v", err)
	}
	if got != 7 {
		t.Errorf("Execute() passed id %d, want 7", got)
	}
}

func TestNamedRound(t *testing.T) {
	want := errors.New("failed")
	nr := NewNamedRound("compress", func(ctx context.Context, id WorkerID) error {
		return want
	})

	if nr.Name() != "compress" {
		t.Errorf("Name() = %q, want compress", nr.Name())
	}
	if err := nr.Execute(context.Background(), 0); err != want {
		t.Errorf("Execute() error = %v, want %v", err, want)
	}
}

func TestBind(t *testing.T) {
	type params struct{ scale int }

	tests := []struct {
		name     string
		bindName string
		wantName string
	}{
		{name: "named", bindName: "scale", wantName: "scale"},
		{name: "default name", bindName: "", wantName: "BoundRound"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got int
			task := Bind(tt.bindName, func(ctx context.Context, id WorkerID, p params) error {
				got = int(id) * p.scale
				return nil
			}, params{scale: 3})

			if task.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", task.Name(), tt.wantName)
			}
			if err := task.Execute(context.Background(), 2); err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if got != 6 {
				t.Errorf("callback computed %d, want 6", got)
			}
		})
	}

	if Bind[int]("nil", nil, 0) != nil {
		t.Error("Bind with a nil callback should return nil")
	}
}

func TestRoundError(t *testing.T) {
	cause := errors.New("disk full")
	err := &RoundError{
		RoundID: "abc",
		Task:    "flush",
		Failures: []*WorkerError{
			{Worker: 0, Err: cause},
			{Worker: 2, Err: &PanicError{Worker: 2, Value: "boom", Stack: "stack"}},
		},
	}

	want := "round abc (flush): 2 worker(s) failed; worker 0: disk full; worker 2 panicked: boom"
	if err.Error() != want {
		t.Errorf("Error() = %q\nwant      %q", err.Error(), want)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the worker cause")
	}

	var we *WorkerError
	if !errors.As(err, &we) || we.Worker != 0 {
		t.Errorf("errors.As(*WorkerError) = %v", we)
	}
}
