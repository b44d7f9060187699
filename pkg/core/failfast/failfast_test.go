package failfast

import (
	"errors"
	"strings"
	"testing"
)

// recovered runs fn and returns the error it panicked with, or nil.
func recovered(t *testing.T, fn func()) (err error) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		e, ok := r.(error)
		if !ok {
			t.Fatalf("Expected error type, got: %T", r)
		}
		err = e
	}()
	fn()
	return nil
}

func TestErr(t *testing.T) {
	t.Run("no error", func(t *testing.T) {
		if err := recovered(t, func() { Err(nil) }); err != nil {
			t.Errorf("Expected no panic, got: %v", err)
		}
	})

	t.Run("with error", func(t *testing.T) {
		cause := errors.New("boom")
		err := recovered(t, func() { Err(cause) })
		if err == nil {
			t.Fatal("Expected panic, got none")
		}
		if !errors.Is(err, ErrFailFast) || !errors.Is(err, cause) {
			t.Errorf("Expected panic to wrap ErrFailFast and cause, got %v", err)
		}
		if !strings.Contains(err.Error(), "goroutine") {
			t.Error("Expected stack trace in panic message")
		}
	})
}

func TestIf(t *testing.T) {
	tests := []struct {
		name      string
		condition bool
		want      string
	}{
		{name: "condition true", condition: true},
		{name: "condition false", condition: false, want: "fail-fast: parties must be >= 1, got 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := recovered(t, func() { If(tt.condition, "parties must be >= 1, got %d", 0) })
			if tt.want == "" {
				if err != nil {
					t.Errorf("Expected no panic, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Expected panic, got none")
			}
			if err.Error() != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, err.Error())
			}
		})
	}
}

func TestNotNil(t *testing.T) {
	var nilPtr *string
	var nilFunc func()
	var nilIface interface{}
	val := "test"

	tests := []struct {
		name   string
		value  interface{}
		panics bool
	}{
		{name: "pointer", value: &val},
		{name: "func", value: func() {}},
		{name: "plain value", value: 42},
		{name: "nil pointer", value: nilPtr, panics: true},
		{name: "nil func", value: nilFunc, panics: true},
		{name: "nil interface", value: nilIface, panics: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := recovered(t, func() { NotNil(tt.value, "value") })
			if tt.panics && err == nil {
				t.Fatal("Expected panic, got none")
			}
			if !tt.panics && err != nil {
				t.Errorf("Expected no panic, got: %v", err)
			}
			if tt.panics && err.Error() != "fail-fast: value is nil" {
				t.Errorf("Unexpected message %q", err.Error())
			}
		})
	}
}

func TestIsNil(t *testing.T) {
	var nilFunc func()
	var nilPtr *int
	var nilErr error
	n := 1

	tests := []struct {
		name string
		v    interface{}
		want bool
	}{
		{name: "nil", v: nil, want: true},
		{name: "nil func", v: nilFunc, want: true},
		{name: "typed nil pointer", v: nilPtr, want: true},
		{name: "nil error", v: nilErr, want: true},
		{name: "pointer", v: &n, want: false},
		{name: "zero int", v: 0, want: false},
		{name: "func", v: func() {}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNil(tt.v); got != tt.want {
				t.Errorf("IsNil() = %v, want %v", got, tt.want)
			}
		})
	}
}
