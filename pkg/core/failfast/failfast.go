// Package failfast turns programmer errors into immediate panics.
//
// It is used where a wrong argument means the caller is broken (a barrier for
// zero parties, a missing dependency while wiring a binary) and returning an
// error would only move the crash somewhere less obvious.
package failfast

import (
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
)

// ErrFailFast is wrapped by every value this package panics with.
var ErrFailFast = errors.New("fail-fast")

// Err panics if err != nil, attaching the stack trace
func Err(err error) {
	if err != nil {
		panic(fmt.Errorf("%w: %w\n%s", ErrFailFast, err, debug.Stack()))
	}
}

// If panics if condition is false
func If(condition bool, message string, args ...interface{}) {
	if !condition {
		panic(fmt.Errorf("%w: %s", ErrFailFast, fmt.Sprintf(message, args...)))
	}
}

// NotNil panics if v is nil, including typed nil pointers, funcs, maps,
// slices, channels and interfaces
func NotNil(v interface{}, name string) {
	if IsNil(v) {
		panic(fmt.Errorf("%w: %s is nil", ErrFailFast, name))
	}
}

// IsNil reports whether v is nil or a typed nil pointer, func, map, slice,
// channel or interface. It never panics.
func IsNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Func, reflect.Map, reflect.Slice, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
