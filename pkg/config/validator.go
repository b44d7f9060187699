package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Validator checks a loaded configuration
type Validator interface {
	Validate(config interface{}) error
}

// ValidatorFunc adapts a function to Validator
type ValidatorFunc func(config interface{}) error

// Validate calls f(config)
func (f ValidatorFunc) Validate(config interface{}) error {
	return f(config)
}

// Validate runs every validator and joins their errors
func Validate(config interface{}, validators ...Validator) error {
	var errs []error
	for _, v := range validators {
		if err := v.Validate(config); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RequiredFields fails when any of the named fields holds its zero value.
// Nested fields use dot notation, e.g. "Metrics.Addr".
func RequiredFields(fields ...string) Validator {
	return ValidatorFunc(func(config interface{}) error {
		val, err := structValue(config)
		if err != nil {
			return err
		}

		var missing []string
		for _, name := range fields {
			field := lookupField(val, name)
			if !field.IsValid() {
				return fmt.Errorf("field %s not found", name)
			}
			if field.IsZero() {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("required fields are missing: %s", strings.Join(missing, ", "))
		}
		return nil
	})
}

// RangeValidator checks that a numeric field lies in [min, max].
// Durations are compared in seconds.
func RangeValidator(fieldName string, min, max float64) Validator {
	return ValidatorFunc(func(config interface{}) error {
		val, err := structValue(config)
		if err != nil {
			return err
		}
		field := lookupField(val, fieldName)
		if !field.IsValid() {
			return fmt.Errorf("field %s not found", fieldName)
		}

		var n float64
		switch {
		case field.Type() == durationType:
			n = time.Duration(field.Int()).Seconds()
		case field.CanInt():
			n = float64(field.Int())
		case field.CanUint():
			n = float64(field.Uint())
		case field.CanFloat():
			n = field.Float()
		default:
			return fmt.Errorf("field %s is not numeric", fieldName)
		}

		if n < min || n > max {
			return fmt.Errorf("field %s value %v is out of range [%v, %v]", fieldName, n, min, max)
		}
		return nil
	})
}

// OneOfValidator checks that a string field holds one of allowed
func OneOfValidator(fieldName string, allowed ...string) Validator {
	return ValidatorFunc(func(config interface{}) error {
		val, err := structValue(config)
		if err != nil {
			return err
		}
		field := lookupField(val, fieldName)
		if !field.IsValid() {
			return fmt.Errorf("field %s not found", fieldName)
		}
		if field.Kind() != reflect.String {
			return fmt.Errorf("field %s is not a string", fieldName)
		}

		for _, a := range allowed {
			if field.String() == a {
				return nil
			}
		}
		return fmt.Errorf("field %s value %q must be one of [%s]", fieldName, field.String(), strings.Join(allowed, ", "))
	})
}

func structValue(config interface{}) (reflect.Value, error) {
	val := reflect.ValueOf(config)
	for val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return reflect.Value{}, errors.New("config is nil")
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("config must be a struct, got %s", val.Kind())
	}
	return val, nil
}

// lookupField resolves a dotted path; the zero Value means not found
func lookupField(val reflect.Value, path string) reflect.Value {
	for _, part := range strings.Split(path, ".") {
		for val.Kind() == reflect.Ptr {
			if val.IsNil() {
				return reflect.Value{}
			}
			val = val.Elem()
		}
		if val.Kind() != reflect.Struct {
			return reflect.Value{}
		}
		val = val.FieldByName(part)
		if !val.IsValid() {
			return val
		}
	}
	return val
}
