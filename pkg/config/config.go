// Package config loads file based configuration for roundpool binaries.
//
// Files are YAML or JSON (picked by extension) and can be overridden from the
// environment: field Pool.Workers under prefix ROUNDPOOL reads ROUNDPOOL_POOL_WORKERS.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// DefaultEnvPrefix is used by ApplyEnvOverrides when prefix is empty
const DefaultEnvPrefix = "ROUNDPOOL"

var durationType = reflect.TypeOf(time.Duration(0))

// Load reads path into target, choosing the decoder by file extension.
// Unknown extensions are decoded as YAML.
func Load(path string, target interface{}) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return LoadJSON(path, target)
	default:
		return LoadYAML(path, target)
	}
}

// LoadWithEnv loads path (skipped when empty) and then applies environment overrides
func LoadWithEnv(path string, prefix string, target interface{}) error {
	if path != "" {
		if err := Load(path, target); err != nil {
			return fmt.Errorf("failed to load config file: %w", err)
		}
	}
	if err := ApplyEnvOverrides(prefix, target); err != nil {
		return fmt.Errorf("failed to apply env overrides: %w", err)
	}
	return nil
}

// ApplyEnvOverrides sets fields of the struct target points to from
// PREFIX_FIELD[_SUBFIELD...] environment variables.
func ApplyEnvOverrides(prefix string, target interface{}) error {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	val := reflect.ValueOf(target)
	if val.Kind() != reflect.Ptr || val.IsNil() || val.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("target must be a non-nil pointer to a struct, got %T", target)
	}
	_, err := overrideStruct(prefix, val.Elem())
	return err
}

// overrideStruct reports whether any field of val, or of a nested struct, was set.
// Nil pointers to structs are only allocated when one of their fields is set.
func overrideStruct(prefix string, val reflect.Value) (bool, error) {
	typ := val.Type()
	applied := false
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		if !field.CanSet() {
			continue
		}
		key := envKey(prefix, typ.Field(i).Name)

		switch {
		case field.Kind() == reflect.Struct:
			set, err := overrideStruct(key, field)
			if err != nil {
				return false, err
			}
			applied = applied || set
			continue
		case field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct:
			target := field
			if field.IsNil() {
				target = reflect.New(field.Type().Elem())
			}
			set, err := overrideStruct(key, target.Elem())
			if err != nil {
				return false, err
			}
			if set && field.IsNil() {
				field.Set(target)
			}
			applied = applied || set
			continue
		}

		raw, ok := os.LookupEnv(key)
		if !ok || raw == "" {
			continue
		}
		if err := setField(field, raw); err != nil {
			return false, fmt.Errorf("env %s: %w", key, err)
		}
		applied = true
	}
	return applied, nil
}

func envKey(prefix, name string) string {
	return strings.ReplaceAll(prefix+"_"+strings.ToUpper(name), "-", "_")
}

// setField parses raw into field according to its kind
func setField(field reflect.Value, raw string) error {
	raw = strings.TrimSpace(raw)

	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q", raw)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid bool %q", raw)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer %q", raw)
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid unsigned integer %q", raw)
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid float %q", raw)
		}
		field.SetFloat(f)
	case reflect.Slice:
		parts := strings.Split(raw, ",")
		slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
		for i, part := range parts {
			if err := setField(slice.Index(i), part); err != nil {
				return err
			}
		}
		field.Set(slice)
	default:
		return fmt.Errorf("unsupported field type %s", field.Kind())
	}
	return nil
}
