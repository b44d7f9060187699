package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"
)

// LoadJSON loads configuration from a JSON file. Unknown fields are rejected.
// time.Duration fields take either nanoseconds or a string such as "5s".
func LoadJSON(path string, target interface{}) error {
	// #nosec G304 -- path comes from the operator (command line flag)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file %s: %w", path, err)
	}

	if t := reflect.TypeOf(target); t != nil && t.Kind() == reflect.Ptr {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var raw interface{}
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("failed to unmarshal JSON %s: %w", path, err)
		}
		if data, err = json.Marshal(parseDurations(raw, t.Elem())); err != nil {
			return fmt.Errorf("failed to unmarshal JSON %s: %w", path, err)
		}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("failed to unmarshal JSON %s: %w", path, err)
	}
	return nil
}

// parseDurations walks raw alongside t and turns duration strings into
// nanoseconds. Values it cannot parse are left for the decoder to reject.
func parseDurations(raw interface{}, t reflect.Type) interface{} {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == durationType {
		if s, ok := raw.(string); ok {
			if d, err := time.ParseDuration(s); err == nil {
				return int64(d)
			}
		}
		return raw
	}

	switch t.Kind() {
	case reflect.Struct:
		obj, ok := raw.(map[string]interface{})
		if !ok {
			return raw
		}
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name := jsonName(f)
			if name == "-" {
				continue
			}
			for key, val := range obj {
				if strings.EqualFold(key, name) {
					obj[key] = parseDurations(val, f.Type)
				}
			}
		}
	case reflect.Slice, reflect.Array:
		if items, ok := raw.([]interface{}); ok {
			for i := range items {
				items[i] = parseDurations(items[i], t.Elem())
			}
		}
	case reflect.Map:
		if obj, ok := raw.(map[string]interface{}); ok {
			for key, val := range obj {
				obj[key] = parseDurations(val, t.Elem())
			}
		}
	}
	return raw
}

func jsonName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" {
		return f.Name
	}
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name
	}
	return f.Name
}
