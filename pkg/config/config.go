// Package config loads reactor deployment settings from YAML or JSON
// files, layers environment-variable overrides on top, and validates the
// result before a Reactor is built from it.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads path into target, decoding by extension: .json is JSON,
// anything else is YAML.
func Load(path string, target interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if filepath.Ext(path) == ".json" {
		if err := json.Unmarshal(data, target); err != nil {
			return fmt.Errorf("config: decode %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	return nil
}

// LoadWithEnv loads path into target, then applies PREFIX_FIELD
// environment overrides on top, so a deployment can patch a single knob
// without editing the file.
func LoadWithEnv(path, prefix string, target interface{}) error {
	if err := Load(path, target); err != nil {
		return err
	}
	return ApplyEnv(prefix, target)
}

// ApplyEnv overrides target's fields from environment variables named
// PREFIX_FIELD. The field segment is the field's yaml tag upper-cased,
// falling back to the Go field name; nested structs extend the name
// (PREFIX_OUTER_INNER). Duration fields accept time.ParseDuration
// strings ("10ms", "30s").
func ApplyEnv(prefix string, target interface{}) error {
	if prefix == "" {
		prefix = "REACTOR"
	}
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: env target must be a pointer to a struct")
	}
	return applyEnv(prefix, v.Elem())
}

func applyEnv(prefix string, v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := prefix + "_" + envSegment(field)
		fv := v.Field(i)
		if fv.Kind() == reflect.Struct {
			if err := applyEnv(name, fv); err != nil {
				return err
			}
			continue
		}
		raw, ok := os.LookupEnv(name)
		if !ok {
			continue
		}
		if err := setFromString(fv, raw); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	return nil
}

func envSegment(f reflect.StructField) string {
	if tag, _, _ := strings.Cut(f.Tag.Get("yaml"), ","); tag != "" && tag != "-" {
		return strings.ToUpper(tag)
	}
	return strings.ToUpper(f.Name)
}

var durationType = reflect.TypeOf(Duration(0))

func setFromString(fv reflect.Value, raw string) error {
	if fv.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		fv.SetInt(int64(d))
		return nil
	}
	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		fv.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		fv.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return err
		}
		fv.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		fv.SetFloat(f)
	default:
		return fmt.Errorf("unsupported field kind %s", fv.Kind())
	}
	return nil
}
