package config

import (
	"fmt"
	"reflect"
	"strings"
)

// Validator checks a loaded configuration value.
type Validator interface {
	Validate(target interface{}) error
}

// ValidatorFunc adapts a plain function to Validator.
type ValidatorFunc func(target interface{}) error

func (f ValidatorFunc) Validate(target interface{}) error { return f(target) }

// Validate runs every validator against target, stopping at the first
// failure.
func Validate(target interface{}, validators ...Validator) error {
	for _, v := range validators {
		if err := v.Validate(target); err != nil {
			return err
		}
	}
	return nil
}

// Required fails when any named field holds its zero value. Nested fields
// use dotted paths ("Listen.Addr").
func Required(fields ...string) Validator {
	return ValidatorFunc(func(target interface{}) error {
		v := reflect.ValueOf(target)
		if v.Kind() == reflect.Ptr {
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return fmt.Errorf("config: required-field target must be a struct")
		}
		var missing []string
		for _, path := range fields {
			fv := fieldByPath(v, path)
			if !fv.IsValid() {
				return fmt.Errorf("config: no field %s in %s", path, v.Type())
			}
			if fv.IsZero() {
				missing = append(missing, path)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("config: missing required fields: %s", strings.Join(missing, ", "))
		}
		return nil
	})
}

func fieldByPath(v reflect.Value, path string) reflect.Value {
	for _, part := range strings.Split(path, ".") {
		if v.Kind() == reflect.Ptr {
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return reflect.Value{}
		}
		v = v.FieldByName(part)
		if !v.IsValid() {
			return v
		}
	}
	return v
}
