package contract

import (
	"errors"
	"fmt"
	"reflect"

	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
)

// Formatter builds the typed error payload for a matched failure.
type Formatter[E any] func(err error) E

// ExceptionMapping converts a classified handler failure into a structured
// error response.
type ExceptionMapping[E any] struct {
	key         string
	match       func(error) bool
	code        int
	description string
	format      Formatter[E]
}

// Catch matches failures for which errors.Is(err, target) holds.
func Catch[E any](target error, code int, description string, format Formatter[E]) ExceptionMapping[E] {
	return ExceptionMapping[E]{
		key:         sentinelKey(target),
		match:       func(err error) bool { return errors.Is(err, target) },
		code:        code,
		description: description,
		format:      format,
	}
}

// CatchAs matches failures for which errors.As finds a T in the chain.
func CatchAs[T error, E any](code int, description string, format Formatter[E]) ExceptionMapping[E] {
	return ExceptionMapping[E]{
		key: "as:" + reflect.TypeFor[T]().String(),
		match: func(err error) bool {
			var target T
			return errors.As(err, &target)
		},
		code:        code,
		description: description,
		format:      format,
	}
}

// CatchFunc matches failures with a custom predicate. The name identifies the
// classifier for duplicate detection.
func CatchFunc[E any](name string, pred func(error) bool, code int, description string, format Formatter[E]) ExceptionMapping[E] {
	return ExceptionMapping[E]{
		key:         "func:" + name,
		match:       pred,
		code:        code,
		description: description,
		format:      format,
	}
}

func sentinelKey(target error) string {
	if target == nil {
		return "is:<nil>"
	}
	v := reflect.ValueOf(target)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return fmt.Sprintf("is:%T@%x", target, v.Pointer())
	}
	return fmt.Sprintf("is:%T=%#v", target, target)
}

// Key identifies the classifier. Two mappings with the same key on one
// contract are rejected.
func (m ExceptionMapping[E]) Key() string { return m.key }

// Code is the error code sent on match.
func (m ExceptionMapping[E]) Code() int { return m.code }

// Description is the error description sent on match.
func (m ExceptionMapping[E]) Description() string { return m.description }

// HasFormatter reports whether the mapping produces a typed error payload.
func (m ExceptionMapping[E]) HasFormatter() bool { return m.format != nil }

// Matches reports whether err is classified by this mapping.
func (m ExceptionMapping[E]) Matches(err error) bool {
	return err != nil && m.match != nil && m.match(err)
}

// Format builds the error payload, the zero value when no formatter is set.
func (m ExceptionMapping[E]) Format(err error) E {
	if m.format == nil {
		var zero E
		return zero
	}
	return m.format(err)
}

// MappingInfo is the type-erased view of an ExceptionMapping.
type MappingInfo struct {
	Key         string
	Code        int
	Description string
}

func validateMappings[E any](contract string, mappings []ExceptionMapping[E]) error {
	seen := make(map[string]struct{}, len(mappings))
	for _, m := range mappings {
		if m.match == nil {
			return fmt.Errorf("contractflow: exception mapping %q on %q has no classifier", m.key, contract)
		}
		if _, dup := seen[m.key]; dup {
			return &errspkg.DuplicateMappingError{Contract: contract, Key: m.key}
		}
		seen[m.key] = struct{}{}
	}
	return nil
}
