// Package schema pairs payload types with a content type and a reversible
// encode/decode adapter.
package schema

import (
	"fmt"
	"reflect"

	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
)

// Empty is the unit payload: no body on the wire.
type Empty = struct{}

// Content types assigned by inference.
const (
	ContentTypeBytes    = "application/octet-stream"
	ContentTypeText     = "text/plain"
	ContentTypeJSON     = "application/json"
	ContentTypeProtobuf = "application/x-protobuf"
)

// Kind is the payload family a schema was resolved to.
type Kind uint8

const (
	KindCustom Kind = iota
	KindBytes
	KindText
	KindUnit
	KindProto
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindBytes:
		return "bytes"
	case KindText:
		return "text"
	case KindUnit:
		return "unit"
	case KindProto:
		return "proto"
	case KindJSON:
		return "json"
	}
	return "custom"
}

// TypeAdapter converts between a value and its wire bytes.
type TypeAdapter[T any] interface {
	Encode(value T) ([]byte, error)
	Decode(data []byte) (T, error)
}

// AdapterFuncs builds a TypeAdapter from two functions.
type AdapterFuncs[T any] struct {
	EncodeFunc func(T) ([]byte, error)
	DecodeFunc func([]byte) (T, error)
}

func (a AdapterFuncs[T]) Encode(value T) ([]byte, error) { return a.EncodeFunc(value) }

func (a AdapterFuncs[T]) Decode(data []byte) (T, error) { return a.DecodeFunc(data) }

// Entry is the type-erased view of a Schema used by documentation and
// registry code.
type Entry interface {
	Type() reflect.Type
	TypeName() string
	ContentType() string
	Kind() Kind
	IsUnit() bool
	JSONSchema() map[string]any
}

// Schema is an immutable payload descriptor.
type Schema[T any] struct {
	typ         reflect.Type
	contentType string
	kind        Kind
	adapter     TypeAdapter[T]
	jsonSchema  map[string]any
}

type options struct {
	contentType    *string
	adapter        any
	lenient        bool
	validate       bool
	rules          []EncodeRule
	jsonSchemaHint map[string]any
}

// Option customises schema construction.
type Option func(*options)

// WithContentType overrides the content type label.
func WithContentType(contentType string) Option {
	return func(o *options) { o.contentType = &contentType }
}

// WithAdapter supplies an explicit adapter instead of the inferred one.
func WithAdapter[T any](adapter TypeAdapter[T]) Option {
	return func(o *options) { o.adapter = adapter }
}

// Lenient makes the structural JSON adapter ignore unknown keys and missing
// fields on decode.
func Lenient() Option {
	return func(o *options) { o.lenient = true }
}

// WithValidation validates decoded JSON payloads against the generated JSON
// Schema before assignment.
func WithValidation() Option {
	return func(o *options) { o.validate = true }
}

// WithEncodeRules prepends rules to the structural JSON adapter's rule set.
func WithEncodeRules(rules ...EncodeRule) Option {
	return func(o *options) { o.rules = append(o.rules, rules...) }
}

// WithJSONSchema replaces the generated documentation schema.
func WithJSONSchema(doc map[string]any) Option {
	return func(o *options) { o.jsonSchemaHint = doc }
}

// New resolves the content type and adapter for T. Explicit options win over
// inference; without an adapter, T must be inferable.
func New[T any](opts ...Option) (*Schema[T], error) {
	cfg := options{}
	for _, opt := range opts {
		opt(&cfg)
	}

	typ := reflect.TypeFor[T]()
	s := &Schema[T]{typ: typ}

	kind, contentType, inferErr := Infer(typ)

	if cfg.adapter != nil {
		if typ == unitType {
			return nil, &errspkg.SchemaInferenceError{Type: typeName(typ), Reason: "unit payloads cannot use a custom adapter"}
		}
		adapter, ok := cfg.adapter.(TypeAdapter[T])
		if !ok {
			return nil, &errspkg.SchemaInferenceError{
				Type:   typeName(typ),
				Reason: fmt.Sprintf("adapter %T does not handle %s", cfg.adapter, typeName(typ)),
			}
		}
		s.adapter = adapter
		s.kind = KindCustom
		switch {
		case cfg.contentType != nil:
			s.contentType = *cfg.contentType
		case inferErr == nil:
			s.contentType = contentType
		default:
			return nil, inferErr
		}
		s.jsonSchema = documentSchema(typ, kind, inferErr == nil)
		if cfg.jsonSchemaHint != nil {
			s.jsonSchema = cfg.jsonSchemaHint
		}
		return s, nil
	}

	if inferErr != nil {
		return nil, inferErr
	}

	s.kind = kind
	s.contentType = contentType
	if cfg.contentType != nil {
		if kind == KindUnit && *cfg.contentType != "" {
			return nil, &errspkg.SchemaInferenceError{Type: typeName(typ), Reason: "unit payloads cannot declare a content type"}
		}
		s.contentType = *cfg.contentType
	}
	s.jsonSchema = documentSchema(typ, kind, true)
	if cfg.jsonSchemaHint != nil {
		s.jsonSchema = cfg.jsonSchemaHint
	}

	adapter, err := inferredAdapter[T](typ, kind, cfg, s.jsonSchema)
	if err != nil {
		return nil, err
	}
	s.adapter = adapter
	return s, nil
}

// Must is like New but panics on error.
func Must[T any](opts ...Option) *Schema[T] {
	s, err := New[T](opts...)
	if err != nil {
		panic(err)
	}
	return s
}

func inferredAdapter[T any](typ reflect.Type, kind Kind, cfg options, doc map[string]any) (TypeAdapter[T], error) {
	switch kind {
	case KindBytes:
		return bytesAdapter[T]{typ: typ}, nil
	case KindText:
		return textAdapter[T]{typ: typ}, nil
	case KindUnit:
		return unitAdapter[T]{}, nil
	case KindProto:
		return protoAdapter[T]{typ: typ}, nil
	case KindJSON:
		return newJSONAdapter[T](typ, cfg, doc)
	}
	return nil, &errspkg.UnsupportedSchemaTypeError{Type: typeName(typ)}
}

// Type returns the logical payload type.
func (s *Schema[T]) Type() reflect.Type { return s.typ }

// TypeName returns a readable name for the payload type.
func (s *Schema[T]) TypeName() string { return typeName(s.typ) }

// ContentType returns the content type label, empty for unit payloads.
func (s *Schema[T]) ContentType() string { return s.contentType }

// Kind returns the payload family.
func (s *Schema[T]) Kind() Kind { return s.kind }

// IsUnit reports whether the schema carries no body.
func (s *Schema[T]) IsUnit() bool { return s.kind == KindUnit }

// Adapter returns the underlying adapter.
func (s *Schema[T]) Adapter() TypeAdapter[T] { return s.adapter }

// JSONSchema returns the documentation schema, nil for unit payloads.
func (s *Schema[T]) JSONSchema() map[string]any { return s.jsonSchema }

// Encode converts value to bytes. Adapter failures are wrapped in EncodeError.
func (s *Schema[T]) Encode(value T) ([]byte, error) {
	data, err := s.adapter.Encode(value)
	if err != nil {
		return nil, asEncodeError(s.typ, err)
	}
	return data, nil
}

// Decode converts bytes to a value. Adapter failures are wrapped in DecodeError.
func (s *Schema[T]) Decode(data []byte) (T, error) {
	value, err := s.adapter.Decode(data)
	if err != nil {
		var zero T
		return zero, asDecodeError(s.typ, err)
	}
	return value, nil
}

func asEncodeError(typ reflect.Type, err error) error {
	if _, ok := err.(*errspkg.EncodeError); ok {
		return err
	}
	return &errspkg.EncodeError{Type: typeName(typ), Err: err}
}

func asDecodeError(typ reflect.Type, err error) error {
	if _, ok := err.(*errspkg.DecodeError); ok {
		return err
	}
	return &errspkg.DecodeError{Type: typeName(typ), Err: err}
}

func typeName(typ reflect.Type) string {
	if typ == nil {
		return "<nil>"
	}
	return typ.String()
}
