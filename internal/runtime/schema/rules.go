package schema

import (
	"encoding"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/drblury/contractflow/internal/runtime/jsoncodec"
)

// EncodeRule teaches the structural JSON adapter how to handle one family of
// non-primitive values. Encode returns a value the JSON codec already
// understands; Decode rebuilds the Go value from the generic JSON tree.
type EncodeRule interface {
	Match(typ reflect.Type) bool
	Encode(v reflect.Value) (any, error)
	Decode(src any, dst reflect.Value) error
}

var (
	timeType            = reflect.TypeFor[time.Time]()
	durationType        = reflect.TypeFor[time.Duration]()
	jsonMarshalerType   = reflect.TypeFor[json.Marshaler]()
	jsonUnmarshalerType = reflect.TypeFor[json.Unmarshaler]()
	textMarshalerType   = reflect.TypeFor[encoding.TextMarshaler]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
)

// DefaultRules is the ordered rule set used when no extra rules are supplied.
func DefaultRules() []EncodeRule {
	return []EncodeRule{
		TimeRule{},
		DurationRule{},
		BytesRule{},
		MarshalerRule{},
		EnumRule{},
	}
}

// TimeRule encodes time.Time as an RFC 3339 (ISO-8601) string.
type TimeRule struct{}

func (TimeRule) Match(typ reflect.Type) bool { return typ == timeType }

func (TimeRule) Encode(v reflect.Value) (any, error) {
	return v.Interface().(time.Time).Format(time.RFC3339Nano), nil
}

func (TimeRule) Decode(src any, dst reflect.Value) error {
	s, ok := src.(string)
	if !ok {
		return fmt.Errorf("expected RFC 3339 string, got %s", jsonKind(src))
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	dst.Set(reflect.ValueOf(t))
	return nil
}

// DurationRule encodes time.Duration as fractional seconds.
type DurationRule struct{}

func (DurationRule) Match(typ reflect.Type) bool { return typ == durationType }

func (DurationRule) Encode(v reflect.Value) (any, error) {
	return time.Duration(v.Int()).Seconds(), nil
}

func (DurationRule) Decode(src any, dst reflect.Value) error {
	n, ok := src.(json.Number)
	if !ok {
		return fmt.Errorf("expected number of seconds, got %s", jsonKind(src))
	}
	secs, err := n.Float64()
	if err != nil {
		return err
	}
	dst.SetInt(int64(secs * float64(time.Second)))
	return nil
}

// BytesRule encodes byte slices as arrays of integers. Decoding also accepts
// a base64 string.
type BytesRule struct{}

func (BytesRule) Match(typ reflect.Type) bool { return isByteSlice(typ) }

func (BytesRule) Encode(v reflect.Value) (any, error) {
	if v.IsNil() {
		return nil, nil
	}
	raw := v.Bytes()
	out := make([]int, len(raw))
	for i, b := range raw {
		out[i] = int(b)
	}
	return out, nil
}

func (BytesRule) Decode(src any, dst reflect.Value) error {
	switch s := src.(type) {
	case nil:
		dst.SetZero()
		return nil
	case string:
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return err
		}
		dst.SetBytes(raw)
		return nil
	case []any:
		raw := make([]byte, len(s))
		for i, item := range s {
			n, ok := item.(json.Number)
			if !ok {
				return fmt.Errorf("[%d]: expected byte, got %s", i, jsonKind(item))
			}
			b, err := n.Int64()
			if err != nil || b < 0 || b > 255 {
				return fmt.Errorf("[%d]: %s is not a byte", i, n)
			}
			raw[i] = byte(b)
		}
		dst.SetBytes(raw)
		return nil
	}
	return fmt.Errorf("expected array of bytes, got %s", jsonKind(src))
}

// MarshalerRule defers to json.Marshaler and encoding.TextMarshaler
// implementations.
type MarshalerRule struct{}

func (MarshalerRule) Match(typ reflect.Type) bool {
	ptr := reflect.PointerTo(typ)
	return ptr.Implements(jsonMarshalerType) || ptr.Implements(textMarshalerType)
}

func (MarshalerRule) Encode(v reflect.Value) (any, error) {
	ptr := reflect.New(v.Type())
	ptr.Elem().Set(v)
	if m, ok := ptr.Interface().(json.Marshaler); ok {
		raw, err := m.MarshalJSON()
		if err != nil {
			return nil, err
		}
		return json.RawMessage(raw), nil
	}
	text, err := ptr.Interface().(encoding.TextMarshaler).MarshalText()
	if err != nil {
		return nil, err
	}
	return string(text), nil
}

func (MarshalerRule) Decode(src any, dst reflect.Value) error {
	target := dst.Addr().Interface()
	if u, ok := target.(json.Unmarshaler); ok {
		raw, err := jsoncodec.Marshal(src)
		if err != nil {
			return err
		}
		return u.UnmarshalJSON(raw)
	}
	if u, ok := target.(encoding.TextUnmarshaler); ok {
		s, ok := src.(string)
		if !ok {
			return fmt.Errorf("expected string, got %s", jsonKind(src))
		}
		return u.UnmarshalText([]byte(s))
	}
	return errors.New("type does not implement an unmarshaler")
}

// EnumRule encodes named scalar types (enumerations, numeric wrappers) as
// their underlying value.
type EnumRule struct{}

func (EnumRule) Match(typ reflect.Type) bool {
	return typ.PkgPath() != "" && isTextScalar(typ)
}

func (EnumRule) Encode(v reflect.Value) (any, error) {
	switch v.Kind() {
	case reflect.String:
		return v.String(), nil
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint(), nil
	}
	return v.Float(), nil
}

func (EnumRule) Decode(src any, dst reflect.Value) error {
	return assignScalar(src, dst)
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
