package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"

	"google.golang.org/protobuf/proto"
)

var errUnexpectedBody = errors.New("no value expected")

type bytesAdapter[T any] struct {
	typ reflect.Type
}

func (a bytesAdapter[T]) Encode(value T) ([]byte, error) {
	return reflect.ValueOf(value).Bytes(), nil
}

func (a bytesAdapter[T]) Decode(data []byte) (T, error) {
	buf := make([]byte, len(data))
	copy(buf, data)
	return reflect.ValueOf(buf).Convert(a.typ).Interface().(T), nil
}

type textAdapter[T any] struct {
	typ reflect.Type
}

func (a textAdapter[T]) Encode(value T) ([]byte, error) {
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.String:
		return []byte(v.String()), nil
	case reflect.Bool:
		return strconv.AppendBool(nil, v.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.AppendInt(nil, v.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.AppendUint(nil, v.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return strconv.AppendFloat(nil, v.Float(), 'g', -1, v.Type().Bits()), nil
	}
	return nil, fmt.Errorf("unsupported text kind %s", v.Kind())
}

func (a textAdapter[T]) Decode(data []byte) (T, error) {
	var zero T
	out := reflect.New(a.typ).Elem()
	raw := string(data)

	switch a.typ.Kind() {
	case reflect.String:
		out.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return zero, err
		}
		out.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, a.typ.Bits())
		if err != nil {
			return zero, err
		}
		out.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, a.typ.Bits())
		if err != nil {
			return zero, err
		}
		out.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, a.typ.Bits())
		if err != nil {
			return zero, err
		}
		out.SetFloat(f)
	default:
		return zero, fmt.Errorf("unsupported text kind %s", a.typ.Kind())
	}
	return out.Interface().(T), nil
}

// unitAdapter always produces an empty body and only accepts an empty body.
type unitAdapter[T any] struct{}

func (unitAdapter[T]) Encode(T) ([]byte, error) { return []byte{}, nil }

func (unitAdapter[T]) Decode(data []byte) (T, error) {
	var zero T
	if len(data) != 0 {
		return zero, errUnexpectedBody
	}
	return zero, nil
}

type protoAdapter[T any] struct {
	typ reflect.Type
}

func (a protoAdapter[T]) Encode(value T) ([]byte, error) {
	msg, ok := any(value).(proto.Message)
	if !ok || reflect.ValueOf(value).IsNil() {
		return nil, errors.New("nil protobuf message")
	}
	return proto.Marshal(msg)
}

func (a protoAdapter[T]) Decode(data []byte) (T, error) {
	var zero T
	msg := reflect.New(a.typ.Elem()).Interface().(proto.Message)
	if err := proto.Unmarshal(data, msg); err != nil {
		return zero, err
	}
	return msg.(T), nil
}
