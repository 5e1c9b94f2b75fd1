package schema

import (
	"encoding"
	"fmt"
	"reflect"
	"strconv"
)

// validMapKey reports whether values of typ can key a JSON object: strings,
// integers, and types that round-trip through text.
func validMapKey(typ reflect.Type) bool {
	switch typ.Kind() {
	case reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return typ.Implements(textMarshalerType) && reflect.PointerTo(typ).Implements(textUnmarshalerType)
}

func formatMapKey(k reflect.Value) (string, error) {
	if k.Kind() == reflect.String {
		return k.String(), nil
	}
	if k.Type().Implements(textMarshalerType) {
		if k.Kind() == reflect.Pointer && k.IsNil() {
			return "", nil
		}
		text, err := k.Interface().(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return "", fmt.Errorf("map key %s: %w", k.Type(), err)
		}
		return string(text), nil
	}
	switch k.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(k.Uint(), 10), nil
	}
	return "", fmt.Errorf("unsupported map key type %s", k.Type())
}

func parseMapKey(key string, typ reflect.Type) (reflect.Value, error) {
	if reflect.PointerTo(typ).Implements(textUnmarshalerType) {
		kv := reflect.New(typ)
		if err := kv.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(key)); err != nil {
			return reflect.Value{}, fmt.Errorf("map key %q: %w", key, err)
		}
		return kv.Elem(), nil
	}

	kv := reflect.New(typ).Elem()
	switch typ.Kind() {
	case reflect.String:
		kv.SetString(key)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(key, 10, 64)
		if err != nil || kv.OverflowInt(n) {
			return reflect.Value{}, fmt.Errorf("map key %q is not a valid %s", key, typ)
		}
		kv.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, err := strconv.ParseUint(key, 10, 64)
		if err != nil || kv.OverflowUint(n) {
			return reflect.Value{}, fmt.Errorf("map key %q is not a valid %s", key, typ)
		}
		kv.SetUint(n)
	default:
		return reflect.Value{}, fmt.Errorf("unsupported map key type %s", typ)
	}
	return kv, nil
}

// checkMapKeys walks the fields and elements of typ and reports the first
// map whose key type cannot be an object key. Types handled by a rule are
// not walked.
func (a *jsonAdapter[T]) checkMapKeys(typ reflect.Type, path string, seen map[reflect.Type]bool) error {
	if seen[typ] || a.rule(typ) != nil {
		return nil
	}
	switch typ.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Array:
		return a.checkMapKeys(typ.Elem(), path, seen)
	case reflect.Map:
		if !validMapKey(typ.Key()) {
			return pathErr(path, fmt.Errorf("map key type %s is not a string, integer or text marshaler", typ.Key()))
		}
		return a.checkMapKeys(typ.Elem(), path, seen)
	case reflect.Struct:
		seen[typ] = true
		for _, f := range structFields(typ) {
			if err := a.checkMapKeys(f.typ, joinPath(path, f.name), seen); err != nil {
				return err
			}
		}
	}
	return nil
}
