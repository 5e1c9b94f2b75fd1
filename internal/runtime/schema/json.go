package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
	"github.com/drblury/contractflow/internal/runtime/jsoncodec"
)

// jsonField is the cached view of one struct field.
type jsonField struct {
	name      string
	index     []int
	typ       reflect.Type
	omitEmpty bool
	required  bool
}

var fieldCache sync.Map // reflect.Type -> []jsonField

func structFields(typ reflect.Type) []jsonField {
	if cached, ok := fieldCache.Load(typ); ok {
		return cached.([]jsonField)
	}
	fields := collectFields(typ, nil)
	fieldCache.Store(typ, fields)
	return fields
}

func collectFields(typ reflect.Type, prefix []int) []jsonField {
	var fields []jsonField
	for i := 0; i < typ.NumField(); i++ {
		sf := typ.Field(i)
		tag, hasTag := sf.Tag.Lookup("json")
		name, opts, _ := strings.Cut(tag, ",")
		if name == "-" && opts == "" {
			continue
		}

		index := make([]int, len(prefix)+1)
		copy(index, prefix)
		index[len(prefix)] = i

		if sf.Anonymous && sf.IsExported() && sf.Type.Kind() == reflect.Struct && (!hasTag || name == "") {
			fields = append(fields, collectFields(sf.Type, index)...)
			continue
		}
		if !sf.IsExported() {
			continue
		}
		if name == "" {
			name = sf.Name
		}
		omitEmpty := strings.Contains(","+opts+",", ",omitempty,") || strings.Contains(","+opts+",", ",omitzero,")
		fields = append(fields, jsonField{
			name:      name,
			index:     index,
			typ:       sf.Type,
			omitEmpty: omitEmpty,
			required:  !omitEmpty && sf.Type.Kind() != reflect.Pointer && sf.Type.Kind() != reflect.Interface,
		})
	}
	return fields
}

// jsonAdapter is the structural JSON adapter. It walks values through an
// ordered rule set on encode and assigns decoded JSON objects field by field,
// rejecting unknown and missing keys unless lenient.
type jsonAdapter[T any] struct {
	typ       reflect.Type
	rules     []EncodeRule
	lenient   bool
	validator *jsonschema.Schema
}

func newJSONAdapter[T any](typ reflect.Type, cfg options, doc map[string]any) (*jsonAdapter[T], error) {
	a := &jsonAdapter[T]{
		typ:     typ,
		rules:   append(append([]EncodeRule{}, cfg.rules...), DefaultRules()...),
		lenient: cfg.lenient,
	}
	if err := a.checkMapKeys(typ, "", map[reflect.Type]bool{}); err != nil {
		return nil, &errspkg.SchemaInferenceError{Type: typeName(typ), Reason: err.Error()}
	}
	if cfg.validate {
		validator, err := compileValidator(typ, doc)
		if err != nil {
			return nil, err
		}
		a.validator = validator
	}
	return a, nil
}

func (a *jsonAdapter[T]) Encode(value T) ([]byte, error) {
	buf := make([]byte, 0, 64)
	return a.encode(buf, reflect.ValueOf(&value).Elem())
}

func (a *jsonAdapter[T]) rule(typ reflect.Type) EncodeRule {
	for _, r := range a.rules {
		if r.Match(typ) {
			return r
		}
	}
	return nil
}

func (a *jsonAdapter[T]) encode(buf []byte, v reflect.Value) ([]byte, error) {
	if !v.IsValid() {
		return append(buf, "null"...), nil
	}
	if (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) && v.IsNil() {
		return append(buf, "null"...), nil
	}
	if r := a.rule(v.Type()); r != nil {
		out, err := r.Encode(v)
		if err != nil {
			return nil, err
		}
		return appendMarshal(buf, out)
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		return a.encode(buf, v.Elem())
	case reflect.Bool:
		return strconv.AppendBool(buf, v.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.AppendInt(buf, v.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.AppendUint(buf, v.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("unsupported float value %v", f)
		}
		return appendMarshal(buf, f)
	case reflect.String:
		return appendMarshal(buf, v.String())
	case reflect.Struct:
		return a.encodeStruct(buf, v)
	case reflect.Map:
		return a.encodeMap(buf, v)
	case reflect.Slice:
		if v.IsNil() {
			return append(buf, "null"...), nil
		}
		return a.encodeList(buf, v)
	case reflect.Array:
		return a.encodeList(buf, v)
	}
	return nil, fmt.Errorf("unsupported value of kind %s", v.Kind())
}

func (a *jsonAdapter[T]) encodeStruct(buf []byte, v reflect.Value) ([]byte, error) {
	buf = append(buf, '{')
	first := true
	for _, f := range structFields(v.Type()) {
		fv, ok := fieldByIndex(v, f.index)
		if !ok {
			continue
		}
		if f.omitEmpty && fv.IsZero() {
			continue
		}
		if !first {
			buf = append(buf, ',')
		}
		first = false
		var err error
		if buf, err = appendMarshal(buf, f.name); err != nil {
			return nil, err
		}
		buf = append(buf, ':')
		if buf, err = a.encode(buf, fv); err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
	}
	return append(buf, '}'), nil
}

func (a *jsonAdapter[T]) encodeMap(buf []byte, v reflect.Value) ([]byte, error) {
	if v.IsNil() {
		return append(buf, "null"...), nil
	}
	type entry struct {
		key   string
		value reflect.Value
	}
	entries := make([]entry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		key, err := formatMapKey(iter.Key())
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry{key: key, value: iter.Value()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	buf = append(buf, '{')
	for i, e := range entries {
		if i > 0 {
			buf = append(buf, ',')
		}
		var err error
		if buf, err = appendMarshal(buf, e.key); err != nil {
			return nil, err
		}
		buf = append(buf, ':')
		if buf, err = a.encode(buf, e.value); err != nil {
			return nil, fmt.Errorf("%s: %w", e.key, err)
		}
	}
	return append(buf, '}'), nil
}

func (a *jsonAdapter[T]) encodeList(buf []byte, v reflect.Value) ([]byte, error) {
	buf = append(buf, '[')
	for i := 0; i < v.Len(); i++ {
		if i > 0 {
			buf = append(buf, ',')
		}
		var err error
		if buf, err = a.encode(buf, v.Index(i)); err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
	}
	return append(buf, ']'), nil
}

func (a *jsonAdapter[T]) Decode(data []byte) (T, error) {
	var out T
	if len(data) == 0 {
		return out, errors.New("empty payload")
	}
	tree, err := jsoncodec.UnmarshalTree(data)
	if err != nil {
		return out, err
	}
	if a.validator != nil {
		if err := a.validator.Validate(tree); err != nil {
			return out, err
		}
	}
	if err := a.assign(tree, reflect.ValueOf(&out).Elem(), ""); err != nil {
		return out, err
	}
	return out, nil
}

func (a *jsonAdapter[T]) assign(src any, dst reflect.Value, path string) error {
	if r := a.rule(dst.Type()); r != nil {
		if err := r.Decode(src, dst); err != nil {
			return pathErr(path, err)
		}
		return nil
	}

	if src == nil {
		switch dst.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
			dst.SetZero()
			return nil
		}
		return pathErr(path, fmt.Errorf("null is not allowed for %s", dst.Type()))
	}

	switch dst.Kind() {
	case reflect.Pointer:
		elem := reflect.New(dst.Type().Elem())
		if err := a.assign(src, elem.Elem(), path); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	case reflect.Interface:
		if dst.NumMethod() != 0 {
			return pathErr(path, fmt.Errorf("cannot decode into interface %s", dst.Type()))
		}
		dst.Set(reflect.ValueOf(plainTree(src)))
		return nil
	case reflect.Struct:
		return a.assignStruct(src, dst, path)
	case reflect.Map:
		return a.assignMap(src, dst, path)
	case reflect.Slice:
		items, ok := src.([]any)
		if !ok {
			return pathErr(path, fmt.Errorf("expected array, got %s", jsonKind(src)))
		}
		out := reflect.MakeSlice(dst.Type(), len(items), len(items))
		for i, item := range items {
			if err := a.assign(item, out.Index(i), path+"["+strconv.Itoa(i)+"]"); err != nil {
				return err
			}
		}
		dst.Set(out)
		return nil
	case reflect.Array:
		items, ok := src.([]any)
		if !ok {
			return pathErr(path, fmt.Errorf("expected array, got %s", jsonKind(src)))
		}
		if len(items) != dst.Len() {
			return pathErr(path, fmt.Errorf("expected %d items, got %d", dst.Len(), len(items)))
		}
		for i, item := range items {
			if err := a.assign(item, dst.Index(i), path+"["+strconv.Itoa(i)+"]"); err != nil {
				return err
			}
		}
		return nil
	}

	if err := assignScalar(src, dst); err != nil {
		return pathErr(path, err)
	}
	return nil
}

func (a *jsonAdapter[T]) assignStruct(src any, dst reflect.Value, path string) error {
	obj, ok := src.(map[string]any)
	if !ok {
		return pathErr(path, fmt.Errorf("expected object, got %s", jsonKind(src)))
	}

	fields := structFields(dst.Type())
	byName := make(map[string]int, len(fields))
	for i, f := range fields {
		byName[f.name] = i
	}

	seen := make([]bool, len(fields))
	for key, value := range obj {
		i, ok := byName[key]
		if !ok {
			if a.lenient {
				continue
			}
			return pathErr(joinPath(path, key), errors.New("unknown field"))
		}
		seen[i] = true
		fv := fieldForWrite(dst, fields[i].index)
		if err := a.assign(value, fv, joinPath(path, key)); err != nil {
			return err
		}
	}

	if a.lenient {
		return nil
	}
	for i, f := range fields {
		if f.required && !seen[i] {
			return pathErr(joinPath(path, f.name), errors.New("missing field"))
		}
	}
	return nil
}

func (a *jsonAdapter[T]) assignMap(src any, dst reflect.Value, path string) error {
	obj, ok := src.(map[string]any)
	if !ok {
		return pathErr(path, fmt.Errorf("expected object, got %s", jsonKind(src)))
	}
	typ := dst.Type()
	out := reflect.MakeMapWithSize(typ, len(obj))
	for key, value := range obj {
		kv, err := parseMapKey(key, typ.Key())
		if err != nil {
			return pathErr(path, err)
		}
		elem := reflect.New(typ.Elem()).Elem()
		if err := a.assign(value, elem, joinPath(path, key)); err != nil {
			return err
		}
		out.SetMapIndex(kv, elem)
	}
	dst.Set(out)
	return nil
}

func assignScalar(src any, dst reflect.Value) error {
	switch dst.Kind() {
	case reflect.Bool:
		b, ok := src.(bool)
		if !ok {
			return fmt.Errorf("expected boolean, got %s", jsonKind(src))
		}
		dst.SetBool(b)
	case reflect.String:
		s, ok := src.(string)
		if !ok {
			return fmt.Errorf("expected string, got %s", jsonKind(src))
		}
		dst.SetString(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := src.(json.Number)
		if !ok {
			return fmt.Errorf("expected integer, got %s", jsonKind(src))
		}
		i, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil || dst.OverflowInt(i) {
			return fmt.Errorf("%s does not fit %s", n, dst.Type())
		}
		dst.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, ok := src.(json.Number)
		if !ok {
			return fmt.Errorf("expected integer, got %s", jsonKind(src))
		}
		u, err := strconv.ParseUint(n.String(), 10, 64)
		if err != nil || dst.OverflowUint(u) {
			return fmt.Errorf("%s does not fit %s", n, dst.Type())
		}
		dst.SetUint(u)
	case reflect.Float32, reflect.Float64:
		n, ok := src.(json.Number)
		if !ok {
			return fmt.Errorf("expected number, got %s", jsonKind(src))
		}
		f, err := n.Float64()
		if err != nil || dst.OverflowFloat(f) {
			return fmt.Errorf("%s does not fit %s", n, dst.Type())
		}
		dst.SetFloat(f)
	default:
		return fmt.Errorf("unsupported kind %s", dst.Kind())
	}
	return nil
}

// plainTree converts json.Number leaves to float64 for untyped destinations.
func plainTree(v any) any {
	switch t := v.(type) {
	case json.Number:
		f, _ := t.Float64()
		return f
	case []any:
		for i := range t {
			t[i] = plainTree(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = plainTree(t[k])
		}
		return t
	}
	return v
}

func fieldByIndex(v reflect.Value, index []int) (reflect.Value, bool) {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return reflect.Value{}, false
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v, true
}

func fieldForWrite(v reflect.Value, index []int) reflect.Value {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v
}

func appendMarshal(buf []byte, v any) ([]byte, error) {
	raw, err := jsoncodec.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(buf, raw...), nil
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func pathErr(path string, err error) error {
	if path == "" {
		return err
	}
	return fmt.Errorf("%s: %w", path, err)
}
