package address

import (
	"encoding"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
)

// NoParams is the parameter type of templates without parameters.
type NoParams struct{}

type codecKind uint8

const (
	codecString codecKind = iota
	codecInt
	codecUint
	codecBool
	codecText
)

var (
	textMarshalerType   = reflect.TypeFor[encoding.TextMarshaler]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
)

type fieldCodec struct {
	param string
	field string
	index []int
	typ   reflect.Type
	kind  codecKind
}

func (f fieldCodec) format(v reflect.Value) (string, error) {
	switch f.kind {
	case codecString:
		return v.String(), nil
	case codecInt:
		return strconv.FormatInt(v.Int(), 10), nil
	case codecUint:
		return strconv.FormatUint(v.Uint(), 10), nil
	case codecBool:
		return strconv.FormatBool(v.Bool()), nil
	}

	ptr := reflect.New(f.typ)
	ptr.Elem().Set(v)
	text, err := ptr.Interface().(encoding.TextMarshaler).MarshalText()
	if err != nil {
		return "", err
	}
	return string(text), nil
}

func (f fieldCodec) assign(dst reflect.Value, raw string) error {
	switch f.kind {
	case codecString:
		dst.SetString(raw)
	case codecInt:
		n, err := strconv.ParseInt(raw, 10, f.typ.Bits())
		if err != nil {
			return err
		}
		dst.SetInt(n)
	case codecUint:
		n, err := strconv.ParseUint(raw, 10, f.typ.Bits())
		if err != nil {
			return err
		}
		dst.SetUint(n)
	case codecBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		dst.SetBool(b)
	case codecText:
		return dst.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(raw))
	}
	return nil
}

// Address binds a compiled Template to a parameter struct P. Struct fields map to
// template parameters through the `param` tag, then the `json` tag name, then the
// field name itself.
type Address[P any] struct {
	tmpl   *Template
	fields []fieldCodec
}

// New compiles raw and checks that its parameters map 1:1 onto the fields of P.
func New[P any](raw string) (*Address[P], error) {
	tmpl, err := Compile(raw)
	if err != nil {
		return nil, err
	}
	fields, err := bindFields(tmpl, reflect.TypeFor[P]())
	if err != nil {
		return nil, err
	}
	return &Address[P]{tmpl: tmpl, fields: fields}, nil
}

// Must is like New but panics on error.
func Must[P any](raw string) *Address[P] {
	addr, err := New[P](raw)
	if err != nil {
		panic(err)
	}
	return addr
}

func bindFields(tmpl *Template, typ reflect.Type) ([]fieldCodec, error) {
	if typ.Kind() != reflect.Struct {
		return nil, compileErr(tmpl.raw, fmt.Sprintf("parameter type %s must be a struct", typ))
	}

	declared := make(map[string]bool, len(tmpl.params))
	for _, p := range tmpl.params {
		declared[p] = false
	}

	var fields []fieldCodec
	for i := 0; i < typ.NumField(); i++ {
		sf := typ.Field(i)
		if !sf.IsExported() || sf.Anonymous {
			continue
		}
		name := paramName(sf)
		if name == "" {
			continue
		}
		bound, ok := declared[name]
		if !ok {
			return nil, compileErr(tmpl.raw, fmt.Sprintf("field %s.%s has no matching parameter {%s}", typ.Name(), sf.Name, name))
		}
		if bound {
			return nil, compileErr(tmpl.raw, fmt.Sprintf("parameter {%s} is bound to more than one field of %s", name, typ.Name()))
		}
		kind, err := codecFor(sf.Type)
		if err != nil {
			return nil, compileErr(tmpl.raw, fmt.Sprintf("field %s.%s: %v", typ.Name(), sf.Name, err))
		}
		declared[name] = true
		fields = append(fields, fieldCodec{
			param: name,
			field: sf.Name,
			index: sf.Index,
			typ:   sf.Type,
			kind:  kind,
		})
	}

	for _, p := range tmpl.params {
		if !declared[p] {
			return nil, compileErr(tmpl.raw, fmt.Sprintf("parameter {%s} has no field in %s", p, typ))
		}
	}
	return fields, nil
}

func paramName(sf reflect.StructField) string {
	if tag, ok := sf.Tag.Lookup("param"); ok {
		if tag == "-" {
			return ""
		}
		return tag
	}
	if tag, ok := sf.Tag.Lookup("json"); ok {
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return sf.Name
}

func codecFor(t reflect.Type) (codecKind, error) {
	ptr := reflect.PointerTo(t)
	if ptr.Implements(textMarshalerType) && ptr.Implements(textUnmarshalerType) {
		return codecText, nil
	}
	switch t.Kind() {
	case reflect.String:
		return codecString, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return codecInt, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return codecUint, nil
	case reflect.Bool:
		return codecBool, nil
	}
	return 0, fmt.Errorf("unsupported parameter type %s", t)
}

// Template returns the compiled template.
func (a *Address[P]) Template() *Template { return a.tmpl }

// String returns the raw template.
func (a *Address[P]) String() string { return a.tmpl.raw }

// Pattern returns the subscription pattern of the template.
func (a *Address[P]) Pattern() string { return a.tmpl.Pattern() }

// Values converts params into the string form used by Template.Render.
func (a *Address[P]) Values(params P) (map[string]string, error) {
	v := reflect.ValueOf(params)
	values := make(map[string]string, len(a.fields))
	for _, f := range a.fields {
		s, err := f.format(v.FieldByIndex(f.index))
		if err != nil {
			return nil, &errspkg.InvalidParameterValueError{Template: a.tmpl.raw, Param: f.param, Value: err.Error()}
		}
		values[f.param] = s
	}
	return values, nil
}

// Render produces the concrete subject for params.
func (a *Address[P]) Render(params P) (string, error) {
	if len(a.fields) == 0 {
		return a.tmpl.raw, nil
	}
	values, err := a.Values(params)
	if err != nil {
		return "", err
	}
	return a.tmpl.Render(values)
}

// Parse extracts typed parameters from a concrete subject.
func (a *Address[P]) Parse(subject string) (P, error) {
	var params P
	values, err := a.tmpl.Parse(subject)
	if err != nil {
		return params, err
	}
	v := reflect.ValueOf(&params).Elem()
	for _, f := range a.fields {
		raw := values[f.param]
		if err := f.assign(v.FieldByIndex(f.index), raw); err != nil {
			return params, &errspkg.InvalidParameterValueError{Template: a.tmpl.raw, Param: f.param, Value: raw}
		}
	}
	return params, nil
}

// ParamInfo describes one template parameter and the field bound to it.
type ParamInfo struct {
	Name  string
	Field string
	Type  reflect.Type
}

// Describe lists the template parameters in declaration order.
func (a *Address[P]) Describe() []ParamInfo {
	byName := make(map[string]fieldCodec, len(a.fields))
	for _, f := range a.fields {
		byName[f.param] = f
	}
	out := make([]ParamInfo, 0, len(a.tmpl.params))
	for _, p := range a.tmpl.params {
		f := byName[p]
		out = append(out, ParamInfo{Name: p, Field: f.field, Type: f.typ})
	}
	return out
}
