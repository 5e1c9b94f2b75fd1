package schema

import (
	"reflect"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"google.golang.org/protobuf/proto"

	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
	"github.com/drblury/contractflow/internal/runtime/jsoncodec"
)

// documentSchema derives the JSON Schema used for documentation. Unit payloads
// have no schema.
func documentSchema(typ reflect.Type, kind Kind, inferred bool) map[string]any {
	if !inferred {
		return map[string]any{}
	}
	switch kind {
	case KindUnit:
		return nil
	case KindBytes:
		return map[string]any{"type": "string", "format": "binary"}
	case KindProto:
		doc := map[string]any{"type": "object"}
		if msg, ok := reflect.New(typ.Elem()).Interface().(proto.Message); ok {
			doc["title"] = string(msg.ProtoReflect().Descriptor().FullName())
		}
		return doc
	}
	return TypeSchema(typ)
}

// TypeSchema renders a JSON Schema for typ following the same field naming
// rules as the structural JSON adapter.
func TypeSchema(typ reflect.Type) map[string]any {
	return typeSchema(typ, map[reflect.Type]bool{})
}

func typeSchema(typ reflect.Type, visiting map[reflect.Type]bool) map[string]any {
	switch {
	case typ == timeType:
		return map[string]any{"type": "string", "format": "date-time"}
	case typ == durationType:
		return map[string]any{"type": "number", "description": "duration in seconds"}
	case isByteSlice(typ):
		return map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "integer", "minimum": 0, "maximum": 255},
		}
	case typ.Kind() != reflect.Struct && typ.Kind() != reflect.Pointer && MarshalerRule{}.Match(typ):
		return map[string]any{"type": "string"}
	}

	switch typ.Kind() {
	case reflect.Bool:
		return map[string]any{"type": "boolean"}
	case reflect.String:
		return map[string]any{"type": "string"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return map[string]any{"type": "integer"}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer", "minimum": 0}
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}
	case reflect.Pointer:
		return typeSchema(typ.Elem(), visiting)
	case reflect.Slice, reflect.Array:
		return map[string]any{"type": "array", "items": typeSchema(typ.Elem(), visiting)}
	case reflect.Map:
		out := map[string]any{"type": "object", "additionalProperties": typeSchema(typ.Elem(), visiting)}
		if pattern := keyPattern(typ.Key()); pattern != "" {
			out["propertyNames"] = map[string]any{"pattern": pattern}
		}
		return out
	case reflect.Struct:
		if visiting[typ] {
			return map[string]any{"type": "object"}
		}
		visiting[typ] = true
		defer delete(visiting, typ)

		props := make(map[string]any)
		var required []string
		for _, f := range structFields(typ) {
			props[f.name] = typeSchema(f.typ, visiting)
			if f.required {
				required = append(required, f.name)
			}
		}
		doc := map[string]any{
			"type":                 "object",
			"properties":           props,
			"additionalProperties": false,
		}
		if name := typ.Name(); name != "" {
			doc["title"] = name
		}
		if len(required) > 0 {
			sort.Strings(required)
			doc["required"] = required
		}
		return doc
	}
	return map[string]any{}
}

func compileValidator(typ reflect.Type, doc map[string]any) (*jsonschema.Schema, error) {
	raw, err := jsoncodec.Marshal(doc)
	if err != nil {
		return nil, &errspkg.SchemaInferenceError{Type: typeName(typ), Reason: err.Error()}
	}
	validator, err := jsonschema.CompileString("mem://contractflow/payload.json", string(raw))
	if err != nil {
		return nil, &errspkg.SchemaInferenceError{Type: typeName(typ), Reason: err.Error()}
	}
	return validator, nil
}

// keyPattern constrains object keys decoded into integer map keys.
func keyPattern(key reflect.Type) string {
	if reflect.PointerTo(key).Implements(textUnmarshalerType) {
		return ""
	}
	switch key.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "^-?[0-9]+$"
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return "^[0-9]+$"
	}
	return ""
}
