package schema

import (
	"reflect"
	"sync"

	"google.golang.org/protobuf/proto"

	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
)

var (
	protoMessageType = reflect.TypeFor[proto.Message]()
	unitType         = reflect.TypeFor[Empty]()

	inferCache sync.Map // reflect.Type -> inference
)

type inference struct {
	kind        Kind
	contentType string
	err         error
}

// Infer resolves the payload kind and content type of typ. The lookup order is
// raw bytes, text scalars, unit, protobuf messages, then structured JSON types.
// Results are memoised per type.
func Infer(typ reflect.Type) (Kind, string, error) {
	if typ == nil {
		return KindCustom, "", &errspkg.UnsupportedSchemaTypeError{Type: "<nil>"}
	}
	if cached, ok := inferCache.Load(typ); ok {
		res := cached.(inference)
		return res.kind, res.contentType, res.err
	}
	res := infer(typ)
	inferCache.Store(typ, res)
	return res.kind, res.contentType, res.err
}

func infer(typ reflect.Type) inference {
	switch {
	case isByteSlice(typ):
		return inference{kind: KindBytes, contentType: ContentTypeBytes}
	case isTextScalar(typ):
		return inference{kind: KindText, contentType: ContentTypeText}
	case typ == unitType:
		return inference{kind: KindUnit}
	case typ.Implements(protoMessageType) && typ.Kind() == reflect.Pointer:
		return inference{kind: KindProto, contentType: ContentTypeProtobuf}
	case isStructured(typ):
		return inference{kind: KindJSON, contentType: ContentTypeJSON}
	}
	return inference{kind: KindCustom, err: &errspkg.UnsupportedSchemaTypeError{Type: typeName(typ)}}
}

func isByteSlice(typ reflect.Type) bool {
	return typ.Kind() == reflect.Slice && typ.Elem().Kind() == reflect.Uint8
}

func isTextScalar(typ reflect.Type) bool {
	switch typ.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func isStructured(typ reflect.Type) bool {
	switch typ.Kind() {
	case reflect.Struct:
		return true
	case reflect.Pointer:
		return typ.Elem().Kind() == reflect.Struct
	case reflect.Map:
		return validMapKey(typ.Key())
	case reflect.Slice, reflect.Array:
		return true
	}
	return false
}
