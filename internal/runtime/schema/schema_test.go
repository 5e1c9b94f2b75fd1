package schema

import (
	"errors"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"

	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
)

type reading struct {
	Temperature float64 `json:"temperature"`
	Timestamp   int     `json:"timestamp"`
}

type level string

type priority int

type envelope struct {
	At       time.Time     `json:"at"`
	Raw      []byte        `json:"raw"`
	Level    level         `json:"level"`
	Priority priority      `json:"priority"`
	Timeout  time.Duration `json:"timeout"`
	Note     string        `json:"note,omitempty"`
	Next     *reading      `json:"next"`
}

type celsius float64

func TestInferenceTable(t *testing.T) {
	cases := []struct {
		typ         reflect.Type
		kind        Kind
		contentType string
	}{
		{reflect.TypeFor[[]byte](), KindBytes, ContentTypeBytes},
		{reflect.TypeFor[string](), KindText, ContentTypeText},
		{reflect.TypeFor[int64](), KindText, ContentTypeText},
		{reflect.TypeFor[bool](), KindText, ContentTypeText},
		{reflect.TypeFor[celsius](), KindText, ContentTypeText},
		{reflect.TypeFor[Empty](), KindUnit, ""},
		{reflect.TypeFor[*wrapperspb.StringValue](), KindProto, ContentTypeProtobuf},
		{reflect.TypeFor[reading](), KindJSON, ContentTypeJSON},
		{reflect.TypeFor[*reading](), KindJSON, ContentTypeJSON},
		{reflect.TypeFor[map[string]int](), KindJSON, ContentTypeJSON},
		{reflect.TypeFor[[]reading](), KindJSON, ContentTypeJSON},
	}

	for _, tc := range cases {
		t.Run(tc.typ.String(), func(t *testing.T) {
			kind, contentType, err := Infer(tc.typ)
			require.NoError(t, err)
			assert.Equal(t, tc.kind, kind)
			assert.Equal(t, tc.contentType, contentType)

			again, againContentType, err := Infer(tc.typ)
			require.NoError(t, err)
			assert.Equal(t, kind, again)
			assert.Equal(t, contentType, againContentType)
		})
	}
}

func TestInferenceRejectsUnsupportedTypes(t *testing.T) {
	for _, typ := range []reflect.Type{
		reflect.TypeFor[chan int](),
		reflect.TypeFor[func()](),
		reflect.TypeFor[map[[2]int]string](),
		reflect.TypeFor[any](),
		reflect.TypeFor[complex128](),
	} {
		_, _, err := Infer(typ)
		var unsupported *errspkg.UnsupportedSchemaTypeError
		require.ErrorAs(t, err, &unsupported, typ.String())
		var inference *errspkg.SchemaInferenceError
		require.ErrorAs(t, err, &inference, typ.String())
	}

	_, err := New[chan int]()
	var unsupported *errspkg.UnsupportedSchemaTypeError
	require.ErrorAs(t, err, &unsupported)
}

func TestUnitSchema(t *testing.T) {
	s := Must[Empty]()

	assert.True(t, s.IsUnit())
	assert.Equal(t, "", s.ContentType())
	assert.Nil(t, s.JSONSchema())

	data, err := s.Encode(Empty{})
	require.NoError(t, err)
	assert.Len(t, data, 0)

	_, err = s.Decode(nil)
	require.NoError(t, err)
	_, err = s.Decode([]byte{})
	require.NoError(t, err)

	_, err = s.Decode([]byte("x"))
	var decodeErr *errspkg.DecodeError
	require.ErrorAs(t, err, &decodeErr)

	_, err = New[Empty](WithContentType("text/plain"))
	require.Error(t, err)

	_, err = New[Empty](WithAdapter[Empty](AdapterFuncs[Empty]{}))
	var inference *errspkg.SchemaInferenceError
	require.ErrorAs(t, err, &inference)
}

func TestTextSchema(t *testing.T) {
	ints := Must[int]()
	data, err := ints.Encode(42)
	require.NoError(t, err)
	assert.Equal(t, "42", string(data))

	n, err := ints.Decode([]byte("-7"))
	require.NoError(t, err)
	assert.Equal(t, -7, n)

	_, err = ints.Decode([]byte("seven"))
	var decodeErr *errspkg.DecodeError
	require.ErrorAs(t, err, &decodeErr)

	temps := Must[celsius]()
	data, err = temps.Encode(21.5)
	require.NoError(t, err)
	assert.Equal(t, "21.5", string(data))
	c, err := temps.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, celsius(21.5), c)

	flags := Must[bool]()
	b, err := flags.Decode([]byte("true"))
	require.NoError(t, err)
	assert.True(t, b)
}

func TestBytesSchema(t *testing.T) {
	s := Must[[]byte]()
	data, err := s.Encode([]byte{0, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2}, data)

	out, err := s.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2}, out)
	assert.Equal(t, map[string]any{"type": "string", "format": "binary"}, s.JSONSchema())
}

func TestProtoSchema(t *testing.T) {
	s := Must[*wrapperspb.StringValue]()
	data, err := s.Encode(wrapperspb.String("hello"))
	require.NoError(t, err)

	out, err := s.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "hello", out.GetValue())
	assert.Equal(t, "google.protobuf.StringValue", s.JSONSchema()["title"])

	_, err = s.Decode([]byte{0xff, 0xff})
	var decodeErr *errspkg.DecodeError
	require.ErrorAs(t, err, &decodeErr)
}

func TestJSONEncodeMatchesWireFormat(t *testing.T) {
	s := Must[reading]()
	data, err := s.Encode(reading{Temperature: 23.5, Timestamp: 123456})
	require.NoError(t, err)
	assert.Equal(t, `{"temperature":23.5,"timestamp":123456}`, string(data))

	out, err := s.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, reading{Temperature: 23.5, Timestamp: 123456}, out)
}

func TestJSONEncodeRules(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	s := Must[envelope]()
	in := envelope{
		At:       at,
		Raw:      []byte{1, 2, 255},
		Level:    "warn",
		Priority: 3,
		Timeout:  1500 * time.Millisecond,
	}

	data, err := s.Encode(in)
	require.NoError(t, err)
	assert.Equal(t,
		`{"at":"2024-03-01T12:30:00Z","raw":[1,2,255],"level":"warn","priority":3,"timeout":1.5,"next":null}`,
		string(data))

	out, err := s.Decode(data)
	require.NoError(t, err)
	assert.True(t, out.At.Equal(at))
	assert.Equal(t, in.Raw, out.Raw)
	assert.Equal(t, in.Level, out.Level)
	assert.Equal(t, in.Priority, out.Priority)
	assert.Equal(t, in.Timeout, out.Timeout)
	assert.Nil(t, out.Next)
}

func TestJSONDecodeIsStrict(t *testing.T) {
	s := Must[reading]()

	cases := map[string]string{
		"unknown field": `{"temperature":1,"timestamp":2,"extra":true}`,
		"missing field": `{"temperature":1}`,
		"wrong type":    `{"temperature":"hot","timestamp":2}`,
		"not object":    `[1,2]`,
		"float for int": `{"temperature":1,"timestamp":2.5}`,
		"null scalar":   `{"temperature":null,"timestamp":2}`,
		"invalid json":  `{"temperature":`,
		"empty":         ``,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.Decode([]byte(payload))
			var decodeErr *errspkg.DecodeError
			require.ErrorAs(t, err, &decodeErr)
			assert.Equal(t, "schema.reading", decodeErr.Type)
		})
	}
}

func TestJSONDecodeLenient(t *testing.T) {
	s := Must[reading](Lenient())

	out, err := s.Decode([]byte(`{"temperature":1.25,"extra":true}`))
	require.NoError(t, err)
	assert.Equal(t, reading{Temperature: 1.25}, out)
}

func TestJSONDecodeOverflow(t *testing.T) {
	type small struct {
		N int8 `json:"n"`
	}
	s := Must[small]()
	_, err := s.Decode([]byte(`{"n":300}`))
	var decodeErr *errspkg.DecodeError
	require.ErrorAs(t, err, &decodeErr)
}

func TestJSONCollections(t *testing.T) {
	s := Must[map[string][]reading]()
	in := map[string][]reading{
		"b": {{Temperature: 2, Timestamp: 2}},
		"a": {{Temperature: 1, Timestamp: 1}},
	}
	data, err := s.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, `{"a":[{"temperature":1,"timestamp":1}],"b":[{"temperature":2,"timestamp":2}]}`, string(data))

	out, err := s.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

type shelf struct {
	Counts  map[int]string `json:"counts"`
	Slots   map[uint8]bool `json:"slots,omitempty"`
	ByLabel map[zoneID]int `json:"by_label,omitempty"`
}

type zoneID struct{ n int }

func (z zoneID) MarshalText() ([]byte, error) { return []byte("zone-" + strconv.Itoa(z.n)), nil }

func (z *zoneID) UnmarshalText(text []byte) error {
	n, err := strconv.Atoi(strings.TrimPrefix(string(text), "zone-"))
	if err != nil {
		return err
	}
	z.n = n
	return nil
}

func TestJSONNonStringMapKeys(t *testing.T) {
	s := Must[shelf]()
	in := shelf{
		Counts:  map[int]string{2: "b", -1: "a", 10: "c"},
		ByLabel: map[zoneID]int{{n: 3}: 30},
	}

	data, err := s.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, `{"counts":{"-1":"a","10":"c","2":"b"},"by_label":{"zone-3":30}}`, string(data))

	out, err := s.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	for _, payload := range []string{
		`{"counts":{"one":"a"}}`,
		`{"counts":{},"slots":{"300":true}}`,
		`{"counts":{},"by_label":{"zone-x":1}}`,
	} {
		_, err := s.Decode([]byte(payload))
		var decodeErr *errspkg.DecodeError
		assert.ErrorAs(t, err, &decodeErr, payload)
	}
}

type grid struct {
	Cells map[[2]int]string `json:"cells"`
}

func TestJSONRejectsUnkeyableNestedMap(t *testing.T) {
	_, err := New[grid]()
	var inference *errspkg.SchemaInferenceError
	require.ErrorAs(t, err, &inference)
	assert.Contains(t, inference.Reason, "cells")

	_, err = New[[]map[float64]string]()
	require.ErrorAs(t, err, &inference)
}

func TestJSONRejectsNaN(t *testing.T) {
	s := Must[reading]()
	_, err := s.Encode(reading{Temperature: nanValue()})
	var encodeErr *errspkg.EncodeError
	require.ErrorAs(t, err, &encodeErr)
}

func TestExplicitAdapter(t *testing.T) {
	adapter := AdapterFuncs[int]{
		EncodeFunc: func(v int) ([]byte, error) { return []byte("n=" + strconv.Itoa(v)), nil },
		DecodeFunc: func(data []byte) (int, error) {
			if len(data) < 2 {
				return 0, errors.New("short")
			}
			return strconv.Atoi(string(data[2:]))
		},
	}

	s, err := New[int](WithAdapter[int](adapter), WithContentType("application/x-counter"))
	require.NoError(t, err)
	assert.Equal(t, KindCustom, s.Kind())
	assert.Equal(t, "application/x-counter", s.ContentType())

	data, err := s.Encode(5)
	require.NoError(t, err)
	assert.Equal(t, "n=5", string(data))

	_, err = s.Decode([]byte("x"))
	var decodeErr *errspkg.DecodeError
	require.ErrorAs(t, err, &decodeErr)

	_, err = New[chan int](WithAdapter[chan int](AdapterFuncs[chan int]{}))
	var unsupported *errspkg.UnsupportedSchemaTypeError
	require.ErrorAs(t, err, &unsupported)

	_, err = New[chan int](WithAdapter[chan int](AdapterFuncs[chan int]{}), WithContentType("application/x-chan"))
	require.NoError(t, err)

	_, err = New[string](WithAdapter[int](adapter))
	var inference *errspkg.SchemaInferenceError
	require.ErrorAs(t, err, &inference)
}

func TestJSONSchemaGeneration(t *testing.T) {
	doc := Must[envelope]().JSONSchema()

	assert.Equal(t, "object", doc["type"])
	assert.Equal(t, "envelope", doc["title"])
	assert.Equal(t, []string{"at", "level", "priority", "raw", "timeout"}, doc["required"])
	props := doc["properties"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "string", "format": "date-time"}, props["at"])
	assert.Equal(t, "array", props["raw"].(map[string]any)["type"])
	assert.Equal(t, map[string]any{"type": "string"}, props["level"])
	assert.Equal(t, "object", props["next"].(map[string]any)["type"])
}

func TestValidationRejectsInvalidPayload(t *testing.T) {
	type bounded struct {
		Count uint8 `json:"count"`
	}
	s, err := New[bounded](WithValidation())
	require.NoError(t, err)

	out, err := s.Decode([]byte(`{"count":3}`))
	require.NoError(t, err)
	assert.Equal(t, uint8(3), out.Count)

	_, err = s.Decode([]byte(`{"count":-1}`))
	var decodeErr *errspkg.DecodeError
	require.ErrorAs(t, err, &decodeErr)

	_, err = s.Decode([]byte(`{"count":1,"other":2}`))
	require.ErrorAs(t, err, &decodeErr)
}

func nanValue() float64 {
	zero := 0.0
	return zero / zero
}
