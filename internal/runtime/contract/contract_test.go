package contract

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/contractflow/internal/runtime/address"
	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
	"github.com/drblury/contractflow/internal/runtime/metadata"
	"github.com/drblury/contractflow/internal/runtime/schema"
)

type deviceParams struct {
	DeviceID string `param:"device_id"`
}

type measureRequest struct {
	Value int `json:"value"`
}

type measureResponse struct {
	Success bool   `json:"success"`
	Result  string `json:"result"`
}

type reading struct {
	Temperature float64 `json:"temperature"`
	Timestamp   int     `json:"timestamp"`
}

var errValue = errors.New("value out of range")

type limitError struct{ Limit int }

func (e *limitError) Error() string { return fmt.Sprintf("limit %d exceeded", e.Limit) }

func newMeasure(t *testing.T, catch ...ExceptionMapping[measureResponse]) *Operation[deviceParams, measureRequest, measureResponse, measureResponse] {
	t.Helper()
	op, err := NewOperation(OperationSpec[deviceParams, measureRequest, measureResponse, measureResponse]{
		Name:     "measure",
		Address:  "devices.{device_id}.measure",
		Catch:    catch,
		Metadata: map[string]string{"owner": "sensors"},
		Tags:     []string{"devices"},
	})
	require.NoError(t, err)
	return op
}

func TestNewOperationDefaults(t *testing.T) {
	op := newMeasure(t)

	assert.Equal(t, "measure", op.Name())
	assert.Equal(t, KindOperation, op.Kind())
	assert.Equal(t, http.StatusOK, op.StatusCode())
	assert.Equal(t, "devices.{device_id}.measure", op.Address().String())
	assert.Equal(t, schema.ContentTypeJSON, op.PayloadSchema().ContentType())
	assert.Equal(t, schema.ContentTypeJSON, op.ReplySchema().ContentType())
	params := op.Params()
	require.Len(t, params, 1)
	assert.Equal(t, "device_id", params[0].Name)
	assert.Equal(t, "DeviceID", params[0].Field)

	roles := op.Schemas()
	require.Len(t, roles, 3)
	assert.Equal(t, RolePayload, roles[0].Role)
	assert.Equal(t, RoleReply, roles[1].Role)
	assert.Equal(t, RoleError, roles[2].Role)

	var d Descriptor = op
	assert.Equal(t, "measure", d.Name())
}

func TestContractMetadataIsCopied(t *testing.T) {
	md := map[string]string{"owner": "sensors"}
	tags := []string{"devices"}
	op := MustOperation(OperationSpec[deviceParams, measureRequest, measureResponse, schema.Empty]{
		Name:     "measure",
		Address:  "devices.{device_id}.measure",
		Metadata: md,
		Tags:     tags,
	})

	md["owner"] = "changed"
	tags[0] = "changed"
	assert.Equal(t, "sensors", op.Metadata()["owner"])
	assert.Equal(t, []string{"devices"}, op.Tags())

	read := op.Metadata()
	read["owner"] = "mutated"
	assert.Equal(t, "sensors", op.Metadata()["owner"])
}

func TestNewOperationValidation(t *testing.T) {
	_, err := NewOperation(OperationSpec[deviceParams, measureRequest, measureResponse, measureResponse]{
		Address: "devices.{device_id}.measure",
	})
	require.ErrorIs(t, err, errspkg.ErrContractNameRequired)

	_, err = NewOperation(OperationSpec[deviceParams, measureRequest, measureResponse, measureResponse]{
		Name: "measure",
	})
	require.ErrorIs(t, err, errspkg.ErrAddressRequired)

	_, err = NewOperation(OperationSpec[deviceParams, measureRequest, measureResponse, measureResponse]{
		Name:    "measure",
		Address: "devices.{device}.measure",
	})
	var compileErr *errspkg.CompileError
	require.ErrorAs(t, err, &compileErr)

	_, err = NewOperation(OperationSpec[address.NoParams, chan int, measureResponse, measureResponse]{
		Name:    "measure",
		Address: "devices.measure",
	})
	var inference *errspkg.SchemaInferenceError
	require.ErrorAs(t, err, &inference)

	_, err = NewOperation(OperationSpec[deviceParams, measureRequest, measureResponse, measureResponse]{
		Name:       "measure",
		Address:    "devices.{device_id}.measure",
		StatusCode: 42,
	})
	require.Error(t, err)
}

func TestDuplicateMappingRejected(t *testing.T) {
	_, err := NewOperation(OperationSpec[deviceParams, measureRequest, measureResponse, measureResponse]{
		Name:    "measure",
		Address: "devices.{device_id}.measure",
		Catch: []ExceptionMapping[measureResponse]{
			Catch[measureResponse](errValue, 400, "Bad request", nil),
			Catch[measureResponse](errValue, 422, "Unprocessable", nil),
		},
	})
	var dup *errspkg.DuplicateMappingError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "measure", dup.Contract)

	_, err = NewOperation(OperationSpec[deviceParams, measureRequest, measureResponse, measureResponse]{
		Name:    "measure",
		Address: "devices.{device_id}.measure",
		Catch: []ExceptionMapping[measureResponse]{
			CatchAs[*limitError, measureResponse](400, "Bad request", nil),
			CatchAs[*limitError, measureResponse](500, "Other", nil),
		},
	})
	require.ErrorAs(t, err, &dup)

	_, err = NewOperation(OperationSpec[deviceParams, measureRequest, measureResponse, measureResponse]{
		Name:    "measure",
		Address: "devices.{device_id}.measure",
		Catch:   []ExceptionMapping[measureResponse]{{}},
	})
	require.Error(t, err)
}

func TestClassifyFirstMatchWins(t *testing.T) {
	op := newMeasure(t,
		CatchAs[*limitError](429, "Too many", func(err error) measureResponse {
			return measureResponse{Result: err.Error()}
		}),
		Catch(errValue, 400, "Bad request", func(error) measureResponse {
			return measureResponse{Result: "bad"}
		}),
		CatchFunc[measureResponse]("anything", func(error) bool { return true }, 500, "Catch all", nil),
	)

	m, ok := op.Classify(fmt.Errorf("wrapped: %w", errValue))
	require.True(t, ok)
	assert.Equal(t, 400, m.Code())
	assert.Equal(t, "Bad request", m.Description())
	assert.Equal(t, measureResponse{Result: "bad"}, m.Format(errValue))

	// both the limit mapping and the catch-all match; declaration order decides
	m, ok = op.Classify(&limitError{Limit: 3})
	require.True(t, ok)
	assert.Equal(t, 429, m.Code())
	assert.Equal(t, "limit 3 exceeded", m.Format(&limitError{Limit: 3}).Result)

	m, ok = op.Classify(errors.New("other"))
	require.True(t, ok)
	assert.Equal(t, 500, m.Code())
	assert.False(t, m.HasFormatter())
	assert.Equal(t, measureResponse{}, m.Format(errors.New("other")))

	infos := op.Mappings()
	require.Len(t, infos, 3)
	assert.Equal(t, "as:*contract.limitError", infos[0].Key)
	assert.Equal(t, "func:anything", infos[2].Key)

	_, ok = newMeasure(t).Classify(errValue)
	assert.False(t, ok)
}

func TestClassifyDecodeErrors(t *testing.T) {
	op := newMeasure(t, CatchAs[*errspkg.DecodeError, measureResponse](400, "Bad request", nil))

	_, err := op.PayloadSchema().Decode([]byte(`{"value":"x"}`))
	require.Error(t, err)
	m, ok := op.Classify(err)
	require.True(t, ok)
	assert.Equal(t, 400, m.Code())
}

func TestSentinelKeysDistinguishErrors(t *testing.T) {
	a := errors.New("same")
	b := errors.New("same")
	assert.NotEqual(t, Catch[int](a, 1, "", nil).Key(), Catch[int](b, 1, "", nil).Key())
	assert.Equal(t, Catch[int](a, 1, "", nil).Key(), Catch[int](a, 2, "", nil).Key())
}

func TestRequestBuildsSubjectAndHeaders(t *testing.T) {
	op := newMeasure(t)

	req, err := op.Request(deviceParams{DeviceID: "dev-1"}, measureRequest{Value: 42},
		WithHeaders(metadata.Metadata{"X-Trace": "abc"}))
	require.NoError(t, err)
	assert.Equal(t, "devices.dev-1.measure", req.Subject)
	assert.Equal(t, "application/json", req.Headers[metadata.HeaderContentType])
	assert.Equal(t, "abc", req.Headers["X-Trace"])

	data, err := req.Encode()
	require.NoError(t, err)
	assert.Equal(t, `{"value":42}`, string(data))

	_, err = op.Request(deviceParams{DeviceID: "a.b"}, measureRequest{})
	var invalid *errspkg.InvalidParameterValueError
	require.ErrorAs(t, err, &invalid)

	_, err = op.RequestEmpty(deviceParams{DeviceID: "dev-1"})
	require.ErrorIs(t, err, errspkg.ErrMissingPayload)
}

func TestRequestRejectsNilPayload(t *testing.T) {
	op := MustOperation(OperationSpec[deviceParams, *measureRequest, measureResponse, schema.Empty]{
		Name:    "measure",
		Address: "devices.{device_id}.measure",
	})
	_, err := op.Request(deviceParams{DeviceID: "dev-1"}, nil)
	require.ErrorIs(t, err, errspkg.ErrMissingPayload)
}

func TestUnitPayloadRequest(t *testing.T) {
	op := MustOperation(OperationSpec[address.NoParams, schema.Empty, measureResponse, schema.Empty]{
		Name:    "status",
		Address: "system.status",
	})

	req, err := op.RequestEmpty(address.NoParams{})
	require.NoError(t, err)
	assert.Equal(t, "system.status", req.Subject)
	_, hasContentType := req.Headers[metadata.HeaderContentType]
	assert.False(t, hasContentType)

	data, err := req.Encode()
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestEventPublish(t *testing.T) {
	ev, err := NewEvent(EventSpec[deviceParams, reading]{
		Name:    "sensor-reading",
		Address: "sensors.{device_id}.data",
	})
	require.NoError(t, err)
	assert.Equal(t, KindEvent, ev.Kind())
	assert.Equal(t, 0, ev.StatusCode())
	assert.Nil(t, ev.Mappings())
	assert.Len(t, ev.Schemas(), 1)

	pub, err := ev.Publish(deviceParams{DeviceID: "s1"}, reading{Temperature: 23.5, Timestamp: 123456})
	require.NoError(t, err)
	assert.Equal(t, "sensors.s1.data", pub.Subject)
	data, err := pub.Encode()
	require.NoError(t, err)
	assert.Equal(t, `{"temperature":23.5,"timestamp":123456}`, string(data))

	_, err = ev.PublishEmpty(deviceParams{DeviceID: "s1"})
	require.ErrorIs(t, err, errspkg.ErrMissingPayload)

	_, err = NewEvent(EventSpec[deviceParams, reading]{Address: "sensors.{device_id}.data"})
	require.ErrorIs(t, err, errspkg.ErrContractNameRequired)
}

func TestImplementationBinding(t *testing.T) {
	first := newMeasure(t)
	second := newMeasure(t)

	var impl Implementation
	assert.Nil(t, impl.Contract())
	require.NoError(t, impl.BindContract(first))
	require.NoError(t, impl.BindContract(first))
	assert.Same(t, first, impl.Contract())

	err := impl.BindContract(second)
	var dup *errspkg.DuplicateContractError
	require.ErrorAs(t, err, &dup)

	require.ErrorIs(t, impl.BindContract(nil), errspkg.ErrComponentRequired)
}
