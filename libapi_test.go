package contractflow

import (
	"context"
	"errors"
	"testing"
	"time"
)

type deviceParams struct {
	DeviceID string `param:"device_id"`
}

type measureRequest struct {
	Value int `json:"value"`
}

type measureResponse struct {
	Result int `json:"result"`
}

var errNegative = errors.New("negative")

type recordingTransport struct {
	subjects []string
}

func (r *recordingTransport) SendRequest(_ context.Context, subject string, _ []byte, _ Metadata, _ time.Duration) (*RawReply, error) {
	r.subjects = append(r.subjects, subject)
	return &RawReply{Data: []byte(`{"result":4}`), Headers: Metadata{}}, nil
}

func (r *recordingTransport) SendEvent(_ context.Context, subject string, _ []byte, _ Metadata) error {
	r.subjects = append(r.subjects, subject)
	return nil
}

func TestContractExports(t *testing.T) {
	op, err := NewOperation(OperationSpec[deviceParams, measureRequest, measureResponse, Empty]{
		Name:    "measure",
		Address: "devices.{device_id}.measure",
		Catch: []ExceptionMapping[Empty]{
			Catch(errNegative, 400, "Negative value", func(error) Empty { return Empty{} }),
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.Kind() != KindOperation {
		t.Fatalf("expected operation kind, got %v", op.Kind())
	}

	application, err := NewApplication(Info{Name: "devices", Version: "1.0.0"}, op)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !application.Has(op) {
		t.Fatal("expected application to hold the operation")
	}

	tr := &recordingTransport{}
	c, err := NewClient(tr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req, err := op.Request(deviceParams{DeviceID: "d1"}, measureRequest{Value: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reply, err := Send(context.Background(), c, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := reply.Data()
	if err != nil || data.Result != 4 {
		t.Fatalf("expected result 4, got %v (%v)", data, err)
	}
	if len(tr.subjects) != 1 || tr.subjects[0] != "devices.d1.measure" {
		t.Fatalf("unexpected subjects %v", tr.subjects)
	}
}

func TestBindingExportsPropagateErrors(t *testing.T) {
	ev := MustEvent(EventSpec[NoParams, Empty]{Name: "tick", Address: "clock.tick"})
	if _, err := ConsumeEvent(ev, nil); !errors.Is(err, ErrHandlerRequired) {
		t.Fatalf("expected handler required error, got %v", err)
	}
	if _, err := NewServer(nil); !errors.Is(err, ErrAdapterRequired) {
		t.Fatalf("expected adapter required error, got %v", err)
	}
}

func TestAddressExports(t *testing.T) {
	tmpl, err := CompileTemplate("sensors.{location}.{device_id}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tmpl.Pattern() != "sensors.*.*" {
		t.Fatalf("unexpected pattern %q", tmpl.Pattern())
	}
	if !SubjectMatches("sensors.*.*", "sensors.kitchen.thermometer") {
		t.Fatal("expected subject to match")
	}
}

func TestLoggerExports(t *testing.T) {
	logger := NewEntryServiceLogger(&stubEntry{})
	logger.Info("boot", LogFields{"component": "test"})
}

func TestEncodingExportAliases(t *testing.T) {
	payload := map[string]string{"hello": "world"}
	if _, err := Marshal(payload); err != nil {
		t.Fatalf("marshal alias failed: %v", err)
	}
	if _, err := MarshalIndent(payload, "", "  "); err != nil {
		t.Fatalf("marshal indent alias failed: %v", err)
	}
	if err := Unmarshal([]byte(`{"hello":"world"}`), &payload); err != nil {
		t.Fatalf("unmarshal alias failed: %v", err)
	}
}

func TestMetadataExport(t *testing.T) {
	md := NewMetadata(HeaderRequestID, "value")
	if md[HeaderRequestID] != "value" {
		t.Fatalf("expected metadata to contain key, got %#v", md)
	}
}

func TestErrorCategoryConstants(t *testing.T) {
	if ErrorCategoryNone != "none" {
		t.Fatalf("expected ErrorCategoryNone to be 'none', got %q", ErrorCategoryNone)
	}
	if ErrorCategoryDecode != "decode" {
		t.Fatalf("expected ErrorCategoryDecode to be 'decode', got %q", ErrorCategoryDecode)
	}
}

type stubEntry struct {
	fields LogFields
	err    error
}

func (s *stubEntry) Error(args ...any) {}
func (s *stubEntry) Info(args ...any)  {}
func (s *stubEntry) Debug(args ...any) {}
func (s *stubEntry) Trace(args ...any) {}

func (s *stubEntry) WithError(err error) *stubEntry {
	clone := *s
	clone.err = err
	return &clone
}

func (s *stubEntry) WithField(key string, value any) *stubEntry {
	clone := *s
	if clone.fields == nil {
		clone.fields = make(LogFields)
	}
	clone.fields[key] = value
	return &clone
}
