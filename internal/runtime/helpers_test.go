package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/drblury/contractflow/internal/runtime/app"
	"github.com/drblury/contractflow/internal/runtime/contract"
	loggingpkg "github.com/drblury/contractflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/contractflow/internal/runtime/metadata"
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
}

var errValue = errors.New("value error")

const (
	timeoutShort = time.Second
	tick         = 5 * time.Millisecond
)

type measureOp = contract.Operation[deviceParams, measureRequest, measureResponse, measureResponse]

type fixture struct {
	measure *measureOp
	other   *measureOp
	sensor  *contract.Event[deviceParams, reading]
	app     *app.Application
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	measure := contract.MustOperation(contract.OperationSpec[deviceParams, measureRequest, measureResponse, measureResponse]{
		Name:    "measure",
		Address: "devices.{device_id}.measure",
		Catch: []contract.ExceptionMapping[measureResponse]{
			contract.Catch(errValue, 400, "Bad request", func(err error) measureResponse {
				return measureResponse{Result: err.Error()}
			}),
		},
	})
	other := contract.MustOperation(contract.OperationSpec[deviceParams, measureRequest, measureResponse, measureResponse]{
		Name:    "calibrate",
		Address: "devices.{device_id}.calibrate",
	})
	sensor := contract.MustEvent(contract.EventSpec[deviceParams, reading]{
		Name:    "sensor-reading",
		Address: "sensors.{device_id}.data",
	})
	return fixture{
		measure: measure,
		other:   other,
		sensor:  sensor,
		app:     app.MustNew(app.Info{Name: "devices", Version: "1.0.0"}, measure, other, sensor),
	}
}

type recordedLog struct {
	level  string
	msg    string
	fields loggingpkg.LogFields
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []recordedLog
}

func (l *recordingLogger) record(level, msg string, fields loggingpkg.LogFields) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, recordedLog{level: level, msg: msg, fields: fields})
}

func (l *recordingLogger) With(loggingpkg.LogFields) loggingpkg.ServiceLogger { return l }
func (l *recordingLogger) Debug(msg string, fields loggingpkg.LogFields)     { l.record("debug", msg, fields) }
func (l *recordingLogger) Info(msg string, fields loggingpkg.LogFields)      { l.record("info", msg, fields) }
func (l *recordingLogger) Trace(msg string, fields loggingpkg.LogFields)     { l.record("trace", msg, fields) }
func (l *recordingLogger) Error(msg string, _ error, fields loggingpkg.LogFields) {
	l.record("error", msg, fields)
}

func (l *recordingLogger) messages(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.entries {
		if e.level == level {
			out = append(out, e.msg)
		}
	}
	return out
}

func (l *recordingLogger) lastFields() loggingpkg.LogFields {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return nil
	}
	return l.entries[len(l.entries)-1].fields
}

type fakeRequest struct {
	subject string
	data    []byte
	headers metadatapkg.Metadata

	mu       sync.Mutex
	reply    []byte
	replyHdr metadatapkg.Metadata
	errCode  int
}

func (f *fakeRequest) Subject() string               { return f.subject }
func (f *fakeRequest) Data() []byte                  { return f.data }
func (f *fakeRequest) Headers() metadatapkg.Metadata { return f.headers }

func (f *fakeRequest) Respond(_ context.Context, data []byte, headers metadatapkg.Metadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reply = data
	f.replyHdr = headers
	return nil
}

func (f *fakeRequest) RespondError(_ context.Context, code int, _ string, data []byte, headers metadatapkg.Metadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errCode = code
	f.reply = data
	f.replyHdr = headers
	return nil
}

type fakeMessage struct {
	subject string
	data    []byte
	headers metadatapkg.Metadata

	mu    sync.Mutex
	acked bool
	naked bool
}

func (f *fakeMessage) Subject() string               { return f.subject }
func (f *fakeMessage) Data() []byte                  { return f.data }
func (f *fakeMessage) Headers() metadatapkg.Metadata { return f.headers }

func (f *fakeMessage) Ack(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = true
	return nil
}

func (f *fakeMessage) Nak(context.Context, time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.naked = true
	return nil
}

func (f *fakeMessage) Term(context.Context) error { return nil }

type fakeAdapter struct {
	mu       sync.Mutex
	served   *DispatchTable
	serveErr error
	stops    int
	stopErr  error
}

func (a *fakeAdapter) Serve(_ context.Context, table *DispatchTable) (Instance, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.serveErr != nil {
		return nil, a.serveErr
	}
	a.served = table
	return InstanceFunc(func(context.Context) error {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.stops++
		return a.stopErr
	}), nil
}

func (a *fakeAdapter) stopCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stops
}
