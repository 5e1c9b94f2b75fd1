package docs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/drblury/contractflow/internal/runtime"
	"github.com/drblury/contractflow/internal/runtime/app"
	"github.com/drblury/contractflow/internal/runtime/contract"
	"github.com/drblury/contractflow/internal/runtime/jsoncodec"
)

type deviceParams struct {
	DeviceID string `param:"device_id"`
}

type reading struct {
	Temperature float64 `json:"temperature"`
}

type staticRoutes []runtime.RouteInfo

func (s staticRoutes) Routes() []runtime.RouteInfo { return s }

func testApp() *app.Application {
	ev := contract.MustEvent(contract.EventSpec[deviceParams, reading]{
		Name:    "sensor-reading",
		Address: "sensors.{device_id}",
	})
	return app.MustNew(app.Info{Name: "sensors", Version: "2.0.0"}, ev)
}

func get(t *testing.T, h http.Handler, path string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_ServesDocument(t *testing.T) {
	h, err := NewHandler(testApp())
	require.NoError(t, err)

	rec := get(t, h, "/asyncapi.json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var doc map[string]any
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "2.6.0", doc["asyncapi"])

	rec = get(t, h, "/asyncapi.yaml")
	require.Equal(t, http.StatusOK, rec.Code)
	var fromYAML map[string]any
	require.NoError(t, yaml.Unmarshal(rec.Body.Bytes(), &fromYAML))
	assert.Equal(t, "sensors", fromYAML["info"].(map[string]any)["title"])
}

func TestHandler_ServesPage(t *testing.T) {
	h, err := NewHandler(testApp(), WithSpecPath("/spec.json"), WithAssets("/static/wc.js", "/static/wc.css"))
	require.NoError(t, err)

	rec := get(t, h, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<title>sensors - 2.0.0</title>")
	assert.Contains(t, body, `schemaUrl="/spec.json"`)
	assert.Contains(t, body, `cssImportPath="/static/wc.css"`)
	assert.Contains(t, body, `src="/static/wc.js"`)

	assert.Equal(t, http.StatusOK, get(t, h, "/spec.json").Code)
}

func TestHandler_OptionalRoutes(t *testing.T) {
	h, err := NewHandler(testApp())
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/handlers").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/metrics").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code)

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "docs_test_total"})
	reg.MustRegister(counter)
	counter.Inc()

	routes := staticRoutes{{Contract: "sensor-reading", Kind: "event", Handler: "h", Address: "sensors.{device_id}"}}
	h, err = NewHandler(testApp(), WithRoutes(routes), WithGatherer(reg))
	require.NoError(t, err)

	rec := get(t, h, "/api/handlers")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []map[string]any
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "sensor-reading", listed[0]["contract"])

	rec = get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "docs_test_total 1")
}

func TestHandler_CORS(t *testing.T) {
	h, err := NewHandler(testApp(), WithCORSOrigins("https://ui.example.com"))
	require.NoError(t, err)

	rec := get(t, h, "/asyncapi.json", "Origin", "https://UI.example.com")
	assert.Equal(t, "https://UI.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = get(t, h, "/asyncapi.json", "Origin", "https://evil.example.com")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodOptions, "/asyncapi.json", nil)
	pre := httptest.NewRecorder()
	h.ServeHTTP(pre, req)
	assert.Equal(t, http.StatusNoContent, pre.Code)
}

func TestHandler_RequiresApplication(t *testing.T) {
	_, err := NewHandler(nil)
	assert.Error(t, err)
}

func TestServer_StartStop(t *testing.T) {
	srv, err := NewServer("127.0.0.1:0", testApp())
	require.NoError(t, err)

	require.NoError(t, srv.Start(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, srv.Stop(ctx))
	assert.NoError(t, (&Server{}).Stop(ctx))
}
