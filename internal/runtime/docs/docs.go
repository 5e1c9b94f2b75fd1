// Package docs serves the AsyncAPI document of an application over HTTP,
// together with the bound handler table, Prometheus metrics and a health
// probe.
package docs

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drblury/contractflow/internal/runtime"
	"github.com/drblury/contractflow/internal/runtime/app"
	"github.com/drblury/contractflow/internal/runtime/asyncapi"
	"github.com/drblury/contractflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/contractflow/internal/runtime/logging"
)

const (
	DefaultSpecPath = "/asyncapi.json"
	DefaultYAMLPath = "/asyncapi.yaml"
	DefaultDocsPath = "/"

	DefaultScriptURL = "https://unpkg.com/@asyncapi/web-component@1.0.0-next.54/lib/asyncapi-web-component.js"
	DefaultCSSURL    = "https://unpkg.com/@asyncapi/react-component@1.0.0-next.54/styles/default.min.css"

	shutdownTimeout = 5 * time.Second
)

var page = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<script src="{{.ScriptURL}}" defer></script>
</head>
<body>
<asyncapi-component schemaUrl="{{.SpecPath}}" cssImportPath="{{.CSSURL}}"></asyncapi-component>
</body>
</html>
`))

// RouteSource lists the bound routes for /api/handlers. *runtime.Server
// satisfies it.
type RouteSource interface {
	Routes() []runtime.RouteInfo
}

type options struct {
	logger      loggingpkg.ServiceLogger
	routes      RouteSource
	gatherer    prometheus.Gatherer
	corsOrigins []string
	specPath    string
	docsPath    string
	scriptURL   string
	cssURL      string
}

// Option customises NewHandler and NewServer.
type Option func(*options)

func WithLogger(logger loggingpkg.ServiceLogger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRoutes enables /api/handlers.
func WithRoutes(src RouteSource) Option {
	return func(o *options) { o.routes = src }
}

// WithGatherer enables /metrics for the given registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(o *options) { o.gatherer = g }
}

// WithCORSOrigins allows cross-origin reads of /api/handlers and the
// document. "*" allows every origin.
func WithCORSOrigins(origins ...string) Option {
	return func(o *options) { o.corsOrigins = append(o.corsOrigins, origins...) }
}

func WithSpecPath(path string) Option {
	return func(o *options) { o.specPath = path }
}

func WithDocsPath(path string) Option {
	return func(o *options) { o.docsPath = path }
}

// WithAssets overrides the web component script and stylesheet URLs.
func WithAssets(scriptURL, cssURL string) Option {
	return func(o *options) {
		o.scriptURL = scriptURL
		o.cssURL = cssURL
	}
}

type handler struct {
	opts     options
	specJSON []byte
	specYAML []byte
	html     []byte
}

// NewHandler renders the document of application once and returns a router
// serving it.
func NewHandler(application *app.Application, opts ...Option) (http.Handler, error) {
	o := options{
		specPath:  DefaultSpecPath,
		docsPath:  DefaultDocsPath,
		scriptURL: DefaultScriptURL,
		cssURL:    DefaultCSSURL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	o.logger = loggingpkg.OrNop(o.logger)

	doc, err := asyncapi.Build(application)
	if err != nil {
		return nil, err
	}
	h := &handler{opts: o}
	if h.specJSON, err = doc.JSON(); err != nil {
		return nil, fmt.Errorf("contractflow: render asyncapi json: %w", err)
	}
	if h.specYAML, err = doc.YAML(); err != nil {
		return nil, fmt.Errorf("contractflow: render asyncapi yaml: %w", err)
	}

	var buf strings.Builder
	err = page.Execute(&buf, map[string]string{
		"Title":     fmt.Sprintf("%s - %s", application.Name(), application.Version()),
		"SpecPath":  o.specPath,
		"ScriptURL": o.scriptURL,
		"CSSURL":    o.cssURL,
	})
	if err != nil {
		return nil, fmt.Errorf("contractflow: render docs page: %w", err)
	}
	h.html = []byte(buf.String())

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)
	r.Use(h.cors)

	r.Get(o.specPath, h.serveJSON)
	r.Get(DefaultYAMLPath, h.serveYAML)
	r.Get(o.docsPath, h.servePage)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if o.routes != nil {
		r.Get("/api/handlers", h.serveRoutes)
	}
	if o.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(o.gatherer, promhttp.HandlerOpts{}))
	}
	return r, nil
}

func (h *handler) serveJSON(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(h.specJSON)
}

func (h *handler) serveYAML(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(h.specYAML)
}

func (h *handler) servePage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(h.html)
}

func (h *handler) serveRoutes(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := jsoncodec.Encode(w, h.opts.routes.Routes()); err != nil {
		h.opts.logger.Error("Failed to encode handlers", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.opts.logger.Debug("Docs request", loggingpkg.LogFields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(started).String(),
			"request_id": middleware.GetReqID(r.Context()),
		})
	})
}

func (h *handler) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := h.allowedOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *handler) allowedOrigin(requestOrigin string) string {
	for _, allowed := range h.opts.corsOrigins {
		if allowed == "*" {
			return "*"
		}
		if requestOrigin != "" && strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}

// Server runs the docs handler on its own listener.
type Server struct {
	srv    *http.Server
	logger loggingpkg.ServiceLogger
	errCh  chan error
}

// NewServer builds the handler and an http.Server bound to addr.
func NewServer(addr string, application *app.Application, opts ...Option) (*Server, error) {
	handler, err := NewHandler(application, opts...)
	if err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: loggingpkg.OrNop(o.logger),
	}, nil
}

// Start listens in the background. Listener errors are logged and reported
// by Stop.
func (s *Server) Start(context.Context) error {
	if s.errCh != nil {
		return nil
	}
	s.errCh = make(chan error, 1)
	s.logger.Info("Starting docs server", loggingpkg.LogFields{"address": s.srv.Addr})
	go func() {
		err := s.srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Docs server failed", err, loggingpkg.LogFields{"address": s.srv.Addr})
			s.errCh <- err
		}
		close(s.errCh)
	}()
	return nil
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.errCh == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-s.errCh
}
