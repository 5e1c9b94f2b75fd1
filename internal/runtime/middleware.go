package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/contractflow/internal/runtime/contract"
	idspkg "github.com/drblury/contractflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/contractflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/contractflow/internal/runtime/metadata"
)

const tracerName = "github.com/drblury/contractflow"

// MiddlewareBuilder constructs a middleware for the server it is registered on.
// A nil Middleware with a nil error skips the registration.
type MiddlewareBuilder func(*Server) (Middleware, error)

// MiddlewareRegistration names a middleware for the server's dispatch chain.
type MiddlewareRegistration struct {
	Name       string
	Middleware Middleware
	Builder    MiddlewareBuilder
}

// DefaultMiddlewares returns the chain installed by NewServer, outermost first.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		RecovererMiddleware(),
		TracingMiddleware(),
		MetricsMiddleware(),
		LogDispatchMiddleware(nil),
	}
}

// LogDispatchMiddleware logs every dispatch with its headers at debug level.
// The server logger is used when logger is nil.
func LogDispatchMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_dispatch",
		Builder: func(s *Server) (Middleware, error) {
			l := logger
			if l == nil {
				l = s.logger
			}
			if l == nil {
				return nil, errors.New("log dispatch middleware requires a logger")
			}
			return logDispatchMiddleware(l), nil
		},
	}
}

func logDispatchMiddleware(logger loggingpkg.ServiceLogger) Middleware {
	return func(next DispatchFunc) DispatchFunc {
		return func(ctx context.Context, info DispatchInfo) error {
			logger.Debug("Dispatching", loggingpkg.LogFields{
				"kind":     info.Kind.String(),
				"contract": info.Contract,
				"subject":  info.Subject,
				"headers":  info.Headers,
			})
			return next(ctx, info)
		}
	}
}

// TracingMiddleware wraps each dispatch in an OpenTelemetry span. Trace
// context is extracted from the inbound headers.
func TracingMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "tracing",
		Builder: func(s *Server) (Middleware, error) {
			return tracingMiddleware(s.tracerProvider), nil
		},
	}
}

func tracingMiddleware(provider trace.TracerProvider) Middleware {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	tracer := provider.Tracer(tracerName)
	return func(next DispatchFunc) DispatchFunc {
		return func(ctx context.Context, info DispatchInfo) error {
			ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(info.Headers))
			ctx, span := tracer.Start(ctx, info.Contract,
				trace.WithSpanKind(spanKind(info)),
				trace.WithAttributes(
					attribute.String("messaging.system", "contractflow"),
					attribute.String("messaging.destination.name", info.Subject),
					attribute.String("contractflow.kind", info.Kind.String()),
					attribute.String("contractflow.handler", info.Handler),
					attribute.String("contractflow.address", info.Template),
				),
			)
			defer span.End()
			if id := info.RequestID(); id != "" {
				span.SetAttributes(attribute.String("messaging.message.id", id))
			}

			err := next(ctx, info)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return err
		}
	}
}

func spanKind(info DispatchInfo) trace.SpanKind {
	if info.Kind == contract.KindEvent {
		return trace.SpanKindConsumer
	}
	return trace.SpanKindServer
}

// MetricsMiddleware feeds the server's DispatchMetrics. It is skipped when the
// server was built without WithMetrics.
func MetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "metrics",
		Builder: func(s *Server) (Middleware, error) {
			if s.metrics == nil {
				return nil, nil
			}
			if err := s.metrics.Register(); err != nil {
				return nil, err
			}
			return s.metrics.Middleware(), nil
		},
	}
}

// RecovererMiddleware turns handler panics into errors.
func RecovererMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "recoverer",
		Middleware: FromHandlerMiddleware(middleware.Recoverer),
	}
}

// TimeoutMiddleware cancels the handler context after d.
func TimeoutMiddleware(d time.Duration) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "timeout",
		Middleware: FromHandlerMiddleware(middleware.Timeout(d)),
	}
}

// CircuitBreakerMiddleware stops dispatching to handlers whose unmapped error
// rate trips the breaker. Mapped errors are replies and do not count.
func CircuitBreakerMiddleware(settings gobreaker.Settings) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "circuit_breaker",
		Middleware: FromHandlerMiddleware(middleware.NewCircuitBreaker(settings).Middleware),
	}
}

// FromHandlerMiddleware adapts a Watermill handler middleware to the dispatch
// chain. The dispatch runs inside a synthetic message carrying the inbound
// headers as metadata and ctx as its context.
func FromHandlerMiddleware(mw message.HandlerMiddleware) Middleware {
	return func(next DispatchFunc) DispatchFunc {
		return func(ctx context.Context, info DispatchInfo) error {
			handler := mw(func(msg *message.Message) ([]*message.Message, error) {
				return nil, next(msg.Context(), info)
			})

			msg := message.NewMessage(idspkg.OrNew(info.RequestID()), nil)
			msg.Metadata = metadatapkg.ToWatermill(info.Headers)
			msg.SetContext(ctx)

			_, err := handler(msg)
			return err
		}
	}
}

// register resolves reg against s.
func (s *Server) register(reg MiddlewareRegistration) (Middleware, error) {
	switch {
	case reg.Middleware != nil:
		return reg.Middleware, nil
	case reg.Builder != nil:
		return reg.Builder(s)
	default:
		return nil, errors.New("middleware registration requires Middleware or Builder")
	}
}
