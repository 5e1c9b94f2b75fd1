package runtime

import (
	"context"
	"time"

	"github.com/drblury/contractflow/internal/runtime/contract"
	loggingpkg "github.com/drblury/contractflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/contractflow/internal/runtime/metadata"
)

// DispatchContext provides information about one dispatch to hooks.
type DispatchContext struct {
	// Kind tells requests and events apart.
	Kind contract.Kind
	// Contract is the name of the bound operation or event.
	Contract string
	// Handler is the name of the bound handler.
	Handler string
	// Subject is the concrete subject the message arrived on.
	Subject string
	// RequestID is the Request-Id header, if the caller sent one.
	RequestID string
	// Headers are the inbound headers.
	Headers metadatapkg.Metadata
	// Context is the dispatch context.
	Context context.Context
	// StartedAt is when the dispatch entered the hook middleware.
	StartedAt time.Time
	// Duration is only set in OnDone and OnError.
	Duration time.Duration
}

// DispatchHooks defines callbacks for the dispatch lifecycle. Nil hooks are
// skipped.
type DispatchHooks struct {
	// OnStart runs before the handler.
	OnStart func(ctx DispatchContext)
	// OnDone runs after the handler returned nil.
	OnDone func(ctx DispatchContext)
	// OnError runs after the handler returned an error.
	OnError func(ctx DispatchContext, err error)
}

// Merge returns hooks that call h first, then other.
func (h DispatchHooks) Merge(other DispatchHooks) DispatchHooks {
	return DispatchHooks{
		OnStart: chainHooks(h.OnStart, other.OnStart),
		OnDone:  chainHooks(h.OnDone, other.OnDone),
		OnError: chainErrorHooks(h.OnError, other.OnError),
	}
}

func (h DispatchHooks) empty() bool {
	return h.OnStart == nil && h.OnDone == nil && h.OnError == nil
}

func chainHooks(a, b func(DispatchContext)) func(DispatchContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx DispatchContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErrorHooks(a, b func(DispatchContext, error)) func(DispatchContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx DispatchContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

// DispatchHooksMiddleware registers hooks as a middleware.
func DispatchHooksMiddleware(hooks DispatchHooks) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "dispatch_hooks",
		Middleware: dispatchHooksMiddleware(hooks),
	}
}

func dispatchHooksMiddleware(hooks DispatchHooks) Middleware {
	return func(next DispatchFunc) DispatchFunc {
		return func(ctx context.Context, info DispatchInfo) error {
			dc := DispatchContext{
				Kind:      info.Kind,
				Contract:  info.Contract,
				Handler:   info.Handler,
				Subject:   info.Subject,
				RequestID: info.RequestID(),
				Headers:   info.Headers,
				Context:   ctx,
				StartedAt: time.Now(),
			}
			if hooks.OnStart != nil {
				hooks.OnStart(dc)
			}

			err := next(ctx, info)
			dc.Duration = time.Since(dc.StartedAt)

			if err != nil {
				if hooks.OnError != nil {
					hooks.OnError(dc, err)
				}
			} else if hooks.OnDone != nil {
				hooks.OnDone(dc)
			}
			return err
		}
	}
}

// LoggingHooks returns hooks that log every dispatch.
func LoggingHooks(logger loggingpkg.ServiceLogger) DispatchHooks {
	logger = loggingpkg.OrNop(logger)
	return DispatchHooks{
		OnStart: func(ctx DispatchContext) {
			logger.Debug("Dispatch started", dispatchFields(ctx))
		},
		OnDone: func(ctx DispatchContext) {
			fields := dispatchFields(ctx)
			fields["duration_ms"] = ctx.Duration.Milliseconds()
			logger.Info("Dispatch completed", fields)
		},
		OnError: func(ctx DispatchContext, err error) {
			fields := dispatchFields(ctx)
			fields["duration_ms"] = ctx.Duration.Milliseconds()
			logger.Error("Dispatch failed", err, fields)
		},
	}
}

func dispatchFields(ctx DispatchContext) loggingpkg.LogFields {
	fields := loggingpkg.LogFields{
		"kind":     ctx.Kind.String(),
		"contract": ctx.Contract,
		"handler":  ctx.Handler,
		"subject":  ctx.Subject,
	}
	if ctx.RequestID != "" {
		fields["request_id"] = ctx.RequestID
	}
	return fields
}

// MetricsHooks returns hooks that forward contract and subject to counters.
func MetricsHooks(onStart, onDone, onError func(contractName, subject string)) DispatchHooks {
	return DispatchHooks{
		OnStart: func(ctx DispatchContext) {
			if onStart != nil {
				onStart(ctx.Contract, ctx.Subject)
			}
		},
		OnDone: func(ctx DispatchContext) {
			if onDone != nil {
				onDone(ctx.Contract, ctx.Subject)
			}
		},
		OnError: func(ctx DispatchContext, err error) {
			if onError != nil {
				onError(ctx.Contract, ctx.Subject)
			}
		},
	}
}

// AlertingHooks returns hooks that call alert on dispatch failures.
func AlertingHooks(alert func(ctx DispatchContext, err error)) DispatchHooks {
	return DispatchHooks{OnError: alert}
}
