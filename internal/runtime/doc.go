/*
Package runtime binds handlers to contracts and runs them on a transport.

# Architecture Overview

Contracts (package contract) declare what an application speaks: operations
answered over request/reply and events delivered over pub/sub, each with an
address template and payload schemas. An Application (package app) groups
contracts under one name and version. The Server in this package validates
handler bindings against an Application, builds a DispatchTable and hands it
to an Adapter that owns the wire.

# Package Structure

## Server (server.go)

Server moves through Unbound, Bound, Started and Stopped:
  - Bind checks that every handler targets a contract of the application and
    that no two bound address templates can match the same subject.
  - Start passes the DispatchTable to Adapter.Serve.
  - Stop releases the running Instance. It is idempotent.

## Dispatch (dispatch.go)

Each OperationRoute and EventRoute runs inbound traffic through the
middleware chain before the typed handler binding decodes it.

## Middleware (middleware.go, hooks.go)

  - Recoverer: panics become errors (Watermill middleware)
  - Tracing: one OpenTelemetry span per dispatch
  - Metrics: Prometheus counters, latency and in-flight gauges
  - LogDispatch: debug logging of subjects and headers
  - Timeout and CircuitBreaker: opt-in Watermill middleware
  - DispatchHooks: lifecycle callbacks for custom instrumentation

## Stats (stats.go, resources.go)

RouteStats keeps per-route latency percentiles, throughput, an error
breakdown and coarse process resource usage for the docs server.

# Subpackages

  - address: subject template compiler and typed addresses
  - schema: payload schema inference and codecs
  - contract: operation and event declarations with exception mappings
  - app: the application registry
  - handlers: typed request/message wrappers and handler bindings
  - errors: sentinel and typed errors
  - logging: ServiceLogger and adapters
  - metadata: header maps
  - config: environment configuration
  - transport: Watermill broker builders
*/
package runtime
