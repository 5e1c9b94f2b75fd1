// Package contractflow declares message-driven services as contracts and
// serves them over a subject-based bus.
//
// An Operation is a request/reply contract and an Event a publish/subscribe
// contract. Both are addressed by a subject template such as
// "sensors.{location}.{device_id}", whose parameters are bound to the fields
// of a params struct. Payload, reply and error schemas are inferred from the
// Go types (struct, string, []byte, protobuf message or Empty) and can be
// overridden with a TypeAdapter.
//
// An Application groups contracts under a name and version and rejects
// subject collisions. A Server binds typed handlers to the contracts of one
// application and serves the resulting dispatch table on an Adapter. A
// Client renders subjects, encodes payloads and decodes replies lazily.
//
// # Transports
//
// contractflow ships three adapters:
//   - transport/micro: NATS micro service endpoints for operations and core
//     NATS subscriptions for events, with an embedded nats-server for tests
//     and local development
//   - transport/events: events over any Watermill broker in the transport
//     registry (channel, nats, nats-jetstream, kafka, rabbitmq, aws, http)
//   - contracttest: an in-process loopback together with request and message
//     stubs for unit tests
//
// # Middleware
//
// The default dispatch chain recovers panics, opens an OpenTelemetry span per
// dispatch, records Prometheus metrics and logs every dispatch. Watermill
// handler middleware can be reused through FromHandlerMiddleware.
//
// # Documentation
//
// BuildAsyncAPI renders an application as an AsyncAPI 2.6 document, and the
// docs server publishes it as JSON, YAML and an HTML page next to the bound
// routes and /metrics.
package contractflow
