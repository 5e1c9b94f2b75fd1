package handlers

import (
	loggingpkg "github.com/drblury/contractflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/contractflow/internal/runtime/metadata"
)

// Envelope carries the inbound headers and a logger scoped to one request
// or message. Request and Message embed it.
type Envelope struct {
	Metadata metadatapkg.Metadata
	Logger   loggingpkg.ServiceLogger
}

func newEnvelope(headers metadatapkg.Metadata, logger loggingpkg.ServiceLogger, subject string) Envelope {
	md := headers.Clone()
	fields := loggingpkg.LogFields{"subject": subject}
	if id := md[metadatapkg.HeaderRequestID]; id != "" {
		fields["request_id"] = id
	}
	return Envelope{Metadata: md, Logger: loggingpkg.OrNop(logger).With(fields)}
}

// Headers returns a copy of the inbound headers, safe to modify and pass
// to a reply or a follow-up event.
func (e Envelope) Headers() metadatapkg.Metadata { return e.Metadata.Clone() }

func (e Envelope) Get(key string) string { return e.Metadata[key] }

func (e Envelope) RequestID() string { return e.Metadata[metadatapkg.HeaderRequestID] }

// CorrelationID is the Correlation-Id header, or the request id when the
// caller did not start a correlation chain.
func (e Envelope) CorrelationID() string {
	if id := e.Metadata[metadatapkg.HeaderCorrelationID]; id != "" {
		return id
	}
	return e.RequestID()
}

// FollowUpHeaders are headers for messages caused by this one: they carry
// the correlation id forward.
func (e Envelope) FollowUpHeaders() metadatapkg.Metadata {
	md := metadatapkg.Metadata{}
	if id := e.CorrelationID(); id != "" {
		md[metadatapkg.HeaderCorrelationID] = id
	}
	return md
}
