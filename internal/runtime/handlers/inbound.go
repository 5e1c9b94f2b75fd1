package handlers

import (
	"context"
	"time"

	metadatapkg "github.com/drblury/contractflow/internal/runtime/metadata"
)

// InboundRequest is a raw request delivered by a transport adapter.
type InboundRequest interface {
	Subject() string
	Data() []byte
	Headers() metadatapkg.Metadata
	Respond(ctx context.Context, data []byte, headers metadatapkg.Metadata) error
	RespondError(ctx context.Context, code int, description string, data []byte, headers metadatapkg.Metadata) error
}

// InboundMessage is a raw event delivered by a transport adapter.
type InboundMessage interface {
	Subject() string
	Data() []byte
	Headers() metadatapkg.Metadata
	Ack(ctx context.Context) error
	Nak(ctx context.Context, delay time.Duration) error
	Term(ctx context.Context) error
}
