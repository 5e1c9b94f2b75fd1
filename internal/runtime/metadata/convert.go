package metadata

import (
	"maps"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"
)

// FromWatermill copies Watermill message metadata.
func FromWatermill(md message.Metadata) Metadata {
	out := make(Metadata, len(md))
	maps.Copy(out, md)
	return out
}

// ToWatermill copies m into Watermill message metadata.
func ToWatermill(m Metadata) message.Metadata {
	out := make(message.Metadata, len(m))
	maps.Copy(out, m)
	return out
}

// FromNATS keeps the first value of each NATS header.
func FromNATS(h nats.Header) Metadata {
	out := make(Metadata, len(h))
	for key, values := range h {
		if len(values) > 0 {
			out[key] = values[0]
		}
	}
	return out
}

// ToNATS converts m into single-valued NATS headers.
func ToNATS(m Metadata) nats.Header {
	h := make(nats.Header, len(m))
	for key, value := range m {
		h[key] = []string{value}
	}
	return h
}
