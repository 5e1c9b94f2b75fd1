// Package metadata holds the string headers that travel with requests,
// replies and events, and converts them to and from broker formats.
package metadata

import "maps"

// Header names shared by clients and adapters.
const (
	HeaderContentType     = "Content-Type"
	HeaderRequestID       = "Request-Id"
	HeaderCorrelationID   = "Correlation-Id"
	HeaderContractSubject = "Contract-Subject"
	HeaderStatusCode      = "Status-Code"
)

// Metadata maps header names to single values. Methods never mutate the
// receiver; they return copies.
type Metadata map[string]string

// New pairs up alternating keys and values. A trailing key without a value
// is dropped.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 1; i < len(pairs); i += 2 {
		md[pairs[i-1]] = pairs[i]
	}
	return md
}

// Clone returns a copy that is never nil.
func (m Metadata) Clone() Metadata {
	return m.grow(0)
}

// With returns a copy with key set to value.
func (m Metadata) With(key, value string) Metadata {
	out := m.grow(1)
	out[key] = value
	return out
}

// WithAll returns a copy overlaid with entries.
func (m Metadata) WithAll(entries Metadata) Metadata {
	out := m.grow(len(entries))
	maps.Copy(out, entries)
	return out
}

func (m Metadata) grow(extra int) Metadata {
	out := make(Metadata, len(m)+extra)
	maps.Copy(out, m)
	return out
}
