// Package contract declares typed request/reply operations and pub/sub events
// bound to subject templates and payload schemas.
package contract

import (
	"maps"
	"slices"

	"github.com/drblury/contractflow/internal/runtime/address"
	"github.com/drblury/contractflow/internal/runtime/schema"
)

// Kind distinguishes operations from events.
type Kind uint8

const (
	KindOperation Kind = iota + 1
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindOperation:
		return "operation"
	case KindEvent:
		return "event"
	}
	return "unknown"
}

// Schema roles reported by Descriptor.Schemas.
const (
	RolePayload = "payload"
	RoleReply   = "reply"
	RoleError   = "error"
)

// SchemaRole pairs a schema with the part of the exchange it describes.
type SchemaRole struct {
	Role  string
	Entry schema.Entry
}

// Descriptor is the non-generic view shared by operations and events. The
// application registry, the server and documentation work on descriptors.
type Descriptor interface {
	Name() string
	Kind() Kind
	Address() *address.Template
	Params() []address.ParamInfo
	Schemas() []SchemaRole
	StatusCode() int
	Mappings() []MappingInfo
	Metadata() map[string]string
	Summary() string
	Description() string
	Tags() []string
}

// info holds the documentation fields common to both contract kinds.
type info struct {
	name        string
	metadata    map[string]string
	summary     string
	description string
	tags        []string
}

func newInfo(name string, md map[string]string, summary, description string, tags []string) info {
	return info{
		name:        name,
		metadata:    maps.Clone(md),
		summary:     summary,
		description: description,
		tags:        slices.Clone(tags),
	}
}

func (i info) Name() string { return i.name }

func (i info) Metadata() map[string]string {
	if i.metadata == nil {
		return map[string]string{}
	}
	return maps.Clone(i.metadata)
}

func (i info) Summary() string { return i.summary }

func (i info) Description() string { return i.description }

func (i info) Tags() []string { return slices.Clone(i.tags) }
