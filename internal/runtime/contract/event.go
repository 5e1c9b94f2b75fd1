package contract

import (
	"fmt"

	"github.com/drblury/contractflow/internal/runtime/address"
	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
	"github.com/drblury/contractflow/internal/runtime/schema"
)

// EventSpec declares a one-way event.
type EventSpec[P, T any] struct {
	Name    string
	Address string
	Payload *schema.Schema[T]

	Metadata    map[string]string
	Summary     string
	Description string
	Tags        []string
}

// Event is an immutable pub/sub contract with params P and payload T.
type Event[P, T any] struct {
	info
	addr    *address.Address[P]
	payload *schema.Schema[T]
}

// NewEvent validates spec and builds the event.
func NewEvent[P, T any](spec EventSpec[P, T]) (*Event[P, T], error) {
	if spec.Name == "" {
		return nil, errspkg.ErrContractNameRequired
	}
	if spec.Address == "" {
		return nil, fmt.Errorf("%w: event %q", errspkg.ErrAddressRequired, spec.Name)
	}
	addr, err := address.New[P](spec.Address)
	if err != nil {
		return nil, err
	}
	payload, err := resolveSchema(spec.Payload)
	if err != nil {
		return nil, err
	}
	return &Event[P, T]{
		info:    newInfo(spec.Name, spec.Metadata, spec.Summary, spec.Description, spec.Tags),
		addr:    addr,
		payload: payload,
	}, nil
}

// MustEvent is like NewEvent but panics on error.
func MustEvent[P, T any](spec EventSpec[P, T]) *Event[P, T] {
	ev, err := NewEvent(spec)
	if err != nil {
		panic(err)
	}
	return ev
}

func (e *Event[P, T]) Kind() Kind { return KindEvent }

func (e *Event[P, T]) Address() *address.Template { return e.addr.Template() }

// TypedAddress returns the address bound to the parameter struct.
func (e *Event[P, T]) TypedAddress() *address.Address[P] { return e.addr }

func (e *Event[P, T]) Params() []address.ParamInfo { return e.addr.Describe() }

func (e *Event[P, T]) PayloadSchema() *schema.Schema[T] { return e.payload }

func (e *Event[P, T]) Schemas() []SchemaRole {
	return []SchemaRole{{Role: RolePayload, Entry: e.payload}}
}

// StatusCode is always zero; events have no reply.
func (e *Event[P, T]) StatusCode() int { return 0 }

func (e *Event[P, T]) Mappings() []MappingInfo { return nil }

func (e *Event[P, T]) String() string {
	return fmt.Sprintf("event %s (%s)", e.name, e.addr.String())
}
