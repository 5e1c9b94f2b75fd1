package contract

import (
	"fmt"
	"net/http"

	"github.com/drblury/contractflow/internal/runtime/address"
	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
	"github.com/drblury/contractflow/internal/runtime/schema"
)

// OperationSpec declares a request/reply operation. Nil schemas are inferred
// from the type parameters.
type OperationSpec[P, T, R, E any] struct {
	Name    string
	Address string

	Payload *schema.Schema[T]
	Reply   *schema.Schema[R]
	Error   *schema.Schema[E]

	// Catch is evaluated in order; the first matching mapping wins.
	Catch []ExceptionMapping[E]

	// StatusCode is sent with successful replies. Defaults to 200.
	StatusCode int

	Metadata    map[string]string
	Summary     string
	Description string
	Tags        []string
}

// Operation is an immutable request/reply contract with params P, payload T,
// reply R and error payload E.
type Operation[P, T, R, E any] struct {
	info
	addr       *address.Address[P]
	payload    *schema.Schema[T]
	reply      *schema.Schema[R]
	errSchema  *schema.Schema[E]
	mappings   []ExceptionMapping[E]
	statusCode int
}

// NewOperation validates spec and builds the operation.
func NewOperation[P, T, R, E any](spec OperationSpec[P, T, R, E]) (*Operation[P, T, R, E], error) {
	if spec.Name == "" {
		return nil, errspkg.ErrContractNameRequired
	}
	if spec.Address == "" {
		return nil, fmt.Errorf("%w: operation %q", errspkg.ErrAddressRequired, spec.Name)
	}
	addr, err := address.New[P](spec.Address)
	if err != nil {
		return nil, err
	}

	payload, err := resolveSchema(spec.Payload)
	if err != nil {
		return nil, err
	}
	reply, err := resolveSchema(spec.Reply)
	if err != nil {
		return nil, err
	}
	errSchema, err := resolveSchema(spec.Error)
	if err != nil {
		return nil, err
	}

	if err := validateMappings(spec.Name, spec.Catch); err != nil {
		return nil, err
	}

	status := spec.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	if status < 100 || status > 599 {
		return nil, fmt.Errorf("contractflow: operation %q has invalid status code %d", spec.Name, status)
	}

	return &Operation[P, T, R, E]{
		info:       newInfo(spec.Name, spec.Metadata, spec.Summary, spec.Description, spec.Tags),
		addr:       addr,
		payload:    payload,
		reply:      reply,
		errSchema:  errSchema,
		mappings:   append([]ExceptionMapping[E](nil), spec.Catch...),
		statusCode: status,
	}, nil
}

// MustOperation is like NewOperation but panics on error.
func MustOperation[P, T, R, E any](spec OperationSpec[P, T, R, E]) *Operation[P, T, R, E] {
	op, err := NewOperation(spec)
	if err != nil {
		panic(err)
	}
	return op
}

func resolveSchema[T any](s *schema.Schema[T]) (*schema.Schema[T], error) {
	if s != nil {
		return s, nil
	}
	return schema.New[T]()
}

func (o *Operation[P, T, R, E]) Kind() Kind { return KindOperation }

func (o *Operation[P, T, R, E]) Address() *address.Template { return o.addr.Template() }

// TypedAddress returns the address bound to the parameter struct.
func (o *Operation[P, T, R, E]) TypedAddress() *address.Address[P] { return o.addr }

func (o *Operation[P, T, R, E]) Params() []address.ParamInfo { return o.addr.Describe() }

func (o *Operation[P, T, R, E]) PayloadSchema() *schema.Schema[T] { return o.payload }

func (o *Operation[P, T, R, E]) ReplySchema() *schema.Schema[R] { return o.reply }

func (o *Operation[P, T, R, E]) ErrorSchema() *schema.Schema[E] { return o.errSchema }

func (o *Operation[P, T, R, E]) Schemas() []SchemaRole {
	return []SchemaRole{
		{Role: RolePayload, Entry: o.payload},
		{Role: RoleReply, Entry: o.reply},
		{Role: RoleError, Entry: o.errSchema},
	}
}

func (o *Operation[P, T, R, E]) StatusCode() int { return o.statusCode }

func (o *Operation[P, T, R, E]) Mappings() []MappingInfo {
	out := make([]MappingInfo, len(o.mappings))
	for i, m := range o.mappings {
		out[i] = MappingInfo{Key: m.key, Code: m.code, Description: m.description}
	}
	return out
}

// Classify returns the first mapping that matches err.
func (o *Operation[P, T, R, E]) Classify(err error) (ExceptionMapping[E], bool) {
	for _, m := range o.mappings {
		if m.Matches(err) {
			return m, true
		}
	}
	return ExceptionMapping[E]{}, false
}

func (o *Operation[P, T, R, E]) String() string {
	return fmt.Sprintf("operation %s (%s)", o.name, o.addr.String())
}
