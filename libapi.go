package contractflow

import (
	"context"

	runtimepkg "github.com/drblury/contractflow/internal/runtime"
	"github.com/drblury/contractflow/internal/runtime/address"
	"github.com/drblury/contractflow/internal/runtime/app"
	"github.com/drblury/contractflow/internal/runtime/asyncapi"
	"github.com/drblury/contractflow/internal/runtime/client"
	configpkg "github.com/drblury/contractflow/internal/runtime/config"
	"github.com/drblury/contractflow/internal/runtime/contract"
	"github.com/drblury/contractflow/internal/runtime/docs"
	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
	handlerpkg "github.com/drblury/contractflow/internal/runtime/handlers"
	idspkg "github.com/drblury/contractflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/contractflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/contractflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/contractflow/internal/runtime/metadata"
	"github.com/drblury/contractflow/internal/runtime/schema"
	"github.com/drblury/contractflow/transport"
)

type (
	Config = configpkg.Config

	// Addresses
	NoParams       = address.NoParams
	Address[P any] = address.Address[P]
	Template       = address.Template
	ParamInfo      = address.ParamInfo

	// Schemas
	Schema[T any]       = schema.Schema[T]
	SchemaOption        = schema.Option
	SchemaKind          = schema.Kind
	TypeAdapter[T any]  = schema.TypeAdapter[T]
	AdapterFuncs[T any] = schema.AdapterFuncs[T]
	Empty               = schema.Empty

	// Contracts
	Descriptor                       = contract.Descriptor
	Kind                             = contract.Kind
	OperationSpec[P, T, R, E any]    = contract.OperationSpec[P, T, R, E]
	Operation[P, T, R, E any]        = contract.Operation[P, T, R, E]
	EventSpec[P, T any]              = contract.EventSpec[P, T]
	Event[P, T any]                  = contract.Event[P, T]
	ExceptionMapping[E any]          = contract.ExceptionMapping[E]
	Formatter[E any]                 = contract.Formatter[E]
	MappingInfo                      = contract.MappingInfo
	OperationRequest[P, T, R, E any] = contract.OperationRequest[P, T, R, E]
	EventPublication[P, T any]       = contract.EventPublication[P, T]
	RequestOption                    = contract.RequestOption

	// Applications
	Application  = app.Application
	Info         = app.Info
	Contact      = app.Contact
	License      = app.License
	ExternalDocs = app.ExternalDocs
	Tag          = app.Tag

	// Handlers
	Request[P, T, R, E any]                 = handlerpkg.Request[P, T, R, E]
	Message[P, T any]                       = handlerpkg.Message[P, T]
	OperationHandler[P, T, R, E any]        = handlerpkg.OperationHandler[P, T, R, E]
	EventHandler[P, T any]                  = handlerpkg.EventHandler[P, T]
	OperationImplementation[P, T, R, E any] = handlerpkg.OperationImplementation[P, T, R, E]
	EventConsumer[P, T any]                 = handlerpkg.EventConsumer[P, T]
	Binding                                 = handlerpkg.Binding
	OperationBinding                        = handlerpkg.OperationBinding
	EventBinding                            = handlerpkg.EventBinding
	InboundRequest                          = handlerpkg.InboundRequest
	InboundMessage                          = handlerpkg.InboundMessage
	Settlement                              = handlerpkg.Settlement
	Envelope                                = handlerpkg.Envelope

	// Server
	Server                 = runtimepkg.Server
	ServerOption           = runtimepkg.ServerOption
	Adapter                = runtimepkg.Adapter
	AdapterFunc            = runtimepkg.AdapterFunc
	Instance               = runtimepkg.Instance
	InstanceFunc           = runtimepkg.InstanceFunc
	DispatchTable          = runtimepkg.DispatchTable
	DispatchInfo           = runtimepkg.DispatchInfo
	DispatchFunc           = runtimepkg.DispatchFunc
	Middleware             = runtimepkg.Middleware
	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration
	DispatchHooks          = runtimepkg.DispatchHooks
	DispatchContext        = runtimepkg.DispatchContext
	DispatchMetrics        = runtimepkg.DispatchMetrics
	RouteInfo              = runtimepkg.RouteInfo
	RouteStats             = runtimepkg.RouteStats
	ErrorClassifier        = runtimepkg.ErrorClassifier
	ErrorCategory          = runtimepkg.ErrorCategory

	// Client
	Client            = client.Client
	ClientOption      = client.Option
	CallOption        = client.CallOption
	ClientTransport   = client.Transport
	Reply[R, E any]   = client.Reply[R, E]
	RawReply          = client.RawReply
	RawOperationError = client.RawOperationError
	OperationError    = client.OperationError

	// Documentation
	AsyncAPIDocument = asyncapi.Document
	DocsServer       = docs.Server
	DocsOption       = docs.Option

	Metadata = metadatapkg.Metadata

	LogFields                 = loggingpkg.LogFields
	ServiceLogger             = loggingpkg.ServiceLogger
	EntryLogger               = loggingpkg.EntryLogger
	EntryLoggerAdapter[T any] = loggingpkg.EntryLoggerAdapter[T]

	// Errors
	CompileError               = errspkg.CompileError
	MissingParameterError      = errspkg.MissingParameterError
	InvalidParameterValueError = errspkg.InvalidParameterValueError
	SubjectMismatchError       = errspkg.SubjectMismatchError
	SchemaInferenceError       = errspkg.SchemaInferenceError
	EncodeError                = errspkg.EncodeError
	DecodeError                = errspkg.DecodeError
	DuplicateSubjectError      = errspkg.DuplicateSubjectError
	DuplicateContractError     = errspkg.DuplicateContractError
	DuplicateComponentError    = errspkg.DuplicateComponentError
	DuplicateMappingError      = errspkg.DuplicateMappingError
	ConfigValidationError      = errspkg.ConfigValidationError

	// Broker transports for the events adapter
	TransportBuilder      = transport.Builder
	TransportConfig       = transport.Config
	TransportRegistry     = transport.Registry
	TransportCapabilities = transport.Capabilities
	BrokerTransport       = transport.Transport
)

var (
	LoadConfig     = configpkg.Load
	ValidateConfig = configpkg.ValidateConfig

	CompileTemplate = address.Compile
	SubjectMatches  = address.SubjectMatches

	NewApplication  = app.New
	MustApplication = app.MustNew

	NewServer                 = runtimepkg.NewServer
	WithLogger                = runtimepkg.WithLogger
	WithMiddlewares           = runtimepkg.WithMiddlewares
	WithoutDefaultMiddlewares = runtimepkg.WithoutDefaultMiddlewares
	WithHooks                 = runtimepkg.WithHooks
	WithMetrics               = runtimepkg.WithMetrics
	WithTracerProvider        = runtimepkg.WithTracerProvider
	WithErrorClassifier       = runtimepkg.WithErrorClassifier
	NewDispatchMetrics        = runtimepkg.NewDispatchMetrics

	DefaultMiddlewares       = runtimepkg.DefaultMiddlewares
	LogDispatchMiddleware    = runtimepkg.LogDispatchMiddleware
	TracingMiddleware        = runtimepkg.TracingMiddleware
	MetricsMiddleware        = runtimepkg.MetricsMiddleware
	RecovererMiddleware      = runtimepkg.RecovererMiddleware
	TimeoutMiddleware        = runtimepkg.TimeoutMiddleware
	CircuitBreakerMiddleware = runtimepkg.CircuitBreakerMiddleware
	FromHandlerMiddleware    = runtimepkg.FromHandlerMiddleware
	DispatchHooksMiddleware  = runtimepkg.DispatchHooksMiddleware
	LoggingHooks             = runtimepkg.LoggingHooks
	MetricsHooks             = runtimepkg.MetricsHooks
	AlertingHooks            = runtimepkg.AlertingHooks
	DefaultErrorClassifier   = runtimepkg.DefaultErrorClassifier

	NewClient          = client.New
	WithDefaultTimeout = client.WithDefaultTimeout
	WithClientLogger   = client.WithLogger
	WithoutRequestIDs  = client.WithoutRequestIDs
	WithTimeout        = client.WithTimeout
	WithRaiseOnError   = client.WithRaiseOnError
	WithCallHeaders    = client.WithHeaders
	WithHeaders        = contract.WithHeaders

	BuildAsyncAPI  = asyncapi.Build
	NewDocsHandler = docs.NewHandler
	NewDocsServer  = docs.NewServer

	WithDocsLogger      = docs.WithLogger
	WithDocsRoutes      = docs.WithRoutes
	WithDocsGatherer    = docs.WithGatherer
	WithDocsCORSOrigins = docs.WithCORSOrigins

	DefaultTransportRegistry = transport.DefaultRegistry
	RegisterTransport        = transport.Register
	BuildTransport           = transport.Build
	GetCapabilities          = transport.GetCapabilities

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrContractNameRequired    = errspkg.ErrContractNameRequired
	ErrAddressRequired         = errspkg.ErrAddressRequired
	ErrMissingPayload          = errspkg.ErrMissingPayload
	ErrNoError                 = errspkg.ErrNoError
	ErrHandlerRequired         = errspkg.ErrHandlerRequired
	ErrComponentRequired       = errspkg.ErrComponentRequired
	ErrAdapterRequired         = errspkg.ErrAdapterRequired
	ErrTransportRequired       = errspkg.ErrTransportRequired
	ErrApplicationRequired     = errspkg.ErrApplicationRequired
	ErrNotBound                = errspkg.ErrNotBound
	ErrAlreadyBound            = errspkg.ErrAlreadyBound
	ErrAlreadyStarted          = errspkg.ErrAlreadyStarted
	ErrServerStopped           = errspkg.ErrServerStopped
	ErrRequestReplyUnsupported = errspkg.ErrRequestReplyUnsupported
	ErrResponseAlreadySent     = errspkg.ErrResponseAlreadySent
	ErrAlreadyAcknowledged     = errspkg.ErrAlreadyAcknowledged
	ErrNoResponse              = errspkg.ErrNoResponse
	ErrUnknownSubject          = errspkg.ErrUnknownSubject
	ErrConfigRequired          = errspkg.ErrConfigRequired
	ErrLoggerRequired          = errspkg.ErrLoggerRequired
	ErrPayloadTooLarge         = errspkg.ErrPayloadTooLarge
	ErrDuplicateEndpoint       = errspkg.ErrDuplicateEndpoint

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NopLogger            = loggingpkg.Nop

	NewMetadata = metadatapkg.New

	CreateULID = idspkg.CreateULID
)

// DefaultConfigPrefix is the environment prefix read by LoadConfig.
const DefaultConfigPrefix = configpkg.DefaultPrefix

// Standard headers.
const (
	HeaderContentType     = metadatapkg.HeaderContentType
	HeaderRequestID       = metadatapkg.HeaderRequestID
	HeaderCorrelationID   = metadatapkg.HeaderCorrelationID
	HeaderContractSubject = metadatapkg.HeaderContractSubject
	HeaderStatusCode      = metadatapkg.HeaderStatusCode
)

const (
	KindOperation = contract.KindOperation
	KindEvent     = contract.KindEvent

	Pending = handlerpkg.Pending
	Acked   = handlerpkg.Acked
	Nacked  = handlerpkg.Nacked
	Termed  = handlerpkg.Termed
)

// Error category constants for ErrorClassifier.
const (
	ErrorCategoryNone       = runtimepkg.ErrorCategoryNone
	ErrorCategoryDecode     = runtimepkg.ErrorCategoryDecode
	ErrorCategoryNoResponse = runtimepkg.ErrorCategoryNoResponse
	ErrorCategoryDownstream = runtimepkg.ErrorCategoryDownstream
	ErrorCategoryOther      = runtimepkg.ErrorCategoryOther
)

func NewAddress[P any](raw string) (*Address[P], error) { return address.New[P](raw) }

func MustAddress[P any](raw string) *Address[P] { return address.Must[P](raw) }

func NewSchema[T any](opts ...SchemaOption) (*Schema[T], error) { return schema.New[T](opts...) }

func NewOperation[P, T, R, E any](spec OperationSpec[P, T, R, E]) (*Operation[P, T, R, E], error) {
	return contract.NewOperation(spec)
}

func MustOperation[P, T, R, E any](spec OperationSpec[P, T, R, E]) *Operation[P, T, R, E] {
	return contract.MustOperation(spec)
}

func NewEvent[P, T any](spec EventSpec[P, T]) (*Event[P, T], error) { return contract.NewEvent(spec) }

func MustEvent[P, T any](spec EventSpec[P, T]) *Event[P, T] { return contract.MustEvent(spec) }

// Catch maps errors matching target (errors.Is) to an error reply.
func Catch[E any](target error, code int, description string, format Formatter[E]) ExceptionMapping[E] {
	return contract.Catch(target, code, description, format)
}

// CatchAs maps errors of type T (errors.As) to an error reply.
func CatchAs[T error, E any](code int, description string, format Formatter[E]) ExceptionMapping[E] {
	return contract.CatchAs[T](code, description, format)
}

func CatchFunc[E any](name string, pred func(error) bool, code int, description string, format Formatter[E]) ExceptionMapping[E] {
	return contract.CatchFunc(name, pred, code, description, format)
}

func ImplementOperation[P, T, R, E any](op *Operation[P, T, R, E], handler OperationHandler[P, T, R, E]) (OperationBinding, error) {
	return handlerpkg.ImplementOperation(op, handler)
}

func Implement[P, T, R, E any](op *Operation[P, T, R, E], impl OperationImplementation[P, T, R, E]) (OperationBinding, error) {
	return handlerpkg.Implement(op, impl)
}

func ConsumeEvent[P, T any](ev *Event[P, T], handler EventHandler[P, T]) (EventBinding, error) {
	return handlerpkg.ConsumeEvent(ev, handler)
}

func Consume[P, T any](ev *Event[P, T], consumer EventConsumer[P, T]) (EventBinding, error) {
	return handlerpkg.Consume(ev, consumer)
}

// Send sends req and wraps the answer in a Reply.
func Send[P, T, R, E any](ctx context.Context, c *Client, req *OperationRequest[P, T, R, E], opts ...CallOption) (*Reply[R, E], error) {
	return client.Send(ctx, c, req, opts...)
}

// Publish sends pub as an event.
func Publish[P, T any](ctx context.Context, c *Client, pub *EventPublication[P, T], opts ...CallOption) error {
	return client.Publish(ctx, c, pub, opts...)
}

func DecodeError[P, T, R, E any](op *Operation[P, T, R, E], err error) (E, error) {
	return client.DecodeError(op, err)
}

func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	return loggingpkg.NewEntryServiceLogger(entry)
}
