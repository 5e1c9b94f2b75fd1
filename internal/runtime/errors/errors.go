package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrContractNameRequired    = sterrors.New("contractflow: contract name is required")
	ErrAddressRequired         = sterrors.New("contractflow: address template is required")
	ErrMissingPayload          = sterrors.New("contractflow: missing request data")
	ErrNoError                 = sterrors.New("contractflow: reply is not an error")
	ErrHandlerRequired         = sterrors.New("contractflow: handler function is required")
	ErrComponentRequired       = sterrors.New("contractflow: component is required")
	ErrAdapterRequired         = sterrors.New("contractflow: server adapter is required")
	ErrTransportRequired       = sterrors.New("contractflow: client transport is required")
	ErrApplicationRequired     = sterrors.New("contractflow: application is required")
	ErrNotBound                = sterrors.New("contractflow: server is not bound")
	ErrAlreadyBound            = sterrors.New("contractflow: server is already bound")
	ErrAlreadyStarted          = sterrors.New("contractflow: server is already started")
	ErrServerStopped           = sterrors.New("contractflow: server is stopped")
	ErrRequestReplyUnsupported = sterrors.New("contractflow: transport does not support request/reply")
	ErrResponseAlreadySent     = sterrors.New("contractflow: response already sent")
	ErrAlreadyAcknowledged     = sterrors.New("contractflow: message already acknowledged")
	ErrNoResponse              = sterrors.New("contractflow: no response was sent")
	ErrUnknownSubject          = sterrors.New("contractflow: no contract matches subject")
	ErrConfigRequired          = sterrors.New("contractflow: configuration is required")
	ErrLoggerRequired          = sterrors.New("contractflow: logger is required")
	ErrPayloadTooLarge         = sterrors.New("contractflow: payload exceeds broker message size")
	ErrDuplicateEndpoint       = sterrors.New("contractflow: operations share a service endpoint name")
)

// CompileError reports a malformed address template.
type CompileError struct {
	Template string
	Reason   string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("contractflow: invalid address template %q: %s", e.Template, e.Reason)
}

// MissingParameterError is returned when a declared parameter has no value.
type MissingParameterError struct {
	Template string
	Param    string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("contractflow: missing parameter %q for address %q", e.Param, e.Template)
}

// InvalidParameterValueError is returned when a value cannot be used as a subject token.
type InvalidParameterValueError struct {
	Template string
	Param    string
	Value    string
}

func (e *InvalidParameterValueError) Error() string {
	return fmt.Sprintf("contractflow: invalid value %q for parameter %q of address %q", e.Value, e.Param, e.Template)
}

// SubjectMismatchError is returned when a subject does not fit an address template.
type SubjectMismatchError struct {
	Template string
	Subject  string
}

func (e *SubjectMismatchError) Error() string {
	return fmt.Sprintf("contractflow: subject %q does not match address %q", e.Subject, e.Template)
}

// SchemaInferenceError is returned when no content type or adapter can be derived
// for a payload type.
type SchemaInferenceError struct {
	Type   string
	Reason string
}

func (e *SchemaInferenceError) Error() string {
	return fmt.Sprintf("contractflow: cannot infer schema for %s: %s", e.Type, e.Reason)
}

// UnsupportedSchemaTypeError is the inference failure for types outside every
// known payload kind. It unwraps to a SchemaInferenceError.
type UnsupportedSchemaTypeError struct {
	Type string
}

func (e *UnsupportedSchemaTypeError) Error() string {
	return fmt.Sprintf("contractflow: unsupported schema type %s, supply a content type and adapter", e.Type)
}

func (e *UnsupportedSchemaTypeError) Unwrap() error {
	return &SchemaInferenceError{Type: e.Type, Reason: "unsupported type"}
}

// EncodeError wraps a failure to turn a value into bytes.
type EncodeError struct {
	Type string
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("contractflow: failed to encode %s: %v", e.Type, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// DecodeError wraps a failure to turn bytes into a value.
type DecodeError struct {
	Type string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("contractflow: failed to decode %s: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DuplicateSubjectError names both handlers whose subjects collide.
type DuplicateSubjectError struct {
	First   string
	Second  string
	Subject string
}

func (e *DuplicateSubjectError) Error() string {
	return fmt.Sprintf("contractflow: %s and %s both use subject %q", e.First, e.Second, e.Subject)
}

// DuplicateContractError is returned when an implementation is rebound to another contract.
type DuplicateContractError struct {
	Existing string
	Incoming string
}

func (e *DuplicateContractError) Error() string {
	return fmt.Sprintf("contractflow: implementation already bound to %q, cannot bind %q", e.Existing, e.Incoming)
}

// DuplicateComponentError is returned when an application declares the same
// component name twice.
type DuplicateComponentError struct {
	Name string
}

func (e *DuplicateComponentError) Error() string {
	return fmt.Sprintf("contractflow: component %q declared more than once", e.Name)
}

// UnsupportedHandlerError is returned when a handler targets a contract the
// application does not declare.
type UnsupportedHandlerError struct {
	Handler     string
	Application string
}

func (e *UnsupportedHandlerError) Error() string {
	return fmt.Sprintf("contractflow: %s is not a component of application %q", e.Handler, e.Application)
}

// DuplicateMappingError is returned when two exception mappings share a classifier.
type DuplicateMappingError struct {
	Contract string
	Key      string
}

func (e *DuplicateMappingError) Error() string {
	return fmt.Sprintf("contractflow: duplicate exception mapping %s on %q", e.Key, e.Contract)
}

// ConfigValidationError wraps configuration problems detected at startup.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "contractflow: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error { return e.Err }
