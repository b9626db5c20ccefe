package jsonrpc

import (
	"errors"
	"fmt"
	"strings"
)

// Severity grades an Error. It is informational and never changes how an error is mapped.
type Severity int

// Reference tags attached to errors raised by this package.
const (
	RefJSON       = "JSONRPC-001"
	RefTransport  = "JSONRPC-002"
	RefConversion = "JSONRPC-003"
	RefProtocol   = "JSONRPC-004"
	RefInternal   = "JSONRPC-005"
	RefDomain     = "JSONRPC-006"
)

// Reference tags attached to errors raised while locating or running a capability.
const (
	RefToolNotFound   = "TOOL-NOTFOUND"
	RefInvalidParams  = "PARAM-INVALID"
	RefToolError      = "TOOL-ERROR"
	RefDomainInternal = "INTERNAL"
)

// Severities of an Error.
const (
	// SeverityError marks an expected failure, such as bad input or a failed capability.
	SeverityError Severity = iota
	// SeverityCritical marks a broken internal invariant.
	SeverityCritical
)

// Error is a tagged error. Its Reference decides the wire error code a failure maps to, see
// MapError.
type Error struct {
	Severity  Severity
	Reference string
	Message   string
	Err       error
}

type errorMapping struct {
	refs    []string
	code    int
	message string
}

// errorMappings is checked in order; the first entry with a tag contained in the error's
// reference wins.
var errorMappings = []errorMapping{
	{refs: []string{RefToolNotFound}, code: CodeMethodNotFound, message: "Method not found"},
	{refs: []string{RefInvalidParams}, code: CodeInvalidParams, message: "Invalid params"},
	{refs: []string{RefToolError}, code: CodeServerErrorStart, message: "Server error"},
	{refs: []string{RefDomainInternal, RefInternal}, code: CodeInternalError, message: "Internal error"},
	{refs: []string{RefJSON}, code: CodeParseError, message: "Parse error"},
	{refs: []string{RefProtocol}, code: CodeInvalidRequest, message: "Invalid Request"},
}

// NewError returns an Error with the given severity, reference tag and message.
func NewError(severity Severity, reference, message string) *Error {
	return &Error{Severity: severity, Reference: reference, Message: message}
}

// JSONError reports input that is not well-formed JSON.
func JSONError(err error) *Error {
	return &Error{Severity: SeverityError, Reference: RefJSON, Message: "JSON processing error", Err: err}
}

// TransportError reports a failure to move a message across a transport.
func TransportError(message string, err error) *Error {
	return &Error{Severity: SeverityError, Reference: RefTransport, Message: message, Err: err}
}

// ConversionError reports a failure to translate between wire and domain forms.
func ConversionError(message string) *Error {
	return &Error{Severity: SeverityError, Reference: RefConversion, Message: message}
}

// ProtocolError reports a message that breaks the JSON-RPC 2.0 rules.
func ProtocolError(message string) *Error {
	return &Error{Severity: SeverityError, Reference: RefProtocol, Message: message}
}

// InternalError reports a broken invariant inside this package.
func InternalError(message string, err error) *Error {
	return &Error{Severity: SeverityCritical, Reference: RefInternal, Message: message, Err: err}
}

// DomainError wraps a failure raised by capability code.
func DomainError(message string, err error) *Error {
	ref := RefDomain
	if inner := Reference(err); inner != "" {
		ref = inner + "|" + RefDomain
	}
	return &Error{Severity: SeverityError, Reference: ref, Message: message, Err: err}
}

// NotFoundError reports a method name with no registered capability.
func NotFoundError(name string) *Error {
	return &Error{
		Severity:  SeverityError,
		Reference: RefToolNotFound,
		Message:   fmt.Sprintf("capability %q not found", name),
	}
}

// InvalidParamsError reports parameters a capability refuses. Capabilities return it to get a
// CodeInvalidParams response.
func InvalidParamsError(message string, err error) *Error {
	return &Error{Severity: SeverityError, Reference: RefInvalidParams, Message: message, Err: err}
}

// ExecutionError wraps the failure of a capability invocation. The reference of err, when it has
// one, is kept in front of the execution tag so a more specific mapping still applies.
func ExecutionError(err error) *Error {
	ref := RefToolError
	if inner := Reference(err); inner != "" {
		ref = inner + "|" + RefToolError
	}
	return &Error{Severity: SeverityError, Reference: ref, Message: "capability execution failed", Err: err}
}

// Error implements error.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Reference, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Reference, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.Err }

// String returns the lower case name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	default:
		return "error"
	}
}

// Reference returns the reference tag of the first Error in err's chain, or an empty string.
func Reference(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reference
	}
	return ""
}

// MapError returns the wire code and message for err. Errors without a known reference tag map to
// CodeInternalError with a message that carries the error text.
func MapError(err error) (int, string) {
	if ref := Reference(err); ref != "" {
		for _, m := range errorMappings {
			for _, tag := range m.refs {
				if strings.Contains(ref, tag) {
					return m.code, m.message
				}
			}
		}
	}
	return CodeInternalError, fmt.Sprintf("Internal error: %v", err)
}

// NewErrorResponse builds the error Response for id that err maps to. The error text is attached
// as data under the "error" key.
func NewErrorResponse(id ID, err error) Response {
	code, message := MapError(err)
	return Response{
		JSONRPC: Version,
		Error: &ErrorObject{
			Code:    code,
			Message: message,
			Data:    errorData(err),
		},
		ID: id,
	}
}

func errorData(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}
