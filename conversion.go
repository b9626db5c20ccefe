package jsonrpc

import (
	"encoding/json"
	"strconv"
)

// DomainRequest is the transport-neutral form of a call handed to a capability.
type DomainRequest struct {
	// ID is the textual form of the originating request id, "null" for notifications.
	ID string
	// RequestID is the originating id with its tag intact.
	RequestID ID
	// Tool is the method name.
	Tool string
	// Params is the raw parameters value, JSON null when the call carried none.
	Params json.RawMessage
}

// DomainResult is the outcome of a capability invocation: a value or an error.
type DomainResult struct {
	Value json.RawMessage
	Err   error
}

var nullParams = json.RawMessage("null")

// Success returns a successful DomainResult.
func Success(value json.RawMessage) DomainResult { return DomainResult{Value: value} }

// Failure returns a failed DomainResult.
func Failure(err error) DomainResult { return DomainResult{Err: err} }

// ToDomainRequest validates req and converts it to its domain form.
func ToDomainRequest(req Request) (DomainRequest, error) {
	if err := req.Validate(); err != nil {
		return DomainRequest{}, err
	}
	params := req.Params
	if len(params) == 0 {
		params = nullParams
	}
	return DomainRequest{
		ID:        req.ID.String(),
		RequestID: req.ID,
		Tool:      req.Method,
		Params:    params,
	}, nil
}

// ToWireResponse converts a capability outcome into the Response for id. A failed outcome is
// mapped through MapError and carries the failure text as data. The returned error reports a
// Response that would not pass validation.
func ToWireResponse(result DomainResult, id ID) (Response, error) {
	var resp Response
	if result.Err != nil {
		code, message := MapError(ExecutionError(result.Err))
		resp = Response{
			JSONRPC: Version,
			Error: &ErrorObject{
				Code:    code,
				Message: message,
				Data:    errorData(result.Err),
			},
			ID: id,
		}
	} else {
		value := result.Value
		if len(value) == 0 {
			value = nullParams
		}
		resp = Response{JSONRPC: Version, Result: value, ID: id}
	}

	if err := resp.Validate(); err != nil {
		return Response{}, InternalError("invalid response generated", err)
	}
	return resp, nil
}

// ParseID recovers an ID from its textual form: "null" is the null ID, text that parses as a
// 64-bit integer is a number, anything else is a string. The string ID "42" therefore comes back
// as the number 42.
func ParseID(text string) ID {
	if text == "null" {
		return NullID()
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return NumberID(n)
	}
	return StringID(text)
}
