package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Version is the only protocol version accepted in the "jsonrpc" member of a message.
const Version = "2.0"

// Error codes defined by the JSON-RPC 2.0 specification. Codes between CodeServerErrorEnd and
// CodeServerErrorStart (inclusive) are reserved for implementation-defined server errors.
const (
	CodeParseError       = -32700
	CodeInvalidRequest   = -32600
	CodeMethodNotFound   = -32601
	CodeInvalidParams    = -32602
	CodeInternalError    = -32603
	CodeServerErrorStart = -32000
	CodeServerErrorEnd   = -32099
)

const reservedMethodPrefix = "rpc."

var (
	errMissingID     = errors.New("missing id member")
	errUnexpectedID  = errors.New("notification must not carry an id member")
	errMissingMethod = errors.New("method member must be a string")
)

type idKind uint8

const (
	idNull idKind = iota
	idString
	idNumber
)

// ID identifies a request and its response. It holds one of null, a string, or a 64-bit integer,
// and keeps that tag across JSON encoding, so the string "42" and the number 42 stay distinct.
//
// The zero value is the null ID.
type ID struct {
	kind idKind
	str  string
	num  int64
}

// Request is a call that expects a Response carrying the same ID.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      ID              `json:"id"`
}

// Notification is a call without an id member. The receiver never replies to it, not even on
// failure.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response answers a Request. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
	ID      ID              `json:"id"`
}

// ErrorObject is the error member of a Response.
type ErrorObject struct {
	// Code indicates the error type that occurred.
	Code int `json:"code"`

	// Message is a short, single sentence description of the error.
	Message string `json:"message"`

	// Data holds additional diagnostics about the error and may be omitted.
	Data any `json:"data,omitempty"`
}

// BatchEntry is one member of a Batch. Exactly one of Request, Notification and Err is set; Err
// reports a member that is valid JSON but not a call object.
type BatchEntry struct {
	Request      *Request
	Notification *Notification
	Err          error
}

// Batch is an ordered group of calls exchanged as a single JSON array. Requests and notifications
// may be mixed freely.
type Batch []BatchEntry

// NullID returns the null ID.
func NullID() ID { return ID{} }

// StringID returns an ID holding the string s.
func StringID(s string) ID { return ID{kind: idString, str: s} }

// NumberID returns an ID holding the integer n.
func NumberID(n int64) ID { return ID{kind: idNumber, num: n} }

// IsNull reports whether the ID is null.
func (id ID) IsNull() bool { return id.kind == idNull }

// IsString reports whether the ID holds a string.
func (id ID) IsString() bool { return id.kind == idString }

// IsNumber reports whether the ID holds an integer.
func (id ID) IsNumber() bool { return id.kind == idNumber }

// StringValue returns the string held by the ID.
func (id ID) StringValue() (string, bool) { return id.str, id.kind == idString }

// NumberValue returns the integer held by the ID.
func (id ID) NumberValue() (int64, bool) { return id.num, id.kind == idNumber }

// String returns the textual form of the ID: "null", the string itself, or the decimal integer.
// The text does not record which tag produced it; see ParseID.
func (id ID) String() string {
	switch id.kind {
	case idString:
		return id.str
	case idNumber:
		return strconv.FormatInt(id.num, 10)
	default:
		return "null"
	}
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	switch id.kind {
	case idString:
		return json.Marshal(id.str)
	case idNumber:
		return []byte(strconv.FormatInt(id.num, 10)), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler. Only null, strings and integers are accepted.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = NullID()
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("invalid id: %w", err)
		}
		*id = StringID(s)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %s: must be a string, an integer or null", data)
	}
	*id = NumberID(n)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler. The id member is required, though it may be null.
func (r *Request) UnmarshalJSON(data []byte) error {
	c, err := decodeCall(data)
	if err != nil {
		return err
	}
	if c.id == nil {
		return errMissingID
	}
	var id ID
	if err := id.UnmarshalJSON(c.id); err != nil {
		return err
	}
	*r = Request{JSONRPC: c.jsonrpc, Method: c.method, Params: c.params, ID: id}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler. The id member must be absent.
func (n *Notification) UnmarshalJSON(data []byte) error {
	c, err := decodeCall(data)
	if err != nil {
		return err
	}
	if c.id != nil {
		return errUnexpectedID
	}
	*n = Notification{JSONRPC: c.jsonrpc, Method: c.method, Params: c.params}
	return nil
}

type call struct {
	jsonrpc string
	method  string
	params  json.RawMessage
	id      json.RawMessage
}

// decodeCall reads the members shared by requests and notifications. A non-string "jsonrpc"
// member decodes as the empty version so that validation, not parsing, rejects it.
func decodeCall(data []byte) (call, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return call{}, err
	}
	if members == nil {
		return call{}, errors.New("call must be a JSON object")
	}

	var c call
	if raw, ok := members["jsonrpc"]; ok {
		_ = json.Unmarshal(raw, &c.jsonrpc)
	}
	raw, ok := members["method"]
	if !ok {
		return call{}, errMissingMethod
	}
	if err := json.Unmarshal(raw, &c.method); err != nil {
		return call{}, errMissingMethod
	}
	c.params = members["params"]
	if raw, ok := members["id"]; ok {
		c.id = raw
	}
	return c, nil
}

// ParseCall decodes a single JSON object, first as a Request and then as a Notification. Exactly
// one of the returned pointers is non-nil when err is nil.
func ParseCall(data []byte) (*Request, *Notification, error) {
	var req Request
	reqErr := json.Unmarshal(data, &req)
	if reqErr == nil {
		return &req, nil, nil
	}
	var n Notification
	nErr := json.Unmarshal(data, &n)
	if nErr == nil {
		return nil, &n, nil
	}
	if errors.Is(nErr, errUnexpectedID) {
		return nil, nil, reqErr
	}
	return nil, nil, nErr
}

// ParseBatch decodes a JSON array into a Batch. Members that are not call objects are kept, in
// order, as entries carrying a protocol error.
func ParseBatch(data []byte) (Batch, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, err
	}
	batch := make(Batch, 0, len(raws))
	for i, raw := range raws {
		req, n, err := ParseCall(raw)
		if err != nil {
			batch = append(batch, BatchEntry{
				Err: ProtocolError(fmt.Sprintf("batch member %d is not a valid call: %v", i, err)),
			})
			continue
		}
		batch = append(batch, BatchEntry{Request: req, Notification: n})
	}
	return batch, nil
}

// Requests reports whether every member of the batch is a request.
func (b Batch) Requests() bool {
	for _, e := range b {
		if e.Request == nil {
			return false
		}
	}
	return len(b) > 0
}

// Notifications reports whether every member of the batch is a notification.
func (b Batch) Notifications() bool {
	for _, e := range b {
		if e.Notification == nil {
			return false
		}
	}
	return len(b) > 0
}

// MarshalJSON implements json.Marshaler. Entries carrying an error cannot be encoded.
func (b Batch) MarshalJSON() ([]byte, error) {
	items := make([]any, 0, len(b))
	for i, e := range b {
		switch {
		case e.Request != nil:
			items = append(items, e.Request)
		case e.Notification != nil:
			items = append(items, e.Notification)
		default:
			return nil, fmt.Errorf("batch member %d has no call to encode", i)
		}
	}
	return json.Marshal(items)
}

// Validate checks the request against the JSON-RPC 2.0 rules for calls.
func (r Request) Validate() error {
	return validateCall(r.JSONRPC, r.Method)
}

// Validate checks the notification against the JSON-RPC 2.0 rules for calls.
func (n Notification) Validate() error {
	return validateCall(n.JSONRPC, n.Method)
}

func validateCall(version, method string) error {
	if version != Version {
		return ProtocolError("invalid JSON-RPC version, must be exactly \"2.0\"")
	}
	if method == "" {
		return ProtocolError("method must not be empty")
	}
	if strings.HasPrefix(method, reservedMethodPrefix) {
		return ProtocolError("method names that begin with \"rpc.\" are reserved")
	}
	return nil
}

// Validate checks the response against the JSON-RPC 2.0 rules: the version tag, the mutual
// exclusion of result and error, and the error object itself.
func (r Response) Validate() error {
	if r.JSONRPC != Version {
		return ProtocolError("invalid JSON-RPC version, must be exactly \"2.0\"")
	}
	hasResult := len(r.Result) > 0
	switch {
	case hasResult && r.Error != nil:
		return ProtocolError("response cannot contain both result and error")
	case !hasResult && r.Error == nil:
		return ProtocolError("response must contain either result or error")
	}
	if hasResult && !json.Valid(r.Result) {
		return ProtocolError("response result is not valid JSON")
	}
	if r.Error != nil {
		return r.Error.Validate()
	}
	return nil
}

// Validate checks that the error carries a message and a code from the reserved ranges.
func (e ErrorObject) Validate() error {
	if e.Message == "" {
		return ProtocolError("error message must not be empty")
	}
	if !ValidErrorCode(e.Code) {
		return ProtocolError(fmt.Sprintf("invalid error code: %d", e.Code))
	}
	return nil
}

// ValidErrorCode reports whether code is one of the predefined codes or lies in the server error
// range.
func ValidErrorCode(code int) bool {
	switch code {
	case CodeParseError, CodeInvalidRequest, CodeMethodNotFound, CodeInvalidParams, CodeInternalError:
		return true
	}
	return code >= CodeServerErrorEnd && code <= CodeServerErrorStart
}

// Error implements error.
func (e *ErrorObject) Error() string {
	return fmt.Sprintf("jsonrpc error, code: %d, message: %s, data: %v", e.Code, e.Message, e.Data)
}
