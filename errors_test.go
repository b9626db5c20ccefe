package jsonrpc_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MegaGrindStone/go-jsonrpc"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    int
		wantMessage string
	}{
		{
			name:        "not found",
			err:         jsonrpc.NotFoundError("nope"),
			wantCode:    jsonrpc.CodeMethodNotFound,
			wantMessage: "Method not found",
		},
		{
			name:        "invalid params",
			err:         jsonrpc.InvalidParamsError("bad", nil),
			wantCode:    jsonrpc.CodeInvalidParams,
			wantMessage: "Invalid params",
		},
		{
			name:        "tool error",
			err:         jsonrpc.ExecutionError(errors.New("boom")),
			wantCode:    jsonrpc.CodeServerErrorStart,
			wantMessage: "Server error",
		},
		{
			name:        "domain internal",
			err:         jsonrpc.NewError(jsonrpc.SeverityCritical, jsonrpc.RefDomainInternal, "broken"),
			wantCode:    jsonrpc.CodeInternalError,
			wantMessage: "Internal error",
		},
		{
			name:        "internal",
			err:         jsonrpc.InternalError("broken", nil),
			wantCode:    jsonrpc.CodeInternalError,
			wantMessage: "Internal error",
		},
		{
			name:        "json",
			err:         jsonrpc.JSONError(errors.New("unexpected end of JSON input")),
			wantCode:    jsonrpc.CodeParseError,
			wantMessage: "Parse error",
		},
		{
			name:        "protocol",
			err:         jsonrpc.ProtocolError("bad version"),
			wantCode:    jsonrpc.CodeInvalidRequest,
			wantMessage: "Invalid Request",
		},
		{
			name:        "untagged",
			err:         errors.New("disk on fire"),
			wantCode:    jsonrpc.CodeInternalError,
			wantMessage: "Internal error: disk on fire",
		},
		{
			name:        "transport falls through",
			err:         jsonrpc.TransportError("send failed", nil),
			wantCode:    jsonrpc.CodeInternalError,
			wantMessage: "Internal error: [JSONRPC-002] send failed",
		},
		{
			name:        "wrapped tag is found",
			err:         fmt.Errorf("outer: %w", jsonrpc.NotFoundError("x")),
			wantCode:    jsonrpc.CodeMethodNotFound,
			wantMessage: "Method not found",
		},
		{
			name:        "invalid params inside execution error",
			err:         jsonrpc.ExecutionError(jsonrpc.InvalidParamsError("bad", nil)),
			wantCode:    jsonrpc.CodeInvalidParams,
			wantMessage: "Invalid params",
		},
		{
			name:        "not found wins over everything",
			err:         jsonrpc.NewError(jsonrpc.SeverityError, "JSONRPC-004|PARAM-INVALID|TOOL-NOTFOUND", "x"),
			wantCode:    jsonrpc.CodeMethodNotFound,
			wantMessage: "Method not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, message := jsonrpc.MapError(tt.err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantMessage, message)
			assert.True(t, jsonrpc.ValidErrorCode(code))
		})
	}
}

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("boom")
	err := jsonrpc.TransportError("failed to send", cause)

	assert.Equal(t, "[JSONRPC-002] failed to send: boom", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "[JSONRPC-004] bad", jsonrpc.ProtocolError("bad").Error())
	assert.Equal(t, jsonrpc.SeverityCritical, jsonrpc.InternalError("x", nil).Severity)
	assert.Equal(t, "critical", jsonrpc.SeverityCritical.String())
	assert.Equal(t, "error", jsonrpc.SeverityError.String())
	assert.Equal(t, cause, err.Unwrap())
}

func TestDomainErrorKeepsInnerTag(t *testing.T) {
	err := jsonrpc.DomainError("notification failed", jsonrpc.InvalidParamsError("bad", nil))
	code, _ := jsonrpc.MapError(err)
	assert.Equal(t, jsonrpc.CodeInvalidParams, code)

	plain := jsonrpc.DomainError("failed", errors.New("boom"))
	assert.Equal(t, jsonrpc.RefDomain, jsonrpc.Reference(plain))
	code, _ = jsonrpc.MapError(plain)
	assert.Equal(t, jsonrpc.CodeInternalError, code)
}

func TestNewErrorResponse(t *testing.T) {
	err := jsonrpc.NotFoundError("missing")
	resp := jsonrpc.NewErrorResponse(jsonrpc.NumberID(3), err)

	require.NoError(t, resp.Validate())
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.CodeMethodNotFound, resp.Error.Code)
	assert.Equal(t, map[string]string{"error": err.Error()}, resp.Error.Data)
	assert.Equal(t, jsonrpc.NumberID(3), resp.ID)
}
