package jsonrpc_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MegaGrindStone/go-jsonrpc"
)

func TestToDomainRequest(t *testing.T) {
	dreq, err := jsonrpc.ToDomainRequest(jsonrpc.Request{
		JSONRPC: jsonrpc.Version,
		Method:  "echo",
		Params:  json.RawMessage(`{"text":"hi"}`),
		ID:      jsonrpc.NumberID(1),
	})
	require.NoError(t, err)
	assert.Equal(t, "1", dreq.ID)
	assert.Equal(t, jsonrpc.NumberID(1), dreq.RequestID)
	assert.Equal(t, "echo", dreq.Tool)
	assert.JSONEq(t, `{"text":"hi"}`, string(dreq.Params))
}

func TestToDomainRequestDefaultsParamsToNull(t *testing.T) {
	dreq, err := jsonrpc.ToDomainRequest(jsonrpc.Request{JSONRPC: jsonrpc.Version, Method: "ping"})
	require.NoError(t, err)
	assert.Equal(t, "null", dreq.ID)
	assert.Equal(t, "null", string(dreq.Params))
}

func TestToDomainRequestRejectsInvalid(t *testing.T) {
	_, err := jsonrpc.ToDomainRequest(jsonrpc.Request{JSONRPC: "1.0", Method: "echo"})
	require.Error(t, err)
	assert.Equal(t, jsonrpc.RefProtocol, jsonrpc.Reference(err))
}

func TestToWireResponse(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		resp, err := jsonrpc.ToWireResponse(jsonrpc.Success(json.RawMessage(`{"sum":3}`)), jsonrpc.StringID("a"))
		require.NoError(t, err)
		assert.Nil(t, resp.Error)
		assert.JSONEq(t, `{"sum":3}`, string(resp.Result))
		assert.Equal(t, jsonrpc.StringID("a"), resp.ID)
	})

	t.Run("empty success is null", func(t *testing.T) {
		resp, err := jsonrpc.ToWireResponse(jsonrpc.Success(nil), jsonrpc.NumberID(1))
		require.NoError(t, err)
		assert.Equal(t, "null", string(resp.Result))
	})

	t.Run("failure", func(t *testing.T) {
		resp, err := jsonrpc.ToWireResponse(jsonrpc.Failure(errors.New("boom")), jsonrpc.NumberID(2))
		require.NoError(t, err)
		require.NotNil(t, resp.Error)
		assert.Equal(t, jsonrpc.CodeServerErrorStart, resp.Error.Code)
		assert.Equal(t, "Server error", resp.Error.Message)
		assert.Equal(t, map[string]string{"error": "boom"}, resp.Error.Data)
		assert.Empty(t, resp.Result)
	})

	t.Run("invalid params failure", func(t *testing.T) {
		resp, err := jsonrpc.ToWireResponse(
			jsonrpc.Failure(jsonrpc.InvalidParamsError("a is required", nil)), jsonrpc.NumberID(3))
		require.NoError(t, err)
		assert.Equal(t, jsonrpc.CodeInvalidParams, resp.Error.Code)
	})

	t.Run("malformed result", func(t *testing.T) {
		_, err := jsonrpc.ToWireResponse(jsonrpc.Success(json.RawMessage(`{"open":`)), jsonrpc.NumberID(4))
		require.Error(t, err)
		assert.Equal(t, jsonrpc.RefInternal, jsonrpc.Reference(err))
	})
}

func TestParseID(t *testing.T) {
	assert.Equal(t, jsonrpc.NullID(), jsonrpc.ParseID("null"))
	assert.Equal(t, jsonrpc.NumberID(42), jsonrpc.ParseID("42"))
	assert.Equal(t, jsonrpc.StringID("abc"), jsonrpc.ParseID("abc"))

	// The textual form does not keep the tag: a numeric-looking string comes back as a number.
	id := jsonrpc.StringID("42")
	assert.Equal(t, jsonrpc.NumberID(42), jsonrpc.ParseID(id.String()))
}
