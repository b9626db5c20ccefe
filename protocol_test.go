package jsonrpc_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MegaGrindStone/go-jsonrpc"
)

func TestIDJSON(t *testing.T) {
	tests := []struct {
		name string
		json string
		want jsonrpc.ID
	}{
		{name: "null", json: `null`, want: jsonrpc.NullID()},
		{name: "string", json: `"abc"`, want: jsonrpc.StringID("abc")},
		{name: "numeric string", json: `"42"`, want: jsonrpc.StringID("42")},
		{name: "number", json: `42`, want: jsonrpc.NumberID(42)},
		{name: "negative", json: `-7`, want: jsonrpc.NumberID(-7)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id jsonrpc.ID
			require.NoError(t, json.Unmarshal([]byte(tt.json), &id))
			assert.Equal(t, tt.want, id)

			bs, err := json.Marshal(id)
			require.NoError(t, err)
			assert.JSONEq(t, tt.json, string(bs))
		})
	}
}

func TestIDRejectsOtherTypes(t *testing.T) {
	for _, raw := range []string{`1.5`, `true`, `{}`, `[1]`} {
		var id jsonrpc.ID
		assert.Error(t, json.Unmarshal([]byte(raw), &id), raw)
	}
}

func TestIDString(t *testing.T) {
	assert.Equal(t, "null", jsonrpc.NullID().String())
	assert.Equal(t, "abc", jsonrpc.StringID("abc").String())
	assert.Equal(t, "42", jsonrpc.NumberID(42).String())
	assert.NotEqual(t, jsonrpc.StringID("42"), jsonrpc.NumberID(42))
}

func TestRequestRequiresIDMember(t *testing.T) {
	var req jsonrpc.Request
	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"echo","id":null}`), &req))
	assert.True(t, req.ID.IsNull())

	err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"echo"}`), &req)
	assert.Error(t, err)
}

func TestNotificationRejectsIDMember(t *testing.T) {
	var n jsonrpc.Notification
	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"log","params":[1]}`), &n))
	assert.Equal(t, "log", n.Method)
	assert.JSONEq(t, `[1]`, string(n.Params))

	assert.Error(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"log","id":null}`), &n))
}

func TestParseCall(t *testing.T) {
	req, n, err := jsonrpc.ParseCall([]byte(`{"jsonrpc":"2.0","method":"echo","params":{"a":1},"id":7}`))
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Nil(t, n)
	assert.Equal(t, jsonrpc.NumberID(7), req.ID)

	req, n, err = jsonrpc.ParseCall([]byte(`{"jsonrpc":"2.0","method":"echo"}`))
	require.NoError(t, err)
	assert.Nil(t, req)
	require.NotNil(t, n)

	_, _, err = jsonrpc.ParseCall([]byte(`{"jsonrpc":"2.0","method":"echo","id":1.5}`))
	assert.Error(t, err)

	_, _, err = jsonrpc.ParseCall([]byte(`{"jsonrpc":"2.0","id":1}`))
	assert.Error(t, err)
}

func TestParseCallKeepsWrongVersionForValidation(t *testing.T) {
	req, _, err := jsonrpc.ParseCall([]byte(`{"jsonrpc":2,"method":"echo","id":"x"}`))
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Error(t, req.Validate())
	assert.Equal(t, jsonrpc.StringID("x"), req.ID)
}

func TestParseBatch(t *testing.T) {
	batch, err := jsonrpc.ParseBatch([]byte(`[
		{"jsonrpc":"2.0","method":"a","id":1},
		{"jsonrpc":"2.0","method":"b"},
		42
	]`))
	require.NoError(t, err)
	require.Len(t, batch, 3)

	assert.NotNil(t, batch[0].Request)
	assert.NotNil(t, batch[1].Notification)
	require.Error(t, batch[2].Err)
	assert.Equal(t, jsonrpc.RefProtocol, jsonrpc.Reference(batch[2].Err))

	assert.False(t, batch.Requests())
	assert.False(t, batch.Notifications())
	assert.True(t, batch[:1].Requests())
	assert.True(t, batch[1:2].Notifications())
}

func TestBatchMarshal(t *testing.T) {
	batch := jsonrpc.Batch{
		{Request: &jsonrpc.Request{JSONRPC: jsonrpc.Version, Method: "a", ID: jsonrpc.NumberID(1)}},
		{Notification: &jsonrpc.Notification{JSONRPC: jsonrpc.Version, Method: "b"}},
	}
	bs, err := json.Marshal(batch)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"jsonrpc":"2.0","method":"a","id":1},{"jsonrpc":"2.0","method":"b"}]`, string(bs))

	_, err = json.Marshal(jsonrpc.Batch{{}})
	assert.Error(t, err)
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     jsonrpc.Request
		wantErr bool
	}{
		{name: "valid", req: jsonrpc.Request{JSONRPC: "2.0", Method: "echo"}},
		{name: "wrong version", req: jsonrpc.Request{JSONRPC: "1.0", Method: "echo"}, wantErr: true},
		{name: "empty method", req: jsonrpc.Request{JSONRPC: "2.0"}, wantErr: true},
		{name: "reserved method", req: jsonrpc.Request{JSONRPC: "2.0", Method: "rpc.discover"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, jsonrpc.RefProtocol, jsonrpc.Reference(err))
		})
	}
}

func TestResponseValidate(t *testing.T) {
	errObj := &jsonrpc.ErrorObject{Code: jsonrpc.CodeInternalError, Message: "Internal error"}

	tests := []struct {
		name    string
		resp    jsonrpc.Response
		wantErr bool
	}{
		{name: "result", resp: jsonrpc.Response{JSONRPC: "2.0", Result: json.RawMessage(`{"a":1}`)}},
		{name: "null result", resp: jsonrpc.Response{JSONRPC: "2.0", Result: json.RawMessage(`null`)}},
		{name: "error", resp: jsonrpc.Response{JSONRPC: "2.0", Error: errObj}},
		{
			name:    "both",
			resp:    jsonrpc.Response{JSONRPC: "2.0", Result: json.RawMessage(`1`), Error: errObj},
			wantErr: true,
		},
		{name: "neither", resp: jsonrpc.Response{JSONRPC: "2.0"}, wantErr: true},
		{name: "wrong version", resp: jsonrpc.Response{JSONRPC: "1.0", Result: json.RawMessage(`1`)}, wantErr: true},
		{name: "invalid result", resp: jsonrpc.Response{JSONRPC: "2.0", Result: json.RawMessage(`{`)}, wantErr: true},
		{
			name:    "error code out of range",
			resp:    jsonrpc.Response{JSONRPC: "2.0", Error: &jsonrpc.ErrorObject{Code: -1, Message: "x"}},
			wantErr: true,
		},
		{
			name:    "empty error message",
			resp:    jsonrpc.Response{JSONRPC: "2.0", Error: &jsonrpc.ErrorObject{Code: jsonrpc.CodeInternalError}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.resp.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidErrorCode(t *testing.T) {
	for _, code := range []int{-32700, -32600, -32601, -32602, -32603, -32000, -32050, -32099} {
		assert.True(t, jsonrpc.ValidErrorCode(code), code)
	}
	for _, code := range []int{0, -1, -31999, -32100, -32604, -32701} {
		assert.False(t, jsonrpc.ValidErrorCode(code), code)
	}
}

func TestResponseJSONShape(t *testing.T) {
	resp := jsonrpc.Response{JSONRPC: jsonrpc.Version, Result: json.RawMessage(`{"text":"hi"}`), ID: jsonrpc.NumberID(1)}
	bs, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Equal(t, `{"jsonrpc":"2.0","result":{"text":"hi"},"id":1}`, string(bs))

	var decoded jsonrpc.Response
	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","result":null,"id":"a"}`), &decoded))
	assert.NoError(t, decoded.Validate())
	assert.Equal(t, jsonrpc.StringID("a"), decoded.ID)
}
