package jsonrpc_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MegaGrindStone/go-jsonrpc"
)

// scriptedTransport replays inbound messages and records outbound ones.
type scriptedTransport struct {
	inbound    []string
	receiveErr error
	sendErr    error

	mu   sync.Mutex
	sent []string
}

func (s *scriptedTransport) Receive(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.inbound) == 0 {
		if s.receiveErr != nil {
			return "", s.receiveErr
		}
		return "", jsonrpc.ErrConnectionClosed
	}
	msg := s.inbound[0]
	s.inbound = s.inbound[1:]
	return msg, nil
}

func (s *scriptedTransport) Send(_ context.Context, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, message)
	return nil
}

func (s *scriptedTransport) Close() error { return nil }

func (s *scriptedTransport) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry(t *testing.T) *jsonrpc.Registry {
	t.Helper()

	reg, err := jsonrpc.NewRegistryBuilder().
		Register("echo", echoCapability()).
		RegisterFunc("fail", func(context.Context, json.RawMessage) (json.RawMessage, error) {
			return nil, errors.New("boom")
		}).
		RegisterFunc("strict", func(context.Context, json.RawMessage) (json.RawMessage, error) {
			return nil, jsonrpc.InvalidParamsError("a is required", nil)
		}).
		RegisterFunc("broken", func(context.Context, json.RawMessage) (json.RawMessage, error) {
			return json.RawMessage(`{"unterminated":`), nil
		}).
		RegisterFunc("wait", func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}).
		Build()
	require.NoError(t, err)
	return reg
}

func newTestDispatcher(t *testing.T, options ...jsonrpc.DispatcherOption) *jsonrpc.Dispatcher {
	t.Helper()

	options = append([]jsonrpc.DispatcherOption{jsonrpc.WithDispatcherLogger(testLogger())}, options...)
	return jsonrpc.NewDispatcher(testRegistry(t), nil, options...)
}

func TestDispatch(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{
			name:    "echo request",
			message: `{"jsonrpc":"2.0","method":"echo","params":{"text":"hi"},"id":1}`,
			want:    `{"jsonrpc":"2.0","result":{"text":"hi"},"id":1}`,
		},
		{
			name:    "string id is kept",
			message: `{"jsonrpc":"2.0","method":"echo","params":[1],"id":"42"}`,
			want:    `{"jsonrpc":"2.0","result":[1],"id":"42"}`,
		},
		{
			name:    "absent params become null",
			message: `{"jsonrpc":"2.0","method":"echo","id":null}`,
			want:    `{"jsonrpc":"2.0","result":null,"id":null}`,
		},
		{
			name:    "unknown method",
			message: `{"jsonrpc":"2.0","method":"nope","id":2}`,
			want: `{"jsonrpc":"2.0","error":{"code":-32601,"message":"Method not found",` +
				`"data":{"error":"[TOOL-NOTFOUND] capability \"nope\" not found"}},"id":2}`,
		},
		{
			name:    "capability failure",
			message: `{"jsonrpc":"2.0","method":"fail","id":3}`,
			want: `{"jsonrpc":"2.0","error":{"code":-32000,"message":"Server error",` +
				`"data":{"error":"boom"}},"id":3}`,
		},
		{
			name:    "invalid params",
			message: `{"jsonrpc":"2.0","method":"strict","id":4}`,
			want: `{"jsonrpc":"2.0","error":{"code":-32602,"message":"Invalid params",` +
				`"data":{"error":"[PARAM-INVALID] a is required"}},"id":4}`,
		},
		{
			name:    "wrong version keeps id",
			message: `{"jsonrpc":"1.0","method":"echo","id":5}`,
			want: `{"jsonrpc":"2.0","error":{"code":-32600,"message":"Invalid Request",` +
				`"data":{"error":"[JSONRPC-004] invalid JSON-RPC version, must be exactly \"2.0\""}},"id":5}`,
		},
		{
			name:    "reserved method keeps id",
			message: `{"jsonrpc":"2.0","method":"rpc.internal","id":1}`,
			want: `{"jsonrpc":"2.0","error":{"code":-32600,"message":"Invalid Request",` +
				`"data":{"error":"[JSONRPC-004] method names that begin with \"rpc.\" are reserved"}},"id":1}`,
		},
	}

	d := newTestDispatcher(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.Dispatch(context.Background(), tt.message)
			assert.JSONEq(t, tt.want, got)
		})
	}
}

func TestDispatchMalformedInput(t *testing.T) {
	d := newTestDispatcher(t)

	tests := []struct {
		name     string
		message  string
		wantCode int
	}{
		{name: "not json", message: `not json`, wantCode: jsonrpc.CodeParseError},
		{name: "truncated", message: `{"jsonrpc":"2.0","method":`, wantCode: jsonrpc.CodeParseError},
		{name: "empty", message: ``, wantCode: jsonrpc.CodeParseError},
		{name: "scalar", message: `42`, wantCode: jsonrpc.CodeParseError},
		{name: "object without method", message: `{"foo":1}`, wantCode: jsonrpc.CodeParseError},
		{name: "method not a string", message: `{"jsonrpc":"2.0","method":5,"id":1}`, wantCode: jsonrpc.CodeParseError},
		{name: "bad id type", message: `{"jsonrpc":"2.0","method":"echo","id":{}}`, wantCode: jsonrpc.CodeParseError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp jsonrpc.Response
			require.NoError(t, json.Unmarshal([]byte(d.Dispatch(context.Background(), tt.message)), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.True(t, resp.ID.IsNull())
			assert.NoError(t, resp.Validate())
		})
	}
}

func TestDispatchNotificationsProduceNothing(t *testing.T) {
	d := newTestDispatcher(t)

	for _, msg := range []string{
		`[]`,
		`{"jsonrpc":"2.0","method":"echo","params":{}}`,
		`{"jsonrpc":"2.0","method":"unknown"}`,
		`{"jsonrpc":"2.0","method":"fail"}`,
		`{"jsonrpc":"1.0","method":"echo"}`,
		`[{"jsonrpc":"2.0","method":"echo"},{"jsonrpc":"2.0","method":"fail"}]`,
	} {
		assert.Empty(t, d.Dispatch(context.Background(), msg), msg)
	}
}

func TestDispatchBatch(t *testing.T) {
	d := newTestDispatcher(t)

	out := d.Dispatch(context.Background(), `[
		{"jsonrpc":"2.0","method":"echo","params":1,"id":1},
		{"jsonrpc":"2.0","method":"echo","params":2},
		{"jsonrpc":"2.0","method":"nope","id":2},
		{"foo":"bar"},
		{"jsonrpc":"2.0","method":"echo","params":3,"id":"three"}
	]`)

	var resps []jsonrpc.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resps))
	require.Len(t, resps, 4)

	assert.Equal(t, jsonrpc.NumberID(1), resps[0].ID)
	assert.JSONEq(t, `1`, string(resps[0].Result))

	assert.Equal(t, jsonrpc.NumberID(2), resps[1].ID)
	assert.Equal(t, jsonrpc.CodeMethodNotFound, resps[1].Error.Code)

	assert.True(t, resps[2].ID.IsNull())
	assert.Equal(t, jsonrpc.CodeInvalidRequest, resps[2].Error.Code)

	assert.Equal(t, jsonrpc.StringID("three"), resps[3].ID)
	assert.JSONEq(t, `3`, string(resps[3].Result))
}

func TestDispatchInvalidResultBecomesInternalError(t *testing.T) {
	d := newTestDispatcher(t)

	var resp jsonrpc.Response
	require.NoError(t, json.Unmarshal(
		[]byte(d.Dispatch(context.Background(), `{"jsonrpc":"2.0","method":"broken","id":9}`)), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.CodeInternalError, resp.Error.Code)
	assert.Equal(t, jsonrpc.NumberID(9), resp.ID)
}

func TestDispatchInvocationTimeout(t *testing.T) {
	d := newTestDispatcher(t, jsonrpc.WithInvocationTimeout(10*time.Millisecond))

	var resp jsonrpc.Response
	require.NoError(t, json.Unmarshal(
		[]byte(d.Dispatch(context.Background(), `{"jsonrpc":"2.0","method":"wait","id":1}`)), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.CodeServerErrorStart, resp.Error.Code)
	assert.Equal(t, map[string]any{"error": context.DeadlineExceeded.Error()}, resp.Error.Data)
}

func TestDispatcherRun(t *testing.T) {
	transport := &scriptedTransport{inbound: []string{
		`{"jsonrpc":"2.0","method":"echo","params":"a","id":1}`,
		`{"jsonrpc":"2.0","method":"echo","params":"ignored"}`,
		`{"jsonrpc":"2.0","method":"echo","params":"b","id":2}`,
	}}
	d := jsonrpc.NewDispatcher(testRegistry(t), transport, jsonrpc.WithDispatcherLogger(testLogger()))

	require.NoError(t, d.Run(context.Background()))

	sent := transport.Sent()
	require.Len(t, sent, 2)
	assert.JSONEq(t, `{"jsonrpc":"2.0","result":"a","id":1}`, sent[0])
	assert.JSONEq(t, `{"jsonrpc":"2.0","result":"b","id":2}`, sent[1])
}

func TestDispatcherRunTransportFailures(t *testing.T) {
	t.Run("receive", func(t *testing.T) {
		cause := errors.New("reset by peer")
		transport := &scriptedTransport{receiveErr: cause}
		d := jsonrpc.NewDispatcher(testRegistry(t), transport, jsonrpc.WithDispatcherLogger(testLogger()))

		err := d.Run(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, jsonrpc.RefTransport, jsonrpc.Reference(err))
	})

	t.Run("send", func(t *testing.T) {
		cause := errors.New("broken pipe")
		transport := &scriptedTransport{
			inbound: []string{`{"jsonrpc":"2.0","method":"echo","id":1}`},
			sendErr: cause,
		}
		d := jsonrpc.NewDispatcher(testRegistry(t), transport, jsonrpc.WithDispatcherLogger(testLogger()))

		err := d.Run(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("close while sending is graceful", func(t *testing.T) {
		transport := &scriptedTransport{
			inbound: []string{`{"jsonrpc":"2.0","method":"echo","id":1}`},
			sendErr: jsonrpc.ErrConnectionClosed,
		}
		d := jsonrpc.NewDispatcher(testRegistry(t), transport, jsonrpc.WithDispatcherLogger(testLogger()))
		assert.NoError(t, d.Run(context.Background()))
	})

	t.Run("wrapped close is graceful", func(t *testing.T) {
		transport := &scriptedTransport{receiveErr: errors.Join(errors.New("eof"), jsonrpc.ErrConnectionClosed)}
		d := jsonrpc.NewDispatcher(testRegistry(t), transport, jsonrpc.WithDispatcherLogger(testLogger()))
		assert.NoError(t, d.Run(context.Background()))
	})

	t.Run("no transport", func(t *testing.T) {
		d := jsonrpc.NewDispatcher(testRegistry(t), nil, jsonrpc.WithDispatcherLogger(testLogger()))
		assert.Error(t, d.Run(context.Background()))
	})
}
