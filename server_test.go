package jsonrpc_test

import (
	"context"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MegaGrindStone/go-jsonrpc"
)

func startNetServer(
	t *testing.T,
	network, address string,
	options ...jsonrpc.ServerOption,
) (*jsonrpc.NetListener, jsonrpc.Server) {
	t.Helper()

	listener, err := jsonrpc.Listen(network, address, jsonrpc.WithNetListenerLogger(testLogger()))
	require.NoError(t, err)

	options = append([]jsonrpc.ServerOption{jsonrpc.WithServerLogger(testLogger())}, options...)
	srv := jsonrpc.NewServer(testRegistry(t), listener, options...)
	go srv.Serve()

	return listener, srv
}

func dialClient(t *testing.T, addr net.Addr) *jsonrpc.Client {
	t.Helper()

	conn, err := net.Dial(addr.Network(), addr.String())
	require.NoError(t, err)

	client := jsonrpc.NewClient(jsonrpc.NewStreamTransport(conn, conn, jsonrpc.WithStreamCloser(conn)))
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestServerOverTCP(t *testing.T) {
	var mu sync.Mutex
	var connected, disconnected []string

	listener, srv := startNetServer(t, "tcp", "127.0.0.1:0",
		jsonrpc.WithServerOnConnected(func(id string) {
			mu.Lock()
			defer mu.Unlock()
			connected = append(connected, id)
		}),
		jsonrpc.WithServerOnDisconnected(func(id string) {
			mu.Lock()
			defer mu.Unlock()
			disconnected = append(disconnected, id)
		}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first := dialClient(t, listener.Addr())
	second := dialClient(t, listener.Addr())

	var got string
	require.NoError(t, first.Call(ctx, "echo", "one", &got))
	assert.Equal(t, "one", got)
	require.NoError(t, second.Call(ctx, "echo", "two", &got))
	assert.Equal(t, "two", got)

	require.NoError(t, srv.Shutdown(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, connected, 2)
	assert.ElementsMatch(t, connected, disconnected)
}

func TestServerOverUnixSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jsonrpc.sock")
	listener, srv := startNetServer(t, "unix", path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := dialClient(t, listener.Addr())

	var sum map[string]any
	require.NoError(t, client.Call(ctx, "echo", map[string]int{"sum": 3}, &sum))
	assert.Equal(t, map[string]any{"sum": float64(3)}, sum)

	require.NoError(t, srv.Shutdown(ctx))
	assert.NoFileExists(t, path)
}

func TestServerConnectionsAreIndependent(t *testing.T) {
	listener, srv := startNetServer(t, "tcp", "127.0.0.1:0")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// A connection stuck in a long invocation must not hold up another one.
	blocked := dialClient(t, listener.Addr())
	blockedDone := make(chan error, 1)
	go func() {
		blockedDone <- blocked.Call(ctx, "wait", nil, nil)
	}()

	other := dialClient(t, listener.Addr())
	var got int
	require.NoError(t, other.Call(ctx, "echo", 7, &got))
	assert.Equal(t, 7, got)

	// Shutdown cancels the in-flight invocation.
	require.NoError(t, srv.Shutdown(ctx))
	select {
	case err := <-blockedDone:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("blocked call did not return after shutdown")
	}
}

func TestListenRejectsUnknownNetwork(t *testing.T) {
	_, err := jsonrpc.Listen("udp", "127.0.0.1:0")
	assert.Error(t, err)
}

func TestNetListenerShutdownWithoutServe(t *testing.T) {
	listener, err := jsonrpc.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, listener.Shutdown(ctx))
}
