package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MegaGrindStone/go-jsonrpc/internal/config"
)

func execute(ctx context.Context, stdin string, args ...string) (string, error) {
	var stdout bytes.Buffer
	cmd := newApp(strings.NewReader(stdin), &stdout, io.Discard).root()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), err
}

func TestCapabilitiesCommand(t *testing.T) {
	out, err := execute(context.Background(), "", "capabilities", "--expose", "e*")
	require.NoError(t, err)
	assert.Equal(t, "echo\nenv\n", out)

	t.Setenv("JSONRPCD_CAPABILITIES_EXPOSE", "add,upper")
	out, err = execute(context.Background(), "", "capabilities")
	require.NoError(t, err)
	assert.Equal(t, "add\nupper\n", out)
}

func TestCapabilitiesFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jsonrpcd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
capabilities:
  sets: [filesystem, memory]
  expose: ["fs/list_*", "memory/read_graph"]
  filesystem:
    roots: [`+dir+`]
  memory:
    file: `+filepath.Join(dir, "memory.json")+`
`), 0600))

	out, err := execute(context.Background(), "", "capabilities", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "fs/list_allowed_directories\nfs/list_directory\nmemory/read_graph\n", out)
}

func TestCapabilitiesRejectsInvalidConfig(t *testing.T) {
	_, err := execute(context.Background(), "", "capabilities", "--sets", "filesystem")
	assert.ErrorContains(t, err, "capabilities.filesystem.roots is required")
}

func TestCallInProcess(t *testing.T) {
	out, err := execute(context.Background(), "", "call", "echo", `{"message":"hi"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"hi"}`, out)

	_, err = execute(context.Background(), "", "call", "fail", `{"message":"boom"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code -32000")

	_, err = execute(context.Background(), "", "call", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code -32601")

	_, err = execute(context.Background(), "", "call", "echo", `{"message":`)
	assert.ErrorContains(t, err, "not valid JSON")

	out, err = execute(context.Background(), "", "call", "--notify", "echo", `{"message":"quiet"}`)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestConfigCommand(t *testing.T) {
	out, err := execute(context.Background(), "", "config", "--log-level", "debug")
	require.NoError(t, err)
	assert.Contains(t, out, `network = "stdio"`)
	assert.Contains(t, out, `level = "debug"`)
}

func TestServeStdio(t *testing.T) {
	stdin := `{"jsonrpc":"2.0","method":"add","params":{"a":1,"b":2},"id":1}` + "\n"

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out, err := execute(ctx, stdin, "serve")
	require.NoError(t, err)

	var resp struct {
		ID     int             `json:"id"`
		Result json.RawMessage `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &resp))
	assert.Equal(t, 1, resp.ID)
	assert.JSONEq(t, `{"sum":3}`, string(resp.Result))
}

func TestServeUnixAndCall(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "jsonrpcd.sock")

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		_, err := execute(ctx, "", "serve", "--network", "unix", "--address", sock)
		served <- err
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(sock)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	out, err := execute(context.Background(), "", "call", "--network", "unix", "--address", sock,
		"upper", `{"text":"shout"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `"SHOUT"`, out)

	cancel()
	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
	_, err = os.Stat(sock)
	assert.True(t, os.IsNotExist(err))
}

func TestMessageURL(t *testing.T) {
	cfg := config.Default()
	cfg.Listen.Address = ":8080"
	got, err := messageURL(cfg)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/message", got)

	cfg.Listen.Address = "10.0.0.1:9000"
	got, err = messageURL(cfg)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.1:9000/message", got)

	cfg.SSE.BaseURL = "https://rpc.example.com/"
	got, err = messageURL(cfg)
	require.NoError(t, err)
	assert.Equal(t, "https://rpc.example.com/message", got)

	cfg.SSE.BaseURL = ""
	cfg.Listen.Address = "no-port"
	_, err = messageURL(cfg)
	assert.Error(t, err)
}
