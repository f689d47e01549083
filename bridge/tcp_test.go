package bridge_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blender-mcp-bridge/bridge"
	"blender-mcp-bridge/hostsim"
)

func startSim(t *testing.T) *hostsim.Server {
	t.Helper()
	srv, err := hostsim.Listen("127.0.0.1:0", hostsim.NewScene(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func TestTCPHostRoundTrip(t *testing.T) {
	srv := startSim(t)
	host := bridge.NewTCPHost(srv.Addr(), time.Second, nil)
	defer host.Close()

	resp, err := host.Send(context.Background(), "create_object", map[string]any{"type": "SPHERE", "name": "Ball"})
	require.NoError(t, err)
	assert.Equal(t, "Ball", resp.ResultMap()["name"])
	assert.True(t, host.Connected())

	resp, err = host.Send(context.Background(), "get_scene_info", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, resp.ResultMap()["object_count"])
	assert.Len(t, srv.Scene().Objects(), 1)
}

func TestTCPHostErrorStatus(t *testing.T) {
	srv := startSim(t)
	host := bridge.NewTCPHost(srv.Addr(), time.Second, nil)
	defer host.Close()

	_, err := host.Send(context.Background(), "delete_object", map[string]any{"name": "Ghost"})
	var hostErr *bridge.HostError
	require.ErrorAs(t, err, &hostErr)
	assert.Equal(t, "delete_object", hostErr.Command)
	assert.Equal(t, "Object not found: Ghost", hostErr.Message)
	assert.True(t, host.Connected(), "a host-reported error keeps the connection")
}

func TestTCPHostNotConnected(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	host := bridge.NewTCPHost(addr, 200*time.Millisecond, nil)
	_, err = host.Send(context.Background(), "get_scene_info", nil)
	assert.ErrorIs(t, err, bridge.ErrNotConnected)
	assert.False(t, host.Connected())
}

func TestTCPHostRedialsAfterDrop(t *testing.T) {
	srv := startSim(t)
	host := bridge.NewTCPHost(srv.Addr(), time.Second, nil)
	defer host.Close()

	_, err := host.Send(context.Background(), "get_scene_info", nil)
	require.NoError(t, err)

	srv.DropConnections()

	// The stale connection fails exactly once, without a retry.
	_, err = host.Send(context.Background(), "create_object", nil)
	require.Error(t, err)
	assert.False(t, host.Connected())
	assert.Empty(t, srv.Scene().Objects())

	_, err = host.Send(context.Background(), "create_object", nil)
	require.NoError(t, err)
	assert.Len(t, srv.Scene().Objects(), 1)
}

// A response split across several writes must still decode as one value.
func TestTCPHostSplitResponse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		_, _ = conn.Read(buf)
		for _, part := range []string{`{"status": "succ`, `ess", "result": {"na`, `me": "Scene"}}`} {
			_, _ = conn.Write([]byte(part))
			time.Sleep(10 * time.Millisecond)
		}
	}()

	host := bridge.NewTCPHost(ln.Addr().String(), time.Second, nil)
	defer host.Close()
	resp, err := host.Send(context.Background(), "get_scene_info", nil)
	require.NoError(t, err)
	assert.Equal(t, "Scene", resp.ResultMap()["name"])
}

func TestTCPHostContextTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(time.Second)
	}()

	host := bridge.NewTCPHost(ln.Addr().String(), time.Second, nil)
	defer host.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = host.Send(ctx, "get_scene_info", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.False(t, host.Connected())
}

func TestTCPHostConnectedDuringSlowCommand(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		accepted <- conn
	}()

	host := bridge.NewTCPHost(ln.Addr().String(), time.Second, nil)
	defer host.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sent := make(chan error, 1)
	go func() {
		_, err := host.Send(ctx, "execute_code", map[string]any{"code": "import time; time.sleep(600)"})
		sent <- err
	}()

	conn := <-accepted
	defer conn.Close()

	// The host never answers, so Send keeps the connection busy.
	assert.Eventually(t, host.Connected, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-sent:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Send did not return after cancellation")
	}
	assert.False(t, host.Connected())
}
