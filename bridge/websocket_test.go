package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHost(t *testing.T, h *WebSocketHost) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, h.Connected, time.Second, 10*time.Millisecond)
	return conn
}

func TestWebSocketHostNotConnected(t *testing.T) {
	h := NewWebSocketHost(nil)
	_, err := h.Send(context.Background(), "get_scene_info", nil)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestWebSocketHostCorrelatesByID(t *testing.T) {
	h := NewWebSocketHost(nil)
	client := dialHost(t, h)

	go func() {
		var req Request
		if err := client.ReadJSON(&req); err != nil {
			return
		}
		_ = client.WriteJSON(Response{ID: "someone-else", Status: StatusSuccess, Result: "ignored"})
		_ = client.WriteJSON(Response{ID: req.ID, Status: StatusSuccess, Result: map[string]any{"type": req.Type}})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := h.Send(ctx, "get_scene_info", nil)
	require.NoError(t, err)
	assert.Equal(t, "get_scene_info", resp.ResultMap()["type"])
}

func TestWebSocketHostErrorStatus(t *testing.T) {
	h := NewWebSocketHost(nil)
	client := dialHost(t, h)

	go func() {
		var req Request
		if err := client.ReadJSON(&req); err != nil {
			return
		}
		_ = client.WriteJSON(Response{ID: req.ID, Status: StatusError, Message: "boom"})
	}()

	_, err := h.Send(context.Background(), "execute_code", map[string]any{"code": "x"})
	var hostErr *HostError
	require.ErrorAs(t, err, &hostErr)
	assert.Equal(t, "boom", hostErr.Message)
}

func TestWebSocketHostSendTimeout(t *testing.T) {
	h := NewWebSocketHost(nil)
	dialHost(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := h.Send(ctx, "get_scene_info", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()
	assert.Empty(t, h.pending)
}
