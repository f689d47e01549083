package bridge

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocketHost serves hosts that dial in instead of listening.
// The newest connection replaces any previous one.
type WebSocketHost struct {
	upgrader  websocket.Upgrader
	connMu    sync.RWMutex
	conn      *websocket.Conn
	writeMu   sync.Mutex
	pending   map[string]chan Response
	pendingMu sync.Mutex
	logger    *zap.Logger
}

func NewWebSocketHost(logger *zap.Logger) *WebSocketHost {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHost{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		pending: make(map[string]chan Response),
		logger:  logger.With(zap.String("component", "ws_host")),
	}
}

// HandleWebSocket upgrades the request and adopts the connection.
func (h *WebSocketHost) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	h.logger.Info("host connected", zap.String("remote", r.RemoteAddr))
	h.setConn(conn)
	go h.readLoop(conn)
}

func (h *WebSocketHost) Connected() bool {
	return h.getConn() != nil
}

func (h *WebSocketHost) Send(ctx context.Context, commandType string, params map[string]any) (Response, error) {
	conn := h.getConn()
	if conn == nil {
		return Response{}, ErrNotConnected
	}

	req := newRequest(commandType, params)
	req.ID = uuid.NewString()

	data, err := json.Marshal(req)
	if err != nil {
		return Response{}, err
	}

	respCh := make(chan Response, 1)
	h.pendingMu.Lock()
	h.pending[req.ID] = respCh
	h.pendingMu.Unlock()

	h.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	h.writeMu.Unlock()
	if err != nil {
		h.forget(req.ID)
		return Response{}, err
	}

	select {
	case resp := <-respCh:
		if err := resp.Err(commandType); err != nil {
			return resp, err
		}
		return resp, nil
	case <-ctx.Done():
		h.forget(req.ID)
		return Response{}, ctx.Err()
	}
}

func (h *WebSocketHost) Close() error {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.conn == nil {
		return nil
	}
	err := h.conn.Close()
	h.conn = nil
	return err
}

func (h *WebSocketHost) setConn(conn *websocket.Conn) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.conn != nil {
		_ = h.conn.Close()
	}
	h.conn = conn
}

func (h *WebSocketHost) getConn() *websocket.Conn {
	h.connMu.RLock()
	defer h.connMu.RUnlock()
	return h.conn
}

func (h *WebSocketHost) clearConn(conn *websocket.Conn) {
	h.connMu.Lock()
	if h.conn == conn {
		h.conn = nil
	}
	h.connMu.Unlock()
}

func (h *WebSocketHost) readLoop(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			h.logger.Info("host disconnected", zap.Error(err))
			h.clearConn(conn)
			return
		}
		var resp Response
		if err := json.Unmarshal(payload, &resp); err != nil {
			h.logger.Warn("invalid response from host", zap.Error(err))
			continue
		}
		h.pendingMu.Lock()
		ch := h.pending[resp.ID]
		if ch != nil {
			delete(h.pending, resp.ID)
		}
		h.pendingMu.Unlock()
		if ch != nil {
			ch <- resp
		}
	}
}

func (h *WebSocketHost) forget(id string) {
	h.pendingMu.Lock()
	delete(h.pending, id)
	h.pendingMu.Unlock()
}
