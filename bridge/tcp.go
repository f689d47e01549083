package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TCPHost talks to the addon's socket server. The wire has no framing: each
// side writes one JSON value and the reader decodes until the value is complete.
type TCPHost struct {
	addr        string
	dialTimeout time.Duration
	logger      *zap.Logger

	mu   sync.Mutex
	conn net.Conn
	dec  *jsoniter.Decoder

	// connected mirrors conn != nil so Connected never waits behind a Send.
	connected atomic.Bool
}

func NewTCPHost(addr string, dialTimeout time.Duration, logger *zap.Logger) *TCPHost {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TCPHost{
		addr:        addr,
		dialTimeout: dialTimeout,
		logger:      logger.With(zap.String("component", "tcp_host"), zap.String("addr", addr)),
	}
}

// Connected reports whether a connection is currently open. It does not probe the peer.
func (h *TCPHost) Connected() bool {
	return h.connected.Load()
}

// Send writes one command and reads exactly one response.
// Any I/O failure drops the connection; the next Send redials.
func (h *TCPHost) Send(ctx context.Context, commandType string, params map[string]any) (Response, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.ensureConn(ctx); err != nil {
		return Response{}, err
	}
	conn := h.conn

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	payload, err := json.Marshal(newRequest(commandType, params))
	if err != nil {
		return Response{}, fmt.Errorf("encoding %s: %w", commandType, err)
	}

	h.logger.Debug("sending command", zap.String("command", commandType), zap.Int("bytes", len(payload)))
	if _, err := conn.Write(payload); err != nil {
		h.dropLocked()
		return Response{}, h.ioError(ctx, "sending "+commandType, err)
	}

	var resp Response
	if err := h.dec.Decode(&resp); err != nil {
		h.dropLocked()
		return Response{}, h.ioError(ctx, "reading "+commandType+" response", err)
	}
	h.logger.Debug("received response", zap.String("command", commandType), zap.String("status", resp.Status))

	if err := resp.Err(commandType); err != nil {
		return resp, err
	}
	return resp, nil
}

// Close drops the connection.
func (h *TCPHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropLocked()
}

func (h *TCPHost) ensureConn(ctx context.Context) error {
	if h.conn != nil {
		return nil
	}
	dialCtx := ctx
	if h.dialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, h.dialTimeout)
		defer cancel()
	}
	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", h.addr)
	if err != nil {
		h.logger.Warn("could not connect to host", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	h.logger.Info("connected to host")
	h.conn = conn
	h.dec = json.NewDecoder(conn)
	h.connected.Store(true)
	return nil
}

func (h *TCPHost) dropLocked() error {
	if h.conn == nil {
		return nil
	}
	err := h.conn.Close()
	h.conn = nil
	h.dec = nil
	h.connected.Store(false)
	return err
}

func (h *TCPHost) ioError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		if _, ok := ctx.Deadline(); ok {
			return fmt.Errorf("%s: timed out waiting for host: %w", op, context.DeadlineExceeded)
		}
		return fmt.Errorf("%s: timed out waiting for host", op)
	}
	h.logger.Warn("connection to host lost", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%s: connection to host lost: %w", op, err)
}
