// Package leader runs the bridge process that owns the host connection.
// Other bridge processes reach it over local HTTP.
package leader

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"blender-mcp-bridge/bridge"
	"blender-mcp-bridge/command"
	"blender-mcp-bridge/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Version is reported by /ping.
var Version = "0.1.0"

// Leader serves /ping, /rpc and optionally /metrics and /ws, and runs every
// command through one dispatcher so they execute in arrival order.
type Leader struct {
	addr           string
	commandTimeout time.Duration
	host           bridge.Host
	dispatcher     *command.Dispatcher
	metricsPath    string
	metrics        http.Handler
	logger         *zap.Logger

	listener net.Listener
	server   *http.Server
	wg       sync.WaitGroup
}

type Option func(*Leader)

func WithLogger(l *zap.Logger) Option {
	return func(ld *Leader) { ld.logger = l }
}

// WithMetrics serves h at path.
func WithMetrics(path string, h http.Handler) Option {
	return func(ld *Leader) {
		ld.metricsPath = path
		ld.metrics = h
	}
}

func New(cfg config.BridgeConfig, host bridge.Host, dispatcher *command.Dispatcher, opts ...Option) *Leader {
	l := &Leader{
		addr:           cfg.Addr,
		commandTimeout: cfg.CommandTimeout,
		host:           host,
		dispatcher:     dispatcher,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(zap.String("component", "leader"))
	return l
}

// Start binds the coordination address. It fails fast when another process
// holds it; the leader then releases its dispatcher and must not be reused.
func (l *Leader) Start() error {
	listener, err := net.Listen("tcp", l.addr)
	if err != nil {
		l.dispatcher.Close()
		return err
	}
	l.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/ping", l.handlePing)
	mux.HandleFunc("/rpc", l.handleRPC)
	if l.metrics != nil && l.metricsPath != "" {
		mux.Handle(l.metricsPath, l.metrics)
	}
	if ws, ok := l.host.(*bridge.WebSocketHost); ok {
		mux.HandleFunc("/ws", ws.HandleWebSocket)
	}

	l.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.logger.Info("leader listening", zap.String("addr", listener.Addr().String()))
		if err := l.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error("leader server failed", zap.Error(err))
		}
	}()
	return nil
}

// Addr is the bound address, which differs from the configured one for port 0.
func (l *Leader) Addr() string {
	if l.listener == nil {
		return l.addr
	}
	return l.listener.Addr().String()
}

// Stop shuts the HTTP server down, fails queued commands and drops the host connection.
func (l *Leader) Stop() {
	if l.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.server.Shutdown(ctx); err != nil {
			l.logger.Warn("leader shutdown", zap.Error(err))
		}
	}
	l.wg.Wait()
	l.dispatcher.Close()
	if err := l.host.Close(); err != nil {
		l.logger.Debug("closing host connection", zap.Error(err))
	}
}

// Dispatch runs cmd locally under the per-command timeout.
func (l *Leader) Dispatch(ctx context.Context, cmd command.Command) (any, error) {
	if l.commandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.commandTimeout)
		defer cancel()
	}
	return l.dispatcher.Dispatch(ctx, cmd)
}

func (l *Leader) handlePing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        Version,
		"host_connected": l.host.Connected(),
	})
}

func (l *Leader) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var cmd command.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeJSON(w, http.StatusBadRequest, command.Result{Error: "invalid request body", Kind: command.KindValidation})
		return
	}

	data, err := l.Dispatch(r.Context(), cmd)
	if err != nil {
		writeJSON(w, http.StatusOK, command.Failure(err))
		return
	}
	writeJSON(w, http.StatusOK, command.Success(data))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
