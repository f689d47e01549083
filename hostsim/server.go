package hostsim

import (
	"errors"
	"io"
	"net"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"blender-mcp-bridge/bridge"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server answers the addon socket protocol for a Scene.
type Server struct {
	scene  *Scene
	ln     net.Listener
	logger *zap.Logger

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// Listen binds addr and starts serving in the background. Use "127.0.0.1:0" in tests.
func Listen(addr string, scene *Scene, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		scene:  scene,
		ln:     ln,
		logger: logger.With(zap.String("component", "hostsim")),
		conns:  make(map[net.Conn]struct{}),
	}
	s.wg.Add(1)
	go s.acceptLoop()
	s.logger.Info("simulated host listening", zap.String("addr", ln.Addr().String()))
	return s, nil
}

func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

func (s *Server) Scene() *Scene {
	return s.scene
}

// DropConnections closes every open client connection but keeps listening.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.Close()
	}
}

func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	err := s.ln.Close()
	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("accept failed", zap.Error(err))
			}
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	dec := json.NewDecoder(conn)
	for {
		var req bridge.Request
		if err := dec.Decode(&req); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("client read ended", zap.Error(err))
			}
			return
		}
		resp := s.scene.Handle(req)
		payload, err := json.Marshal(resp)
		if err != nil {
			payload, _ = json.Marshal(bridge.Response{Status: bridge.StatusError, Message: err.Error()})
		}
		if _, err := conn.Write(payload); err != nil {
			s.logger.Debug("client write failed", zap.Error(err))
			return
		}
	}
}

// params reads loosely typed JSON parameters the way the addon does, with defaults.
type params map[string]any

func (p params) has(key string) bool {
	v, ok := p[key]
	return ok && v != nil
}

func (p params) str(key string) string {
	s, _ := p[key].(string)
	return s
}

func (p params) num(key string, def float64) float64 {
	if f, ok := toFloat(p[key]); ok {
		return f
	}
	return def
}

func (p params) boolean(key string, def bool) bool {
	if b, ok := p[key].(bool); ok {
		return b
	}
	return def
}

// floats accepts JSON-decoded lists as well as the typed slices validated
// command arguments carry when the scene is driven in-process.
func (p params) floats(key string) []float64 {
	var list []any
	switch v := p[key].(type) {
	case []any:
		list = v
	case []float64:
		return append([]float64(nil), v...)
	case []int:
		out := make([]float64, len(v))
		for i, n := range v {
			out[i] = float64(n)
		}
		return out
	default:
		return nil
	}
	out := make([]float64, 0, len(list))
	for _, v := range list {
		f, ok := toFloat(v)
		if !ok {
			return nil
		}
		out = append(out, f)
	}
	return out
}

func (p params) vec3(key string, def [3]float64) [3]float64 {
	f := p.floats(key)
	if len(f) != 3 {
		return def
	}
	return [3]float64{f[0], f[1], f[2]}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
