// Package bridge carries commands to the host application and returns its replies.
package bridge

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"blender-mcp-bridge/config"
)

// Host sends one command to the host application and waits for its response.
type Host interface {
	Send(ctx context.Context, commandType string, params map[string]any) (Response, error)
	Connected() bool
	Close() error
}

// New returns the host transport selected by cfg.
func New(cfg config.HostConfig, logger *zap.Logger) (Host, error) {
	switch cfg.Transport {
	case config.TransportTCP, "":
		return NewTCPHost(cfg.Addr, cfg.DialTimeout, logger), nil
	case config.TransportWebSocket:
		return NewWebSocketHost(logger), nil
	default:
		return nil, fmt.Errorf("unknown host transport %q", cfg.Transport)
	}
}
