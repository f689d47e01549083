// Package ops implements the bridge command vocabulary on top of a host
// connection and the asset service client.
package ops

import (
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"blender-mcp-bridge/bridge"
	"blender-mcp-bridge/command"
	"blender-mcp-bridge/config"
	"blender-mcp-bridge/csm"
)

// Deps are the collaborators command handlers run against.
type Deps struct {
	Host   bridge.Host
	CSM    *csm.Client
	Config config.CSMConfig
	Logger *zap.Logger
}

// NewRegistry returns a registry holding the full command vocabulary.
func NewRegistry(deps Deps) *command.Registry {
	r := command.NewRegistry()
	Register(r, deps)
	return r
}

// Register adds every command to r.
func Register(r *command.Registry, deps Deps) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &hostOps{host: deps.Host, logger: logger.With(zap.String("component", "ops"))}
	a := newAssetOps(h, deps.CSM, deps.Config)

	h.register(r)
	registerAnimate(r, h, deps.Config)
	a.register(r)
}

func httpURL(v any) error {
	s, _ := v.(string)
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an http(s) URL", s)
	}
	return nil
}
