package ops

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"blender-mcp-bridge/command"
	"blender-mcp-bridge/config"
	"blender-mcp-bridge/csm"
)

// tierUser asks the search to use the account's own tier.
const tierUser = "user"

var errNoClient = errors.New("CSM.ai client is not configured")

// assetOps runs the asset service commands. Credentials come from
// configuration when set and otherwise from the host's settings, which are
// read with query commands only. Every command performs at most one
// outbound request.
type assetOps struct {
	host   *hostOps
	client *csm.Client
	cfg    config.CSMConfig
	logger *zap.Logger

	mu          sync.Mutex
	learnedTier string
}

func newAssetOps(h *hostOps, client *csm.Client, cfg config.CSMConfig) *assetOps {
	return &assetOps{
		host:   h,
		client: client,
		cfg:    cfg,
		logger: h.logger.With(zap.String("ops", "assets")),
	}
}

func (a *assetOps) register(r *command.Registry) {
	r.Register(command.Spec{
		Name:        "get_correct_tier",
		Category:    command.CategoryNetwork,
		Description: "Look up the CSM.ai account tier, or only return the configured API key.",
		Args: []command.Arg{
			command.String("api_key"),
			command.Bool("get_key_only").WithDefault(false),
		},
		Handler: a.correctTier,
	})
	r.Register(command.Spec{
		Name:        "search_csm_models",
		Category:    command.CategoryNetwork,
		Description: "Search CSM.ai for existing 3D models that have a downloadable GLB.",
		Args: []command.Arg{
			command.String("search_text").Require(),
			command.Int("limit").Range(1, 100).WithDefault(20),
			command.Enum("tier", append(append([]string{}, config.Tiers...), tierUser)...),
		},
		Handler: a.search,
	})
	r.Register(command.Spec{
		Name:        "get_csm_session_details",
		Category:    command.CategoryNetwork,
		Description: "Fetch the status and mesh URLs of one CSM.ai image-to-3D session.",
		Args:        []command.Arg{command.String("session_code").Require()},
		Handler:     a.sessionDetails,
	})
}

func (a *assetOps) correctTier(ctx context.Context, args command.Args) (any, error) {
	key := args.String("api_key")
	if key == "" {
		var err error
		if key, err = a.credentials(ctx); err != nil {
			return nil, err
		}
	}
	if args.Bool("get_key_only") {
		return map[string]any{"api_key": key}, nil
	}
	if a.client == nil {
		return nil, errNoClient
	}

	tier, err := a.client.UserTier(ctx, key)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.learnedTier = tier
	a.mu.Unlock()
	a.logger.Info("learned account tier", zap.String("tier", tier))
	return map[string]any{"tier": tier}, nil
}

func (a *assetOps) search(ctx context.Context, args command.Args) (any, error) {
	if a.client == nil {
		return nil, errNoClient
	}
	key, err := a.credentials(ctx)
	if err != nil {
		return nil, err
	}
	tier := a.searchTier(args.String("tier"))
	res, err := a.client.Search(ctx, key, args.String("search_text"), args.Int("limit"), tier)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (a *assetOps) sessionDetails(ctx context.Context, args command.Args) (any, error) {
	if a.client == nil {
		return nil, errNoClient
	}
	key, err := a.credentials(ctx)
	if err != nil {
		return nil, err
	}
	session, err := a.client.SessionDetails(ctx, key, args.String("session_code"))
	if err != nil {
		return nil, err
	}
	return session, nil
}

// searchTier picks the filter tier: an explicit tier wins, then the tier
// learned from get_correct_tier when private assets are in use, then the default.
func (a *assetOps) searchTier(requested string) string {
	if requested != "" && requested != tierUser {
		return requested
	}
	if a.cfg.UsePrivateAssets {
		a.mu.Lock()
		learned := a.learnedTier
		a.mu.Unlock()
		if learned != "" {
			return learned
		}
	}
	if a.cfg.DefaultTier != "" {
		return a.cfg.DefaultTier
	}
	return "free"
}

// credentials checks the enable toggle and resolves the API key without
// touching the network.
func (a *assetOps) credentials(ctx context.Context) (string, error) {
	if !a.cfg.AlwaysEnabled {
		status, err := a.host.send(ctx, "get_csm_status", nil)
		if err != nil {
			return "", fmt.Errorf("reading CSM.ai status from host: %w", err)
		}
		m, _ := status.(map[string]any)
		if enabled, _ := m["enabled"].(bool); !enabled {
			if msg, _ := m["message"].(string); msg != "" && msg != csm.ErrDisabled.Error() {
				return "", fmt.Errorf("%w: %s", csm.ErrDisabled, msg)
			}
			return "", csm.ErrDisabled
		}
	}
	if a.cfg.APIKey != "" {
		return a.cfg.APIKey, nil
	}
	res, err := a.host.send(ctx, "get_correct_tier", map[string]any{"get_key_only": true})
	if err != nil {
		return "", fmt.Errorf("reading CSM.ai API key from host: %w", err)
	}
	key, _ := res.(string)
	if key == "" {
		return "", csm.ErrNoAPIKey
	}
	return key, nil
}
