package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"blender-mcp-bridge/bridge"
	"blender-mcp-bridge/command"
	"blender-mcp-bridge/config"
	"blender-mcp-bridge/csm"
	"blender-mcp-bridge/election"
	"blender-mcp-bridge/follower"
	"blender-mcp-bridge/hostsim"
	"blender-mcp-bridge/leader"
	"blender-mcp-bridge/logging"
	mcpbridge "blender-mcp-bridge/mcp"
	"blender-mcp-bridge/metrics"
	"blender-mcp-bridge/node"
	"blender-mcp-bridge/ops"
)

var version = "0.1.0"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// followerSlack keeps the follower's HTTP timeout above the leader's command timeout.
const followerSlack = 5 * time.Second

var configPath string

var rootCmd = &cobra.Command{
	Use:   "blender-mcp-bridge",
	Short: "MCP bridge to Blender and CSM.ai",
	Long: `blender-mcp-bridge exposes Blender scene commands and CSM.ai asset search
to MCP clients. Several bridge processes may run at once; one of them owns the
connection to Blender and runs every command in arrival order.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP over stdio",
	Long:  `Start the MCP server on stdin/stdout and join the leader election.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck
		return serve(cmd.Context(), cfg, logger)
	},
}

var callCmd = &cobra.Command{
	Use:   "call <command> [json-args]",
	Short: "Run one command through the running leader",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		cmdArgs := map[string]any{}
		if len(args) == 2 {
			if err := json.Unmarshal([]byte(args[1]), &cmdArgs); err != nil {
				return fmt.Errorf("parsing arguments: %w", err)
			}
		}
		c := command.New(args[0], cmdArgs)

		registry := ops.NewRegistry(ops.Deps{Config: cfg.CSM, Logger: logger})
		if _, _, err := registry.Validate(c); err != nil {
			return err
		}

		f := follower.New(cfg.LeaderURL(), cfg.Bridge.CommandTimeout+followerSlack, logger)
		data, err := f.Dispatch(cmd.Context(), c)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "List the command vocabulary",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := ops.NewRegistry(ops.Deps{Config: config.DefaultConfig().CSM})
		for _, name := range registry.Names() {
			spec, _ := registry.Lookup(name)
			fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-8s %s\n", name, spec.Category, spec.Description)
		}
		return nil
	},
}

var (
	simCSMEnabled bool
	simCSMKey     string
	simTier       string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run an in-memory Blender stand-in",
	Long:  `Listen on host.addr and answer the Blender addon protocol from an in-memory scene.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		scene := hostsim.NewScene()
		scene.SetCSM(simCSMEnabled, simCSMKey, simTier)
		srv, err := hostsim.Listen(cfg.Host.Addr, scene, logger)
		if err != nil {
			return err
		}
		defer srv.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
		return nil
	},
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.NewLoader().WithConfigPath(configPath).Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func serve(parent context.Context, cfg *config.Config, logger *zap.Logger) error {
	host, err := bridge.New(cfg.Host, logger)
	if err != nil {
		return err
	}

	var (
		csmOpts      = []csm.Option{csm.WithLogger(logger)}
		dispatchOpts = []command.DispatcherOption{command.WithLogger(logger), command.WithQueueSize(cfg.Bridge.QueueSize)}
		leaderOpts   = []leader.Option{leader.WithLogger(logger)}
		nodeOpts     = []node.Option{node.WithLogger(logger)}
	)
	if cfg.Metrics.Enabled {
		collector := metrics.NewCollector(nil)
		csmOpts = append(csmOpts, csm.WithObserver(collector))
		dispatchOpts = append(dispatchOpts, command.WithObserver(collector))
		leaderOpts = append(leaderOpts, leader.WithMetrics(cfg.Metrics.Path, collector.Handler()))
		nodeOpts = append(nodeOpts, node.WithRoleObserver(collector))
	}

	registry := ops.NewRegistry(ops.Deps{
		Host:   host,
		CSM:    csm.New(cfg.CSM, csmOpts...),
		Config: cfg.CSM,
		Logger: logger,
	})

	leader.Version = version
	newLeader := func() *leader.Leader {
		return leader.New(cfg.Bridge, host, command.NewDispatcher(registry, dispatchOpts...), leaderOpts...)
	}
	f := follower.New(cfg.LeaderURL(), cfg.Bridge.CommandTimeout+followerSlack, logger)
	n := node.New(registry, f, newLeader, nodeOpts...)
	defer n.Stop()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "blender-mcp-bridge",
		Version: version,
	}, nil)
	tools := &mcpbridge.Tools{Dispatcher: n}
	tools.Register(server)
	mcpbridge.RegisterPrompts(server)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return election.New(cfg.Bridge, n, f, logger).Run(gctx)
	})
	g.Go(func() error {
		// The session ends when the client closes stdin; stop the election with it.
		defer cancel()
		logger.Info("starting MCP server", zap.Stringer("role", n.Role()))
		return server.Run(gctx, &mcp.StdioTransport{})
	})

	err = g.Wait()
	logger.Info("shutting down")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	simulateCmd.Flags().BoolVar(&simCSMEnabled, "csm-enabled", false, "report the CSM.ai integration as enabled")
	simulateCmd.Flags().StringVar(&simCSMKey, "csm-key", "", "API key the simulated host reports")
	simulateCmd.Flags().StringVar(&simTier, "tier", "free", "account tier the simulated host reports")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(commandsCmd)
	rootCmd.AddCommand(simulateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
