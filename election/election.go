// Package election decides which bridge process leads. The first process to
// bind the coordination address leads; the others follow it and take over when
// it stops answering /ping.
package election

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"blender-mcp-bridge/config"
)

// maxJitter staggers checks so that followers do not all attempt takeover at once.
const maxJitter = 2 * time.Second

// RoleChanger is implemented by node.Node.
type RoleChanger interface {
	BecomeLeader() error
	BecomeFollower()
	IsLeader() bool
	IsFollower() bool
}

// Pinger checks the leader's health. Implemented by follower.Follower.
type Pinger interface {
	Ping(ctx context.Context) bool
}

type Election struct {
	node        RoleChanger
	pinger      Pinger
	interval    time.Duration
	pingTimeout time.Duration
	logger      *zap.Logger
}

func New(cfg config.BridgeConfig, n RoleChanger, p Pinger, logger *zap.Logger) *Election {
	if logger == nil {
		logger = zap.NewNop()
	}
	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 2 * time.Second
	}
	return &Election{
		node:        n,
		pinger:      p,
		interval:    cfg.ElectionInterval,
		pingTimeout: pingTimeout,
		logger:      logger.With(zap.String("component", "election")),
	}
}

// Run determines the initial role and keeps checking until ctx ends.
func (e *Election) Run(ctx context.Context) error {
	e.determineRole(ctx)

	timer := time.NewTimer(e.nextDelay())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			e.check(ctx)
			timer.Reset(e.nextDelay())
		}
	}
}

func (e *Election) nextDelay() time.Duration {
	return e.interval + rand.N(maxJitter)
}

func (e *Election) check(ctx context.Context) {
	switch {
	case e.node.IsLeader():
	case e.node.IsFollower():
		if !e.pingLeader(ctx) {
			e.logger.Warn("leader not responding, attempting takeover")
			if err := e.node.BecomeLeader(); err != nil {
				e.logger.Info("takeover failed", zap.Error(err))
			}
		}
	default:
		e.determineRole(ctx)
	}
}

func (e *Election) determineRole(ctx context.Context) {
	err := e.node.BecomeLeader()
	if err == nil {
		return
	}
	if e.pingLeader(ctx) {
		e.node.BecomeFollower()
		return
	}
	// Address taken by something that is not a healthy leader; retry next tick.
	e.logger.Warn("no role yet", zap.Error(err))
}

func (e *Election) pingLeader(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, e.pingTimeout)
	defer cancel()
	return e.pinger.Ping(ctx)
}
