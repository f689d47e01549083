// Package node switches a bridge process between the leader and follower roles
// and routes each command accordingly.
package node

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"blender-mcp-bridge/command"
	"blender-mcp-bridge/follower"
	"blender-mcp-bridge/leader"
)

type Role int

const (
	RoleUnknown Role = iota
	RoleLeader
	RoleFollower
)

func (r Role) String() string {
	switch r {
	case RoleLeader:
		return "LEADER"
	case RoleFollower:
		return "FOLLOWER"
	default:
		return "UNKNOWN"
	}
}

// LeaderFactory builds a fresh, unstarted leader for each takeover.
type LeaderFactory func() *leader.Leader

// RoleObserver is told about every role change.
type RoleObserver interface {
	SetLeader(bool)
}

// Node validates commands locally and then runs them through the leader it
// owns, or forwards them to the leader process.
type Node struct {
	mu       sync.RWMutex
	role     Role
	leader   *leader.Leader
	follower *follower.Follower

	registry  *command.Registry
	newLeader LeaderFactory
	observer  RoleObserver
	logger    *zap.Logger
}

type Option func(*Node)

func WithLogger(l *zap.Logger) Option {
	return func(n *Node) { n.logger = l }
}

func WithRoleObserver(o RoleObserver) Option {
	return func(n *Node) { n.observer = o }
}

func New(registry *command.Registry, f *follower.Follower, newLeader LeaderFactory, opts ...Option) *Node {
	n := &Node{
		registry:  registry,
		follower:  f,
		newLeader: newLeader,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = n.logger.With(zap.String("component", "node"))
	return n
}

func (n *Node) Role() Role {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.role
}

func (n *Node) IsLeader() bool   { return n.Role() == RoleLeader }
func (n *Node) IsFollower() bool { return n.Role() == RoleFollower }

// Dispatch rejects invalid commands before anything leaves the process, then
// routes by the current role. Without a role yet it tries the leader process.
func (n *Node) Dispatch(ctx context.Context, cmd command.Command) (any, error) {
	if _, _, err := n.registry.Validate(cmd); err != nil {
		return nil, err
	}

	n.mu.RLock()
	role := n.role
	l := n.leader
	f := n.follower
	n.mu.RUnlock()

	if role == RoleLeader && l != nil {
		return l.Dispatch(ctx, cmd)
	}
	return f.Dispatch(ctx, cmd)
}

// BecomeLeader starts a leader. It fails when the coordination address is taken.
func (n *Node) BecomeLeader() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.role == RoleLeader {
		return nil
	}

	l := n.newLeader()
	if err := l.Start(); err != nil {
		return err
	}

	n.leader = l
	n.role = RoleLeader
	n.notify(true)
	n.logger.Info("became leader", zap.String("addr", l.Addr()))
	return nil
}

func (n *Node) BecomeFollower() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.role == RoleFollower {
		return
	}
	if n.leader != nil {
		n.leader.Stop()
		n.leader = nil
	}
	n.role = RoleFollower
	n.notify(false)
	n.logger.Info("became follower")
}

func (n *Node) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.leader != nil {
		n.leader.Stop()
		n.leader = nil
	}
	n.role = RoleUnknown
	n.notify(false)
}

func (n *Node) notify(isLeader bool) {
	if n.observer != nil {
		n.observer.SetLeader(isLeader)
	}
}
