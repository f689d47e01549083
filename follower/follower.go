// Package follower forwards commands to the leader over local HTTP.
package follower

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"blender-mcp-bridge/command"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Follower proxies commands to the leader's /rpc endpoint.
type Follower struct {
	leaderURL string
	client    *http.Client
	logger    *zap.Logger
}

// New returns a follower for leaderURL. timeout should exceed the leader's
// per-command timeout so the leader reports the timeout, not the follower.
func New(leaderURL string, timeout time.Duration, logger *zap.Logger) *Follower {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Follower{
		leaderURL: leaderURL,
		client:    &http.Client{Timeout: timeout},
		logger:    logger.With(zap.String("component", "follower")),
	}
}

// Dispatch sends cmd to the leader and returns its data or its error.
// Errors keep the leader's validation or execution classification.
func (f *Follower) Dispatch(ctx context.Context, cmd command.Command) (any, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", cmd.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.leaderURL+"/rpc", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building leader request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	f.logger.Debug("forwarding command", zap.String("command", cmd.Name))
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling leader: %w", err)
	}
	defer resp.Body.Close()

	var result command.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("leader returned status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("decoding leader response: %w", err)
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("leader returned status %d", resp.StatusCode)
	}
	return result.Data, nil
}

// Ping reports whether the leader answers /ping.
func (f *Follower) Ping(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.leaderURL+"/ping", nil)
	if err != nil {
		return false
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
