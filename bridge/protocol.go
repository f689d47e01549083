package bridge

import (
	"errors"
	"fmt"
)

// Request is one command on the host wire: {"type": ..., "params": {...}}.
// ID is only set on the websocket transport, where responses are correlated.
type Request struct {
	ID     string         `json:"id,omitempty"`
	Type   string         `json:"type"`
	Params map[string]any `json:"params"`
}

// Response is the host's reply. Status is "success" or "error".
type Response struct {
	ID      string `json:"id,omitempty"`
	Status  string `json:"status"`
	Result  any    `json:"result,omitempty"`
	Message string `json:"message,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var ErrNotConnected = errors.New("host not connected")

// HostError is a failure reported by the host itself.
type HostError struct {
	Command string
	Message string
}

func (e *HostError) Error() string {
	return fmt.Sprintf("host error in %s: %s", e.Command, e.Message)
}

// Err converts an error status into a HostError.
func (r Response) Err(command string) error {
	if r.Status != StatusError {
		return nil
	}
	msg := r.Message
	if msg == "" {
		msg = "unknown error from host"
	}
	return &HostError{Command: command, Message: msg}
}

// ResultMap returns the result as an object, or nil when it is another shape.
func (r Response) ResultMap() map[string]any {
	m, _ := r.Result.(map[string]any)
	return m
}

func newRequest(commandType string, params map[string]any) Request {
	if params == nil {
		params = map[string]any{}
	}
	return Request{Type: commandType, Params: params}
}
