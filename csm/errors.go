package csm

import (
	"errors"
	"fmt"
)

var (
	ErrDisabled = errors.New("CSM.ai integration is disabled")
	ErrNoAPIKey = errors.New("CSM.ai API key is not set")
)

// APIError is a non-200 reply from the asset service.
type APIError struct {
	StatusCode   int
	Message      string
	Instructions string
	Details      string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s (status code %d)", e.Message, e.StatusCode)
	if e.Instructions != "" {
		msg += ". " + e.Instructions
	}
	return msg
}
