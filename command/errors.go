package command

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownCommand   = errors.New("unknown command")
	ErrMissingArgument  = errors.New("missing required argument")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrDispatcherClosed = errors.New("dispatcher closed")
)

// ValidationError is returned when a command is rejected before it runs.
type ValidationError struct {
	Command string
	Arg     string
	Reason  string
	Err     error
}

func (e *ValidationError) Error() string {
	msg := e.Err.Error()
	if e.Arg != "" {
		msg = e.Arg + ": " + msg
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Command != "" {
		msg = e.Command + ": " + msg
	}
	return msg
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func unknownCommand(name string) error {
	return &ValidationError{Err: ErrUnknownCommand, Reason: fmt.Sprintf("%q", name)}
}

func missingArg(cmd, arg string) error {
	return &ValidationError{Command: cmd, Arg: arg, Err: ErrMissingArgument}
}

func invalidArg(cmd, arg, format string, a ...any) error {
	return &ValidationError{Command: cmd, Arg: arg, Err: ErrInvalidArgument, Reason: fmt.Sprintf(format, a...)}
}

// RemoteError is a failure reported by another bridge process, carrying the
// classification it was given there.
type RemoteError struct {
	Message string
	Kind    string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// IsValidation reports whether err rejected a command before execution.
func IsValidation(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	var re *RemoteError
	return errors.As(err, &re) && re.Kind == KindValidation
}
