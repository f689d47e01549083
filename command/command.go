// Package command defines the bridge's command vocabulary: the envelope an
// agent sends, the registry of known operations with their argument rules,
// and the dispatcher that runs them one at a time.
package command

// Category classifies the single kind of side effect a command may have.
type Category int

const (
	// CategoryQuery reads host state without changing it.
	CategoryQuery Category = iota
	// CategoryHost mutates host scene state.
	CategoryHost
	// CategoryNetwork calls the asset service.
	CategoryNetwork
)

func (c Category) String() string {
	switch c {
	case CategoryQuery:
		return "query"
	case CategoryHost:
		return "host"
	case CategoryNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Command is a named operation plus its arguments.
type Command struct {
	Name string         `json:"command"`
	Args map[string]any `json:"args,omitempty"`
}

// New builds a command, copying args so later edits by the caller are not observed.
func New(name string, args map[string]any) Command {
	cp := make(map[string]any, len(args))
	for k, v := range args {
		cp[k] = v
	}
	return Command{Name: name, Args: cp}
}

// Result is the outcome of one command: a payload or an error message, never both.
type Result struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	// Kind is "validation" or "execution" when Error is set.
	Kind string `json:"kind,omitempty"`
}

const (
	KindValidation = "validation"
	KindExecution  = "execution"
)

// Success wraps a payload.
func Success(data any) Result {
	return Result{Data: data}
}

// Failure converts err into a failed Result, keeping its classification.
func Failure(err error) Result {
	kind := KindExecution
	if IsValidation(err) {
		kind = KindValidation
	}
	return Result{Error: err.Error(), Kind: kind}
}

// Failed reports whether the result carries an error.
func (r Result) Failed() bool {
	return r.Error != ""
}

// Err turns a failed Result back into an error, or nil on success.
func (r Result) Err() error {
	if !r.Failed() {
		return nil
	}
	return &RemoteError{Message: r.Error, Kind: r.Kind}
}
