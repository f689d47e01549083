package command

import (
	"context"
	"fmt"
	"sort"
)

// Handler executes one validated command.
type Handler func(ctx context.Context, args Args) (any, error)

// Spec registers a command name with its argument rules and handler.
type Spec struct {
	Name        string
	Category    Category
	Description string
	Args        []Arg
	Handler     Handler
}

// Registry is the fixed set of operations the bridge accepts.
// It is built once at startup and read concurrently afterwards.
type Registry struct {
	specs map[string]*Spec
}

func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]*Spec)}
}

// Register adds spec. A duplicate name or missing handler is a programming error.
func (r *Registry) Register(spec Spec) {
	if spec.Name == "" {
		panic("command: empty command name")
	}
	if spec.Handler == nil {
		panic(fmt.Sprintf("command: %s has no handler", spec.Name))
	}
	if _, dup := r.specs[spec.Name]; dup {
		panic(fmt.Sprintf("command: %s registered twice", spec.Name))
	}
	s := spec
	r.specs[spec.Name] = &s
}

func (r *Registry) Lookup(name string) (*Spec, bool) {
	s, ok := r.specs[name]
	return s, ok
}

// Names returns registered command names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks cmd against its spec and returns normalized arguments with defaults applied.
func (r *Registry) Validate(cmd Command) (*Spec, Args, error) {
	spec, ok := r.specs[cmd.Name]
	if !ok {
		return nil, nil, unknownCommand(cmd.Name)
	}
	args, err := spec.validate(cmd.Args)
	if err != nil {
		return nil, nil, err
	}
	return spec, args, nil
}

func (s *Spec) validate(in map[string]any) (Args, error) {
	known := make(map[string]struct{}, len(s.Args))
	out := make(Args, len(s.Args))
	for _, a := range s.Args {
		known[a.Name] = struct{}{}
		v, present := in[a.Name]
		if !present || v == nil {
			if a.Required {
				return nil, missingArg(s.Name, a.Name)
			}
			if a.Default != nil {
				out[a.Name] = copyDefault(a.Default)
			}
			continue
		}
		nv, err := a.normalize(s.Name, v)
		if err != nil {
			return nil, err
		}
		out[a.Name] = nv
	}
	for name := range in {
		if _, ok := known[name]; !ok {
			return nil, invalidArg(s.Name, name, "unexpected argument")
		}
	}
	return out, nil
}

func copyDefault(v any) any {
	if vec, ok := v.([]float64); ok {
		return append([]float64(nil), vec...)
	}
	return v
}
